// Package annexb parses H.264 Annex-B byte streams.
package annexb

// NAL unit types used by the recorder.
const (
	TypeSlice = 1
	TypeIDR   = 5
	TypeSEI   = 6
	TypeSPS   = 7
	TypePPS   = 8
	TypeAUD   = 9
)

// Type returns the nal_unit_type of a NAL unit without start code.
func Type(nalu []byte) byte {
	if len(nalu) == 0 {
		return 0
	}
	return nalu[0] & 0x1F
}

// startCodeAt returns the length of the start code at i, or 0.
func startCodeAt(data []byte, i int) int {
	if i+2 >= len(data) || data[i] != 0 || data[i+1] != 0 {
		return 0
	}
	if data[i+2] == 1 {
		return 3
	}
	if i+3 < len(data) && data[i+2] == 0 && data[i+3] == 1 {
		return 4
	}
	return 0
}

// Split parses an Annex-B byte stream into individual NAL units.
func Split(data []byte) [][]byte {
	var nalus [][]byte
	start := 0
	i := 0

	for i < len(data) {
		if n := startCodeAt(data, i); n > 0 {
			if i > start {
				nalus = append(nalus, data[start:i])
			}
			i += n
			start = i
			continue
		}
		i++
	}

	if start < len(data) {
		nalus = append(nalus, data[start:])
	}
	return nalus
}

// IndexAUD returns the offset of the start code that introduces the first
// access unit delimiter at or after from, or -1.
func IndexAUD(data []byte, from int) int {
	for i := from; i < len(data); i++ {
		n := startCodeAt(data, i)
		if n == 0 {
			continue
		}
		if i+n < len(data) && Type(data[i+n:]) == TypeAUD {
			return i
		}
		i += n - 1
	}
	return -1
}

// ParameterSets returns the first SPS and PPS found in an access unit.
func ParameterSets(au []byte) (sps, pps []byte) {
	for _, nalu := range Split(au) {
		switch Type(nalu) {
		case TypeSPS:
			if sps == nil {
				sps = append([]byte(nil), nalu...)
			}
		case TypePPS:
			if pps == nil {
				pps = append([]byte(nil), nalu...)
			}
		}
	}
	return sps, pps
}

// IsKeyframe reports whether an access unit contains an IDR slice.
func IsKeyframe(au []byte) bool {
	for _, nalu := range Split(au) {
		if Type(nalu) == TypeIDR {
			return true
		}
	}
	return false
}

// ToAVCC converts an access unit to 4-byte length-prefixed form. Parameter
// sets and delimiters are dropped; they live in the sample description.
func ToAVCC(au []byte) []byte {
	nalus := Split(au)

	total := 0
	for _, nalu := range nalus {
		total += 4 + len(nalu)
	}

	out := make([]byte, 0, total)
	for _, nalu := range nalus {
		switch Type(nalu) {
		case TypeSPS, TypePPS, TypeAUD:
			continue
		}
		if len(nalu) == 0 {
			continue
		}
		n := len(nalu)
		out = append(out, byte(n>>24), byte(n>>16), byte(n>>8), byte(n))
		out = append(out, nalu...)
	}
	return out
}
