package mocks

// bitWriter writes an RBSP bit by bit, most significant bit first.
type bitWriter struct {
	buf   []byte
	cur   byte
	nbits uint
}

func (w *bitWriter) u(n uint, v uint64) {
	for i := int(n) - 1; i >= 0; i-- {
		w.cur = w.cur<<1 | byte(v>>uint(i)&1)
		w.nbits++
		if w.nbits == 8 {
			w.buf = append(w.buf, w.cur)
			w.cur, w.nbits = 0, 0
		}
	}
}

// ue writes an unsigned Exp-Golomb code.
func (w *bitWriter) ue(v uint64) {
	v++
	n := uint(0)
	for x := v; x > 1; x >>= 1 {
		n++
	}
	w.u(n, 0)
	w.u(n+1, v)
}

// se writes a signed Exp-Golomb code.
func (w *bitWriter) se(v int64) {
	if v > 0 {
		w.ue(uint64(2*v - 1))
	} else {
		w.ue(uint64(-2 * v))
	}
}

// trailing writes rbsp_trailing_bits and returns the payload.
func (w *bitWriter) trailing() []byte {
	w.u(1, 1)
	for w.nbits != 0 {
		w.u(1, 0)
	}
	return w.buf
}

// escape inserts emulation prevention bytes.
func escape(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp)+4)
	zeros := 0
	for _, b := range rbsp {
		if zeros >= 2 && b <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, b)
		if b == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

// H264SPS returns a baseline profile SPS NAL unit (without start code)
// describing a width x height picture. Odd dimensions are rounded down.
func H264SPS(width, height int) []byte {
	widthMbs := (width + 15) / 16
	heightMbs := (height + 15) / 16
	cropRight := (widthMbs*16 - width) / 2
	cropBottom := (heightMbs*16 - height) / 2

	w := &bitWriter{}
	w.u(8, 66) // profile_idc
	w.u(8, 0xC0)
	w.u(8, 40) // level_idc
	w.ue(0)    // seq_parameter_set_id
	w.ue(0)    // log2_max_frame_num_minus4
	w.ue(2)    // pic_order_cnt_type
	w.ue(1)    // max_num_ref_frames
	w.u(1, 0)
	w.ue(uint64(widthMbs - 1))
	w.ue(uint64(heightMbs - 1))
	w.u(1, 1) // frame_mbs_only_flag
	w.u(1, 1) // direct_8x8_inference_flag
	if cropRight > 0 || cropBottom > 0 {
		w.u(1, 1)
		w.ue(0)
		w.ue(uint64(cropRight))
		w.ue(0)
		w.ue(uint64(cropBottom))
	} else {
		w.u(1, 0)
	}
	w.u(1, 0) // vui_parameters_present_flag

	return append([]byte{0x67}, escape(w.trailing())...)
}

// H264PPS returns a minimal PPS NAL unit matching H264SPS.
func H264PPS() []byte {
	w := &bitWriter{}
	w.ue(0) // pic_parameter_set_id
	w.ue(0) // seq_parameter_set_id
	w.u(1, 0)
	w.u(1, 0)
	w.ue(0) // num_slice_groups_minus1
	w.ue(0)
	w.ue(0)
	w.u(1, 0)
	w.u(2, 0)
	w.se(0) // pic_init_qp_minus26
	w.se(0)
	w.se(0)
	w.u(1, 1) // deblocking_filter_control_present_flag
	w.u(1, 0)
	w.u(1, 0)

	return append([]byte{0x68}, escape(w.trailing())...)
}

var startCode = []byte{0, 0, 0, 1}

// H264AccessUnit returns an Annex-B access unit: an AUD, then SPS and PPS
// for keyframes, then one slice NAL carrying size filler bytes.
func H264AccessUnit(width, height int, keyframe bool, size int) []byte {
	var au []byte
	au = append(au, startCode...)
	au = append(au, 0x09, 0xF0)
	if keyframe {
		au = append(au, startCode...)
		au = append(au, H264SPS(width, height)...)
		au = append(au, startCode...)
		au = append(au, H264PPS()...)
		au = append(au, startCode...)
		au = append(au, 0x65, 0x88)
	} else {
		au = append(au, startCode...)
		au = append(au, 0x41, 0x9A)
	}
	for i := 0; i < size; i++ {
		au = append(au, byte(0x10+i%0xE0))
	}
	return au
}
