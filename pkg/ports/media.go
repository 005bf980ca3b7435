package ports

import "fmt"

// MediaTimescale is the number of media time units per second (100ns units).
const MediaTimescale = 10_000_000

// Track identifies one of the two elementary streams of a recording.
type Track int

const (
	TrackVideo Track = iota
	TrackAudio
)

func (t Track) String() string {
	switch t {
	case TrackVideo:
		return "video"
	case TrackAudio:
		return "audio"
	default:
		return fmt.Sprintf("track(%d)", int(t))
	}
}

// Codec names a raw or encoded sample format.
type Codec string

const (
	CodecNV12 Codec = "nv12"
	CodecPCM  Codec = "pcm_s16le"
	CodecH264 Codec = "h264"
	CodecAAC  Codec = "aac"
)

// Format describes a stream on either side of a transform.
type Format struct {
	Track Track
	Codec Codec

	// Video
	Width     int
	Height    int
	FrameRate int

	// Audio
	SampleRate    int
	Channels      int
	BitsPerSample int

	// Bitrate in bits per second. Zero for raw formats.
	Bitrate int
}

// FrameSize returns the size in bytes of one NV12 frame.
func (f Format) FrameSize() int {
	return f.Width * f.Height * 3 / 2
}

// BytesPerFrame returns the size in bytes of one PCM frame (one sample per channel).
func (f Format) BytesPerFrame() int {
	return f.Channels * f.BitsPerSample / 8
}

// FramesToDuration converts a PCM frame count to media time.
func (f Format) FramesToDuration(frames int) int64 {
	if f.SampleRate <= 0 {
		return 0
	}
	return int64(frames) * MediaTimescale / int64(f.SampleRate)
}

func (f Format) String() string {
	switch f.Track {
	case TrackVideo:
		return fmt.Sprintf("%s %dx%d@%d", f.Codec, f.Width, f.Height, f.FrameRate)
	case TrackAudio:
		return fmt.Sprintf("%s %dHz %dch", f.Codec, f.SampleRate, f.Channels)
	default:
		return string(f.Codec)
	}
}

// SampleFlags annotate a RawSample.
type SampleFlags uint32

const (
	// FlagSilent marks an audio packet the device reported as silence. Data is nil.
	FlagSilent SampleFlags = 1 << iota
	// FlagDuplicate marks a video frame resent because no new frame arrived in time.
	FlagDuplicate
	// FlagDiscontinuity marks a sample whose timestamp was re-anchored to the clock.
	FlagDiscontinuity
)

// Has reports whether all bits of flag are set.
func (f SampleFlags) Has(flag SampleFlags) bool {
	return f&flag == flag
}

// RawSample is an uncompressed sample produced by a capture source.
// Times are relative to the session anchor in 100ns units.
type RawSample struct {
	Track    Track
	Time     int64
	Duration int64
	Data     []byte
	Flags    SampleFlags
}

// EncodedSample is a compressed sample produced by a transform.
type EncodedSample struct {
	Track    Track
	Time     int64
	Duration int64
	Data     []byte
	Keyframe bool
}
