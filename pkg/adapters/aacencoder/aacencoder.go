// Package aacencoder provides an AAC-LC encoder device backed by ffmpeg.
package aacencoder

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/icza/bitio"
	"github.com/user/deskrec/pkg/adapters/ffmpeg"
	"github.com/user/deskrec/pkg/ports"
)

const (
	// FrameSamples is the number of PCM frames per AAC-LC frame.
	FrameSamples = 1024

	// DefaultBitrate is used when the options leave the bitrate unset.
	DefaultBitrate = 128_000
)

// ErrBadADTS is returned when the encoder output loses ADTS sync.
var ErrBadADTS = errors.New("aacencoder: invalid ADTS header")

// Device encodes PCM s16le to AAC through ffmpeg's native aac encoder.
type Device struct {
	path   string
	logger ports.Logger
}

// NewDevice creates a device using the ffmpeg at path.
func NewDevice(path string, logger ports.Logger) *Device {
	return &Device{path: path, logger: logger}
}

func (d *Device) Info() ports.EncoderInfo {
	return ports.EncoderInfo{Name: "aac", Backend: "ffmpeg", Codec: ports.CodecAAC}
}

func (d *Device) CreateTransform(opts ports.EncoderOptions) (ports.Transform, error) {
	in := opts.Input
	if in.Codec != ports.CodecPCM || in.BitsPerSample != 16 {
		return nil, fmt.Errorf("aacencoder: input must be 16-bit pcm, got %s", in)
	}
	if in.SampleRate <= 0 || in.Channels <= 0 {
		return nil, fmt.Errorf("aacencoder: invalid input format %s", in)
	}
	bitrate := opts.Bitrate
	if bitrate <= 0 {
		bitrate = DefaultBitrate
	}

	out := ports.Format{
		Track:      ports.TrackAudio,
		Codec:      ports.CodecAAC,
		SampleRate: in.SampleRate,
		Channels:   in.Channels,
		Bitrate:    bitrate,
	}

	return ffmpeg.NewTransform(ffmpeg.TransformConfig{
		Command: ffmpeg.Command{
			Path: d.path,
			Args: encodeArgs(in, bitrate),
		},
		Input:   in,
		Output:  out,
		Framer:  ADTSFramer{},
		Stamper: &ffmpeg.CountingStamper{FrameSamples: FrameSamples, SampleRate: in.SampleRate},
		Payload: func(s ports.RawSample) []byte { return PCMPayload(in, s) },
		Strip:   StripADTS,
		// PCM arrives in 10ms packets; keep about a second queued.
		QueueSize: 100,
	}, d.logger), nil
}

func encodeArgs(in ports.Format, bitrate int) []string {
	return []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "s16le",
		"-ar", strconv.Itoa(in.SampleRate),
		"-ac", strconv.Itoa(in.Channels),
		"-i", "pipe:0",
		"-c:a", "aac",
		"-b:a", strconv.Itoa(bitrate),
		"-f", "adts",
		"pipe:1",
	}
}

// PCMPayload returns the bytes fed to the encoder for a sample. Silent
// packets carry no data and are expanded to zeros of the same duration.
func PCMPayload(format ports.Format, s ports.RawSample) []byte {
	if s.Data != nil && !s.Flags.Has(ports.FlagSilent) {
		return s.Data
	}
	frames := s.Duration * int64(format.SampleRate) / ports.MediaTimescale
	return make([]byte, int(frames)*format.BytesPerFrame())
}

// ADTSFramer splits an ADTS stream into whole frames, headers included.
type ADTSFramer struct{}

func (ADTSFramer) ReadFrame(r io.Reader) ([]byte, error) {
	header := make([]byte, 7)
	if _, err := io.ReadFull(r, header); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	n, err := frameLength(header)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, n)
	copy(frame, header)
	if _, err := io.ReadFull(r, frame[7:]); err != nil {
		if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
			return nil, io.EOF
		}
		return nil, err
	}
	return frame, nil
}

// adtsHeader holds the fixed and variable ADTS header fields.
type adtsHeader struct {
	protectionAbsent bool
	profile          uint8
	sampleRateIndex  uint8
	channelConfig    uint8
	frameLength      int
}

// parseADTSHeader decodes the 56 header bits.
// ref: https://wiki.multimedia.cx/index.php/ADTS
func parseADTSHeader(h []byte) (adtsHeader, error) {
	var hdr adtsHeader
	r := bitio.NewReader(bytes.NewReader(h[:7]))

	sync, err := r.ReadBits(12)
	if err != nil {
		return hdr, err
	}
	if sync != 0xFFF {
		return hdr, ErrBadADTS
	}
	r.ReadBits(3) // id, layer
	hdr.protectionAbsent, _ = r.ReadBool()
	profile, _ := r.ReadBits(2)
	hdr.profile = uint8(profile)
	rate, _ := r.ReadBits(4)
	hdr.sampleRateIndex = uint8(rate)
	r.ReadBits(1) // private
	channels, _ := r.ReadBits(3)
	hdr.channelConfig = uint8(channels)
	r.ReadBits(4) // originality, home, copyright bits
	length, err := r.ReadBits(13)
	if err != nil {
		return hdr, err
	}
	hdr.frameLength = int(length)
	return hdr, nil
}

func (h adtsHeader) headerLength() int {
	if h.protectionAbsent {
		return 7
	}
	return 9
}

// frameLength validates an ADTS header and returns the full frame length.
func frameLength(h []byte) (int, error) {
	hdr, err := parseADTSHeader(h)
	if err != nil {
		return 0, err
	}
	if hdr.frameLength < hdr.headerLength() {
		return 0, fmt.Errorf("%w: frame length %d", ErrBadADTS, hdr.frameLength)
	}
	return hdr.frameLength, nil
}

// StripADTS returns the raw AAC payload of an ADTS frame.
func StripADTS(frame []byte) []byte {
	if len(frame) < 7 {
		return frame
	}
	hdr, err := parseADTSHeader(frame)
	if err != nil || len(frame) < hdr.headerLength() {
		return frame
	}
	return frame[hdr.headerLength():]
}

var _ ports.EncoderDevice = (*Device)(nil)
