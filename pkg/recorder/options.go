// Package recorder provides a high-level API for recording the desktop to
// a fragmented MP4 file.
package recorder

import (
	"fmt"
	"strings"
	"time"

	"github.com/user/deskrec/pkg/ports"
)

// QualityPreset represents a bitrate preset name.
type QualityPreset string

const (
	QualityLow    QualityPreset = "low"
	QualityMedium QualityPreset = "medium"
	QualityHigh   QualityPreset = "high"
)

// QualitySettings contains the encoder bitrates of a preset.
type QualitySettings struct {
	BitrateMbps      int // H.264 target bitrate
	AudioBitrateKbps int // AAC bitrate
}

// GetQualitySettings returns quality settings for the given preset.
func GetQualitySettings(preset QualityPreset) QualitySettings {
	switch preset {
	case QualityLow:
		return QualitySettings{BitrateMbps: 4, AudioBitrateKbps: 96}
	case QualityHigh:
		return QualitySettings{BitrateMbps: 16, AudioBitrateKbps: 192}
	default: // medium
		return QualitySettings{BitrateMbps: 8, AudioBitrateKbps: 128}
	}
}

// ParseQualityPreset parses low, medium or high.
func ParseQualityPreset(s string) (QualityPreset, error) {
	switch p := QualityPreset(strings.ToLower(s)); p {
	case QualityLow, QualityMedium, QualityHigh:
		return p, nil
	default:
		return "", fmt.Errorf("unknown preset %q (want low, medium or high)", s)
	}
}

// Source selects where video and audio come from.
type Source string

const (
	// SourceScreen grabs a display and a system audio endpoint with ffmpeg.
	SourceScreen Source = "screen"
	// SourceTest renders a moving test pattern and a sine tone.
	SourceTest Source = "test"
)

// ParseSource parses screen or test.
func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(s)); src {
	case SourceScreen, SourceTest:
		return src, nil
	default:
		return "", fmt.Errorf("unknown source %q (want screen or test)", s)
	}
}

// Queues sizes the channels between the stages.
type Queues struct {
	VideoRaw     int // captured frames waiting for the pacer
	AudioRaw     int // captured packets waiting for the encoder
	AudioEncoded int // encoded audio waiting for the next video write
}

// Options represents the configuration of one recording.
type Options struct {
	// Capture
	Display    int    // display index
	Source     Source // screen or test
	Width      int    // output width, even
	Height     int    // output height, even
	FPS        int    // output frame rate
	CaptureFPS int    // grab rate before pacing, at least FPS

	// Encoding
	BitrateMbps int // H.264 bitrate in Mbps
	Encoder     int // encoder device index

	// Audio
	Audio            ports.AudioSource
	AudioDevice      string // capture device name where the platform needs one
	AudioBitrateKbps int

	// Output
	OutputPath       string
	FragmentDuration time.Duration

	// Timing
	PollInterval time.Duration // grab timeout before a frame is repeated
	DrainTimeout time.Duration // per-driver drain limit at stop
	Queues       Queues

	// External tools
	FFmpegPath string // empty searches FFMPEG_PATH, PATH and common locations

	// Debug
	DebugDir string // non-empty keeps timelines and session.json there
}

// Bitrate returns the video bitrate in bits per second.
func (o Options) Bitrate() int {
	return MbpsToBps(o.BitrateMbps)
}

// AudioBitrate returns the audio bitrate in bits per second.
func (o Options) AudioBitrate() int {
	return o.AudioBitrateKbps * 1000
}

// Validate checks the options that the pipeline cannot recover from.
func (o Options) Validate() error {
	switch {
	case o.Width <= 0 || o.Height <= 0:
		return fmt.Errorf("invalid size %dx%d", o.Width, o.Height)
	case o.Width%2 != 0 || o.Height%2 != 0:
		return fmt.Errorf("size %dx%d must be even for NV12", o.Width, o.Height)
	case o.FPS <= 0:
		return fmt.Errorf("invalid frame rate %d", o.FPS)
	case o.CaptureFPS < o.FPS:
		return fmt.Errorf("capture rate %d is below the output rate %d", o.CaptureFPS, o.FPS)
	case o.BitrateMbps <= 0:
		return fmt.Errorf("invalid bitrate %d Mbps", o.BitrateMbps)
	case o.Encoder < 0:
		return fmt.Errorf("invalid encoder index %d", o.Encoder)
	case o.Display < 0:
		return fmt.Errorf("invalid display index %d", o.Display)
	case o.OutputPath == "":
		return fmt.Errorf("output path is required")
	}
	return nil
}

// OptionsBuilder provides a fluent interface for building Options.
type OptionsBuilder struct {
	options Options
}

// NewOptionsBuilder creates a new OptionsBuilder with default values.
func NewOptionsBuilder() *OptionsBuilder {
	return &OptionsBuilder{
		options: defaults(),
	}
}

// defaults returns the medium preset at 1080p30.
func defaults() Options {
	q := GetQualitySettings(QualityMedium)
	return Options{
		// Capture
		Source:     SourceScreen,
		Width:      1920,
		Height:     1080,
		FPS:        30,
		CaptureFPS: 60,

		// Encoding
		BitrateMbps: q.BitrateMbps,

		// Audio
		Audio:            ports.AudioLoopback,
		AudioBitrateKbps: q.AudioBitrateKbps,

		// Output
		OutputPath:       "capture.mp4",
		FragmentDuration: time.Second,

		// Timing
		PollInterval: 100 * time.Millisecond,
		DrainTimeout: 10 * time.Second,
		Queues: Queues{
			VideoRaw:     4,
			AudioRaw:     64,
			AudioEncoded: 256,
		},
	}
}

// Build returns the final Options, applying constraints.
func (b *OptionsBuilder) Build() Options {
	o := b.options

	// The pacer can only drop frames.
	if o.CaptureFPS < o.FPS {
		o.CaptureFPS = o.FPS
	}

	// NV12 needs even dimensions.
	o.Width &^= 1
	o.Height &^= 1

	if o.Queues.VideoRaw < 1 {
		o.Queues.VideoRaw = 1
	}
	if o.Queues.AudioRaw < 1 {
		o.Queues.AudioRaw = 1
	}
	if o.Queues.AudioEncoded < 1 {
		o.Queues.AudioEncoded = 1
	}

	return o
}

// WithDisplay sets the display index.
func (b *OptionsBuilder) WithDisplay(index int) *OptionsBuilder {
	b.options.Display = index
	return b
}

// WithSource selects the screen or the synthetic test source.
func (b *OptionsBuilder) WithSource(src Source) *OptionsBuilder {
	b.options.Source = src
	return b
}

// WithSize sets the output dimensions. Odd values are rounded down.
func (b *OptionsBuilder) WithSize(width, height int) *OptionsBuilder {
	b.options.Width = width
	b.options.Height = height
	return b
}

// WithFPS sets the output frame rate.
func (b *OptionsBuilder) WithFPS(fps int) *OptionsBuilder {
	b.options.FPS = fps
	return b
}

// WithCaptureFPS sets the grab rate. Values below the output rate are
// raised to it.
func (b *OptionsBuilder) WithCaptureFPS(fps int) *OptionsBuilder {
	b.options.CaptureFPS = fps
	return b
}

// WithBitrateMbps sets the video bitrate in Mbps.
func (b *OptionsBuilder) WithBitrateMbps(mbps int) *OptionsBuilder {
	b.options.BitrateMbps = mbps
	return b
}

// WithQualityPreset applies a quality preset (low, medium, high).
func (b *OptionsBuilder) WithQualityPreset(preset QualityPreset) *OptionsBuilder {
	settings := GetQualitySettings(preset)
	b.options.BitrateMbps = settings.BitrateMbps
	b.options.AudioBitrateKbps = settings.AudioBitrateKbps
	return b
}

// WithEncoder selects the encoder device by index.
func (b *OptionsBuilder) WithEncoder(index int) *OptionsBuilder {
	b.options.Encoder = index
	return b
}

// WithAudio selects the audio endpoint.
func (b *OptionsBuilder) WithAudio(src ports.AudioSource) *OptionsBuilder {
	b.options.Audio = src
	return b
}

// WithAudioDevice sets the capture device name.
func (b *OptionsBuilder) WithAudioDevice(name string) *OptionsBuilder {
	b.options.AudioDevice = name
	return b
}

// WithAudioBitrateKbps sets the AAC bitrate.
func (b *OptionsBuilder) WithAudioBitrateKbps(kbps int) *OptionsBuilder {
	b.options.AudioBitrateKbps = kbps
	return b
}

// WithOutputPath sets the output file.
func (b *OptionsBuilder) WithOutputPath(path string) *OptionsBuilder {
	b.options.OutputPath = path
	return b
}

// WithFragmentDuration sets the minimum fragment length.
func (b *OptionsBuilder) WithFragmentDuration(d time.Duration) *OptionsBuilder {
	b.options.FragmentDuration = d
	return b
}

// WithPollInterval sets how long a grab waits before the last frame is
// repeated.
func (b *OptionsBuilder) WithPollInterval(d time.Duration) *OptionsBuilder {
	b.options.PollInterval = d
	return b
}

// WithDrainTimeout sets the per-driver drain limit.
func (b *OptionsBuilder) WithDrainTimeout(d time.Duration) *OptionsBuilder {
	b.options.DrainTimeout = d
	return b
}

// WithQueues sets the channel sizes.
func (b *OptionsBuilder) WithQueues(q Queues) *OptionsBuilder {
	b.options.Queues = q
	return b
}

// WithFFmpegPath sets the ffmpeg binary.
func (b *OptionsBuilder) WithFFmpegPath(path string) *OptionsBuilder {
	b.options.FFmpegPath = path
	return b
}

// WithDebugDir enables debug output in dir.
func (b *OptionsBuilder) WithDebugDir(dir string) *OptionsBuilder {
	b.options.DebugDir = dir
	return b
}

// MbpsToBps converts megabits per second to bits per second.
// Uses 1000 as the base, the way encoders count.
func MbpsToBps(mbps int) int {
	return mbps * 1_000_000
}
