// Package config provides configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/user/deskrec/pkg/ports"
	"github.com/user/deskrec/pkg/recorder"
)

// ErrInvalidOutputPath is returned for output paths that are not a named
// .mp4 file.
var ErrInvalidOutputPath = errors.New("config: output must be a .mp4 file with a name")

// Config represents the full configuration for deskrec.
type Config struct {
	// Capture
	Display    int    `yaml:"display"`
	Source     string `yaml:"source"`
	Width      int    `yaml:"width"`
	Height     int    `yaml:"height"`
	FPS        int    `yaml:"fps"`
	CaptureFPS int    `yaml:"capture_fps"`

	// Encoding
	Preset      string `yaml:"preset"`
	BitrateMbps int    `yaml:"bitrate_mbps"`
	Encoder     int    `yaml:"encoder"`

	// Audio
	Audio            string `yaml:"audio"`
	AudioDevice      string `yaml:"audio_device"`
	AudioBitrateKbps int    `yaml:"audio_bitrate_kbps"`

	// Output
	OutputPath  string `yaml:"output"`
	FragmentMs  int    `yaml:"fragment_ms"`
	DurationSec int    `yaml:"duration_sec"`
	Summary     string `yaml:"summary"`

	// Timing
	PollIntervalMs int         `yaml:"poll_interval_ms"`
	DrainTimeoutMs int         `yaml:"drain_timeout_ms"`
	Queues         QueueConfig `yaml:"queues"`

	// External tools
	FFmpegPath string `yaml:"ffmpeg_path"`

	// Logging
	LogLevel string `yaml:"log_level"`

	// Debug
	Debug    bool   `yaml:"debug"`
	DebugDir string `yaml:"debug_dir"`
}

// QueueConfig sizes the channels between the stages.
type QueueConfig struct {
	VideoRaw     int `yaml:"video_raw"`
	AudioRaw     int `yaml:"audio_raw"`
	AudioEncoded int `yaml:"audio_encoded"`
}

// Defaults returns a Config with default values.
func Defaults() Config {
	q := recorder.GetQualitySettings(recorder.QualityMedium)
	return Config{
		// Capture
		Source:     string(recorder.SourceScreen),
		Width:      1920,
		Height:     1080,
		FPS:        30,
		CaptureFPS: 60,

		// Encoding
		BitrateMbps: q.BitrateMbps,

		// Audio
		Audio:            ports.AudioLoopback.String(),
		AudioBitrateKbps: q.AudioBitrateKbps,

		// Output
		OutputPath: "capture.mp4",
		FragmentMs: 1000,

		// Timing
		PollIntervalMs: 100,
		DrainTimeoutMs: 10000,
		Queues: QueueConfig{
			VideoRaw:     4,
			AudioRaw:     64,
			AudioEncoded: 256,
		},

		// Logging
		LogLevel: "info",

		// Debug
		DebugDir: "./debug",
	}
}

// LoadFromFile loads configuration from a YAML file. Keys absent from the
// file keep their default values.
func LoadFromFile(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

// Validate checks every field.
func (c Config) Validate() error {
	if err := ValidateOutputPath(c.OutputPath); err != nil {
		return err
	}
	if _, err := recorder.ParseSource(c.Source); err != nil {
		return err
	}
	if _, err := ports.ParseAudioSource(c.Audio); err != nil {
		return err
	}
	if c.Preset != "" {
		if _, err := recorder.ParseQualityPreset(c.Preset); err != nil {
			return err
		}
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error", "quiet":
	default:
		return fmt.Errorf("unknown log_level %q", c.LogLevel)
	}

	switch {
	case c.Display < 0:
		return fmt.Errorf("display must be >= 0, got %d", c.Display)
	case c.Width <= 0 || c.Height <= 0:
		return fmt.Errorf("invalid size %dx%d", c.Width, c.Height)
	case c.Width%2 != 0 || c.Height%2 != 0:
		return fmt.Errorf("size %dx%d must be even", c.Width, c.Height)
	case c.FPS <= 0:
		return fmt.Errorf("fps must be > 0, got %d", c.FPS)
	case c.CaptureFPS != 0 && c.CaptureFPS < c.FPS:
		return fmt.Errorf("capture_fps %d is below fps %d", c.CaptureFPS, c.FPS)
	case c.BitrateMbps <= 0:
		return fmt.Errorf("bitrate_mbps must be > 0, got %d", c.BitrateMbps)
	case c.Encoder < 0:
		return fmt.Errorf("encoder must be >= 0, got %d", c.Encoder)
	case c.AudioBitrateKbps <= 0:
		return fmt.Errorf("audio_bitrate_kbps must be > 0, got %d", c.AudioBitrateKbps)
	case c.DurationSec < 0:
		return fmt.Errorf("duration_sec must be >= 0, got %d", c.DurationSec)
	case c.FragmentMs <= 0 || c.PollIntervalMs <= 0 || c.DrainTimeoutMs <= 0:
		return errors.New("fragment_ms, poll_interval_ms and drain_timeout_ms must be > 0")
	case c.Queues.VideoRaw <= 0 || c.Queues.AudioRaw <= 0 || c.Queues.AudioEncoded <= 0:
		return errors.New("queue sizes must be > 0")
	}
	return nil
}

// ValidateOutputPath requires a .mp4 extension, in any case, and a
// non-empty file stem.
func ValidateOutputPath(p string) error {
	base := filepath.Base(p)
	ext := filepath.Ext(base)
	if !strings.EqualFold(ext, ".mp4") {
		return fmt.Errorf("%w: %q", ErrInvalidOutputPath, p)
	}
	if strings.TrimSuffix(base, ext) == "" {
		return fmt.Errorf("%w: %q has no file name", ErrInvalidOutputPath, p)
	}
	return nil
}

// Duration returns the recording limit. Zero means until stopped.
func (c Config) Duration() time.Duration {
	return time.Duration(c.DurationSec) * time.Second
}

// ToRecorderOptions converts Config to recorder.Options. The Config should
// be validated first. A preset takes precedence over bitrate_mbps and
// audio_bitrate_kbps.
func (c Config) ToRecorderOptions() recorder.Options {
	b := recorder.NewOptionsBuilder()
	source, _ := recorder.ParseSource(c.Source)
	audio, _ := ports.ParseAudioSource(c.Audio)

	debugDir := ""
	if c.Debug {
		debugDir = c.DebugDir
	}

	b.WithDisplay(c.Display).
		WithSource(source).
		WithSize(c.Width, c.Height).
		WithFPS(c.FPS).
		WithCaptureFPS(c.CaptureFPS).
		WithBitrateMbps(c.BitrateMbps).
		WithEncoder(c.Encoder).
		WithAudio(audio).
		WithAudioDevice(c.AudioDevice).
		WithAudioBitrateKbps(c.AudioBitrateKbps).
		WithOutputPath(c.OutputPath).
		WithFragmentDuration(time.Duration(c.FragmentMs) * time.Millisecond).
		WithPollInterval(time.Duration(c.PollIntervalMs) * time.Millisecond).
		WithDrainTimeout(time.Duration(c.DrainTimeoutMs) * time.Millisecond).
		WithQueues(recorder.Queues{
			VideoRaw:     c.Queues.VideoRaw,
			AudioRaw:     c.Queues.AudioRaw,
			AudioEncoded: c.Queues.AudioEncoded,
		}).
		WithFFmpegPath(c.FFmpegPath).
		WithDebugDir(debugDir)

	if c.Preset != "" {
		preset, _ := recorder.ParseQualityPreset(c.Preset)
		b.WithQualityPreset(preset)
	}
	return b.Build()
}
