package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/ports"
	"github.com/user/deskrec/pkg/recorder"
)

func TestDefaultsAreValid(t *testing.T) {
	require.NoError(t, Defaults().Validate())
}

func TestLoadFromFile_OverlaysDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskrec.yaml")
	yaml := `
display: 1
output: rec/meeting.mp4
fps: 60
bitrate_mbps: 12
audio: microphone
audio_device: "USB Mic"
queues:
  video_raw: 8
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	cfg, err := LoadFromFile(path)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Display)
	assert.Equal(t, "rec/meeting.mp4", cfg.OutputPath)
	assert.Equal(t, 60, cfg.FPS)
	assert.Equal(t, 12, cfg.BitrateMbps)
	assert.Equal(t, "microphone", cfg.Audio)
	assert.Equal(t, "USB Mic", cfg.AudioDevice)
	assert.Equal(t, 8, cfg.Queues.VideoRaw)

	// Untouched keys keep their defaults.
	assert.Equal(t, 1920, cfg.Width)
	assert.Equal(t, 64, cfg.Queues.AudioRaw)
	assert.Equal(t, 100, cfg.PollIntervalMs)
}

func TestLoadFromFile_Errors(t *testing.T) {
	_, err := LoadFromFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: [30"), 0o644))
	_, err = LoadFromFile(path)
	assert.Error(t, err)
}

func TestValidateOutputPath(t *testing.T) {
	valid := []string{"capture.mp4", "out/capture.MP4", "a.Mp4", filepath.Join("dir", "x.y.mp4")}
	for _, p := range valid {
		assert.NoError(t, ValidateOutputPath(p), p)
	}

	invalid := []string{".mp4", "mp4", "something", "something.avi", "", "dir/.mp4"}
	for _, p := range invalid {
		assert.ErrorIs(t, ValidateOutputPath(p), ErrInvalidOutputPath, p)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad output", func(c *Config) { c.OutputPath = "out.avi" }},
		{"bad source", func(c *Config) { c.Source = "camera" }},
		{"bad audio", func(c *Config) { c.Audio = "speakers" }},
		{"bad preset", func(c *Config) { c.Preset = "ultra" }},
		{"bad log level", func(c *Config) { c.LogLevel = "verbose" }},
		{"negative display", func(c *Config) { c.Display = -1 }},
		{"odd width", func(c *Config) { c.Width = 1279 }},
		{"zero fps", func(c *Config) { c.FPS = 0 }},
		{"capture below fps", func(c *Config) { c.CaptureFPS = 15 }},
		{"zero bitrate", func(c *Config) { c.BitrateMbps = 0 }},
		{"negative encoder", func(c *Config) { c.Encoder = -1 }},
		{"zero audio bitrate", func(c *Config) { c.AudioBitrateKbps = 0 }},
		{"negative duration", func(c *Config) { c.DurationSec = -5 }},
		{"zero poll", func(c *Config) { c.PollIntervalMs = 0 }},
		{"zero queue", func(c *Config) { c.Queues.AudioEncoded = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestToRecorderOptions(t *testing.T) {
	cfg := Defaults()
	cfg.Display = 2
	cfg.Source = "test"
	cfg.Preset = "high"
	cfg.BitrateMbps = 3
	cfg.Audio = "none"
	cfg.FragmentMs = 500
	cfg.Debug = true
	cfg.DebugDir = "dbg"

	o := cfg.ToRecorderOptions()
	assert.Equal(t, 2, o.Display)
	assert.Equal(t, recorder.SourceTest, o.Source)
	assert.Equal(t, 16, o.BitrateMbps)
	assert.Equal(t, 192, o.AudioBitrateKbps)
	assert.Equal(t, ports.AudioNone, o.Audio)
	assert.Equal(t, 500*time.Millisecond, o.FragmentDuration)
	assert.Equal(t, 100*time.Millisecond, o.PollInterval)
	assert.Equal(t, 10*time.Second, o.DrainTimeout)
	assert.Equal(t, "dbg", o.DebugDir)
	assert.NoError(t, o.Validate())

	cfg.Debug = false
	cfg.Preset = ""
	o = cfg.ToRecorderOptions()
	assert.Empty(t, o.DebugDir)
	assert.Equal(t, 3, o.BitrateMbps)
}

func TestDuration(t *testing.T) {
	cfg := Defaults()
	assert.Zero(t, cfg.Duration())
	cfg.DurationSec = 5
	assert.Equal(t, 5*time.Second, cfg.Duration())
}
