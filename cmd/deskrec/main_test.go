package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"

	"github.com/user/deskrec/pkg/config"
)

// parse runs the record flags over args and returns the resulting config.
func parse(t *testing.T, args ...string) (config.Config, error) {
	t.Helper()
	var cfg config.Config
	var loadErr error
	app := &cli.App{
		Name:  "deskrec",
		Flags: recordFlags(),
		Action: func(c *cli.Context) error {
			cfg, loadErr = loadConfig(c)
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"deskrec"}, args...)))
	return cfg, loadErr
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := parse(t)
	require.NoError(t, err)
	assert.Equal(t, config.Defaults(), cfg)
}

func TestLoadConfig_Flags(t *testing.T) {
	cfg, err := parse(t,
		"-d", "1",
		"-o", "rec/demo.MP4",
		"-b", "12",
		"-f", "60",
		"-e", "2",
		"-a", "none",
		"--source", "test",
		"--duration", "5s",
		"--debug",
	)
	require.NoError(t, err)

	assert.Equal(t, 1, cfg.Display)
	assert.Equal(t, "rec/demo.MP4", cfg.OutputPath)
	assert.Equal(t, 12, cfg.BitrateMbps)
	assert.Equal(t, 60, cfg.FPS)
	assert.GreaterOrEqual(t, cfg.CaptureFPS, 60)
	assert.Equal(t, 2, cfg.Encoder)
	assert.Equal(t, "none", cfg.Audio)
	assert.Equal(t, "test", cfg.Source)
	assert.Equal(t, 5, cfg.DurationSec)
	assert.True(t, cfg.Debug)
}

func TestLoadConfig_BitrateBeatsPreset(t *testing.T) {
	cfg, err := parse(t, "--preset", "high", "--bitrate", "5")
	require.NoError(t, err)
	assert.Empty(t, cfg.Preset)
	assert.Equal(t, 5, cfg.ToRecorderOptions().BitrateMbps)

	cfg, err = parse(t, "--preset", "high")
	require.NoError(t, err)
	assert.Equal(t, 16, cfg.ToRecorderOptions().BitrateMbps)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "deskrec.yaml")
	require.NoError(t, os.WriteFile(path, []byte("fps: 24\noutput: file.mp4\n"), 0o644))

	cfg, err := parse(t, "--config", path, "-o", "flag.mp4")
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.FPS)
	assert.Equal(t, "flag.mp4", cfg.OutputPath)
}

func TestLoadConfig_RejectsBadOutput(t *testing.T) {
	for _, out := range []string{".mp4", "mp4", "something", "something.avi"} {
		_, err := parse(t, "-o", out)
		assert.ErrorIs(t, err, config.ErrInvalidOutputPath, out)
	}
}
