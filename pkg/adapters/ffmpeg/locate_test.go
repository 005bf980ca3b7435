package ffmpeg

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocate_CustomPath(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"), 0o755))

	got, err := Locate(path)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}

func TestLocate_CustomPathMissing(t *testing.T) {
	_, err := Locate(filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}

func TestLocate_EnvPathMissing(t *testing.T) {
	t.Setenv("FFMPEG_PATH", filepath.Join(t.TempDir(), "missing"))
	_, err := Locate("")
	assert.ErrorIs(t, err, ErrFFmpegNotFound)
}
