package ffmpeg

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
)

func TestReader_ProcessExit(t *testing.T) {
	r, err := StartReader(helperCommand("fail"), FixedFramer{Size: 4}, 2, logger.NewNoop())
	require.NoError(t, err)
	defer r.Close()

	var readErr error
	for i := 0; i < 50; i++ {
		_, readErr = r.Read(100 * time.Millisecond)
		if readErr != ErrReadTimeout {
			break
		}
	}
	require.ErrorIs(t, readErr, ErrProcessExited)
	assert.Contains(t, readErr.Error(), "h264_nope")
}

func TestReader_Timeout(t *testing.T) {
	r, err := StartReader(helperCommand("stall"), FixedFramer{Size: 4}, 2, logger.NewNoop())
	require.NoError(t, err)

	start := time.Now()
	_, err = r.Read(20 * time.Millisecond)
	assert.ErrorIs(t, err, ErrReadTimeout)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	assert.NoError(t, r.Close())
	assert.NoError(t, r.Close())
}
