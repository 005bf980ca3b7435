package procstats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
)

var spin int

func TestSampler(t *testing.T) {
	s, err := New(10*time.Millisecond, logger.NewNoop())
	require.NoError(t, err)
	require.NoError(t, s.Start())

	// Burn a little CPU so there is something to measure.
	deadline := time.Now().Add(60 * time.Millisecond)
	for time.Now().Before(deadline) {
		spin++
	}

	stats := s.Stop()
	assert.Greater(t, stats.Samples, 1)
	assert.Greater(t, stats.PeakRSS, uint64(0))
	assert.GreaterOrEqual(t, stats.PeakCPU, stats.AverageCPU)

	assert.Equal(t, stats, s.Stop(), "a second Stop takes no further samples")
}
