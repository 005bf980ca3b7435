package pace

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/ports"
)

const ms = ports.MediaTimescale / 1000

func newPacer(t *testing.T, fps int, in <-chan ports.RawSample) *Pacer {
	t.Helper()
	p, err := New(fps, in, logger.NewNoop())
	require.NoError(t, err)
	return p
}

func TestNew_InvalidFrameRate(t *testing.T) {
	for _, fps := range []int{0, -30} {
		_, err := New(fps, nil, logger.NewNoop())
		assert.ErrorIs(t, err, ErrInvalidFrameRate)
	}
}

func TestAdmit_FirstFrameAlwaysAdmitted(t *testing.T) {
	p := newPacer(t, 30, nil)
	assert.True(t, p.Admit(123_456_789))
	assert.Equal(t, int64(123_456_789+333_333), p.NextTarget())
}

func TestAdmit_BoundaryIsInclusive(t *testing.T) {
	p := newPacer(t, 10, nil)
	require.True(t, p.Admit(0))
	assert.False(t, p.Admit(999_999))
	assert.True(t, p.Admit(1_000_000))
	assert.Equal(t, int64(2_000_000), p.NextTarget())
}

func TestAdmit_AdvancesFromScheduleNotArrival(t *testing.T) {
	p := newPacer(t, 10, nil)
	require.True(t, p.Admit(0))
	// Late by 40ms: the next target stays on the grid.
	require.True(t, p.Admit(1_400_000))
	assert.Equal(t, int64(2_000_000), p.NextTarget())
}

func TestAdmit_NoRoundingDrift(t *testing.T) {
	// 1e7/30 is not an integer; a rounded period would drift 1 unit per 3 frames.
	p := newPacer(t, 30, nil)
	require.True(t, p.Admit(0))
	for k := 1; k <= 3000; k++ {
		require.True(t, p.Admit(int64(k)*ports.MediaTimescale/30))
	}
	assert.Equal(t, int64(3001)*ports.MediaTimescale/30, p.NextTarget())
}

func TestAdmit_BurstCollapsesToOneFrame(t *testing.T) {
	p := newPacer(t, 30, nil)
	require.True(t, p.Admit(0))
	admitted := 0
	for i := 0; i < 20; i++ {
		if p.Admit(int64(340_000 + i*1_000)) {
			admitted++
		}
	}
	assert.Equal(t, 1, admitted)
	assert.Equal(t, Stats{Admitted: 2, Dropped: 19}, p.Stats())
}

// jitterFeed returns arrival times for a feed at 33ms +/- 5ms for the given duration.
func jitterFeed(seed int64, duration int64) []int64 {
	r := rand.New(rand.NewSource(seed))
	var out []int64
	t := int64(5 * ms)
	for t < duration {
		out = append(out, t)
		t += 33*ms + (r.Int63n(10*ms+1) - 5*ms)
	}
	return out
}

func TestAdmit_JitteredFeedMatchesTargetRate(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		p := newPacer(t, 30, nil)
		admitted := 0
		for _, ts := range jitterFeed(seed, 10*ports.MediaTimescale) {
			if p.Admit(ts) {
				admitted++
			}
		}
		assert.GreaterOrEqual(t, admitted, 295, "seed %d", seed)
		assert.LessOrEqual(t, admitted, 305, "seed %d", seed)
	}
}

func TestAdmit_NeverEarly(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		r := rand.New(rand.NewSource(seed))
		fps := 1 + r.Intn(60)
		p := newPacer(t, fps, nil)

		var (
			admitted []int64
			ts       = r.Int63n(ports.MediaTimescale)
		)
		for i := 0; i < 2000; i++ {
			// Bursty arrivals: mostly small gaps with occasional stalls.
			gap := r.Int63n(20 * ms)
			if r.Intn(20) == 0 {
				gap = r.Int63n(300 * ms)
			}
			ts += gap
			if p.Admit(ts) {
				admitted = append(admitted, ts)
			}
		}

		require.NotEmpty(t, admitted)
		first := admitted[0]
		for k := 1; k < len(admitted); k++ {
			require.GreaterOrEqual(t, admitted[k], admitted[k-1], "seed %d frame %d", seed, k)
			slot := first + int64(k)*ports.MediaTimescale/int64(fps)
			require.GreaterOrEqual(t, admitted[k], slot, "seed %d frame %d admitted before its slot", seed, k)
		}
	}
}

func TestNext_StampsSlotDuration(t *testing.T) {
	in := make(chan ports.RawSample, 64)
	p := newPacer(t, 30, in)

	for i := 0; i < 30; i++ {
		in <- ports.RawSample{Track: ports.TrackVideo, Time: int64(i) * 333_334}
	}
	close(in)

	done := make(chan struct{})
	var total int64
	n := 0
	for {
		s, ok := p.Next(done)
		if !ok {
			break
		}
		assert.Contains(t, []int64{333_333, 333_334}, s.Duration)
		total += s.Duration
		n++
	}
	assert.Equal(t, 30, n)
	assert.Equal(t, int64(30)*ports.MediaTimescale/30, total)
}

func TestNext_SkipsRejectedFrames(t *testing.T) {
	in := make(chan ports.RawSample, 4)
	p := newPacer(t, 10, in)
	in <- ports.RawSample{Time: 0}
	in <- ports.RawSample{Time: 500_000, Data: []byte{1}}
	in <- ports.RawSample{Time: 1_100_000, Data: []byte{2}}
	close(in)

	done := make(chan struct{})
	s, ok := p.Next(done)
	require.True(t, ok)
	assert.Equal(t, int64(0), s.Time)

	s, ok = p.Next(done)
	require.True(t, ok)
	assert.Equal(t, []byte{2}, s.Data)

	_, ok = p.Next(done)
	assert.False(t, ok)
}

func TestNext_ReturnsOnDone(t *testing.T) {
	p := newPacer(t, 30, make(chan ports.RawSample))
	done := make(chan struct{})
	close(done)
	_, ok := p.Next(done)
	assert.False(t, ok)
}
