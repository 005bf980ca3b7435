package record

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/clock"
	"github.com/user/deskrec/pkg/mocks"
	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

var nv12 = ports.Format{Track: ports.TrackVideo, Codec: ports.CodecNV12, Width: 64, Height: 48, FrameRate: 30}

// newAnchor returns an anchor whose ticks are media units, so counter
// advances translate one to one into sample times.
func newAnchor(t *testing.T) (*mocks.Counter, *clock.Anchor) {
	t.Helper()
	c := mocks.NewCounter(1_000_000, ports.MediaTimescale)
	a, err := clock.NewAnchor(c)
	require.NoError(t, err)
	return c, a
}

func receive(t *testing.T, ch <-chan ports.RawSample) ports.RawSample {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("no sample received")
		return ports.RawSample{}
	}
}

func waitExit(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("capture loop did not exit")
	}
}

func TestVideoSource_StampsFrames(t *testing.T) {
	counter, anchor := newAnchor(t)
	g := &mocks.VideoGrabber{}
	n := 0
	g.GrabFunc = func(time.Duration) ([]byte, error) {
		n++
		counter.Advance(333_333)
		return []byte{byte(n)}, nil
	}

	src := NewVideoSource(g, nv12, anchor, logger.NewNoop())
	sink := make(chan ports.RawSample, 1)
	require.NoError(t, src.Start(sink))

	first := receive(t, sink)
	second := receive(t, sink)
	require.NoError(t, src.Stop())

	assert.Equal(t, ports.TrackVideo, first.Track)
	assert.Equal(t, []byte{1}, first.Data)
	assert.Equal(t, int64(333_333), first.Time)
	assert.Equal(t, int64(666_666), second.Time)
	assert.False(t, first.Flags.Has(ports.FlagDuplicate))
	assert.True(t, g.OpenCalled)
	assert.Equal(t, nv12, g.Format)
	assert.Equal(t, 1, g.Closed())
}

func TestVideoSource_TimeoutResendsLastFrame(t *testing.T) {
	counter, anchor := newAnchor(t)
	g := &mocks.VideoGrabber{}
	calls := 0
	g.GrabFunc = func(time.Duration) ([]byte, error) {
		calls++
		counter.Advance(1_000_000)
		switch calls {
		case 1:
			return nil, ports.ErrGrabTimeout
		case 2:
			return []byte("frame"), nil
		default:
			return nil, ports.ErrGrabTimeout
		}
	}

	src := NewVideoSource(g, nv12, anchor, logger.NewNoop())
	sink := make(chan ports.RawSample, 1)
	require.NoError(t, src.Start(sink))

	original := receive(t, sink)
	dup := receive(t, sink)
	require.NoError(t, src.Stop())

	assert.Equal(t, int64(2_000_000), original.Time, "timeout before the first frame sends nothing")
	assert.Equal(t, []byte("frame"), dup.Data)
	assert.True(t, dup.Flags.Has(ports.FlagDuplicate))
	assert.Greater(t, dup.Time, original.Time)
	assert.GreaterOrEqual(t, src.Stats().Duplicates, int64(1))
}

func TestVideoSource_DeviceLostIsFatal(t *testing.T) {
	_, anchor := newAnchor(t)
	g := &mocks.VideoGrabber{}
	g.GrabFunc = func(time.Duration) ([]byte, error) {
		return nil, ports.ErrDeviceLost
	}

	src := NewVideoSource(g, nv12, anchor, logger.NewNoop())
	require.NoError(t, src.Start(make(chan ports.RawSample, 1)))
	waitExit(t, src.Done())

	assert.ErrorIs(t, src.Err(), ports.ErrDeviceLost)
	assert.ErrorIs(t, src.Stop(), ports.ErrDeviceLost)
	assert.NoError(t, src.Stop())
	assert.Equal(t, 1, g.Closed())
}

func TestVideoSource_StalledSinkStopsCapture(t *testing.T) {
	_, anchor := newAnchor(t)
	g := &mocks.VideoGrabber{}
	g.GrabFunc = func(time.Duration) ([]byte, error) { return []byte{1}, nil }

	src := NewVideoSource(g, nv12, anchor, logger.NewNoop(), WithPollInterval(20*time.Millisecond))
	require.NoError(t, src.Start(make(chan ports.RawSample)))
	waitExit(t, src.Done())

	assert.ErrorIs(t, src.Err(), ErrSinkStalled)
	assert.Equal(t, 1, g.Closed())
}

func TestVideoSource_StartTwice(t *testing.T) {
	_, anchor := newAnchor(t)
	src := NewVideoSource(&mocks.VideoGrabber{}, nv12, anchor, logger.NewNoop())
	sink := make(chan ports.RawSample, 8)

	require.NoError(t, src.Start(sink))
	assert.ErrorIs(t, src.Start(sink), pipeline.ErrAlreadyStarted)
	assert.NoError(t, src.Stop())
	assert.NoError(t, src.Stop())
}

func TestVideoSource_OpenFailure(t *testing.T) {
	_, anchor := newAnchor(t)
	g := &mocks.VideoGrabber{OpenFunc: func(ports.Format) error { return errors.New("no display") }}
	src := NewVideoSource(g, nv12, anchor, logger.NewNoop())

	assert.Error(t, src.Start(make(chan ports.RawSample, 1)))
	assert.NoError(t, src.Stop())
}

func TestVideoSource_PanicBecomesError(t *testing.T) {
	_, anchor := newAnchor(t)
	g := &mocks.VideoGrabber{}
	g.GrabFunc = func(time.Duration) ([]byte, error) { panic("driver bug") }

	src := NewVideoSource(g, nv12, anchor, logger.NewNoop())
	require.NoError(t, src.Start(make(chan ports.RawSample, 1)))
	waitExit(t, src.Done())

	assert.ErrorIs(t, src.Stop(), pipeline.ErrPanic)
	assert.Equal(t, 1, g.Closed())
}
