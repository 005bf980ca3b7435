package encode

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/mocks"
	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

var videoFormat = ports.Format{
	Track:     ports.TrackVideo,
	Codec:     ports.CodecNV12,
	Width:     320,
	Height:    240,
	FrameRate: 30,
}

// collector records delivered samples.
type collector struct {
	mu      sync.Mutex
	samples []ports.EncodedSample
}

func (c *collector) output(s ports.EncodedSample) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, s)
	return nil
}

func (c *collector) times() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int64, len(c.samples))
	for i, s := range c.samples {
		out[i] = s.Time
	}
	return out
}

func feed(n int) <-chan ports.RawSample {
	ch := make(chan ports.RawSample, n)
	for i := 0; i < n; i++ {
		ch <- ports.RawSample{Track: ports.TrackVideo, Time: int64(i) * 333_333, Duration: 333_333}
	}
	close(ch)
	return ch
}

func waitDone(t *testing.T, d *Driver) {
	t.Helper()
	select {
	case <-d.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("driver did not exit")
	}
}

func TestDriver_DrainsAfterEndOfInput(t *testing.T) {
	for _, latency := range []int{0, 1, 4} {
		tr := mocks.NewH264Transform(videoFormat, 1_000_000)
		tr.Latency = latency
		c := &collector{}

		d := NewDriver("video", tr, pipeline.FromChannel(feed(20)), c.output, logger.NewNoop())
		require.NoError(t, d.Start())
		waitDone(t, d)

		require.NoError(t, d.Stop())
		assert.Equal(t, StateStopped, d.State())
		assert.Len(t, c.samples, 20, "latency %d", latency)
		assert.Equal(t, 1, tr.DrainCalls)
		assert.Equal(t, 1, tr.Closed())
		assert.Equal(t, Stats{Inputs: 20, Outputs: 20}, d.Stats())
	}
}

func TestDriver_PreservesOrder(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	tr.Latency = 3
	c := &collector{}

	d := NewDriver("video", tr, pipeline.FromChannel(feed(50)), c.output, logger.NewNoop())
	require.NoError(t, d.Start())
	waitDone(t, d)
	require.NoError(t, d.Stop())

	times := c.times()
	require.Len(t, times, 50)
	for i := 1; i < len(times); i++ {
		assert.Greater(t, times[i], times[i-1])
	}
}

func TestDriver_NoOutputAfterNeedMoreInputWhileDraining(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	tr.Latency = 2
	c := &collector{}

	outputsAtDrain := -1
	tr.DrainFunc = func() error {
		c.mu.Lock()
		outputsAtDrain = len(c.samples)
		c.mu.Unlock()
		return nil
	}
	// With DrainFunc set the mock keeps its held samples; they must never appear.
	d := NewDriver("video", tr, pipeline.FromChannel(feed(10)), c.output, logger.NewNoop())
	require.NoError(t, d.Start())
	waitDone(t, d)
	require.NoError(t, d.Stop())

	assert.LessOrEqual(t, outputsAtDrain, 10)
	assert.Len(t, c.samples, outputsAtDrain)
}

func TestDriver_DrainCompleteEvent(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	tr.SignalDrainComplete = true
	c := &collector{}

	d := NewDriver("video", tr, pipeline.FromChannel(feed(5)), c.output, logger.NewNoop())
	require.NoError(t, d.Start())
	waitDone(t, d)

	assert.NoError(t, d.Stop())
	assert.Len(t, c.samples, 5)
}

func TestDriver_SecondStartFails(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	d := NewDriver("video", tr, pipeline.FromChannel(make(chan ports.RawSample)), (&collector{}).output, logger.NewNoop())

	require.NoError(t, d.Start())
	assert.ErrorIs(t, d.Start(), pipeline.ErrAlreadyStarted)
	assert.NoError(t, d.Stop())
}

func TestDriver_StopIsIdempotent(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	d := NewDriver("video", tr, pipeline.FromChannel(make(chan ports.RawSample)), (&collector{}).output, logger.NewNoop())

	require.NoError(t, d.Start())
	assert.NoError(t, d.Stop())
	assert.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())
	assert.Equal(t, 1, tr.Closed())
}

func TestDriver_StopBeforeStart(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	d := NewDriver("video", tr, pipeline.FromChannel(make(chan ports.RawSample)), (&collector{}).output, logger.NewNoop())

	assert.NoError(t, d.Stop())
	assert.Equal(t, StateStopped, d.State())
	assert.ErrorIs(t, d.Start(), pipeline.ErrAlreadyStarted)
}

func TestDriver_StopTriggersDrain(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	tr.Latency = 2
	c := &collector{}

	// The input never ends on its own.
	in := make(chan ports.RawSample, 3)
	for i := 0; i < 3; i++ {
		in <- ports.RawSample{Time: int64(i)}
	}

	d := NewDriver("video", tr, pipeline.FromChannel(in), c.output, logger.NewNoop())
	require.NoError(t, d.Start())

	require.Eventually(t, func() bool { return tr.Inputs() == 3 }, time.Second, time.Millisecond)
	require.NoError(t, d.Stop())

	assert.Equal(t, 1, tr.DrainCalls)
	assert.Len(t, c.samples, 3)
}

func TestDriver_BeginFailureClosesTransform(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	tr.BeginFunc = func() error { return errors.New("no device") }
	d := NewDriver("video", tr, pipeline.FromChannel(feed(1)), (&collector{}).output, logger.NewNoop())

	assert.Error(t, d.Start())
	assert.Equal(t, 1, tr.Closed())
	assert.Equal(t, StateStopped, d.State())
}

func TestDriver_TransformErrorIsFatal(t *testing.T) {
	boom := errors.New("hardware failure")
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	tr.ProcessOutputFunc = func() (ports.EncodedSample, error) {
		return ports.EncodedSample{}, boom
	}

	d := NewDriver("video", tr, pipeline.FromChannel(feed(3)), (&collector{}).output, logger.NewNoop())
	require.NoError(t, d.Start())
	waitDone(t, d)

	assert.ErrorIs(t, d.Err(), boom)
	assert.ErrorIs(t, d.Stop(), boom)
	assert.NoError(t, d.Stop())
	assert.Equal(t, 1, tr.Closed())
}

func TestDriver_OutputErrorIsFatal(t *testing.T) {
	boom := errors.New("writer gone")
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	d := NewDriver("video", tr, pipeline.FromChannel(feed(3)), func(ports.EncodedSample) error { return boom }, logger.NewNoop())

	require.NoError(t, d.Start())
	waitDone(t, d)
	assert.ErrorIs(t, d.Stop(), boom)
}

func TestDriver_PanicBecomesError(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	d := NewDriver("video", tr, pipeline.FromChannel(feed(3)), func(ports.EncodedSample) error { panic("bad sample") }, logger.NewNoop())

	require.NoError(t, d.Start())
	waitDone(t, d)
	assert.ErrorIs(t, d.Stop(), pipeline.ErrPanic)
	assert.Equal(t, 1, tr.Closed())
	assert.Equal(t, StateStopped, d.State())
}

func TestDriver_DrainTimeout(t *testing.T) {
	tr := mocks.NewH264Transform(videoFormat, 1_000_000)
	draining := false
	tr.NextEventFunc = func(ctx context.Context) (ports.TransformEvent, error) {
		if draining {
			<-ctx.Done()
			return 0, ctx.Err()
		}
		return ports.EventNeedInput, nil
	}
	tr.DrainFunc = func() error {
		draining = true
		return nil
	}

	d := NewDriver("video", tr, pipeline.FromChannel(feed(0)), (&collector{}).output, logger.NewNoop(),
		WithDrainTimeout(50*time.Millisecond))
	require.NoError(t, d.Start())
	waitDone(t, d)

	assert.ErrorIs(t, d.Stop(), ErrDrainTimeout)
	assert.Equal(t, 1, tr.Closed())
}

// eagerTransform asks for input even when its queue is full, so the driver
// sees ErrNotAccepting and must hold the rejected sample.
type eagerTransform struct {
	mocks.Transform

	mu       sync.Mutex
	queue    []ports.RawSample
	capacity int
	events   int
	draining bool
}

func (e *eagerTransform) NextEvent(ctx context.Context) (ports.TransformEvent, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events++
	switch {
	case e.draining:
		return ports.EventHaveOutput, nil
	case len(e.queue) < e.capacity || e.events%2 == 0:
		return ports.EventNeedInput, nil
	default:
		return ports.EventHaveOutput, nil
	}
}

func (e *eagerTransform) ProcessInput(s ports.RawSample) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) >= e.capacity {
		return ports.ErrNotAccepting
	}
	e.queue = append(e.queue, s)
	return nil
}

func (e *eagerTransform) ProcessOutput() (ports.EncodedSample, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.queue) == 0 {
		return ports.EncodedSample{}, ports.ErrNeedMoreInput
	}
	s := e.queue[0]
	e.queue = e.queue[1:]
	return ports.EncodedSample{Track: s.Track, Time: s.Time, Duration: s.Duration, Data: []byte{1}}, nil
}

func (e *eagerTransform) Drain() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.draining = true
	return nil
}

func TestDriver_NotAcceptingHoldsSample(t *testing.T) {
	tr := &eagerTransform{capacity: 1}
	c := &collector{}

	d := NewDriver("video", tr, pipeline.FromChannel(feed(30)), c.output, logger.NewNoop())
	require.NoError(t, d.Start())
	waitDone(t, d)
	require.NoError(t, d.Stop())

	st := d.Stats()
	assert.Greater(t, st.NotAccepting, int64(0))
	assert.Equal(t, int64(0), st.DroppedPending)
	assert.Equal(t, int64(30), st.Inputs)

	times := c.times()
	require.Len(t, times, 30)
	for i, ts := range times {
		assert.Equal(t, int64(i)*333_333, ts)
	}
}
