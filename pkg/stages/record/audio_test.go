package record

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/mocks"
	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// 480 frames at 48 kHz.
const packetDuration = 100_000

func packet(silent bool) ports.AudioPacket {
	p := ports.AudioPacket{Frames: 480, Silent: silent}
	if !silent {
		p.Data = make([]byte, 480*4)
	}
	return p
}

func TestAudioSource_SampleAccurateTimeline(t *testing.T) {
	counter, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	g.GrabFunc = func(time.Duration) (ports.AudioPacket, error) {
		// Jitter well under the drift limit must not move the timeline.
		counter.Advance(packetDuration + 3_000)
		return packet(false), nil
	}

	src := NewAudioSource(g, anchor, logger.NewNoop())
	sink := make(chan ports.RawSample, 16)
	require.NoError(t, src.Start(sink))

	var got []ports.RawSample
	for i := 0; i < 10; i++ {
		got = append(got, receive(t, sink))
	}
	require.NoError(t, src.Stop())

	assert.Equal(t, int64(3_000), got[0].Time)
	for i, s := range got {
		assert.Equal(t, int64(packetDuration), s.Duration)
		assert.Equal(t, ports.TrackAudio, s.Track)
		assert.False(t, s.Flags.Has(ports.FlagDiscontinuity))
		if i > 0 {
			assert.Equal(t, got[i-1].Time+got[i-1].Duration, s.Time)
		}
	}
}

func TestAudioSource_SilenceHasNoPayload(t *testing.T) {
	counter, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	g.GrabFunc = func(time.Duration) (ports.AudioPacket, error) {
		counter.Advance(packetDuration)
		return packet(true), nil
	}

	src := NewAudioSource(g, anchor, logger.NewNoop())
	sink := make(chan ports.RawSample, 4)
	require.NoError(t, src.Start(sink))
	s := receive(t, sink)
	require.NoError(t, src.Stop())

	assert.Nil(t, s.Data)
	assert.True(t, s.Flags.Has(ports.FlagSilent))
	assert.Equal(t, int64(packetDuration), s.Duration)
	assert.GreaterOrEqual(t, src.Stats().Silent, int64(1))
}

func TestAudioSource_ReanchorsOnDrift(t *testing.T) {
	counter, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	calls := 0
	g.GrabFunc = func(time.Duration) (ports.AudioPacket, error) {
		calls++
		if calls == 4 {
			// The device lost 250ms.
			counter.Advance(2_500_000)
		}
		counter.Advance(packetDuration)
		return packet(false), nil
	}

	src := NewAudioSource(g, anchor, logger.NewNoop())
	sink := make(chan ports.RawSample, 16)
	require.NoError(t, src.Start(sink))

	var got []ports.RawSample
	for i := 0; i < 6; i++ {
		got = append(got, receive(t, sink))
	}
	require.NoError(t, src.Stop())

	assert.True(t, got[3].Flags.Has(ports.FlagDiscontinuity))
	assert.Equal(t, int64(2_500_000+packetDuration), got[3].Time-got[2].Time)
	assert.False(t, got[4].Flags.Has(ports.FlagDiscontinuity))
	assert.Equal(t, got[3].Time+packetDuration, got[4].Time)
	assert.Equal(t, int64(1), src.Stats().Discontinuities)
}

func TestAudioSource_FullSinkStopsCapture(t *testing.T) {
	counter, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	g.GrabFunc = func(time.Duration) (ports.AudioPacket, error) {
		counter.Advance(packetDuration)
		return packet(false), nil
	}

	src := NewAudioSource(g, anchor, logger.NewNoop())
	require.NoError(t, src.Start(make(chan ports.RawSample, 2)))
	waitExit(t, src.Done())

	assert.ErrorIs(t, src.Err(), ErrSinkStalled)
	assert.Equal(t, int64(2), src.Stats().Captured)
	assert.Equal(t, 1, g.Closed())
}

func TestAudioSource_TimeoutIsNotAnError(t *testing.T) {
	_, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()

	src := NewAudioSource(g, anchor, logger.NewNoop())
	require.NoError(t, src.Start(make(chan ports.RawSample, 1)))
	time.Sleep(20 * time.Millisecond)

	select {
	case <-src.Done():
		t.Fatal("capture exited on timeouts")
	default:
	}
	assert.NoError(t, src.Stop())
	assert.Greater(t, g.GrabCalls, 1)
}

func TestAudioSource_OpenOnce(t *testing.T) {
	_, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	opens := 0
	g.OpenFunc = func() (ports.Format, error) {
		opens++
		return g.Format, nil
	}

	src := NewAudioSource(g, anchor, logger.NewNoop())
	f, err := src.Open()
	require.NoError(t, err)
	assert.Equal(t, 48000, f.SampleRate)
	assert.Equal(t, ports.TrackAudio, f.Track)

	sink := make(chan ports.RawSample, 1)
	require.NoError(t, src.Start(sink))
	assert.ErrorIs(t, src.Start(sink), pipeline.ErrAlreadyStarted)
	require.NoError(t, src.Stop())
	assert.Equal(t, 1, opens)
}

func TestAudioSource_OpenFailure(t *testing.T) {
	_, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	g.OpenFunc = func() (ports.Format, error) { return ports.Format{}, errors.New("no endpoint") }

	src := NewAudioSource(g, anchor, logger.NewNoop())
	_, err := src.Open()
	assert.Error(t, err)
	assert.Error(t, src.Start(make(chan ports.RawSample, 1)))
}

func TestAudioSource_DeviceLost(t *testing.T) {
	_, anchor := newAnchor(t)
	g := mocks.NewAudioGrabber()
	g.GrabFunc = func(time.Duration) (ports.AudioPacket, error) {
		return ports.AudioPacket{}, ports.ErrDeviceLost
	}

	src := NewAudioSource(g, anchor, logger.NewNoop())
	require.NoError(t, src.Start(make(chan ports.RawSample, 1)))
	waitExit(t, src.Done())

	assert.ErrorIs(t, src.Stop(), ports.ErrDeviceLost)
	assert.NoError(t, src.Stop())
}
