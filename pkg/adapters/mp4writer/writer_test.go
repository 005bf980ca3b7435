package mp4writer

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/mocks"
	"github.com/user/deskrec/pkg/ports"
)

const (
	testWidth  = 320
	testHeight = 240
	frame30    = ports.MediaTimescale / 30
)

var (
	videoFormat = ports.Format{Track: ports.TrackVideo, Codec: ports.CodecH264, Width: testWidth, Height: testHeight, FrameRate: 30}
	audioFormat = ports.Format{Track: ports.TrackAudio, Codec: ports.CodecAAC, SampleRate: 48000, Channels: 2}
)

func newWriter(t *testing.T, buf *bytes.Buffer, withAudio bool) (*Writer, int, int) {
	t.Helper()
	w := New(buf, Options{}, logger.NewNoop())
	v, err := w.AddStream(videoFormat)
	require.NoError(t, err)
	a := -1
	if withAudio {
		a, err = w.AddStream(audioFormat)
		require.NoError(t, err)
	}
	require.NoError(t, w.BeginWriting())
	return w, v, a
}

func videoSample(i int, gop int) ports.EncodedSample {
	key := i%gop == 0
	return ports.EncodedSample{
		Track:    ports.TrackVideo,
		Time:     int64(i) * frame30,
		Duration: frame30,
		Data:     mocks.H264AccessUnit(testWidth, testHeight, key, 200),
		Keyframe: key,
	}
}

// aacFrame is 1024 samples at 48 kHz.
const aacFrame = int64(1024) * ports.MediaTimescale / 48000

func audioSample(i int) ports.EncodedSample {
	return ports.EncodedSample{
		Track:    ports.TrackAudio,
		Time:     int64(i) * aacFrame,
		Duration: aacFrame,
		Data:     bytes.Repeat([]byte{0x21}, 40),
		Keyframe: true,
	}
}

func TestWriter_VideoOnly(t *testing.T) {
	var buf bytes.Buffer
	w, v, _ := newWriter(t, &buf, false)

	for i := 0; i < 90; i++ {
		require.NoError(t, w.WriteSample(v, videoSample(i, 30)))
	}
	require.NoError(t, w.Finalize())

	info, err := Probe(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)

	require.Len(t, info.Tracks, 1)
	vt := info.Tracks[0]
	assert.Equal(t, "video", vt.Kind)
	assert.Equal(t, "avc1", vt.Codec)
	assert.Equal(t, uint32(videoTimescale), vt.Timescale)
	assert.Equal(t, testWidth, vt.Width)
	assert.Equal(t, testHeight, vt.Height)
	assert.Equal(t, 90, vt.Samples)
	assert.Equal(t, 3, vt.Keyframes)
	assert.InDelta(t, 3*time.Second, vt.Duration, float64(time.Millisecond))
	assert.Equal(t, 3, info.Fragments, "one fragment per GOP")
}

func TestWriter_WithAudio(t *testing.T) {
	var buf bytes.Buffer
	w, v, a := newWriter(t, &buf, true)

	// Audio arrives first and is held until the first keyframe.
	ai := 0
	for i := 0; i < 60; i++ {
		vs := videoSample(i, 30)
		for audioSample(ai).Time <= vs.Time {
			require.NoError(t, w.WriteSample(a, audioSample(ai)))
			ai++
		}
		require.NoError(t, w.WriteSample(v, vs))
	}
	require.NoError(t, w.Finalize())

	info, err := Probe(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 1, info.Count("video"))
	assert.Equal(t, 1, info.Count("audio"))

	at, ok := info.Track("audio")
	require.True(t, ok)
	assert.Equal(t, 48000, at.SampleRate)
	assert.Equal(t, ai, at.Samples)
	assert.Equal(t, time.Duration(0), at.Start)

	vt, _ := info.Track("video")
	assert.Equal(t, 60, vt.Samples)
	assert.InDelta(t, 2*time.Second, vt.Duration, float64(time.Millisecond))
}

func TestWriter_DropsVideoBeforeFirstKeyframe(t *testing.T) {
	var buf bytes.Buffer
	w, v, _ := newWriter(t, &buf, false)

	for i := 1; i < 35; i++ {
		require.NoError(t, w.WriteSample(v, videoSample(i, 30)))
	}
	require.NoError(t, w.Finalize())

	info, err := Probe(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	vt, _ := info.Track("video")
	assert.Equal(t, 5, vt.Samples, "frames 30..34 remain")
	assert.Equal(t, 1, vt.Keyframes)
	assert.InDelta(t, time.Second, vt.Start, float64(time.Millisecond))
}

func TestWriter_DurationFromNextSample(t *testing.T) {
	var buf bytes.Buffer
	w, v, _ := newWriter(t, &buf, false)

	// A late frame stretches the previous sample, leaving no gap in decode time.
	times := []int64{0, frame30, 3 * frame30, 4 * frame30}
	for i, ts := range times {
		s := videoSample(i, 30)
		s.Time = ts
		require.NoError(t, w.WriteSample(v, s))
	}
	require.NoError(t, w.Finalize())

	info, err := Probe(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	vt, _ := info.Track("video")
	assert.Equal(t, 4, vt.Samples)
	assert.InDelta(t, 5*frame30*100, vt.Duration, float64(time.Millisecond))
}

func TestWriter_NoKeyframeFailsFinalize(t *testing.T) {
	var buf bytes.Buffer
	w, v, _ := newWriter(t, &buf, false)

	require.NoError(t, w.WriteSample(v, videoSample(1, 30)))
	assert.ErrorIs(t, w.Finalize(), ErrNoCodecConfig)
	assert.Zero(t, buf.Len())
}

func TestWriter_FinalizeTwice(t *testing.T) {
	var buf bytes.Buffer
	w, v, _ := newWriter(t, &buf, false)
	require.NoError(t, w.WriteSample(v, videoSample(0, 30)))
	require.NoError(t, w.Finalize())
	n := buf.Len()

	require.NoError(t, w.Finalize())
	assert.Equal(t, n, buf.Len())
	assert.Error(t, w.WriteSample(v, videoSample(1, 30)))
}

func TestWriter_StreamValidation(t *testing.T) {
	w := New(&bytes.Buffer{}, Options{}, logger.NewNoop())

	_, err := w.AddStream(ports.Format{Track: ports.TrackVideo, Codec: ports.CodecNV12})
	assert.ErrorIs(t, err, ErrUnsupportedCodec)

	assert.Error(t, w.BeginWriting(), "video stream required")

	v, err := w.AddStream(videoFormat)
	require.NoError(t, err)
	assert.ErrorIs(t, w.SetInputFormat(v, audioFormat), ErrUnsupportedCodec)
	assert.ErrorIs(t, w.SetInputFormat(7, videoFormat), ErrStreamIndex)
	require.NoError(t, w.SetInputFormat(v, videoFormat))

	require.NoError(t, w.BeginWriting())
	_, err = w.AddStream(audioFormat)
	assert.Error(t, err)
	assert.ErrorIs(t, w.WriteSample(3, videoSample(0, 30)), ErrStreamIndex)
}

func TestProbe_RejectsGarbage(t *testing.T) {
	_, err := Probe(bytes.NewReader([]byte("not an mp4 file at all")))
	assert.Error(t, err)
}
