// Package mux serializes encoded samples from the video and audio drivers
// into one container writer.
package mux

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// DefaultAudioQueue is the capacity of the encoded audio queue.
const DefaultAudioQueue = 64

var (
	// ErrFinalize wraps a container finalize failure. Samples already written stay written.
	ErrFinalize = errors.New("mux: finalize failed")

	// ErrNotStarted is returned when writing before Begin or after Stop.
	ErrNotStarted = errors.New("mux: writer not started")
)

// Stats reports per-track sample counters.
type Stats struct {
	VideoWritten   int64
	AudioWritten   int64
	AudioDropped   int64
	AudioDiscarded int64
}

// TimelineEntry is one written sample in the debug timeline.
type TimelineEntry struct {
	Time     int64 `json:"time"`
	Duration int64 `json:"duration"`
	Size     int   `json:"size"`
	Keyframe bool  `json:"keyframe,omitempty"`
}

// Option configures a Writer.
type Option func(*Writer)

// WithAudioQueue sets the encoded audio queue capacity.
func WithAudioQueue(n int) Option {
	return func(w *Writer) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithDebugSink records the written timeline and saves it on Stop.
func WithDebugSink(sink ports.DebugSink) Option {
	return func(w *Writer) {
		w.sink = sink
	}
}

// Writer owns the container writer and its stream indices.
// All methods are safe for concurrent use.
type Writer struct {
	container  ports.ContainerWriter
	logger     ports.Logger
	sink       ports.DebugSink
	queueSize  int
	videoIndex int
	audioIndex int
	audio      chan ports.EncodedSample

	mu       sync.Mutex
	began    bool
	stopped  atomic.Bool
	timeline map[ports.Track][]TimelineEntry

	videoWritten   atomic.Int64
	audioWritten   atomic.Int64
	audioDropped   atomic.Int64
	audioDiscarded atomic.Int64
}

// New registers the video stream and, when audio is non-nil, the audio
// stream. Formats are the encoded formats produced by the transforms.
func New(container ports.ContainerWriter, video ports.Format, audio *ports.Format, logger ports.Logger, opts ...Option) (*Writer, error) {
	w := &Writer{
		container:  container,
		logger:     logger.WithComponent("mux"),
		queueSize:  DefaultAudioQueue,
		audioIndex: -1,
		timeline:   make(map[ports.Track][]TimelineEntry),
	}
	for _, opt := range opts {
		opt(w)
	}

	idx, err := w.addStream(video)
	if err != nil {
		return nil, fmt.Errorf("add video stream: %w", err)
	}
	w.videoIndex = idx

	if audio != nil {
		idx, err := w.addStream(*audio)
		if err != nil {
			return nil, fmt.Errorf("add audio stream: %w", err)
		}
		w.audioIndex = idx
		w.audio = make(chan ports.EncodedSample, w.queueSize)
	}

	return w, nil
}

func (w *Writer) addStream(format ports.Format) (int, error) {
	idx, err := w.container.AddStream(format)
	if err != nil {
		return 0, err
	}
	if err := w.container.SetInputFormat(idx, format); err != nil {
		return 0, fmt.Errorf("set input format: %w", err)
	}
	w.logger.Debug("Stream %d: %s", idx, format)
	return idx, nil
}

// VideoIndex returns the video stream index.
func (w *Writer) VideoIndex() int {
	return w.videoIndex
}

// AudioIndex returns the audio stream index and whether audio is present.
func (w *Writer) AudioIndex() (int, bool) {
	return w.audioIndex, w.audio != nil
}

// HasAudio reports whether the writer has an audio stream.
func (w *Writer) HasAudio() bool {
	return w.audio != nil
}

// Begin starts writing on the container.
func (w *Writer) Begin() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.began {
		return fmt.Errorf("mux: %w", pipeline.ErrAlreadyStarted)
	}
	if err := w.container.BeginWriting(); err != nil {
		return fmt.Errorf("begin writing: %w", err)
	}
	w.began = true
	return nil
}

// WriteVideoSample writes queued audio, then the video sample.
// It is the video driver's output callback.
func (w *Writer) WriteVideoSample(sample ports.EncodedSample) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.began || w.stopped.Load() {
		return ErrNotStarted
	}
	if err := w.drainAudioLocked(); err != nil {
		return err
	}
	if err := w.container.WriteSample(w.videoIndex, sample); err != nil {
		return fmt.Errorf("write video sample at %d: %w", sample.Time, err)
	}
	w.videoWritten.Add(1)
	w.record(ports.TrackVideo, sample)
	return nil
}

// QueueAudioSample queues an encoded audio sample without blocking.
// It is the audio driver's output callback. A full queue drops the sample;
// without an audio stream the sample is discarded.
func (w *Writer) QueueAudioSample(sample ports.EncodedSample) error {
	if w.audio == nil || w.stopped.Load() {
		w.audioDiscarded.Add(1)
		return nil
	}
	select {
	case w.audio <- sample:
	default:
		n := w.audioDropped.Add(1)
		w.logger.Warn("Audio queue full, dropped sample at %d (%d dropped)", sample.Time, n)
	}
	return nil
}

// DrainAudio writes every queued audio sample in receipt order.
func (w *Writer) DrainAudio() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.began {
		return ErrNotStarted
	}
	return w.drainAudioLocked()
}

func (w *Writer) drainAudioLocked() error {
	if w.audio == nil {
		return nil
	}
	for {
		sample, ok := pipeline.TryNext(w.audio)
		if !ok {
			return nil
		}
		if err := w.container.WriteSample(w.audioIndex, sample); err != nil {
			return fmt.Errorf("write audio sample at %d: %w", sample.Time, err)
		}
		w.audioWritten.Add(1)
		w.record(ports.TrackAudio, sample)
	}
}

// Stop drains the remaining audio and finalizes the container.
// Later calls return nil.
func (w *Writer) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if !w.stopped.CompareAndSwap(false, true) {
		return nil
	}
	if !w.began {
		return nil
	}

	var firstErr error
	if err := w.drainAudioLocked(); err != nil {
		firstErr = err
	}
	if err := w.container.Finalize(); err != nil {
		err = fmt.Errorf("%w: %w", ErrFinalize, err)
		if firstErr == nil {
			firstErr = err
		} else {
			w.logger.Error("%v", err)
		}
	}

	w.saveTimeline()

	st := w.Stats()
	w.logger.Debug("Writer stopped: %d video, %d audio samples", st.VideoWritten, st.AudioWritten)
	return firstErr
}

// Stats returns the sample counters.
func (w *Writer) Stats() Stats {
	return Stats{
		VideoWritten:   w.videoWritten.Load(),
		AudioWritten:   w.audioWritten.Load(),
		AudioDropped:   w.audioDropped.Load(),
		AudioDiscarded: w.audioDiscarded.Load(),
	}
}

func (w *Writer) record(track ports.Track, s ports.EncodedSample) {
	if w.sink == nil || !w.sink.Enabled() {
		return
	}
	w.timeline[track] = append(w.timeline[track], TimelineEntry{
		Time:     s.Time,
		Duration: s.Duration,
		Size:     len(s.Data),
		Keyframe: s.Keyframe,
	})
}

func (w *Writer) saveTimeline() {
	if w.sink == nil || !w.sink.Enabled() {
		return
	}
	for track, entries := range w.timeline {
		data, err := json.MarshalIndent(entries, "", "  ")
		if err != nil {
			w.logger.Warn("Failed to encode %s timeline: %v", track, err)
			continue
		}
		if err := w.sink.SaveTimelineJSON(track, data); err != nil {
			w.logger.Warn("Failed to save %s timeline: %v", track, err)
		}
	}
}
