package record

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/deskrec/pkg/clock"
	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// AudioSource captures PCM packets.
//
// Timestamps follow a sample-accurate timeline: each packet starts where the
// previous one ended. The timeline is re-anchored to the counter, and the
// sample marked FlagDiscontinuity, when the two drift apart by more than
// the drift limit.
type AudioSource struct {
	grabber ports.AudioGrabber
	anchor  *clock.Anchor
	logger  ports.Logger
	opts    options

	openOnce sync.Once
	format   ports.Format
	openErr  error

	started atomic.Bool
	worker  *pipeline.Worker
	stats   counters
}

// NewAudioSource creates an audio capture source.
func NewAudioSource(grabber ports.AudioGrabber, anchor *clock.Anchor, logger ports.Logger, opts ...Option) *AudioSource {
	return &AudioSource{
		grabber: grabber,
		anchor:  anchor,
		logger:  logger.WithComponent("capture:audio"),
		opts:    buildOptions(opts),
		worker:  pipeline.NewWorker("audio capture"),
	}
}

// Open initialises the device and returns its PCM format. It is called by
// Start if needed; callers use it earlier to configure the encoder.
func (s *AudioSource) Open() (ports.Format, error) {
	s.openOnce.Do(func() {
		f, err := s.grabber.Open()
		if err != nil {
			s.openErr = fmt.Errorf("open audio grabber: %w", err)
			return
		}
		if f.SampleRate <= 0 || f.Channels <= 0 {
			s.grabber.Close()
			s.openErr = fmt.Errorf("open audio grabber: invalid format %s", f)
			return
		}
		f.Track = ports.TrackAudio
		s.format = f
	})
	return s.format, s.openErr
}

// Close releases a device that was opened but never started.
func (s *AudioSource) Close() error {
	if s.started.Load() || s.openErr != nil {
		return nil
	}
	return s.grabber.Close()
}

// Start launches the capture goroutine.
func (s *AudioSource) Start(sink chan<- ports.RawSample) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("audio capture: %w", pipeline.ErrAlreadyStarted)
	}
	format, err := s.Open()
	if err != nil {
		return err
	}
	s.logger.Debug("Capturing %s, poll %s", format, s.opts.poll)
	return s.worker.Go(func(stop <-chan struct{}) error {
		return s.run(stop, sink, format)
	})
}

// Stop ends the capture loop and joins it.
func (s *AudioSource) Stop() error {
	return s.worker.Stop()
}

// Done is closed when the capture loop has exited.
func (s *AudioSource) Done() <-chan struct{} {
	return s.worker.Done()
}

// Err returns the reason the loop exited on its own.
func (s *AudioSource) Err() error {
	return s.worker.Err()
}

// Stats returns the capture counters.
func (s *AudioSource) Stats() Stats {
	return s.stats.snapshot()
}

func (s *AudioSource) run(stop <-chan struct{}, sink chan<- ports.RawSample, format ports.Format) error {
	defer func() {
		if err := s.grabber.Close(); err != nil {
			s.logger.Warn("Failed to close grabber: %v", err)
		}
	}()

	driftLimit := s.opts.driftLimit.Nanoseconds() / 100
	var (
		next     int64
		anchored bool
	)
	for {
		if isClosed(stop) {
			return nil
		}

		pkt, err := s.grabber.Grab(s.opts.poll)
		if errors.Is(err, ports.ErrGrabTimeout) {
			continue
		}
		if err != nil {
			s.logger.Error("Audio capture failed: %v", err)
			return fmt.Errorf("audio capture: %w", err)
		}
		if pkt.Frames <= 0 {
			continue
		}

		duration := format.FramesToDuration(pkt.Frames)
		start := s.anchor.Now() - duration
		if start < 0 {
			start = 0
		}

		var flags ports.SampleFlags
		switch {
		case !anchored:
			next = start
			anchored = true
		case abs(start-next) > driftLimit:
			s.logger.Debug("Audio timeline drifted by %s, re-anchoring", time.Duration(start-next)*100)
			next = start
			flags |= ports.FlagDiscontinuity
		}

		sample := ports.RawSample{
			Track:    ports.TrackAudio,
			Time:     next,
			Duration: duration,
			Data:     pkt.Data,
			Flags:    flags,
		}
		if pkt.Silent {
			sample.Data = nil
			sample.Flags |= ports.FlagSilent
		}
		next += duration

		select {
		case sink <- sample:
		default:
			s.logger.Error("Audio sink full, stopping capture")
			return fmt.Errorf("audio capture: %w", ErrSinkStalled)
		}

		s.stats.captured.Add(1)
		if sample.Flags.Has(ports.FlagSilent) {
			s.stats.silent.Add(1)
		}
		if sample.Flags.Has(ports.FlagDiscontinuity) {
			s.stats.discontinuities.Add(1)
		}
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}

var _ ports.CaptureSource = (*AudioSource)(nil)
