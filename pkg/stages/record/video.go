package record

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/user/deskrec/pkg/clock"
	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// VideoSource captures display frames.
//
// When the grabber has nothing new within the poll interval the last frame
// is sent again with a fresh timestamp, so the pacer always has a candidate.
type VideoSource struct {
	grabber ports.VideoGrabber
	format  ports.Format
	anchor  *clock.Anchor
	logger  ports.Logger
	opts    options

	started atomic.Bool
	worker  *pipeline.Worker
	stats   counters
}

// NewVideoSource creates a video capture source delivering frames in format.
func NewVideoSource(grabber ports.VideoGrabber, format ports.Format, anchor *clock.Anchor, logger ports.Logger, opts ...Option) *VideoSource {
	return &VideoSource{
		grabber: grabber,
		format:  format,
		anchor:  anchor,
		logger:  logger.WithComponent("capture:video"),
		opts:    buildOptions(opts),
		worker:  pipeline.NewWorker("video capture"),
	}
}

// Start opens the grabber and launches the capture goroutine.
func (s *VideoSource) Start(sink chan<- ports.RawSample) error {
	if !s.started.CompareAndSwap(false, true) {
		return fmt.Errorf("video capture: %w", pipeline.ErrAlreadyStarted)
	}
	if err := s.grabber.Open(s.format); err != nil {
		return fmt.Errorf("open video grabber: %w", err)
	}
	s.logger.Debug("Capturing %s, poll %s", s.format, s.opts.poll)
	return s.worker.Go(func(stop <-chan struct{}) error {
		return s.run(stop, sink)
	})
}

// Stop ends the capture loop and joins it.
func (s *VideoSource) Stop() error {
	return s.worker.Stop()
}

// Done is closed when the capture loop has exited.
func (s *VideoSource) Done() <-chan struct{} {
	return s.worker.Done()
}

// Err returns the reason the loop exited on its own.
func (s *VideoSource) Err() error {
	return s.worker.Err()
}

// Stats returns the capture counters.
func (s *VideoSource) Stats() Stats {
	return s.stats.snapshot()
}

func (s *VideoSource) run(stop <-chan struct{}, sink chan<- ports.RawSample) error {
	defer func() {
		if err := s.grabber.Close(); err != nil {
			s.logger.Warn("Failed to close grabber: %v", err)
		}
	}()

	var last []byte
	for {
		if isClosed(stop) {
			return nil
		}

		frame, err := s.grabber.Grab(s.opts.poll)
		var flags ports.SampleFlags
		switch {
		case err == nil:
			last = frame
		case errors.Is(err, ports.ErrGrabTimeout):
			if last == nil {
				continue
			}
			frame = last
			flags = ports.FlagDuplicate
		default:
			s.logger.Error("Video capture failed: %v", err)
			return fmt.Errorf("video capture: %w", err)
		}

		sample := ports.RawSample{
			Track: ports.TrackVideo,
			Time:  s.anchor.Now(),
			Data:  frame,
			Flags: flags,
		}
		stopped, err := s.send(stop, sink, sample)
		if err != nil || stopped {
			return err
		}

		s.stats.captured.Add(1)
		if flags.Has(ports.FlagDuplicate) {
			s.stats.duplicates.Add(1)
		}
	}
}

// send waits at most one poll interval for the sink to take the sample.
func (s *VideoSource) send(stop <-chan struct{}, sink chan<- ports.RawSample, sample ports.RawSample) (stopped bool, err error) {
	select {
	case sink <- sample:
		return false, nil
	default:
	}

	timer := time.NewTimer(s.opts.poll)
	defer timer.Stop()
	select {
	case sink <- sample:
		return false, nil
	case <-stop:
		return true, nil
	case <-timer.C:
		s.logger.Error("Video sink stalled for %s, stopping capture", s.opts.poll)
		return false, fmt.Errorf("video capture: %w", ErrSinkStalled)
	}
}

var _ ports.CaptureSource = (*VideoSource)(nil)
