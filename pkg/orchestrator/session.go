// Package orchestrator owns a recording session: it starts the writer, the
// transform drivers and the capture sources in order, watches them for fatal
// exits and tears everything down in reverse.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/ideamans/go-l10n"

	"github.com/user/deskrec/pkg/ports"
	"github.com/user/deskrec/pkg/stages/encode"
	"github.com/user/deskrec/pkg/stages/mux"
	"github.com/user/deskrec/pkg/stages/pace"
	"github.com/user/deskrec/pkg/stages/record"
)

// ErrSessionUsed is returned by Start on a session that was already started.
var ErrSessionUsed = errors.New("orchestrator: session already used")

// Config contains the session timing knobs.
type Config struct {
	// DrainGrace is how long Stop waits for the drivers to flush on their own
	// before stopping them.
	DrainGrace time.Duration
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		DrainGrace: 3 * time.Second,
	}
}

// Pipeline is one track: a capture source feeding a raw channel that a
// driver consumes. Pacer is set for video only.
type Pipeline struct {
	Capture ports.CaptureSource
	Raw     chan ports.RawSample
	Pacer   *pace.Pacer
	Driver  *encode.Driver

	closeOnce sync.Once
}

func (p *Pipeline) closeRaw() {
	p.closeOnce.Do(func() { close(p.Raw) })
}

// TrackResult holds the counters of one track.
type TrackResult struct {
	Capture record.Stats
	Pacer   pace.Stats
	Driver  encode.Stats
}

// Result contains the results of a session for summary generation.
type Result struct {
	SessionID string
	StartedAt time.Time
	Duration  time.Duration

	Video  TrackResult
	Audio  *TrackResult
	Writer mux.Stats
}

// stageSet records which parts were started so teardown touches only those.
type stageSet struct {
	writer       bool
	videoDriver  bool
	audioDriver  bool
	videoCapture bool
	audioCapture bool
}

// Session sequences one recording. It is not reusable.
type Session struct {
	id     string
	cfg    Config
	writer *mux.Writer
	video  *Pipeline
	audio  *Pipeline
	logger ports.Logger

	used      atomic.Bool
	started   stageSet
	startedAt time.Time

	stopping chan struct{}
	watchers sync.WaitGroup

	done     chan struct{}
	doneOnce sync.Once
	mu       sync.Mutex
	fatal    error

	stopOnce sync.Once
	result   Result
	stopErr  error
}

// New creates a session. audio may be nil for a video-only recording.
func New(cfg Config, writer *mux.Writer, video *Pipeline, audio *Pipeline, logger ports.Logger) *Session {
	if cfg.DrainGrace <= 0 {
		cfg.DrainGrace = DefaultConfig().DrainGrace
	}
	id := uuid.NewString()
	return &Session{
		id:       id,
		cfg:      cfg,
		writer:   writer,
		video:    video,
		audio:    audio,
		logger:   logger.WithComponent("session:" + id[:8]),
		stopping: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// Start begins the writer, then the drivers, then the captures. If a step
// fails the parts already started are torn down and the error is returned.
func (s *Session) Start(ctx context.Context) error {
	if !s.used.CompareAndSwap(false, true) {
		return ErrSessionUsed
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.startedAt = time.Now()
	if err := s.start(); err != nil {
		s.logger.Error(l10n.F("Failed to start session: %s", err))
		close(s.stopping)
		if terr := s.teardown(); terr != nil {
			s.logger.Warn("Teardown after failed start: %v", terr)
		}
		s.stopOnce.Do(func() {})
		return err
	}

	s.watch("video capture", s.video.Capture.Done(), s.video.Capture.Err)
	s.watch("video encoder", s.video.Driver.Done(), s.video.Driver.Err)
	if s.audio != nil {
		s.watch("audio capture", s.audio.Capture.Done(), s.audio.Capture.Err)
		s.watch("audio encoder", s.audio.Driver.Done(), s.audio.Driver.Err)
	}

	tracks := "video"
	if s.audio != nil {
		tracks = "video+audio"
	}
	s.logger.Info(l10n.F("Recording started (%s, %s)", s.id, tracks))
	return nil
}

func (s *Session) start() error {
	if err := s.writer.Begin(); err != nil {
		return fmt.Errorf("begin writer: %w", err)
	}
	s.started.writer = true

	if err := s.video.Driver.Start(); err != nil {
		return fmt.Errorf("start video encoder: %w", err)
	}
	s.started.videoDriver = true

	if s.audio != nil {
		if err := s.audio.Driver.Start(); err != nil {
			return fmt.Errorf("start audio encoder: %w", err)
		}
		s.started.audioDriver = true
	}

	if err := s.video.Capture.Start(s.video.Raw); err != nil {
		return fmt.Errorf("start video capture: %w", err)
	}
	s.started.videoCapture = true

	if s.audio != nil {
		if err := s.audio.Capture.Start(s.audio.Raw); err != nil {
			return fmt.Errorf("start audio capture: %w", err)
		}
		s.started.audioCapture = true
	}
	return nil
}

// watch records a fatal error when done closes before Stop.
func (s *Session) watch(name string, done <-chan struct{}, errFn func() error) {
	s.watchers.Add(1)
	go func() {
		defer s.watchers.Done()
		select {
		case <-done:
		case <-s.stopping:
			return
		}
		select {
		case <-s.stopping:
			return
		default:
		}

		err := errFn()
		if err == nil {
			err = fmt.Errorf("%s exited unexpectedly", name)
		}
		s.fail(err)
	}()
}

func (s *Session) fail(err error) {
	s.mu.Lock()
	first := s.fatal == nil
	if first {
		s.fatal = err
	}
	s.mu.Unlock()

	if first {
		s.logger.Error(l10n.F("Recording failed: %s", err))
		s.doneOnce.Do(func() { close(s.done) })
	}
}

// Done is closed when a capture source or driver exits on its own.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Err returns the cause of a fatal exit, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fatal
}

// Stop tears the session down: captures, end of stream, drivers, writer.
// Every step runs even when an earlier one fails. A fatal error recorded
// before Stop is returned first; otherwise the first teardown error is.
// Later calls return the same result.
func (s *Session) Stop() (Result, error) {
	s.stopOnce.Do(func() {
		if !s.used.Load() {
			return
		}
		s.logger.Info(l10n.T("Stopping recording"))
		close(s.stopping)

		err := s.teardown()
		s.watchers.Wait()

		if fatal := s.Err(); fatal != nil {
			s.stopErr = fatal
		} else {
			s.stopErr = err
		}
		s.result = s.collect()
		s.doneOnce.Do(func() { close(s.done) })

		if s.stopErr == nil {
			s.logger.Info(l10n.F("Recording stopped after %s", s.result.Duration.Round(time.Millisecond)))
		}
	})
	return s.result, s.stopErr
}

func (s *Session) teardown() error {
	var errs errorList
	errs.logger = s.logger
	errs.ignore = s.Err()

	if s.started.audioCapture {
		errs.add("stop audio capture", s.audio.Capture.Stop())
	}
	if s.started.videoCapture {
		errs.add("stop video capture", s.video.Capture.Stop())
	}

	// End of stream for the drivers.
	s.video.closeRaw()
	if s.audio != nil {
		s.audio.closeRaw()
	}

	deadline := time.NewTimer(s.cfg.DrainGrace)
	defer deadline.Stop()
	if s.started.audioDriver {
		s.awaitDrain("audio", s.audio.Driver, deadline.C)
	}
	if s.started.videoDriver {
		s.awaitDrain("video", s.video.Driver, deadline.C)
	}

	if s.started.audioDriver {
		errs.add("stop audio encoder", s.audio.Driver.Stop())
	}
	if s.started.videoDriver {
		errs.add("stop video encoder", s.video.Driver.Stop())
	}

	if s.started.writer {
		errs.add("finalize output", s.writer.Stop())
	}
	return errs.first
}

func (s *Session) awaitDrain(track string, d *encode.Driver, deadline <-chan time.Time) {
	select {
	case <-d.Done():
	case <-deadline:
		s.logger.Warn("%s encoder still draining after %s, stopping it", track, s.cfg.DrainGrace)
	}
}

func (s *Session) collect() Result {
	r := Result{
		SessionID: s.id,
		StartedAt: s.startedAt,
		Duration:  time.Since(s.startedAt),
		Video:     trackResult(s.video),
		Writer:    s.writer.Stats(),
	}
	if s.audio != nil {
		a := trackResult(s.audio)
		r.Audio = &a
	}
	return r
}

// statser is implemented by the capture sources in package record.
type statser interface {
	Stats() record.Stats
}

func trackResult(p *Pipeline) TrackResult {
	var tr TrackResult
	if c, ok := p.Capture.(statser); ok {
		tr.Capture = c.Stats()
	}
	if p.Pacer != nil {
		tr.Pacer = p.Pacer.Stats()
	}
	tr.Driver = p.Driver.Stats()
	return tr
}

// errorList keeps the first error and logs the rest.
type errorList struct {
	first  error
	ignore error
	logger ports.Logger
}

func (e *errorList) add(step string, err error) {
	if err == nil {
		return
	}
	if e.ignore != nil && errors.Is(err, e.ignore) {
		return
	}
	err = fmt.Errorf("%s: %w", step, err)
	if e.first == nil {
		e.first = err
		return
	}
	e.logger.Warn("%v", err)
}
