package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/user/deskrec/pkg/ports"
)

// DefaultQueueSize is the number of input samples buffered ahead of ffmpeg.
const DefaultQueueSize = 8

// TransformConfig describes an encoder run as an ffmpeg child process.
type TransformConfig struct {
	Command Command
	Input   ports.Format
	Output  ports.Format

	Framer  Framer
	Stamper Stamper

	// Keyframe reports whether an output frame is a sync sample. Nil marks
	// every frame as one.
	Keyframe func(frame []byte) bool

	// Payload converts a raw sample to stdin bytes. Nil writes Data as is.
	Payload func(sample ports.RawSample) []byte

	// Strip is applied to each output frame before it is emitted.
	Strip func(frame []byte) []byte

	QueueSize int
}

// Transform feeds raw samples to ffmpeg's stdin and frames its stdout into
// encoded samples. It implements the asynchronous ports.Transform protocol
// over a bounded input queue.
type Transform struct {
	cfg    TransformConfig
	logger ports.Logger

	proc   *Process
	inputs chan []byte
	wake   chan struct{}
	cancel context.CancelFunc
	exited chan struct{}

	mu        sync.Mutex
	ready     []ports.EncodedSample
	eof       bool
	draining  bool
	closed    bool
	err       error
	emitted   int64
	closeOnce sync.Once
}

// NewTransform creates a transform. The process is started by Begin.
func NewTransform(cfg TransformConfig, logger ports.Logger) *Transform {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Transform{
		cfg:    cfg,
		logger: logger.WithComponent("ffmpeg"),
		inputs: make(chan []byte, cfg.QueueSize),
		wake:   make(chan struct{}, 1),
		exited: make(chan struct{}),
	}
}

func (t *Transform) InputFormat() ports.Format  { return t.cfg.Input }
func (t *Transform) OutputFormat() ports.Format { return t.cfg.Output }

// Begin starts ffmpeg with a writer and a reader goroutine.
func (t *Transform) Begin() error {
	if t.proc != nil {
		return errors.New("ffmpeg: transform already begun")
	}
	proc, err := Start(t.cfg.Command, t.logger)
	if err != nil {
		return err
	}
	t.proc = proc

	ctx, cancel := context.WithCancel(context.Background())
	t.cancel = cancel
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return t.writeLoop(gctx) })
	g.Go(t.readLoop)

	go func() {
		defer close(t.exited)
		err := g.Wait()
		waitErr := proc.Wait()

		t.mu.Lock()
		if !t.closed {
			switch {
			case err != nil:
				t.err = err
			case !t.draining:
				t.err = fmt.Errorf("%w before drain: %s", ErrProcessExited, proc.StderrTail())
			case waitErr != nil:
				t.err = waitErr
			}
		}
		t.mu.Unlock()
		t.signal()
	}()
	return nil
}

func (t *Transform) writeLoop(ctx context.Context) error {
	stdin := t.proc.Stdin()
	defer stdin.Close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case buf, ok := <-t.inputs:
			if !ok {
				return nil
			}
			if _, err := stdin.Write(buf); err != nil {
				return fmt.Errorf("%w: write stdin: %v: %s", ErrProcessExited, err, t.proc.StderrTail())
			}
		}
	}
}

func (t *Transform) readLoop() error {
	stdout := t.proc.Stdout()
	for {
		frame, err := t.cfg.Framer.ReadFrame(stdout)
		if errors.Is(err, io.EOF) {
			t.mu.Lock()
			t.eof = true
			t.mu.Unlock()
			t.signal()
			return nil
		}
		if err != nil {
			t.mu.Lock()
			closed := t.closed
			t.mu.Unlock()
			if closed {
				return nil
			}
			return fmt.Errorf("read output: %w", err)
		}

		sample := ports.EncodedSample{
			Track:    t.cfg.Output.Track,
			Keyframe: true,
		}
		if t.cfg.Keyframe != nil {
			sample.Keyframe = t.cfg.Keyframe(frame)
		}
		if t.cfg.Strip != nil {
			frame = t.cfg.Strip(frame)
		}
		sample.Data = frame
		sample.Time, sample.Duration = t.cfg.Stamper.Stamp()

		t.mu.Lock()
		t.ready = append(t.ready, sample)
		t.emitted++
		t.mu.Unlock()
		t.signal()
	}
}

func (t *Transform) signal() {
	select {
	case t.wake <- struct{}{}:
	default:
	}
}

// NextEvent reports HaveOutput while output is queued or once a drain has
// flushed ffmpeg, and NeedInput while the input queue has room.
func (t *Transform) NextEvent(ctx context.Context) (ports.TransformEvent, error) {
	for {
		t.mu.Lock()
		switch {
		case t.err != nil:
			err := t.err
			t.mu.Unlock()
			return 0, err
		case len(t.ready) > 0, t.draining && t.eof:
			t.mu.Unlock()
			return ports.EventHaveOutput, nil
		case !t.draining && len(t.inputs) < cap(t.inputs):
			t.mu.Unlock()
			return ports.EventNeedInput, nil
		}
		t.mu.Unlock()

		select {
		case <-t.wake:
		case <-ctx.Done():
			return 0, ctx.Err()
		}
	}
}

// ProcessInput queues a sample for ffmpeg. It returns ErrNotAccepting when
// the queue is full.
func (t *Transform) ProcessInput(sample ports.RawSample) error {
	payload := sample.Data
	if t.cfg.Payload != nil {
		payload = t.cfg.Payload(sample)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.draining {
		return errors.New("ffmpeg: input after drain")
	}
	if len(t.inputs) == cap(t.inputs) {
		return ports.ErrNotAccepting
	}
	// Only this goroutine sends, so the send below cannot block.
	t.cfg.Stamper.Push(sample)
	t.inputs <- payload
	return nil
}

// ProcessOutput pops one encoded sample or returns ErrNeedMoreInput.
func (t *Transform) ProcessOutput() (ports.EncodedSample, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.ready) > 0 {
		s := t.ready[0]
		t.ready = t.ready[1:]
		return s, nil
	}
	if t.err != nil {
		return ports.EncodedSample{}, t.err
	}
	return ports.EncodedSample{}, ports.ErrNeedMoreInput
}

// Drain closes ffmpeg's stdin once the queued input is written, making it
// flush its delayed frames.
func (t *Transform) Drain() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.draining {
		return nil
	}
	t.draining = true
	close(t.inputs)
	t.signal()
	return nil
}

// Close kills ffmpeg if it is still running and waits for its goroutines.
func (t *Transform) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.closed = true
		emitted := t.emitted
		t.mu.Unlock()

		if t.proc == nil {
			return
		}
		t.cancel()
		t.proc.Kill()
		<-t.exited
		t.logger.Debug("Closed after %d frames", emitted)
	})
	return nil
}

var _ ports.Transform = (*Transform)(nil)
