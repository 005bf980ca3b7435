package pipeline

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
)

var (
	// ErrAlreadyStarted is returned when a component is started twice.
	ErrAlreadyStarted = errors.New("pipeline: already started")

	// ErrPanic wraps a panic recovered from a worker goroutine.
	ErrPanic = errors.New("pipeline: goroutine panicked")
)

// Worker owns one goroutine with a stop signal, a done signal and a
// result error. It is the lifecycle shared by capture sources and drivers.
type Worker struct {
	name string

	started  atomic.Bool
	joined   atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}

	mu  sync.Mutex
	err error
}

// NewWorker creates an idle worker. name prefixes its errors.
func NewWorker(name string) *Worker {
	return &Worker{
		name: name,
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Go runs fn on a new goroutine. fn must return soon after stop is closed.
// A panic in fn is converted to an error wrapping ErrPanic.
func (w *Worker) Go(fn func(stop <-chan struct{}) error) error {
	if !w.started.CompareAndSwap(false, true) {
		return fmt.Errorf("%s: %w", w.name, ErrAlreadyStarted)
	}

	go func() {
		defer close(w.done)
		err := w.run(fn)
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
	}()
	return nil
}

func (w *Worker) run(fn func(stop <-chan struct{}) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %w: %v", w.name, ErrPanic, r)
		}
	}()
	return fn(w.stop)
}

// RequestStop signals the goroutine to stop without waiting for it.
func (w *Worker) RequestStop() {
	w.stopOnce.Do(func() { close(w.stop) })
}

// Stopping reports whether a stop has been requested.
func (w *Worker) Stopping() bool {
	select {
	case <-w.stop:
		return true
	default:
		return false
	}
}

// Stop requests a stop and joins the goroutine. The first call returns the
// goroutine's error; later calls, and calls on a worker that never started,
// return nil.
func (w *Worker) Stop() error {
	w.RequestStop()
	if !w.started.Load() {
		return nil
	}
	<-w.done
	if !w.joined.CompareAndSwap(false, true) {
		return nil
	}
	return w.Err()
}

// Started reports whether Go has been called.
func (w *Worker) Started() bool {
	return w.started.Load()
}

// Done is closed when a started goroutine has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}

// Err returns the goroutine's result once it has returned.
func (w *Worker) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}
