// Package encode drives an asynchronous encode transform through its
// input/output event protocol on a dedicated goroutine.
package encode

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// DefaultDrainTimeout bounds how long a transform may take to flush.
const DefaultDrainTimeout = 10 * time.Second

// ErrDrainTimeout is returned when a transform does not finish draining in time.
var ErrDrainTimeout = errors.New("encode: drain timed out")

// State is the lifecycle state of a Driver.
type State int32

const (
	StateIdle State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// OutputFunc receives each encoded sample. An error is fatal for the driver.
type OutputFunc func(sample ports.EncodedSample) error

// Stats reports driver counters.
type Stats struct {
	Inputs         int64
	Outputs        int64
	NotAccepting   int64
	DroppedPending int64
}

// Option configures a Driver.
type Option func(*Driver)

// WithDrainTimeout overrides DefaultDrainTimeout.
func WithDrainTimeout(d time.Duration) Option {
	return func(dr *Driver) {
		if d > 0 {
			dr.drainTimeout = d
		}
	}
}

// Driver owns one transform and runs its event loop.
type Driver struct {
	name         string
	transform    ports.Transform
	input        pipeline.Source[ports.RawSample]
	output       OutputFunc
	logger       ports.Logger
	drainTimeout time.Duration

	state  atomic.Int32
	worker *pipeline.Worker

	inputs         atomic.Int64
	outputs        atomic.Int64
	notAccepting   atomic.Int64
	droppedPending atomic.Int64
}

// NewDriver creates a driver in StateIdle. name is the track name used in
// errors and log output.
func NewDriver(name string, transform ports.Transform, input pipeline.Source[ports.RawSample], output OutputFunc, logger ports.Logger, opts ...Option) *Driver {
	d := &Driver{
		name:         name,
		transform:    transform,
		input:        input,
		output:       output,
		logger:       logger.WithComponent("encode:" + name),
		drainTimeout: DefaultDrainTimeout,
		worker:       pipeline.NewWorker("encode " + name),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current lifecycle state.
func (d *Driver) State() State {
	return State(d.state.Load())
}

// Start notifies the transform and launches the event loop.
// A second call returns pipeline.ErrAlreadyStarted.
func (d *Driver) Start() error {
	if !d.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return fmt.Errorf("encode %s: %w", d.name, pipeline.ErrAlreadyStarted)
	}

	if err := d.transform.Begin(); err != nil {
		d.transform.Close()
		d.state.Store(int32(StateStopped))
		return fmt.Errorf("encode %s: begin streaming: %w", d.name, err)
	}

	d.logger.Debug("Driver started: %s -> %s", d.transform.InputFormat(), d.transform.OutputFormat())
	return d.worker.Go(d.run)
}

// Stop requests a drain and joins the event loop. It returns the loop's
// error on the first call and nil afterwards.
func (d *Driver) Stop() error {
	if !d.worker.Started() {
		d.state.Store(int32(StateStopped))
		d.worker.RequestStop()
		return nil
	}
	return d.worker.Stop()
}

// Done is closed when the event loop has exited.
func (d *Driver) Done() <-chan struct{} {
	return d.worker.Done()
}

// Err returns the event loop's error once it has exited.
func (d *Driver) Err() error {
	return d.worker.Err()
}

// Stats returns the driver counters.
func (d *Driver) Stats() Stats {
	return Stats{
		Inputs:         d.inputs.Load(),
		Outputs:        d.outputs.Load(),
		NotAccepting:   d.notAccepting.Load(),
		DroppedPending: d.droppedPending.Load(),
	}
}

// loop holds the state owned by the event loop goroutine.
type loop struct {
	*Driver

	stop     <-chan struct{}
	draining bool
	pending  *ports.RawSample

	drainCtx    context.Context
	cancelDrain context.CancelFunc
}

func (d *Driver) run(stop <-chan struct{}) error {
	defer func() {
		if err := d.transform.Close(); err != nil {
			d.logger.Warn("Failed to close transform: %v", err)
		}
		d.state.Store(int32(StateStopped))
		st := d.Stats()
		d.logger.Debug("Driver stopped: %d inputs, %d outputs", st.Inputs, st.Outputs)
	}()

	// runCtx interrupts a blocked NextEvent when a stop is requested so the
	// loop can switch to draining.
	runCtx, cancelRun := context.WithCancel(context.Background())
	defer cancelRun()
	go func() {
		select {
		case <-stop:
			cancelRun()
		case <-runCtx.Done():
		}
	}()

	l := &loop{Driver: d, stop: stop}
	defer func() {
		if l.cancelDrain != nil {
			l.cancelDrain()
		}
	}()

	for {
		if !l.draining && isClosed(stop) {
			if err := l.beginDrain(); err != nil {
				return err
			}
		}

		ctx := runCtx
		if l.draining {
			ctx = l.drainCtx
		}

		event, err := d.transform.NextEvent(ctx)
		if err != nil {
			if l.draining && errors.Is(l.drainCtx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("encode %s: %w after %s", d.name, ErrDrainTimeout, d.drainTimeout)
			}
			if !l.draining && runCtx.Err() != nil {
				continue
			}
			return fmt.Errorf("encode %s: next event: %w", d.name, err)
		}

		switch event {
		case ports.EventNeedInput:
			if err := l.onNeedInput(); err != nil {
				return err
			}
		case ports.EventHaveOutput:
			finished, err := l.onHaveOutput()
			if err != nil || finished {
				return err
			}
		case ports.EventDrainComplete:
			d.logger.Debug("Drain complete")
			return nil
		default:
			return fmt.Errorf("encode %s: unexpected transform event %d", d.name, int(event))
		}
	}
}

func (l *loop) onNeedInput() error {
	if l.draining {
		return nil
	}

	// A rejected sample is offered again before anything new is pulled.
	if l.pending != nil {
		return l.resubmit()
	}

	sample, ok := l.input.Next(l.stop)
	if !ok {
		return l.beginDrain()
	}
	return l.submit(sample)
}

func (l *loop) onHaveOutput() (finished bool, err error) {
	out, err := l.transform.ProcessOutput()
	if errors.Is(err, ports.ErrNeedMoreInput) {
		if l.draining {
			l.logger.Debug("Drain complete")
			return true, nil
		}
		return false, l.resubmit()
	}
	if err != nil {
		return false, fmt.Errorf("encode %s: process output: %w", l.name, err)
	}

	l.outputs.Add(1)
	if err := l.output(out); err != nil {
		return false, fmt.Errorf("encode %s: deliver output: %w", l.name, err)
	}

	if l.draining {
		return false, nil
	}
	return false, l.resubmit()
}

func (l *loop) submit(sample ports.RawSample) error {
	err := l.transform.ProcessInput(sample)
	switch {
	case err == nil:
		l.inputs.Add(1)
		l.pending = nil
		return nil
	case errors.Is(err, ports.ErrNotAccepting):
		l.notAccepting.Add(1)
		l.pending = &sample
		return nil
	default:
		return fmt.Errorf("encode %s: process input: %w", l.name, err)
	}
}

// resubmit offers the pending sample once, if there is one.
func (l *loop) resubmit() error {
	if l.pending == nil {
		return nil
	}
	return l.submit(*l.pending)
}

func (l *loop) beginDrain() error {
	if l.pending != nil {
		if err := l.resubmit(); err != nil {
			return err
		}
		if l.pending != nil {
			l.droppedPending.Add(1)
			l.logger.Warn("Dropped one pending sample at drain")
			l.pending = nil
		}
	}

	l.draining = true
	l.state.Store(int32(StateDraining))
	l.drainCtx, l.cancelDrain = context.WithTimeout(context.Background(), l.drainTimeout)
	l.logger.Debug("Draining transform")

	if err := l.transform.Drain(); err != nil {
		return fmt.Errorf("encode %s: drain: %w", l.name, err)
	}
	return nil
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
