package ports

import (
	"context"
	"errors"
)

var (
	// ErrNeedMoreInput is returned by ProcessOutput when no output is available.
	// While draining it means the transform has been flushed.
	ErrNeedMoreInput = errors.New("transform: need more input")

	// ErrNotAccepting is returned by ProcessInput when the transform cannot take
	// a sample until it has produced output.
	ErrNotAccepting = errors.New("transform: not accepting input")
)

// TransformEvent is an event reported by an asynchronous transform.
type TransformEvent int

const (
	EventNeedInput TransformEvent = iota + 1
	EventHaveOutput
	EventDrainComplete
)

func (e TransformEvent) String() string {
	switch e {
	case EventNeedInput:
		return "need-input"
	case EventHaveOutput:
		return "have-output"
	case EventDrainComplete:
		return "drain-complete"
	default:
		return "unknown"
	}
}

// Transform is an encoder with an asynchronous input/output protocol.
// A transform is driven by exactly one goroutine.
type Transform interface {
	InputFormat() Format
	OutputFormat() Format

	// Begin notifies the transform that streaming starts.
	Begin() error

	// NextEvent blocks until the transform requests input or has output.
	NextEvent(ctx context.Context) (TransformEvent, error)

	ProcessInput(sample RawSample) error
	ProcessOutput() (EncodedSample, error)

	// Drain tells the transform that no more input will follow.
	Drain() error

	// Close releases the transform. It is safe to call after a failure.
	Close() error
}
