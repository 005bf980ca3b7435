// Package record implements the capture sources: dedicated goroutines that
// pull raw samples from grabbers, stamp them against the session anchor and
// push them onto a bounded channel.
package record

import (
	"errors"
	"sync/atomic"
	"time"
)

const (
	// DefaultPollInterval bounds each grab so a stop is observed promptly.
	DefaultPollInterval = 100 * time.Millisecond

	// DefaultDriftLimit is how far the audio timeline may drift from the
	// counter before it is re-anchored.
	DefaultDriftLimit = 100 * time.Millisecond
)

// ErrSinkStalled is returned when the consumer stopped taking samples.
var ErrSinkStalled = errors.New("record: sink stalled")

// Stats reports capture counters.
type Stats struct {
	Captured        int64
	Duplicates      int64
	Silent          int64
	Discontinuities int64
}

type counters struct {
	captured        atomic.Int64
	duplicates      atomic.Int64
	silent          atomic.Int64
	discontinuities atomic.Int64
}

func (c *counters) snapshot() Stats {
	return Stats{
		Captured:        c.captured.Load(),
		Duplicates:      c.duplicates.Load(),
		Silent:          c.silent.Load(),
		Discontinuities: c.discontinuities.Load(),
	}
}

type options struct {
	poll       time.Duration
	driftLimit time.Duration
}

// Option configures a capture source.
type Option func(*options)

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.poll = d
		}
	}
}

// WithDriftLimit overrides DefaultDriftLimit.
func WithDriftLimit(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.driftLimit = d
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{poll: DefaultPollInterval, driftLimit: DefaultDriftLimit}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
