// Package pace converts irregular video frame arrivals into a fixed-rate
// admission schedule.
package pace

import (
	"errors"
	"fmt"
	"sync"

	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
)

// ErrInvalidFrameRate is returned for a non-positive target frame rate.
var ErrInvalidFrameRate = errors.New("pace: frame rate must be positive")

// Stats reports pacer counters.
type Stats struct {
	Admitted int64
	Dropped  int64
}

// Pacer admits at most one frame per target period.
//
// Slot k sits at first + k*1e7/fps in integer arithmetic, so the schedule
// advances from its own prior value and never from an arrival time.
type Pacer struct {
	fps    int64
	in     <-chan ports.RawSample
	logger ports.Logger

	mu       sync.Mutex
	started  bool
	first    int64
	slot     int64 // index of the next slot to fill
	next     int64
	admitted int64
	dropped  int64
}

// New creates a pacer reading raw frames from in.
func New(fps int, in <-chan ports.RawSample, logger ports.Logger) (*Pacer, error) {
	if fps <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrameRate, fps)
	}
	return &Pacer{
		fps:    int64(fps),
		in:     in,
		logger: logger.WithComponent("pacer"),
	}, nil
}

// NextTarget returns the earliest time the next frame may carry.
// It is zero before the first frame.
func (p *Pacer) NextTarget() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.next
}

// Admit applies the admission rule to a frame stamped t.
func (p *Pacer) Admit(t int64) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.started {
		p.started = true
		p.first = t
		p.slot = 1
		p.next = p.slotTime(1)
		p.admitted++
		return true
	}

	if t < p.next {
		p.dropped++
		return false
	}

	p.slot++
	p.next = p.slotTime(p.slot)
	p.admitted++
	return true
}

func (p *Pacer) slotTime(k int64) int64 {
	return p.first + k*ports.MediaTimescale/p.fps
}

// Next returns the next admitted frame. It returns false when the input
// channel is closed or done fires. Admitted frames carry the slot duration.
func (p *Pacer) Next(done <-chan struct{}) (ports.RawSample, bool) {
	for {
		var (
			s  ports.RawSample
			ok bool
		)
		select {
		case <-done:
			return ports.RawSample{}, false
		case s, ok = <-p.in:
		}
		if !ok {
			st := p.Stats()
			p.logger.Debug("Input closed after %d admitted, %d dropped frames", st.Admitted, st.Dropped)
			return ports.RawSample{}, false
		}

		if !p.Admit(s.Time) {
			continue
		}
		s.Duration = p.durationOf()
		return s, true
	}
}

// durationOf returns the length of the slot the last admitted frame filled.
func (p *Pacer) durationOf() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.slotTime(p.slot) - p.slotTime(p.slot-1)
}

// Stats returns the admission counters.
func (p *Pacer) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Stats{Admitted: p.admitted, Dropped: p.dropped}
}

var _ pipeline.Source[ports.RawSample] = (*Pacer)(nil)
