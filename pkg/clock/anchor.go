// Package clock converts hardware counter readings into session-relative
// media time.
package clock

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/user/deskrec/pkg/ports"
)

// ErrInvalidFrequency is returned when the counter reports a non-positive frequency.
var ErrInvalidFrequency = errors.New("clock: counter frequency must be positive")

// Anchor is the reference reading every session timestamp is relative to.
// The frequency and the anchor reading are taken once at construction.
type Anchor struct {
	counter ports.Counter
	freq    int64
	ticks   int64
	origin  int64
}

// NewAnchor reads the counter frequency and the anchor tick.
func NewAnchor(counter ports.Counter) (*Anchor, error) {
	freq := counter.Frequency()
	if freq <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidFrequency, freq)
	}

	a := &Anchor{
		counter: counter,
		freq:    freq,
	}
	a.ticks = counter.Ticks()
	a.origin = a.ToMediaTime(a.ticks)
	return a, nil
}

// ToMediaTime converts a raw counter value to 100ns units.
// The product is computed in 128 bits so long uptimes do not overflow.
func (a *Anchor) ToMediaTime(ticks int64) int64 {
	if ticks <= 0 {
		return 0
	}
	hi, lo := bits.Mul64(uint64(ticks), ports.MediaTimescale)
	if hi >= uint64(a.freq) {
		// Quotient would not fit in 64 bits.
		return int64(^uint64(0) >> 1)
	}
	q, _ := bits.Div64(hi, lo, uint64(a.freq))
	if q > uint64(^uint64(0)>>1) {
		return int64(^uint64(0) >> 1)
	}
	return int64(q)
}

// Relative returns the media time of ticks since the anchor, clamped at zero.
func (a *Anchor) Relative(ticks int64) int64 {
	rel := a.ToMediaTime(ticks) - a.origin
	if rel < 0 {
		return 0
	}
	return rel
}

// Now returns the relative media time of the current counter value.
func (a *Anchor) Now() int64 {
	return a.Relative(a.counter.Ticks())
}

// Ticks returns the anchor reading.
func (a *Anchor) Ticks() int64 {
	return a.ticks
}

// Frequency returns the cached counter frequency.
func (a *Anchor) Frequency() int64 {
	return a.freq
}
