// Package mocks provides mock implementations for testing.
package mocks

import (
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// Counter is a manually driven ports.Counter.
type Counter struct {
	mu    sync.Mutex
	ticks int64
	freq  int64

	// FrequencyCalls counts calls to Frequency.
	FrequencyCalls int
}

// NewCounter creates a counter at tick start with the given frequency.
func NewCounter(start, freq int64) *Counter {
	return &Counter{ticks: start, freq: freq}
}

func (c *Counter) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ticks
}

func (c *Counter) Frequency() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.FrequencyCalls++
	return c.freq
}

// Set moves the counter to an absolute value.
func (c *Counter) Set(ticks int64) {
	c.mu.Lock()
	c.ticks = ticks
	c.mu.Unlock()
}

// Advance moves the counter forward by n ticks.
func (c *Counter) Advance(n int64) {
	c.mu.Lock()
	c.ticks += n
	c.mu.Unlock()
}

// SetFrequency changes the reported frequency.
func (c *Counter) SetFrequency(freq int64) {
	c.mu.Lock()
	c.freq = freq
	c.mu.Unlock()
}

var _ ports.Counter = (*Counter)(nil)
