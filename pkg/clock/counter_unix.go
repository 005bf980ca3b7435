//go:build !windows

package clock

import (
	"golang.org/x/sys/unix"

	"github.com/user/deskrec/pkg/ports"
)

// monotonicCounter reads CLOCK_MONOTONIC in nanoseconds.
type monotonicCounter struct{}

// System returns the platform high-resolution counter.
func System() ports.Counter {
	return monotonicCounter{}
}

func (monotonicCounter) Ticks() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Nano()
}

func (monotonicCounter) Frequency() int64 {
	return 1_000_000_000
}
