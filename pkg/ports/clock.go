package ports

// Counter is a monotonic hardware counter.
type Counter interface {
	// Ticks returns the current counter value.
	Ticks() int64

	// Frequency returns the number of ticks per second.
	Frequency() int64
}
