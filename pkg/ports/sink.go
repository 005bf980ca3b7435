package ports

// DebugSink receives diagnostic output from a session.
type DebugSink interface {
	// Enabled returns true if debug output is kept.
	Enabled() bool

	// SaveTimelineJSON saves the per-sample timing of one track.
	SaveTimelineJSON(track Track, data []byte) error

	// SaveSessionJSON saves the final session statistics.
	SaveSessionJSON(data []byte) error
}
