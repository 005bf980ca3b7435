// Package summarizer provides summary generation for recording results.
package summarizer

import "time"

// Summary contains all data collected during a recording session.
type Summary struct {
	// Metadata
	GeneratedAt time.Time

	// Session identity and timing
	Session SessionInfo

	// Output file
	Output OutputInfo

	// Recording settings
	Settings Settings

	// Per-track counters
	Video VideoInfo
	Audio *AudioInfo // nil for video-only recordings

	// Resource usage, nil when sampling was unavailable
	Process *ProcessInfo
}

// SessionInfo identifies the recording.
type SessionInfo struct {
	ID         string
	StartedAt  time.Time
	DurationMs int64
}

// OutputInfo describes the written file.
type OutputInfo struct {
	Path     string
	FileSize int64
}

// Settings contains the recording configuration.
type Settings struct {
	Source      string
	Display     int
	Width       int
	Height      int
	FPS         int
	BitrateMbps int

	Encoder         string
	EncoderBackend  string
	HardwareEncoder bool

	Audio      string
	AudioError string // why audio was dropped, if it was
}

// VideoInfo contains the video track counters.
type VideoInfo struct {
	Captured   int64 // frames delivered by the grabber, including repeats
	Duplicates int64 // repeated frames sent on grab timeouts
	Admitted   int64 // frames kept by the pacer
	Dropped    int64 // frames dropped by the pacer
	Encoded    int64
	Written    int64
}

// AudioInfo contains the audio track counters.
type AudioInfo struct {
	SampleRate      int
	Channels        int
	Captured        int64
	Silent          int64
	Discontinuities int64
	Encoded         int64
	Written         int64
	Dropped         int64 // encoded samples dropped by a full writer queue
}

// ProcessInfo contains the recorder's own resource usage.
type ProcessInfo struct {
	PeakCPU    float64 // percent of one core
	AverageCPU float64
	PeakRSS    uint64 // bytes
}

// NewSummary creates a new Summary with the current timestamp.
func NewSummary() *Summary {
	return &Summary{
		GeneratedAt: time.Now(),
	}
}

// Builder provides a fluent interface for building a Summary.
type Builder struct {
	summary *Summary
}

// NewBuilder creates a new Builder.
func NewBuilder() *Builder {
	return &Builder{
		summary: NewSummary(),
	}
}

// WithSession sets the session identity and wall duration.
func (b *Builder) WithSession(id string, startedAt time.Time, duration time.Duration) *Builder {
	b.summary.Session = SessionInfo{
		ID:         id,
		StartedAt:  startedAt,
		DurationMs: duration.Milliseconds(),
	}
	return b
}

// WithOutput sets the output file information.
func (b *Builder) WithOutput(path string, size int64) *Builder {
	b.summary.Output = OutputInfo{
		Path:     path,
		FileSize: size,
	}
	return b
}

// WithSettings sets recording settings.
func (b *Builder) WithSettings(settings Settings) *Builder {
	b.summary.Settings = settings
	return b
}

// WithVideo sets the video counters.
func (b *Builder) WithVideo(video VideoInfo) *Builder {
	b.summary.Video = video
	return b
}

// WithAudio sets the audio counters.
func (b *Builder) WithAudio(audio AudioInfo) *Builder {
	b.summary.Audio = &audio
	return b
}

// WithProcess sets the resource usage.
func (b *Builder) WithProcess(p ProcessInfo) *Builder {
	b.summary.Process = &p
	return b
}

// Build returns the constructed Summary.
func (b *Builder) Build() *Summary {
	return b.summary
}
