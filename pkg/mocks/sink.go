package mocks

import (
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// DebugSink is a mock implementation of ports.DebugSink.
type DebugSink struct {
	mu sync.RWMutex

	enabled bool

	Timelines   map[ports.Track][]byte
	SessionJSON []byte
}

// NewDebugSink creates a new mock DebugSink.
func NewDebugSink(enabled bool) *DebugSink {
	return &DebugSink{
		enabled:   enabled,
		Timelines: make(map[ports.Track][]byte),
	}
}

func (m *DebugSink) Enabled() bool {
	return m.enabled
}

func (m *DebugSink) SaveTimelineJSON(track ports.Track, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Timelines[track] = data
	return nil
}

func (m *DebugSink) SaveSessionJSON(data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SessionJSON = data
	return nil
}

// Timeline returns the saved timeline for a track.
func (m *DebugSink) Timeline(track ports.Track) ([]byte, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.Timelines[track]
	return data, ok
}

var _ ports.DebugSink = (*DebugSink)(nil)
