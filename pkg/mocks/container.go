package mocks

import (
	"fmt"
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// WrittenSample records a call to WriteSample.
type WrittenSample struct {
	Stream int
	Sample ports.EncodedSample
}

// ContainerWriter is a mock implementation of ports.ContainerWriter.
type ContainerWriter struct {
	AddStreamFunc      func(format ports.Format) (int, error)
	SetInputFormatFunc func(stream int, format ports.Format) error
	BeginWritingFunc   func() error
	WriteSampleFunc    func(stream int, sample ports.EncodedSample) error
	FinalizeFunc       func() error

	mu sync.Mutex

	// Recorded calls for verification
	Streams       []ports.Format
	InputFormats  map[int]ports.Format
	BeginCalled   bool
	Written       []WrittenSample
	FinalizeCalls int
}

// NewContainerWriter creates a new mock ContainerWriter.
func NewContainerWriter() *ContainerWriter {
	return &ContainerWriter{InputFormats: make(map[int]ports.Format)}
}

func (m *ContainerWriter) AddStream(format ports.Format) (int, error) {
	if m.AddStreamFunc != nil {
		return m.AddStreamFunc(format)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Streams = append(m.Streams, format)
	return len(m.Streams) - 1, nil
}

func (m *ContainerWriter) SetInputFormat(stream int, format ports.Format) error {
	if m.SetInputFormatFunc != nil {
		return m.SetInputFormatFunc(stream, format)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if stream < 0 || stream >= len(m.Streams) {
		return fmt.Errorf("unknown stream %d", stream)
	}
	m.InputFormats[stream] = format
	return nil
}

func (m *ContainerWriter) BeginWriting() error {
	m.mu.Lock()
	m.BeginCalled = true
	m.mu.Unlock()
	if m.BeginWritingFunc != nil {
		return m.BeginWritingFunc()
	}
	return nil
}

func (m *ContainerWriter) WriteSample(stream int, sample ports.EncodedSample) error {
	if m.WriteSampleFunc != nil {
		if err := m.WriteSampleFunc(stream, sample); err != nil {
			return err
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Written = append(m.Written, WrittenSample{Stream: stream, Sample: sample})
	return nil
}

func (m *ContainerWriter) Finalize() error {
	m.mu.Lock()
	m.FinalizeCalls++
	m.mu.Unlock()
	if m.FinalizeFunc != nil {
		return m.FinalizeFunc()
	}
	return nil
}

// WrittenTo returns the samples written to one stream, in write order.
func (m *ContainerWriter) WrittenTo(stream int) []ports.EncodedSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ports.EncodedSample
	for _, w := range m.Written {
		if w.Stream == stream {
			out = append(out, w.Sample)
		}
	}
	return out
}

// WriteLog returns a copy of all recorded writes.
func (m *ContainerWriter) WriteLog() []WrittenSample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]WrittenSample(nil), m.Written...)
}

var _ ports.ContainerWriter = (*ContainerWriter)(nil)
