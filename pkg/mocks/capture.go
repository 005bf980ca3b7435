package mocks

import (
	"errors"
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// CaptureSource is a mock implementation of ports.CaptureSource.
// Tests push samples with Emit and simulate a fatal exit with Fail.
type CaptureSource struct {
	StartFunc func(sink chan<- ports.RawSample) error
	StopFunc  func() error

	mu       sync.Mutex
	sink     chan<- ports.RawSample
	done     chan struct{}
	doneOnce sync.Once
	err      error

	// Recorded calls for verification
	StartCalls int
	StopCalls  int
}

// NewCaptureSource creates a new mock CaptureSource.
func NewCaptureSource() *CaptureSource {
	return &CaptureSource{done: make(chan struct{})}
}

func (m *CaptureSource) Start(sink chan<- ports.RawSample) error {
	m.mu.Lock()
	m.StartCalls++
	if m.StartCalls > 1 {
		m.mu.Unlock()
		return errors.New("mock capture: already started")
	}
	m.sink = sink
	m.mu.Unlock()
	if m.StartFunc != nil {
		return m.StartFunc(sink)
	}
	return nil
}

func (m *CaptureSource) Stop() error {
	m.mu.Lock()
	m.StopCalls++
	m.mu.Unlock()
	m.finish(nil)
	if m.StopFunc != nil {
		return m.StopFunc()
	}
	return nil
}

func (m *CaptureSource) Done() <-chan struct{} {
	return m.done
}

func (m *CaptureSource) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Emit sends a sample to the sink given to Start. It blocks like a real send.
func (m *CaptureSource) Emit(sample ports.RawSample) {
	m.mu.Lock()
	sink := m.sink
	m.mu.Unlock()
	sink <- sample
}

// Fail ends the source on its own with err, as a device loss would.
func (m *CaptureSource) Fail(err error) {
	m.finish(err)
}

// Stops returns the number of Stop calls.
func (m *CaptureSource) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.StopCalls
}

func (m *CaptureSource) finish(err error) {
	m.doneOnce.Do(func() {
		m.mu.Lock()
		m.err = err
		m.mu.Unlock()
		close(m.done)
	})
}

var _ ports.CaptureSource = (*CaptureSource)(nil)
