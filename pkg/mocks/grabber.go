package mocks

import (
	"sync"
	"time"

	"github.com/user/deskrec/pkg/ports"
)

// VideoGrabber is a mock implementation of ports.VideoGrabber.
// Without GrabFunc it returns queued frames, then ErrGrabTimeout.
type VideoGrabber struct {
	OpenFunc  func(format ports.Format) error
	GrabFunc  func(timeout time.Duration) ([]byte, error)
	CloseFunc func() error

	mu     sync.Mutex
	frames [][]byte

	// Recorded calls for verification
	Format     ports.Format
	OpenCalled bool
	GrabCalls  int
	CloseCalls int
}

// Queue appends frames returned by later Grab calls.
func (m *VideoGrabber) Queue(frames ...[]byte) {
	m.mu.Lock()
	m.frames = append(m.frames, frames...)
	m.mu.Unlock()
}

func (m *VideoGrabber) Open(format ports.Format) error {
	m.mu.Lock()
	m.OpenCalled = true
	m.Format = format
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc(format)
	}
	return nil
}

func (m *VideoGrabber) Grab(timeout time.Duration) ([]byte, error) {
	m.mu.Lock()
	m.GrabCalls++
	m.mu.Unlock()
	if m.GrabFunc != nil {
		return m.GrabFunc(timeout)
	}

	m.mu.Lock()
	if len(m.frames) > 0 {
		f := m.frames[0]
		m.frames = m.frames[1:]
		m.mu.Unlock()
		return f, nil
	}
	m.mu.Unlock()
	time.Sleep(time.Millisecond)
	return nil, ports.ErrGrabTimeout
}

func (m *VideoGrabber) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Closed returns the number of Close calls.
func (m *VideoGrabber) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

// AudioGrabber is a mock implementation of ports.AudioGrabber.
// Without GrabFunc it returns queued packets, then ErrGrabTimeout.
type AudioGrabber struct {
	OpenFunc  func() (ports.Format, error)
	GrabFunc  func(timeout time.Duration) (ports.AudioPacket, error)
	CloseFunc func() error

	// Format is returned by Open when OpenFunc is nil.
	Format ports.Format

	mu      sync.Mutex
	packets []ports.AudioPacket

	// Recorded calls for verification
	OpenCalled bool
	GrabCalls  int
	CloseCalls int
}

// NewAudioGrabber creates a grabber reporting 48 kHz stereo s16le.
func NewAudioGrabber() *AudioGrabber {
	return &AudioGrabber{Format: ports.Format{
		Track:         ports.TrackAudio,
		Codec:         ports.CodecPCM,
		SampleRate:    48000,
		Channels:      2,
		BitsPerSample: 16,
	}}
}

// Queue appends packets returned by later Grab calls.
func (m *AudioGrabber) Queue(packets ...ports.AudioPacket) {
	m.mu.Lock()
	m.packets = append(m.packets, packets...)
	m.mu.Unlock()
}

func (m *AudioGrabber) Open() (ports.Format, error) {
	m.mu.Lock()
	m.OpenCalled = true
	m.mu.Unlock()
	if m.OpenFunc != nil {
		return m.OpenFunc()
	}
	return m.Format, nil
}

func (m *AudioGrabber) Grab(timeout time.Duration) (ports.AudioPacket, error) {
	m.mu.Lock()
	m.GrabCalls++
	m.mu.Unlock()
	if m.GrabFunc != nil {
		return m.GrabFunc(timeout)
	}

	m.mu.Lock()
	if len(m.packets) > 0 {
		p := m.packets[0]
		m.packets = m.packets[1:]
		m.mu.Unlock()
		return p, nil
	}
	m.mu.Unlock()
	time.Sleep(time.Millisecond)
	return ports.AudioPacket{}, ports.ErrGrabTimeout
}

func (m *AudioGrabber) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Closed returns the number of Close calls.
func (m *AudioGrabber) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

var (
	_ ports.VideoGrabber = (*VideoGrabber)(nil)
	_ ports.AudioGrabber = (*AudioGrabber)(nil)
)
