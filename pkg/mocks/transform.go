package mocks

import (
	"context"
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// Transform is a mock implementation of ports.Transform.
//
// Without overrides it behaves like a software H.264 encoder: every input
// becomes one access unit, delayed by Latency inputs, with an IDR frame
// carrying SPS/PPS every GOP inputs. Non-video transforms emit a short
// opaque payload instead.
type Transform struct {
	In  ports.Format
	Out ports.Format

	// Latency is the number of inputs held before the first output appears.
	Latency int
	// GOP is the keyframe interval. Zero means only the first frame is a keyframe.
	GOP int
	// PayloadSize is the number of filler bytes per access unit.
	PayloadSize int
	// SignalDrainComplete makes the transform report EventDrainComplete once
	// flushed instead of answering ProcessOutput with ErrNeedMoreInput.
	SignalDrainComplete bool

	BeginFunc         func() error
	NextEventFunc     func(ctx context.Context) (ports.TransformEvent, error)
	ProcessInputFunc  func(sample ports.RawSample) error
	ProcessOutputFunc func() (ports.EncodedSample, error)
	DrainFunc         func() error
	CloseFunc         func() error

	mu       sync.Mutex
	held     []ports.RawSample
	ready    []ports.EncodedSample
	draining bool
	frames   int

	// Recorded calls for verification
	BeginCalled  bool
	DrainCalls   int
	CloseCalls   int
	InputCalls   []ports.RawSample
	OutputCalls  int
	EmittedCount int
}

// NewH264Transform creates a fake H.264 encoder for NV12 input.
func NewH264Transform(input ports.Format, bitrate int) *Transform {
	out := input
	out.Codec = ports.CodecH264
	out.Bitrate = bitrate
	return &Transform{In: input, Out: out, GOP: 30, PayloadSize: 64}
}

// NewAACTransform creates a fake AAC encoder for PCM input.
func NewAACTransform(input ports.Format, bitrate int) *Transform {
	out := input
	out.Codec = ports.CodecAAC
	out.Bitrate = bitrate
	return &Transform{In: input, Out: out, PayloadSize: 16}
}

func (m *Transform) InputFormat() ports.Format  { return m.In }
func (m *Transform) OutputFormat() ports.Format { return m.Out }

func (m *Transform) Begin() error {
	m.mu.Lock()
	m.BeginCalled = true
	m.mu.Unlock()
	if m.BeginFunc != nil {
		return m.BeginFunc()
	}
	return nil
}

func (m *Transform) NextEvent(ctx context.Context) (ports.TransformEvent, error) {
	if m.NextEventFunc != nil {
		return m.NextEventFunc(ctx)
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case len(m.ready) > 0:
		return ports.EventHaveOutput, nil
	case m.draining && m.SignalDrainComplete:
		return ports.EventDrainComplete, nil
	case m.draining:
		return ports.EventHaveOutput, nil
	default:
		return ports.EventNeedInput, nil
	}
}

func (m *Transform) ProcessInput(sample ports.RawSample) error {
	m.mu.Lock()
	m.InputCalls = append(m.InputCalls, sample)
	m.mu.Unlock()
	if m.ProcessInputFunc != nil {
		return m.ProcessInputFunc(sample)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.held = append(m.held, sample)
	for len(m.held) > m.Latency {
		m.emitLocked()
	}
	return nil
}

func (m *Transform) ProcessOutput() (ports.EncodedSample, error) {
	m.mu.Lock()
	m.OutputCalls++
	m.mu.Unlock()
	if m.ProcessOutputFunc != nil {
		return m.ProcessOutputFunc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.ready) == 0 {
		return ports.EncodedSample{}, ports.ErrNeedMoreInput
	}
	s := m.ready[0]
	m.ready = m.ready[1:]
	m.EmittedCount++
	return s, nil
}

func (m *Transform) Drain() error {
	m.mu.Lock()
	m.DrainCalls++
	m.draining = true
	m.mu.Unlock()
	if m.DrainFunc != nil {
		// Held samples stay held: the override decides what gets flushed.
		return m.DrainFunc()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	for len(m.held) > 0 {
		m.emitLocked()
	}
	return nil
}

func (m *Transform) Close() error {
	m.mu.Lock()
	m.CloseCalls++
	m.mu.Unlock()
	if m.CloseFunc != nil {
		return m.CloseFunc()
	}
	return nil
}

// Inputs returns the number of ProcessInput calls.
func (m *Transform) Inputs() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.InputCalls)
}

// Emitted returns the number of samples returned by ProcessOutput.
func (m *Transform) Emitted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.EmittedCount
}

// Closed returns the number of Close calls.
func (m *Transform) Closed() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CloseCalls
}

func (m *Transform) emitLocked() {
	in := m.held[0]
	m.held = m.held[1:]

	keyframe := m.frames == 0 || (m.GOP > 0 && m.frames%m.GOP == 0)
	m.frames++

	var data []byte
	if m.Out.Codec == ports.CodecH264 {
		data = H264AccessUnit(m.Out.Width, m.Out.Height, keyframe, m.PayloadSize)
	} else {
		keyframe = true
		data = make([]byte, m.PayloadSize)
		for i := range data {
			data[i] = byte(m.frames + i)
		}
	}

	m.ready = append(m.ready, ports.EncodedSample{
		Track:    m.In.Track,
		Time:     in.Time,
		Duration: in.Duration,
		Data:     data,
		Keyframe: keyframe,
	})
}

// EncoderDevice is a mock implementation of ports.EncoderDevice.
type EncoderDevice struct {
	InfoValue           ports.EncoderInfo
	CreateTransformFunc func(opts ports.EncoderOptions) (ports.Transform, error)

	CreateCalls []ports.EncoderOptions
}

func (m *EncoderDevice) Info() ports.EncoderInfo {
	return m.InfoValue
}

func (m *EncoderDevice) CreateTransform(opts ports.EncoderOptions) (ports.Transform, error) {
	m.CreateCalls = append(m.CreateCalls, opts)
	if m.CreateTransformFunc != nil {
		return m.CreateTransformFunc(opts)
	}
	return NewH264Transform(opts.Input, opts.Bitrate), nil
}

var (
	_ ports.Transform     = (*Transform)(nil)
	_ ports.EncoderDevice = (*EncoderDevice)(nil)
)
