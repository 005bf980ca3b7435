package mocks

import (
	"image"
	"image/color"
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// PatternRenderer is a mock implementation of ports.PatternRenderer.
// By default it returns a uniform image whose gray level follows the frame index.
type PatternRenderer struct {
	RenderFunc func(width, height int, frame ports.PatternFrame) image.Image

	mu          sync.Mutex
	RenderCalls []ports.PatternFrame
}

func (m *PatternRenderer) Render(width, height int, frame ports.PatternFrame) image.Image {
	m.mu.Lock()
	m.RenderCalls = append(m.RenderCalls, frame)
	m.mu.Unlock()

	if m.RenderFunc != nil {
		return m.RenderFunc(width, height, frame)
	}
	return image.NewUniform(color.Gray{Y: uint8(frame.Index % 256)})
}

// Calls returns the number of Render calls so far.
func (m *PatternRenderer) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.RenderCalls)
}

var _ ports.PatternRenderer = (*PatternRenderer)(nil)
