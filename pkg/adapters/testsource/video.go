// Package testsource provides synthetic grabbers: a rendered test pattern
// for video and a sine tone for audio. Both run in real time.
package testsource

import (
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"golang.org/x/image/draw"

	"github.com/user/deskrec/pkg/ports"
)

// VideoGrabber renders one pattern frame per frame period and converts it to NV12.
type VideoGrabber struct {
	renderer ports.PatternRenderer
	label    string

	mu         sync.Mutex
	format     ports.Format
	period     time.Duration
	start      time.Time
	next       int64
	stallUntil time.Time
	open       bool
	buf        []byte

	now   func() time.Time
	sleep func(time.Duration)
}

// NewVideoGrabber creates a grabber drawing with renderer. label is shown
// on every frame.
func NewVideoGrabber(renderer ports.PatternRenderer, label string) *VideoGrabber {
	return &VideoGrabber{
		renderer: renderer,
		label:    label,
		now:      time.Now,
		sleep:    time.Sleep,
	}
}

func (g *VideoGrabber) Open(format ports.Format) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return errors.New("testsource: already open")
	}
	if format.Width <= 0 || format.Height <= 0 || format.FrameRate <= 0 {
		return fmt.Errorf("testsource: invalid format %s", format)
	}
	if format.Width%2 != 0 || format.Height%2 != 0 {
		return fmt.Errorf("testsource: NV12 needs even dimensions, got %dx%d", format.Width, format.Height)
	}
	g.format = format
	g.period = time.Second / time.Duration(format.FrameRate)
	g.start = g.now()
	g.next = 0
	g.open = true
	return nil
}

// Stall makes the grabber deliver nothing for d, as a frozen display would.
func (g *VideoGrabber) Stall(d time.Duration) {
	g.mu.Lock()
	g.stallUntil = g.now().Add(d)
	g.mu.Unlock()
}

// Grab waits for the next frame slot. Slots missed while stalled or while
// the caller was slow are skipped rather than delivered late.
func (g *VideoGrabber) Grab(timeout time.Duration) ([]byte, error) {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return nil, errors.New("testsource: not open")
	}

	now := g.now()
	due := g.start.Add(time.Duration(g.next) * g.period)
	if g.stallUntil.After(due) {
		due = g.stallUntil
	}
	if now.After(due) {
		// Catch up to the current slot.
		g.next = int64(now.Sub(g.start) / g.period)
		due = g.start.Add(time.Duration(g.next) * g.period)
		if g.stallUntil.After(due) {
			due = g.stallUntil
		}
	}
	wait := due.Sub(now)
	if wait > timeout {
		g.mu.Unlock()
		g.sleep(timeout)
		return nil, ports.ErrGrabTimeout
	}
	index := g.next
	g.next++
	format := g.format
	g.mu.Unlock()

	if wait > 0 {
		g.sleep(wait)
	}

	img := g.renderer.Render(format.Width, format.Height, ports.PatternFrame{
		Index:   index,
		Elapsed: time.Duration(index) * g.period,
		Label:   g.label,
	})

	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.buf) != format.FrameSize() {
		g.buf = make([]byte, format.FrameSize())
	}
	ToNV12(img, g.buf, format.Width, format.Height)
	out := make([]byte, len(g.buf))
	copy(out, g.buf)
	return out, nil
}

func (g *VideoGrabber) Close() error {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
	return nil
}

// ToNV12 converts img to NV12 in dst (BT.601 limited range). dst must hold
// width*height*3/2 bytes.
func ToNV12(img image.Image, dst []byte, width, height int) {
	rgba, ok := img.(*image.RGBA)
	if !ok || rgba.Rect.Dx() < width || rgba.Rect.Dy() < height {
		rgba = image.NewRGBA(image.Rect(0, 0, width, height))
		draw.Draw(rgba, rgba.Rect, img, img.Bounds().Min, draw.Src)
	}

	yPlane := dst[:width*height]
	uv := dst[width*height:]
	for y := 0; y < height; y++ {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < width; x++ {
			i := x * 4
			r, g, b := int(row[i]), int(row[i+1]), int(row[i+2])
			yPlane[y*width+x] = clamp(((66*r + 129*g + 25*b + 128) >> 8) + 16)
		}
	}
	for y := 0; y < height; y += 2 {
		row := rgba.Pix[y*rgba.Stride:]
		for x := 0; x < width; x += 2 {
			i := x * 4
			r, g, b := int(row[i]), int(row[i+1]), int(row[i+2])
			j := (y/2)*width + x
			uv[j] = clamp(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
			uv[j+1] = clamp(((112*r - 94*g - 18*b + 128) >> 8) + 128)
		}
	}
}

func clamp(v int) byte {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return byte(v)
}

var _ ports.VideoGrabber = (*VideoGrabber)(nil)
