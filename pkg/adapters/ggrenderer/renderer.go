// Package ggrenderer draws synthetic test-pattern frames using the gg library.
package ggrenderer

import (
	"fmt"
	"image"
	"image/color"
	"sync"
	"time"

	"github.com/fogleman/gg"
	"golang.org/x/image/draw"
	"golang.org/x/image/font/basicfont"

	"github.com/user/deskrec/pkg/ports"
)

// Bar colors, left to right.
var bars = []color.RGBA{
	{192, 192, 192, 255},
	{192, 192, 0, 255},
	{0, 192, 192, 255},
	{0, 192, 0, 255},
	{192, 0, 192, 255},
	{192, 0, 0, 255},
	{0, 0, 192, 255},
}

// sweepPeriod is the time the marker takes to cross the frame.
const sweepPeriod = 4 * time.Second

// Renderer implements ports.PatternRenderer. The image returned by Render
// is reused by the next call.
type Renderer struct {
	mu    sync.Mutex
	size  image.Point
	bg    *image.RGBA
	frame *image.RGBA
	text  *gg.Context
}

// New creates a new Renderer.
func New() *Renderer {
	return &Renderer{}
}

// Render draws color bars, a marker sweeping with elapsed time and a
// caption with the frame index, time and label.
func (r *Renderer) Render(width, height int, f ports.PatternFrame) image.Image {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size != image.Pt(width, height) {
		r.size = image.Pt(width, height)
		r.bg = background(width, height)
		r.frame = image.NewRGBA(r.bg.Rect)
	}
	copy(r.frame.Pix, r.bg.Pix)

	dc := gg.NewContextForRGBA(r.frame)

	// Marker
	phase := float64(f.Elapsed%sweepPeriod) / float64(sweepPeriod)
	size := float64(height) / 8
	x := phase * (float64(width) - size)
	dc.SetColor(color.White)
	dc.DrawRectangle(x, float64(height)*0.70, size, size)
	dc.Fill()

	r.drawCaption(f, width, height)
	return r.frame
}

// background renders the static bars once per size.
func background(width, height int) *image.RGBA {
	dc := gg.NewContext(width, height)
	dc.SetColor(color.Black)
	dc.Clear()

	barHeight := float64(height) * 0.65
	barWidth := float64(width) / float64(len(bars))
	for i, c := range bars {
		dc.SetColor(c)
		dc.DrawRectangle(float64(i)*barWidth, 0, barWidth+1, barHeight)
		dc.Fill()
	}

	img := dc.Image().(*image.RGBA)
	return img
}

// drawCaption draws the caption at basicfont size into a small context and
// scales it onto the frame.
func (r *Renderer) drawCaption(f ports.PatternFrame, width, height int) {
	const textW, textH = 240, 16

	if r.text == nil {
		r.text = gg.NewContext(textW, textH)
		r.text.SetFontFace(basicfont.Face7x13)
	}
	tc := r.text
	tc.SetColor(color.Black)
	tc.Clear()
	tc.SetColor(color.White)

	caption := fmt.Sprintf("%06d  %s", f.Index, formatElapsed(f.Elapsed))
	if f.Label != "" {
		caption += "  " + f.Label
	}
	tc.DrawStringAnchored(caption, 4, textH/2, 0, 0.35)

	scale := width / 2 / textW
	if scale < 1 {
		scale = 1
	}
	dst := image.Rect(0, 0, textW*scale, textH*scale).Add(image.Pt(width/16, height*3/4+height/8))
	draw.ApproxBiLinear.Scale(r.frame, dst.Intersect(r.frame.Rect), tc.Image(), tc.Image().Bounds(), draw.Src, nil)
}

func formatElapsed(d time.Duration) string {
	ms := d.Milliseconds()
	return fmt.Sprintf("%02d:%02d:%02d.%03d", ms/3_600_000, ms/60_000%60, ms/1000%60, ms%1000)
}

var _ ports.PatternRenderer = (*Renderer)(nil)
