package ggrenderer

import (
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/user/deskrec/pkg/ports"
)

func rgbaAt(img image.Image, x, y int) color.RGBA {
	return color.RGBAModel.Convert(img.At(x, y)).(color.RGBA)
}

func TestRenderer_Size(t *testing.T) {
	r := New()

	for _, size := range []image.Point{{320, 240}, {1920, 1080}, {64, 48}} {
		img := r.Render(size.X, size.Y, ports.PatternFrame{})
		b := img.Bounds()
		if b.Dx() != size.X || b.Dy() != size.Y {
			t.Errorf("Render(%v) size = %dx%d", size, b.Dx(), b.Dy())
		}
	}
}

func TestRenderer_Bars(t *testing.T) {
	r := New()
	img := r.Render(700, 400, ports.PatternFrame{})

	// Sample the middle of each bar near the top.
	for i, want := range bars {
		got := rgbaAt(img, i*100+50, 20)
		if got != want {
			t.Errorf("bar %d = %v, want %v", i, got, want)
		}
	}
}

func TestRenderer_MarkerMoves(t *testing.T) {
	r := New()
	const w, h = 640, 360

	markerX := func(elapsed time.Duration) int {
		img := r.Render(w, h, ports.PatternFrame{Elapsed: elapsed})
		hf := float64(h)
		y := int(hf*0.70) + 5
		for x := 0; x < w; x++ {
			if rgbaAt(img, x, y) == (color.RGBA{255, 255, 255, 255}) {
				return x
			}
		}
		return -1
	}

	x0 := markerX(0)
	x1 := markerX(sweepPeriod / 2)
	if x0 < 0 || x1 < 0 {
		t.Fatalf("marker not found: x0=%d x1=%d", x0, x1)
	}
	if x1 <= x0 {
		t.Errorf("marker did not move right: x0=%d x1=%d", x0, x1)
	}
	if x2 := markerX(sweepPeriod); x2 != x0 {
		t.Errorf("marker should wrap after one period: got %d, want %d", x2, x0)
	}
}

func TestRenderer_FramesDiffer(t *testing.T) {
	r := New()
	a := append([]byte(nil), r.Render(320, 180, ports.PatternFrame{Index: 1}).(*image.RGBA).Pix...)
	b := r.Render(320, 180, ports.PatternFrame{Index: 2, Elapsed: 33 * time.Millisecond}).(*image.RGBA).Pix

	same := true
	for i := range a {
		if a[i] != b[i] {
			same = false
			break
		}
	}
	if same {
		t.Error("consecutive frames should differ")
	}
}

func TestFormatElapsed(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{0, "00:00:00.000"},
		{1500 * time.Millisecond, "00:00:01.500"},
		{time.Hour + 2*time.Minute + 3*time.Second + 4*time.Millisecond, "01:02:03.004"},
	}
	for _, tt := range tests {
		if got := formatElapsed(tt.d); got != tt.want {
			t.Errorf("formatElapsed(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
