package ports

import (
	"image"
	"time"
)

// PatternFrame carries the state drawn into one synthetic frame.
type PatternFrame struct {
	Index   int64
	Elapsed time.Duration
	Label   string
}

// PatternRenderer draws synthetic frames for the test source.
type PatternRenderer interface {
	// Render returns an image of exactly width x height pixels.
	Render(width, height int, frame PatternFrame) image.Image
}
