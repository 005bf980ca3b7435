// Package screengrab captures a display through ffmpeg's platform grab
// devices and delivers NV12 frames.
package screengrab

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"time"

	"github.com/user/deskrec/pkg/adapters/ffmpeg"
	"github.com/user/deskrec/pkg/ports"
)

// queueDepth keeps the grab close to real time: stale frames are dropped.
const queueDepth = 2

// Grabber implements ports.VideoGrabber for one display.
type Grabber struct {
	ffmpegPath string
	display    int
	goos       string
	logger     ports.Logger

	reader *ffmpeg.Reader
}

// New creates a grabber for the display index.
func New(ffmpegPath string, display int, logger ports.Logger) *Grabber {
	return &Grabber{
		ffmpegPath: ffmpegPath,
		display:    display,
		goos:       runtime.GOOS,
		logger:     logger.WithComponent("screengrab"),
	}
}

// Open starts ffmpeg scaled to the format's size.
func (g *Grabber) Open(format ports.Format) error {
	if g.reader != nil {
		return errors.New("screengrab: already open")
	}
	if format.Width <= 0 || format.Height <= 0 || format.FrameRate <= 0 {
		return fmt.Errorf("screengrab: invalid format %s", format)
	}
	args, err := grabArgs(g.goos, g.display, format)
	if err != nil {
		return err
	}

	r, err := ffmpeg.StartReader(ffmpeg.Command{Path: g.ffmpegPath, Args: args},
		ffmpeg.FixedFramer{Size: format.FrameSize()}, queueDepth, g.logger)
	if err != nil {
		return err
	}
	g.reader = r
	g.logger.Debug("Grabbing display %d at %s", g.display, format)
	return nil
}

// Grab returns the next frame. A dead ffmpeg is reported as ErrDeviceLost.
func (g *Grabber) Grab(timeout time.Duration) ([]byte, error) {
	if g.reader == nil {
		return nil, errors.New("screengrab: not open")
	}
	frame, err := g.reader.Read(timeout)
	switch {
	case err == nil:
		return frame, nil
	case errors.Is(err, ffmpeg.ErrReadTimeout):
		return nil, ports.ErrGrabTimeout
	default:
		return nil, fmt.Errorf("%w: %v", ports.ErrDeviceLost, err)
	}
}

func (g *Grabber) Close() error {
	if g.reader == nil {
		return nil
	}
	if n := g.reader.Dropped(); n > 0 {
		g.logger.Debug("%d stale frames dropped", n)
	}
	err := g.reader.Close()
	g.reader = nil
	return err
}

// grabArgs builds the ffmpeg command line for the platform's grab device.
func grabArgs(goos string, display int, format ports.Format) ([]string, error) {
	fps := strconv.Itoa(format.FrameRate)
	scale := fmt.Sprintf("scale=%d:%d:flags=bilinear,format=nv12", format.Width, format.Height)

	args := []string{"-hide_banner", "-loglevel", "error"}
	switch goos {
	case "linux":
		x := os.Getenv("DISPLAY")
		if x == "" {
			x = ":0"
		}
		args = append(args,
			"-f", "x11grab",
			"-draw_mouse", "1",
			"-framerate", fps,
			"-i", fmt.Sprintf("%s.%d", x, display),
			"-vf", scale,
		)
	case "windows":
		args = append(args,
			"-f", "lavfi",
			"-i", fmt.Sprintf("ddagrab=output_idx=%d:framerate=%s:draw_mouse=1", display, fps),
			"-vf", "hwdownload,format=bgra,"+scale,
		)
	case "darwin":
		args = append(args,
			"-f", "avfoundation",
			"-capture_cursor", "1",
			"-framerate", fps,
			"-pixel_format", "nv12",
			"-i", fmt.Sprintf("Capture screen %d:none", display),
			"-vf", scale,
		)
	default:
		return nil, fmt.Errorf("screengrab: unsupported platform %s", goos)
	}

	return append(args,
		"-r", fps,
		"-f", "rawvideo",
		"-pix_fmt", "nv12",
		"pipe:1",
	), nil
}

var _ ports.VideoGrabber = (*Grabber)(nil)
