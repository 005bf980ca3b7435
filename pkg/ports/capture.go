package ports

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrGrabTimeout is returned by a grabber when nothing arrived within the poll interval.
	// It is not a failure; the caller loops.
	ErrGrabTimeout = errors.New("capture: no data within poll interval")

	// ErrDeviceLost is returned when the capture surface or device went away.
	ErrDeviceLost = errors.New("capture: device lost")

	// ErrAudioDisabled is returned when audio is requested with AudioNone.
	ErrAudioDisabled = errors.New("capture: audio source is none")
)

// CaptureSource produces raw samples on its own goroutine.
type CaptureSource interface {
	// Start begins emitting samples onto sink. A second call fails.
	Start(sink chan<- RawSample) error

	// Stop ends the capture loop and waits for it. Stopping a stopped source returns nil.
	Stop() error

	// Done is closed when the capture loop has exited for any reason.
	Done() <-chan struct{}

	// Err returns the reason the loop exited on its own, if any.
	Err() error
}

// VideoGrabber pulls raw NV12 frames from a display.
type VideoGrabber interface {
	// Open prepares the grabber to deliver frames in the given format.
	Open(format Format) error

	// Grab waits up to timeout for the next frame.
	// It returns ErrGrabTimeout when no frame arrived.
	Grab(timeout time.Duration) ([]byte, error)

	Close() error
}

// AudioPacket is one buffer read from an audio device.
type AudioPacket struct {
	Data   []byte
	Frames int
	Silent bool
}

// AudioGrabber pulls PCM packets from an audio endpoint.
type AudioGrabber interface {
	// Open starts the device and returns the negotiated PCM format.
	Open() (Format, error)

	// Grab waits up to timeout for the next packet.
	// It returns ErrGrabTimeout when no packet arrived.
	Grab(timeout time.Duration) (AudioPacket, error)

	Close() error
}

// AudioSource selects which endpoint feeds the audio track.
type AudioSource int

const (
	AudioLoopback AudioSource = iota
	AudioMicrophone
	AudioNone
)

func (s AudioSource) String() string {
	switch s {
	case AudioLoopback:
		return "loopback"
	case AudioMicrophone:
		return "microphone"
	case AudioNone:
		return "none"
	default:
		return "unknown"
	}
}

// ParseAudioSource parses loopback, microphone or none.
func ParseAudioSource(s string) (AudioSource, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "loopback", "":
		return AudioLoopback, nil
	case "microphone", "mic":
		return AudioMicrophone, nil
	case "none":
		return AudioNone, nil
	default:
		return AudioNone, fmt.Errorf("unknown audio source %q (want loopback, microphone or none)", s)
	}
}
