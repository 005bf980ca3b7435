// Package audiograb captures system loopback or microphone audio through
// ffmpeg as 48 kHz stereo s16le packets.
package audiograb

import (
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/user/deskrec/pkg/adapters/ffmpeg"
	"github.com/user/deskrec/pkg/ports"
)

const (
	SampleRate    = 48000
	Channels      = 2
	BitsPerSample = 16

	// PacketFrames is 10ms of audio.
	PacketFrames = SampleRate / 100

	// queueDepth holds one second of packets.
	queueDepth = 100
)

// Grabber implements ports.AudioGrabber.
type Grabber struct {
	ffmpegPath string
	source     ports.AudioSource
	device     string
	goos       string
	logger     ports.Logger

	reader *ffmpeg.Reader
}

// New creates a grabber. device overrides the platform's default endpoint.
func New(ffmpegPath string, source ports.AudioSource, device string, logger ports.Logger) *Grabber {
	return &Grabber{
		ffmpegPath: ffmpegPath,
		source:     source,
		device:     device,
		goos:       runtime.GOOS,
		logger:     logger.WithComponent("audiograb"),
	}
}

// Format is the PCM format every grabber delivers.
func Format() ports.Format {
	return ports.Format{
		Track:         ports.TrackAudio,
		Codec:         ports.CodecPCM,
		SampleRate:    SampleRate,
		Channels:      Channels,
		BitsPerSample: BitsPerSample,
	}
}

// Open starts ffmpeg. AudioNone fails with ErrAudioDisabled.
func (g *Grabber) Open() (ports.Format, error) {
	if g.source == ports.AudioNone {
		return ports.Format{}, ports.ErrAudioDisabled
	}
	if g.reader != nil {
		return ports.Format{}, errors.New("audiograb: already open")
	}
	args, err := grabArgs(g.goos, g.source, g.device)
	if err != nil {
		return ports.Format{}, err
	}

	format := Format()
	r, err := ffmpeg.StartReader(ffmpeg.Command{Path: g.ffmpegPath, Args: args},
		ffmpeg.FixedFramer{Size: PacketFrames * format.BytesPerFrame()}, queueDepth, g.logger)
	if err != nil {
		return ports.Format{}, err
	}
	g.reader = r
	g.logger.Debug("Capturing %s audio: %s", g.source, format)
	return format, nil
}

// Grab returns the next 10ms packet. All-zero packets are reported silent.
func (g *Grabber) Grab(timeout time.Duration) (ports.AudioPacket, error) {
	if g.reader == nil {
		return ports.AudioPacket{}, errors.New("audiograb: not open")
	}
	data, err := g.reader.Read(timeout)
	switch {
	case err == nil:
	case errors.Is(err, ffmpeg.ErrReadTimeout):
		return ports.AudioPacket{}, ports.ErrGrabTimeout
	default:
		return ports.AudioPacket{}, fmt.Errorf("%w: %v", ports.ErrDeviceLost, err)
	}

	if isSilent(data) {
		return ports.AudioPacket{Frames: PacketFrames, Silent: true}, nil
	}
	return ports.AudioPacket{Data: data, Frames: PacketFrames}, nil
}

func (g *Grabber) Close() error {
	if g.reader == nil {
		return nil
	}
	if n := g.reader.Dropped(); n > 0 {
		g.logger.Warn("%d audio packets dropped by the grab queue", n)
	}
	err := g.reader.Close()
	g.reader = nil
	return err
}

func isSilent(data []byte) bool {
	for _, b := range data {
		if b != 0 {
			return false
		}
	}
	return true
}

// grabArgs builds the ffmpeg command line for the platform's audio device.
func grabArgs(goos string, source ports.AudioSource, device string) ([]string, error) {
	args := []string{"-hide_banner", "-loglevel", "error"}

	switch goos {
	case "linux":
		if device == "" {
			device = "default"
			if source == ports.AudioLoopback {
				device = "@DEFAULT_MONITOR@"
			}
		}
		args = append(args, "-f", "pulse", "-fragment_size", "1920", "-i", device)
	case "windows":
		if device == "" {
			if source == ports.AudioMicrophone {
				return nil, errors.New("audiograb: microphone capture on windows needs an audio device name")
			}
			device = "virtual-audio-capturer"
		}
		args = append(args, "-f", "dshow", "-audio_buffer_size", "10", "-i", "audio="+device)
	case "darwin":
		if device == "" {
			if source == ports.AudioLoopback {
				return nil, errors.New("audiograb: loopback capture on macOS needs a virtual device name")
			}
			device = "default"
		}
		args = append(args, "-f", "avfoundation", "-i", ":"+device)
	default:
		return nil, fmt.Errorf("audiograb: unsupported platform %s", goos)
	}

	return append(args,
		"-ar", strconv.Itoa(SampleRate),
		"-ac", strconv.Itoa(Channels),
		"-f", "s16le",
		"pipe:1",
	), nil
}

var _ ports.AudioGrabber = (*Grabber)(nil)
