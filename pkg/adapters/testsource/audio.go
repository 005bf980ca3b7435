package testsource

import (
	"encoding/binary"
	"errors"
	"math"
	"sync"
	"time"

	"github.com/user/deskrec/pkg/ports"
)

const (
	toneRate     = 48000
	toneChannels = 2
	// tonePacket is 10ms of audio.
	tonePacket = toneRate / 100
)

// AudioGrabber produces a sine tone in 10ms packets at real-time pace.
type AudioGrabber struct {
	// Frequency of the tone in Hz. Zero produces silence.
	Frequency float64
	// SilentEvery marks every n-th packet silent. Zero disables it.
	SilentEvery int

	mu     sync.Mutex
	open   bool
	start  time.Time
	packet int64
	phase  float64

	now   func() time.Time
	sleep func(time.Duration)
}

// NewAudioGrabber creates a 440 Hz tone grabber.
func NewAudioGrabber() *AudioGrabber {
	return &AudioGrabber{Frequency: 440, now: time.Now, sleep: time.Sleep}
}

func (g *AudioGrabber) Open() (ports.Format, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.open {
		return ports.Format{}, errors.New("testsource: already open")
	}
	g.open = true
	g.start = g.now()
	g.packet = 0
	return ports.Format{
		Track:         ports.TrackAudio,
		Codec:         ports.CodecPCM,
		SampleRate:    toneRate,
		Channels:      toneChannels,
		BitsPerSample: 16,
	}, nil
}

// Grab returns the next packet once its 10ms has elapsed.
func (g *AudioGrabber) Grab(timeout time.Duration) (ports.AudioPacket, error) {
	g.mu.Lock()
	if !g.open {
		g.mu.Unlock()
		return ports.AudioPacket{}, errors.New("testsource: not open")
	}
	due := g.start.Add(time.Duration(g.packet+1) * 10 * time.Millisecond)
	wait := due.Sub(g.now())
	if wait > timeout {
		g.mu.Unlock()
		g.sleep(timeout)
		return ports.AudioPacket{}, ports.ErrGrabTimeout
	}
	g.packet++
	n := g.packet
	g.mu.Unlock()

	if wait > 0 {
		g.sleep(wait)
	}

	if g.SilentEvery > 0 && n%int64(g.SilentEvery) == 0 {
		g.advancePhase()
		return ports.AudioPacket{Frames: tonePacket, Silent: true}, nil
	}
	return ports.AudioPacket{Data: g.tone(), Frames: tonePacket}, nil
}

func (g *AudioGrabber) advancePhase() {
	g.mu.Lock()
	g.phase = math.Mod(g.phase+2*math.Pi*g.Frequency*tonePacket/toneRate, 2*math.Pi)
	g.mu.Unlock()
}

func (g *AudioGrabber) tone() []byte {
	g.mu.Lock()
	defer g.mu.Unlock()

	buf := make([]byte, tonePacket*toneChannels*2)
	step := 2 * math.Pi * g.Frequency / toneRate
	for i := 0; i < tonePacket; i++ {
		v := int16(math.Sin(g.phase) * 0.25 * math.MaxInt16)
		for c := 0; c < toneChannels; c++ {
			binary.LittleEndian.PutUint16(buf[(i*toneChannels+c)*2:], uint16(v))
		}
		g.phase += step
	}
	g.phase = math.Mod(g.phase, 2*math.Pi)
	return buf
}

func (g *AudioGrabber) Close() error {
	g.mu.Lock()
	g.open = false
	g.mu.Unlock()
	return nil
}

var _ ports.AudioGrabber = (*AudioGrabber)(nil)
