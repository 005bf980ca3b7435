package ffmpeg

import (
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// Stamper restores sample times on encoder output, which ffmpeg's
// elementary streams do not carry.
type Stamper interface {
	// Push records an input sample before it is written to ffmpeg.
	Push(sample ports.RawSample)
	// Stamp returns the time and duration of the next output frame.
	Stamp() (time, duration int64)
}

// FIFOStamper pairs outputs with inputs in order. It suits encoders that
// emit exactly one frame per input without reordering.
type FIFOStamper struct {
	mu    sync.Mutex
	queue []ports.RawSample
	last  ports.RawSample
}

func (s *FIFOStamper) Push(sample ports.RawSample) {
	s.mu.Lock()
	s.queue = append(s.queue, ports.RawSample{Time: sample.Time, Duration: sample.Duration})
	s.mu.Unlock()
}

// Stamp pops the oldest input. With the queue empty it extrapolates from
// the last stamp.
func (s *FIFOStamper) Stamp() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.queue) == 0 {
		s.last.Time += s.last.Duration
		return s.last.Time, s.last.Duration
	}
	s.last = s.queue[0]
	s.queue = s.queue[1:]
	return s.last.Time, s.last.Duration
}

// resyncTolerance is how far an input time may stray from the counted
// position before the stamper starts a new segment.
const resyncTolerance = ports.MediaTimescale / 1000

// segment maps a run of contiguous input samples onto the timeline.
type segment struct {
	time  int64 // time of the first sample
	start int64 // sample position of the first sample
}

// CountingStamper stamps fixed-size audio frames by counting samples. Input
// times are followed in segments: an input marked FlagDiscontinuity, or one
// whose time strays from the counted position, starts a new segment, and
// output frames are mapped back through the segments by sample position.
type CountingStamper struct {
	// FrameSamples is the number of PCM frames per output frame (1024 for AAC).
	FrameSamples int
	SampleRate   int

	mu       sync.Mutex
	segments []segment
	pushed   int64
	emitted  int64
}

func (s *CountingStamper) Push(sample ports.RawSample) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rate := int64(s.SampleRate)
	if n := len(s.segments); n == 0 || sample.Flags.Has(ports.FlagDiscontinuity) {
		s.segments = append(s.segments, segment{time: sample.Time, start: s.pushed})
	} else {
		expected := s.timeAt(s.pushed)
		if diff := sample.Time - expected; diff > resyncTolerance || diff < -resyncTolerance {
			s.segments = append(s.segments, segment{time: sample.Time, start: s.pushed})
		}
	}
	s.pushed += (sample.Duration*rate + ports.MediaTimescale/2) / ports.MediaTimescale
}

func (s *CountingStamper) Stamp() (int64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.segments) == 0 {
		s.segments = append(s.segments, segment{})
	}
	// Segments wholly behind the output position are no longer needed.
	for len(s.segments) > 1 && s.segments[1].start <= s.emitted {
		s.segments = s.segments[1:]
	}

	frame := int64(s.FrameSamples)
	t := s.timeAt(s.emitted)
	s.emitted += frame
	next := s.timeAt(s.emitted)
	if next <= t {
		// A segment moved backwards; keep the nominal duration.
		next = t + frame*ports.MediaTimescale/int64(s.SampleRate)
	}
	return t, next - t
}

// timeAt maps a sample position through the latest segment starting at or
// before it.
func (s *CountingStamper) timeAt(pos int64) int64 {
	seg := s.segments[0]
	for _, c := range s.segments[1:] {
		if c.start > pos {
			break
		}
		seg = c
	}
	return seg.time + (pos-seg.start)*ports.MediaTimescale/int64(s.SampleRate)
}
