// Package mp4writer implements ports.ContainerWriter as a fragmented MP4
// file built with mp4ff.
package mp4writer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/aac"
	"github.com/Eyevinn/mp4ff/mp4"

	"github.com/user/deskrec/pkg/adapters/annexb"
	"github.com/user/deskrec/pkg/ports"
)

const (
	// DefaultFragmentDuration is the minimum span of a fragment. Fragments
	// are cut at the first video keyframe after it.
	DefaultFragmentDuration = time.Second

	videoTimescale = 90000
)

var (
	// ErrNoCodecConfig is returned when the video stream never carried SPS/PPS.
	ErrNoCodecConfig = errors.New("mp4writer: no SPS/PPS in video stream")

	// ErrUnsupportedCodec is returned by AddStream for codecs other than H.264 and AAC.
	ErrUnsupportedCodec = errors.New("mp4writer: unsupported codec")

	// ErrStreamIndex is returned for an unknown stream index.
	ErrStreamIndex = errors.New("mp4writer: unknown stream index")
)

// Options configures a Writer.
type Options struct {
	FragmentDuration time.Duration
}

type track struct {
	id        uint32
	format    ports.Format
	timescale uint32
	trak      *mp4.TrakBox

	// pending waits for the next sample to learn its duration.
	pending     *mp4.FullSample
	pendingDur  uint32
	queued      []mp4.FullSample
	lastDur     uint32
	sampleCount int
}

type buffered struct {
	stream int
	sample ports.EncodedSample
}

// Writer writes a fragmented MP4 to w. It is not safe for concurrent use.
type Writer struct {
	w      io.Writer
	opts   Options
	logger ports.Logger

	init   *mp4.InitSegment
	tracks []*track
	video  *track

	began       bool
	initWritten bool
	finalized   bool
	err         error

	held      []buffered
	seq       uint32
	fragStart int64
	fragOpen  bool
	dropped   int
}

// New creates a writer on w.
func New(w io.Writer, opts Options, logger ports.Logger) *Writer {
	if opts.FragmentDuration <= 0 {
		opts.FragmentDuration = DefaultFragmentDuration
	}
	return &Writer{
		w:      w,
		opts:   opts,
		logger: logger.WithComponent("mp4"),
		init:   mp4.CreateEmptyInit(),
	}
}

// AddStream adds a track. H.264 tracks use a 90 kHz timescale, AAC tracks
// use the sample rate.
func (m *Writer) AddStream(format ports.Format) (int, error) {
	if m.began {
		return 0, errors.New("mp4writer: AddStream after BeginWriting")
	}

	t := &track{format: format}
	switch format.Codec {
	case ports.CodecH264:
		if m.video != nil {
			return 0, fmt.Errorf("%w: second video track", ErrUnsupportedCodec)
		}
		t.timescale = videoTimescale
		m.init.AddEmptyTrack(t.timescale, "video", "und")
	case ports.CodecAAC:
		if format.SampleRate <= 0 {
			return 0, fmt.Errorf("mp4writer: invalid sample rate %d", format.SampleRate)
		}
		t.timescale = uint32(format.SampleRate)
		m.init.AddEmptyTrack(t.timescale, "audio", "und")
	default:
		return 0, fmt.Errorf("%w: %s", ErrUnsupportedCodec, format.Codec)
	}

	traks := m.init.Moov.Traks
	t.trak = traks[len(traks)-1]
	t.id = t.trak.Tkhd.TrackID

	if format.Codec == ports.CodecAAC {
		if err := t.trak.SetAACDescriptor(aac.AAClc, format.SampleRate); err != nil {
			return 0, fmt.Errorf("set AAC descriptor: %w", err)
		}
	} else {
		m.video = t
	}

	m.tracks = append(m.tracks, t)
	return len(m.tracks) - 1, nil
}

// SetInputFormat checks that samples arrive already encoded in the stream's codec.
func (m *Writer) SetInputFormat(stream int, format ports.Format) error {
	t, err := m.track(stream)
	if err != nil {
		return err
	}
	if format.Codec != t.format.Codec {
		return fmt.Errorf("%w: stream %d takes %s, not %s", ErrUnsupportedCodec, stream, t.format.Codec, format.Codec)
	}
	return nil
}

// BeginWriting arms the writer. The init segment is written once the first
// video keyframe provides the codec configuration.
func (m *Writer) BeginWriting() error {
	if m.video == nil {
		return errors.New("mp4writer: a video stream is required")
	}
	m.began = true
	return nil
}

// WriteSample converts and queues one encoded sample.
func (m *Writer) WriteSample(stream int, sample ports.EncodedSample) error {
	if m.err != nil {
		return m.err
	}
	if !m.began || m.finalized {
		return errors.New("mp4writer: not writing")
	}
	t, err := m.track(stream)
	if err != nil {
		return err
	}

	if !m.initWritten {
		if t != m.video {
			m.held = append(m.held, buffered{stream: stream, sample: sample})
			return nil
		}
		if !sample.Keyframe {
			m.dropped++
			m.logger.Debug("Dropped video sample at %d before the first keyframe", sample.Time)
			return nil
		}
		if err := m.writeInit(sample.Data); err != nil {
			if errors.Is(err, ErrNoCodecConfig) {
				m.dropped++
				m.logger.Warn("Keyframe at %d carries no SPS/PPS, dropped", sample.Time)
				return nil
			}
			return m.fail(err)
		}
		if err := m.add(t, sample); err != nil {
			return m.fail(err)
		}
		return m.flushHeld()
	}

	if err := m.add(t, sample); err != nil {
		return m.fail(err)
	}
	return nil
}

// Finalize writes the remaining samples as a last fragment.
func (m *Writer) Finalize() error {
	if m.finalized {
		return m.err
	}
	m.finalized = true
	if m.err != nil {
		return m.err
	}
	if !m.initWritten {
		return ErrNoCodecConfig
	}

	for _, t := range m.tracks {
		if t.pending == nil {
			continue
		}
		dur := t.pendingDur
		if dur == 0 {
			dur = t.lastDur
		}
		m.settle(t, dur)
	}
	if err := m.flushFragment(); err != nil {
		return m.fail(err)
	}

	if m.dropped > 0 {
		m.logger.Debug("%d video samples dropped before the first keyframe", m.dropped)
	}
	return nil
}

func (m *Writer) track(stream int) (*track, error) {
	if stream < 0 || stream >= len(m.tracks) {
		return nil, fmt.Errorf("%w: %d", ErrStreamIndex, stream)
	}
	return m.tracks[stream], nil
}

func (m *Writer) fail(err error) error {
	m.err = err
	return err
}

// writeInit configures the video sample description from the keyframe's
// parameter sets and writes ftyp and moov.
func (m *Writer) writeInit(keyframe []byte) error {
	sps, pps := annexb.ParameterSets(keyframe)
	if sps == nil || pps == nil {
		return ErrNoCodecConfig
	}

	avcC, err := mp4.CreateAvcC([][]byte{sps}, [][]byte{pps}, true)
	if err != nil {
		return fmt.Errorf("create avcC: %w", err)
	}

	v := m.video
	width := uint16(v.format.Width)
	height := uint16(v.format.Height)
	avc1 := mp4.CreateVisualSampleEntryBox("avc1", width, height, avcC)
	v.trak.Mdia.Minf.Stbl.Stsd.AddChild(avc1)
	v.trak.Tkhd.Width = mp4.Fixed32(v.format.Width << 16)
	v.trak.Tkhd.Height = mp4.Fixed32(v.format.Height << 16)

	ftyp := mp4.NewFtyp("isom", 0x200, []string{"isom", "iso6", "avc1", "mp41"})
	if err := ftyp.Encode(m.w); err != nil {
		return fmt.Errorf("encode ftyp: %w", err)
	}
	if err := m.init.Moov.Encode(m.w); err != nil {
		return fmt.Errorf("encode moov: %w", err)
	}

	m.initWritten = true
	m.logger.Debug("Init segment written: %dx%d", v.format.Width, v.format.Height)
	return nil
}

func (m *Writer) flushHeld() error {
	held := m.held
	m.held = nil
	for _, b := range held {
		if err := m.add(m.tracks[b.stream], b.sample); err != nil {
			return m.fail(err)
		}
	}
	return nil
}

// add settles the track's pending sample now that its successor is known,
// cuts a fragment at a due video keyframe, and makes sample pending.
func (m *Writer) add(t *track, sample ports.EncodedSample) error {
	decodeTime := toTimescale(sample.Time, t.timescale)

	if t.pending != nil {
		dur := uint32(0)
		if decodeTime > t.pending.DecodeTime {
			dur = uint32(decodeTime - t.pending.DecodeTime)
		}
		if dur == 0 {
			dur = t.pendingDur
		}
		m.settle(t, dur)
	}

	if t == m.video && sample.Keyframe && m.fragOpen &&
		sample.Time-m.fragStart >= m.opts.FragmentDuration.Nanoseconds()/100 {
		if err := m.flushFragment(); err != nil {
			return err
		}
	}
	if t == m.video && !m.fragOpen {
		m.fragStart = sample.Time
		m.fragOpen = true
	}

	data := sample.Data
	if t == m.video {
		data = annexb.ToAVCC(sample.Data)
	}

	flags := mp4.NonSyncSampleFlags
	if sample.Keyframe || t != m.video {
		flags = mp4.SyncSampleFlags
	}

	t.pending = &mp4.FullSample{
		Sample: mp4.Sample{
			Flags: flags,
			Size:  uint32(len(data)),
		},
		DecodeTime: decodeTime,
		Data:       data,
	}
	t.pendingDur = uint32(toTimescale(sample.Duration, t.timescale))
	return nil
}

func (m *Writer) settle(t *track, dur uint32) {
	if dur == 0 {
		dur = 1
	}
	s := *t.pending
	s.Dur = dur
	t.queued = append(t.queued, s)
	t.lastDur = dur
	t.sampleCount++
	t.pending = nil
}

// flushFragment writes one moof+mdat holding every queued sample.
func (m *Writer) flushFragment() error {
	var ids []uint32
	for _, t := range m.tracks {
		if len(t.queued) > 0 {
			ids = append(ids, t.id)
		}
	}
	m.fragOpen = false
	if len(ids) == 0 {
		return nil
	}

	m.seq++
	frag, err := mp4.CreateMultiTrackFragment(m.seq, ids)
	if err != nil {
		return fmt.Errorf("create fragment: %w", err)
	}
	for _, t := range m.tracks {
		for _, s := range t.queued {
			if err := frag.AddFullSampleToTrack(s, t.id); err != nil {
				return fmt.Errorf("add sample to track %d: %w", t.id, err)
			}
		}
		t.queued = t.queued[:0]
	}
	if err := frag.Encode(m.w); err != nil {
		return fmt.Errorf("encode fragment %d: %w", m.seq, err)
	}
	return nil
}

// toTimescale converts 100ns units to a track timescale.
func toTimescale(t int64, timescale uint32) uint64 {
	if t <= 0 {
		return 0
	}
	return uint64(t) * uint64(timescale) / ports.MediaTimescale
}

var _ ports.ContainerWriter = (*Writer)(nil)
