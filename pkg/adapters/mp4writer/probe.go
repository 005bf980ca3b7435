package mp4writer

import (
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/Eyevinn/mp4ff/mp4"
)

// ErrNotFragmented is returned by Probe for files without an init segment.
var ErrNotFragmented = errors.New("mp4writer: not a fragmented MP4")

// TrackInfo summarizes one track of a recorded file.
type TrackInfo struct {
	ID        uint32
	Kind      string // "video" or "audio"
	Codec     string // sample entry type, e.g. "avc1", "mp4a"
	Timescale uint32

	Samples   int
	Keyframes int
	// Start is the decode time of the first sample.
	Start time.Duration
	// Duration is the sum of sample durations.
	Duration time.Duration

	Width      int
	Height     int
	SampleRate int
}

// Info summarizes a recorded file.
type Info struct {
	Tracks    []TrackInfo
	Fragments int
}

// Track returns the first track of the given kind.
func (i Info) Track(kind string) (TrackInfo, bool) {
	for _, t := range i.Tracks {
		if t.Kind == kind {
			return t, true
		}
	}
	return TrackInfo{}, false
}

// Count returns the number of tracks of the given kind.
func (i Info) Count(kind string) int {
	n := 0
	for _, t := range i.Tracks {
		if t.Kind == kind {
			n++
		}
	}
	return n
}

// Probe reads a fragmented MP4 and reports its tracks.
func Probe(r io.Reader) (Info, error) {
	f, err := mp4.DecodeFile(r)
	if err != nil {
		return Info{}, fmt.Errorf("decode mp4: %w", err)
	}
	if f.Init == nil || f.Init.Moov == nil {
		return Info{}, ErrNotFragmented
	}

	var info Info
	index := make(map[uint32]int)
	ticks := make(map[uint32]uint64)
	started := make(map[uint32]bool)
	trexs := make(map[uint32]*mp4.TrexBox)

	if f.Init.Moov.Mvex != nil {
		for _, trex := range f.Init.Moov.Mvex.Trexs {
			trexs[trex.TrackID] = trex
		}
	}

	for _, trak := range f.Init.Moov.Traks {
		if trak.Mdia == nil || trak.Mdia.Hdlr == nil || trak.Mdia.Mdhd == nil {
			continue
		}
		t := TrackInfo{
			ID:        trak.Tkhd.TrackID,
			Timescale: trak.Mdia.Mdhd.Timescale,
		}
		switch trak.Mdia.Hdlr.HandlerType {
		case "vide":
			t.Kind = "video"
		case "soun":
			t.Kind = "audio"
			t.SampleRate = int(t.Timescale)
		default:
			continue
		}
		if trak.Mdia.Minf != nil && trak.Mdia.Minf.Stbl != nil && trak.Mdia.Minf.Stbl.Stsd != nil {
			for _, child := range trak.Mdia.Minf.Stbl.Stsd.Children {
				t.Codec = child.Type()
				if vse, ok := child.(*mp4.VisualSampleEntryBox); ok {
					t.Width = int(vse.Width)
					t.Height = int(vse.Height)
				}
				break
			}
		}
		index[t.ID] = len(info.Tracks)
		info.Tracks = append(info.Tracks, t)
	}

	for _, seg := range f.Segments {
		for _, frag := range seg.Fragments {
			if frag.Moof == nil {
				continue
			}
			info.Fragments++

			for _, traf := range frag.Moof.Trafs {
				id := traf.Tfhd.TrackID
				i, ok := index[id]
				if !ok {
					continue
				}
				t := &info.Tracks[i]

				if !started[id] && traf.Tfdt != nil {
					t.Start = ticksToDuration(traf.Tfdt.BaseMediaDecodeTime(), t.Timescale)
					started[id] = true
				}

				defaultDur := traf.Tfhd.DefaultSampleDuration
				if defaultDur == 0 && trexs[id] != nil {
					defaultDur = trexs[id].DefaultSampleDuration
				}

				for _, trun := range traf.Truns {
					for _, s := range trun.Samples {
						dur := s.Dur
						if dur == 0 {
							dur = defaultDur
						}
						ticks[id] += uint64(dur)
						t.Samples++
						if s.Flags == mp4.SyncSampleFlags {
							t.Keyframes++
						}
					}
				}
			}
		}
	}

	for i := range info.Tracks {
		t := &info.Tracks[i]
		t.Duration = ticksToDuration(ticks[t.ID], t.Timescale)
	}
	return info, nil
}

func ticksToDuration(ticks uint64, timescale uint32) time.Duration {
	if timescale == 0 {
		return 0
	}
	return time.Duration(ticks * uint64(time.Second) / uint64(timescale))
}
