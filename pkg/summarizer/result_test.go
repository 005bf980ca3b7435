package summarizer

import (
	"testing"
	"time"

	"github.com/user/deskrec/pkg/adapters/procstats"
	"github.com/user/deskrec/pkg/orchestrator"
	"github.com/user/deskrec/pkg/ports"
	"github.com/user/deskrec/pkg/recorder"
	"github.com/user/deskrec/pkg/stages/encode"
	"github.com/user/deskrec/pkg/stages/mux"
	"github.com/user/deskrec/pkg/stages/pace"
	"github.com/user/deskrec/pkg/stages/record"
)

func TestFromResult(t *testing.T) {
	opts := recorder.NewOptionsBuilder().WithDisplay(2).Build()
	audio := ports.Format{Track: ports.TrackAudio, Codec: ports.CodecAAC, SampleRate: 48000, Channels: 2}
	start := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	r := recorder.Result{
		OutputPath: "capture.mp4",
		Encoder:    ports.EncoderInfo{Name: "h264_qsv", Backend: "ffmpeg", Hardware: true},
		Video:      ports.Format{Track: ports.TrackVideo, Codec: ports.CodecH264, Width: 1280, Height: 720, FrameRate: 30},
		Audio:      &audio,
		Session: orchestrator.Result{
			SessionID: "sid",
			StartedAt: start,
			Duration:  3 * time.Second,
			Video: orchestrator.TrackResult{
				Capture: record.Stats{Captured: 180, Duplicates: 2},
				Pacer:   pace.Stats{Admitted: 90, Dropped: 90},
				Driver:  encode.Stats{Outputs: 90},
			},
			Audio: &orchestrator.TrackResult{
				Capture: record.Stats{Captured: 300, Silent: 7, Discontinuities: 1},
				Driver:  encode.Stats{Outputs: 140},
			},
			Writer: mux.Stats{VideoWritten: 90, AudioWritten: 139, AudioDropped: 1},
		},
		Process: &procstats.Stats{PeakCPU: 40, AverageCPU: 25, PeakRSS: 1 << 20},
	}

	s := FromResult(opts, r, 4096)

	if s.Session.ID != "sid" || s.Session.DurationMs != 3000 || !s.Session.StartedAt.Equal(start) {
		t.Errorf("unexpected session: %+v", s.Session)
	}
	if s.Output.Path != "capture.mp4" || s.Output.FileSize != 4096 {
		t.Errorf("unexpected output: %+v", s.Output)
	}
	if s.Settings.Display != 2 || s.Settings.Width != 1280 || s.Settings.FPS != 30 || !s.Settings.HardwareEncoder {
		t.Errorf("unexpected settings: %+v", s.Settings)
	}
	want := VideoInfo{Captured: 180, Duplicates: 2, Admitted: 90, Dropped: 90, Encoded: 90, Written: 90}
	if s.Video != want {
		t.Errorf("video = %+v, want %+v", s.Video, want)
	}
	if s.Audio == nil {
		t.Fatal("expected audio info")
	}
	if s.Audio.Silent != 7 || s.Audio.Written != 139 || s.Audio.Dropped != 1 || s.Audio.SampleRate != 48000 {
		t.Errorf("unexpected audio: %+v", s.Audio)
	}
	if s.Process == nil || s.Process.PeakRSS != 1<<20 {
		t.Errorf("unexpected process: %+v", s.Process)
	}
}

func TestFromResult_VideoOnly(t *testing.T) {
	opts := recorder.NewOptionsBuilder().WithAudio(ports.AudioNone).Build()
	s := FromResult(opts, recorder.Result{}, 0)

	if s.Audio != nil {
		t.Error("expected no audio info")
	}
	if s.Process != nil {
		t.Error("expected no process info")
	}
	if s.Settings.Audio != "none" {
		t.Errorf("expected audio 'none', got %q", s.Settings.Audio)
	}
}
