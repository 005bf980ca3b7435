package summarizer

import (
	"github.com/user/deskrec/pkg/recorder"
)

// FromResult builds a Summary from a finished recording. fileSize is the
// size of the output file, zero if unknown.
func FromResult(opts recorder.Options, r recorder.Result, fileSize int64) *Summary {
	s := r.Session
	b := NewBuilder().
		WithSession(s.SessionID, s.StartedAt, s.Duration).
		WithOutput(r.OutputPath, fileSize).
		WithSettings(Settings{
			Source:          string(opts.Source),
			Display:         opts.Display,
			Width:           r.Video.Width,
			Height:          r.Video.Height,
			FPS:             r.Video.FrameRate,
			BitrateMbps:     opts.BitrateMbps,
			Encoder:         r.Encoder.Name,
			EncoderBackend:  r.Encoder.Backend,
			HardwareEncoder: r.Encoder.Hardware,
			Audio:           opts.Audio.String(),
			AudioError:      r.AudioError,
		}).
		WithVideo(VideoInfo{
			Captured:   s.Video.Capture.Captured,
			Duplicates: s.Video.Capture.Duplicates,
			Admitted:   s.Video.Pacer.Admitted,
			Dropped:    s.Video.Pacer.Dropped,
			Encoded:    s.Video.Driver.Outputs,
			Written:    s.Writer.VideoWritten,
		})

	if s.Audio != nil && r.Audio != nil {
		b.WithAudio(AudioInfo{
			SampleRate:      r.Audio.SampleRate,
			Channels:        r.Audio.Channels,
			Captured:        s.Audio.Capture.Captured,
			Silent:          s.Audio.Capture.Silent,
			Discontinuities: s.Audio.Capture.Discontinuities,
			Encoded:         s.Audio.Driver.Outputs,
			Written:         s.Writer.AudioWritten,
			Dropped:         s.Writer.AudioDropped,
		})
	}
	if r.Process != nil {
		b.WithProcess(ProcessInfo{
			PeakCPU:    r.Process.PeakCPU,
			AverageCPU: r.Process.AverageCPU,
			PeakRSS:    r.Process.PeakRSS,
		})
	}
	return b.Build()
}
