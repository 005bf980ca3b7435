package recorder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/user/deskrec/pkg/adapters/aacencoder"
	"github.com/user/deskrec/pkg/adapters/audiograb"
	"github.com/user/deskrec/pkg/adapters/ffmpeg"
	"github.com/user/deskrec/pkg/adapters/filesink"
	"github.com/user/deskrec/pkg/adapters/ggrenderer"
	"github.com/user/deskrec/pkg/adapters/h264encoder"
	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/adapters/mp4writer"
	"github.com/user/deskrec/pkg/adapters/nullsink"
	"github.com/user/deskrec/pkg/adapters/osfilesystem"
	"github.com/user/deskrec/pkg/adapters/procstats"
	"github.com/user/deskrec/pkg/adapters/screengrab"
	"github.com/user/deskrec/pkg/adapters/testsource"
	"github.com/user/deskrec/pkg/clock"
	"github.com/user/deskrec/pkg/orchestrator"
	"github.com/user/deskrec/pkg/pipeline"
	"github.com/user/deskrec/pkg/ports"
	"github.com/user/deskrec/pkg/stages/encode"
	"github.com/user/deskrec/pkg/stages/mux"
	"github.com/user/deskrec/pkg/stages/pace"
	"github.com/user/deskrec/pkg/stages/record"
)

// Dependencies are the collaborators of a recording. Nil fields are filled
// with the production adapters chosen by Options.
type Dependencies struct {
	Logger     ports.Logger
	FileSystem ports.FileSystem
	DebugSink  ports.DebugSink
	Counter    ports.Counter
	Renderer   ports.PatternRenderer

	VideoEncoder ports.EncoderDevice
	AudioEncoder ports.EncoderDevice
	VideoGrabber ports.VideoGrabber
	AudioGrabber ports.AudioGrabber
}

// Result describes a finished recording.
type Result struct {
	OutputPath string              `json:"outputPath"`
	Encoder    ports.EncoderInfo   `json:"encoder"`
	Video      ports.Format        `json:"video"`
	Audio      *ports.Format       `json:"audio,omitempty"`
	AudioError string              `json:"audioError,omitempty"`
	Session    orchestrator.Result `json:"session"`
	Process    *procstats.Stats    `json:"process,omitempty"`
}

// Recorder assembles the capture, encode and mux stages for one recording.
type Recorder struct {
	opts Options
	deps Dependencies
	log  ports.Logger

	ffmpegOnce sync.Once
	ffmpegPath string
	ffmpegErr  error
}

// New creates a Recorder.
func New(opts Options, deps Dependencies) *Recorder {
	if deps.Logger == nil {
		deps.Logger = logger.NewNoop()
	}
	if deps.FileSystem == nil {
		deps.FileSystem = osfilesystem.New()
	}
	if deps.DebugSink == nil {
		if opts.DebugDir != "" {
			deps.DebugSink = filesink.New(opts.DebugDir, deps.FileSystem)
		} else {
			deps.DebugSink = nullsink.New()
		}
	}
	if deps.Counter == nil {
		deps.Counter = clock.System()
	}
	if deps.Renderer == nil {
		deps.Renderer = ggrenderer.New()
	}
	return &Recorder{
		opts: opts,
		deps: deps,
		log:  deps.Logger.WithComponent("recorder"),
	}
}

// Start builds the pipeline and starts the session. The returned Recording
// runs until Stop is called or it fails on its own.
func (r *Recorder) Start(ctx context.Context) (rec *Recording, err error) {
	o := r.opts
	if err := o.Validate(); err != nil {
		return nil, err
	}

	// Everything opened below is released in reverse if a later step fails.
	var cleanup []func()
	defer func() {
		if err != nil {
			for i := len(cleanup) - 1; i >= 0; i-- {
				cleanup[i]()
			}
		}
	}()

	// Video encoder
	device, err := r.videoEncoder()
	if err != nil {
		return nil, err
	}
	info := device.Info()
	rawVideo := ports.Format{
		Track:     ports.TrackVideo,
		Codec:     ports.CodecNV12,
		Width:     o.Width,
		Height:    o.Height,
		FrameRate: o.FPS,
	}
	videoTf, err := device.CreateTransform(ports.EncoderOptions{Input: rawVideo, Bitrate: o.Bitrate()})
	if err != nil {
		return nil, fmt.Errorf("create video encoder %q: %w", info.Name, err)
	}
	var video *orchestrator.Pipeline
	cleanup = append(cleanup, func() { closeIdle(videoTf, video) })

	videoGrabber, err := r.videoGrabber()
	if err != nil {
		return nil, err
	}

	// Audio is optional: any failure leaves the recording video-only.
	audioGrabber, audioTf, audioErr := r.openAudio()
	switch {
	case audioErr == nil:
	case errors.Is(audioErr, ports.ErrAudioDisabled):
		r.log.Debug("%v", audioErr)
	default:
		r.log.Warn("Audio unavailable, recording video only: %v", audioErr)
	}
	var audio *orchestrator.Pipeline
	var audioSrc *record.AudioSource
	if audioTf != nil {
		cleanup = append(cleanup, func() {
			closeIdle(audioTf, audio)
			if audioSrc != nil {
				audioSrc.Close()
			} else {
				audioGrabber.Close()
			}
		})
	}

	out, err := r.deps.FileSystem.Create(o.OutputPath)
	if err != nil {
		return nil, fmt.Errorf("create output: %w", err)
	}
	cleanup = append(cleanup, func() { out.Close() })

	var audioOut *ports.Format
	if audioTf != nil {
		f := audioTf.OutputFormat()
		audioOut = &f
	}
	container := mp4writer.New(out, mp4writer.Options{FragmentDuration: o.FragmentDuration}, r.deps.Logger)
	writer, err := mux.New(container, videoTf.OutputFormat(), audioOut, r.deps.Logger,
		mux.WithAudioQueue(o.Queues.AudioEncoded),
		mux.WithDebugSink(r.deps.DebugSink),
	)
	if err != nil {
		return nil, err
	}

	// Session time starts here, after the slow setup above.
	anchor, err := clock.NewAnchor(r.deps.Counter)
	if err != nil {
		return nil, err
	}
	video, err = r.videoPipeline(anchor, videoGrabber, videoTf, writer)
	if err != nil {
		return nil, err
	}
	if audioTf != nil {
		audioRaw := make(chan ports.RawSample, o.Queues.AudioRaw)
		audioSrc = record.NewAudioSource(audioGrabber, anchor, r.deps.Logger, record.WithPollInterval(o.PollInterval))
		audio = &orchestrator.Pipeline{
			Capture: audioSrc,
			Raw:     audioRaw,
			Driver: encode.NewDriver("audio", audioTf, pipeline.FromChannel[ports.RawSample](audioRaw),
				writer.QueueAudioSample, r.deps.Logger, encode.WithDrainTimeout(o.DrainTimeout)),
		}
	}

	r.log.Info("Recording display %d to %s (%dx%d, %d fps, %d Mbps)",
		o.Display, o.OutputPath, o.Width, o.Height, o.FPS, o.BitrateMbps)
	r.log.Info("Using encoder %d: %s (%s)", info.Index, info.Name, info.Backend)

	session := orchestrator.New(orchestrator.Config{DrainGrace: o.DrainTimeout}, writer, video, audio, r.deps.Logger)
	if err = session.Start(ctx); err != nil {
		return nil, err
	}

	rec = &Recording{
		session: session,
		out:     out,
		sink:    r.deps.DebugSink,
		log:     r.log,
		result: Result{
			OutputPath: o.OutputPath,
			Encoder:    info,
			Video:      videoTf.OutputFormat(),
			Audio:      audioOut,
		},
	}
	if audioErr != nil && !errors.Is(audioErr, ports.ErrAudioDisabled) {
		rec.result.AudioError = audioErr.Error()
	}

	sampler, serr := procstats.New(procstats.DefaultInterval, r.deps.Logger)
	if serr == nil {
		serr = sampler.Start()
	}
	if serr != nil {
		r.log.Debug("CPU sampling unavailable: %v", serr)
	} else {
		rec.sampler = sampler
	}
	return rec, nil
}

// closeIdle closes tf unless a started driver already owns it.
func closeIdle(tf ports.Transform, p *orchestrator.Pipeline) {
	if p == nil || p.Driver.State() == encode.StateIdle {
		tf.Close()
	}
}

func (r *Recorder) videoPipeline(anchor *clock.Anchor, grabber ports.VideoGrabber, tf ports.Transform, writer *mux.Writer) (*orchestrator.Pipeline, error) {
	o := r.opts
	raw := make(chan ports.RawSample, o.Queues.VideoRaw)
	pacer, err := pace.New(o.FPS, raw, r.deps.Logger)
	if err != nil {
		return nil, err
	}

	capture := tf.InputFormat()
	capture.FrameRate = o.CaptureFPS
	return &orchestrator.Pipeline{
		Capture: record.NewVideoSource(grabber, capture, anchor, r.deps.Logger, record.WithPollInterval(o.PollInterval)),
		Raw:     raw,
		Pacer:   pacer,
		Driver:  encode.NewDriver("video", tf, pacer, writer.WriteVideoSample, r.deps.Logger, encode.WithDrainTimeout(o.DrainTimeout)),
	}, nil
}

// ffmpeg resolves the ffmpeg binary once.
func (r *Recorder) ffmpeg() (string, error) {
	r.ffmpegOnce.Do(func() {
		r.ffmpegPath, r.ffmpegErr = ffmpeg.Locate(r.opts.FFmpegPath)
	})
	return r.ffmpegPath, r.ffmpegErr
}

func (r *Recorder) videoEncoder() (ports.EncoderDevice, error) {
	if r.deps.VideoEncoder != nil {
		return r.deps.VideoEncoder, nil
	}
	devices, err := Encoders(r.opts.FFmpegPath, r.deps.Logger)
	if err != nil {
		return nil, err
	}
	return h264encoder.Select(devices, r.opts.Encoder)
}

func (r *Recorder) videoGrabber() (ports.VideoGrabber, error) {
	if r.deps.VideoGrabber != nil {
		return r.deps.VideoGrabber, nil
	}
	if r.opts.Source == SourceTest {
		return testsource.NewVideoGrabber(r.deps.Renderer, fmt.Sprintf("display %d", r.opts.Display)), nil
	}
	path, err := r.ffmpeg()
	if err != nil {
		return nil, err
	}
	return screengrab.New(path, r.opts.Display, r.deps.Logger), nil
}

func (r *Recorder) audioGrabber() (ports.AudioGrabber, error) {
	if r.opts.Audio == ports.AudioNone {
		return nil, ports.ErrAudioDisabled
	}
	if r.deps.AudioGrabber != nil {
		return r.deps.AudioGrabber, nil
	}
	if r.opts.Source == SourceTest {
		return testsource.NewAudioGrabber(), nil
	}
	path, err := r.ffmpeg()
	if err != nil {
		return nil, err
	}
	return audiograb.New(path, r.opts.Audio, r.opts.AudioDevice, r.deps.Logger), nil
}

func (r *Recorder) audioEncoder() (ports.EncoderDevice, error) {
	if r.deps.AudioEncoder != nil {
		return r.deps.AudioEncoder, nil
	}
	path, err := r.ffmpeg()
	if err != nil {
		return nil, err
	}
	return aacencoder.NewDevice(path, r.deps.Logger), nil
}

// openAudio opens the audio device and its encoder. Both are nil on error.
// The returned grabber is already open and reports the format it opened with.
func (r *Recorder) openAudio() (ports.AudioGrabber, ports.Transform, error) {
	grabber, err := r.audioGrabber()
	if err != nil {
		return nil, nil, err
	}
	format, err := grabber.Open()
	if err != nil {
		return nil, nil, fmt.Errorf("open audio grabber: %w", err)
	}
	if format.SampleRate <= 0 || format.Channels <= 0 {
		grabber.Close()
		return nil, nil, fmt.Errorf("open audio grabber: invalid format %s", format)
	}
	format.Track = ports.TrackAudio

	device, err := r.audioEncoder()
	if err != nil {
		grabber.Close()
		return nil, nil, err
	}
	tf, err := device.CreateTransform(ports.EncoderOptions{Input: format, Bitrate: r.opts.AudioBitrate()})
	if err != nil {
		grabber.Close()
		return nil, nil, fmt.Errorf("create audio encoder: %w", err)
	}
	return openedGrabber{AudioGrabber: grabber, format: format}, tf, nil
}

// openedGrabber lets a capture source adopt a grabber opened earlier.
type openedGrabber struct {
	ports.AudioGrabber
	format ports.Format
}

func (g openedGrabber) Open() (ports.Format, error) {
	return g.format, nil
}

// Encoders lists the H.264 encoder devices in index order.
func Encoders(ffmpegPath string, logger ports.Logger) ([]ports.EncoderDevice, error) {
	path, err := ffmpeg.Locate(ffmpegPath)
	if err != nil {
		// Native encoders may still be available.
		path = ""
	}
	return h264encoder.Devices(path, logger)
}

// Recording is a running session.
type Recording struct {
	session *orchestrator.Session
	out     io.Closer
	sampler *procstats.Sampler
	sink    ports.DebugSink
	log     ports.Logger

	stopOnce sync.Once
	result   Result
	err      error
}

// ID returns the session identifier.
func (r *Recording) ID() string {
	return r.session.ID()
}

// Done is closed when the recording fails on its own.
func (r *Recording) Done() <-chan struct{} {
	return r.session.Done()
}

// Err returns the failure cause after Done is closed.
func (r *Recording) Err() error {
	return r.session.Err()
}

// Stop ends the recording, closes the file and returns the result. It is
// idempotent.
func (r *Recording) Stop() (Result, error) {
	r.stopOnce.Do(func() {
		r.result.Session, r.err = r.session.Stop()
		if err := r.out.Close(); err != nil && r.err == nil {
			r.err = fmt.Errorf("close output: %w", err)
		}
		if r.sampler != nil {
			stats := r.sampler.Stop()
			r.result.Process = &stats
		}
		r.saveSession()
		if r.err == nil {
			r.log.Info("Output saved to %s", r.result.OutputPath)
		}
	})
	return r.result, r.err
}

func (r *Recording) saveSession() {
	if !r.sink.Enabled() {
		return
	}
	data, err := json.MarshalIndent(r.result, "", "  ")
	if err == nil {
		err = r.sink.SaveSessionJSON(data)
	}
	if err != nil {
		r.log.Warn("Failed to save session statistics: %v", err)
	}
}

// Wait blocks until ctx is done or the recording fails, then stops it.
func (r *Recording) Wait(ctx context.Context, limit time.Duration) (Result, error) {
	var timeout <-chan time.Time
	if limit > 0 {
		t := time.NewTimer(limit)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case <-ctx.Done():
	case <-timeout:
	case <-r.Done():
	}
	return r.Stop()
}
