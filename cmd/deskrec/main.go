// Package main provides the CLI entry point for deskrec.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/user/deskrec/pkg/adapters/h264encoder"
	"github.com/user/deskrec/pkg/adapters/logger"
	"github.com/user/deskrec/pkg/adapters/mp4writer"
	"github.com/user/deskrec/pkg/adapters/osfilesystem"
	"github.com/user/deskrec/pkg/config"
	"github.com/user/deskrec/pkg/ports"
	"github.com/user/deskrec/pkg/recorder"
	"github.com/user/deskrec/pkg/summarizer"
)

var version = "dev"

func main() {
	app := &cli.App{
		Name:    "deskrec",
		Usage:   l10n.T("Record the desktop with audio to an MP4 file"),
		Version: version,
		// record is the default action.
		Flags:  recordFlags(),
		Action: runRecord,
		Commands: []*cli.Command{
			{
				Name:   "record",
				Usage:  l10n.T("Record a display to an MP4 file"),
				Flags:  recordFlags(),
				Action: runRecord,
			},
			{
				Name:    "encoders",
				Aliases: []string{"enum-encoders"},
				Usage:   l10n.T("List the available H.264 encoders and their indices"),
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to the ffmpeg executable")},
					&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Value: "warn", Usage: l10n.T("Log level (debug, info, warn, error)")},
				},
				Action: runEncoders,
			},
			{
				Name:      "probe",
				Usage:     l10n.T("Show the tracks of a recorded MP4 file"),
				ArgsUsage: "<file.mp4>",
				Action:    runProbe,
			},
			{
				Name:  "version",
				Usage: l10n.T("Show version information"),
				Action: func(c *cli.Context) error {
					fmt.Println(l10n.F("deskrec version %s", version))
					return nil
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, l10n.F("Error: %s", err))
		var hr *h264encoder.HRESULTError
		if errors.As(err, &hr) {
			fmt.Fprintln(os.Stderr, l10n.F("Media Foundation HRESULT: 0x%08X", hr.Code))
		}
		os.Exit(1)
	}
}

func recordFlags() []cli.Flag {
	return []cli.Flag{
		// Capture
		&cli.IntFlag{Name: "display", Aliases: []string{"d"}, Usage: l10n.T("Display index to capture"), Category: l10n.T("Capture")},
		&cli.StringFlag{Name: "source", Value: "screen", Usage: l10n.T("Capture source (screen, test)"), Category: l10n.T("Capture")},
		&cli.IntFlag{Name: "width", Usage: l10n.T("Output video width (default: 1920)"), Category: l10n.T("Capture")},
		&cli.IntFlag{Name: "height", Usage: l10n.T("Output video height (default: 1080)"), Category: l10n.T("Capture")},
		&cli.IntFlag{Name: "fps", Aliases: []string{"f"}, Usage: l10n.T("Output frame rate (default: 30)"), Category: l10n.T("Capture")},
		&cli.DurationFlag{Name: "duration", Usage: l10n.T("Stop after this long (e.g. 30s, 0 = until stopped)"), Category: l10n.T("Capture")},

		// Output
		&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: l10n.T("Output MP4 file path"), Category: l10n.T("Output")},
		&cli.StringFlag{Name: "summary", Usage: l10n.T("Output recording summary to file (Markdown format)"), Category: l10n.T("Output")},

		// Encoding
		&cli.IntFlag{Name: "bitrate", Aliases: []string{"b"}, Usage: l10n.T("Video bitrate in Mbps (overrides preset)"), Category: l10n.T("Video and Quality")},
		&cli.StringFlag{Name: "preset", Usage: l10n.T("Quality preset (low, medium, high)"), Category: l10n.T("Video and Quality")},
		&cli.IntFlag{Name: "encoder", Aliases: []string{"e"}, Usage: l10n.T("Encoder index from the encoders command"), Category: l10n.T("Video and Quality")},

		// Audio
		&cli.StringFlag{Name: "audio", Aliases: []string{"a"}, Usage: l10n.T("Audio source (loopback, microphone, none)"), Category: l10n.T("Audio")},
		&cli.StringFlag{Name: "audio-device", Usage: l10n.T("Audio capture device name"), Category: l10n.T("Audio")},

		// Configuration
		&cli.PathFlag{Name: "config", Aliases: []string{"c"}, Usage: l10n.T("YAML configuration file"), Category: l10n.T("Configuration")},
		&cli.StringFlag{Name: "ffmpeg", Usage: l10n.T("Path to the ffmpeg executable"), Category: l10n.T("Configuration")},

		// Debug
		&cli.BoolFlag{Name: "debug", Usage: l10n.T("Enable debug output"), Category: l10n.T("Debug")},
		&cli.StringFlag{Name: "debug-dir", Usage: l10n.T("Directory for debug output"), Category: l10n.T("Debug")},

		// Logging
		&cli.StringFlag{Name: "log-level", Aliases: []string{"l"}, Usage: l10n.T("Log level (debug, info, warn, error)"), Category: l10n.T("Logging")},
		&cli.BoolFlag{Name: "quiet", Aliases: []string{"q"}, Usage: l10n.T("Suppress all log output"), Category: l10n.T("Logging")},
	}
}

// loadConfig reads --config, or the defaults, and applies the flags that
// were set on the command line.
func loadConfig(c *cli.Context) (config.Config, error) {
	cfg := config.Defaults()
	if path := c.Path("config"); path != "" {
		var err error
		if cfg, err = config.LoadFromFile(path); err != nil {
			return cfg, err
		}
	}

	if c.IsSet("display") {
		cfg.Display = c.Int("display")
	}
	if c.IsSet("source") {
		cfg.Source = c.String("source")
	}
	if c.IsSet("width") {
		cfg.Width = c.Int("width")
	}
	if c.IsSet("height") {
		cfg.Height = c.Int("height")
	}
	if c.IsSet("fps") {
		cfg.FPS = c.Int("fps")
		if cfg.CaptureFPS < cfg.FPS {
			cfg.CaptureFPS = cfg.FPS
		}
	}
	if c.IsSet("duration") {
		cfg.DurationSec = int(c.Duration("duration").Round(time.Second) / time.Second)
	}
	if c.IsSet("output") {
		cfg.OutputPath = c.String("output")
	}
	if c.IsSet("summary") {
		cfg.Summary = c.String("summary")
	}
	if c.IsSet("preset") {
		cfg.Preset = c.String("preset")
	}
	// An explicit bitrate beats any preset.
	if c.IsSet("bitrate") {
		cfg.BitrateMbps = c.Int("bitrate")
		cfg.Preset = ""
	}
	if c.IsSet("encoder") {
		cfg.Encoder = c.Int("encoder")
	}
	if c.IsSet("audio") {
		cfg.Audio = c.String("audio")
	}
	if c.IsSet("audio-device") {
		cfg.AudioDevice = c.String("audio-device")
	}
	if c.IsSet("ffmpeg") {
		cfg.FFmpegPath = c.String("ffmpeg")
	}
	if c.IsSet("debug") {
		cfg.Debug = c.Bool("debug")
	}
	if c.IsSet("debug-dir") {
		cfg.DebugDir = c.String("debug-dir")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}

	return cfg, cfg.Validate()
}

func newLogger(level string, quiet bool) ports.Logger {
	if quiet {
		return logger.NewNoop()
	}
	return logger.NewConsole(ports.ParseLogLevel(level))
}

// runRecord records until ENTER, a signal, --duration or a fatal error.
func runRecord(c *cli.Context) error {
	if c.NArg() > 0 {
		return fmt.Errorf("%s: %q", l10n.T("Unexpected argument"), c.Args().First())
	}
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	log := newLogger(cfg.LogLevel, c.Bool("quiet"))

	ctx, cancel := context.WithCancel(c.Context)
	defer cancel()

	// Handle signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case <-sigCh:
			log.Warn(l10n.T("Interrupted, shutting down..."))
			cancel()
		case <-ctx.Done():
		}
	}()

	opts := cfg.ToRecorderOptions()
	fs := osfilesystem.New()
	rec, err := recorder.New(opts, recorder.Dependencies{Logger: log, FileSystem: fs}).Start(ctx)
	if err != nil {
		return err
	}

	// Console mode: ENTER stops the recording.
	if isatty.IsTerminal(os.Stdin.Fd()) || isatty.IsCygwinTerminal(os.Stdin.Fd()) {
		fmt.Println(l10n.T("Press ENTER to stop recording"))
		go func() {
			if _, err := bufio.NewReader(os.Stdin).ReadString('\n'); err == nil {
				cancel()
			}
		}()
	}

	result, err := rec.Wait(ctx, cfg.Duration())
	if err != nil {
		return err
	}

	var size int64
	if st, serr := os.Stat(result.OutputPath); serr == nil {
		size = st.Size()
	}
	summary := summarizer.FromResult(opts, result, size)
	fmt.Print(summarizer.ConsoleFormatter{}.Format(summary))

	if cfg.Summary != "" {
		w := summarizer.NewWriter(summarizer.ForPath(cfg.Summary), fs)
		if err := w.Write(cfg.Summary, summary); err != nil {
			log.Warn(l10n.F("Failed to write summary: %s", err))
		} else {
			log.Info(l10n.F("Summary saved to %s", cfg.Summary))
		}
	}
	if opts.DebugDir != "" {
		log.Info(l10n.F("Debug output saved to %s", opts.DebugDir))
	}
	return nil
}

// runEncoders prints the encoder devices in index order.
func runEncoders(c *cli.Context) error {
	log := newLogger(c.String("log-level"), false)
	devices, err := recorder.Encoders(c.String("ffmpeg"), log)
	if err != nil {
		return err
	}
	for _, d := range devices {
		info := d.Info()
		kind := l10n.T("software")
		if info.Hardware {
			kind = l10n.T("hardware")
		}
		fmt.Printf("[%d] %s (%s, %s)\n", info.Index, info.Name, info.Backend, kind)
	}
	return nil
}

// runProbe prints the tracks of a recorded file.
func runProbe(c *cli.Context) error {
	if c.NArg() != 1 {
		return errors.New(l10n.T("Exactly one MP4 file argument is required"))
	}
	path := c.Args().First()
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := mp4writer.Probe(f)
	if err != nil {
		return err
	}

	fmt.Println(l10n.F("%s: %d tracks, %d fragments", path, len(info.Tracks), info.Fragments))
	for _, t := range info.Tracks {
		switch t.Kind {
		case "video":
			fmt.Printf("  #%d video %s %dx%d: %d samples, %d keyframes, %s\n",
				t.ID, t.Codec, t.Width, t.Height, t.Samples, t.Keyframes, t.Duration.Round(time.Millisecond))
		default:
			fmt.Printf("  #%d %s %s %d Hz: %d samples, %s\n",
				t.ID, t.Kind, t.Codec, t.SampleRate, t.Samples, t.Duration.Round(time.Millisecond))
		}
	}
	return nil
}
