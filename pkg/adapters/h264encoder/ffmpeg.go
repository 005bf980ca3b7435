package h264encoder

import (
	"bufio"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/user/deskrec/pkg/adapters/annexb"
	"github.com/user/deskrec/pkg/adapters/ffmpeg"
	"github.com/user/deskrec/pkg/ports"
)

// knownEncoders lists the ffmpeg H.264 encoders in preference order.
var knownEncoders = []string{
	"libx264",
	"h264_nvenc",
	"h264_qsv",
	"h264_amf",
	"h264_videotoolbox",
	"h264_mf",
}

// FFmpegDevice encodes through an ffmpeg child process.
type FFmpegDevice struct {
	info   ports.EncoderInfo
	path   string
	logger ports.Logger
}

// NewFFmpegDevice creates a device for the named ffmpeg encoder.
func NewFFmpegDevice(path, encoder string, logger ports.Logger) *FFmpegDevice {
	return &FFmpegDevice{
		info: ports.EncoderInfo{
			Name:     encoder,
			Backend:  "ffmpeg",
			Hardware: encoder != "libx264",
			Codec:    ports.CodecH264,
		},
		path:   path,
		logger: logger,
	}
}

// FFmpegDevices lists the known H.264 encoders compiled into the ffmpeg at path.
func FFmpegDevices(path string, logger ports.Logger) ([]ports.EncoderDevice, error) {
	out, err := exec.Command(path, "-hide_banner", "-encoders").Output()
	if err != nil {
		return nil, fmt.Errorf("list ffmpeg encoders: %w", err)
	}

	var devices []ports.EncoderDevice
	for _, name := range ParseEncoders(string(out)) {
		devices = append(devices, NewFFmpegDevice(path, name, logger))
	}
	return devices, nil
}

// ParseEncoders extracts the known H.264 encoders from `ffmpeg -encoders`
// output, in preference order.
func ParseEncoders(output string) []string {
	available := make(map[string]bool)
	inList := false

	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if strings.HasPrefix(line, "---") {
			inList = true
			continue
		}
		if !inList {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 || !strings.HasPrefix(fields[0], "V") {
			continue
		}
		available[fields[1]] = true
	}

	var names []string
	for _, name := range knownEncoders {
		if available[name] {
			names = append(names, name)
		}
	}
	return names
}

func (d *FFmpegDevice) Info() ports.EncoderInfo { return d.info }

func (d *FFmpegDevice) setIndex(i int) { d.info.Index = i }

// CreateTransform starts nothing; the process is launched by Begin.
func (d *FFmpegDevice) CreateTransform(opts ports.EncoderOptions) (ports.Transform, error) {
	in := opts.Input
	if in.Codec != ports.CodecNV12 {
		return nil, fmt.Errorf("h264encoder: input must be nv12, got %s", in.Codec)
	}
	if in.Width <= 0 || in.Height <= 0 || in.FrameRate <= 0 {
		return nil, fmt.Errorf("h264encoder: invalid input format %s", in)
	}

	out := ports.Format{
		Track:     ports.TrackVideo,
		Codec:     ports.CodecH264,
		Width:     in.Width,
		Height:    in.Height,
		FrameRate: in.FrameRate,
		Bitrate:   opts.Bitrate,
	}

	return ffmpeg.NewTransform(ffmpeg.TransformConfig{
		Command: ffmpeg.Command{
			Path: d.path,
			Args: encodeArgs(d.info.Name, in, opts.Bitrate),
		},
		Input:    in,
		Output:   out,
		Framer:   ffmpeg.NewDelimitedFramer(splitAccessUnits),
		Stamper:  &ffmpeg.FIFOStamper{},
		Keyframe: annexb.IsKeyframe,
	}, d.logger), nil
}

// encodeArgs builds an ffmpeg command line reading NV12 on stdin and writing
// an Annex-B elementary stream with access unit delimiters on stdout.
func encodeArgs(encoder string, in ports.Format, bitrate int) []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "error",
		"-f", "rawvideo",
		"-pix_fmt", "nv12",
		"-s", fmt.Sprintf("%dx%d", in.Width, in.Height),
		"-r", strconv.Itoa(in.FrameRate),
		"-i", "pipe:0",
		"-c:v", encoder,
	}

	switch encoder {
	case "libx264":
		args = append(args, "-preset", "veryfast", "-tune", "zerolatency")
	case "h264_nvenc":
		args = append(args, "-preset", "p4", "-tune", "ll")
	case "h264_videotoolbox":
		args = append(args, "-realtime", "1")
	case "h264_mf":
		args = append(args, "-hw_encoding", "1")
	}

	if bitrate > 0 {
		args = append(args,
			"-b:v", strconv.Itoa(bitrate),
			"-maxrate", strconv.Itoa(bitrate),
			"-bufsize", strconv.Itoa(bitrate*2),
		)
	}

	// No B-frames keeps output in input order for the FIFO stamper.
	args = append(args,
		"-g", strconv.Itoa(in.FrameRate*2),
		"-bf", "0",
		"-bsf:v", "h264_metadata=aud=insert",
		"-f", "h264",
		"pipe:1",
	)
	return args
}

// splitAccessUnits returns the offset of the second access unit delimiter.
// The stream starts with a delimiter, so the search skips its own header.
func splitAccessUnits(buf []byte) int {
	if len(buf) < 5 {
		return -1
	}
	from := 4
	if buf[2] == 0 {
		from = 5
	}
	return annexb.IndexAUD(buf, from)
}

var _ ports.EncoderDevice = (*FFmpegDevice)(nil)
