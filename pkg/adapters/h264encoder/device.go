// Package h264encoder provides H.264 encoder devices:
// - Windows: hardware Media Foundation transforms
// - All platforms: ffmpeg encoders (libx264, nvenc, qsv, amf, videotoolbox, mf)
package h264encoder

import (
	"errors"
	"fmt"

	"github.com/user/deskrec/pkg/ports"
)

// Devices enumerates the H.264 encoder devices in index order: native
// transforms first, then the ffmpeg encoders found at ffmpegPath. An empty
// ffmpegPath skips ffmpeg.
func Devices(ffmpegPath string, logger ports.Logger) ([]ports.EncoderDevice, error) {
	log := logger.WithComponent("h264encoder")

	var devices []ports.EncoderDevice
	native, err := platformDevices(log)
	switch {
	case errors.Is(err, ErrPlatformNotSupported):
		log.Debug("No native encoders on this platform")
	case err != nil:
		log.Warn("Native encoder enumeration failed: %v", err)
	}
	devices = append(devices, native...)

	if ffmpegPath != "" {
		ff, err := FFmpegDevices(ffmpegPath, log)
		if err != nil {
			log.Warn("ffmpeg encoder enumeration failed: %v", err)
		}
		devices = append(devices, ff...)
	}

	for i, d := range devices {
		if setter, ok := d.(indexSetter); ok {
			setter.setIndex(i)
		}
	}
	if len(devices) == 0 {
		return nil, ErrNoEncoder
	}
	return devices, nil
}

// Select returns the device at index.
func Select(devices []ports.EncoderDevice, index int) (ports.EncoderDevice, error) {
	if index < 0 || index >= len(devices) {
		return nil, fmt.Errorf("%w: index %d of %d devices", ErrNoEncoder, index, len(devices))
	}
	return devices[index], nil
}

type indexSetter interface {
	setIndex(i int)
}
