//go:build !windows

package h264encoder

import "github.com/user/deskrec/pkg/ports"

// platformDevices has no native API to enumerate here; ffmpeg covers these
// platforms.
func platformDevices(logger ports.Logger) ([]ports.EncoderDevice, error) {
	return nil, ErrPlatformNotSupported
}
