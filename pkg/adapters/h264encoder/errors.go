package h264encoder

import (
	"errors"
	"fmt"
)

var (
	// ErrPlatformNotSupported is returned when the platform has no native encoder API.
	ErrPlatformNotSupported = errors.New("h264encoder: platform not supported")

	// ErrNoEncoder is returned when no H.264 encoder device is available or the
	// requested index is out of range.
	ErrNoEncoder = errors.New("h264encoder: no encoder available")
)

// HRESULTError is a failed Media Foundation call.
type HRESULTError struct {
	Op   string
	Code uint32
}

func (e *HRESULTError) Error() string {
	return fmt.Sprintf("h264encoder: %s failed: HRESULT 0x%08X", e.Op, e.Code)
}
