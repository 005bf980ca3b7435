//go:build windows

package clock

import (
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/user/deskrec/pkg/ports"
)

var (
	kernel32                      = windows.NewLazySystemDLL("kernel32.dll")
	procQueryPerformanceCounter   = kernel32.NewProc("QueryPerformanceCounter")
	procQueryPerformanceFrequency = kernel32.NewProc("QueryPerformanceFrequency")
)

// qpcCounter reads QueryPerformanceCounter.
type qpcCounter struct{}

// System returns the platform high-resolution counter.
func System() ports.Counter {
	return qpcCounter{}
}

func (qpcCounter) Ticks() int64 {
	var v int64
	r, _, _ := procQueryPerformanceCounter.Call(uintptr(unsafe.Pointer(&v)))
	if r == 0 {
		return 0
	}
	return v
}

func (qpcCounter) Frequency() int64 {
	var v int64
	r, _, _ := procQueryPerformanceFrequency.Call(uintptr(unsafe.Pointer(&v)))
	if r == 0 {
		return 0
	}
	return v
}
