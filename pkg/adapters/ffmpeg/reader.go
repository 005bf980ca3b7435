package ffmpeg

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/user/deskrec/pkg/ports"
)

// ErrReadTimeout is returned by Reader.Read when no frame arrived in time.
var ErrReadTimeout = errors.New("ffmpeg: no frame within timeout")

// Reader runs an ffmpeg that only produces output, such as a screen or
// audio grab, and queues its frames. When the queue is full the oldest
// frame is discarded.
type Reader struct {
	proc   *Process
	frames chan []byte
	done   chan struct{}

	dropped atomic.Int64
	mu      sync.Mutex
	err     error
	once    sync.Once
}

// StartReader launches the command and begins framing its stdout.
func StartReader(c Command, framer Framer, depth int, logger ports.Logger) (*Reader, error) {
	c.NoStdin = true
	proc, err := Start(c, logger)
	if err != nil {
		return nil, err
	}
	if depth <= 0 {
		depth = 1
	}
	r := &Reader{
		proc:   proc,
		frames: make(chan []byte, depth),
		done:   make(chan struct{}),
	}
	go r.pump(framer)
	return r, nil
}

func (r *Reader) pump(framer Framer) {
	defer close(r.done)
	for {
		frame, err := framer.ReadFrame(r.proc.Stdout())
		if err != nil {
			waitErr := r.proc.Wait()
			r.mu.Lock()
			if waitErr != nil {
				r.err = waitErr
			} else {
				r.err = ErrProcessExited
			}
			r.mu.Unlock()
			return
		}
		for {
			select {
			case r.frames <- frame:
			default:
				select {
				case <-r.frames:
					r.dropped.Add(1)
				default:
				}
				continue
			}
			break
		}
	}
}

// Read returns the oldest queued frame, waiting up to timeout. Once the
// process has exited and the queue is empty it returns the exit error,
// which wraps ErrProcessExited.
func (r *Reader) Read(timeout time.Duration) ([]byte, error) {
	select {
	case frame := <-r.frames:
		return frame, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case frame := <-r.frames:
		return frame, nil
	case <-r.done:
		select {
		case frame := <-r.frames:
			return frame, nil
		default:
		}
		r.mu.Lock()
		defer r.mu.Unlock()
		return nil, r.err
	case <-timer.C:
		return nil, ErrReadTimeout
	}
}

// Dropped returns the number of frames discarded because the queue was full.
func (r *Reader) Dropped() int64 {
	return r.dropped.Load()
}

// Close kills the process and waits for the pump to exit.
func (r *Reader) Close() error {
	r.once.Do(func() {
		r.proc.Kill()
		<-r.done
	})
	return nil
}
