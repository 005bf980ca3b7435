package ffmpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"

	"github.com/user/deskrec/pkg/ports"
)

// ErrProcessExited is returned when ffmpeg exits while its output is still expected.
var ErrProcessExited = errors.New("ffmpeg: process exited")

const stderrTailSize = 4096

// Process is a running ffmpeg with piped stdin and stdout.
type Process struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	stdin  io.WriteCloser
	stdout io.ReadCloser
	stderr *tailBuffer
	logger ports.Logger

	waitOnce sync.Once
	waitErr  error
}

// Command describes an ffmpeg invocation.
type Command struct {
	Path string
	Args []string
	// Env is appended to the current environment.
	Env []string
	// NoStdin leaves stdin unconnected, for grabbers.
	NoStdin bool
}

// Start launches the process. Stop or Wait must be called to release it.
func Start(c Command, logger ports.Logger) (*Process, error) {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, c.Path, c.Args...)
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}

	p := &Process{
		cmd:    cmd,
		cancel: cancel,
		stderr: &tailBuffer{limit: stderrTailSize},
		logger: logger.WithComponent("ffmpeg"),
	}
	cmd.Stderr = p.stderr

	var err error
	if !c.NoStdin {
		if p.stdin, err = cmd.StdinPipe(); err != nil {
			cancel()
			return nil, fmt.Errorf("stdin pipe: %w", err)
		}
	}
	if p.stdout, err = cmd.StdoutPipe(); err != nil {
		cancel()
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}
	p.logger.Debug("Started: %s %s", c.Path, strings.Join(c.Args, " "))
	return p, nil
}

// Stdin returns the process input. It is nil when started with NoStdin.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the process output.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Wait waits for the process to exit. An abnormal exit is wrapped in
// ErrProcessExited together with the tail of stderr.
func (p *Process) Wait() error {
	p.waitOnce.Do(func() {
		err := p.cmd.Wait()
		p.cancel()
		if err != nil {
			p.waitErr = fmt.Errorf("%w: %v: %s", ErrProcessExited, err, p.StderrTail())
		}
	})
	return p.waitErr
}

// Kill terminates the process and waits for it. The resulting exit error is discarded.
func (p *Process) Kill() {
	p.cancel()
	_ = p.Wait()
}

// StderrTail returns the last bytes ffmpeg wrote to stderr.
func (p *Process) StderrTail() string {
	return strings.TrimSpace(p.stderr.String())
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(data []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, data...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = append(b.buf[:0], b.buf[over:]...)
	}
	return len(data), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
