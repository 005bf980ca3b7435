// Package logger provides logging implementations.
package logger

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
	"github.com/user/deskrec/pkg/ports"
)

// ANSI color codes
const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// output is shared by a logger and every component logger derived from it,
// so lines written from capture and encoder goroutines never interleave.
type output struct {
	mu     sync.Mutex
	stdout io.Writer
	stderr io.Writer
	color  bool
	start  time.Time
	now    func() time.Time
}

// ConsoleLogger writes leveled lines prefixed with the time elapsed since
// it was created and the component name.
type ConsoleLogger struct {
	level     ports.LogLevel
	component string
	out       *output
}

// Option configures a ConsoleLogger.
type Option func(*output)

// WithWriters redirects output. Colour is disabled unless stdout is a terminal.
func WithWriters(stdout, stderr io.Writer) Option {
	return func(o *output) {
		o.stdout = stdout
		o.stderr = stderr
		o.color = isTerminal(stdout)
	}
}

// WithClock replaces the time source used for the elapsed prefix.
func WithClock(now func() time.Time) Option {
	return func(o *output) {
		o.now = now
		o.start = now()
	}
}

// NewConsole creates a console logger at the given level.
func NewConsole(level ports.LogLevel, opts ...Option) *ConsoleLogger {
	o := &output{
		stdout: os.Stdout,
		stderr: os.Stderr,
		color:  isTerminal(os.Stdout),
		now:    time.Now,
	}
	o.start = o.now()
	for _, opt := range opts {
		opt(o)
	}
	return &ConsoleLogger{level: level, out: o}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Debug logs a debug message.
func (l *ConsoleLogger) Debug(msg string, args ...interface{}) {
	l.log(ports.LevelDebug, msg, args...)
}

// Info logs an informational message.
func (l *ConsoleLogger) Info(msg string, args ...interface{}) {
	l.log(ports.LevelInfo, msg, args...)
}

// Warn logs a warning message.
func (l *ConsoleLogger) Warn(msg string, args ...interface{}) {
	l.log(ports.LevelWarn, msg, args...)
}

// Error logs an error message.
func (l *ConsoleLogger) Error(msg string, args ...interface{}) {
	l.log(ports.LevelError, msg, args...)
}

// WithComponent returns a logger sharing this logger's output whose lines
// carry the component name.
func (l *ConsoleLogger) WithComponent(component string) ports.Logger {
	return &ConsoleLogger{
		level:     l.level,
		component: component,
		out:       l.out,
	}
}

func (l *ConsoleLogger) log(level ports.LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}
	o := l.out

	line := l10n.F(msg, args...)
	if l.component != "" {
		if o.color {
			line = fmt.Sprintf("%s[%s]%s %s", colorCyan, l.component, colorReset, line)
		} else {
			line = fmt.Sprintf("[%s] %s", l.component, line)
		}
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	elapsed := o.now().Sub(o.start).Seconds()
	line = fmt.Sprintf("%8.3fs %s", elapsed, line)
	if o.color {
		switch level {
		case ports.LevelDebug:
			line = colorGray + line + colorReset
		case ports.LevelWarn:
			line = colorYellow + line + colorReset
		case ports.LevelError:
			line = colorRed + line + colorReset
		}
	}

	w := o.stdout
	if level >= ports.LevelWarn {
		w = o.stderr
	}
	fmt.Fprintln(w, line)
}
