package logging

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/ideamans/go-l10n"
	"github.com/mattn/go-isatty"
)

const (
	colorReset  = "\033[0m"
	colorGray   = "\033[90m"
	colorYellow = "\033[33m"
	colorRed    = "\033[31m"
	colorCyan   = "\033[36m"
)

// ConsoleLogger writes one line per message, warnings and errors to the
// error stream. Loggers derived with WithComponent share its streams and
// lock, so lines from concurrent frame workers never interleave.
type ConsoleLogger struct {
	level     LogLevel
	component string
	color     bool
	mu        *sync.Mutex
	out, err  io.Writer
}

// NewConsole returns a logger on stdout and stderr. Colour is enabled
// when stdout is a terminal.
func NewConsole(level LogLevel) *ConsoleLogger {
	l := NewConsoleTo(level, os.Stdout, os.Stderr)
	l.color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())
	return l
}

// NewConsoleTo returns an uncoloured logger on the given streams.
func NewConsoleTo(level LogLevel, out, errOut io.Writer) *ConsoleLogger {
	return &ConsoleLogger{level: level, mu: new(sync.Mutex), out: out, err: errOut}
}

// Level returns the lowest level the logger writes.
func (l *ConsoleLogger) Level() LogLevel { return l.level }

func (l *ConsoleLogger) Debug(msg string, args ...interface{}) { l.log(LevelDebug, msg, args...) }
func (l *ConsoleLogger) Info(msg string, args ...interface{})  { l.log(LevelInfo, msg, args...) }
func (l *ConsoleLogger) Warn(msg string, args ...interface{})  { l.log(LevelWarn, msg, args...) }
func (l *ConsoleLogger) Error(msg string, args ...interface{}) { l.log(LevelError, msg, args...) }

// WithComponent returns a logger that prefixes messages with component.
func (l *ConsoleLogger) WithComponent(component string) Logger {
	c := *l
	c.component = component
	return &c
}

func (l *ConsoleLogger) log(level LogLevel, msg string, args ...interface{}) {
	if level < l.level {
		return
	}
	line := l10n.F(msg, args...)
	if l.component != "" {
		if l.color {
			line = fmt.Sprintf("%s[%s]%s %s", colorCyan, l.component, colorReset, line)
		} else {
			line = fmt.Sprintf("[%s] %s", l.component, line)
		}
	}
	if l.color {
		switch level {
		case LevelDebug:
			line = colorGray + line + colorReset
		case LevelWarn:
			line = colorYellow + line + colorReset
		case LevelError:
			line = colorRed + line + colorReset
		}
	}
	w := l.out
	if level >= LevelWarn {
		w = l.err
	}
	l.mu.Lock()
	fmt.Fprintln(w, line)
	l.mu.Unlock()
}
