package logging

import (
	"io"
	"log"
	"strings"
)

// Level orders log severities.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// ParseLevel maps debug|info|warn|error to a Level. Unknown names map to info.
func ParseLevel(name string) Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return LevelDebug
	case "warn", "warning":
		return LevelWarn
	case "error":
		return LevelError
	default:
		return LevelInfo
	}
}

// Leveled gates a *log.Logger by level. A nil *Leveled discards everything.
type Leveled struct {
	logger *log.Logger
	level  Level
}

// New returns a Leveled writing to w with the given prefix.
func New(w io.Writer, prefix string, level Level) *Leveled {
	return &Leveled{logger: log.New(w, prefix, log.LstdFlags|log.Lmicroseconds), level: level}
}

// Wrap gates an existing logger.
func Wrap(logger *log.Logger, level Level) *Leveled {
	return &Leveled{logger: logger, level: level}
}

// Logger exposes the underlying *log.Logger for components that take one.
func (l *Leveled) Logger() *log.Logger {
	if l == nil {
		return log.New(io.Discard, "", 0)
	}
	return l.logger
}

// With returns a logger sharing the output and level but using prefix.
func (l *Leveled) With(prefix string) *Leveled {
	if l == nil {
		return nil
	}
	return &Leveled{logger: log.New(l.logger.Writer(), prefix, l.logger.Flags()), level: l.level}
}

func (l *Leveled) Enabled(level Level) bool {
	return l != nil && l.logger != nil && level >= l.level
}

func (l *Leveled) Debugf(format string, args ...any) { l.printf(LevelDebug, "DEBUG ", format, args) }
func (l *Leveled) Infof(format string, args ...any)  { l.printf(LevelInfo, "", format, args) }
func (l *Leveled) Warnf(format string, args ...any)  { l.printf(LevelWarn, "WARN ", format, args) }
func (l *Leveled) Errorf(format string, args ...any) { l.printf(LevelError, "ERROR ", format, args) }

func (l *Leveled) printf(level Level, tag, format string, args []any) {
	if !l.Enabled(level) {
		return
	}
	l.logger.Printf(tag+format, args...)
}
