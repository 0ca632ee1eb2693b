package diag

import (
	"io"
	"sync"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// ConsoleSink prints events for humans: warnings yellow, errors red.
type ConsoleSink struct {
	mu    sync.Mutex
	out   io.Writer
	quiet bool

	warn *color.Color
	err  *color.Color
}

// NewConsoleSink creates a console sink. With quiet set, info events are dropped.
func NewConsoleSink(out io.Writer, quiet bool) *ConsoleSink {
	return &ConsoleSink{
		out:   out,
		quiet: quiet,
		warn:  color.New(color.FgYellow),
		err:   color.New(color.FgRed),
	}
}

// Emit prints the event.
func (c *ConsoleSink) Emit(e Event) {
	if c.quiet && e.Level == LevelInfo {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch e.Level {
	case LevelWarn:
		_, _ = c.warn.Fprintln(c.out, "warn:", e.String())
	case LevelError:
		_, _ = c.err.Fprintln(c.out, "error:", e.String())
	default:
		_, _ = io.WriteString(c.out, e.String()+"\n")
	}
}

// LogSink writes events as structured zerolog records.
type LogSink struct {
	logger zerolog.Logger
}

// NewLogSink creates a sink writing JSON lines to out.
func NewLogSink(out io.Writer, quiet bool) *LogSink {
	level := zerolog.InfoLevel
	if quiet {
		level = zerolog.WarnLevel
	}
	return &LogSink{logger: zerolog.New(out).Level(level).With().Timestamp().Logger()}
}

// Emit logs the event.
func (l *LogSink) Emit(e Event) {
	var ev *zerolog.Event
	switch e.Level {
	case LevelWarn:
		ev = l.logger.Warn()
	case LevelError:
		ev = l.logger.Error()
	default:
		ev = l.logger.Info()
	}
	if e.Transform != "" {
		ev = ev.Str("transform", e.Transform)
	}
	if e.Node != "" {
		ev = ev.Str("node", e.Node)
	}
	ev.Msg(e.Message)
}
