// Package diag provides the diagnostics channel for Scout.
//
// The orchestrator and transforms emit info, warn and error events through
// a Sink. Emitting never interrupts processing; what a sink does with an
// event (print it, log it, record it) is up to the consumer.
package diag

import (
	"fmt"
	"sync"
)

// Level is the severity of an event.
type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

// Event is a single diagnostic message.
type Event struct {
	Level     Level
	Message   string
	Transform string
	Node      string
}

// String renders the event with its context prefix.
func (e Event) String() string {
	switch {
	case e.Transform != "" && e.Node != "":
		return fmt.Sprintf("%s [%s]: %s", e.Transform, e.Node, e.Message)
	case e.Transform != "":
		return fmt.Sprintf("%s: %s", e.Transform, e.Message)
	default:
		return e.Message
	}
}

// Sink receives diagnostic events. Implementations must be safe for concurrent use.
type Sink interface {
	Emit(Event)
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(Event)

// Emit calls f(e).
func (f SinkFunc) Emit(e Event) { f(e) }

// Discard drops every event.
var Discard Sink = SinkFunc(func(Event) {})

// Infof emits an info event.
func Infof(s Sink, format string, args ...any) {
	s.Emit(Event{Level: LevelInfo, Message: fmt.Sprintf(format, args...)})
}

// Warnf emits a warn event.
func Warnf(s Sink, format string, args ...any) {
	s.Emit(Event{Level: LevelWarn, Message: fmt.Sprintf(format, args...)})
}

// Errorf emits an error event.
func Errorf(s Sink, format string, args ...any) {
	s.Emit(Event{Level: LevelError, Message: fmt.Sprintf(format, args...)})
}

// With returns a sink that tags events with a transform name and node label
// before forwarding them. Fields already set on an event are kept.
func With(s Sink, transform, node string) Sink {
	return SinkFunc(func(e Event) {
		if e.Transform == "" {
			e.Transform = transform
		}
		if e.Node == "" {
			e.Node = node
		}
		s.Emit(e)
	})
}

// Multi fans events out to several sinks.
func Multi(sinks ...Sink) Sink {
	return SinkFunc(func(e Event) {
		for _, s := range sinks {
			s.Emit(e)
		}
	})
}

// Recorder keeps every event in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Emit records the event.
func (r *Recorder) Emit(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// ByLevel returns the recorded events of one level.
func (r *Recorder) ByLevel(level Level) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}
