package progress

import (
	"sync"

	"go.uber.org/zap"
)

// Level of a progress message
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Sink receives progress messages at stage boundaries. Emit must not block
// for long; failures inside a sink are never reported back to the caller.
type Sink interface {
	Emit(level Level, msg string)
}

// SinkFunc adapts a function to the Sink interface
type SinkFunc func(level Level, msg string)

func (f SinkFunc) Emit(level Level, msg string) {
	f(level, msg)
}

// Discard drops every message
var Discard Sink = SinkFunc(func(Level, string) {})

// ------------------------------------------------------------------------------------------------
// ~ Zap
// ------------------------------------------------------------------------------------------------

type zapSink struct {
	l *zap.Logger
}

// NewZapSink writes progress messages to the given logger
func NewZapSink(l *zap.Logger) Sink {
	return &zapSink{l: l}
}

func (s *zapSink) Emit(level Level, msg string) {
	switch level {
	case LevelSuccess:
		s.l.Info(msg, zap.Bool("success", true))
	case LevelWarning:
		s.l.Warn(msg)
	case LevelError:
		s.l.Error(msg)
	default:
		s.l.Info(msg)
	}
}

// ------------------------------------------------------------------------------------------------
// ~ Safe
// ------------------------------------------------------------------------------------------------

// Safe wraps a sink so that a panic inside it is swallowed
func Safe(s Sink) Sink {
	if s == nil {
		return Discard
	}
	return SinkFunc(func(level Level, msg string) {
		defer func() {
			_ = recover()
		}()
		s.Emit(level, msg)
	})
}

// ------------------------------------------------------------------------------------------------
// ~ Recorder
// ------------------------------------------------------------------------------------------------

type Message struct {
	Level   Level
	Message string
}

// Recorder keeps every message in memory
type Recorder struct {
	messages []Message
	mu       sync.Mutex
}

func (r *Recorder) Emit(level Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, Message{Level: level, Message: msg})
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	ret := make([]Message, len(r.messages))
	copy(ret, r.messages)
	return ret
}

// Levels returns all recorded messages of the given level
func (r *Recorder) Levels(level Level) []string {
	var ret []string
	for _, m := range r.Messages() {
		if m.Level == level {
			ret = append(ret, m.Message)
		}
	}
	return ret
}
