// Package logging defines the small diagnostic-logging surface used by
// api.Compile to report each pipeline step (decode, validate, codegen).
// It is deliberately thin: the api package depends only on the Sink
// interface here, never on a concrete logging library, so a caller
// embedding this compiler can wire diagnostics wherever it likes.
// internal/wasm and internal/codegen do not log. cmd/waqc is the one
// place that plugs a real backend (logrus) in.
package logging

import "fmt"

// Level orders diagnostic severity, least to most important.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String renders the level the way a human-readable log line would show
// it, e.g. in a "level=warn" field.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// Sink receives one structured diagnostic record at a time. Stage names
// the component that produced it (api.Compile logs under "compile");
// fields carries arbitrary structured context (function index, byte
// offset, opcode) a real backend can attach as key/value pairs.
type Sink interface {
	Log(level Level, stage, message string, fields map[string]any)
}

// Discard is a Sink that drops every record; NewLogger falls back to it
// when no caller-supplied Sink is configured, so the compiler never
// depends on a logging backend being present.
var Discard Sink = discardSink{}

type discardSink struct{}

func (discardSink) Log(Level, string, string, map[string]any) {}

// Logger is a small convenience wrapper binding a fixed stage name to a
// Sink, used by each pipeline phase so call sites read naturally
// ("l.Debugf(...)") without repeating the stage string everywhere.
type Logger struct {
	sink  Sink
	stage string
}

// NewLogger returns a Logger that forwards to sink under the given stage
// name. A nil sink is treated as Discard.
func NewLogger(sink Sink, stage string) Logger {
	if sink == nil {
		sink = Discard
	}
	return Logger{sink: sink, stage: stage}
}

func (l Logger) log(level Level, format string, args []any, fields map[string]any) {
	l.sink.Log(level, l.stage, fmt.Sprintf(format, args...), fields)
}

func (l Logger) Debugf(format string, args ...any) { l.log(LevelDebug, format, args, nil) }
func (l Logger) Infof(format string, args ...any)  { l.log(LevelInfo, format, args, nil) }
func (l Logger) Warnf(format string, args ...any)  { l.log(LevelWarn, format, args, nil) }
func (l Logger) Errorf(format string, args ...any) { l.log(LevelError, format, args, nil) }

// WithFields returns a logging function for this Logger's level that
// attaches fields (e.g. {"func": idx, "offset": n}) to the record,
// letting a structured backend like logrus index on them instead of
// parsing the message text.
func (l Logger) WithFields(level Level, fields map[string]any) func(format string, args ...any) {
	return func(format string, args ...any) {
		l.log(level, format, args, fields)
	}
}
