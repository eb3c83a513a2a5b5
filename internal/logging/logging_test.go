package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type recordSink struct {
	records []record
}

type record struct {
	level   Level
	stage   string
	message string
	fields  map[string]any
}

func (r *recordSink) Log(level Level, stage, message string, fields map[string]any) {
	r.records = append(r.records, record{level, stage, message, fields})
}

func TestLoggerForwardsToSink(t *testing.T) {
	sink := &recordSink{}
	l := NewLogger(sink, "codegen")

	l.Infof("compiling function %d", 3)

	require.Len(t, sink.records, 1)
	require.Equal(t, LevelInfo, sink.records[0].level)
	require.Equal(t, "codegen", sink.records[0].stage)
	require.Equal(t, "compiling function 3", sink.records[0].message)
}

func TestLoggerLevels(t *testing.T) {
	sink := &recordSink{}
	l := NewLogger(sink, "decode")

	l.Debugf("a")
	l.Warnf("b")
	l.Errorf("c")

	require.Len(t, sink.records, 3)
	require.Equal(t, LevelDebug, sink.records[0].level)
	require.Equal(t, LevelWarn, sink.records[1].level)
	require.Equal(t, LevelError, sink.records[2].level)
}

func TestLoggerWithFields(t *testing.T) {
	sink := &recordSink{}
	l := NewLogger(sink, "validate")

	logf := l.WithFields(LevelWarn, map[string]any{"func": 2, "offset": 17})
	logf("unreachable code after %s", "br")

	require.Len(t, sink.records, 1)
	require.Equal(t, 2, sink.records[0].fields["func"])
	require.Equal(t, 17, sink.records[0].fields["offset"])
}

func TestNilSinkDefaultsToDiscard(t *testing.T) {
	l := NewLogger(nil, "codegen")
	require.NotPanics(t, func() { l.Infof("anything") })
}

func TestLevelString(t *testing.T) {
	require.Equal(t, "debug", LevelDebug.String())
	require.Equal(t, "info", LevelInfo.String())
	require.Equal(t, "warn", LevelWarn.String())
	require.Equal(t, "error", LevelError.String())
}
