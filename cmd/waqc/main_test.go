package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"github.com/wasmqbe/waqc/api"
)

func TestLogrusSink_levelsAndFields(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := logrusSink{log: logger}

	sink.Log(api.LogLevelWarn, "validate", "unreachable code", map[string]any{"func": 3})

	require.Len(t, hook.Entries, 1)
	entry := hook.Entries[0]
	require.Equal(t, logrus.WarnLevel, entry.Level)
	require.Equal(t, "unreachable code", entry.Message)
	require.Equal(t, "validate", entry.Data["stage"])
	require.Equal(t, 3, entry.Data["func"])
}

func TestLogrusSink_defaultsToInfo(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := logrusSink{log: logger}

	sink.Log(api.LogLevel(99), "codegen", "fallback level", nil)

	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.InfoLevel, hook.Entries[0].Level)
}

func TestLogrusSink_debugLevel(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	sink := logrusSink{log: logger}

	sink.Log(api.LogLevelDebug, "decode", "parsed type section", nil)

	require.Len(t, hook.Entries, 1)
	require.Equal(t, logrus.DebugLevel, hook.Entries[0].Level)
}
