package logger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	useCore(core)
	return logs
}

func TestLogDurationSkipsFastCallsAtInfo(t *testing.T) {
	logs := observe(t)
	SetLevel("info")

	LogDuration("fast", time.Now())
	assert.Equal(t, 0, logs.Len())

	LogDuration("slow", time.Now().Add(-150*time.Millisecond))
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "duration", entry.Message)
	assert.Equal(t, "slow", entry.ContextMap()["fn"])
}

func TestLogDurationLogsEverythingAtDebug(t *testing.T) {
	logs := observe(t)
	SetLevel("debug")
	defer SetLevel("info")

	DeferLogDuration("chat.GetByID", time.Now())()
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "chat.GetByID", logs.All()[0].ContextMap()["fn"])
}

func TestSetPrefixNamesLogger(t *testing.T) {
	logs := observe(t)
	SetPrefix("api")
	defer SetPrefix("")

	Infof("listening on %s", ":8080")
	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	assert.Equal(t, "api", entry.LoggerName)
	assert.Equal(t, "listening on :8080", entry.Message)
}

func TestErrorfUsesErrorLevel(t *testing.T) {
	logs := observe(t)
	Errorf("boom: %v", assert.AnError)
	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zapcore.ErrorLevel, logs.All()[0].Level)
}
