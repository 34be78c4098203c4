package logging

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestZapLogger_WritesFieldsSorted(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	l := NewZapLoggerFrom(zap.New(core))

	l.Info("authorizer.decision", Fields{"effect": "Allow", "actionId": "get /devices"})
	l.Error("authorizer.deny", Fields{"error": errors.New("boom")})

	entries := logs.AllUntimed()
	require.Len(t, entries, 2)
	assert.Equal(t, "authorizer.decision", entries[0].Message)
	require.Len(t, entries[0].Context, 2)
	assert.Equal(t, "actionId", entries[0].Context[0].Key)
	assert.Equal(t, "effect", entries[0].Context[1].Key)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "boom", entries[1].ContextMap()["error"])
}

func TestNewZapLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewZapLogger("verbose")
	assert.Error(t, err)

	l, err := NewZapLogger("debug")
	require.NoError(t, err)
	assert.NotNil(t, l)
}

func TestOrNop(t *testing.T) {
	assert.Equal(t, NopLogger{}, OrNop(nil))
	l := NewZapLoggerFrom(nil)
	assert.Same(t, l, OrNop(l))
}
