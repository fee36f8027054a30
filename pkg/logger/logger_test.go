package logger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew_Levels(t *testing.T) {
	for _, level := range []string{"", "debug", "INFO", "warn", "error"} {
		l, err := New(level)
		require.NoError(t, err, level)
		assert.NotNil(t, l)
	}

	_, err := New("loud")
	assert.Error(t, err)
}

func TestContextLogger_WithContext(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	cl := NewContextLogger(zap.New(core))

	ctx := WithValue(context.Background(), RequestIDKey, "req-1")
	ctx = WithValue(ctx, SpaceIDKey, "space-1")
	cl.LogRequest(ctx, "POST", "/api/v1/spaces/space-1/participants", 200, 12)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "req-1", fields["request_id"])
	assert.Equal(t, "space-1", fields["space_id"])
	assert.NotContains(t, fields, "user_id")
}

func TestContextLogger_NoFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	base := zap.New(core)
	cl := NewContextLogger(base)

	assert.Same(t, base, cl.WithContext(context.Background()))
	cl.LogWarn(context.Background(), "provider slow")
	assert.Equal(t, 1, logs.Len())
}
