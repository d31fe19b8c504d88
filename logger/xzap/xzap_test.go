package xzap

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ProjectsTask/EasyAuction/logger"
)

func observe(t *testing.T) *observer.ObservedLogs {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	prev := global.Load()
	global.Store(zap.New(core))
	t.Cleanup(func() { global.Store(prev) })
	return logs
}

func TestWithContext(t *testing.T) {
	logs := observe(t)

	tid, err := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	require.NoError(t, err)
	sid, err := trace.SpanIDFromHex("00f067aa0ba902b7")
	require.NoError(t, err)
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID: tid,
		SpanID:  sid,
	}))
	ctx = NewContext(ctx, zap.String("request_id", "r1"))

	WithContext(ctx).Info("traced")
	WithContext(context.Background()).Info("plain")

	entries := logs.All()
	require.Len(t, entries, 2)
	fields := entries[0].ContextMap()
	assert.Equal(t, "r1", fields["request_id"])
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", fields["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", fields["span_id"])
	assert.Empty(t, entries[1].ContextMap())
}

func TestSetUp(t *testing.T) {
	prev := global.Load()
	t.Cleanup(func() { global.Store(prev) })

	_, err := SetUp(logger.LogConf{Level: "nope"})
	assert.Error(t, err)
	_, err = SetUp(logger.LogConf{Mode: logger.ModeFile})
	assert.Error(t, err)

	l, err := SetUp(logger.LogConf{ServiceName: "easyauction", Level: "debug", Path: t.TempDir(), Mode: logger.ModeFile})
	require.NoError(t, err)
	assert.Same(t, l, WithContext(context.Background()))
}
