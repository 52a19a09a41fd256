package logger_test

import (
	"context"
	"errors"
	"testing"

	"crm-api/internal/observability/logger"
	"crm-api/internal/observability/requestid"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newObserved(level zapcore.Level) (*logger.Logger, *observer.ObservedLogs) {
	core, logs := observer.New(level)
	return logger.NewWithCore("test-service", core), logs
}

func TestNew_RequiresServiceName(t *testing.T) {
	_, err := logger.New("", "info")
	assert.Error(t, err)

	log, err := logger.New("crm-api", "debug")
	require.NoError(t, err)
	assert.NotNil(t, log)
}

func TestLogger_AddsServiceAndContextFields(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)

	ctx := requestid.SetRequestID(context.Background(), "req-123")
	ctx = logger.SetUserIDInContext(ctx, "user-789")

	log.Info(ctx, "hello", logger.Module("entity"), logger.Action("create"))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "test-service", fields["service"])
	assert.Equal(t, "req-123", fields["request_id"])
	assert.Equal(t, "user-789", fields["user_id"])
	assert.Equal(t, "entity", fields["module"])
	assert.Equal(t, "create", fields["action"])
}

func TestLogger_AddsTraceFields(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	log.Info(ctx, "traced")
	log.Info(context.Background(), "untraced")

	require.Equal(t, 2, logs.Len())
	traced := logs.All()[0].ContextMap()
	assert.Equal(t, "4bf92f3577b34da6a3ce929d0e0e4736", traced["trace_id"])
	assert.Equal(t, "00f067aa0ba902b7", traced["span_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "trace_id")
}

func TestLogger_DefaultsModuleAndAction(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)

	log.Warn(context.Background(), "no module")

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "unknown", fields["module"])
	assert.Equal(t, "unknown", fields["action"])
}

func TestLogger_RedactsSensitiveFields(t *testing.T) {
	log, logs := newObserved(zapcore.InfoLevel)

	log.Info(context.Background(), "sensitive",
		logger.Module("test"),
		logger.Action("redact"),
		zap.String("password", "hunter2"),
		zap.String("Authorization", "Bearer abc"),
		zap.String("cpf", "111.444.777-35"),
		zap.String("email", "a@b.com"),
		zap.String("entity_id", "rec-1"),
	)

	fields := logs.All()[0].ContextMap()
	assert.Equal(t, "[REDACTED]", fields["password"])
	assert.Equal(t, "[REDACTED]", fields["Authorization"])
	assert.Equal(t, "[REDACTED]", fields["cpf"])
	assert.Equal(t, "[REDACTED]", fields["email"])
	assert.Equal(t, "rec-1", fields["entity_id"])
}

func TestLogger_RespectsLevel(t *testing.T) {
	log, logs := newObserved(zapcore.WarnLevel)

	log.Debug(context.Background(), "dropped")
	log.Info(context.Background(), "dropped")
	log.Error(context.Background(), "kept", zap.Error(errors.New("boom")))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "kept", logs.All()[0].Message)
}

func TestIsRedacted(t *testing.T) {
	assert.True(t, logger.IsRedacted("TOKEN"))
	assert.True(t, logger.IsRedacted("cnpj"))
	assert.False(t, logger.IsRedacted("workflow_id"))
}

func TestLoggerContext(t *testing.T) {
	log := logger.NewNop()
	ctx := logger.SetLoggerInContext(context.Background(), log)
	assert.Same(t, log, logger.GetLogger(ctx))

	assert.NotNil(t, logger.GetLogger(context.Background()))
}

func TestRootErrorContext(t *testing.T) {
	ctx := logger.InitRootErrorContext(context.Background())
	assert.Nil(t, logger.GetRootError(ctx))

	err := errors.New("root cause")
	logger.SetRootError(ctx, err)
	assert.Equal(t, err, logger.GetRootError(ctx))

	// no container: setter is a no-op
	logger.SetRootError(context.Background(), err)
	assert.Nil(t, logger.GetRootError(context.Background()))
}
