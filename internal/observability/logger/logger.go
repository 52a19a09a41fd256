package logger

import (
	"context"
	"fmt"
	"strings"

	"crm-api/internal/observability/requestid"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type contextKey string

const (
	loggerContextKey    contextKey = "logger"
	userIDContextKey    contextKey = "user_id"
	rootErrorContextKey contextKey = "root_err"
)

type rootErrorContainer struct {
	err error
}

// Logger wraps zap.Logger with the CRM's structured logging conventions:
// every entry carries service, module and action, plus request/user ids
// pulled from the context.
type Logger struct {
	zap         *zap.Logger
	serviceName string
}

// Field is a structured log field.
type Field = zapcore.Field

// New creates a JSON logger writing to stdout.
// level: "debug", "info", "warn", "error"
func New(serviceName string, level string) (*Logger, error) {
	if serviceName == "" {
		return nil, fmt.Errorf("serviceName is required")
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(level)),
		Encoding:         "json",
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
		EncoderConfig: zapcore.EncoderConfig{
			TimeKey:        "timestamp",
			LevelKey:       "level",
			NameKey:        "logger",
			CallerKey:      "caller",
			MessageKey:     "message",
			StacktraceKey:  "stacktrace",
			LineEnding:     zapcore.DefaultLineEnding,
			EncodeLevel:    zapcore.LowercaseLevelEncoder,
			EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
			EncodeDuration: zapcore.MillisDurationEncoder,
			EncodeCaller:   zapcore.ShortCallerEncoder,
		},
	}

	z, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build zap logger: %w", err)
	}
	return wrap(z, serviceName), nil
}

// NewWithCore builds a Logger on an existing zap core (tests use an observer core).
func NewWithCore(serviceName string, core zapcore.Core) *Logger {
	return wrap(zap.New(core), serviceName)
}

// NewNop returns a Logger that discards everything.
func NewNop() *Logger {
	return &Logger{zap: zap.NewNop(), serviceName: "nop"}
}

func wrap(z *zap.Logger, serviceName string) *Logger {
	return &Logger{
		zap:         z.With(zap.String("service", serviceName)),
		serviceName: serviceName,
	}
}

// Module returns the module/component field.
func Module(name string) Field {
	return zap.String("module", name)
}

// Action returns the action/operation field.
func Action(name string) Field {
	return zap.String("action", name)
}

// EntityType returns the entity_type field.
func EntityType(name string) Field {
	return zap.String("entity_type", name)
}

func (l *Logger) Info(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.InfoLevel, msg, fields...)
}

func (l *Logger) Warn(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.WarnLevel, msg, fields...)
}

func (l *Logger) Error(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.ErrorLevel, msg, fields...)
}

func (l *Logger) Debug(ctx context.Context, msg string, fields ...Field) {
	l.log(ctx, zapcore.DebugLevel, msg, fields...)
}

func (l *Logger) log(ctx context.Context, level zapcore.Level, msg string, fields ...Field) {
	if ce := l.zap.Check(level, msg); ce != nil {
		ce.Write(l.compose(ctx, fields)...)
	}
}

// compose prepends context fields, redacts sensitive keys and fills in
// module/action when the caller forgot them.
func (l *Logger) compose(ctx context.Context, fields []Field) []Field {
	out := make([]Field, 0, len(fields)+4)

	if ctx != nil {
		if id := requestid.GetRequestID(ctx); id != "" {
			out = append(out, zap.String("request_id", id))
		}
		if id := GetUserIDFromContext(ctx); id != "" {
			out = append(out, zap.String("user_id", id))
		}
		if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
			out = append(out,
				zap.String("trace_id", sc.TraceID().String()),
				zap.String("span_id", sc.SpanID().String()),
			)
		}
	}

	var hasModule, hasAction bool
	for _, f := range fields {
		switch f.Key {
		case "module":
			hasModule = true
		case "action":
			hasAction = true
		}
		out = append(out, redact(f))
	}
	if !hasModule {
		out = append(out, Module("unknown"))
	}
	if !hasAction {
		out = append(out, Action("unknown"))
	}
	return out
}

// Sync flushes buffered entries.
func (l *Logger) Sync() error {
	return l.zap.Sync()
}

// Zap exposes the underlying zap logger for libraries that need one.
func (l *Logger) Zap() *zap.Logger {
	return l.zap
}

// Secrets and PII (including Brazilian tax ids) never reach the log stream.
var redactedKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"password":      true,
	"password_hash": true,
	"secret":        true,
	"api_key":       true,
	"database_url":  true,
	"jwt":           true,
	"bearer":        true,
	"credential":    true,
	"email":         true,
	"phone":         true,
	"full_name":     true,
	"address":       true,
	"cpf":           true,
	"cnpj":          true,
}

// IsRedacted reports whether values logged under key are replaced.
func IsRedacted(key string) bool {
	return redactedKeys[strings.ToLower(key)]
}

func redact(f Field) Field {
	if IsRedacted(f.Key) {
		return zap.String(f.Key, "[REDACTED]")
	}
	return f
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func GetUserIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDContextKey).(string)
	return id
}

func SetUserIDInContext(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}

// GetLogger returns the request logger, or a fresh info logger when none was set.
func GetLogger(ctx context.Context) *Logger {
	if l, ok := ctx.Value(loggerContextKey).(*Logger); ok && l != nil {
		return l
	}
	l, err := New("crm-api", "info")
	if err != nil {
		return NewNop()
	}
	return l
}

func SetLoggerInContext(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, loggerContextKey, l)
}

// InitRootErrorContext attaches a holder for the request's root cause error.
func InitRootErrorContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, rootErrorContextKey, &rootErrorContainer{})
}

// SetRootError records err as the root cause for the access log.
func SetRootError(ctx context.Context, err error) {
	if c, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		c.err = err
	}
}

func GetRootError(ctx context.Context) error {
	if c, ok := ctx.Value(rootErrorContextKey).(*rootErrorContainer); ok {
		return c.err
	}
	return nil
}
