package logging

import (
	"fmt"
	"sort"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// ZapLogger adapts a *zap.Logger to Logger.
type ZapLogger struct {
	z *zap.Logger
}

var _ Logger = (*ZapLogger)(nil)

// NewZapLogger builds a JSON logger writing to stdout, which Lambda forwards
// to CloudWatch. level is one of debug, info, warn, error; empty means info.
func NewZapLogger(level string) (*ZapLogger, error) {
	lvl := zapcore.InfoLevel
	if level != "" {
		if err := lvl.UnmarshalText([]byte(level)); err != nil {
			return nil, fmt.Errorf("invalid log level %q: %w", level, err)
		}
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	// Lambda already annotates each line with the request id and timing.
	cfg.DisableStacktrace = true
	z, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return &ZapLogger{z: z}, nil
}

// NewZapLoggerFrom wraps an existing zap logger; nil yields a no-op zap logger.
func NewZapLoggerFrom(z *zap.Logger) *ZapLogger {
	if z == nil {
		z = zap.NewNop()
	}
	return &ZapLogger{z: z}
}

// Debug logs at debug level.
func (l *ZapLogger) Debug(msg string, ctx Fields) { l.z.Debug(msg, toZap(ctx)...) }

// Info logs at info level.
func (l *ZapLogger) Info(msg string, ctx Fields) { l.z.Info(msg, toZap(ctx)...) }

// Warn logs at warn level.
func (l *ZapLogger) Warn(msg string, ctx Fields) { l.z.Warn(msg, toZap(ctx)...) }

// Error logs at error level.
func (l *ZapLogger) Error(msg string, ctx Fields) { l.z.Error(msg, toZap(ctx)...) }

// Sync flushes buffered entries.
func (l *ZapLogger) Sync() error { return l.z.Sync() }

func toZap(ctx Fields) []zap.Field {
	if len(ctx) == 0 {
		return nil
	}
	keys := make([]string, 0, len(ctx))
	for k := range ctx {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]zap.Field, 0, len(keys))
	for _, k := range keys {
		if err, ok := ctx[k].(error); ok {
			out = append(out, zap.NamedError(k, err))
			continue
		}
		out = append(out, zap.Any(k, ctx[k]))
	}
	return out
}
