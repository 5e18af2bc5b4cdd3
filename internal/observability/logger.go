package observability

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
)

const maxLoggerFieldCapacity = 5

// Loggers are not stored in context; only the id fields are.
//
//nolint:gochecknoglobals // Singleton logger is a standard pattern
var (
	globalLogger *zap.Logger
	loggerMu     sync.RWMutex
)

// Options selects the level and encoding of the base logger.
type Options struct {
	Level  string `env:"LOG_LEVEL"  envDefault:"info"`
	Format string `env:"LOG_FORMAT" envDefault:"json"`
}

// InitLogger initializes the base logger (called once at startup).
// Format "console" switches to the human-readable development encoder.
func InitLogger(opts *Options) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if opts != nil {
		if opts.Format == "console" {
			cfg = zap.NewDevelopmentConfig()
		}
		if opts.Level != "" {
			level, err := zap.ParseAtomicLevel(opts.Level)
			if err != nil {
				return nil, fmt.Errorf("invalid log level %q: %w", opts.Level, err)
			}
			cfg.Level = level
		}
	}

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}

	SetLogger(logger)

	return logger, nil
}

// SetLogger replaces the global logger. Tests use it to install zap.NewNop or an observer.
func SetLogger(logger *zap.Logger) {
	loggerMu.Lock()
	globalLogger = logger
	loggerMu.Unlock()
}

// getBaseLogger returns the global logger instance.
func getBaseLogger() *zap.Logger {
	loggerMu.RLock()
	logger := globalLogger
	loggerMu.RUnlock()

	if logger == nil {
		logger, _ = zap.NewProduction()
	}

	return logger
}

// FromContext returns the base logger enriched with the trace, request,
// session and turn ids carried by ctx.
func FromContext(ctx context.Context) *zap.Logger {
	logger := getBaseLogger()

	fields := make([]zap.Field, 0, maxLoggerFieldCapacity)

	if traceID := GetTraceID(ctx); traceID != "" {
		fields = append(fields, zap.String("trace_id", traceID))
	}

	if spanID := GetSpanID(ctx); spanID != "" {
		fields = append(fields, zap.String("span_id", spanID))
	}

	if requestID := GetRequestID(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}

	if sessionID := GetSessionID(ctx); sessionID != "" {
		fields = append(fields, zap.String("session_id", sessionID))
	}

	if turnID := GetTurnID(ctx); turnID != "" {
		fields = append(fields, zap.String("turn_id", turnID))
	}

	return logger.With(fields...)
}
