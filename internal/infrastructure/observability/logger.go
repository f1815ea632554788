package observability

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/trace"
)

// InitLogger initializes the global zerolog logger on stdout
func InitLogger(serviceName, env, level string) {
	InitLoggerTo(os.Stdout, serviceName, env, level)
}

// InitLoggerTo initializes the global zerolog logger on out. An unknown level
// falls back to info.
func InitLoggerTo(out io.Writer, serviceName, env, level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if env == "development" {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	zc := zerolog.New(out).With().Timestamp().Str("service", serviceName)
	if env != "development" {
		zc = zc.Caller()
	}
	log.Logger = zc.Logger()
}

// LoggerFromContext returns the request logger, or the global one, with
// trace context. Dictation text must never be passed to it; log lengths.
func LoggerFromContext(ctx context.Context) *zerolog.Logger {
	logger := log.Logger
	if l := zerolog.Ctx(ctx); l.GetLevel() != zerolog.Disabled {
		logger = *l
	}

	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		logger = logger.With().
			Str("trace_id", sc.TraceID().String()).
			Str("span_id", sc.SpanID().String()).
			Logger()
	}

	return &logger
}
