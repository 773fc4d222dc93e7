// internal/logger/log.go
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"insights-gateway/internal/config"

	stdlog "log"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
)

// UnknownRequestID is used when the caller sends no X-Request-Id.
const UnknownRequestID = "Unknown"

// Init
//
// Called once at startup. Chooses the output format from config:
//
//   - LOG_PRETTY=true : zerolog.ConsoleWriter, human-readable
//   - otherwise       : JSON on stdout for the log pipeline
//
// Every record carries "service" and "instance". With LOG_SAMPLE_N > 1 only
// one in N debug/info records is kept; warn and error are never sampled.
//
// Usage:
//
//	logger.Init(cfg)
//	log.Info().Msg("gateway started")
func Init(cfg config.Config) {
	level := zerolog.InfoLevel
	if l, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(cfg.LogLevel))); err == nil && l != zerolog.NoLevel {
		level = l
	}
	zerolog.SetGlobalLevel(level)

	var w io.Writer = os.Stdout
	if cfg.LogPretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	zlog.Logger = New(w, level, cfg)

	// loggers without a request attached still end up somewhere useful
	zerolog.DefaultContextLogger = &zlog.Logger

	// route stdlib log.Printf through zerolog as well
	stdlog.SetFlags(0)
	stdlog.SetOutput(zlog.Logger)
}

// New builds the base logger. Exposed for tests and the CLI, which want the
// same fields without replacing the global logger.
func New(w io.Writer, level zerolog.Level, cfg config.Config) zerolog.Logger {
	base := zerolog.New(w).
		Level(level).
		With().
		Timestamp().
		Str("service", cfg.ServiceName).
		Str("instance", cfg.InstanceID).
		Logger()

	if cfg.LogSampleN > 1 {
		return base.Sample(&zerolog.LevelSampler{
			DebugSampler: &zerolog.BasicSampler{N: cfg.LogSampleN},
			InfoSampler:  &zerolog.BasicSampler{N: cfg.LogSampleN},
		})
	}
	return base
}

// WithRequestID returns a context whose logger stamps every record with the
// request's correlation id. The parent logger comes from ctx when one is
// attached, otherwise from the global logger.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	if requestID == "" {
		requestID = UnknownRequestID
	}
	l := From(ctx).With().Str("request_id", requestID).Logger()
	return l.WithContext(ctx)
}

// From returns the logger attached to ctx (see WithRequestID).
func From(ctx context.Context) *zerolog.Logger {
	return zerolog.Ctx(ctx)
}
