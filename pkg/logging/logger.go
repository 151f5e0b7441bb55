// Package logging configures the structured zerolog output shared by
// every component of the Flowdeck client.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// LogLevel is the minimum severity a record needs to be emitted.
type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

// Level converts the textual level to zerolog's representation.
// Unrecognized values fall back to info.
func (l LogLevel) Level() zerolog.Level {
	switch strings.ToLower(string(l)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// Config holds logger configuration.
type Config struct {
	// Level is the minimum log level to output.
	Level LogLevel

	// Pretty switches from JSON records to human-readable console output.
	Pretty bool

	// Output is where records are written. Defaults to os.Stderr.
	Output io.Writer
}

// DefaultConfig returns the configuration used when the embedding
// program does not call Setup itself: info-level JSON on stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Output: os.Stderr}
}

// Setup configures the process-global logger that component loggers
// derive from, and returns it.
func Setup(cfg Config) zerolog.Logger {
	zerolog.SetGlobalLevel(cfg.Level.Level())

	output := cfg.Output
	if output == nil {
		output = os.Stderr
	}
	if cfg.Pretty {
		output = zerolog.ConsoleWriter{Out: output}
	}

	log.Logger = zerolog.New(output).With().Timestamp().Logger()
	return log.Logger
}

// NewLogger returns a child of the global logger tagged with the
// component emitting the records. Every package of this module obtains
// its logger here, so all records share one sink and one schema.
func NewLogger(component string) zerolog.Logger {
	return log.With().Str("component", component).Logger()
}

// Log Level Guidelines:
//
// Debug: Detailed information for debugging
//   - Request dispatch (method, path, has_body) and receipt (status)
//   - Error classification results
//   - Limiter queue drain events
//
// Warn: Conditions that don't prevent operation
//   - Retry attempts with backoff
//   - Queue-full rejections and evictions
//   - Truncated pagination, malformed page shapes
//   - Cache errors (fallback to direct request)
//
// Error: Conditions requiring attention
//   - Non-retryable failures
//   - Exhausted retry attempts
//   - Configuration errors
//
// Secret handling: credential header values and request/response bodies
// never appear in any record; only method, path, status, timing and
// classification fields are logged.
//
// Context Fields:
//   - method, path: request identity (path without query string)
//   - status: HTTP status code
//   - kind: error kind (invalid_argument, not_found, unavailable, ...)
//   - retryable: whether the failure is eligible for retry
//   - attempt / attempts: retry loop position
//   - backoff: sleep before the next attempt
//   - policy, max_queue_depth: limiter overflow decisions
