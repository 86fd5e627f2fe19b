// internal/logger/logger.go
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide base logger. Components derive from it with WithComponent.
var Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

// Init configures the base logger. Unknown levels fall back to info.
func Init(level string, pretty bool) {
	logLevel, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		logLevel = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(logLevel)

	var output io.Writer = os.Stdout
	if pretty || os.Getenv("ENV") == "development" {
		output = zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}
	}

	Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger()

	Logger.Info().Str("level", logLevel.String()).Msg("logger initialized")
}

// WithComponent returns a logger with a component field
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}
