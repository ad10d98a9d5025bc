// Package obs wires observability: structured logging and prometheus metrics.
package obs

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// NewLogger builds the service-wide zerolog logger. Dev mode switches to the
// human-readable console writer.
func NewLogger(level string, dev bool) zerolog.Logger {
	parsed, err := zerolog.ParseLevel(level)
	if err != nil {
		parsed = zerolog.InfoLevel
	}

	if dev {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
			Level(parsed).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).Level(parsed).With().
		Timestamp().
		Str("service", "moatgate").
		Logger()
}
