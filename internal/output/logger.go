/*
PURPOSE:
  Provides the structured logger for Agent Bench.
  Wraps zerolog for consistent output.

REQUIREMENTS:
  User-specified:
  - "Sane" CLI output. Not spammy.
  - Never mix log lines into the chat transcript on stdout.

  Implementation-discovered:
  - Needs console (human) and JSON (machine) formats.
  - Level must be configurable from config and CLI flags.

ARCHITECTURE INTEGRATION:
  - Used everywhere.

ERROR HANDLING:
  - Unknown levels fall back to info.

IMPLEMENTATION RULES:
  - Logs go to stderr.
  - Never log API keys.

USAGE:
  output.Logger.Info().Str("provider", "openai").Msg("Session started")

RELATED FILES:
  - internal/cli/root.go

MAINTENANCE:
  - File output/rotation if runs get long.
*/

package output

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the process-wide logger. Defaults to info on stderr.
var Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
	Level(zerolog.InfoLevel).
	With().
	Timestamp().
	Logger()

// Setup configures the global logger. format is "console" or "json".
func Setup(w io.Writer, level, format string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}

	if w == nil {
		w = os.Stderr
	}
	if format != "json" {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.Kitchen}
	}

	Logger = zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// SetLogger allows overriding the default logger (e.g. for testing or config changes)
func SetLogger(l zerolog.Logger) {
	Logger = l
}
