package infra

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger aliases zerolog.Logger for packages that only pass loggers around.
type Logger = zerolog.Logger

// NewLogger builds the service logger on stdout. Development gets
// human-readable console output at debug level; every other environment logs
// JSON at info. A non-empty levelName (LOG_LEVEL) overrides the level.
func NewLogger(appEnv, levelName string) Logger {
	return NewLoggerTo(os.Stdout, appEnv, levelName)
}

// NewLoggerTo is NewLogger for an arbitrary writer. CLIs log to stderr so
// stdout stays reserved for their output.
func NewLoggerTo(out io.Writer, appEnv, levelName string) Logger {
	dev := appEnv == "development"
	level := zerolog.InfoLevel
	if dev {
		level = zerolog.DebugLevel
	}
	if name := strings.TrimSpace(levelName); name != "" {
		if parsed, err := zerolog.ParseLevel(strings.ToLower(name)); err == nil {
			level = parsed
		}
	}

	if dev {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("env", appEnv).
		Logger()
}
