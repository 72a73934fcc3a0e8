package observability

import (
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// NewLoggerWithLevel returns the JSON stdout logger of one indexer
// component. Every line carries the component name; handlers and the block
// processor add height and position fields on top.
func NewLoggerWithLevel(component string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(os.Stdout).
		Level(level).
		With().
		Timestamp().
		Str("component", component).
		Logger()
}

// ParseLogLevel maps log.level (or ENDER_LOG_LEVEL) to a zerolog level.
// Unknown names map to info.
func ParseLogLevel(s string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	default:
		return zerolog.InfoLevel
	}
}

func init() {
	// Block times are nanosecond precise.
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
