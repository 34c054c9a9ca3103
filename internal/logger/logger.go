// Package logger configures zerolog for the server and the terminal player.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Output formats.
const (
	FormatJSON   = "json"
	FormatPretty = "pretty"
)

// Setup initializes the global zerolog logger writing to stdout.
//   - level: log level string (trace, debug, info, warn, error, fatal, panic)
//   - format: "json" for production, "pretty" for human-readable dev output
func Setup(level, format string) zerolog.Logger {
	return SetupWriter(level, format, os.Stdout)
}

// SetupWriter is Setup with an explicit destination. Pretty output is only
// colored on stdout.
func SetupWriter(level, format string, out io.Writer) zerolog.Logger {
	writer := out
	if format == FormatPretty {
		writer = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    out != os.Stdout,
		}
	}

	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

// OpenFile appends JSON logs to path, creating its directory. The terminal
// player logs here so nothing interleaves with the exam screen. The
// returned close func is never nil.
func OpenFile(path, level string) (zerolog.Logger, func() error, error) {
	nop := func() error { return nil }
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return zerolog.Nop(), nop, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return zerolog.Nop(), nop, fmt.Errorf("open log file: %w", err)
	}
	log := SetupWriter(level, FormatJSON, f).With().Int("pid", os.Getpid()).Logger()
	return log, f.Close, nil
}
