// Package log builds [slog.Handler] values for the lccnr console and for
// per-run log files.
package log

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/muesli/termenv"

	charmlog "github.com/charmbracelet/log"
)

type (
	Format string
	Level  string
)

const (
	FormatJSON   Format = "json"
	FormatLogfmt Format = "logfmt"
	FormatText   Format = "text"

	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

var (
	ErrUnknownLogLevel  = errors.New("unknown log level")
	ErrUnknownLogFormat = errors.New("unknown log format")

	AllFormats = []string{string(FormatJSON), string(FormatLogfmt), string(FormatText)}
	AllLevels  = []string{string(LevelError), string(LevelWarn), string(LevelInfo), string(LevelDebug)}
)

var levels = map[Level]slog.Level{
	LevelError: slog.LevelError,
	LevelWarn:  slog.LevelWarn,
	"warning":  slog.LevelWarn,
	LevelInfo:  slog.LevelInfo,
	LevelDebug: slog.LevelDebug,
}

// CreateHandlerWithStrings parses the level and format names of the
// --log-level and --log-format flags.
func CreateHandlerWithStrings(w io.Writer, logLevel, logFormat string) (slog.Handler, error) {
	lvl, err := GetLevel(logLevel)
	if err != nil {
		return nil, err
	}
	logFmt, err := GetFormat(logFormat)
	if err != nil {
		return nil, err
	}
	return CreateHandler(w, lvl, logFmt), nil
}

// CreateHandler creates a terminal handler. Text output follows the colour
// profile of the environment.
func CreateHandler(w io.Writer, lvl slog.Level, logFmt Format) slog.Handler {
	return createHandler(w, lvl, logFmt, termenv.ColorProfile())
}

// CreateFileHandler creates a handler for a run log file; text output is
// never coloured.
func CreateFileHandler(w io.Writer, lvl slog.Level, logFmt Format) slog.Handler {
	return createHandler(w, lvl, logFmt, termenv.Ascii)
}

func createHandler(w io.Writer, lvl slog.Level, logFmt Format, profile termenv.Profile) slog.Handler {
	opts := &slog.HandlerOptions{Level: lvl}
	switch logFmt {
	case FormatJSON:
		return slog.NewJSONHandler(w, opts)
	case FormatLogfmt:
		return slog.NewTextHandler(w, opts)
	}

	//nolint:gosec // G115: slog levels fit in int32.
	logger := charmlog.NewWithOptions(w, charmlog.Options{
		Level:           charmlog.Level(int32(lvl)),
		Formatter:       charmlog.TextFormatter,
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	logger.SetColorProfile(profile)
	return logger
}

// GetLevel parses a level name, case-insensitively
func GetLevel(level string) (slog.Level, error) {
	if lvl, ok := levels[Level(strings.ToLower(level))]; ok {
		return lvl, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownLogLevel, level)
}

// GetFormat parses a format name, case-insensitively
func GetFormat(format string) (Format, error) {
	switch f := Format(strings.ToLower(format)); f {
	case FormatJSON, FormatLogfmt, FormatText:
		return f, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownLogFormat, format)
}
