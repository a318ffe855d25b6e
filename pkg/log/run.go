package log

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// RunOptions configures the logger of a single pipeline run.
type RunOptions struct {
	// Dir is the directory holding the log file.
	Dir string
	// Name is the log file name inside Dir.
	Name string

	Format       Format
	FileLevel    slog.Level
	ConsoleLevel slog.Level

	// Console receives records at ConsoleLevel and above. Nil disables it.
	Console io.Writer
}

// DefaultRunOptions logs INFO and above to the file and only errors to
// the console.
func DefaultRunOptions(dir, name string, console io.Writer) RunOptions {
	return RunOptions{
		Dir:          dir,
		Name:         name,
		Format:       FormatText,
		FileLevel:    slog.LevelInfo,
		ConsoleLevel: slog.LevelError,
		Console:      console,
	}
}

// NewRunLogger opens (appending) the run's log file and returns a logger
// writing to it and to the console. The caller closes the returned file.
func NewRunLogger(opts RunOptions) (*slog.Logger, io.Closer, error) {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if _, err := GetFormat(string(opts.Format)); err != nil {
		return nil, nil, err
	}

	if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	path := filepath.Join(opts.Dir, opts.Name)
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("open log file: %w", err)
	}

	var console slog.Handler
	if opts.Console != nil {
		console = CreateHandler(opts.Console, opts.ConsoleLevel, opts.Format)
	}
	handler := NewFanoutHandler(
		CreateFileHandler(file, opts.FileLevel, opts.Format),
		console,
	)

	return slog.New(handler), file, nil
}
