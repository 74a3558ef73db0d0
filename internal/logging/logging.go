// Package logging installs the process-wide slog JSON logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type Options struct {
	Level      string
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Service    string
}

// New builds a JSON logger writing to w, and additionally to a rotating
// file when opts.File is set. The returned closer releases the file.
func New(w io.Writer, opts Options) (*slog.Logger, io.Closer) {
	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		w = io.MultiWriter(w, rotator)
		closer = rotator
	}

	logger := slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: ParseLevel(opts.Level),
	}))
	if opts.Service != "" {
		logger = logger.With("service", opts.Service)
	}
	return logger, closer
}

// Setup installs the logger as the slog default for the whole process.
func Setup(opts Options) io.Closer {
	logger, closer := New(os.Stdout, opts)
	slog.SetDefault(logger)
	return closer
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
