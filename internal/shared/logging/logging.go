package logging

import (
	"io"
	"log/slog"
	"os"

	slogmulti "github.com/samber/slog-multi"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options control where logs go
type Options struct {
	Debug      bool
	File       string // rotating JSON log, disabled if empty
	MaxSizeMB  int
	MaxBackups int
	Stdout     io.Writer
	Stderr     io.Writer
}

// New builds a fanout logger: text to stdout, errors as JSON to stderr and,
// optionally, everything as JSON to a rotating file. The returned closer
// flushes the file and must be called on shutdown.
func New(opts Options) (*slog.Logger, io.Closer) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}

	level := slog.LevelInfo
	if opts.Debug {
		level = slog.LevelDebug
	}

	handlers := []slog.Handler{
		slog.NewTextHandler(opts.Stdout, &slog.HandlerOptions{Level: level}),
		slog.NewJSONHandler(opts.Stderr, &slog.HandlerOptions{Level: slog.LevelError}),
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // in MB
			MaxBackups: opts.MaxBackups,
			Compress:   true,
			LocalTime:  true,
		}
		handlers = append(handlers, slog.NewJSONHandler(rotating, &slog.HandlerOptions{Level: level}))
		closer = rotating
	}

	return slog.New(slogmulti.Fanout(handlers...)), closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
