// If you are AI: This file builds the process logger from configuration.
// Console output is human-readable when attached to a terminal, JSON otherwise.

package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/term"

	"portbridge/internal/config"
)

// New creates a logger writing to the configured file, or to stderr.
// The returned closer releases the log file and is never nil.
func New(cfg config.LogConfig) (zerolog.Logger, io.Closer, error) {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, fmt.Errorf("parse log level: %w", err)
	}

	if cfg.File != "" {
		f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return zerolog.Nop(), nopCloser{}, fmt.Errorf("open log file: %w", err)
		}
		return NewWriter(f, level, false), f, nil
	}

	console := term.IsTerminal(int(os.Stderr.Fd()))
	return NewWriter(os.Stderr, level, console), nopCloser{}, nil
}

// NewWriter creates a logger on w. console selects the human-readable format.
func NewWriter(w io.Writer, level zerolog.Level, console bool) zerolog.Logger {
	if console {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.TimeOnly}
	}
	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
