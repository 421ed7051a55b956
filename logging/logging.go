// Package logging builds the structured logger used by the block archive.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/bitfsorg/blockarchive-go/config"
)

// ParseLevel maps "debug", "info", "warn" and "error" (any case) to a
// slog level. Unknown strings map to info.
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

// New returns a text logger writing to w at the given level.
func New(level string, w io.Writer) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// FromConfig returns a logger for cfg.LogLevel writing to cfg.LogFile, or
// to stderr when LogFile is empty. The returned closer releases the log
// file and is a no-op for stderr.
func FromConfig(cfg config.Config) (*slog.Logger, io.Closer, error) {
	if cfg.LogFile == "" {
		return New(cfg.LogLevel, os.Stderr), nopCloser{}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.LogFile), 0700); err != nil {
		return nil, nil, fmt.Errorf("logging: create directory: %w", err)
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0600)
	if err != nil {
		return nil, nil, fmt.Errorf("logging: open %s: %w", cfg.LogFile, err)
	}
	return New(cfg.LogLevel, f), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
