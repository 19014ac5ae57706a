package server

import (
	"io"
	"log/slog"

	"github.com/zond/juicevox/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger returns a text logger writing to stderr and, if cfg names a
// file, to that file rotated by size. The returned closer closes the file.
func NewLogger(cfg config.Log, stderr io.Writer) (*slog.Logger, io.Closer) {
	w := stderr
	var closer io.Closer = io.NopCloser(nil)
	if cfg.File != "" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxBackups: cfg.MaxBackups,
		}
		w = io.MultiWriter(stderr, rotated)
		closer = rotated
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level: cfg.SlogLevel(),
	})), closer
}
