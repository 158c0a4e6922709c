// Package logging builds the process logger: JSON records in a rotating file,
// mirrored to stderr as text.
package logging

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

// FileName is the log file created under the log directory.
const FileName = "aeronav.log"

// ParseLevel maps debug, info, warn and error to a slog level. Unknown names
// return info and false.
func ParseLevel(level string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug, true
	case "", "info":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return slog.LevelInfo, false
}

// New returns a logger at the given level. With a non-empty dir, records are
// also written as JSON to dir/aeronav.log, rotated at 64 MB and kept 14 days.
func New(level, dir string) *slog.Logger {
	return newLogger(level, dir, os.Stderr)
}

func newLogger(level, dir string, stderr io.Writer) *slog.Logger {
	lvl, ok := ParseLevel(level)
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler = slog.NewTextHandler(stderr, opts)
	var file string
	if dir != "" {
		w := &lumberjack.Logger{
			Filename: filepath.Join(dir, FileName),
			MaxSize:  64, // MB
			MaxAge:   14,
			Compress: true,
		}
		file = w.Filename
		h = tee{slog.NewJSONHandler(w, opts), h}
	}

	l := slog.New(h)
	if !ok {
		l.Warn("invalid log level, using info", "level", level)
	}
	l.Debug("logger started",
		slog.String("file", file),
		slog.String("GOARCH", runtime.GOARCH),
		slog.String("GOOS", runtime.GOOS),
		slog.Int("NumCPUs", runtime.NumCPU()))
	return l
}

// tee fans records out to several handlers.
type tee []slog.Handler

func (t tee) Enabled(ctx context.Context, l slog.Level) bool {
	for _, h := range t {
		if h.Enabled(ctx, l) {
			return true
		}
	}
	return false
}

func (t tee) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range t {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			errs = append(errs, fmt.Errorf("%T: %w", h, err))
		}
	}
	return errors.Join(errs...)
}

func (t tee) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (t tee) WithGroup(name string) slog.Handler {
	out := make(tee, len(t))
	for i, h := range t {
		out[i] = h.WithGroup(name)
	}
	return out
}
