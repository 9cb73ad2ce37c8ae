package observability

import (
	"io"
	"log/slog"
	"math"
	"strings"
)

var noopLogger *slog.Logger

// NoopLogger returns a disabled Logger
func NoopLogger() *slog.Logger {
	return noopLogger
}

// NewLogger returns a Logger writing to w.
// format is "json" or "text", level is one of debug, info, warn, error.
func NewLogger(w io.Writer, format string, level string) *slog.Logger {
	var lvl slog.Level
	err := lvl.UnmarshalText([]byte(strings.TrimSpace(level)))
	if nil != err {
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var hdlr slog.Handler
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "json":
		hdlr = slog.NewJSONHandler(w, opts)
	default:
		hdlr = slog.NewTextHandler(w, opts)
	}

	return slog.New(hdlr)
}

func init() {
	hdlr := slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)})
	noopLogger = slog.New(hdlr)
}
