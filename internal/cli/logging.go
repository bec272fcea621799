package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/loreledger/internal/config"
)

// newLogger builds the process logger. Logs always go to w (stderr) so
// they never interleave with --format json output on stdout.
func newLogger(w io.Writer, format string, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if format == config.LogFormatJSON {
		handler = slog.NewJSONHandler(w, handlerOpts)
	} else {
		handler = slog.NewTextHandler(w, handlerOpts)
	}
	return slog.New(handler)
}
