package logging

import (
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/samber/oops"
)

const (
	maxLogBytes   = 20 << 20
	maxLogBackups = 5
)

// Setup builds the process logger, installs it as the slog default and
// returns it together with a closer for the log file. An empty file path logs
// to stdout only.
func Setup(level, file string) (*slog.Logger, io.Closer, error) {
	out := io.Writer(os.Stdout)
	var closer io.Closer = nopCloser{}
	if file != "" {
		rf, err := OpenRotatingFile(file, maxLogBytes, maxLogBackups)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, rf)
		closer = rf
	}

	logger := New(out, level)
	slog.SetDefault(logger)
	return logger, closer, nil
}

// New returns a text logger writing to w at the given level.
func New(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel accepts debug, info, warn and error (case-insensitive) and
// falls back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// StdLogger bridges logger into a *log.Logger for libraries that want one.
func StdLogger(logger *slog.Logger) *log.Logger {
	return slog.NewLogLogger(logger.Handler(), slog.LevelInfo)
}

// Error logs err under msg. For oops errors the domain, code and context are
// logged as separate attributes.
func Error(logger *slog.Logger, msg string, err error, attrs ...any) {
	if oopsErr, ok := oops.AsOops(err); ok {
		attrs = append(attrs, "error", oopsErr.Error())
		if domain := oopsErr.Domain(); domain != "" {
			attrs = append(attrs, "domain", domain)
		}
		if code := oopsErr.Code(); code != nil {
			attrs = append(attrs, "code", code)
		}
		if ctx := oopsErr.Context(); len(ctx) > 0 {
			attrs = append(attrs, "context", ctx)
		}
		logger.Error(msg, attrs...)
		return
	}
	logger.Error(msg, append(attrs, "error", err)...)
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
