package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

type Options struct {
	Level       string
	LogstashTCP string
	Service     string
}

// New builds the process logger. Records are JSON encoded to stdout and,
// when a Logstash address is configured, mirrored to it. The returned closer
// must be called on shutdown.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	if strings.TrimSpace(opts.LogstashTCP) != "" {
		sink, err := NewTCPSink(opts.LogstashTCP)
		if err != nil {
			return nil, nil, err
		}
		out = io.MultiWriter(os.Stdout, sink)
		closer = sink
	}

	logger := NewWithWriter(out, opts.Level)
	if opts.Service != "" {
		logger = logger.With(slog.String("service", opts.Service))
	}
	return logger, closer, nil
}

func NewWithWriter(w io.Writer, level string) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

// ParseLevel maps LOG_LEVEL values to slog levels; unknown values yield info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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
