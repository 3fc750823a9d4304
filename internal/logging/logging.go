package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/set-night/chatrelay/internal/config"

	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	maxLogSizeMB  = 20
	maxLogBackups = 5
	maxLogAgeDays = 14
)

// Init configures the default slog logger. An empty LogFile writes to stdout.
func Init(cfg *config.Config) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.LogLevel)}

	logPath := strings.TrimSpace(cfg.LogFile)
	if logPath == "" {
		logger := slog.New(newHandler(cfg.LogFormat, os.Stdout, opts))
		slog.SetDefault(logger)
		return logger, nil
	}

	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		logger := slog.New(newHandler(cfg.LogFormat, os.Stdout, opts))
		slog.SetDefault(logger)
		return logger, err
	}

	writer := &lumberjack.Logger{
		Filename:   logPath,
		MaxSize:    maxLogSizeMB,
		MaxBackups: maxLogBackups,
		MaxAge:     maxLogAgeDays,
		Compress:   true,
	}

	logger := slog.New(newHandler(cfg.LogFormat, writer, opts))
	slog.SetDefault(logger)
	return logger, nil
}

func parseLogLevel(level string) slog.Level {
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

func newHandler(format string, out io.Writer, opts *slog.HandlerOptions) slog.Handler {
	if strings.EqualFold(strings.TrimSpace(format), "text") {
		return slog.NewTextHandler(out, opts)
	}
	return slog.NewJSONHandler(out, opts)
}
