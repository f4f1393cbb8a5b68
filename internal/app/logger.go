package app

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"offer-dispatch/internal/config"
	"offer-dispatch/internal/logx"
)

// NewLogger builds the process logger. "json" writes slog JSON to stdout,
// "zap" uses a zap production logger.
func NewLogger(cfg config.Log) (logx.Logger, error) {
	switch strings.ToLower(cfg.Format) {
	case "", "json":
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(levelOrInfo(cfg.Level))); err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		base := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
		return logx.NewSlogAdapter(base), nil
	case "zap":
		lvl, err := zapcore.ParseLevel(levelOrInfo(cfg.Level))
		if err != nil {
			return nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
		}
		zc := zap.NewProductionConfig()
		zc.Level = zap.NewAtomicLevelAt(lvl)
		l, err := zc.Build()
		if err != nil {
			return nil, fmt.Errorf("build zap logger: %w", err)
		}
		return logx.NewZapAdapter(l), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", cfg.Format)
	}
}

func levelOrInfo(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return "info"
	}
	return s
}
