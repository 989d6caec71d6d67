package app

import (
	"log/slog"
	"os"
	"strings"

	"github.com/bissquit/incident-tracker/internal/config"
)

// InitLogger builds the process logger. Unknown levels fall back to info;
// any format other than "json" is text.
func InitLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToLower(cfg.Level))); err != nil {
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "json") {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
