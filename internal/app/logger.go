package app

import (
	"log/slog"
	"os"
)

// NewLogger returns a configured slog.Logger. Production runs emit JSON;
// everything else gets the text handler for readable local output.
func NewLogger(cfg *Config) *slog.Logger {
	if cfg != nil && (cfg.LogFormat == "json" || cfg.IsProduction()) {
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{AddSource: true}))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, nil))
}
