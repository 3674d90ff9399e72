package logger

import (
	"io"
	"os"
	"strings"

	"github.com/hashicorp/go-hclog"

	"guardian/internal/config"
)

// New creates the root hclog.Logger. GUARDIAN_LOG_LEVEL wins over the config.
func New(cfg config.LogConfig, name string) hclog.Logger {
	return NewWithOutput(cfg, name, os.Stderr)
}

func NewWithOutput(cfg config.LogConfig, name string, out io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:        name,
		Level:       determineLogLevel(cfg),
		JSONFormat:  cfg.JSONFormat,
		DisableTime: false,
		Output:      out,
	})
}

func determineLogLevel(cfg config.LogConfig) hclog.Level {
	if env := os.Getenv("GUARDIAN_LOG_LEVEL"); env != "" {
		return parseLogLevel(env)
	}
	return parseLogLevel(cfg.Level)
}

// parseLogLevel converts a string level to hclog.Level, defaulting to INFO.
func parseLogLevel(s string) hclog.Level {
	lvl := hclog.LevelFromString(strings.ToLower(strings.TrimSpace(s)))
	if lvl == hclog.NoLevel {
		return hclog.Info
	}
	return lvl
}
