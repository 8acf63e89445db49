package main

import (
	"io"
	"log/slog"
	"strings"
	"time"
)

// ProcessConfig holds the settings that belong to the executable rather
// than the service: logging, HTTP timeouts and CORS. Service settings are
// read by config.WithEnv.
type ProcessConfig struct {
	EnvPrefix       string        `env:"COMPOSITE_ENV_PREFIX" env-default:""`
	LogLevel        string        `env:"LOG_LEVEL" env-default:"info"`
	LogFormat       string        `env:"LOG_FORMAT" env-default:"text"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" env-default:"60s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" env-default:"10s"`
	CORSOrigins     []string      `env:"CORS_ORIGINS" env-separator:","`
}

// Logger builds the process logger. Unknown levels fall back to info.
func (p ProcessConfig) Logger(w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(p.LogLevel)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if strings.EqualFold(p.LogFormat, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
