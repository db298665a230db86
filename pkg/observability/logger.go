// Package observability sets up logging and metrics for the engine.
package observability

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "AUGERBOT_LOG_LEVEL"
	EnvLogTimestamp = "AUGERBOT_LOG_TIMESTAMP"
	EnvLogNoColor   = "AUGERBOT_LOG_NOCOLOR"
)

// LogConfig controls console log output.
type LogConfig struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
}

// DefaultLogConfig returns the runtime defaults with environment overrides.
func DefaultLogConfig() LogConfig {
	cfg := LogConfig{Level: zerolog.InfoLevel, Timestamp: true}
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
	return cfg
}

// InitLogger builds a console logger writing to out and installs it as the
// global zerolog logger.
func InitLogger(app string, out io.Writer, cfg LogConfig) zerolog.Logger {
	if out == nil {
		out = os.Stdout
	}
	output := zerolog.ConsoleWriter{
		Out:        out,
		TimeFormat: time.RFC3339,
		NoColor:    cfg.NoColor,
	}
	if !cfg.Timestamp {
		output.PartsExclude = []string{zerolog.TimestampFieldName}
	}
	logger := zerolog.New(output).Level(cfg.Level).With().Timestamp().Str("app", app).Logger()
	log.Logger = logger
	return logger
}

// ParseLevel maps a level name to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "disable", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

// LineWriter forwards each written log line to a channel, dropping lines
// when the reader falls behind. It backs the TUI log box.
type LineWriter struct {
	ch chan string
}

// NewLineWriter creates a writer with the given channel buffer.
func NewLineWriter(buffer int) *LineWriter {
	return &LineWriter{ch: make(chan string, buffer)}
}

func (w *LineWriter) Write(p []byte) (int, error) {
	line := strings.TrimRight(string(p), "\n")
	select {
	case w.ch <- line:
	default:
		// Drop if channel full
	}
	return len(p), nil
}

// Lines returns the channel of log lines.
func (w *LineWriter) Lines() <-chan string {
	return w.ch
}
