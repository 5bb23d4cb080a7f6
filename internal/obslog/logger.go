// Package obslog provides structured logging for cardforge, wrapping
// logrus the way the teacher's pkg/logger wraps it.
package obslog

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger wraps a logrus.Logger so call sites can attach structured fields
// (card_id, iteration, trigger, ...) without depending on logrus directly.
type Logger struct {
	*logrus.Logger
}

// Config controls logger construction.
type Config struct {
	Level      string `json:"level" env:"LOG_LEVEL"`
	Format     string `json:"format" env:"LOG_FORMAT"`
	Output     string `json:"output" env:"LOG_OUTPUT"`
	FilePrefix string `json:"file_prefix" env:"LOG_FILE_PREFIX"`
}

// DefaultConfig returns sane defaults for local development.
func DefaultConfig() Config {
	return Config{Level: "info", Format: "text", Output: "stdout"}
}

// New builds a Logger from cfg.
func New(cfg Config) *Logger {
	l := logrus.New()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{})
	default:
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	switch strings.ToLower(cfg.Output) {
	case "file":
		prefix := cfg.FilePrefix
		if prefix == "" {
			prefix = "cardforge"
		}
		if mkErr := os.MkdirAll("logs", 0o755); mkErr != nil {
			l.Errorf("failed to create logs directory: %v", mkErr)
			break
		}
		path := filepath.Join("logs", prefix+".log")
		f, openErr := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if openErr != nil {
			l.Errorf("failed to open log file %s: %v", path, openErr)
			break
		}
		l.SetOutput(f)
	default:
		l.SetOutput(os.Stdout)
	}

	return &Logger{Logger: l}
}

// WithCard returns an entry pre-populated with the card_id field.
func (l *Logger) WithCard(cardID string) *logrus.Entry {
	return l.WithField("card_id", cardID)
}

// Noop returns a logger that discards everything; useful for tests.
func Noop() *Logger {
	l := logrus.New()
	l.SetOutput(nopWriter{})
	return &Logger{Logger: l}
}

type nopWriter struct{}

func (nopWriter) Write(p []byte) (int, error) { return len(p), nil }
