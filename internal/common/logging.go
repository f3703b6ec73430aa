package common

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

type LogConfig struct {
	Level  string `yaml:"level" env:"LEVEL" validate:"omitempty,oneof=trace debug info warn error disabled"`
	Format string `yaml:"format" env:"FORMAT" validate:"omitempty,oneof=json console"`
	Caller bool   `yaml:"caller" env:"CALLER"`

	// File enables a rotated copy of the log next to stderr output.
	File       string `yaml:"file" env:"FILE"`
	MaxSizeMB  int    `yaml:"maxSizeMB" env:"MAX_SIZE_MB" validate:"gte=0"`
	MaxAgeDays int    `yaml:"maxAgeDays" env:"MAX_AGE_DAYS" validate:"gte=0"`
	MaxBackups int    `yaml:"maxBackups" env:"MAX_BACKUPS" validate:"gte=0"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// SetupLogging builds the process logger. The returned closer flushes and
// closes the rotated file, if any.
func SetupLogging(cfg LogConfig, stderr io.Writer) (zerolog.Logger, io.Closer, error) {
	if stderr == nil {
		stderr = os.Stderr
	}
	out := stderr
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: "15:04:05"}
	}
	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "" && dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
		out = io.MultiWriter(out, rotator)
		closer = rotator
	}

	zerolog.TimeFieldFormat = time.RFC3339
	logger := zerolog.New(out).Level(ParseLevel(cfg.Level)).With().Timestamp().Logger()
	if cfg.Caller {
		logger = logger.With().Caller().Logger()
	}
	return logger, closer, nil
}

func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
