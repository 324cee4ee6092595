// Package logging builds the process logger from configuration.
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/tejusbharadwaj/spotprice/internal/config"
	"github.com/tejusbharadwaj/spotprice/internal/models"
)

// New returns a logrus logger with the configured level, format and output.
// File output is rotated by lumberjack.
func New(cfg config.LoggingConfig) (*logrus.Logger, error) {
	logger := logrus.New()

	level, err := logrus.ParseLevel(orDefault(cfg.Level, "info"))
	if err != nil {
		return nil, fmt.Errorf("%w: logging.level: %v", models.ErrConfiguration, err)
	}
	logger.SetLevel(level)

	switch strings.ToLower(orDefault(cfg.Format, "json")) {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	case "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true, TimestampFormat: time.RFC3339})
	default:
		return nil, fmt.Errorf("%w: logging.format %q is not supported", models.ErrConfiguration, cfg.Format)
	}

	var output io.Writer
	switch strings.ToLower(orDefault(cfg.Output, "stdout")) {
	case "stdout":
		output = os.Stdout
	case "stderr":
		output = os.Stderr
	case "file":
		if cfg.File == "" {
			return nil, fmt.Errorf("%w: logging.file is required for file output", models.ErrConfiguration)
		}
		output = &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSizeMB,
			MaxAge:     cfg.MaxAgeDays,
			MaxBackups: cfg.MaxBackups,
			Compress:   cfg.Compress,
		}
	default:
		return nil, fmt.Errorf("%w: logging.output %q is not supported", models.ErrConfiguration, cfg.Output)
	}
	logger.SetOutput(output)

	return logger, nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
