package utils

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// NewLogger creates a new logger instance. Unknown levels fall back to INFO
// and any format other than "text" selects JSON.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	switch strings.ToUpper(level) {
	case "DEBUG":
		logger.SetLevel(logrus.DebugLevel)
	case "INFO":
		logger.SetLevel(logrus.InfoLevel)
	case "WARN":
		logger.SetLevel(logrus.WarnLevel)
	case "ERROR":
		logger.SetLevel(logrus.ErrorLevel)
	}

	if strings.EqualFold(format, "text") {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}

	return logger
}

// NewLoggerFromConfig builds a logger and, when FilePath is set, tees output
// to that file. The returned closer releases the file.
func NewLoggerFromConfig(cfg LoggingConfig) (*logrus.Logger, io.Closer, error) {
	logger := NewLogger(cfg.Level, cfg.Format)
	if cfg.FilePath == "" {
		return logger, io.NopCloser(nil), nil
	}

	file, err := os.OpenFile(cfg.FilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return logger, io.NopCloser(nil), fmt.Errorf("failed to open log file %s: %w", cfg.FilePath, err)
	}
	logger.SetOutput(io.MultiWriter(os.Stdout, file))
	return logger, file, nil
}
