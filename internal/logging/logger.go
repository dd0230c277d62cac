package logging

import (
	"io"

	"github.com/sirupsen/logrus"
)

type Logger = *logrus.Logger

type Fields = logrus.Fields

// NewLogger returns a logrus logger. Unknown levels fall back to info; format
// "text" selects the human readable formatter, anything else JSON.
func NewLogger(level, format string) *logrus.Logger {
	logger := logrus.New()
	if format == "text" {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		logger.SetFormatter(&logrus.JSONFormatter{})
	}
	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}

// Discard returns a logger that drops everything. Used by tests and by
// components constructed without a logger.
func Discard() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}
