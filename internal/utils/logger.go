package utils

import (
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger creates a new configured logger. When file is set, output is
// also written to a size-rotated log file.
func NewLogger(level string, file string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(logOutput(os.Stdout, file))
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	// Parse log level
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)

	return logger
}

func logOutput(base io.Writer, file string) io.Writer {
	if file == "" {
		return base
	}
	if err := os.MkdirAll(filepath.Dir(file), 0755); err != nil {
		return base
	}

	rotator := &lumberjack.Logger{
		Filename:   file,
		MaxSize:    10, // megabytes
		MaxBackups: 3,
		MaxAge:     28, // days
	}
	return io.MultiWriter(base, rotator)
}
