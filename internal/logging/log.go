package logging

import (
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger returns the logger for the given subsystem. Every line carries a
// module field so output can be filtered per subsystem.
func Logger(module string) *logrus.Entry {
	return logrus.StandardLogger().WithField("module", module)
}

// Configure applies the verbosity and format from configuration to the
// standard logger. Format is "text" or "json".
func Configure(verbosity string, format string) error {
	level, err := logrus.ParseLevel(verbosity)
	if err != nil {
		return fmt.Errorf("invalid log verbosity: %w", err)
	}
	logrus.SetLevel(level)

	switch strings.ToLower(format) {
	case "", "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("invalid log format: %s", format)
	}
	return nil
}
