package obslog

import (
	"os"

	"github.com/sirupsen/logrus"

	"github.com/kratepkg/krate/internal/debug"
)

// New builds a logrus.Logger configured per level/format, matching the
// WithFields structured-logging style used throughout the rest of the
// codebase. debug.Enabled() (KRATE_DEBUG / KRATE_LOG_LEVEL=debug) forces
// the level to Debug regardless of the level argument, so ad hoc
// debugging never requires passing --log-level everywhere it's checked.
func New(level, format string) *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)

	if format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	debug.InitFromLogLevel(level)

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	if debug.Enabled() {
		parsed = logrus.DebugLevel
	}
	logger.SetLevel(parsed)

	return logger
}

// ForArchiveOp returns a logger entry pre-tagged with the archive
// subsystem and the operation name, the shape every archive command
// handler logs through.
func ForArchiveOp(logger *logrus.Logger, operation string) *logrus.Entry {
	return logger.WithFields(logrus.Fields{
		"subsystem": "archive",
		"operation": operation,
	})
}

// ForProxy returns a logger entry pre-tagged with the proxy subsystem.
func ForProxy(logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("subsystem", "proxy")
}
