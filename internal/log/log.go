// Package log configures the process-wide logrus logger.
package log

import (
	"io"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ParseLevel maps a level name to a logrus level. Empty or unknown names
// yield InfoLevel.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// SetLogger sets the standard logger's level and an RFC3339 text formatter.
func SetLogger(level string) {
	customFormatter := new(logrus.TextFormatter)
	customFormatter.TimestampFormat = time.RFC3339
	customFormatter.FullTimestamp = true
	logrus.SetFormatter(customFormatter)
	logrus.SetLevel(ParseLevel(level))
}

// SetOutput redirects the standard logger, e.g. away from an interactive
// terminal.
func SetOutput(w io.Writer) {
	logrus.SetOutput(w)
}
