// Package logging configures the process logger.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// EnvLevel names the environment variable holding the log level.
const EnvLevel = "LOG_LEVEL"

// New returns a text logger writing to w at the level named by LOG_LEVEL
// (ERROR, WARN, INFO, DEBUG or TRACE). Unknown or empty levels mean INFO.
func New(w io.Writer) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetLevel(ParseLevel(os.Getenv(EnvLevel)))
	return log
}

// ParseLevel maps a level name to a logrus level, defaulting to INFO.
func ParseLevel(s string) logrus.Level {
	s = strings.TrimSpace(s)
	if s == "" {
		return logrus.InfoLevel
	}
	level, err := logrus.ParseLevel(strings.ToLower(s))
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}
