// Package logging configures the process-wide logrus logger.
package logging

import (
	"io"
	"strings"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Setup selects the level and format of the standard logger. An empty
// level means info and an empty format means text.
func Setup(level, format string) error {
	return configure(log.StandardLogger(), level, format)
}

// SetOutput redirects the standard logger, typically to the command's
// stderr.
func SetOutput(w io.Writer) {
	log.SetOutput(w)
}

func configure(logger *log.Logger, level, format string) error {
	if level == "" {
		level = "info"
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return errors.Wrapf(err, "invalid log level %q", level)
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(format) {
	case "", FormatText:
		logger.SetFormatter(&log.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: time.RFC3339,
		})
	case FormatJSON:
		logger.SetFormatter(&log.JSONFormatter{TimestampFormat: time.RFC3339})
	default:
		return errors.Errorf("invalid log format %q (want %s or %s)", format, FormatText, FormatJSON)
	}
	return nil
}
