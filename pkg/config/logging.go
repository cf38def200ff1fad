package config

import (
	"fmt"
	"strings"

	"github.com/pion/logging"
)

var logLevels = map[string]logging.LogLevel{
	"disabled": logging.LogLevelDisabled,
	"error":    logging.LogLevelError,
	"warn":     logging.LogLevelWarn,
	"info":     logging.LogLevelInfo,
	"debug":    logging.LogLevelDebug,
	"trace":    logging.LogLevelTrace,
}

// ParseLogLevel converts a level name to a pion log level.
// An empty name is info.
func ParseLogLevel(s string) (logging.LogLevel, error) {
	if s == "" {
		return logging.LogLevelInfo, nil
	}
	level, ok := logLevels[strings.ToLower(s)]
	if !ok {
		return logging.LogLevelDisabled, fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, s)
	}
	return level, nil
}

// LoggerFactory builds a pion logger factory writing at the configured level.
func (c *Config) LoggerFactory() *logging.DefaultLoggerFactory {
	level, err := ParseLogLevel(c.Logging.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	lf := logging.NewDefaultLoggerFactory()
	lf.DefaultLogLevel = level
	return lf
}
