package logging

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"
)

type Config struct {
	// Starting from which level to log stuff: debug, info, warn or error.
	Level string `yaml:"level"`
	// Either "text" (default) or "json".
	Format string `yaml:"format"`
}

func DefaultConfig() Config {
	return Config{Level: "info", Format: "text"}
}

func (c Config) Validate() error {
	if _, err := level(c.Level); err != nil {
		return err
	}

	if _, err := formatter(c.Format); err != nil {
		return err
	}

	return nil
}

// Applies the configuration to the given logger.
func Configure(logger *logrus.Logger, config Config) error {
	lvl, err := level(config.Level)
	if err != nil {
		return err
	}

	format, err := formatter(config.Format)
	if err != nil {
		return err
	}

	logger.SetLevel(lvl)
	logger.SetFormatter(format)

	return nil
}

// Configures the global logger.
func Setup(config Config) error {
	return Configure(logrus.StandardLogger(), config)
}

// A logger that drops everything. Handy in tests.
func Discard() *logrus.Entry {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return logrus.NewEntry(logger)
}

func level(name string) (logrus.Level, error) {
	switch name {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown log level %q", name)
	}
}

func formatter(name string) (logrus.Formatter, error) {
	switch name {
	case "text", "":
		return &logrus.TextFormatter{FullTimestamp: true}, nil
	case "json":
		return &logrus.JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown log format %q", name)
	}
}
