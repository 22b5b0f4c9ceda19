package logging_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tandem-rtc/tandem/pkg/logging"
)

func TestConfigure(t *testing.T) {
	cases := []struct {
		config    logging.Config
		level     logrus.Level
		formatter logrus.Formatter
	}{
		{logging.Config{}, logrus.InfoLevel, &logrus.TextFormatter{}},
		{logging.Config{Level: "debug", Format: "json"}, logrus.DebugLevel, &logrus.JSONFormatter{}},
		{logging.Config{Level: "warn", Format: "text"}, logrus.WarnLevel, &logrus.TextFormatter{}},
		{logging.Config{Level: "error"}, logrus.ErrorLevel, &logrus.TextFormatter{}},
	}

	for _, c := range cases {
		logger := logrus.New()
		require.NoError(t, logging.Configure(logger, c.config))
		assert.Equal(t, c.level, logger.GetLevel())
		assert.IsType(t, c.formatter, logger.Formatter)
	}
}

func TestInvalidConfig(t *testing.T) {
	assert.Error(t, logging.Config{Level: "verbose"}.Validate())
	assert.Error(t, logging.Config{Format: "xml"}.Validate())
	assert.NoError(t, logging.DefaultConfig().Validate())

	logger := logrus.New()
	assert.Error(t, logging.Configure(logger, logging.Config{Level: "loud"}))
	assert.Equal(t, logrus.InfoLevel, logger.GetLevel())
}
