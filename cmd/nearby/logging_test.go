package main

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/srg/nearby/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parsedRoot(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	root := newRootCmd()
	require.NoError(t, root.ParseFlags(args))
	return root
}

func TestConfigureLogger(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LogLevel = "warn"

	tests := []struct {
		name  string
		args  []string
		level logrus.Level
	}{
		{"config level", nil, logrus.WarnLevel},
		{"flag wins", []string{"--log-level", "error"}, logrus.ErrorLevel},
		{"verbose", []string{"-V"}, logrus.DebugLevel},
		{"flag wins over verbose", []string{"-V", "--log-level", "info"}, logrus.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger, err := configureLogger(parsedRoot(t, tt.args...), cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.level, logger.GetLevel())
		})
	}
}

func TestConfigureLogger_InvalidLevel(t *testing.T) {
	_, err := configureLogger(parsedRoot(t, "--log-level", "loud"), config.DefaultConfig())
	assert.ErrorContains(t, err, "invalid log level")
}
