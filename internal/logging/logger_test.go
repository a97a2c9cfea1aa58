package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rguptar/motion/internal/config"
)

func TestNewLoggerConsoleOnly(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{
		Console: config.OutputConfig{Enabled: true, Level: "info", Format: "text"},
	})
	require.NoError(t, err)
	require.NotNil(t, logger)
}

func TestNewLoggerAllDisabled(t *testing.T) {
	logger, err := NewLogger(config.LoggingConfig{})
	require.NoError(t, err)
	require.NotNil(t, logger)

	// Must not panic even though nothing is written anywhere.
	logger.Info("discarded")
}

func TestNewLoggerWithFiles(t *testing.T) {
	dir := t.TempDir()
	logger, err := NewLogger(config.LoggingConfig{
		Dir:  dir,
		File: config.OutputConfig{Enabled: true, Level: "debug", Format: "json"},
	})
	require.NoError(t, err)

	logger.Info("hello")
	logger.Error("broken")
	require.NoError(t, Shutdown())

	main, err := os.ReadFile(filepath.Join(dir, "motion.log"))
	require.NoError(t, err)
	assert.Contains(t, string(main), "hello")
	assert.Contains(t, string(main), "broken")

	// The error file only carries warn and above.
	errors, err := os.ReadFile(filepath.Join(dir, "errors.log"))
	require.NoError(t, err)
	assert.NotContains(t, string(errors), "hello")
	assert.Contains(t, string(errors), "broken")
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"error", "ERROR"},
		{"bogus", "INFO"},
		{"", "INFO"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, parseLevel(tt.in).String(), "level %q", tt.in)
	}
}
