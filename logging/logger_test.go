// ABOUTME: Tests for logger construction
// ABOUTME: Verifies level parsing, env override and file output
package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewRejectsBadLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STUDYSYNC_LOG_LEVEL", "")

	_, err := New(Options{Level: "loud"})
	assert.Error(t, err)
}

func TestNewEnvOverride(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STUDYSYNC_LOG_LEVEL", "debug")

	logger, err := New(Options{Level: "error", Quiet: true, File: filepath.Join(t.TempDir(), "x.log")})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewWritesFile(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STUDYSYNC_LOG_LEVEL", "")
	path := filepath.Join(t.TempDir(), "logs", "studysync.log")

	logger, err := New(Options{Level: "info", File: path, Quiet: true})
	require.NoError(t, err)
	logger.Info("push complete")
	_ = logger.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"msg":"push complete"`)
	assert.Contains(t, string(data), `"timestamp"`)
}

func TestQuietWithoutFileIsNop(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("STUDYSYNC_LOG_LEVEL", "")

	logger, err := New(Options{Quiet: true})
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.ErrorLevel))
	assert.NotNil(t, OrNop(nil))
}
