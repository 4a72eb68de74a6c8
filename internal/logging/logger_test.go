package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"shudh/internal/config"
)

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Log.Level = "info"
	cfg.Log.Format = "console"
	cfg.Log.MaxSize = 1
	cfg.Log.MaxBackups = 1
	cfg.Log.MaxAge = 1
	return cfg
}

func TestNew_WritesToRotatingFile(t *testing.T) {
	cfg := testConfig()
	cfg.Log.FilePath = filepath.Join(t.TempDir(), "logs", "shudh.log")

	logger, cleanup, err := New(cfg)
	require.NoError(t, err)

	logger.Info("bootstrap step finished", zap.String("step", "schema"))
	cleanup()

	data, err := os.ReadFile(cfg.Log.FilePath)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(data), `"step":"schema"`), "log file: %s", data)
}

func TestNew_RejectsBadLevelAndFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Log.Level = "chatty"
	_, _, err := New(cfg)
	assert.Error(t, err)

	cfg = testConfig()
	cfg.Log.Format = "xml"
	_, _, err = New(cfg)
	assert.Error(t, err)
}

func TestGormLogger_Levels(t *testing.T) {
	for _, level := range []string{"silent", "error", "warn", "info", ""} {
		l, err := GormLogger(zap.NewNop(), level)
		require.NoError(t, err, level)
		assert.NotNil(t, l)
	}

	_, err := GormLogger(zap.NewNop(), "trace")
	assert.Error(t, err)
}
