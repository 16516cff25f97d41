package logging

import (
	"testing"

	"github.com/indigo-web/asynchttp/config"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNew(t *testing.T) {
	t.Run("production", func(t *testing.T) {
		logger, err := New(config.Log{Level: zapcore.WarnLevel})
		require.NoError(t, err)
		require.False(t, logger.Core().Enabled(zapcore.InfoLevel))
		require.True(t, logger.Core().Enabled(zapcore.WarnLevel))
		require.Equal(t, "asynchttp", logger.Name())
	})

	t.Run("development", func(t *testing.T) {
		logger, err := New(config.Log{Level: zapcore.DebugLevel, Development: true})
		require.NoError(t, err)
		require.True(t, logger.Core().Enabled(zapcore.DebugLevel))
	})
}
