package logging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestSetLevel(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	require.NoError(t, SetLevel("debug"))
	assert.Equal(t, "debug", Level())

	require.NoError(t, SetLevel(""))
	assert.Equal(t, "debug", Level(), "empty level keeps the current one")

	err := SetLevel("loud")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid log level")
}

func TestNew(t *testing.T) {
	t.Cleanup(func() { _ = SetLevel("info") })

	logger, err := New("warn", "console")
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.ErrorLevel))

	_, err = New("info", "xml")
	require.Error(t, err)
}
