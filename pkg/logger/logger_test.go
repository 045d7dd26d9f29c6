package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestInit(t *testing.T) {
	log, err := Init("fulfillment-test", "debug")
	require.NoError(t, err)
	assert.True(t, log.Core().Enabled(zapcore.DebugLevel))

	log, err = Init("fulfillment-test", "warn")
	require.NoError(t, err)
	assert.False(t, log.Core().Enabled(zapcore.InfoLevel))
}

func TestInitRejectsUnknownLevel(t *testing.T) {
	_, err := Init("fulfillment-test", "chatty")
	assert.Error(t, err)
}
