package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitLevels(t *testing.T) {
	prev := Log
	t.Cleanup(func() { Log = prev })

	Init("debug", "core")
	assert.True(t, Log.Core().Enabled(zapcore.DebugLevel))

	Init("bogus", "")
	assert.False(t, Log.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, Log.Core().Enabled(zapcore.InfoLevel))
}

func TestOrGlobal(t *testing.T) {
	own := zap.NewExample()
	assert.Same(t, own, OrGlobal(own, "x"))
	assert.NotNil(t, OrGlobal(nil, "x"))
}
