package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]LogLevel{
		"debug":   LogLevelDebug,
		"INFO":    LogLevelInfo,
		"":        LogLevelInfo,
		" warn ":  LogLevelWarn,
		"warning": LogLevelWarn,
		"error":   LogLevelError,
		"off":     LogLevelNone,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.Error(t, err)
}

func TestDefaultLogger(t *testing.T) {
	prev := GetDefaultLogger()
	defer SetDefaultLogger(prev)
	assert.IsType(t, &GologLogger{}, prev)

	var buf bytes.Buffer
	SetDefaultLogger(NewCLILogger(&buf, LogLevelWarn))
	GetDefaultLogger().Info("hidden")
	GetDefaultLogger().Warn("node %s failed", "generate_voice")
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "node generate_voice failed")

	SetDefaultLogger(&NoOpLogger{})
	buf.Reset()
	GetDefaultLogger().Error("silent")
	assert.Empty(t, buf.String())
	assert.Equal(t, "WARN", LogLevelWarn.String())
}
