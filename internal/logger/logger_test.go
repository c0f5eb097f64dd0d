package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		level string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"", zapcore.WarnLevel},
		{"nonsense", zapcore.WarnLevel},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, ParseLevel(tt.level), "level=%q", tt.level)
	}
}

func TestInitWritesRotatingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "livecheck.log")
	Init(Config{Level: "info", File: path})
	defer Init(Config{})

	Info("session started", LoggerOptions{Key: "session", Data: "abc"})
	Debug("filtered out")
	Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "session started")
	assert.Contains(t, string(data), `"session":"abc"`)
	assert.NotContains(t, string(data), "filtered out")
}
