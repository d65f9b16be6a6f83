package config

import (
	"bytes"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"PORT", "ARK_API_KEY", "ARK_ACCESS_KEY", "ARK_SECRET_KEY", "Model", "ARK_TOP_P", "ARK_TIMEOUT",
		"SOULS_TURN_LIMIT", "SOULS_RESET_POLICY", "SOULS_SESSION_TTL", "SOULS_DEFAULT_PERSONA",
		"LOG_LEVEL", "LOG_FORMAT",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.False(t, cfg.AI.Enabled())
	assert.Nil(t, cfg.AI.Timeout)
	assert.Equal(t, 8, cfg.Chat.TurnLimit)
	assert.Equal(t, ResetDiscard, cfg.Chat.ResetPolicy)
	assert.Equal(t, 2*time.Hour, cfg.Chat.SessionTTL)
	assert.Equal(t, zerolog.InfoLevel, cfg.Log.Level)
	assert.False(t, cfg.Log.Console)
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "127.0.0.1:9000")
	t.Setenv("ARK_API_KEY", "key")
	t.Setenv("Model", "ep-123")
	t.Setenv("ARK_TIMEOUT", "45")
	t.Setenv("SOULS_TURN_LIMIT", "3")
	t.Setenv("SOULS_RESET_POLICY", "ANSWER")
	t.Setenv("SOULS_SESSION_TTL", "15m")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("LOG_FORMAT", "console")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:9000", cfg.Server.Addr)
	assert.True(t, cfg.AI.Enabled())
	require.NotNil(t, cfg.AI.Timeout)
	assert.Equal(t, 45*time.Second, *cfg.AI.Timeout)
	assert.Equal(t, 3, cfg.Chat.TurnLimit)
	assert.Equal(t, ResetAnswer, cfg.Chat.ResetPolicy)
	assert.Equal(t, 15*time.Minute, cfg.Chat.SessionTTL)
	assert.Equal(t, zerolog.DebugLevel, cfg.Log.Level)
	assert.True(t, cfg.Log.Console)
}

func TestAIConfigEnabledWithAccessKeys(t *testing.T) {
	cfg := AIConfig{Model: "ep", AccessKey: "ak", SecretKey: "sk"}
	assert.True(t, cfg.Enabled())

	cfg.SecretKey = ""
	assert.False(t, cfg.Enabled())
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	tests := []struct {
		key   string
		value string
	}{
		{"PORT", "80 80"},
		{"ARK_TOP_P", "high"},
		{"ARK_TIMEOUT", "soon"},
		{"SOULS_TURN_LIMIT", "0"},
		{"SOULS_TURN_LIMIT", "eight"},
		{"SOULS_RESET_POLICY", "later"},
		{"SOULS_SESSION_TTL", "-5m"},
		{"LOG_LEVEL", "loud"},
		{"LOG_FORMAT", "xml"},
	}

	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load()
			assert.Error(t, err)
		})
	}
}

func TestLogConfigNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := LogConfig{Level: zerolog.WarnLevel}.NewLogger(&buf)

	logger.Info().Msg("hidden")
	logger.Warn().Str("k", "v").Msg("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"message":"shown"`)
	assert.Contains(t, out, `"k":"v"`)
}
