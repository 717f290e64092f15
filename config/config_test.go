package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetEnvDuration(t *testing.T) {
	t.Setenv("TEST_DURATION_GO", "15m")
	t.Setenv("TEST_DURATION_DAYS", "7d")
	t.Setenv("TEST_DURATION_BAD", "soon")

	assert.Equal(t, 15*time.Minute, getEnvDuration("TEST_DURATION_GO", time.Second))
	assert.Equal(t, 7*24*time.Hour, getEnvDuration("TEST_DURATION_DAYS", time.Second))
	assert.Equal(t, time.Second, getEnvDuration("TEST_DURATION_BAD", time.Second))
	assert.Equal(t, time.Hour, getEnvDuration("TEST_DURATION_MISSING", time.Hour))
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("ENV", "test")
	cfg := LoadConfig()

	assert.Equal(t, 8080, cfg.ServerPort)
	assert.Equal(t, 15*time.Minute, cfg.JWT.Access.TTL)
	assert.Equal(t, 7*24*time.Hour, cfg.JWT.Refresh.TTL)
	assert.Equal(t, "postgres", cfg.RefreshTokenBackend)
	assert.False(t, cfg.Redis.Enabled())
}

func TestValidateRequiresSecrets(t *testing.T) {
	t.Setenv("ENV", "test")
	cfg := LoadConfig()
	cfg.JWT.Access.Secret = ""
	cfg.JWT.Refresh.Secret = "r"
	cfg.JWT.EmailVerify.Secret = "e"
	cfg.JWT.ForgotPassword.Secret = "f"

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET_ACCESS_TOKEN")

	cfg.JWT.Access.Secret = "a"
	require.NoError(t, cfg.Validate())

	cfg.RefreshTokenBackend = "redis"
	require.Error(t, cfg.Validate())
	cfg.Redis.Addr = "localhost:6379"
	require.NoError(t, cfg.Validate())
}
