package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 6, cfg.OTP.Length)
	assert.Equal(t, 10*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 5, cfg.OTP.MaxAttempts)
	assert.Equal(t, 2*time.Minute, cfg.Locations.CacheTTL)
	assert.False(t, cfg.Mail.Enabled())
	assert.True(t, cfg.Database.AutoMigrate)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OTP_TTL", "5m")
	t.Setenv("OTP_MAX_ATTEMPTS", "3")
	t.Setenv("SMTP_HOST", "smtp.example.com")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("JWT_EXPIRATION", "not-a-duration")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5*time.Minute, cfg.OTP.TTL)
	assert.Equal(t, 3, cfg.OTP.MaxAttempts)
	assert.True(t, cfg.Mail.Enabled())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 24*time.Hour, cfg.JWT.Expiration)
}
