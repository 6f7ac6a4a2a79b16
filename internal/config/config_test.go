package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := NewConfig()

	assert.Equal(t, int32(8188), cfg.HTTP.Port)
	assert.Equal(t, DefaultDatabaseURL, cfg.Database.URL)
	assert.Equal(t, 24*time.Hour, cfg.Auth.SessionLifetime)
	assert.Equal(t, 720*time.Hour, cfg.Auth.RememberLifetime)
	assert.Equal(t, 12, cfg.Auth.BcryptCost)
	assert.True(t, cfg.Auth.SecureCookies)
	assert.Equal(t, 90, cfg.Audit.RetentionDays)
}

func TestNewConfig_FromEnv(t *testing.T) {
	t.Setenv("PORT", "9000")
	t.Setenv("DATABASE_URL", "postgres://user:pw@localhost/books")
	t.Setenv("AUTH_SESSION_LIFETIME", "2h")
	t.Setenv("AUTH_SECURE_COOKIES", "false")
	t.Setenv("LOG_FORMAT", "json")

	cfg := NewConfig()

	assert.Equal(t, int32(9000), cfg.HTTP.Port)
	assert.Equal(t, "postgres://user:pw@localhost/books", cfg.Database.URL)
	assert.Equal(t, 2*time.Hour, cfg.Auth.SessionLifetime)
	assert.False(t, cfg.Auth.SecureCookies)
	assert.Equal(t, "json", cfg.Log.Format)
}
