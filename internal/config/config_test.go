package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setServerEnv(t *testing.T) {
	t.Setenv("ENV", "dev")
	t.Setenv("RESOURCE_SERVER_URL", "http://localhost:8080")
	t.Setenv("IDP_ISSUER_URL", "https://tenant.example.com")
	t.Setenv("IDP_CLIENT_ID", "cid")
	t.Setenv("IDP_CLIENT_SECRET", "csecret")
	t.Setenv("IDP_REDIRECT_URL", "http://localhost:3000/auth/callback")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")
}

func TestLoad_Defaults(t *testing.T) {
	setServerEnv(t)

	c, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":3000", c.HTTP.Addr)
	assert.Equal(t, "memory", c.Session.Store)
	assert.Equal(t, 7*24*time.Hour, c.Session.TTL)
	assert.False(t, c.Session.CookieSecure)
	assert.Equal(t, float64(5), c.RateLimit.RPS)
	assert.Equal(t, 10, c.RateLimit.Burst)
	assert.Equal(t, "info", c.Log.ConsoleLevel)
}

func TestLoad_MissingRequired(t *testing.T) {
	setServerEnv(t)
	t.Setenv("RESOURCE_SERVER_URL", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ResourceServerURL")
}

func TestLoad_ShortSecret(t *testing.T) {
	setServerEnv(t)
	t.Setenv("SESSION_SECRET", "short")

	_, err := Load()
	require.Error(t, err)
}

func TestLoad_PostgresNeedsDatabaseURL(t *testing.T) {
	setServerEnv(t)
	t.Setenv("SESSION_STORE", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	require.EqualError(t, err, "DATABASE_URL required when SESSION_STORE=postgres")
}

func TestLoad_BadNumber(t *testing.T) {
	setServerEnv(t)
	t.Setenv("RATE_LIMIT_RPS", "fast")

	_, err := Load()
	require.ErrorContains(t, err, "RATE_LIMIT_RPS")
}

func TestLoadClient(t *testing.T) {
	t.Setenv("CONTACTS_SERVER_URL", "http://proxy.local:3000")
	t.Setenv("CONTACTS_SESSION", "abc")
	t.Setenv("CONTACTS_CACHE", "memory")

	c, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "http://proxy.local:3000", c.ServerURL)
	assert.Equal(t, "abc", c.Session)
	assert.Equal(t, "memory", c.Cache)
	assert.Equal(t, 30*time.Second, c.Timeout)
	assert.Equal(t, "warn", c.Log.ConsoleLevel)
	assert.Empty(t, c.Log.File)
}
