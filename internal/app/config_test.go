package app

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("APP_ENV", "")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.AppAddr)
	assert.Equal(t, 30*time.Second, cfg.AppRequestTimeout)
	assert.Equal(t, "X-Authenticated-User", cfg.IdentityHeader)
	assert.Equal(t, "permissions.bump", cfg.PermissionsChannel)
	assert.Equal(t, "*/15 * * * *", cfg.PermissionsRefreshCron)
	assert.Equal(t, ":9091", cfg.WorkerMetricsAddr)
	assert.False(t, cfg.IsProduction())
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("APP_ENV", "production")
	t.Setenv("IDENTITY_HEADER", "X-User-Id")
	t.Setenv("RATE_LIMIT_PER_MINUTE", "30")
	t.Setenv("APP_REQUEST_TIMEOUT", "5s")

	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "X-User-Id", cfg.IdentityHeader)
	assert.Equal(t, 30, cfg.RateLimitPerMinute)
	assert.Equal(t, 5*time.Second, cfg.AppRequestTimeout)
}

func TestLoadConfigRejectsInvalidRateLimit(t *testing.T) {
	t.Setenv("RATE_LIMIT_PER_MINUTE", "0")
	_, err := LoadConfig()
	assert.Error(t, err)
}
