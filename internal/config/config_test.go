package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("LOCKOUT_THRESHOLD", "")
	t.Setenv("STORE_TIMEOUT_MS", "")
	t.Setenv("LOGIN_RATE_PER_SECOND", "")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Lockout.Threshold)
	assert.Equal(t, 2*time.Second, cfg.Lockout.StoreTimeout())
	assert.Equal(t, "account_recovery", cfg.AMQP.Exchange)
	assert.InDelta(t, 5.0, cfg.RateLimit.LoginPerSecond, 0.0001)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("LOCKOUT_THRESHOLD", "5")
	t.Setenv("STORE_TIMEOUT_MS", "250")
	t.Setenv("ACCOUNT_LOCK_TTL_SECONDS", "3")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("APP_HOST", "127.0.0.1")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.Lockout.Threshold)
	assert.Equal(t, 250*time.Millisecond, cfg.Lockout.StoreTimeout())
	assert.Equal(t, 3*time.Second, cfg.Lockout.AccountLockTTL())
	assert.Equal(t, "127.0.0.1:9090", cfg.App.Addr())
}

func TestLoad_RejectsBadThreshold(t *testing.T) {
	t.Setenv("LOCKOUT_THRESHOLD", "0")

	_, err := Load()
	require.Error(t, err)
}
