package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_Defaults(t *testing.T) {
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.App.Port)
	assert.Equal(t, "storefront:", cfg.Redis.KeyPrefix)
	assert.Equal(t, 1, cfg.Webhook.RetryAttempts)
	assert.Equal(t, time.Second, cfg.Webhook.RetryDelay)
	assert.Equal(t, "redis", cfg.Ledger.Driver)
	assert.Equal(t, uint32(3), cfg.Remote.BreakerFailures)
	assert.Empty(t, cfg.Remote.BaseURL)
	assert.False(t, cfg.IsProduction())
}

func TestFromViper_EnvOverride(t *testing.T) {
	t.Setenv("STOREFRONT_REDIS_ADDR", "redis:6380")
	t.Setenv("STOREFRONT_WEBHOOK_RETRY_ATTEMPTS", "0")
	t.Setenv("STOREFRONT_LEDGER_DRIVER", "sqlite")

	cfg, err := fromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "redis:6380", cfg.Redis.Addr)
	assert.Equal(t, 0, cfg.Webhook.RetryAttempts)
	assert.Equal(t, "sqlite", cfg.Ledger.Driver)
}

func TestFromViper_InvalidLedgerDriver(t *testing.T) {
	t.Setenv("STOREFRONT_LEDGER_DRIVER", "mongo")

	_, err := fromViper(viper.New())
	require.ErrorContains(t, err, "unknown ledger.driver")
}

func TestFromViper_ProductionNeedsSessionKey(t *testing.T) {
	t.Setenv("STOREFRONT_APP_ENV", "production")

	_, err := fromViper(viper.New())
	require.ErrorContains(t, err, "session.key")

	t.Setenv("STOREFRONT_SESSION_KEY", "0123456789abcdef0123456789abcdef")
	cfg, err := fromViper(viper.New())
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}
