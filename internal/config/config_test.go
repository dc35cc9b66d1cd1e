package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFrom_Defaults(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 5339, cfg.App.HTTPPort)
	assert.Equal(t, 0.5, cfg.Analysis.DefaultThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Analysis.ActivityInterval())
	assert.Equal(t, 200, cfg.Generator.WalletCount)
	assert.Equal(t, 10*time.Second, cfg.NATS.ConnectTimeout)
	assert.Equal(t, time.Minute, cfg.PriceFeed.Interval)
	assert.False(t, cfg.Database.Enabled)
	assert.NoError(t, cfg.Validate())
}

func TestLoadFrom_EnvironmentOverrides(t *testing.T) {
	t.Setenv("ANALYSIS_DEFAULT_THRESHOLD", "0.75")
	t.Setenv("PORT", "8088")
	t.Setenv("NATS_ENABLED", "true")
	t.Setenv("DATABASE_URL", "postgres://u:p@localhost:5432/x")

	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	assert.Equal(t, 0.75, cfg.Analysis.DefaultThreshold)
	assert.Equal(t, 8088, cfg.App.HTTPPort)
	assert.True(t, cfg.NATS.Enabled)
	assert.Equal(t, "postgres://u:p@localhost:5432/x", cfg.Database.URL)
}

func TestValidate_CollectsEveryProblem(t *testing.T) {
	cfg, err := LoadFrom(viper.New())
	require.NoError(t, err)

	cfg.App.HTTPPort = 0
	cfg.Analysis.DefaultThreshold = 1.5
	cfg.Database.Enabled = true
	cfg.Database.URL = ""

	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "http_port")
	assert.Contains(t, err.Error(), "default_threshold")
	assert.Contains(t, err.Error(), "database.url")
}
