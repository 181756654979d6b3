package config_test

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/config"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func baseConfig() *config.Config {
	return &config.Config{
		Apps: map[string]config.AppConfig{
			"com.example.ios": {Type: "apns", Topic: "com.example.ios"},
		},
		HTTPPort:          5000,
		HTTPBindAddresses: []string{"0.0.0.0"},
	}
}

func TestUpdateConfigWithEnvOverrides(t *testing.T) {
	logger := newTestLogger()

	t.Run("overrides applied", func(t *testing.T) {
		cfg := baseConfig()
		t.Setenv("PORT", "9090")
		t.Setenv("BIND_ADDRESSES", "10.0.0.1, 10.0.0.2")
		t.Setenv("PUSH_GATEWAY_PROXY", "http://proxy.example:8080")
		t.Setenv("LOG_LEVEL", "debug")

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, 9090, finalCfg.HTTPPort)
		assert.Equal(t, []string{"10.0.0.1", "10.0.0.2"}, finalCfg.HTTPBindAddresses)
		assert.Equal(t, "http://proxy.example:8080", finalCfg.ProxyURL)
		assert.Equal(t, slog.LevelDebug, finalCfg.LogLevel)
	})

	t.Run("defaults preserved when unset", func(t *testing.T) {
		cfg := baseConfig()
		cfg.HTTPPort = 0
		cfg.HTTPBindAddresses = nil

		finalCfg, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		require.NoError(t, err)

		assert.Equal(t, 5000, finalCfg.HTTPPort)
		assert.Equal(t, []string{"0.0.0.0"}, finalCfg.HTTPBindAddresses)
		assert.Equal(t, slog.LevelInfo, finalCfg.LogLevel)
	})

	t.Run("validation failure - no apps configured", func(t *testing.T) {
		cfg := &config.Config{}
		os.Unsetenv("PORT")

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "at least one app")
	})

	t.Run("validation failure - unknown pushkin type", func(t *testing.T) {
		cfg := &config.Config{
			Apps: map[string]config.AppConfig{
				"com.example.bad": {Type: "carrier-pigeon"},
			},
		}

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "not a recognized pushkin type")
	})

	t.Run("validation failure - missing type", func(t *testing.T) {
		cfg := &config.Config{
			Apps: map[string]config.AppConfig{
				"com.example.bad": {},
			},
		}

		_, err := config.UpdateConfigWithEnvOverrides(cfg, logger)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "type is required")
	})
}
