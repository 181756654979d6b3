package config_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/config"
)

func TestNewConfigFromYaml(t *testing.T) {
	t.Run("maps all fields correctly", func(t *testing.T) {
		y := &config.YamlConfig{
			Apps: map[string]config.YamlAppConfig{
				"com.example.ios": {
					Type:           "apns",
					Topic:          "com.example.ios",
					Platform:       "production",
					MaxConnections: 10,
				},
				"com.example.android": {
					Type:               "gcm",
					ProjectID:          "proj-1",
					ServiceAccountFile: "/etc/pushgateway/fcm-sa.json",
				},
			},
			HTTP: config.YamlHTTPConfig{
				BindAddresses: []string{"127.0.0.1"},
				Port:          6000,
			},
			Metrics: config.YamlMetricsConfig{
				Prometheus: config.YamlPrometheusConfig{Enabled: true, Address: "0.0.0.0", Port: 9090},
				Sentry:     config.YamlSentryConfig{Enabled: true, DSN: "https://example/1"},
			},
			Proxy: "http://proxy.example:3128",
		}

		cfg := config.NewConfigFromYaml(y)

		require.Len(t, cfg.Apps, 2)
		assert.Equal(t, "apns", cfg.Apps["com.example.ios"].Type)
		assert.Equal(t, 10, cfg.Apps["com.example.ios"].MaxConnections)
		assert.Equal(t, "proj-1", cfg.Apps["com.example.android"].ProjectID)
		assert.Equal(t, []string{"127.0.0.1"}, cfg.HTTPBindAddresses)
		assert.Equal(t, 6000, cfg.HTTPPort)
		assert.True(t, cfg.MetricsPrometheus.Enabled)
		assert.Equal(t, 9090, cfg.MetricsPrometheus.Port)
		assert.True(t, cfg.SentryEnabled)
		assert.Equal(t, "http://proxy.example:3128", cfg.ProxyURL)
	})

	t.Run("handles missing optional fields gracefully", func(t *testing.T) {
		y := &config.YamlConfig{
			Apps: map[string]config.YamlAppConfig{
				"com.example.web": {Type: "webpush"},
			},
		}

		cfg := config.NewConfigFromYaml(y)

		assert.Empty(t, cfg.HTTPBindAddresses)
		assert.Equal(t, 0, cfg.HTTPPort)
		assert.False(t, cfg.MetricsPrometheus.Enabled)
	})
}
