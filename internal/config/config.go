package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// defaultIngressTimeout is the overall ingress deadline applied when no
// explicit timeout is configured.
const defaultIngressTimeout = 30 * time.Second

// AppConfig is the validated per-app_id pushkin configuration. Only the fields relevant to Type are
// read by the corresponding platform package.
type AppConfig struct {
	Type           string
	AppIDPattern   string
	MaxConnections int
	RatePerSecond  float64
	EventIDOnly    bool

	CertFile string
	KeyFile  string
	KeyID    string
	TeamID   string
	Topic    string
	Platform string

	ServiceAccountFile string
	ProjectID          string

	VapidPrivateKeyFile string
	VapidContactURI     string
	AllowedEndpoints    []string
}

// PrometheusConfig mirrors YamlPrometheusConfig; kept as a distinct type so
// callers outside this package never import the yaml-tagged DTO.
type PrometheusConfig struct {
	Enabled bool
	Address string
	Port    int
}

// Config is the single, authoritative configuration for the Push Gateway,
// assembled in two stages: YAML defaults, then environment overrides.
type Config struct {
	Apps map[string]AppConfig

	HTTPBindAddresses []string
	HTTPPort          int

	LogLevel slog.Level

	MetricsPrometheus     PrometheusConfig
	TracingEnabled        bool
	TracingServiceName    string
	TracingJaegerEndpoint string
	SentryEnabled         bool
	SentryDSN             string

	ProxyURL string

	IngressTimeout time.Duration
}

// UpdateConfigWithEnvOverrides takes the base configuration (created from
// YAML) and completes it by applying environment variables and final
// validation, the same two-stage shape used by
// notificationservice/config package.
func UpdateConfigWithEnvOverrides(cfg *Config, logger *slog.Logger) (*Config, error) {
	logger.Debug("applying environment variable overrides")

	if val := os.Getenv("PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return nil, fmt.Errorf("config: invalid PORT env var %q: %w", val, err)
		}
		logger.Debug("overriding config value", "key", "PORT", "source", "env")
		cfg.HTTPPort = port
	}
	if val := os.Getenv("BIND_ADDRESSES"); val != "" {
		logger.Debug("overriding config value", "key", "BIND_ADDRESSES", "source", "env")
		cfg.HTTPBindAddresses = splitCSV(val)
	}
	if val := os.Getenv("PUSH_GATEWAY_PROXY"); val != "" {
		logger.Debug("overriding config value", "key", "PUSH_GATEWAY_PROXY", "source", "env")
		cfg.ProxyURL = val
	}
	if val := os.Getenv("SENTRY_DSN"); val != "" {
		logger.Debug("overriding config value", "key", "SENTRY_DSN", "source", "env")
		cfg.SentryDSN = val
		cfg.SentryEnabled = true
	}
	cfg.LogLevel = parseLogLevel(os.Getenv("LOG_LEVEL"))

	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = 5000
	}
	if len(cfg.HTTPBindAddresses) == 0 {
		cfg.HTTPBindAddresses = []string{"0.0.0.0"}
	}
	if cfg.IngressTimeout <= 0 {
		cfg.IngressTimeout = defaultIngressTimeout
	}
	if len(cfg.Apps) == 0 {
		return nil, fmt.Errorf("config: at least one app must be configured under apps:")
	}
	for appID, app := range cfg.Apps {
		if app.Type == "" {
			return nil, fmt.Errorf("config: apps.%s.type is required", appID)
		}
		switch app.Type {
		case "apns", "gcm", "webpush":
		default:
			return nil, fmt.Errorf("config: apps.%s.type %q is not a recognized pushkin type", appID, app.Type)
		}
	}

	logger.Debug("configuration finalized and validated successfully")
	return cfg, nil
}

func parseLogLevel(val string) slog.Level {
	switch strings.ToLower(val) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func splitCSV(val string) []string {
	raw := strings.Split(val, ",")
	out := make([]string, 0, len(raw))
	for _, v := range raw {
		if trimmed := strings.TrimSpace(v); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
