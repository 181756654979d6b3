// Package config implements a two-stage configuration load:
// an embedded default YAML parsed into a YamlConfig DTO, mapped into a
// validated Config, then overridden by environment variables.
package config

// YamlAppConfig mirrors one entry under the YAML apps: map. Only the fields
// relevant to its Type are meaningful; unused fields for a given type are
// simply left zero.
type YamlAppConfig struct {
	Type          string   `yaml:"type"`
	AppIDPattern  string   `yaml:"app_id_pattern"`
	MaxConnections int     `yaml:"max_connections"`
	RatePerSecond float64  `yaml:"rate_per_second"`
	EventIDOnly   bool     `yaml:"event_id_only"`

	// APNs
	CertFile string `yaml:"certfile"`
	KeyFile  string `yaml:"keyfile"`
	KeyID    string `yaml:"key_id"`
	TeamID   string `yaml:"team_id"`
	Topic    string `yaml:"topic"`
	Platform string `yaml:"platform"`

	// FCM
	ServiceAccountFile string `yaml:"service_account_file"`
	ProjectID          string `yaml:"project_id"`

	// WebPush
	VapidPrivateKeyFile string   `yaml:"vapid_private_key"`
	VapidContactURI     string   `yaml:"vapid_contact_uri"`
	AllowedEndpoints    []string `yaml:"allowed_endpoints"`
}

type YamlHTTPConfig struct {
	BindAddresses []string `yaml:"bind_addresses"`
	Port          int      `yaml:"port"`
}

type YamlLogConfig struct {
	Setup map[string]interface{} `yaml:"setup"`
}

type YamlJaegerConfig struct {
	Endpoint string `yaml:"endpoint"`
}

type YamlOpenTracingConfig struct {
	Enabled     bool             `yaml:"enabled"`
	ServiceName string           `yaml:"service_name"`
	Jaeger      YamlJaegerConfig `yaml:"jaeger"`
}

type YamlPrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

type YamlSentryConfig struct {
	Enabled bool   `yaml:"enabled"`
	DSN     string `yaml:"dsn"`
}

type YamlMetricsConfig struct {
	Prometheus  YamlPrometheusConfig  `yaml:"prometheus"`
	OpenTracing YamlOpenTracingConfig `yaml:"opentracing"`
	Sentry      YamlSentryConfig      `yaml:"sentry"`
}

// YamlConfig is the structure that mirrors the raw config.yaml file.
type YamlConfig struct {
	Apps    map[string]YamlAppConfig `yaml:"apps"`
	HTTP    YamlHTTPConfig           `yaml:"http"`
	Log     YamlLogConfig            `yaml:"log"`
	Metrics YamlMetricsConfig        `yaml:"metrics"`
	Proxy   string                   `yaml:"proxy"`
}

// NewConfigFromYaml converts the YamlConfig into a clean, base Config struct.
// This is "Stage 1"; it is augmented by environment overrides in Stage 2
// (UpdateConfigWithEnvOverrides).
func NewConfigFromYaml(y *YamlConfig) *Config {
	cfg := &Config{
		Apps:                  make(map[string]AppConfig, len(y.Apps)),
		HTTPBindAddresses:     y.HTTP.BindAddresses,
		HTTPPort:              y.HTTP.Port,
		MetricsPrometheus:     PrometheusConfig(y.Metrics.Prometheus),
		TracingEnabled:        y.Metrics.OpenTracing.Enabled,
		TracingServiceName:    y.Metrics.OpenTracing.ServiceName,
		TracingJaegerEndpoint: y.Metrics.OpenTracing.Jaeger.Endpoint,
		SentryEnabled:         y.Metrics.Sentry.Enabled,
		SentryDSN:             y.Metrics.Sentry.DSN,
		ProxyURL:              y.Proxy,
		IngressTimeout:        defaultIngressTimeout,
	}

	for appID, a := range y.Apps {
		cfg.Apps[appID] = AppConfig{
			Type:                a.Type,
			AppIDPattern:        a.AppIDPattern,
			MaxConnections:      a.MaxConnections,
			RatePerSecond:       a.RatePerSecond,
			EventIDOnly:         a.EventIDOnly,
			CertFile:            a.CertFile,
			KeyFile:             a.KeyFile,
			KeyID:               a.KeyID,
			TeamID:              a.TeamID,
			Topic:               a.Topic,
			Platform:            a.Platform,
			ServiceAccountFile:  a.ServiceAccountFile,
			ProjectID:           a.ProjectID,
			VapidPrivateKeyFile: a.VapidPrivateKeyFile,
			VapidContactURI:     a.VapidContactURI,
			AllowedEndpoints:    a.AllowedEndpoints,
		}
	}

	return cfg
}
