// Command pushgateway boots the Push Gateway dispatch engine: it loads
// configuration, builds one pushkin per configured app_id, and serves the
// ingress HTTP contract. Process bootstrap and YAML loading are
// explicitly out of scope for the dispatch engine itself but live
// here as thin wiring, the way cmd/notificationservice/runnotificationservice.go
// wires the rest of this module together.
package main

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opentracing/opentracing-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/tinywideclouds/go-microservice-base/pkg/microservice"
	"gopkg.in/yaml.v3"

	"github.com/tinywideclouds/go-push-gateway/internal/auth"
	"github.com/tinywideclouds/go-push-gateway/internal/config"
	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/httpclient"
	"github.com/tinywideclouds/go-push-gateway/internal/ingress"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/apns"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/fcm"
	"github.com/tinywideclouds/go-push-gateway/internal/platform/web"
	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

//go:embed local.yaml
var defaultConfigFile []byte

func main() {
	logger := bootstrapLogger()

	cfg, err := loadConfig(logger)
	if err != nil {
		logger.Error("configuration failed", "err", err)
		os.Exit(1)
	}

	sink, closeSink, err := buildTelemetry(cfg, logger)
	if err != nil {
		logger.Error("telemetry setup failed", "err", err)
		os.Exit(1)
	}
	defer closeSink()

	registry, pushkins, err := buildRegistry(cfg, sink, logger)
	if err != nil {
		logger.Error("pushkin setup failed", "err", err)
		os.Exit(1)
	}

	dispatcher := dispatch.NewDispatcher(registry, sink, logger)
	handler := ingress.NewHandler(dispatcher, cfg.IngressTimeout, logger)

	addr := fmt.Sprintf("%s:%d", firstOr(cfg.HTTPBindAddresses, "0.0.0.0"), cfg.HTTPPort)
	baseServer := microservice.NewBaseServer(logger, addr)
	mux := baseServer.Mux()
	mux.Handle("POST /_matrix/push/v1/notify", handler.Recover(http.HandlerFunc(handler.Notify)))
	mux.HandleFunc("GET /health", handler.Health)
	if cfg.MetricsPrometheus.Enabled {
		mux.Handle("GET /_matrix/metrics", promhttp.Handler())
		mux.Handle("GET /metrics", promhttp.Handler())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received, draining in-flight dispatches")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		for _, pk := range pushkins {
			pk.Shutdown()
		}
		if err := baseServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("http server shutdown failed", "err", err)
		}
	}()

	baseServer.SetReady(true)
	logger.Info("push gateway listening", "addr", addr)
	if err := baseServer.Start(); err != nil {
		logger.Error("server exited with error", "err", err)
		os.Exit(1)
	}
}

func bootstrapLogger() *slog.Logger {
	var level slog.Level
	switch os.Getenv("LOG_LEVEL") {
	case "debug", "DEBUG":
		level = slog.LevelDebug
	case "warn", "WARN":
		level = slog.LevelWarn
	case "error", "ERROR":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})).
		With("service", "push-gateway")
	slog.SetDefault(logger)
	return logger
}

// loadConfig implements the two-stage load from SPEC_FULL.md's AMBIENT
// STACK section: embedded YAML, then environment overrides. Setting
// CONFIG_FILE points at a mounted YAML file instead of the built-in
// default — the apps: map is deployment-specific credential material that
// has no sensible per-field environment-variable equivalent.
func loadConfig(logger *slog.Logger) (*config.Config, error) {
	raw := defaultConfigFile
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read CONFIG_FILE %q: %w", path, err)
		}
		raw = data
	}

	var yamlCfg config.YamlConfig
	if err := yaml.Unmarshal(raw, &yamlCfg); err != nil {
		return nil, fmt.Errorf("parse config yaml: %w", err)
	}

	baseCfg := config.NewConfigFromYaml(&yamlCfg)
	return config.UpdateConfigWithEnvOverrides(baseCfg, logger)
}

// buildTelemetry assembles the Sink from the config's metrics section. Each
// backend is independently optional and composes via telemetry.Multi.
func buildTelemetry(cfg *config.Config, logger *slog.Logger) (telemetry.Sink, func(), error) {
	var sinks telemetry.Multi
	closers := []func(){}

	if cfg.MetricsPrometheus.Enabled {
		sinks = append(sinks, telemetry.NewPrometheusSink(prometheus.DefaultRegisterer))
		logger.Info("prometheus telemetry enabled")
	}
	if cfg.SentryEnabled {
		sentrySink, err := telemetry.NewSentrySink(cfg.SentryDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("sentry init: %w", err)
		}
		sinks = append(sinks, sentrySink)
		logger.Info("sentry telemetry enabled")
	}
	if cfg.TracingEnabled {
		// Jaeger tracer construction is an external collaborator:
		// opentracing.GlobalTracer() defaults to a no-op until one is wired by
		// deployment-specific bootstrap (e.g. jaegertracing/jaeger-client-go).
		sinks = append(sinks, telemetry.NewTracingSink())
		logger.Info("opentracing telemetry enabled", "service_name", cfg.TracingServiceName)
		_ = opentracing.GlobalTracer
	}

	if len(sinks) == 0 {
		return telemetry.Noop{}, func() {}, nil
	}
	return sinks, func() {
		for _, c := range closers {
			c()
		}
	}, nil
}

// buildRegistry constructs one pushkin per configured app_id and the Router that dispatches by app_id_pattern.
func buildRegistry(cfg *config.Config, sink telemetry.Sink, logger *slog.Logger) (*dispatch.Registry, []dispatch.Pushkin, error) {
	entries := make(map[string]dispatch.Pushkin, len(cfg.Apps))
	var all []dispatch.Pushkin

	var sharedRedis *redis.Client
	if addr := os.Getenv("AUTH_CACHE_REDIS_ADDR"); addr != "" {
		sharedRedis = redis.NewClient(&redis.Options{Addr: addr})
		logger.Info("auth token cache backed by redis", "addr", addr)
	}

	for appID, app := range cfg.Apps {
		pattern := app.AppIDPattern
		if pattern == "" {
			pattern = appID
		}

		client, err := httpclient.New(httpclient.Config{ProxyURL: cfg.ProxyURL})
		if err != nil {
			return nil, nil, fmt.Errorf("build http client for %s: %w", appID, err)
		}

		var authOpts []auth.Option
		if sharedRedis != nil {
			authOpts = append(authOpts, auth.WithStore(auth.NewRedisStore(context.Background(), sharedRedis, appID)))
		}

		var pk dispatch.Pushkin
		switch app.Type {
		case "apns":
			pk, err = buildAPNs(appID, app, client, sink, logger, authOpts...)
		case "gcm":
			pk, err = buildFCM(appID, app, client, sink, logger, authOpts...)
		case "webpush":
			pk, err = buildWebPush(appID, app, client, sink, logger)
		default:
			err = fmt.Errorf("unrecognized pushkin type %q", app.Type)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("apps.%s: %w", appID, err)
		}

		entries[pattern] = pk
		all = append(all, pk)
	}

	return dispatch.NewRegistry(entries), all, nil
}

func buildAPNs(appID string, app config.AppConfig, client *http.Client, sink telemetry.Sink, logger *slog.Logger, authOpts ...auth.Option) (dispatch.Pushkin, error) {
	pkCfg := apns.Config{
		Topic:          app.Topic,
		Platform:       app.Platform,
		EventIDOnly:    app.EventIDOnly,
		MaxConnections: app.MaxConnections,
		RatePerSecond:  app.RatePerSecond,
	}
	if app.CertFile != "" {
		cert, err := os.ReadFile(app.CertFile)
		if err != nil {
			return nil, fmt.Errorf("read certfile: %w", err)
		}
		pkCfg.CertPEM = cert
	} else {
		key, err := os.ReadFile(app.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("read keyfile: %w", err)
		}
		pkCfg.KeyPEM = key
		pkCfg.KeyID = app.KeyID
		pkCfg.TeamID = app.TeamID
	}
	return apns.NewDispatcher(appID, pkCfg, client, sink, logger, authOpts...)
}

func buildFCM(appID string, app config.AppConfig, client *http.Client, sink telemetry.Sink, logger *slog.Logger, authOpts ...auth.Option) (dispatch.Pushkin, error) {
	saJSON, err := os.ReadFile(app.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service_account_file: %w", err)
	}
	pkCfg := fcm.Config{
		ServiceAccountJSON: saJSON,
		ProjectID:          app.ProjectID,
		EventIDOnly:        app.EventIDOnly,
		MaxConnections:     app.MaxConnections,
		RatePerSecond:      app.RatePerSecond,
	}
	return fcm.NewDispatcher(appID, pkCfg, client, sink, logger, authOpts...)
}

func buildWebPush(appID string, app config.AppConfig, client *http.Client, sink telemetry.Sink, logger *slog.Logger) (dispatch.Pushkin, error) {
	key, err := os.ReadFile(app.VapidPrivateKeyFile)
	if err != nil {
		return nil, fmt.Errorf("read vapid_private_key: %w", err)
	}
	pkCfg := web.Config{
		VAPIDPrivateKeyPEM: key,
		VAPIDContactURI:    app.VapidContactURI,
		AllowedEndpoints:   app.AllowedEndpoints,
		EventIDOnly:        app.EventIDOnly,
		MaxConnections:     app.MaxConnections,
		RatePerSecond:      app.RatePerSecond,
	}
	return web.NewDispatcher(appID, pkCfg, client, sink, logger)
}

func firstOr(vals []string, fallback string) string {
	if len(vals) == 0 || vals[0] == "" {
		return fallback
	}
	return vals[0]
}
