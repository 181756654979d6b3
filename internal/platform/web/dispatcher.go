// Package web implements the WebPush pushkin: RFC 8291
// (aes128gcm) encrypted payloads delivered to browser push services, signed
// with a VAPID (RFC 8292) JWT.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/SherClockHolmes/webpush-go"

	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/notification"
	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

const vapidTTLSeconds = 15

// Dispatcher is a dispatch.Pushkin backed by webpush-go, which performs the
// RFC 8291 encryption and VAPID signing internally.
type Dispatcher struct {
	identity        string
	cfg             Config
	httpClient      *http.Client
	vapidPrivateKey string
	vapidPublicKey  string
	limiter         *dispatch.Limiter
	sink            telemetry.Sink
	logger          *slog.Logger
}

// NewDispatcher builds a WebPush pushkin for one app_id.
func NewDispatcher(identity string, cfg Config, httpClient *http.Client, sink telemetry.Sink, logger *slog.Logger) (*Dispatcher, error) {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	priv, pub, err := vapidKeys(cfg.VAPIDPrivateKeyPEM)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{
		identity:        identity,
		cfg:             cfg,
		httpClient:      httpClient,
		vapidPrivateKey: priv,
		vapidPublicKey:  pub,
		limiter:         dispatch.NewLimiter(cfg.MaxConnections, cfg.RatePerSecond, identity, sink),
		sink:            sink,
		logger:          logger.With("component", "webpush", "app_id", identity),
	}, nil
}

func (d *Dispatcher) Identity() string { return d.identity }

func (d *Dispatcher) Shutdown() {}

// Dispatch sends one push. device.PushKey is the subscription endpoint
// URL; device.Data carries the "auth" and "p256dh" base64url key material.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification, device notification.Device) dispatch.Outcome {
	endpoint := device.PushKey
	if !d.cfg.endpointAllowed(endpoint) {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "webpush: endpoint not in allowed_endpoints"}
	}

	auth, _ := device.Data["auth"].(string)
	p256dh, _ := device.Data["p256dh"].(string)
	if auth == "" || p256dh == "" {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "webpush: device missing auth/p256dh keys"}
	}

	release, err := d.limiter.Acquire(ctx)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "limiter: " + err.Error()}
	}
	defer release()

	body, err := buildEnvelope(n, d.cfg.EventIDOnly)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "webpush payload marshal: " + err.Error()}
	}

	sub := &webpush.Subscription{
		Endpoint: endpoint,
		Keys: webpush.Keys{
			Auth:   auth,
			P256dh: p256dh,
		},
	}

	resp, err := webpush.SendNotification(body, sub, &webpush.Options{
		Subscriber:      d.cfg.VAPIDContactURI,
		VAPIDPublicKey:  d.vapidPublicKey,
		VAPIDPrivateKey: d.vapidPrivateKey,
		TTL:             vapidTTLSeconds,
		HTTPClient:      d.httpClient,
	})
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "webpush transport: " + err.Error()}
	}
	defer resp.Body.Close()

	return classifyStatus(resp.StatusCode, endpoint, d.logger)
}

// classifyStatus implements Web Push's response classification table.
func classifyStatus(statusCode int, endpoint string, logger *slog.Logger) dispatch.Outcome {
	switch statusCode {
	case http.StatusOK, http.StatusCreated:
		return dispatch.Outcome{Class: dispatch.Accepted}
	case http.StatusNotFound, http.StatusGone:
		return dispatch.Outcome{Class: dispatch.Rejected, RejectedKey: endpoint}
	case http.StatusRequestEntityTooLarge:
		logger.Warn("webpush payload too large", "endpoint", endpoint)
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "webpush 413: payload too large"}
	case http.StatusTooManyRequests:
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "webpush 429"}
	default:
		if statusCode >= 500 {
			return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("webpush %d", statusCode)}
		}
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("webpush unexpected status %d", statusCode)}
	}
}
