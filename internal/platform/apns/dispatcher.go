// Package apns implements the APNs pushkin: HTTP/2 delivery
// to Apple's push service, with either certificate or token-based auth.
package apns

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/certificate"

	"github.com/tinywideclouds/go-push-gateway/internal/auth"
	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/notification"
	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

// certClient is the subset of apns2.Client used for mTLS auth, narrowed for
// mocking in tests.
type certClient interface {
	Push(n *apns2.Notification) (*apns2.Response, error)
}

// Dispatcher is a dispatch.Pushkin backed by APNs. Exactly one of cache
// (token auth) or cert (mTLS auth) is non-nil.
type Dispatcher struct {
	identity string
	cfg      Config

	httpClient *http.Client // used for token-auth raw HTTP/2 requests
	cache      *auth.Cache  // non-nil in token-auth mode

	cert certClient // non-nil in cert-auth mode

	limiter *dispatch.Limiter
	sink    telemetry.Sink
	logger  *slog.Logger

	// hostOverride lets tests point token-auth requests at an httptest
	// server instead of Apple's real hosts. Empty in production.
	hostOverride string
}

// NewDispatcher builds an APNs pushkin for one app_id. httpClient should come
// from internal/httpclient and already be configured for HTTP/2. authOpts is
// threaded straight through to auth.NewCache for the token-auth case, e.g.
// auth.WithStore(auth.NewRedisStore(...)) to share the provider JWT across
// gateway replicas instead of each refreshing independently.
func NewDispatcher(identity string, cfg Config, httpClient *http.Client, sink telemetry.Sink, logger *slog.Logger, authOpts ...auth.Option) (*Dispatcher, error) {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	d := &Dispatcher{
		identity:   identity,
		cfg:        cfg,
		httpClient: httpClient,
		limiter:    dispatch.NewLimiter(cfg.MaxConnections, cfg.RatePerSecond, identity, sink),
		sink:       sink,
		logger:     logger.With("component", "apns", "app_id", identity),
	}

	if cfg.tokenAuth() {
		opts := append([]auth.Option{auth.WithSink(sink)}, authOpts...)
		cache, err := newAuthCache(identity, cfg.KeyPEM, cfg.KeyID, cfg.TeamID, opts...)
		if err != nil {
			return nil, err
		}
		d.cache = cache
		return d, nil
	}

	cert, err := certificate.FromPemBytes(cfg.CertPEM, "")
	if err != nil {
		return nil, fmt.Errorf("apns: parse client certificate: %w", err)
	}
	client := apns2.NewClient(cert)
	if cfg.Platform == "sandbox" {
		client = client.Development()
	} else {
		client = client.Production()
	}
	d.cert = client
	return d, nil
}

func (d *Dispatcher) Identity() string { return d.identity }

func (d *Dispatcher) Shutdown() {}

// Dispatch builds the payload, sends it, and classifies the response.
// Token-auth mode retries once on a 403 ExpiredProviderToken after forcing a
// cache refresh.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification, device notification.Device) dispatch.Outcome {
	release, err := d.limiter.Acquire(ctx)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "limiter: " + err.Error()}
	}
	defer release()

	p := buildPayload(n, device, d.cfg.EventIDOnly)
	priority := 5
	if n.EffectivePriority() == notification.PriorityHigh {
		priority = 10
	}
	pushType := "alert"
	if d.cfg.EventIDOnly {
		pushType = "background"
	}

	if d.cert != nil {
		return d.dispatchCert(device, p, priority, pushType)
	}
	return d.dispatchToken(ctx, device, p, priority, pushType, true)
}

func (d *Dispatcher) dispatchCert(device notification.Device, p interface{ MarshalJSON() ([]byte, error) }, priority int, pushType string) dispatch.Outcome {
	notif := &apns2.Notification{
		DeviceToken: device.PushKey,
		Topic:       d.cfg.Topic,
		Payload:     p,
		Priority:    priority,
	}
	if pushType == "background" {
		notif.PushType = apns2.PushTypeBackground
	} else {
		notif.PushType = apns2.PushTypeAlert
	}

	res, err := d.cert.Push(notif)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "apns transport: " + err.Error()}
	}
	return classifyStatus(res.StatusCode, res.Reason, device.PushKey)
}

func (d *Dispatcher) dispatchToken(ctx context.Context, device notification.Device, p interface{ MarshalJSON() ([]byte, error) }, priority int, pushType string, allowRetry bool) dispatch.Outcome {
	jwt, err := d.cache.Get(ctx)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientAuth, Reason: "apns token refresh: " + err.Error()}
	}

	body, err := p.MarshalJSON()
	if err != nil {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "apns payload marshal: " + err.Error()}
	}

	host := d.hostOverride
	if host == "" {
		host = d.cfg.host()
	}
	url := fmt.Sprintf("%s/3/device/%s", host, device.PushKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "apns build request: " + err.Error()}
	}
	req.Header.Set("apns-topic", d.cfg.Topic)
	req.Header.Set("apns-priority", fmt.Sprintf("%d", priority))
	req.Header.Set("apns-push-type", pushType)
	// 0 means APNs should make one immediate delivery attempt and discard
	// the notification rather than store it for a device that's offline;
	// there's no per-notification TTL in the data model to derive a deadline from.
	req.Header.Set("apns-expiration", "0")
	req.Header.Set("authorization", "bearer "+jwt)
	req.Header.Set("content-type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "apns transport: " + err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var parsed struct {
		Reason string `json:"reason"`
	}
	_ = json.Unmarshal(respBody, &parsed)

	if resp.StatusCode == http.StatusForbidden && parsed.Reason == "ExpiredProviderToken" && allowRetry {
		d.logger.Warn("apns provider token expired mid-flight, refreshing and retrying once")
		if err := d.cache.Invalidate(); err != nil {
			return dispatch.Outcome{Class: dispatch.TransientAuth, Reason: "apns token invalidate: " + err.Error()}
		}
		return d.dispatchToken(ctx, device, p, priority, pushType, false)
	}

	return classifyStatus(resp.StatusCode, parsed.Reason, device.PushKey)
}

// classifyStatus implements APNs' response classification table (spec §4.3).
func classifyStatus(statusCode int, reason, pushKey string) dispatch.Outcome {
	switch statusCode {
	case http.StatusOK:
		return dispatch.Outcome{Class: dispatch.Accepted}
	case http.StatusGone:
		return dispatch.Outcome{Class: dispatch.Rejected, RejectedKey: pushKey}
	case http.StatusBadRequest:
		if reason == "BadDeviceToken" || reason == "Unregistered" {
			return dispatch.Outcome{Class: dispatch.Rejected, RejectedKey: pushKey}
		}
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "apns 400: " + reason}
	case http.StatusForbidden:
		return dispatch.Outcome{Class: dispatch.TransientAuth, Reason: "apns 403: " + reason}
	case http.StatusTooManyRequests, http.StatusInternalServerError, http.StatusServiceUnavailable:
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("apns %d: %s", statusCode, reason)}
	default:
		if statusCode >= 400 && statusCode < 500 {
			return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("apns %d: %s", statusCode, reason)}
		}
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("apns unexpected status %d: %s", statusCode, reason)}
	}
}
