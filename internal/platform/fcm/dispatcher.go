// Package fcm implements the FCM (GCM) pushkin: a per-token
// HTTP v1 POST authorized by an OAuth2 access token obtained through a
// service-account JWT-bearer exchange.
package fcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/tinywideclouds/go-push-gateway/internal/auth"
	"github.com/tinywideclouds/go-push-gateway/internal/dispatch"
	"github.com/tinywideclouds/go-push-gateway/internal/notification"
	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

// Dispatcher is a dispatch.Pushkin backed by FCM's HTTP v1 API.
type Dispatcher struct {
	identity   string
	cfg        Config
	httpClient *http.Client
	cache      *auth.Cache
	limiter    *dispatch.Limiter
	sink       telemetry.Sink
	logger     *slog.Logger

	sendURLOverride string // test seam
}

// NewDispatcher builds an FCM pushkin for one app_id. authOpts is threaded
// straight through to auth.NewCache, e.g. auth.WithStore(auth.NewRedisStore(...))
// to share the OAuth2 access token across gateway replicas instead of each
// refreshing independently.
func NewDispatcher(identity string, cfg Config, httpClient *http.Client, sink telemetry.Sink, logger *slog.Logger, authOpts ...auth.Option) (*Dispatcher, error) {
	if sink == nil {
		sink = telemetry.Noop{}
	}

	jwtCfg, err := google.JWTConfigFromJSON(cfg.ServiceAccountJSON, messagingScope)
	if err != nil {
		return nil, fmt.Errorf("fcm: parse service account json: %w", err)
	}

	refresh := func(ctx context.Context) (string, time.Time, error) {
		tok, err := jwtCfg.TokenSource(ctx).Token()
		if err != nil {
			return "", time.Time{}, fmt.Errorf("fcm: oauth2 exchange: %w", err)
		}
		return tok.AccessToken, tok.Expiry, nil
	}

	opts := append([]auth.Option{auth.WithSink(sink)}, authOpts...)
	cache := auth.NewCache(identity, refreshMargin, refresh, opts...)

	return &Dispatcher{
		identity:   identity,
		cfg:        cfg,
		httpClient: httpClient,
		cache:      cache,
		limiter:    dispatch.NewLimiter(cfg.MaxConnections, cfg.RatePerSecond, identity, sink),
		sink:       sink,
		logger:     logger.With("component", "fcm", "app_id", identity),
	}, nil
}

func (d *Dispatcher) Identity() string { return d.identity }

func (d *Dispatcher) Shutdown() {}

func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification, device notification.Device) dispatch.Outcome {
	release, err := d.limiter.Acquire(ctx)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "limiter: " + err.Error()}
	}
	defer release()

	return d.send(ctx, n, device, true)
}

func (d *Dispatcher) send(ctx context.Context, n *notification.Notification, device notification.Device, allowRetry bool) dispatch.Outcome {
	accessToken, err := d.cache.Get(ctx)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientAuth, Reason: "fcm token refresh: " + err.Error()}
	}

	msg := buildMessage(n, device, d.cfg.EventIDOnly)
	body, err := json.Marshal(msg)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "fcm payload marshal: " + err.Error()}
	}

	url := d.sendURLOverride
	if url == "" {
		url = d.cfg.sendURL()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return dispatch.Outcome{Class: dispatch.PermanentConfig, Reason: "fcm build request: " + err.Error()}
	}
	req.Header.Set("authorization", "bearer "+accessToken)
	req.Header.Set("content-type", "application/json")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "fcm transport: " + err.Error()}
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode == http.StatusUnauthorized && allowRetry {
		d.logger.Warn("fcm access token rejected mid-flight, refreshing and retrying once")
		if err := d.cache.Invalidate(); err != nil {
			return dispatch.Outcome{Class: dispatch.TransientAuth, Reason: "fcm token invalidate: " + err.Error()}
		}
		return d.send(ctx, n, device, false)
	}

	return classifyResponse(resp.StatusCode, respBody, device.PushKey)
}

type sendResult struct {
	Name string `json:"name"`
	// CanonicalRegistrationID is populated by FCM when the token sent no
	// longer matches the device's current registration; the caller is
	// expected to re-register with this value.
	CanonicalRegistrationID string     `json:"canonical_registration_id,omitempty"`
	Error                   *sendError `json:"error"`
}

type sendError struct {
	Status string `json:"status"`
}

// classifyResponse implements FCM's response classification table.
func classifyResponse(statusCode int, body []byte, pushKey string) dispatch.Outcome {
	switch statusCode {
	case http.StatusOK:
		var res sendResult
		if err := json.Unmarshal(body, &res); err == nil {
			if res.CanonicalRegistrationID != "" && res.CanonicalRegistrationID != pushKey {
				return dispatch.Outcome{Class: dispatch.Rejected, RejectedKey: pushKey}
			}
		}
		return dispatch.Outcome{Class: dispatch.Accepted}
	case http.StatusNotFound:
		return dispatch.Outcome{Class: dispatch.Rejected, RejectedKey: pushKey}
	case http.StatusBadRequest:
		var res sendResult
		_ = json.Unmarshal(body, &res)
		if res.Error != nil && (res.Error.Status == "UNREGISTERED" || res.Error.Status == "INVALID_ARGUMENT") {
			return dispatch.Outcome{Class: dispatch.Rejected, RejectedKey: pushKey}
		}
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "fcm 400: " + string(body)}
	case http.StatusTooManyRequests:
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: "fcm 429"}
	default:
		if statusCode >= 500 {
			return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("fcm %d", statusCode)}
		}
		return dispatch.Outcome{Class: dispatch.TransientProvider, Reason: fmt.Sprintf("fcm unexpected status %d: %s", statusCode, string(body))}
	}
}
