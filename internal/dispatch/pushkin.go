// Package dispatch implements the provider-agnostic dispatch engine: the
// Pushkin abstraction, the app_id router, the concurrency limiter, and the
// Dispatcher that fans a notification out across devices and collates the
// per-device outcomes into the ingress reply.
package dispatch

import (
	"context"

	"github.com/tinywideclouds/go-push-gateway/internal/notification"
)

// Pushkin is the capability set every provider-specific worker implements:
// dispatch one device, and shut down cleanly. Identity() names the instance
// for metrics/logging. This is a tagged interface, not dynamic dispatch — the
// concrete apns/fcm/web structs are the only implementations.
type Pushkin interface {
	// Dispatch sends n to one device and classifies the provider's response.
	// It acquires its own concurrency permit before any outbound call and
	// releases it on every exit path, including ctx cancellation.
	Dispatch(ctx context.Context, n *notification.Notification, device notification.Device) Outcome
	// Identity names this pushkin instance for metrics and logs.
	Identity() string
	// Shutdown is idempotent. The apns, fcm and web implementations do
	// nothing on Shutdown: they do not close their HTTP connections and do
	// not cancel in-flight dispatches.
	Shutdown()
}
