// Package telemetry defines the external collaborator boundary for the
// Telemetry Sink component: the gateway calls a Sink to record counters,
// gauges, errors, and spans; the concrete export mechanism (Prometheus, Sentry,
// OpenTracing) lives behind it and is never imported by the dispatch engine
// directly.
package telemetry

import "context"

// Sink is the seam the dispatch engine calls through. Every method must be
// safe for concurrent use and must never block the caller on a slow exporter.
type Sink interface {
	// DispatchOutcome records one device dispatch result for a given pushkin.
	DispatchOutcome(pushkin string, outcome string)
	// AuthRefresh records a token/JWT refresh attempt and whether it failed.
	AuthRefresh(pushkin string, failed bool)
	// InFlight reports the current in-flight permit count for a pushkin.
	InFlight(pushkin string, count int)
	// CaptureError ships an operator-facing error (e.g. a PermanentConfig
	// classification) to an error-tracking backend.
	CaptureError(ctx context.Context, pushkin string, err error)
	// StartSpan begins a tracing span around a dispatch; the returned func
	// ends it. Implementations that don't trace return a no-op func.
	StartSpan(ctx context.Context, operation string) (context.Context, func())
}

// Multi fans every call out to all of its members, letting Prometheus,
// OpenTracing, and Sentry be enabled independently and simultaneously.
type Multi []Sink

func (m Multi) DispatchOutcome(pushkin, outcome string) {
	for _, s := range m {
		s.DispatchOutcome(pushkin, outcome)
	}
}

func (m Multi) AuthRefresh(pushkin string, failed bool) {
	for _, s := range m {
		s.AuthRefresh(pushkin, failed)
	}
}

func (m Multi) InFlight(pushkin string, count int) {
	for _, s := range m {
		s.InFlight(pushkin, count)
	}
}

func (m Multi) CaptureError(ctx context.Context, pushkin string, err error) {
	for _, s := range m {
		s.CaptureError(ctx, pushkin, err)
	}
}

func (m Multi) StartSpan(ctx context.Context, operation string) (context.Context, func()) {
	var closers []func()
	for _, s := range m {
		var closer func()
		ctx, closer = s.StartSpan(ctx, operation)
		closers = append(closers, closer)
	}
	return ctx, func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
}
