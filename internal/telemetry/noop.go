package telemetry

import "context"

// Noop discards everything. Used when no telemetry backend is configured.
type Noop struct{}

func (Noop) DispatchOutcome(string, string) {}
func (Noop) AuthRefresh(string, bool)       {}
func (Noop) InFlight(string, int)           {}
func (Noop) CaptureError(context.Context, string, error) {}
func (Noop) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
