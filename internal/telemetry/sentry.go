package telemetry

import (
	"context"

	"github.com/getsentry/sentry-go"
)

// SentrySink ships PermanentConfig-class errors to Sentry so operators notice
// misconfiguration (bad topic, bad project, bad VAPID key) without having to
// tail logs for the distinctive ERROR-level text the dispatcher logs alongside it.
type SentrySink struct{}

// NewSentrySink initializes the global Sentry SDK with dsn. Call once at
// startup when metrics.sentry.enabled is true.
func NewSentrySink(dsn string) (*SentrySink, error) {
	if err := sentry.Init(sentry.ClientOptions{Dsn: dsn}); err != nil {
		return nil, err
	}
	return &SentrySink{}, nil
}

func (s *SentrySink) DispatchOutcome(string, string) {}

func (s *SentrySink) AuthRefresh(string, bool) {}

func (s *SentrySink) InFlight(string, int) {}

func (s *SentrySink) CaptureError(_ context.Context, pushkin string, err error) {
	if err == nil {
		return
	}
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("pushkin", pushkin)
		sentry.CaptureException(err)
	})
}

func (s *SentrySink) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
