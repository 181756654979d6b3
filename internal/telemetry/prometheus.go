package telemetry

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusSink implements Sink with the minimum counters/gauges the
// metrics contract names: dispatches by pushkin x outcome, token refresh
// attempts/failures, in-flight permits.
type PrometheusSink struct {
	dispatches  *prometheus.CounterVec
	authRefresh *prometheus.CounterVec
	inFlight    *prometheus.GaugeVec
}

// NewPrometheusSink registers its collectors against reg. Pass
// prometheus.DefaultRegisterer for the process-wide default registry.
func NewPrometheusSink(reg prometheus.Registerer) *PrometheusSink {
	factory := promauto.With(reg)
	return &PrometheusSink{
		dispatches: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushgateway",
			Name:      "dispatches_total",
			Help:      "Per-device dispatch attempts by pushkin and outcome.",
		}, []string{"pushkin", "outcome"}),
		authRefresh: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pushgateway",
			Name:      "auth_refresh_total",
			Help:      "Auth token/JWT refresh attempts by pushkin, split by result.",
		}, []string{"pushkin", "result"}),
		inFlight: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "pushgateway",
			Name:      "inflight_permits",
			Help:      "Concurrency-limiter permits currently checked out, by pushkin.",
		}, []string{"pushkin"}),
	}
}

func (p *PrometheusSink) DispatchOutcome(pushkin, outcome string) {
	p.dispatches.WithLabelValues(pushkin, outcome).Inc()
}

func (p *PrometheusSink) AuthRefresh(pushkin string, failed bool) {
	result := "ok"
	if failed {
		result = "failed"
	}
	p.authRefresh.WithLabelValues(pushkin, result).Inc()
}

func (p *PrometheusSink) InFlight(pushkin string, count int) {
	p.inFlight.WithLabelValues(pushkin).Set(float64(count))
}

func (p *PrometheusSink) CaptureError(context.Context, string, error) {}

func (p *PrometheusSink) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}
