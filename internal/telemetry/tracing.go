package telemetry

import (
	"context"

	"github.com/opentracing/opentracing-go"
)

// TracingSink wraps each dispatch in an OpenTracing span, the way the
// metrics.opentracing config section expects. It assumes opentracing.SetGlobalTracer
// has already been configured (Jaeger or otherwise) by process bootstrap.
type TracingSink struct{}

func NewTracingSink() *TracingSink { return &TracingSink{} }

func (t *TracingSink) DispatchOutcome(string, string) {}

func (t *TracingSink) AuthRefresh(string, bool) {}

func (t *TracingSink) InFlight(string, int) {}

func (t *TracingSink) CaptureError(context.Context, string, error) {}

func (t *TracingSink) StartSpan(ctx context.Context, operation string) (context.Context, func()) {
	span, spanCtx := opentracing.StartSpanFromContext(ctx, operation)
	return spanCtx, span.Finish
}
