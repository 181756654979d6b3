package dispatch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/tinywideclouds/go-push-gateway/internal/notification"
	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

// TransientError is returned by Dispatch when at least one device dispatch
// yielded a transient outcome. By design, the whole ingress call
// fails in that case — there is no per-device retry token on the wire, so the
// caller must retry the full batch.
type TransientError struct {
	// Reasons is a short, deduplicated set of operator-facing causes, logged
	// by the ingress handler. Never sent on the wire.
	Reasons []string
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient dispatch failure (%d distinct reasons): %v", len(e.Reasons), e.Reasons)
}

// Dispatcher is the ingress-facing orchestration engine. It
// resolves each device's pushkin via the Registry, fans dispatch out with one
// goroutine per device bounded by each pushkin's own Limiter, and collates
// the outcomes into the wire reply.
type Dispatcher struct {
	registry *Registry
	sink     telemetry.Sink
	logger   *slog.Logger
}

func NewDispatcher(registry *Registry, sink telemetry.Sink, logger *slog.Logger) *Dispatcher {
	if sink == nil {
		sink = telemetry.Noop{}
	}
	return &Dispatcher{
		registry: registry,
		sink:     sink,
		logger:   logger.With("component", "dispatcher"),
	}
}

// Dispatch fans a notification out across its devices. ctx should already
// carry the overall ingress timeout; cancelling it cancels every
// still-pending child dispatch.
func (d *Dispatcher) Dispatch(ctx context.Context, n *notification.Notification) ([]string, error) {
	type result struct {
		device  notification.Device
		outcome Outcome
	}

	results := make([]result, len(n.Devices))
	g, gctx := errgroup.WithContext(ctx)

	for i, device := range n.Devices {
		i, device := i, device
		pk := d.registry.Resolve(device.AppID)
		if pk == nil {
			// Unknown app_id: silently ignored step 2.
			d.logger.Debug("ignoring device with unrouted app_id", "app_id", device.AppID)
			continue
		}

		g.Go(func() error {
			spanCtx, end := d.sink.StartSpan(gctx, "pushkin.dispatch")
			defer end()

			outcome := pk.Dispatch(spanCtx, n, device)
			d.sink.DispatchOutcome(pk.Identity(), outcome.Class.String())

			if outcome.Class == PermanentConfig {
				d.sink.CaptureError(spanCtx, pk.Identity(), fmt.Errorf("%s", outcome.Reason))
				d.logger.Error("pushkin misconfiguration suspected",
					"pushkin", pk.Identity(), "app_id", device.AppID, "reason", outcome.Reason)
			}

			results[i] = result{device: device, outcome: outcome}
			return nil
		})
	}

	// Every child goroutine above returns nil unconditionally — outcomes are
	// values, never errors — so g.Wait itself never fails. Cancellation or the
	// overall ingress timeout is read from ctx instead, so it fails the call
	// even when a pushkin did not observe it.
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, &TransientError{Reasons: []string{err.Error()}}
	}

	var rejected []string
	var reasons []string
	seenReason := make(map[string]bool)

	for _, r := range results {
		switch r.outcome.Class {
		case Accepted:
			// nothing to report
		case Rejected:
			key := r.outcome.RejectedKey
			if key == "" {
				key = r.device.PushKey
			}
			rejected = append(rejected, key)
		case TransientProvider, TransientAuth, PermanentConfig:
			reason := r.outcome.Reason
			if reason == "" {
				reason = r.outcome.Class.String()
			}
			if !seenReason[reason] {
				seenReason[reason] = true
				reasons = append(reasons, reason)
			}
		}
	}

	if len(reasons) > 0 {
		return nil, &TransientError{Reasons: reasons}
	}

	if rejected == nil {
		rejected = []string{}
	}
	return rejected, nil
}
