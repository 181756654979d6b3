package dispatch

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/notification"
	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

type scriptedPushkin struct {
	identity string
	outcomes map[string]Outcome
	delay    time.Duration

	mu    sync.Mutex
	calls []string
}

func (p *scriptedPushkin) Identity() string { return p.identity }
func (p *scriptedPushkin) Shutdown()        {}

func (p *scriptedPushkin) Dispatch(ctx context.Context, _ *notification.Notification, device notification.Device) Outcome {
	p.mu.Lock()
	p.calls = append(p.calls, device.PushKey)
	p.mu.Unlock()

	if p.delay > 0 {
		select {
		case <-time.After(p.delay):
		case <-ctx.Done():
			return Outcome{Class: TransientProvider, Reason: "cancelled"}
		}
	}
	if o, ok := p.outcomes[device.PushKey]; ok {
		return o
	}
	return Outcome{Class: Accepted}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func devices(pairs ...[2]string) []notification.Device {
	out := make([]notification.Device, 0, len(pairs))
	for _, p := range pairs {
		out = append(out, notification.Device{AppID: p[0], PushKey: p[1]})
	}
	return out
}

// TestDispatch_OutcomeUnionCoversEveryDevice covers the invariant that the
// union of accepted/rejected/ignored/transient outcomes equals the input
// device set: an unrouted device is silently dropped, a routed device always
// contributes to either rejected or the absence thereof.
func TestDispatch_OutcomeUnionCoversEveryDevice(t *testing.T) {
	apns := &scriptedPushkin{identity: "apns", outcomes: map[string]Outcome{
		"DEAD": {Class: Rejected, RejectedKey: "DEAD"},
	}}
	registry := NewRegistry(map[string]Pushkin{"com.example.a": apns})
	d := NewDispatcher(registry, telemetry.Noop{}, testLogger())

	n := &notification.Notification{Devices: devices(
		[2]string{"com.example.a", "OK"},
		[2]string{"com.example.a", "DEAD"},
		[2]string{"com.unconfigured", "IGNORED"},
	)}

	rejected, err := d.Dispatch(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, []string{"DEAD"}, rejected)

	apns.mu.Lock()
	defer apns.mu.Unlock()
	assert.ElementsMatch(t, []string{"OK", "DEAD"}, apns.calls)
}

// TestDispatch_TransientFailsWholeBatch covers the rule that any transient
// outcome fails the entire ingress call, with no rejected list at all.
func TestDispatch_TransientFailsWholeBatch(t *testing.T) {
	apns := &scriptedPushkin{identity: "apns"}
	fcm := &scriptedPushkin{identity: "fcm", outcomes: map[string]Outcome{
		"AND": {Class: TransientProvider, Reason: "fcm 503"},
	}}
	registry := NewRegistry(map[string]Pushkin{
		"com.example.ios":     apns,
		"com.example.android": fcm,
	})
	d := NewDispatcher(registry, telemetry.Noop{}, testLogger())

	n := &notification.Notification{Devices: devices(
		[2]string{"com.example.ios", "IOS"},
		[2]string{"com.example.android", "AND"},
	)}

	rejected, err := d.Dispatch(context.Background(), n)
	assert.Nil(t, rejected)
	var transientErr *TransientError
	require.ErrorAs(t, err, &transientErr)
}

func TestDispatch_PermanentConfigSurfacesAsTransient(t *testing.T) {
	web := &scriptedPushkin{identity: "web", outcomes: map[string]Outcome{
		"BAD": {Class: PermanentConfig, Reason: "bad vapid key"},
	}}
	registry := NewRegistry(map[string]Pushkin{"com.example.web": web})
	d := NewDispatcher(registry, telemetry.Noop{}, testLogger())

	n := &notification.Notification{Devices: devices([2]string{"com.example.web", "BAD"})}

	rejected, err := d.Dispatch(context.Background(), n)
	assert.Nil(t, rejected)
	var transientErr *TransientError
	require.ErrorAs(t, err, &transientErr)
}

// TestDispatch_TimeoutCancelsPendingDispatches covers overall-ingress-timeout
// cancellation: a slow pushkin observes ctx cancellation instead of hanging
// the whole call indefinitely.
func TestDispatch_TimeoutCancelsPendingDispatches(t *testing.T) {
	slow := &scriptedPushkin{identity: "slow", delay: time.Second}
	registry := NewRegistry(map[string]Pushkin{"com.example.a": slow})
	d := NewDispatcher(registry, telemetry.Noop{}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	n := &notification.Notification{Devices: devices([2]string{"com.example.a", "AA"})}

	start := time.Now()
	_, err := d.Dispatch(ctx, n)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Less(t, elapsed, 500*time.Millisecond)
}

func TestDispatch_AllAcceptedYieldsEmptyRejectedList(t *testing.T) {
	apns := &scriptedPushkin{identity: "apns"}
	registry := NewRegistry(map[string]Pushkin{"com.example.a": apns})
	d := NewDispatcher(registry, telemetry.Noop{}, testLogger())

	n := &notification.Notification{Devices: devices([2]string{"com.example.a", "AA"})}

	rejected, err := d.Dispatch(context.Background(), n)
	require.NoError(t, err)
	assert.Equal(t, []string{}, rejected)
}
