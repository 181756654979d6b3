package dispatch

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

// Limiter is a per-pushkin bounded-permit gate: a counting
// semaphore of size max_connections, FIFO so a burst never starves an earlier
// requester, layered behind an optional token-bucket rate limiter for smoother
// backpressure under sustained load.
//
// The semaphore is a buffered channel: Go parks blocked senders/receivers on a
// channel in FIFO order, which is exactly the fairness guarantee needed,
// without reaching for a hand-rolled queue.
type Limiter struct {
	permits chan struct{}
	bucket  *rate.Limiter

	identity string
	sink     telemetry.Sink
}

// NewLimiter builds a Limiter with maxConnections in-flight permits. ratePerSec
// <= 0 disables the token-bucket layer (permit count alone governs). identity
// and sink report the in-flight permit count on every Acquire/release, for
// the inflight_permits gauge; sink may be nil to skip reporting.
func NewLimiter(maxConnections int, ratePerSec float64, identity string, sink telemetry.Sink) *Limiter {
	if maxConnections <= 0 {
		maxConnections = 20
	}
	if sink == nil {
		sink = telemetry.Noop{}
	}
	l := &Limiter{permits: make(chan struct{}, maxConnections), identity: identity, sink: sink}
	for i := 0; i < maxConnections; i++ {
		l.permits <- struct{}{}
	}
	if ratePerSec > 0 {
		l.bucket = rate.NewLimiter(rate.Limit(ratePerSec), maxConnections)
	}
	return l
}

// Acquire blocks until a permit is available or ctx is cancelled. On success
// it returns a release func that must be called exactly once.
func (l *Limiter) Acquire(ctx context.Context) (release func(), err error) {
	if l.bucket != nil {
		if err := l.bucket.Wait(ctx); err != nil {
			return nil, err
		}
	}
	select {
	case <-l.permits:
		l.sink.InFlight(l.identity, l.InFlight())
		return func() {
			l.permits <- struct{}{}
			l.sink.InFlight(l.identity, l.InFlight())
		}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// InFlight reports the number of permits currently checked out, for metrics.
func (l *Limiter) InFlight() int {
	return cap(l.permits) - len(l.permits)
}

// Capacity reports max_connections, for testable-property assertions.
func (l *Limiter) Capacity() int {
	return cap(l.permits)
}
