package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

// recordingSink captures every InFlight report for assertions; other Sink
// methods are no-ops.
type recordingSink struct {
	mu     sync.Mutex
	counts []int
}

func (s *recordingSink) DispatchOutcome(string, string) {}
func (s *recordingSink) AuthRefresh(string, bool)       {}
func (s *recordingSink) InFlight(_ string, count int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.counts = append(s.counts, count)
}
func (s *recordingSink) CaptureError(context.Context, string, error) {}
func (s *recordingSink) StartSpan(ctx context.Context, _ string) (context.Context, func()) {
	return ctx, func() {}
}

func (s *recordingSink) last() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.counts) == 0 {
		return 0
	}
	return s.counts[len(s.counts)-1]
}

// TestLimiter_ConcurrencyCap covers the testable property that the number of
// concurrently outstanding permits for a pushkin never exceeds max_connections,
// even under a burst far larger than the cap.
func TestLimiter_ConcurrencyCap(t *testing.T) {
	const maxConnections = 5
	const burst = 100

	l := NewLimiter(maxConnections, 0, "apns", telemetry.Noop{})

	var inFlight int32
	var peak int32
	var wg sync.WaitGroup

	for i := 0; i < burst; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := l.Acquire(context.Background())
			require.NoError(t, err)
			defer release()

			cur := atomic.AddInt32(&inFlight, 1)
			for {
				p := atomic.LoadInt32(&peak)
				if cur <= p || atomic.CompareAndSwapInt32(&peak, p, cur) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&inFlight, -1)
		}()
	}

	wg.Wait()
	assert.LessOrEqual(t, int(peak), maxConnections)
}

func TestLimiter_AcquireRespectsCancellation(t *testing.T) {
	l := NewLimiter(1, 0, "apns", telemetry.Noop{})

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = l.Acquire(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	release()
}

func TestLimiter_InFlightAndCapacity(t *testing.T) {
	l := NewLimiter(3, 0, "apns", telemetry.Noop{})
	assert.Equal(t, 3, l.Capacity())
	assert.Equal(t, 0, l.InFlight())

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, l.InFlight())

	release()
	assert.Equal(t, 0, l.InFlight())
}

func TestLimiter_ZeroMaxConnectionsDefaultsTo20(t *testing.T) {
	l := NewLimiter(0, 0, "apns", telemetry.Noop{})
	assert.Equal(t, 20, l.Capacity())
}

// TestLimiter_ReportsInFlightToSink covers spec §6's in-flight-permits
// metric: Acquire/release must report the current permit count to the
// Sink, not just expose it via the plain InFlight() getter.
func TestLimiter_ReportsInFlightToSink(t *testing.T) {
	sink := &recordingSink{}
	l := NewLimiter(2, 0, "apns", sink)

	release, err := l.Acquire(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, sink.last())

	release()
	assert.Equal(t, 0, sink.last())
}
