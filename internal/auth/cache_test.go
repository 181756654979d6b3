package auth_test

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-gateway/internal/auth"
)

// TestCache_SingleFlightUnderConcurrency covers the invariant that at most
// one refresh network call is in flight per cache at any instant: a burst of
// concurrent callers against a cold cache triggers exactly one refresh.
func TestCache_SingleFlightUnderConcurrency(t *testing.T) {
	var refreshes int32
	refresh := func(context.Context) (string, time.Time, error) {
		atomic.AddInt32(&refreshes, 1)
		time.Sleep(20 * time.Millisecond)
		return "token-1", time.Now().Add(time.Hour), nil
	}
	c := auth.NewCache("test", 5*time.Minute, refresh)

	const callers = 50
	var wg sync.WaitGroup
	values := make([]string, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := c.Get(context.Background())
			require.NoError(t, err)
			values[i] = v
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, refreshes)
	for _, v := range values {
		assert.Equal(t, "token-1", v)
	}
}

// TestCache_ReusesValidValue covers that a cached value outside the refresh
// margin is returned without a second network call.
func TestCache_ReusesValidValue(t *testing.T) {
	var refreshes int32
	refresh := func(context.Context) (string, time.Time, error) {
		n := atomic.AddInt32(&refreshes, 1)
		return fmt.Sprintf("token-%d", n), time.Now().Add(time.Hour), nil
	}
	c := auth.NewCache("test", 5*time.Minute, refresh)

	v1, err := c.Get(context.Background())
	require.NoError(t, err)
	v2, err := c.Get(context.Background())
	require.NoError(t, err)

	assert.Equal(t, v1, v2)
	assert.EqualValues(t, 1, refreshes)
}

// TestCache_RefreshesPastMargin covers that a value within the refresh
// margin of expiry is treated as stale and triggers exactly one more
// refresh, mirroring the APNs 55-minute JWT reuse window.
func TestCache_RefreshesPastMargin(t *testing.T) {
	var refreshes int32
	margin := 5 * time.Minute
	refresh := func(context.Context) (string, time.Time, error) {
		n := atomic.AddInt32(&refreshes, 1)
		if n == 1 {
			// Already within the refresh margin: the next Get must refresh again.
			return "token-1", time.Now().Add(margin - time.Second), nil
		}
		return "token-2", time.Now().Add(time.Hour), nil
	}
	c := auth.NewCache("test", margin, refresh)

	v1, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", v1)

	v2, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", v2)
	assert.EqualValues(t, 2, refreshes)
}

// TestCache_RefreshFailurePropagatesToAllWaiters covers that a failed
// refresh surfaces the same error to every concurrent waiter, and that the
// next call gets a fresh attempt rather than a permanently stuck flag.
func TestCache_RefreshFailurePropagatesToAllWaiters(t *testing.T) {
	var attempt int32
	refresh := func(context.Context) (string, time.Time, error) {
		n := atomic.AddInt32(&attempt, 1)
		if n == 1 {
			// Slow enough that every concurrent caller joins this one refresh.
			time.Sleep(20 * time.Millisecond)
			return "", time.Time{}, assert.AnError
		}
		return "token-ok", time.Now().Add(time.Hour), nil
	}
	c := auth.NewCache("test", 5*time.Minute, refresh)

	const callers = 10
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Get(context.Background())
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.Error(t, err)
	}

	v, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-ok", v)
}

// TestCache_CancelledCallerDoesNotAbortOthers covers that one caller giving
// up on its own ctx never leaves the cache's refresh flag stuck for the
// others still waiting on the same in-flight refresh.
func TestCache_CancelledCallerDoesNotAbortOthers(t *testing.T) {
	refresh := func(context.Context) (string, time.Time, error) {
		time.Sleep(50 * time.Millisecond)
		return "token-1", time.Now().Add(time.Hour), nil
	}
	c := auth.NewCache("test", 5*time.Minute, refresh)

	cancelledCtx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup
	wg.Add(2)

	var cancelledErr error
	go func() {
		defer wg.Done()
		_, cancelledErr = c.Get(cancelledCtx)
	}()

	var patientValue string
	var patientErr error
	go func() {
		defer wg.Done()
		patientValue, patientErr = c.Get(context.Background())
	}()

	wg.Wait()

	assert.Error(t, cancelledErr)
	require.NoError(t, patientErr)
	assert.Equal(t, "token-1", patientValue)
}

// TestCache_InvalidateForcesRefreshDespiteMargin covers that Invalidate
// forces a real refresh on the next Get even though the cached value is
// nowhere near its margin — the scenario a provider-reported expired
// credential leaves the cache in, since the margin check alone can't see
// clock skew or provider-side revocation.
func TestCache_InvalidateForcesRefreshDespiteMargin(t *testing.T) {
	var refreshes int32
	refresh := func(context.Context) (string, time.Time, error) {
		n := atomic.AddInt32(&refreshes, 1)
		return fmt.Sprintf("token-%d", n), time.Now().Add(time.Hour), nil
	}
	c := auth.NewCache("test", 5*time.Minute, refresh)

	v1, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", v1)

	require.NoError(t, c.Invalidate())

	v2, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", v2)
	assert.EqualValues(t, 2, refreshes)
}
