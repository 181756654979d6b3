// Package auth implements a generic auth token cache:
// short-lived-credential manager shared by every concurrent dispatch for one
// pushkin, with single-flight refresh so a burst of concurrent callers never
// triggers more than one network round-trip.
package auth

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/tinywideclouds/go-push-gateway/internal/telemetry"
)

// RefreshFunc fetches a fresh credential. It must not be called directly by
// consumers — only through Cache.Get, which coalesces concurrent callers.
type RefreshFunc func(ctx context.Context) (value string, expiresAt time.Time, err error)

// Store persists the current credential value, so multiple gateway replicas
// can share one refresh instead of each hammering the provider independently.
// The default is an in-process Store; RedisStore implements the same
// interface for multi-replica deployments.
type Store interface {
	Load() (value string, expiresAt time.Time, ok bool)
	Save(value string, expiresAt time.Time) error
	Invalidate() error
}

// memStore is the zero-dependency default: one value guarded by the store's
// own mutex, scoped to a single process.
type memStore struct {
	mu        sync.RWMutex
	value     string
	expiresAt time.Time
	set       bool
}

func (s *memStore) Load() (string, time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.value, s.expiresAt, s.set
}

func (s *memStore) Save(value string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.expiresAt, s.set = value, expiresAt, true
	return nil
}

func (s *memStore) Invalidate() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value, s.expiresAt, s.set = "", time.Time{}, false
	return nil
}

// Cache implements a read-through-refresh protocol: if the current value is valid
// and outside the refresh margin, return it; otherwise exactly one caller
// refreshes while the rest wait on the same result.
type Cache struct {
	name    string
	store   Store
	margin  time.Duration
	timeout time.Duration
	refresh RefreshFunc
	group   singleflight.Group
	sink    telemetry.Sink
}

// Option configures a Cache at construction.
type Option func(*Cache)

// WithStore swaps the default in-process Store, e.g. for RedisStore.
func WithStore(s Store) Option {
	return func(c *Cache) { c.store = s }
}

// WithSink wires Prometheus/Sentry/tracing into refresh accounting.
func WithSink(sink telemetry.Sink) Option {
	return func(c *Cache) { c.sink = sink }
}

// WithRefreshTimeout bounds how long the single refresher waits on the
// network call before giving up (and surfacing the error to every waiter).
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Cache) { c.timeout = d }
}

// NewCache builds a Cache for one pushkin identity. margin is how long before
// expiry a cached value is treated as already-expired (e.g. 60s for FCM OAuth2
// tokens); refresh performs the actual network exchange.
func NewCache(name string, margin time.Duration, refresh RefreshFunc, opts ...Option) *Cache {
	c := &Cache{
		name:    name,
		store:   &memStore{},
		margin:  margin,
		timeout: 10 * time.Second,
		refresh: refresh,
		sink:    telemetry.Noop{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns a valid credential, refreshing it first if necessary. Refresh
// is serialized per pushkin: all concurrent callers observe a monotonically
// non-decreasing expiry, and cancelling one caller's ctx never aborts the
// refresh for the others still waiting on it.
func (c *Cache) Get(ctx context.Context) (string, error) {
	if value, expiresAt, ok := c.store.Load(); ok && time.Until(expiresAt) > c.margin {
		return value, nil
	}

	resultCh := c.group.DoChan(c.name, func() (interface{}, error) {
		refreshCtx, cancel := context.WithTimeout(context.Background(), c.timeout)
		defer cancel()

		value, expiresAt, err := c.refresh(refreshCtx)
		c.sink.AuthRefresh(c.name, err != nil)
		if err != nil {
			return "", err
		}
		if err := c.store.Save(value, expiresAt); err != nil {
			return "", err
		}
		return value, nil
	})

	select {
	case res := <-resultCh:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		// This caller gave up; the in-flight refresh (and any other waiters)
		// continues uninterrupted — singleflight.Group clears its own
		// in-progress entry once the refresher returns, so no flag is ever
		// left stale by this cancellation.
		return "", ctx.Err()
	}
}

// Invalidate forces the next Get to perform a real network refresh even if
// the store still considers the current value within its margin. Callers use
// this when a provider rejects a credential the cache still believes is
// fresh — clock skew or provider-side revocation, neither of which the
// margin check alone can detect.
func (c *Cache) Invalidate() error {
	return c.store.Invalidate()
}
