package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore backs a Cache with Redis so that every replica of the gateway
// shares one provider credential instead of each independently exhausting
// its own refresh quota. Grounded on the redis client wrapper used elsewhere,
// repurposed here from token registration to auth-token sharing.
type RedisStore struct {
	client *redis.Client
	key    string
	ctx    context.Context
}

// NewRedisStore builds a Store keyed under "pushgateway:auth:<name>". The ctx
// passed here is used only for Load/Save/Invalidate round-trips and should usually be
// context.Background(), since credential IO must outlive any single request.
func NewRedisStore(ctx context.Context, client *redis.Client, name string) *RedisStore {
	return &RedisStore{
		client: client,
		key:    fmt.Sprintf("pushgateway:auth:%s", name),
		ctx:    ctx,
	}
}

type redisEntry struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r *RedisStore) Load() (string, time.Time, bool) {
	var entry redisEntry
	raw, err := r.client.Get(r.ctx, r.key).Bytes()
	if err != nil {
		return "", time.Time{}, false
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", time.Time{}, false
	}
	return entry.Value, entry.ExpiresAt, true
}

func (r *RedisStore) Save(value string, expiresAt time.Time) error {
	raw, err := json.Marshal(redisEntry{Value: value, ExpiresAt: expiresAt})
	if err != nil {
		return err
	}
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return r.client.Set(r.ctx, r.key, raw, ttl).Err()
}

// Invalidate deletes the shared credential so every replica's next Get
// performs a real refresh, rather than each waiting out its own margin.
func (r *RedisStore) Invalidate() error {
	return r.client.Del(r.ctx, r.key).Err()
}
