package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SessionRegistry reserves session codes in Redis so that codes stay unique
// across instances. A reservation expires after ttl unless released earlier,
// which frees codes of hosts that crashed.
type SessionRegistry struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSessionRegistry(client *redis.Client, ttl time.Duration) *SessionRegistry {
	return &SessionRegistry{client: client, ttl: ttl}
}

// Reserve claims code, returning false if it is already taken.
func (r *SessionRegistry) Reserve(ctx context.Context, code string) (bool, error) {
	return r.client.SetNX(ctx, r.key(code), "1", r.ttl).Result()
}

func (r *SessionRegistry) Release(ctx context.Context, code string) error {
	return r.client.Del(ctx, r.key(code)).Err()
}

func (r *SessionRegistry) Live(ctx context.Context, code string) (bool, error) {
	n, err := r.client.Exists(ctx, r.key(code)).Result()
	return n > 0, err
}

func (r *SessionRegistry) key(code string) string {
	return "session:code:" + code
}
