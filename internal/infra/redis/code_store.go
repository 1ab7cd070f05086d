package redis

import (
	"context"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// CodeStore marks join codes live in Redis so concurrent processes do not
// hand out the same PIN. Reservation is best-effort liveness (SETNX with a
// TTL); the durable uniqueness check stays with the session archive.
type CodeStore struct {
	client *goredis.Client
	ttl    time.Duration
}

func NewCodeStore(client *goredis.Client, ttl time.Duration) *CodeStore {
	return &CodeStore{client: client, ttl: ttl}
}

// Reserve claims a join code for a session. It returns false when another
// live session already holds the code.
func (s *CodeStore) Reserve(ctx context.Context, code, sessionID string) (bool, error) {
	return s.client.SetNX(ctx, s.key(code), sessionID, s.ttl).Result()
}

// Release frees a join code once its session ends.
func (s *CodeStore) Release(ctx context.Context, code string) error {
	return s.client.Del(ctx, s.key(code)).Err()
}

func (s *CodeStore) key(code string) string {
	return "session:code:" + code
}
