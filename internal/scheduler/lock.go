package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"xs2acms/internal/platform/redis"
)

// Locker serialises sweep runs across instances. Acquire returns false when
// another holder owns the lock; callers skip the run in that case.
type Locker interface {
	Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name string) error
}

// RedisLocker implements Locker with SET NX EX so only one instance of a
// multi-node deployment runs a given sweep per tick. The TTL bounds the hold
// if the owner dies mid-sweep.
type RedisLocker struct {
	client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{client: client}
}

func (l *RedisLocker) key(name string) string {
	return "cms:sweep:" + name
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, l.key(name), "locked", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire sweep lock %s: %w", name, err)
	}
	return ok, nil
}

func (l *RedisLocker) Release(ctx context.Context, name string) error {
	if err := l.client.Del(ctx, l.key(name)).Err(); err != nil {
		return fmt.Errorf("release sweep lock %s: %w", name, err)
	}
	return nil
}

// LocalLocker is the single-instance fallback when Redis is not configured.
type LocalLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{held: make(map[string]struct{})}
}

func (l *LocalLocker) Acquire(_ context.Context, name string, _ time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[name]; ok {
		return false, nil
	}
	l.held[name] = struct{}{}
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, name string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, name)
	return nil
}
