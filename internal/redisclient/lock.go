package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	ErrLockNotAcquired = errors.New("slot lock not acquired")
)

// Locker guards the per-slot critical section of the reservation
// coordinator. The storage-level compare-and-swap remains the arbiter of
// correctness; the lock only serializes contending bookers so losers see
// the slot state change instead of burning transactions.
type Locker interface {
	WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client  *redis.Client
	ttl     time.Duration
	maxWait time.Duration
}

// NewRedisSlotLocker creates a locker keyed per slot. Acquisition polls
// for up to maxWait so a contending booker queues behind the current
// holder rather than failing immediately.
func NewRedisSlotLocker(client *redis.Client, ttl, maxWait time.Duration) Locker {
	return &redisSlotLocker{
		client:  client,
		ttl:     ttl,
		maxWait: maxWait,
	}
}

const acquireRetryDelay = 25 * time.Millisecond

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, slotID uuid.UUID, fn func(ctx context.Context) error) error {
	key := fmt.Sprintf("lock:slot:%s", slotID.String())
	token := uuid.NewString()

	deadline := time.Now().Add(l.maxWait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return fmt.Errorf("acquire slot lock: %w", err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return ErrLockNotAcquired
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(acquireRetryDelay):
		}
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	ctxWithTimeout, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(ctxWithTimeout)
}

var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release slot lock: %w", err)
	}
	return nil
}
