package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const defaultLockTTL = 30 * time.Second

// unlockScript deletes the key only while it still holds the caller's token.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// OrderLock serialises confirmation attempts for one order across instances. It
// only reduces contention; the ledger's conditional update is what guarantees
// exactly-once confirmation.
type OrderLock struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewOrderLock(client *redis.Client, ttl time.Duration) *OrderLock {
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &OrderLock{Client: client, TTL: ttl}
}

func lockKey(orderID string) string {
	return "order_confirm:" + orderID
}

// Acquire takes the lock for orderID on behalf of token. It returns false when
// another holder has it.
func (l *OrderLock) Acquire(ctx context.Context, orderID, token string) (bool, error) {
	ok, err := l.Client.SetNX(ctx, lockKey(orderID), token, l.TTL).Result()
	if err != nil {
		return false, fmt.Errorf("acquire order lock %s: %w", orderID, err)
	}
	return ok, nil
}

// Release drops the lock if token still owns it.
func (l *OrderLock) Release(ctx context.Context, orderID, token string) error {
	err := unlockScript.Run(ctx, l.Client, []string{lockKey(orderID)}, token).Err()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("release order lock %s: %w", orderID, err)
	}
	return nil
}

// IsLocked checks whether a confirmation is in flight without taking the lock.
func (l *OrderLock) IsLocked(ctx context.Context, orderID string) (bool, error) {
	_, err := l.Client.Get(ctx, lockKey(orderID)).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}
