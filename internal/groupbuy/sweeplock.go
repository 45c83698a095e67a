package groupbuy

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	sweepLockKey = "groupbuy:sweep:lock"
	sweepLockTTL = 2 * time.Minute
)

// SweepLock elects a single sweeper across replicas with a Redis SETNX
// lease. The TTL covers a crashed holder; a sweep that outlives it simply
// lets another replica take over next tick.
type SweepLock struct {
	client *redis.Client
	token  string
}

func NewSweepLock(client *redis.Client, token string) *SweepLock {
	return &SweepLock{client: client, token: token}
}

// TryAcquire returns true when this replica holds the sweep lease.
func (l *SweepLock) TryAcquire(ctx context.Context) (bool, error) {
	return l.client.SetNX(ctx, sweepLockKey, l.token, sweepLockTTL).Result()
}

// Release drops the lease if this replica still holds it. A lease that
// expired and was re-acquired elsewhere is left alone.
func (l *SweepLock) Release(ctx context.Context) error {
	val, err := l.client.Get(ctx, sweepLockKey).Result()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return err
	}
	if val != l.token {
		return nil
	}
	return l.client.Del(ctx, sweepLockKey).Err()
}
