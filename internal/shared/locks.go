package shared

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const defaultLockRetry = 50 * time.Millisecond

// ReleaseFunc frees a held lock.
type ReleaseFunc func(ctx context.Context) error

// DepreciationLockKey builds redis keys serialising work on a company period.
func DepreciationLockKey(companyID int64, year, month int) string {
	return fmt.Sprintf("depreciation:company:%d:period:%04d-%02d:lock", companyID, year, month)
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisPeriodLocker is a token lock on a redis key shared by all API and worker processes.
type RedisPeriodLocker struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	retry  time.Duration
}

// NewRedisPeriodLocker constructs the locker. ttl bounds how long a crashed holder
// blocks others; wait bounds how long Acquire polls a busy key.
func NewRedisPeriodLocker(client *redis.Client, ttl, wait time.Duration) *RedisPeriodLocker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &RedisPeriodLocker{client: client, ttl: ttl, wait: wait, retry: defaultLockRetry}
}

// Acquire takes the lock or returns ErrLockNotAcquired once the wait budget is spent.
func (l *RedisPeriodLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	token := uuid.NewString()
	deadline := time.Now().Add(l.wait)
	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func(ctx context.Context) error {
				deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int64()
				if err != nil {
					return fmt.Errorf("release lock %s: %w", key, err)
				}
				if deleted == 0 {
					return ErrLockLost
				}
				return nil
			}, nil
		}
		if !time.Now().Before(deadline) {
			return nil, ErrLockNotAcquired
		}
		timer := time.NewTimer(l.retry)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// LocalPeriodLocker serialises keys inside one process. Used when redis is not configured.
type LocalPeriodLocker struct {
	mu   sync.Mutex
	held map[string]chan struct{}
	wait time.Duration
}

// NewLocalPeriodLocker constructs an in-process locker.
func NewLocalPeriodLocker(wait time.Duration) *LocalPeriodLocker {
	return &LocalPeriodLocker{held: make(map[string]chan struct{}), wait: wait}
}

// Acquire takes the lock or returns ErrLockNotAcquired after the wait budget.
func (l *LocalPeriodLocker) Acquire(ctx context.Context, key string) (ReleaseFunc, error) {
	timeout := time.NewTimer(l.wait)
	defer timeout.Stop()
	for {
		l.mu.Lock()
		busy, taken := l.held[key]
		if !taken {
			done := make(chan struct{})
			l.held[key] = done
			l.mu.Unlock()
			var once sync.Once
			return func(context.Context) error {
				once.Do(func() {
					l.mu.Lock()
					delete(l.held, key)
					l.mu.Unlock()
					close(done)
				})
				return nil
			}, nil
		}
		l.mu.Unlock()
		select {
		case <-busy:
		case <-timeout.C:
			return nil, ErrLockNotAcquired
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}
