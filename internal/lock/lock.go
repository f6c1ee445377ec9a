// Package lock serializes provisioning of a tenant across orchestrator replicas.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrLocked means another holder owns the tenant's lock.
var ErrLocked = errors.New("tenant is locked by another provisioning run")

const keyPrefix = "tenant-provisioner:lock:"

// ReleaseFunc gives up a lock. It is safe to call after the lock expired.
type ReleaseFunc func(ctx context.Context) error

// Locker acquires a per-tenant exclusive lock.
type Locker interface {
	Acquire(ctx context.Context, tenantID string) (ReleaseFunc, error)
}

// NopLocker always succeeds. Used when no Redis is configured; in-process
// deduplication still applies.
type NopLocker struct{}

func (NopLocker) Acquire(context.Context, string) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}

// releaseScript deletes the key only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// renewScript extends the key only if it still holds our token.
var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

const minRenewInterval = 10 * time.Millisecond

// RedisLocker holds tenant locks as Redis keys with a TTL. A held lock is
// renewed in the background until it is released, so an attempt may outlive
// the TTL.
type RedisLocker struct {
	client     *redis.Client
	ttl        time.Duration
	renewEvery time.Duration
	logger     *zap.Logger
}

type Option func(*RedisLocker)

// WithRenewInterval overrides how often a held lock is extended. The default
// is a third of the TTL.
func WithRenewInterval(d time.Duration) Option {
	return func(l *RedisLocker) { l.renewEvery = d }
}

// NewRedisLocker connects to addr and verifies the connection.
func NewRedisLocker(addr, password string, ttl time.Duration, logger *zap.Logger, opts ...Option) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return NewRedisLockerWithClient(client, ttl, logger, opts...), nil
}

func NewRedisLockerWithClient(client *redis.Client, ttl time.Duration, logger *zap.Logger, opts ...Option) *RedisLocker {
	l := &RedisLocker{client: client, ttl: ttl, renewEvery: ttl / 3, logger: logger}
	for _, opt := range opts {
		opt(l)
	}
	if l.renewEvery < minRenewInterval {
		l.renewEvery = minRenewInterval
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, tenantID string) (ReleaseFunc, error) {
	key := keyPrefix + tenantID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock for tenant %s: %w", tenantID, err)
	}
	if !ok {
		return nil, ErrLocked
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.keepAlive(context.WithoutCancel(ctx), key, token, tenantID, stop, done)

	var once sync.Once
	return func(ctx context.Context) error {
		once.Do(func() {
			close(stop)
			<-done
		})

		deleted, err := releaseScript.Run(ctx, l.client, []string{key}, token).Int()
		if err != nil {
			return fmt.Errorf("failed to release lock for tenant %s: %w", tenantID, err)
		}
		if deleted == 0 {
			l.logger.Warn("Lock expired before release", zap.String("tenant_id", tenantID))
		}
		return nil
	}, nil
}

// keepAlive extends the key every renewEvery until stop is closed or the key no
// longer holds token.
func (l *RedisLocker) keepAlive(ctx context.Context, key, token, tenantID string, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(l.renewEvery)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			renewCtx, cancel := context.WithTimeout(ctx, l.renewEvery)
			kept, err := renewScript.Run(renewCtx, l.client, []string{key}, token, l.ttl.Milliseconds()).Int()
			cancel()
			if err != nil {
				l.logger.Warn("Failed to renew tenant lock", zap.String("tenant_id", tenantID), zap.Error(err))
				continue
			}
			if kept == 0 {
				l.logger.Error("Tenant lock lost while held", zap.String("tenant_id", tenantID))
				return
			}
		}
	}
}

// Close closes the Redis client
func (l *RedisLocker) Close() error {
	return l.client.Close()
}
