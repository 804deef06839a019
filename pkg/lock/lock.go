// Package lock is a short-lived, best-effort mutual exclusion on a redis
// key. Losing the race never corrupts state; callers choose whether to go
// on without the lock.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/config"
	"cs-platform/helpdesk/helpdesk-distribution-server/pkg/infra"

	"github.com/go-redis/redis/v8"
	"github.com/labstack/gommon/random"
	"go.uber.org/zap"
)

const tokenLength = 32

var ErrNotAcquired = errors.New("lock: not acquired")

// KEYS[1] lock key, ARGV[1] owner token.
const releaseScript = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
	return redis.call('DEL', KEYS[1])
end
return 0
`

// Lease is a held lock.
type Lease struct {
	Key   string
	Token string
}

type Locker struct {
	retryInterval time.Duration

	// When true Release only deletes a key still holding the lease token,
	// so a holder whose lock expired cannot drop the next holder's lock.
	ownerChecked bool

	newToken func() string

	redisClient *redis.Client
	logger      *zap.SugaredLogger
}

func ProvideLocker(config *config.Config, redisClient *redis.Client, loggerFactory *infra.LoggerFactory) *Locker {
	return NewLocker(redisClient, config.LockRetryInterval(), *config.LockOwnerCheckedRelease, loggerFactory)
}

func NewLocker(redisClient *redis.Client, retryInterval time.Duration, ownerChecked bool, loggerFactory *infra.LoggerFactory) *Locker {
	return &Locker{
		retryInterval: retryInterval,
		ownerChecked:  ownerChecked,
		newToken: func() string {
			return random.String(tokenLength, random.Alphanumeric)
		},
		redisClient: redisClient,
		logger:      loggerFactory.Create("Locker").Sugar(),
	}
}

// Acquire tries SET NX up to maxRetries times, sleeping retryInterval
// between attempts. Returns ErrNotAcquired if every attempt found the key
// held, or the last store error.
func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration, maxRetries int) (*Lease, error) {
	if maxRetries < 1 {
		maxRetries = 1
	}

	token := l.newToken()
	var lastErr error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		ok, err := l.redisClient.SetNX(ctx, key, token, ttl).Result()
		switch {
		case err != nil:
			l.logger.Warnf("acquire key[%v] attempt[%v] failed %v", key, attempt, err)
			lastErr = fmt.Errorf("acquire lock[%v]: %w", key, err)
		case ok:
			l.logger.Debugf("acquired key[%v] attempt[%v]", key, attempt)
			return &Lease{Key: key, Token: token}, nil
		default:
			lastErr = ErrNotAcquired
		}

		if attempt == maxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.retryInterval):
		}
	}

	return nil, lastErr
}

// Release frees the lease. A nil lease is a no-op.
func (l *Locker) Release(ctx context.Context, lease *Lease) error {
	if lease == nil {
		return nil
	}

	if !l.ownerChecked {
		if err := l.redisClient.Del(ctx, lease.Key).Err(); err != nil {
			return fmt.Errorf("release lock[%v]: %w", lease.Key, err)
		}
		return nil
	}

	deleted, err := l.redisClient.Eval(ctx, releaseScript, []string{lease.Key}, lease.Token).Int64()
	if err != nil {
		return fmt.Errorf("release lock[%v]: %w", lease.Key, err)
	}
	if deleted == 0 {
		l.logger.Warnf("lock key[%v] expired or taken over before release", lease.Key)
	}
	return nil
}
