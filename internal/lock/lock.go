// Package lock provides short-lived distributed locks on top of redis.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var ErrNotAcquired = errors.New("lock held by another owner")

// releaseScript deletes the key only if it still holds the caller's token, so an
// expired lock re-acquired by someone else is never released by the old owner.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type Locker struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

func NewLocker(client redis.UniversalClient, prefix string, ttl time.Duration) *Locker {
	return &Locker{client: client, prefix: prefix, ttl: ttl}
}

type Lease struct {
	locker *Locker
	key    string
	token  string
}

// Acquire takes the lock for name or returns ErrNotAcquired when it is held.
func (l *Locker) Acquire(ctx context.Context, name string) (*Lease, error) {
	key := l.prefix + name
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("Acquire: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("Acquire %s: %w", name, ErrNotAcquired)
	}
	return &Lease{locker: l, key: key, token: token}, nil
}

func (le *Lease) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, le.locker.client, []string{le.key}, le.token).Err(); err != nil {
		return fmt.Errorf("Release: %w", err)
	}
	return nil
}
