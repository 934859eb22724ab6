package cron

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/fieldstock-backend/pkg/instance"
)

const (
	defaultLockTTL = 6 * time.Hour
	// PipelineLockName is the lock shared by every cron worker and one-shot pipeline run.
	PipelineLockName = "pipeline"
)

// Lock coordinates exclusive pipeline cycles across workers.
type Lock interface {
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// redisStore defines the operations used by RedisLock.
type redisStore interface {
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error)
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
}

type lockKeyStore interface {
	redisStore
	LockKey(name string) string
}

// ErrLockLost reports that the lock expired and was taken by another owner
// before this holder released it.
var ErrLockLost = errors.New("lock lost before release")

// RedisLock implements Lock with SET NX and a TTL. Each acquire writes a fresh
// owner token prefixed with the instance id, so a held lock names its holder.
type RedisLock struct {
	client redisStore
	key    string
	ttl    time.Duration

	mu    sync.Mutex
	owner string
}

// NewRedisLock constructs a Redis-backed lock.
func NewRedisLock(client redisStore, key string, ttl time.Duration) (*RedisLock, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client required for lock")
	case key == "":
		return nil, errors.New("lock key is required")
	}
	if ttl <= 0 {
		ttl = defaultLockTTL
	}
	return &RedisLock{client: client, key: key, ttl: ttl}, nil
}

// NewPipelineLock namespaces the pipeline lock through the client's key builder.
func NewPipelineLock(client lockKeyStore, ttl time.Duration) (*RedisLock, error) {
	if client == nil {
		return nil, errors.New("redis client required for lock")
	}
	return NewRedisLock(client, client.LockKey(PipelineLockName), ttl)
}

// Owner returns the token written by the last successful Acquire, or "".
func (l *RedisLock) Owner() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.owner
}

// Acquire tries to own the lock for the configured TTL.
func (l *RedisLock) Acquire(ctx context.Context) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner != "" {
		return false, fmt.Errorf("lock %s already held by this process", l.key)
	}

	token := instance.GetID() + ":" + uuid.NewString()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl)
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", l.key, err)
	}
	if ok {
		l.owner = token
	}
	return ok, nil
}

// Release deletes the key only while it still holds this owner's token.
// ErrLockLost means the TTL ran out mid-cycle and someone else holds it now.
func (l *RedisLock) Release(ctx context.Context) error {
	l.mu.Lock()
	token := l.owner
	l.owner = ""
	l.mu.Unlock()
	if token == "" {
		return nil
	}

	deleted, err := l.client.CompareAndDelete(ctx, l.key, token)
	if err != nil {
		return fmt.Errorf("release lock %s: %w", l.key, err)
	}
	if !deleted {
		return ErrLockLost
	}
	return nil
}
