// Package lock provides per-key mutual exclusion for ingestion runs, either
// across instances through Redis or inside one process.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"
	redisv9 "github.com/redis/go-redis/v9"
)

var (
	// ErrHeld is returned when another holder owns the key.
	ErrHeld = errors.New("lock is held")
	// ErrLost is returned once a lease expired or was taken over.
	ErrLost = errors.New("lock lease lost")
)

// Locker grants exclusive ownership of a key for ttl. The holder keeps it
// longer by extending the lease.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error)
}

// Lease is one ownership of a key.
type Lease struct {
	extend  func(ctx context.Context, ttl time.Duration) (bool, error)
	release func()
	once    sync.Once
}

// Extend resets the lease expiry to ttl from now. It returns ErrLost when the
// key no longer belongs to this lease.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) error {
	ok, err := l.extend(ctx, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLost
	}
	return nil
}

// Release gives the key up. It is safe to call more than once and never
// removes a key taken over by another holder.
func (l *Lease) Release() {
	l.once.Do(l.release)
}

// KeepAlive extends the lease every ttl/3 until the returned stop func is
// called or ctx is done. The returned context is canceled with ErrLost as its
// cause when the lease cannot be kept; transient extend errors are retried
// until the lease would have expired.
func (l *Lease) KeepAlive(ctx context.Context, ttl time.Duration) (context.Context, func()) {
	kctx, cancel := context.WithCancelCause(ctx)
	interval := ttl / 3
	if interval <= 0 {
		interval = time.Millisecond
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		extended := time.Now()
		for {
			select {
			case <-kctx.Done():
				return
			case <-ticker.C:
			}
			extCtx, extCancel := context.WithTimeout(kctx, interval)
			err := l.Extend(extCtx, ttl)
			extCancel()
			switch {
			case err == nil:
				extended = time.Now()
			case kctx.Err() != nil:
				return
			case errors.Is(err, ErrLost), time.Since(extended) >= ttl:
				cancel(fmt.Errorf("%w: %v", ErrLost, err))
				return
			}
		}
	}()

	return kctx, func() {
		cancel(context.Canceled)
		<-done
	}
}

// releaseScript deletes the key only while it still carries our token.
var releaseScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// extendScript resets the expiry only while the key still carries our token.
var extendScript = redisv9.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

type RedisLocker struct {
	client *redisv9.Client
	prefix string
}

func NewRedisLocker(client *redisv9.Client, prefix string) *RedisLocker {
	if prefix == "" {
		prefix = "paperchat:lock:"
	}
	return &RedisLocker{client: client, prefix: prefix}
}

func (l *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	fullKey := l.prefix + key
	ok, err := l.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis acquire lock failed: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}
	return &Lease{
		extend: func(ctx context.Context, ttl time.Duration) (bool, error) {
			n, err := extendScript.Run(ctx, l.client, []string{fullKey}, token, ttl.Milliseconds()).Int()
			if err != nil {
				return false, fmt.Errorf("redis extend lock failed: %w", err)
			}
			return n == 1, nil
		},
		release: func() {
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = releaseScript.Run(releaseCtx, l.client, []string{fullKey}, token).Err()
		},
	}, nil
}

// LocalLocker keeps locks in an expiring in-process cache.
type LocalLocker struct {
	mu    sync.Mutex
	cache *gocache.Cache
}

func NewLocalLocker() *LocalLocker {
	return &LocalLocker{cache: gocache.New(gocache.NoExpiration, time.Minute)}
}

func (l *LocalLocker) Acquire(_ context.Context, key string, ttl time.Duration) (*Lease, error) {
	token := uuid.NewString()
	l.mu.Lock()
	err := l.cache.Add(key, token, ttl)
	l.mu.Unlock()
	if err != nil {
		return nil, ErrHeld
	}
	return &Lease{
		extend: func(_ context.Context, ttl time.Duration) (bool, error) {
			l.mu.Lock()
			defer l.mu.Unlock()
			if v, ok := l.cache.Get(key); !ok || v != token {
				return false, nil
			}
			l.cache.Set(key, token, ttl)
			return true, nil
		},
		release: func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			if v, ok := l.cache.Get(key); ok && v == token {
				l.cache.Delete(key)
			}
		},
	}, nil
}
