// Package lock serializes mutations per habit.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"

	"github.com/aimd54/streakd/internal/cache"
	"github.com/aimd54/streakd/internal/errs"
)

// ErrNotAcquired is returned when a lock could not be taken within the wait budget.
var ErrNotAcquired = errors.New("lock not acquired")

// Unlock releases a held lock. It is safe to call once.
type Unlock func()

// Locker hands out exclusive locks keyed by string.
type Locker interface {
	Lock(ctx context.Context, key string) (Unlock, error)
}

// LocalLocker is an in-process keyed mutex. Entries are reference counted and
// dropped once no goroutine holds or waits for them.
type LocalLocker struct {
	mu      sync.Mutex
	entries map[string]*localEntry
}

type localEntry struct {
	sem  chan struct{}
	refs int
}

// NewLocalLocker creates an empty keyed mutex.
func NewLocalLocker() *LocalLocker {
	return &LocalLocker{entries: make(map[string]*localEntry)}
}

// Lock blocks until key is free or ctx is done.
func (l *LocalLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	l.mu.Lock()
	e, ok := l.entries[key]
	if !ok {
		e = &localEntry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e, false)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() { l.release(key, e, true) })
	}, nil
}

func (l *LocalLocker) release(key string, e *localEntry, held bool) {
	if held {
		<-e.sem
	}
	l.mu.Lock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
	l.mu.Unlock()
}

// Len returns the number of live entries.
func (l *LocalLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// CacheLocker is a distributed lock over SET NX PX with a random token.
// Release deletes the key only if it still holds the token.
type CacheLocker struct {
	cache  cache.Cache
	prefix string
	ttl    time.Duration
	wait   time.Duration
}

// NewCacheLocker creates a distributed locker. ttl bounds how long a crashed
// holder blocks others; wait bounds acquisition time.
func NewCacheLocker(c cache.Cache, prefix string, ttl, wait time.Duration) *CacheLocker {
	return &CacheLocker{cache: c, prefix: prefix, ttl: ttl, wait: wait}
}

// Lock polls with exponential backoff until the key is set or the wait budget ends.
func (l *CacheLocker) Lock(ctx context.Context, key string) (Unlock, error) {
	fullKey := l.prefix + key
	token := uuid.NewString()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 10 * time.Millisecond
	b.MaxInterval = 250 * time.Millisecond
	b.MaxElapsedTime = l.wait
	if b.MaxElapsedTime <= 0 {
		b.MaxElapsedTime = time.Nanosecond // single attempt
	}

	err := backoff.Retry(func() error {
		ok, err := l.cache.SetNX(ctx, fullKey, token, l.ttl)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return ErrNotAcquired
		}
		return nil
	}, backoff.WithContext(b, ctx))

	switch {
	case err == nil:
	case errors.Is(err, ErrNotAcquired):
		return nil, errs.Transient("lock.Acquire", fmt.Errorf("%s: %w", key, ErrNotAcquired))
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, errs.Transient("lock.Acquire", err)
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
			defer cancel()
			_, _ = l.cache.CompareAndDelete(releaseCtx, fullKey, token)
		})
	}, nil
}

// Chain acquires every locker in order and releases them in reverse.
type Chain []Locker

// Lock implements Locker.
func (c Chain) Lock(ctx context.Context, key string) (Unlock, error) {
	held := make([]Unlock, 0, len(c))
	releaseAll := func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i]()
		}
	}

	for _, l := range c {
		unlock, err := l.Lock(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		held = append(held, unlock)
	}
	return releaseAll, nil
}
