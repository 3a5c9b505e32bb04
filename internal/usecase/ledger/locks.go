package ledger

import (
	"context"
	"sync"

	"github.com/simaogato/alphafolio-backend/internal/domain"
)

type lockKey struct {
	userID string
	class  domain.AssetClass
}

// keyedLock is a one-slot semaphore so waiters can give up on cancellation
type keyedLock struct {
	sem  chan struct{}
	refs int
}

// keyedMutex serializes mutations per (user, asset class). Entries are
// dropped once no goroutine holds or waits on them.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[lockKey]*keyedLock
}

func newKeyedMutex() *keyedMutex {
	return &keyedMutex{locks: make(map[lockKey]*keyedLock)}
}

// Lock blocks until the key is free or ctx is done. On success it returns the
// unlock func; otherwise ctx.Err().
func (k *keyedMutex) Lock(ctx context.Context, userID string, class domain.AssetClass) (func(), error) {
	key := lockKey{userID: userID, class: class}

	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{sem: make(chan struct{}, 1)}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
	case <-ctx.Done():
		k.release(key, l)
		return nil, ctx.Err()
	}

	return func() {
		<-l.sem
		k.release(key, l)
	}, nil
}

func (k *keyedMutex) release(key lockKey, l *keyedLock) {
	k.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
	k.mu.Unlock()
}
