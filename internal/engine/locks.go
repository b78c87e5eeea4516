package engine

import (
	"context"
	"sync"
)

// AccountLocks serializes all order matching, cancellation and settlement
// for a trading account. Each account's lock is a one-slot semaphore so
// acquisition can respect a context deadline; distinct accounts proceed in
// parallel.
type AccountLocks struct {
	mu    sync.Mutex
	locks map[int64]chan struct{}
}

// NewAccountLocks creates an empty lock registry.
func NewAccountLocks() *AccountLocks {
	return &AccountLocks{
		locks: make(map[int64]chan struct{}),
	}
}

func (l *AccountLocks) get(accountID int64) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.locks[accountID]
	if !ok {
		ch = make(chan struct{}, 1)
		l.locks[accountID] = ch
	}
	return ch
}

// Acquire takes the account's lock, giving up when ctx is done. A context
// that is already done never acquires, even when the lock is free.
func (l *AccountLocks) Acquire(ctx context.Context, accountID int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case l.get(accountID) <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lock takes the account's lock unconditionally.
func (l *AccountLocks) Lock(accountID int64) {
	l.get(accountID) <- struct{}{}
}

// Release returns the account's lock. It must pair with a successful
// Acquire or Lock.
func (l *AccountLocks) Release(accountID int64) {
	<-l.get(accountID)
}
