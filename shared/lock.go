// Package shared implements cluster-wide primitives on top of the cluster
// state store: a named mutual-exclusion lock, a single-value reference cell
// and a typed replicated map.
package shared

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/store"
)

// LocksMap holds one entry per held lock, valued by the owner token.
const LocksMap = "__locks"

const DefaultPollInterval = 50 * time.Millisecond

var ErrInterrupted = errors.New("interrupted while waiting for lock")

type LockOption func(*Lock)

// WithPollInterval sets how long to sleep between acquisition attempts.
func WithPollInterval(d time.Duration) LockOption {
	return func(l *Lock) {
		l.pollInterval = d
	}
}

// Lock is a cluster-wide mutual exclusion lock keyed by name. A lock is held
// while the store has an entry for its name; the entry value is a token that
// is unique to the acquisition, so that only the holder can release it.
//
// A Lock value represents a single holder. Locking it again while held waits
// for itself forever. There is no lease: if the holder dies without calling
// Unlock, the lock stays taken.
type Lock struct {
	name         string
	store        store.Store
	pollInterval time.Duration

	mut   sync.Mutex
	token []byte
}

func NewLock(s store.Store, name string, opts ...LockOption) *Lock {
	l := &Lock{
		name:         name,
		store:        s,
		pollInterval: DefaultPollInterval,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l
}

func (l *Lock) Name() string {
	return l.name
}

// TryLock makes a single acquisition attempt. It returns true if the lock is
// now held by this Lock. When the attempt fails with an error, the entry may
// still have been written, so it is removed before returning.
func (l *Lock) TryLock(ctx context.Context) (bool, error) {
	token := []byte(uuid.NewString())

	ok, err := l.store.PutIfAbsent(ctx, LocksMap, l.name, token)
	if err != nil {
		if _, rmErr := l.store.RemoveIf(context.WithoutCancel(ctx), LocksMap, l.name, token); rmErr != nil {
			err = errors.Join(err, rmErr)
		}

		return false, fmt.Errorf("acquire lock %q: %w", l.name, err)
	}

	if ok {
		l.mut.Lock()
		l.token = token
		l.mut.Unlock()
	}

	return ok, nil
}

// Lock blocks until the lock is acquired. Cancelling the context aborts the
// wait with ErrInterrupted, which wraps the context error.
func (l *Lock) Lock(ctx context.Context) error {
	for {
		ok, err := l.TryLock(ctx)
		if err != nil {
			return err
		}

		if ok {
			return nil
		}

		if err := l.sleep(ctx, l.pollInterval); err != nil {
			return err
		}
	}
}

// TryLockTimeout keeps trying to acquire the lock until the timeout passes.
// It returns false if the lock could not be acquired in time.
func (l *Lock) TryLockTimeout(ctx context.Context, timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.TryLock(ctx)
		if err != nil || ok {
			return ok, err
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return false, nil
		}

		wait := l.pollInterval
		if remaining < wait {
			wait = remaining
		}

		if err := l.sleep(ctx, wait); err != nil {
			return false, err
		}
	}
}

// Unlock releases the lock if this Lock holds it. An entry owned by another
// token is never removed.
func (l *Lock) Unlock(ctx context.Context) error {
	l.mut.Lock()
	token := l.token
	l.token = nil
	l.mut.Unlock()

	if token == nil {
		return nil
	}

	if _, err := l.store.RemoveIf(ctx, LocksMap, l.name, token); err != nil {
		l.mut.Lock()
		l.token = token
		l.mut.Unlock()

		return fmt.Errorf("release lock %q: %w", l.name, err)
	}

	return nil
}

func (l *Lock) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return fmt.Errorf("%w %q: %w", ErrInterrupted, l.name, ctx.Err())
	case <-timer.C:
		return nil
	}
}
