package shared

import (
	"context"
	"fmt"

	"github.com/maxpoletaev/kluster/store"
)

// ReferencesMap holds the values of all reference cells.
const ReferencesMap = "__references"

// Reference is a cluster-wide cell holding a single value or nothing.
// Writes go through a lock dedicated to the cell, which makes CompareAndSet
// atomic with respect to Set. Reads go straight to the store and may briefly
// miss a concurrent write.
type Reference[T comparable] struct {
	name     string
	store    store.Store
	lockOpts []LockOption
}

func NewReference[T comparable](s store.Store, name string, opts ...LockOption) *Reference[T] {
	return &Reference[T]{
		name:     name,
		store:    s,
		lockOpts: opts,
	}
}

func (r *Reference[T]) Name() string {
	return r.name
}

// Get returns the current value. The boolean is false if the cell is empty.
func (r *Reference[T]) Get(ctx context.Context) (T, bool, error) {
	var zero T

	data, ok, err := r.store.Get(ctx, ReferencesMap, r.name)
	if err != nil {
		return zero, false, fmt.Errorf("get reference %q: %w", r.name, err)
	}

	if !ok {
		return zero, false, nil
	}

	v, err := decodeValue[T](data)
	if err != nil {
		return zero, false, err
	}

	return v, true, nil
}

// Set replaces the value. A nil value empties the cell.
func (r *Reference[T]) Set(ctx context.Context, v *T) error {
	return r.withLock(ctx, func() error {
		return r.write(ctx, v)
	})
}

// CompareAndSet sets the value to v if the current value equals expected.
// A nil expected matches an empty cell, and a nil v empties it.
func (r *Reference[T]) CompareAndSet(ctx context.Context, expected, v *T) (bool, error) {
	swapped := false

	err := r.withLock(ctx, func() error {
		cur, ok, err := r.Get(ctx)
		if err != nil {
			return err
		}

		if !matches(cur, ok, expected) {
			return nil
		}

		if err := r.write(ctx, v); err != nil {
			return err
		}

		swapped = true

		return nil
	})

	return swapped, err
}

func matches[T comparable](cur T, present bool, expected *T) bool {
	if expected == nil {
		return !present
	}

	return present && cur == *expected
}

func (r *Reference[T]) write(ctx context.Context, v *T) error {
	if v == nil {
		if err := r.store.Remove(ctx, ReferencesMap, r.name); err != nil {
			return fmt.Errorf("clear reference %q: %w", r.name, err)
		}

		return nil
	}

	data, err := encodeValue(*v)
	if err != nil {
		return err
	}

	if err := r.store.Put(ctx, ReferencesMap, r.name, data); err != nil {
		return fmt.Errorf("set reference %q: %w", r.name, err)
	}

	return nil
}

func (r *Reference[T]) withLock(ctx context.Context, fn func() error) (err error) {
	lock := NewLock(r.store, ReferencesMap+"/"+r.name, r.lockOpts...)

	if err := lock.Lock(ctx); err != nil {
		return err
	}

	defer func() {
		// Release even if the caller's context is already done.
		if unlockErr := lock.Unlock(context.WithoutCancel(ctx)); unlockErr != nil && err == nil {
			err = unlockErr
		}
	}()

	return fn()
}
