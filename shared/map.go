package shared

import (
	"context"
	"fmt"

	"github.com/maxpoletaev/kluster/store"
)

// Map is a typed view of a replicated map.
type Map[V any] struct {
	name  string
	store store.Store
}

func NewMap[V any](s store.Store, name string) *Map[V] {
	return &Map[V]{name: name, store: s}
}

func (m *Map[V]) Name() string {
	return m.name
}

func (m *Map[V]) Get(ctx context.Context, key string) (V, bool, error) {
	var zero V

	data, ok, err := m.store.Get(ctx, m.name, key)
	if err != nil || !ok {
		return zero, false, err
	}

	v, err := decodeValue[V](data)
	if err != nil {
		return zero, false, fmt.Errorf("map %q key %q: %w", m.name, key, err)
	}

	return v, true, nil
}

func (m *Map[V]) Put(ctx context.Context, key string, v V) error {
	data, err := encodeValue(v)
	if err != nil {
		return err
	}

	return m.store.Put(ctx, m.name, key, data)
}

func (m *Map[V]) PutIfAbsent(ctx context.Context, key string, v V) (bool, error) {
	data, err := encodeValue(v)
	if err != nil {
		return false, err
	}

	return m.store.PutIfAbsent(ctx, m.name, key, data)
}

func (m *Map[V]) Remove(ctx context.Context, key string) error {
	return m.store.Remove(ctx, m.name, key)
}

// Entries returns all entries. Entries that cannot be decoded are skipped
// and reported in the error.
func (m *Map[V]) Entries(ctx context.Context) (map[string]V, error) {
	raw, err := m.store.Entries(ctx, m.name)
	if err != nil {
		return nil, err
	}

	res := make(map[string]V, len(raw))

	var firstErr error

	for k, data := range raw {
		v, err := decodeValue[V](data)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("map %q key %q: %w", m.name, k, err)
			}

			continue
		}

		res[k] = v
	}

	return res, firstErr
}
