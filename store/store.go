// Package store defines the cluster state store: named maps of opaque values
// that every member can read and mutate through a few atomic primitives.
package store

import (
	"bytes"
	"context"
	"errors"
)

var ErrUnknownOp = errors.New("unknown store operation")

// Store is the cluster state store. Values are opaque bytes scoped by map
// name. Implementations must make PutIfAbsent and RemoveIf atomic with
// respect to every other operation on the same key.
type Store interface {
	// Get returns the value stored under the key.
	Get(ctx context.Context, mapName, key string) ([]byte, bool, error)

	// Put stores the value unconditionally.
	Put(ctx context.Context, mapName, key string, value []byte) error

	// PutIfAbsent stores the value only if the key has no value. It reports
	// whether the value was stored.
	PutIfAbsent(ctx context.Context, mapName, key string, value []byte) (bool, error)

	// Remove deletes the key, if present.
	Remove(ctx context.Context, mapName, key string) error

	// RemoveIf deletes the key only if its current value equals expected. It
	// reports whether the key was deleted.
	RemoveIf(ctx context.Context, mapName, key string, expected []byte) (bool, error)

	// Entries returns a snapshot of all entries of the map. The snapshot may
	// lag behind concurrent writers.
	Entries(ctx context.Context, mapName string) (map[string][]byte, error)
}

// Entry is a versioned record of a single key. Removed keys are kept as
// tombstones so that late replicas of older versions do not resurrect them.
type Entry struct {
	Map       string
	Key       string
	Value     []byte
	Version   uint64
	Tombstone bool
}

// Newer reports whether e supersedes other. Entries of the same version
// written by different replicas are ordered by content, tombstones first, so
// that every replica settles on the same one.
func (e Entry) Newer(other Entry) bool {
	if e.Version != other.Version {
		return e.Version > other.Version
	}

	if e.Tombstone != other.Tombstone {
		return e.Tombstone
	}

	return bytes.Compare(e.Value, other.Value) > 0
}
