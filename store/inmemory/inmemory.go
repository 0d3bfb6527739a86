package inmemory

import (
	"bytes"
	"context"
	"sync"
	"time"

	"github.com/maxpoletaev/kluster/internal/lockmap"
	"github.com/maxpoletaev/kluster/store"
)

var _ store.Store = (*Store)(nil)

type entryKey struct {
	mapName string
	key     string
}

// Store is a single-process versioned implementation of store.Store. It is
// the local replica used by the replicated store, and a standalone store for
// single-node deployments and tests.
type Store struct {
	mut      sync.RWMutex
	maps     map[string]map[string]store.Entry
	locks    *lockmap.Map[entryKey]
	clock    uint64
	onChange func(store.Entry)

	// graves records when each tombstone was written or received.
	graves map[entryKey]time.Time
}

func New() *Store {
	return &Store{
		maps:   make(map[string]map[string]store.Entry),
		locks:  lockmap.New[entryKey](),
		graves: make(map[entryKey]time.Time),
	}
}

// OnChange registers a callback invoked after every local mutation with the
// resulting entry. Entries received through Apply do not trigger it.
func (s *Store) OnChange(fn func(store.Entry)) {
	s.mut.Lock()
	s.onChange = fn
	s.mut.Unlock()
}

func (s *Store) load(mapName, key string) (store.Entry, bool) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	e, ok := s.maps[mapName][key]

	return e, ok
}

// write stores a new version of the key. Must be called with the key locked.
func (s *Store) write(prev store.Entry, mapName, key string, value []byte, tombstone bool) store.Entry {
	s.mut.Lock()

	version := s.clock
	if prev.Version > version {
		version = prev.Version
	}

	version++
	s.clock = version

	e := store.Entry{
		Map:       mapName,
		Key:       key,
		Value:     clone(value),
		Version:   version,
		Tombstone: tombstone,
	}

	m, ok := s.maps[mapName]
	if !ok {
		m = make(map[string]store.Entry)
		s.maps[mapName] = m
	}

	m[key] = e
	s.trackGrave(e)
	notify := s.onChange
	s.mut.Unlock()

	if notify != nil {
		notify(e)
	}

	return e
}

func (s *Store) Get(_ context.Context, mapName, key string) ([]byte, bool, error) {
	e, ok := s.load(mapName, key)
	if !ok || e.Tombstone {
		return nil, false, nil
	}

	return clone(e.Value), true, nil
}

func (s *Store) Put(_ context.Context, mapName, key string, value []byte) error {
	k := entryKey{mapName, key}
	s.locks.Lock(k)
	defer s.locks.Unlock(k)

	prev, _ := s.load(mapName, key)
	s.write(prev, mapName, key, value, false)

	return nil
}

func (s *Store) PutIfAbsent(_ context.Context, mapName, key string, value []byte) (bool, error) {
	k := entryKey{mapName, key}
	s.locks.Lock(k)
	defer s.locks.Unlock(k)

	prev, ok := s.load(mapName, key)
	if ok && !prev.Tombstone {
		return false, nil
	}

	s.write(prev, mapName, key, value, false)

	return true, nil
}

func (s *Store) Remove(_ context.Context, mapName, key string) error {
	k := entryKey{mapName, key}
	s.locks.Lock(k)
	defer s.locks.Unlock(k)

	prev, ok := s.load(mapName, key)
	if !ok || prev.Tombstone {
		return nil
	}

	s.write(prev, mapName, key, nil, true)

	return nil
}

func (s *Store) RemoveIf(_ context.Context, mapName, key string, expected []byte) (bool, error) {
	k := entryKey{mapName, key}
	s.locks.Lock(k)
	defer s.locks.Unlock(k)

	prev, ok := s.load(mapName, key)
	if !ok || prev.Tombstone || !bytes.Equal(prev.Value, expected) {
		return false, nil
	}

	s.write(prev, mapName, key, nil, true)

	return true, nil
}

func (s *Store) Entries(_ context.Context, mapName string) (map[string][]byte, error) {
	s.mut.RLock()
	defer s.mut.RUnlock()

	res := make(map[string][]byte, len(s.maps[mapName]))

	for k, e := range s.maps[mapName] {
		if !e.Tombstone {
			res[k] = clone(e.Value)
		}
	}

	return res, nil
}

// Apply merges an entry produced by another replica. The entry is kept only
// if it is newer than the local version. It reports whether it was kept.
func (s *Store) Apply(e store.Entry) bool {
	k := entryKey{e.Map, e.Key}
	s.locks.Lock(k)
	defer s.locks.Unlock(k)

	s.mut.Lock()
	defer s.mut.Unlock()

	if e.Version > s.clock {
		s.clock = e.Version
	}

	m, ok := s.maps[e.Map]
	if !ok {
		m = make(map[string]store.Entry)
		s.maps[e.Map] = m
	}

	if cur, ok := m[e.Key]; ok && !e.Newer(cur) {
		return false
	}

	e.Value = clone(e.Value)
	m[e.Key] = e
	s.trackGrave(e)

	return true
}

// Entry returns the versioned record of the key, tombstone included.
func (s *Store) Entry(mapName, key string) (store.Entry, bool) {
	e, ok := s.load(mapName, key)
	if ok {
		e.Value = clone(e.Value)
	}

	return e, ok
}

// trackGrave must be called with s.mut held.
func (s *Store) trackGrave(e store.Entry) {
	k := entryKey{e.Map, e.Key}

	if e.Tombstone {
		s.graves[k] = time.Now()
	} else {
		delete(s.graves, k)
	}
}

// CollectTombstones forgets tombstones older than the given age and returns
// how many were dropped. The age must exceed the time it takes for a removal
// to reach every replica, or a late copy of the removed value may come back.
func (s *Store) CollectTombstones(olderThan time.Duration) int {
	s.mut.Lock()
	defer s.mut.Unlock()

	cutoff := time.Now().Add(-olderThan)
	collected := 0

	for k, at := range s.graves {
		if at.After(cutoff) {
			continue
		}

		delete(s.graves, k)

		m := s.maps[k.mapName]
		if e, ok := m[k.key]; ok && e.Tombstone {
			delete(m, k.key)
			collected++
		}

		if len(m) == 0 {
			delete(s.maps, k.mapName)
		}
	}

	return collected
}

// Snapshot returns every entry, tombstones included.
func (s *Store) Snapshot() []store.Entry {
	s.mut.RLock()
	defer s.mut.RUnlock()

	var entries []store.Entry

	for _, m := range s.maps {
		for _, e := range m {
			entries = append(entries, e)
		}
	}

	return entries
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}

	c := make([]byte, len(b))
	copy(c, b)

	return c
}
