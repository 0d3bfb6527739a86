package lockmap

import "sync"

type entry struct {
	mu   sync.Mutex
	refs int
}

// Map hands out one mutex per key. Mutexes are created on first use and
// dropped once nobody holds or waits for them.
type Map[K comparable] struct {
	mut   sync.Mutex
	locks map[K]*entry
}

func New[K comparable]() *Map[K] {
	return &Map[K]{
		locks: make(map[K]*entry),
	}
}

func (lm *Map[K]) Lock(key K) {
	lm.mut.Lock()

	e, ok := lm.locks[key]
	if !ok {
		e = &entry{}
		lm.locks[key] = e
	}

	e.refs++
	lm.mut.Unlock()

	e.mu.Lock()
}

func (lm *Map[K]) Unlock(key K) {
	lm.mut.Lock()
	defer lm.mut.Unlock()

	e, ok := lm.locks[key]
	if !ok {
		panic("lockmap: unlock of unlocked key")
	}

	e.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(lm.locks, key)
	}
}

// Len returns the number of keys currently locked or awaited.
func (lm *Map[K]) Len() int {
	lm.mut.Lock()
	defer lm.mut.Unlock()

	return len(lm.locks)
}
