package multierror

import (
	"fmt"
	"strings"
	"sync"
)

// Error combines several errors, each tagged with the key of the component
// that produced it. Keys are reported in the order they were first added.
type Error[K comparable] struct {
	mu   sync.Mutex
	keys []K
	errs map[K]error
}

// New creates an empty Error.
func New[K comparable]() *Error[K] {
	return &Error[K]{
		errs: make(map[K]error),
	}
}

// Add records err under the given key. Nil errors are ignored.
func (m *Error[K]) Add(key K, err error) {
	if err == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.errs[key]; !ok {
		m.keys = append(m.keys, key)
	}

	m.errs[key] = err
}

// Len returns the number of recorded errors.
func (m *Error[K]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.keys)
}

// Keys returns the keys of recorded errors in insertion order.
func (m *Error[K]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()

	keys := make([]K, len(m.keys))
	copy(keys, m.keys)

	return keys
}

// Get returns the error recorded under the key.
func (m *Error[K]) Get(key K) (error, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	err, ok := m.errs[key]

	return err, ok
}

// First returns the earliest recorded error, or nil.
func (m *Error[K]) First() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.keys) == 0 {
		return nil
	}

	return m.errs[m.keys[0]]
}

func (m *Error[K]) Error() string {
	m.mu.Lock()
	defer m.mu.Unlock()

	parts := make([]string, 0, len(m.keys))
	for _, k := range m.keys {
		parts = append(parts, fmt.Sprintf("%v: %s", k, m.errs[k]))
	}

	return strings.Join(parts, "; ")
}

// Unwrap exposes all recorded errors to errors.Is and errors.As.
func (m *Error[K]) Unwrap() []error {
	m.mu.Lock()
	defer m.mu.Unlock()

	errs := make([]error, 0, len(m.keys))
	for _, k := range m.keys {
		errs = append(errs, m.errs[k])
	}

	return errs
}

// Combined returns m if it holds at least one error, nil otherwise.
func (m *Error[K]) Combined() error {
	if m.Len() == 0 {
		return nil
	}

	return m
}
