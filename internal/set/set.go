package set

import "golang.org/x/exp/maps"

type Set[T comparable] map[T]struct{}

func New[T comparable](vals ...T) Set[T] {
	s := make(Set[T], len(vals))
	for _, v := range vals {
		s[v] = struct{}{}
	}

	return s
}

// Add adds the value and reports whether it was not in the set before.
func (s Set[T]) Add(val T) bool {
	if _, ok := s[val]; ok {
		return false
	}

	s[val] = struct{}{}

	return true
}

func (s Set[T]) Has(val T) bool {
	_, ok := s[val]
	return ok
}

func (s Set[T]) Remove(val T) {
	delete(s, val)
}

// Values returns the values in no particular order.
func (s Set[T]) Values() []T {
	return maps.Keys(s)
}

// Difference returns the values of s that are not in other.
func (s Set[T]) Difference(other Set[T]) Set[T] {
	res := make(Set[T])

	for v := range s {
		if !other.Has(v) {
			res[v] = struct{}{}
		}
	}

	return res
}

func (s Set[T]) Equals(other Set[T]) bool {
	if len(s) != len(other) {
		return false
	}

	for v := range s {
		if !other.Has(v) {
			return false
		}
	}

	return true
}
