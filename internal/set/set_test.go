package set

import (
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSet_Add(t *testing.T) {
	s := New[string]()

	assert.True(t, s.Add("a"))
	assert.False(t, s.Add("a"))
	assert.True(t, s.Has("a"))
	assert.False(t, s.Has("b"))

	s.Remove("a")
	assert.False(t, s.Has("a"))
}

func TestSet_Difference(t *testing.T) {
	s1 := New(1, 2, 3, 4)
	s2 := New(3, 4, 5)

	assert.Equal(t, New(1, 2), s1.Difference(s2))
	assert.Equal(t, New(5), s2.Difference(s1))
	assert.Empty(t, s1.Difference(s1))
}

func TestSet_Values(t *testing.T) {
	vals := New(3, 1, 2).Values()
	sort.Ints(vals)

	assert.Equal(t, []int{1, 2, 3}, vals)
}

func TestEquals(t *testing.T) {
	assert.True(t, New(1, 2, 3).Equals(New(1, 2, 3)))
	assert.True(t, New(1, 2, 3).Equals(New(3, 2, 1)))
	assert.True(t, New(1, 1, 1).Equals(New(1)))
	assert.True(t, New[int]().Equals(New[int]()))
	assert.False(t, New(1, 2, 3).Equals(New(1, 2)))
	assert.False(t, New(1, 2).Equals(New(1, 2, 3)))
	assert.False(t, New(1).Equals(New(2)))
}
