package shared

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/kluster/store/inmemory"
)

type process struct {
	Role        string
	Operational bool
}

func TestMap_Typed(t *testing.T) {
	ctx := context.Background()
	m := NewMap[process](inmemory.New(), "processes")

	require.NoError(t, m.Put(ctx, "web-1", process{Role: "web", Operational: true}))

	ok, err := m.PutIfAbsent(ctx, "web-1", process{Role: "web"})
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = m.PutIfAbsent(ctx, "ce-1", process{Role: "ce"})
	require.NoError(t, err)
	assert.True(t, ok)

	p, found, err := m.Get(ctx, "web-1")
	require.NoError(t, err)
	assert.True(t, found)
	assert.True(t, p.Operational)

	entries, err := m.Entries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
	assert.Equal(t, "ce", entries["ce-1"].Role)

	require.NoError(t, m.Remove(ctx, "ce-1"))

	_, found, err = m.Get(ctx, "ce-1")
	require.NoError(t, err)
	assert.False(t, found)
}
