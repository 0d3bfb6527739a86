package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/kluster/store"
	"github.com/maxpoletaev/kluster/store/inmemory"
)

func TestExec(t *testing.T) {
	ctx := context.Background()
	s := inmemory.New()

	res, err := store.Exec(ctx, s, store.Op{Kind: store.OpPutIfAbsent, Map: "m", Key: "k", Value: []byte("a")})
	require.NoError(t, err)
	assert.True(t, res.OK)

	res, err = store.Exec(ctx, s, store.Op{Kind: store.OpGet, Map: "m", Key: "k"})
	require.NoError(t, err)
	assert.True(t, res.Found)
	assert.Equal(t, []byte("a"), res.Value)

	res, err = store.Exec(ctx, s, store.Op{Kind: store.OpRemoveIf, Map: "m", Key: "k", Expected: []byte("b")})
	require.NoError(t, err)
	assert.False(t, res.OK)

	res, err = store.Exec(ctx, s, store.Op{Kind: store.OpEntries, Map: "m"})
	require.NoError(t, err)
	assert.Len(t, res.Entries, 1)

	_, err = store.Exec(ctx, s, store.Op{Kind: 99})
	assert.ErrorIs(t, err, store.ErrUnknownOp)
}

func TestOpEncoding(t *testing.T) {
	op := store.Op{Kind: store.OpRemoveIf, Map: "__locks", Key: "job", Expected: []byte("token")}

	data, err := store.EncodeOp(op)
	require.NoError(t, err)

	decoded, err := store.DecodeOp(data)
	require.NoError(t, err)
	assert.Equal(t, op, decoded)
}
