package clustering

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxpoletaev/kluster/shared"
	"github.com/maxpoletaev/kluster/store/inmemory"
)

func newTestAppStates(n int) []*AppState {
	s := inmemory.New()
	states := make([]*AppState, n)

	for i := range states {
		states[i] = NewAppState(s, uuid.New(), "node", shared.WithPollInterval(time.Millisecond))
	}

	return states
}

func TestAppState_Operational(t *testing.T) {
	ctx := context.Background()
	states := newTestAppStates(2)

	ok, err := states[0].IsOperational(ctx, states[0].selfID)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, states[0].SetOperational(ctx))

	ok, err = states[1].IsOperational(ctx, states[0].selfID)
	require.NoError(t, err)
	assert.True(t, ok)

	members, err := states[1].OperationalMembers(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[uuid.UUID]string{states[0].selfID: "node"}, members)

	require.NoError(t, states[0].Forget(ctx))

	ok, err = states[1].IsOperational(ctx, states[0].selfID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestAppState_SingleLeader(t *testing.T) {
	ctx := context.Background()
	states := newTestAppStates(3)

	won, err := states[1].TryToLockWebLeader(ctx)
	require.NoError(t, err)
	assert.True(t, won)

	for _, i := range []int{0, 2} {
		won, err := states[i].TryToLockWebLeader(ctx)
		require.NoError(t, err)
		assert.False(t, won)
	}

	leader, ok, err := states[0].Leader(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, states[1].selfID, leader)

	resigned, err := states[0].ResignLeader(ctx)
	require.NoError(t, err)
	assert.False(t, resigned, "only the leader can resign")

	resigned, err = states[1].ResignLeader(ctx)
	require.NoError(t, err)
	assert.True(t, resigned)

	won, err = states[2].TryToLockWebLeader(ctx)
	require.NoError(t, err)
	assert.True(t, won)
}

func TestAppState_RegisterClusterName(t *testing.T) {
	ctx := context.Background()
	states := newTestAppStates(2)

	require.NoError(t, states[0].RegisterClusterName(ctx, "prod"))
	require.NoError(t, states[1].RegisterClusterName(ctx, "prod"))

	err := states[1].RegisterClusterName(ctx, "staging")
	assert.ErrorIs(t, err, ErrClusterNameMismatch)
}

func TestAppState_RegisterPlatformVersion(t *testing.T) {
	ctx := context.Background()
	states := newTestAppStates(2)

	require.NoError(t, states[0].RegisterPlatformVersion(ctx, "10.4"))

	err := states[1].RegisterPlatformVersion(ctx, "10.5")
	assert.ErrorIs(t, err, ErrVersionMismatch)
}

func TestAppState_WorkerIDs(t *testing.T) {
	ctx := context.Background()
	states := newTestAppStates(2)

	require.NoError(t, states[0].SetWorkerIDs(ctx, []string{"w1", "w2"}))
	require.NoError(t, states[1].SetWorkerIDs(ctx, []string{"w3"}))

	ids, err := states[0].WorkerIDs(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string][]string{
		states[0].selfID.String(): {"w1", "w2"},
		states[1].selfID.String(): {"w3"},
	}, ids)
}
