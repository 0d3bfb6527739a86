package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestView_OrderedByJoinTime(t *testing.T) {
	base := time.Now()
	self := newMember("self", RoleWeb, base.Add(2*time.Second))
	old := newMember("old", RoleComputeEngine, base)
	mid := newMember("mid", RoleApp, base.Add(time.Second))

	v := NewView(self)
	v.Put(mid)
	v.Put(old)

	members := v.Members()
	require.Len(t, members, 3)
	assert.Equal(t, []string{"old", "mid", "self"}, []string{members[0].Name(), members[1].Name(), members[2].Name()})
	assert.Equal(t, old.ID, v.Oldest().ID)
}

func TestView_RemoveKeepsSelf(t *testing.T) {
	self := newMember("self", RoleWeb, time.Now())
	other := newMember("other", RoleWeb, time.Now())

	v := NewView(self)
	v.Put(other)

	assert.False(t, v.Remove(self.ID))
	assert.True(t, v.Remove(other.ID))
	assert.False(t, v.Has(other.ID))
	assert.Equal(t, 1, v.Len())

	v.Put(other)
	v.Reset()
	assert.Equal(t, []Member{self}, v.Members())
}

func TestView_Select(t *testing.T) {
	self := newMember("self", RoleWeb, time.Now())
	ce := newMember("ce", RoleComputeEngine, time.Now())

	v := NewView(self)
	v.Put(ce)

	selected := v.Select(RoleIn(RoleComputeEngine))
	require.Len(t, selected, 1)
	assert.Equal(t, ce.ID, selected[0].ID)
}
