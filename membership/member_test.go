package membership

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMember(name string, role Role, joinedAt time.Time) Member {
	return Member{
		ID: uuid.New(),
		Attributes: NewAttributes(map[string]string{
			AttrNodeName:    name,
			AttrProcessRole: string(role),
			AttrJoinedAt:    joinedAt.Format(time.RFC3339Nano),
		}),
	}
}

func TestAttributes_SortedLookup(t *testing.T) {
	attrs := NewAttributes(map[string]string{
		AttrProcessRole: "web",
		AttrNodeName:    "node-1",
		AttrRPCAddr:     "10.0.0.1:9004",
	})

	require.Len(t, attrs, 3)
	assert.Equal(t, AttrNodeName, attrs[0].Key)

	v, ok := attrs.Get(AttrRPCAddr)
	assert.True(t, ok)
	assert.Equal(t, "10.0.0.1:9004", v)

	_, ok = attrs.Get("MISSING")
	assert.False(t, ok)
}

func TestMeta_RoundTrip(t *testing.T) {
	m := newMember("node-1", RoleComputeEngine, time.Unix(100, 0).UTC())

	data, err := EncodeMeta(m.Attributes)
	require.NoError(t, err)

	attrs, err := DecodeMeta(data)
	require.NoError(t, err)

	decoded := Member{ID: m.ID, Attributes: attrs}
	assert.Equal(t, "node-1", decoded.Name())
	assert.Equal(t, RoleComputeEngine, decoded.Role())
	assert.True(t, decoded.JoinedAt().Equal(time.Unix(100, 0)))
}

func TestMeta_TooLarge(t *testing.T) {
	attrs := NewAttributes(map[string]string{
		AttrNodeName: strings.Repeat("x", MetaMaxSize),
	})

	_, err := EncodeMeta(attrs)
	assert.ErrorIs(t, err, ErrMetaTooLarge)
}

func TestRole_Clusterable(t *testing.T) {
	assert.True(t, RoleApp.Clusterable())
	assert.True(t, RoleWeb.Clusterable())
	assert.True(t, RoleComputeEngine.Clusterable())
	assert.False(t, RoleSearch.Clusterable())
	assert.False(t, Role("").Clusterable())

	_, err := ParseRole("bogus")
	assert.Error(t, err)
}
