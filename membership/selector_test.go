package membership

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRoleIn(t *testing.T) {
	now := time.Now()
	web := newMember("web-1", RoleWeb, now)
	ce := newMember("ce-1", RoleComputeEngine, now)
	app := newMember("app-1", RoleApp, now)

	members := []Member{web, ce, app}

	assert.Equal(t, []Member{web, ce}, Filter(members, RoleIn(RoleWeb, RoleComputeEngine)))
	assert.Empty(t, Filter(members, RoleIn()))
	assert.Len(t, Filter(members, Any()), 3)
}

func TestCombinators(t *testing.T) {
	now := time.Now()
	web := newMember("web-1", RoleWeb, now)
	ce := newMember("ce-1", RoleComputeEngine, now)

	named := SelectorFunc(func(m Member) bool {
		return m.Name() == "web-1"
	})

	assert.True(t, And(RoleIn(RoleWeb), named).Select(web))
	assert.False(t, And(RoleIn(RoleComputeEngine), named).Select(web))
	assert.True(t, Or(RoleIn(RoleComputeEngine), named).Select(web))
	assert.False(t, Not(RoleIn(RoleWeb)).Select(web))
	assert.True(t, Not(RoleIn(RoleWeb)).Select(ce))
}
