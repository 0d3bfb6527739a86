package membership

import (
	"sort"
	"sync"

	"github.com/google/uuid"
)

// View is the locally observed set of alive members. It is updated from
// gossip events and read concurrently by every other component.
type View struct {
	mut     sync.RWMutex
	selfID  uuid.UUID
	members map[uuid.UUID]Member
}

func NewView(self Member) *View {
	return &View{
		selfID:  self.ID,
		members: map[uuid.UUID]Member{self.ID: self},
	}
}

func (v *View) SelfID() uuid.UUID {
	return v.selfID
}

func (v *View) Self() Member {
	v.mut.RLock()
	defer v.mut.RUnlock()

	return v.members[v.selfID]
}

// Put adds the member or replaces the known version of it.
func (v *View) Put(m Member) {
	v.mut.Lock()
	defer v.mut.Unlock()

	v.members[m.ID] = m
}

// Remove drops the member from the view. The local member is never removed.
func (v *View) Remove(id uuid.UUID) bool {
	if id == v.selfID {
		return false
	}

	v.mut.Lock()
	defer v.mut.Unlock()

	_, ok := v.members[id]
	delete(v.members, id)

	return ok
}

// Reset drops all members except the local one.
func (v *View) Reset() {
	v.mut.Lock()
	defer v.mut.Unlock()

	self := v.members[v.selfID]
	v.members = map[uuid.UUID]Member{v.selfID: self}
}

func (v *View) Member(id uuid.UUID) (Member, bool) {
	v.mut.RLock()
	defer v.mut.RUnlock()

	m, ok := v.members[id]

	return m, ok
}

func (v *View) Has(id uuid.UUID) bool {
	_, ok := v.Member(id)
	return ok
}

func (v *View) Len() int {
	v.mut.RLock()
	defer v.mut.RUnlock()

	return len(v.members)
}

// Members returns all known members ordered by join time, oldest first.
func (v *View) Members() []Member {
	v.mut.RLock()
	members := make([]Member, 0, len(v.members))

	for _, m := range v.members {
		members = append(members, m)
	}
	v.mut.RUnlock()

	sortMembers(members)

	return members
}

func (v *View) Select(s Selector) []Member {
	return Filter(v.Members(), s)
}

// Oldest returns the member that joined first. Ties are broken by ID.
func (v *View) Oldest() Member {
	return v.Members()[0]
}

func sortMembers(members []Member) {
	sort.Slice(members, func(i, j int) bool {
		ti, tj := members[i].JoinedAt(), members[j].JoinedAt()
		if !ti.Equal(tj) {
			return ti.Before(tj)
		}

		return members[i].ID.String() < members[j].ID.String()
	})
}
