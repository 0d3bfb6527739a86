package clustering

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"

	"github.com/maxpoletaev/kluster/membership"
	"github.com/maxpoletaev/kluster/store/replicated"
)

var (
	_ memberlist.Delegate      = (*delegate)(nil)
	_ memberlist.EventDelegate = (*delegate)(nil)
	_ memberlist.AliveDelegate = (*delegate)(nil)
)

// pushPullState is exchanged with a random member on every push/pull round.
type pushPullState struct {
	SenderID    uuid.UUID
	ClusterTime time.Time
	Entries     []byte
}

// delegate connects the gossip layer to the membership view, the replicated
// store and the cluster clock.
type delegate struct {
	meta   []byte
	view   *membership.View
	store  *replicated.Store
	clock  *clock
	logger kitlog.Logger
}

func memberFromNode(n *memberlist.Node) (membership.Member, error) {
	id, err := uuid.Parse(n.Name)
	if err != nil {
		return membership.Member{}, fmt.Errorf("node name %q is not a member id: %w", n.Name, err)
	}

	attrs, err := membership.DecodeMeta(n.Meta)
	if err != nil {
		return membership.Member{}, err
	}

	return membership.Member{
		ID:         id,
		Addr:       n.Address(),
		Attributes: attrs,
	}, nil
}

func (d *delegate) NodeMeta(limit int) []byte {
	if len(d.meta) > limit {
		// Checked at join time, never happens.
		panic(membership.ErrMetaTooLarge)
	}

	return d.meta
}

func (d *delegate) NotifyMsg(data []byte) {
	d.store.HandleMessage(data)
}

func (d *delegate) GetBroadcasts(overhead, limit int) [][]byte {
	return d.store.GetBroadcasts(overhead, limit)
}

func (d *delegate) LocalState(join bool) []byte {
	state := pushPullState{
		SenderID:    d.view.SelfID(),
		ClusterTime: d.clock.Now(),
		Entries:     d.store.LocalState(),
	}

	var buf bytes.Buffer

	if err := gob.NewEncoder(&buf).Encode(state); err != nil {
		level.Error(d.logger).Log("msg", "failed to encode push/pull state", "err", err)
		return nil
	}

	return buf.Bytes()
}

func (d *delegate) MergeRemoteState(data []byte, join bool) {
	var state pushPullState

	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&state); err != nil {
		level.Warn(d.logger).Log("msg", "dropping malformed push/pull state", "err", err)
		return
	}

	d.store.MergeRemoteState(state.Entries)

	if oldest := d.view.Oldest(); oldest.ID == state.SenderID {
		d.clock.sync(state.ClusterTime)
	}
}

// NotifyAlive rejects members that do not carry valid attributes or run a
// role that may not join.
func (d *delegate) NotifyAlive(n *memberlist.Node) error {
	m, err := memberFromNode(n)
	if err != nil {
		return err
	}

	if role := m.Role(); !role.Clusterable() {
		return fmt.Errorf("member %s runs role %q which cannot join the cluster", m, role)
	}

	return nil
}

func (d *delegate) NotifyJoin(n *memberlist.Node) {
	m, err := memberFromNode(n)
	if err != nil {
		level.Warn(d.logger).Log("msg", "ignoring member with invalid attributes", "node", n.Name, "err", err)
		return
	}

	if m.ID == d.view.SelfID() {
		return
	}

	d.view.Put(m)

	level.Info(d.logger).Log("msg", "member joined", "member", m, "addr", m.Addr)
}

func (d *delegate) NotifyLeave(n *memberlist.Node) {
	id, err := uuid.Parse(n.Name)
	if err != nil {
		return
	}

	if !d.view.Remove(id) {
		return
	}

	level.Info(d.logger).Log("msg", "member left", "node", n.Name, "addr", n.Address())

	// The oldest member may have changed, in which case the clock catches up
	// on the next exchange with the new one.
	if d.view.Oldest().ID == d.view.SelfID() {
		d.clock.reset()
	}
}

func (d *delegate) NotifyUpdate(n *memberlist.Node) {
	d.NotifyJoin(n)
}
