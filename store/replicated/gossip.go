package replicated

import (
	"github.com/go-kit/log/level"
	"github.com/hashicorp/memberlist"

	"github.com/maxpoletaev/kluster/store"
)

type entryBroadcast struct {
	entry store.Entry
	msg   []byte
}

var _ memberlist.Broadcast = (*entryBroadcast)(nil)

// Invalidates drops queued broadcasts of older versions of the same key.
func (b *entryBroadcast) Invalidates(other memberlist.Broadcast) bool {
	o, ok := other.(*entryBroadcast)
	if !ok {
		return false
	}

	return o.entry.Map == b.entry.Map &&
		o.entry.Key == b.entry.Key &&
		o.entry.Version <= b.entry.Version
}

func (b *entryBroadcast) Message() []byte {
	return b.msg
}

func (b *entryBroadcast) Finished() {}

func (s *Store) queueBroadcast(e store.Entry) {
	msg, err := store.EncodeEntries([]store.Entry{e})
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to encode entry", "map", e.Map, "key", e.Key, "err", err)
		return
	}

	s.broadcasts.QueueBroadcast(&entryBroadcast{entry: e, msg: msg})
}

// GetBroadcasts returns queued entry updates that fit into the limit.
func (s *Store) GetBroadcasts(overhead, limit int) [][]byte {
	return s.broadcasts.GetBroadcasts(overhead, limit)
}

// PendingBroadcasts returns the number of queued entry updates.
func (s *Store) PendingBroadcasts() int {
	return s.broadcasts.NumQueued()
}

// HandleMessage applies entry updates gossiped by other members.
func (s *Store) HandleMessage(data []byte) {
	entries, err := store.DecodeEntries(data)
	if err != nil {
		level.Warn(s.logger).Log("msg", "dropping malformed entry update", "err", err)
		return
	}

	s.merge(entries)
}

// LocalState encodes the full local copy for a push/pull exchange.
func (s *Store) LocalState() []byte {
	data, err := store.EncodeEntries(s.local.Snapshot())
	if err != nil {
		level.Error(s.logger).Log("msg", "failed to encode local state", "err", err)
		return nil
	}

	return data
}

// MergeRemoteState merges a copy received in a push/pull exchange.
func (s *Store) MergeRemoteState(data []byte) {
	if len(data) == 0 {
		return
	}

	entries, err := store.DecodeEntries(data)
	if err != nil {
		level.Warn(s.logger).Log("msg", "dropping malformed remote state", "err", err)
		return
	}

	s.merge(entries)
}

func (s *Store) merge(entries []store.Entry) {
	applied := 0

	for _, e := range entries {
		if s.local.Apply(e) {
			applied++
		}
	}

	if applied > 0 {
		level.Debug(s.logger).Log("msg", "merged remote entries", "received", len(entries), "applied", applied)
	}
}
