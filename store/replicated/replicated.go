package replicated

import (
	"context"
	"fmt"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"github.com/twmb/murmur3"
	"golang.org/x/exp/slices"

	"github.com/maxpoletaev/kluster/membership"
	"github.com/maxpoletaev/kluster/store"
	"github.com/maxpoletaev/kluster/store/inmemory"
)

var _ store.Store = (*Store)(nil)

// Members is the membership view used to pick key owners.
type Members interface {
	Members() []membership.Member
	SelfID() uuid.UUID
	Len() int
}

// Remote executes store operations on another member.
type Remote interface {
	ExecStore(ctx context.Context, member membership.Member, op store.Op) (store.Result, error)
}

type Config struct {
	Members        Members
	Remote         Remote
	Logger         kitlog.Logger
	RetransmitMult int
}

func DefaultConfig() Config {
	return Config{
		Logger:         kitlog.NewNopLogger(),
		RetransmitMult: 3,
	}
}

// Store is a cluster-wide store.Store. Every key is owned by one member,
// chosen by rendezvous hashing over the current membership view. Operations
// run on the owner, which makes them atomic, and the owner gossips every
// change so that all members hold a copy. Every mutation is also copied to
// the key's successor before it is acknowledged, and an owner pulls the
// successor's copy before mutating, so the key survives the owner leaving
// and a new member taking the key over.
//
// There is no consensus: while members disagree about the view, two of them
// may act as owner of the same key.
type Store struct {
	local      *inmemory.Store
	members    Members
	remote     Remote
	logger     kitlog.Logger
	broadcasts *memberlist.TransmitLimitedQueue
}

func New(conf Config) *Store {
	s := &Store{
		local:   inmemory.New(),
		members: conf.Members,
		remote:  conf.Remote,
		logger:  conf.Logger,
	}

	s.broadcasts = &memberlist.TransmitLimitedQueue{
		NumNodes:       conf.Members.Len,
		RetransmitMult: conf.RetransmitMult,
	}

	s.local.OnChange(s.queueBroadcast)

	return s
}

// Owner returns the member responsible for the key.
func (s *Store) Owner(mapName, key string) membership.Member {
	return owner(s.members.Members(), mapName, key)
}

func owner(members []membership.Member, mapName, key string) membership.Member {
	ranked := rank(members, mapName, key)
	if len(ranked) == 0 {
		return membership.Member{}
	}

	return ranked[0]
}

// rank orders members by their rendezvous score for the key, best first. The
// second member is the one that takes over the key when the first leaves.
func rank(members []membership.Member, mapName, key string) []membership.Member {
	type scored struct {
		member membership.Member
		score  uint64
	}

	suffix := []byte(mapName + "\x00" + key)
	all := make([]scored, len(members))

	for i, m := range members {
		buf := make([]byte, 0, len(m.ID)+len(suffix))
		buf = append(buf, m.ID[:]...)
		buf = append(buf, suffix...)

		all[i] = scored{member: m, score: murmur3.Sum64(buf)}
	}

	slices.SortFunc(all, func(a, b scored) bool {
		return a.score > b.score
	})

	res := make([]membership.Member, len(all))
	for i, sc := range all {
		res[i] = sc.member
	}

	return res
}

// successor returns the member next in line for the key, other than self.
func (s *Store) successor(mapName, key string) (membership.Member, bool) {
	for _, m := range rank(s.members.Members(), mapName, key) {
		if m.ID != s.members.SelfID() {
			return m, true
		}
	}

	return membership.Member{}, false
}

func (s *Store) exec(ctx context.Context, op store.Op) (store.Result, error) {
	o := s.Owner(op.Map, op.Key)

	if o.ID == s.members.SelfID() {
		return s.serve(ctx, op)
	}

	res, err := s.remote.ExecStore(ctx, o, op)
	if err != nil {
		return store.Result{}, fmt.Errorf("forward %s to %s: %w", op.Kind, o, err)
	}

	return res, nil
}

// serve runs an operation as the owner of its key. Before a mutation the
// owner pulls the successor's copy of the key, which holds the latest
// version when ownership has just moved here. After a mutation the new
// version is copied to the successor before the caller is answered, so
// that it survives the owner leaving.
func (s *Store) serve(ctx context.Context, op store.Op) (store.Result, error) {
	if !mutates(op.Kind) {
		return store.Exec(ctx, s.local, op)
	}

	next, hasNext := s.successor(op.Map, op.Key)
	if hasNext {
		s.catchUp(ctx, next, op.Map, op.Key)
	}

	res, err := store.Exec(ctx, s.local, op)
	if err != nil {
		return res, err
	}

	if hasNext && res.OK {
		s.replicate(ctx, next, op.Map, op.Key)
	}

	return res, nil
}

func (s *Store) catchUp(ctx context.Context, from membership.Member, mapName, key string) {
	res, err := s.remote.ExecStore(ctx, from, store.Op{Kind: store.OpFetch, Map: mapName, Key: key})
	if err != nil {
		level.Warn(s.logger).Log("msg", "failed to fetch key from successor", "map", mapName, "key", key, "member", from, "err", err)
		return
	}

	if res.Found && s.local.Apply(res.Entry) {
		level.Debug(s.logger).Log("msg", "caught up key from successor", "map", mapName, "key", key, "version", res.Entry.Version)
	}
}

func (s *Store) replicate(ctx context.Context, to membership.Member, mapName, key string) {
	e, ok := s.local.Entry(mapName, key)
	if !ok {
		return
	}

	if _, err := s.remote.ExecStore(ctx, to, store.Op{Kind: store.OpApply, Map: mapName, Key: key, Entry: e}); err != nil {
		level.Warn(s.logger).Log("msg", "failed to copy key to successor", "map", mapName, "key", key, "member", to, "err", err)
	}
}

func mutates(kind store.OpKind) bool {
	switch kind {
	case store.OpPut, store.OpPutIfAbsent, store.OpRemove, store.OpRemoveIf:
		return true
	default:
		return false
	}
}

// ExecLocal applies an operation forwarded by another member.
func (s *Store) ExecLocal(ctx context.Context, op store.Op) (store.Result, error) {
	switch op.Kind {
	case store.OpFetch:
		e, ok := s.local.Entry(op.Map, op.Key)
		return store.Result{Entry: e, Found: ok}, nil
	case store.OpApply:
		return store.Result{OK: s.local.Apply(op.Entry)}, nil
	}

	if mutates(op.Kind) {
		level.Debug(s.logger).Log("msg", "applying forwarded operation", "op", op.Kind, "map", op.Map, "key", op.Key)
	}

	return s.serve(ctx, op)
}

// CollectTombstones drops local tombstones older than the given age.
func (s *Store) CollectTombstones(olderThan time.Duration) int {
	return s.local.CollectTombstones(olderThan)
}

func (s *Store) Get(ctx context.Context, mapName, key string) ([]byte, bool, error) {
	res, err := s.exec(ctx, store.Op{Kind: store.OpGet, Map: mapName, Key: key})
	return res.Value, res.Found, err
}

func (s *Store) Put(ctx context.Context, mapName, key string, value []byte) error {
	_, err := s.exec(ctx, store.Op{Kind: store.OpPut, Map: mapName, Key: key, Value: value})
	return err
}

func (s *Store) PutIfAbsent(ctx context.Context, mapName, key string, value []byte) (bool, error) {
	res, err := s.exec(ctx, store.Op{Kind: store.OpPutIfAbsent, Map: mapName, Key: key, Value: value})
	return res.OK, err
}

func (s *Store) Remove(ctx context.Context, mapName, key string) error {
	_, err := s.exec(ctx, store.Op{Kind: store.OpRemove, Map: mapName, Key: key})
	return err
}

func (s *Store) RemoveIf(ctx context.Context, mapName, key string, expected []byte) (bool, error) {
	res, err := s.exec(ctx, store.Op{Kind: store.OpRemoveIf, Map: mapName, Key: key, Expected: expected})
	return res.OK, err
}

// Entries reads the local copy of the map, which trails the owners by the
// gossip propagation delay.
func (s *Store) Entries(ctx context.Context, mapName string) (map[string][]byte, error) {
	return s.local.Entries(ctx, mapName)
}
