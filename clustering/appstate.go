package clustering

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/shared"
	"github.com/maxpoletaev/kluster/store"
)

var (
	ErrClusterNameMismatch = errors.New("member is configured with another cluster name")
	ErrVersionMismatch     = errors.New("member runs another platform version")
)

// AppState is the shared state the platform components coordinate through:
// which members are operational, who leads, and the cluster-wide settings
// every member has to agree on.
type AppState struct {
	selfID      uuid.UUID
	selfName    string
	operational *shared.Map[string]
	workers     *shared.Map[[]string]
	leader      *shared.Reference[uuid.UUID]
	clusterName *shared.Reference[string]
	version     *shared.Reference[string]
}

func NewAppState(s store.Store, selfID uuid.UUID, selfName string, opts ...shared.LockOption) *AppState {
	return &AppState{
		selfID:      selfID,
		selfName:    selfName,
		operational: shared.NewMap[string](s, OperationalProcesses),
		workers:     shared.NewMap[[]string](s, WorkerIDs),
		leader:      shared.NewReference[uuid.UUID](s, Leader, opts...),
		clusterName: shared.NewReference[string](s, ClusterName, opts...),
		version:     shared.NewReference[string](s, PlatformVersion, opts...),
	}
}

// AppState returns the shared platform state seen by this member.
func (n *Node) AppState() *AppState {
	return NewAppState(n.store, n.self.ID, n.self.Name(), shared.WithPollInterval(n.conf.LockPollInterval))
}

// SetOperational marks this member as done starting up.
func (a *AppState) SetOperational(ctx context.Context) error {
	return a.operational.Put(ctx, a.selfID.String(), a.selfName)
}

// IsOperational reports whether the member finished starting up.
func (a *AppState) IsOperational(ctx context.Context, id uuid.UUID) (bool, error) {
	_, ok, err := a.operational.Get(ctx, id.String())
	return ok, err
}

// OperationalMembers returns the names of operational members keyed by ID.
func (a *AppState) OperationalMembers(ctx context.Context) (map[uuid.UUID]string, error) {
	entries, err := a.operational.Entries(ctx)
	if err != nil && len(entries) == 0 {
		return nil, err
	}

	res := make(map[uuid.UUID]string, len(entries))

	for key, name := range entries {
		id, parseErr := uuid.Parse(key)
		if parseErr != nil {
			continue
		}

		res[id] = name
	}

	return res, err
}

// TryToLockWebLeader makes this member the leader if there is none yet.
func (a *AppState) TryToLockWebLeader(ctx context.Context) (bool, error) {
	self := a.selfID
	return a.leader.CompareAndSet(ctx, nil, &self)
}

// Leader returns the ID of the leader, if elected.
func (a *AppState) Leader(ctx context.Context) (uuid.UUID, bool, error) {
	return a.leader.Get(ctx)
}

// ResignLeader gives up leadership if this member holds it.
func (a *AppState) ResignLeader(ctx context.Context) (bool, error) {
	self := a.selfID
	return a.leader.CompareAndSet(ctx, &self, nil)
}

// RegisterClusterName records the cluster name on first use and fails if the
// cluster already runs under another one.
func (a *AppState) RegisterClusterName(ctx context.Context, name string) error {
	return registerOnce(ctx, a.clusterName, name, ErrClusterNameMismatch)
}

// RegisterPlatformVersion records the version on first use and fails if the
// cluster already runs another one.
func (a *AppState) RegisterPlatformVersion(ctx context.Context, version string) error {
	return registerOnce(ctx, a.version, version, ErrVersionMismatch)
}

func registerOnce(ctx context.Context, ref *shared.Reference[string], value string, mismatch error) error {
	if _, err := ref.CompareAndSet(ctx, nil, &value); err != nil {
		return err
	}

	cur, ok, err := ref.Get(ctx)
	if err != nil {
		return err
	}

	if ok && cur != value {
		return fmt.Errorf("%w: expected %q, got %q", mismatch, cur, value)
	}

	return nil
}

// SetWorkerIDs publishes the IDs of the workers run by this member.
func (a *AppState) SetWorkerIDs(ctx context.Context, ids []string) error {
	return a.workers.Put(ctx, a.selfID.String(), ids)
}

// WorkerIDs returns the worker IDs published by every member.
func (a *AppState) WorkerIDs(ctx context.Context) (map[string][]string, error) {
	return a.workers.Entries(ctx)
}

// Forget removes what this member published, on shutdown.
func (a *AppState) Forget(ctx context.Context) error {
	if err := a.operational.Remove(ctx, a.selfID.String()); err != nil {
		return err
	}

	return a.workers.Remove(ctx, a.selfID.String())
}
