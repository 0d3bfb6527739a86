package main

import (
	"context"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/clustering"
	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/internal/set"
	"github.com/maxpoletaev/kluster/membership"
)

// runCleanupJob periodically removes the shared state left behind by members
// that are gone. Only one member in the cluster runs it at a time.
func runCleanupJob(ctx context.Context, node *clustering.Node, logger kitlog.Logger, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cleanup(ctx, node, logger)
		}
	}
}

func cleanup(ctx context.Context, node *clustering.Node, logger kitlog.Logger) {
	lock := node.Lock(clustering.CleanupJobLock)

	ok, err := lock.TryLock(ctx)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to take cleanup lock", "err", err)
		return
	}

	if !ok {
		level.Debug(logger).Log("msg", "cleanup is running elsewhere")
		return
	}

	defer func() {
		if err := lock.Unlock(context.WithoutCancel(ctx)); err != nil {
			level.Warn(logger).Log("msg", "failed to release cleanup lock", "err", err)
		}
	}()

	operational, err := node.AppState().OperationalMembers(ctx)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to list operational members", "err", err)
		return
	}

	alive := set.New(node.MemberIDs()...)
	listed := set.New[uuid.UUID]()

	for id := range operational {
		listed.Add(id)
	}

	operationalMap := clustering.ReplicatedMap[string](node, clustering.OperationalProcesses)
	removed := 0

	for id := range listed.Difference(alive) {
		if err := operationalMap.Remove(ctx, id.String()); err != nil {
			level.Warn(logger).Log("msg", "failed to remove stale member", "id", id, "err", err)
			continue
		}

		removed++
	}

	// Log a summary of the cluster as seen by every member.
	answer, err := dispatch.Call[clustering.NodeInfo](ctx, node.Dispatcher(), clustering.NodeInfoTask{}, membership.Any(), 5*time.Second)
	if err != nil {
		level.Warn(logger).Log("msg", "failed to collect node info", "err", err)
		return
	}

	if err := answer.PropagateErrors(); err != nil {
		level.Warn(logger).Log("msg", "some members did not report", "err", err)
	}

	level.Info(logger).Log("msg", "cleanup done", "removed", removed, "reporting", len(answer.Answers()))
}
