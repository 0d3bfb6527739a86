package clustering

import (
	"context"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/membership"
	"github.com/maxpoletaev/kluster/noderpc"
	"github.com/maxpoletaev/kluster/store"
	"github.com/maxpoletaev/kluster/store/replicated"
)

var (
	_ dispatch.Transport = (*transport)(nil)
	_ replicated.Remote  = (*transport)(nil)
)

// transport runs tasks on the local registry for self and over the node
// service for everyone else.
type transport struct {
	selfID uuid.UUID
	tasks  *dispatch.Registry
	conns  *noderpc.ConnRegistry
}

func (t *transport) Execute(ctx context.Context, m membership.Member, task string, args []byte) ([]byte, error) {
	if m.ID == t.selfID {
		return t.tasks.Execute(ctx, task, args)
	}

	conn, err := t.conns.Get(ctx, m.ID)
	if err != nil {
		return nil, err
	}

	return conn.Execute(ctx, task, args)
}

func (t *transport) ExecStore(ctx context.Context, m membership.Member, op store.Op) (store.Result, error) {
	conn, err := t.conns.Get(ctx, m.ID)
	if err != nil {
		return store.Result{}, err
	}

	return conn.Store(ctx, op)
}
