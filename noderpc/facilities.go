package noderpc

//go:generate mockgen -source=facilities.go -destination=facilities_mock.go -package=noderpc

import (
	"context"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/membership"
	"github.com/maxpoletaev/kluster/store"
)

// Conn is a connection to the node service of another member.
type Conn interface {
	Store(ctx context.Context, op store.Op) (store.Result, error)
	Execute(ctx context.Context, name string, args []byte) ([]byte, error)
	IsClosed() bool
	Close() error
}

// Dialer establishes connections to members.
type Dialer interface {
	DialContext(ctx context.Context, addr string) (Conn, error)
}

// Members resolves member IDs to their advertised addresses.
type Members interface {
	Member(id uuid.UUID) (membership.Member, bool)
	Has(id uuid.UUID) bool
}
