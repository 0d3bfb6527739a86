package dispatch

//go:generate mockgen -source=facilities.go -destination=facilities_mock.go -package=dispatch

import (
	"context"

	"github.com/maxpoletaev/kluster/membership"
)

// Transport runs a task on a member and returns the encoded result.
type Transport interface {
	Execute(ctx context.Context, member membership.Member, task string, args []byte) ([]byte, error)
}

// Members is the membership view calls are resolved against.
type Members interface {
	Members() []membership.Member
}
