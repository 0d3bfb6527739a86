package noderpc

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/maxpoletaev/kluster/internal/generic"
)

var ErrUnknownMember = errors.New("member not found")

const DefaultConnectTimeout = 5 * time.Second

// ConnRegistry keeps one connection per member, dialing on first use.
type ConnRegistry struct {
	mut            sync.RWMutex
	connections    map[uuid.UUID]Conn
	inProgress     generic.SyncMap[uuid.UUID, chan struct{}]
	members        Members
	dialer         Dialer
	connectTimeout time.Duration
}

func NewConnRegistry(members Members, dialer Dialer) *ConnRegistry {
	return &ConnRegistry{
		connections:    make(map[uuid.UUID]Conn),
		connectTimeout: DefaultConnectTimeout,
		members:        members,
		dialer:         dialer,
	}
}

func (r *ConnRegistry) get(id uuid.UUID) (Conn, bool) {
	r.mut.RLock()

	conn, ok := r.connections[id]
	if !ok {
		r.mut.RUnlock()
		return nil, false
	}

	// Closed connections are not usable and have to be removed under the write lock.
	if conn.IsClosed() {
		r.mut.RUnlock()
		r.mut.Lock()

		// A new connection might have been created while we were waiting for the lock.
		if conn, ok := r.connections[id]; ok && !conn.IsClosed() {
			r.mut.Unlock()
			return conn, true
		}

		delete(r.connections, id)
		r.mut.Unlock()

		return nil, false
	}

	r.mut.RUnlock()

	return conn, true
}

func (r *ConnRegistry) connect(ctx context.Context, id uuid.UUID) (Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, r.connectTimeout)
	defer cancel()

	var retry bool

	for {
		c := make(chan struct{})

		done, loaded := r.inProgress.LoadOrStore(id, c)

		// Another goroutine is already dialing the member. Wait for it to
		// finish or for the context to expire.
		if loaded {
			close(c)

			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			r.mut.RLock()

			if conn, ok := r.connections[id]; ok {
				r.mut.RUnlock()
				return conn, nil
			}

			r.mut.RUnlock()

			// The other goroutine failed to connect. Make one more attempt.
			if !retry {
				retry = true
				continue
			}

			return nil, fmt.Errorf("failed to connect in another goroutine")
		}

		return r.dial(ctx, id, done)
	}
}

func (r *ConnRegistry) dial(ctx context.Context, id uuid.UUID, done chan struct{}) (Conn, error) {
	defer r.inProgress.Delete(id)
	defer close(done)

	member, ok := r.members.Member(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownMember, id)
	}

	addr := member.RPCAddr()

	conn, err := r.dialer.DialContext(ctx, addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", addr, err)
	}

	r.mut.Lock()
	defer r.mut.Unlock()

	// Keep the connection added while we were dialing, if any.
	if old, ok := r.connections[id]; ok && !old.IsClosed() {
		_ = conn.Close()
		return old, nil
	}

	r.connections[id] = conn

	return conn, nil
}

// Get returns a connection to the member with the given ID, dialing it if
// there is none yet.
func (r *ConnRegistry) Get(ctx context.Context, id uuid.UUID) (Conn, error) {
	if conn, ok := r.get(id); ok {
		return conn, nil
	}

	return r.connect(ctx, id)
}

// Put adds a connection to the registry, closing the previous one.
func (r *ConnRegistry) Put(id uuid.UUID, conn Conn) {
	r.mut.Lock()
	defer r.mut.Unlock()

	if old, ok := r.connections[id]; ok && old != conn {
		_ = old.Close()
	}

	r.connections[id] = conn
}

// CollectGarbage closes and removes the connections that are closed or
// belong to members that are no longer in the cluster.
func (r *ConnRegistry) CollectGarbage() {
	r.mut.Lock()
	defer r.mut.Unlock()

	for id, conn := range r.connections {
		if !r.members.Has(id) {
			_ = conn.Close()
		}

		if conn.IsClosed() {
			delete(r.connections, id)
		}
	}
}

// Close closes every connection.
func (r *ConnRegistry) Close() {
	r.mut.Lock()
	defer r.mut.Unlock()

	for id, conn := range r.connections {
		_ = conn.Close()
		delete(r.connections, id)
	}
}
