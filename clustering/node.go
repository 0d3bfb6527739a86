package clustering

import (
	"bytes"
	"context"
	"fmt"
	stdlog "log"
	"net"
	"strconv"
	"sync"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/uuid"
	"github.com/hashicorp/memberlist"
	"golang.org/x/exp/slices"
	"google.golang.org/grpc"

	"github.com/maxpoletaev/kluster/discovery"
	"github.com/maxpoletaev/kluster/dispatch"
	"github.com/maxpoletaev/kluster/internal/multierror"
	"github.com/maxpoletaev/kluster/membership"
	"github.com/maxpoletaev/kluster/noderpc"
	"github.com/maxpoletaev/kluster/shared"
	"github.com/maxpoletaev/kluster/store"
	"github.com/maxpoletaev/kluster/store/replicated"
)

// Node is the handle of a process that joined the cluster.
type Node struct {
	conf   Config
	self   membership.Member
	view   *membership.View
	clock  *clock
	logger kitlog.Logger

	store      *replicated.Store
	tasks      *dispatch.Registry
	dispatcher *dispatch.Dispatcher
	conns      *noderpc.ConnRegistry
	grpcServer *grpc.Server
	ml         *memberlist.Memberlist

	wg        sync.WaitGroup
	stop      chan struct{}
	closeOnce sync.Once
	closeErr  error
}

// Join starts the local clustering engine and joins the peers found with the
// configured strategy. If none of them answers, the node forms a cluster of
// its own and the others join it later.
func Join(ctx context.Context, conf Config) (*Node, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	logger := conf.Logger

	refs, defaultPort := conf.joinRefs()
	resolver := discovery.NewResolver(conf.Lookup, defaultPort, logger)

	targets := resolver.Resolve(ctx, refs)
	if len(refs) > 0 && len(targets) == 0 {
		return nil, fmt.Errorf("%w: none of %v could be resolved", ErrConfig, refs)
	}

	listener, err := net.Listen("tcp", net.JoinHostPort(conf.BindAddr, strconv.Itoa(conf.RPCPort)))
	if err != nil {
		return nil, fmt.Errorf("failed to listen rpc address: %w", err)
	}

	rpcPort := listener.Addr().(*net.TCPAddr).Port

	self := membership.Member{
		ID:   uuid.New(),
		Addr: conf.advertiseAddr(),
		Attributes: membership.NewAttributes(map[string]string{
			membership.AttrNodeName:    conf.NodeName,
			membership.AttrProcessRole: string(conf.ProcessRole),
			membership.AttrRPCAddr:     net.JoinHostPort(conf.advertiseAddr(), strconv.Itoa(rpcPort)),
			membership.AttrJoinedAt:    time.Now().UTC().Format(time.RFC3339Nano),
		}),
	}

	meta, err := membership.EncodeMeta(self.Attributes)
	if err != nil {
		_ = listener.Close()
		return nil, err
	}

	n := &Node{
		conf:   conf,
		self:   self,
		view:   membership.NewView(self),
		clock:  newClock(),
		logger: kitlog.With(logger, "node", conf.NodeName),
		tasks:  dispatch.NewRegistry(),
		stop:   make(chan struct{}),
	}

	n.conns = noderpc.NewConnRegistry(n.view, noderpc.NewGrpcDialer())
	tr := &transport{selfID: self.ID, tasks: n.tasks, conns: n.conns}

	storeConf := replicated.DefaultConfig()
	storeConf.Members = n.view
	storeConf.Remote = tr
	storeConf.Logger = n.logger
	n.store = replicated.New(storeConf)

	dispatchConf := dispatch.DefaultConfig()
	dispatchConf.Members = n.view
	dispatchConf.Transport = tr
	dispatchConf.Logger = n.logger
	n.dispatcher = dispatch.New(dispatchConf)

	n.registerTasks()

	n.grpcServer = grpc.NewServer()
	noderpc.RegisterNodeServer(n.grpcServer, noderpc.NewServer(n.store, n.tasks, n.logger))

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()

		if err := n.grpcServer.Serve(listener); err != nil {
			level.Error(n.logger).Log("msg", "rpc server stopped", "err", err)
		}
	}()

	d := &delegate{
		meta:   meta,
		view:   n.view,
		store:  n.store,
		clock:  n.clock,
		logger: n.logger,
	}

	mlConf := memberlist.DefaultLANConfig()
	mlConf.Name = self.ID.String()
	mlConf.BindAddr = conf.BindAddr
	mlConf.BindPort = conf.BindPort
	mlConf.AdvertiseAddr = conf.AdvertiseAddr
	mlConf.AdvertisePort = conf.BindPort
	mlConf.Label = conf.ClusterName
	mlConf.Delegate = d
	mlConf.Events = d
	mlConf.Alive = d
	mlConf.Logger = stdlog.New(kitlog.NewStdlibAdapter(level.Debug(n.logger)), "", 0)

	if n.ml, err = memberlist.Create(mlConf); err != nil {
		n.grpcServer.Stop()
		n.wg.Wait()

		return nil, fmt.Errorf("failed to start gossip: %w", err)
	}

	n.join(ctx, targets)

	n.wg.Add(1)

	go func() {
		defer n.wg.Done()
		n.collectGarbage()
	}()

	level.Info(n.logger).Log(
		"msg", "joined cluster",
		"id", self.ID,
		"cluster", conf.ClusterName,
		"gossip_addr", n.GossipAddr(),
		"rpc_addr", self.RPCAddr(),
		"members", n.view.Len(),
	)

	return n, nil
}

func (n *Node) join(ctx context.Context, targets []string) {
	if len(targets) == 0 {
		return
	}

	joinCtx, cancel := context.WithTimeout(ctx, n.conf.JoinTimeout)
	defer cancel()

	done := make(chan struct{})

	var (
		joined int
		err    error
	)

	go func() {
		defer close(done)
		joined, err = n.ml.Join(targets)
	}()

	select {
	case <-done:
	case <-joinCtx.Done():
		level.Warn(n.logger).Log("msg", "join is taking too long, continuing in background", "targets", len(targets))
		return
	}

	if joined == 0 {
		level.Warn(n.logger).Log("msg", "no peer answered, forming a new cluster", "targets", len(targets), "err", err)
		return
	}

	if err != nil {
		level.Debug(n.logger).Log("msg", "some peers could not be joined", "joined", joined, "err", err)
	}
}

func (n *Node) collectGarbage() {
	ticker := time.NewTicker(n.conf.GCInterval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			n.conns.CollectGarbage()

			if dropped := n.store.CollectTombstones(n.conf.TombstoneTTL); dropped > 0 {
				level.Debug(n.logger).Log("msg", "collected tombstones", "count", dropped)
			}
		}
	}
}

// ID returns the member ID of this process.
func (n *Node) ID() uuid.UUID {
	return n.self.ID
}

func (n *Node) Self() membership.Member {
	return n.self
}

// GossipAddr returns the address other members join through.
func (n *Node) GossipAddr() string {
	return n.ml.LocalNode().FullAddress().Addr
}

// Members returns the current membership view, oldest member first.
func (n *Node) Members() []membership.Member {
	return n.view.Members()
}

// MemberIDs returns the IDs of all current members.
func (n *Node) MemberIDs() []uuid.UUID {
	members := n.view.Members()
	ids := make([]uuid.UUID, len(members))

	for i, m := range members {
		ids[i] = m.ID
	}

	slices.SortFunc(ids, func(a, b uuid.UUID) bool {
		return bytes.Compare(a[:], b[:]) < 0
	})

	return ids
}

// Lock returns a handle to the cluster-wide lock with the given name. Every
// call returns a new holder.
func (n *Node) Lock(name string) *shared.Lock {
	return shared.NewLock(n.store, name, shared.WithPollInterval(n.conf.LockPollInterval))
}

// Store returns the cluster-wide state store.
func (n *Node) Store() store.Store {
	return n.store
}

// Tasks returns the registry of tasks this member executes for others.
func (n *Node) Tasks() *dispatch.Registry {
	return n.tasks
}

func (n *Node) Dispatcher() *dispatch.Dispatcher {
	return n.dispatcher
}

// ClusterTime returns the logical cluster time.
func (n *Node) ClusterTime() time.Time {
	return n.clock.Now()
}

// ReplicatedMap returns the cluster-wide map with the given name.
func ReplicatedMap[V any](n *Node, name string) *shared.Map[V] {
	return shared.NewMap[V](n.store, name)
}

// AtomicReference returns the cluster-wide reference cell with the given name.
func AtomicReference[T comparable](n *Node, name string) *shared.Reference[T] {
	return shared.NewReference[T](n.store, name, shared.WithPollInterval(n.conf.LockPollInterval))
}

// Close leaves the cluster and stops the local engine. It is safe to call
// more than once.
func (n *Node) Close() error {
	n.closeOnce.Do(func() {
		errs := multierror.New[string]()

		if err := n.ml.Leave(n.conf.LeaveTimeout); err != nil {
			errs.Add("leave", err)
		}

		if err := n.ml.Shutdown(); err != nil {
			errs.Add("gossip", err)
		}

		close(n.stop)
		n.grpcServer.GracefulStop()
		n.conns.Close()
		n.wg.Wait()

		n.closeErr = errs.Combined()

		level.Info(n.logger).Log("msg", "left cluster")
	})

	return n.closeErr
}

// IsClosed reports whether Close was called.
func (n *Node) IsClosed() bool {
	select {
	case <-n.stop:
		return true
	default:
		return false
	}
}
