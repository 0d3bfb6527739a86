package clustering

import (
	"errors"
	"fmt"
	"strings"
	"time"

	kitlog "github.com/go-kit/log"

	"github.com/maxpoletaev/kluster/discovery"
	"github.com/maxpoletaev/kluster/membership"
	"github.com/maxpoletaev/kluster/shared"
)

var ErrConfig = errors.New("invalid cluster configuration")

// Strategy selects how the initial join targets are found.
type Strategy string

const (
	// StrategyStatic joins the members of a comma-separated address list.
	StrategyStatic Strategy = "static"
	// StrategyDNS joins every address a discovery name resolves to.
	StrategyDNS Strategy = "dns"
)

func ParseStrategy(s string) (Strategy, error) {
	switch st := Strategy(strings.ToLower(strings.TrimSpace(s))); st {
	case StrategyStatic, StrategyDNS:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown discovery strategy %q", ErrConfig, s)
	}
}

const (
	DefaultBindPort    = 9003
	DefaultRPCPort     = 9004
	DefaultClusterName = "kluster"
)

type Config struct {
	NodeName    string
	ProcessRole membership.Role

	// BindAddr is the interface both the gossip and the RPC listeners bind to.
	BindAddr string
	BindPort int
	RPCPort  int

	// AdvertiseAddr is announced to other members. Defaults to BindAddr.
	AdvertiseAddr string

	Strategy Strategy

	// Members is a comma-separated list of host[:port] used by the static
	// strategy. Port defaults to BindPort.
	Members string

	// DiscoveryName and DiscoveryPort are used by the DNS strategy.
	DiscoveryName string
	DiscoveryPort int

	// ClusterName separates clusters sharing a network: gossip from members
	// with another name is dropped.
	ClusterName string

	Lookup discovery.Lookup
	Logger kitlog.Logger

	JoinTimeout      time.Duration
	LeaveTimeout     time.Duration
	GCInterval       time.Duration
	LockPollInterval time.Duration

	// TombstoneTTL is how long removed keys are remembered. It must exceed
	// the time a removal takes to reach every member.
	TombstoneTTL time.Duration
}

func DefaultConfig() Config {
	return Config{
		BindPort:         DefaultBindPort,
		RPCPort:          DefaultRPCPort,
		Strategy:         StrategyStatic,
		ClusterName:      DefaultClusterName,
		Lookup:           discovery.NetLookup{},
		Logger:           kitlog.NewNopLogger(),
		JoinTimeout:      10 * time.Second,
		LeaveTimeout:     5 * time.Second,
		GCInterval:       30 * time.Second,
		LockPollInterval: shared.DefaultPollInterval,
		TombstoneTTL:     10 * time.Minute,
	}
}

// Validate checks the configuration before any network activity.
func (c *Config) Validate() error {
	if c.NodeName == "" {
		return fmt.Errorf("%w: node name is required", ErrConfig)
	}

	if c.BindAddr == "" {
		return fmt.Errorf("%w: bind address is required", ErrConfig)
	}

	if c.ProcessRole == "" {
		return fmt.Errorf("%w: process role is required", ErrConfig)
	}

	if !c.ProcessRole.Clusterable() {
		return fmt.Errorf("%w: processes of role %q cannot join the cluster", ErrConfig, c.ProcessRole)
	}

	if c.BindPort < 0 || c.BindPort > 65535 {
		return fmt.Errorf("%w: bind port %d out of range", ErrConfig, c.BindPort)
	}

	if c.RPCPort < 0 || c.RPCPort > 65535 {
		return fmt.Errorf("%w: rpc port %d out of range", ErrConfig, c.RPCPort)
	}

	if c.ClusterName == "" {
		return fmt.Errorf("%w: cluster name is required", ErrConfig)
	}

	if c.TombstoneTTL <= 0 {
		return fmt.Errorf("%w: tombstone ttl must be positive", ErrConfig)
	}

	switch c.Strategy {
	case StrategyStatic:
	case StrategyDNS:
		if c.DiscoveryName == "" {
			return fmt.Errorf("%w: discovery name is required by the dns strategy", ErrConfig)
		}

		if c.DiscoveryPort <= 0 || c.DiscoveryPort > 65535 {
			return fmt.Errorf("%w: discovery port %d out of range", ErrConfig, c.DiscoveryPort)
		}
	default:
		return fmt.Errorf("%w: unknown discovery strategy %q", ErrConfig, c.Strategy)
	}

	return nil
}

// joinRefs returns the unresolved join references for the configured strategy.
func (c *Config) joinRefs() ([]string, int) {
	if c.Strategy == StrategyDNS {
		return []string{c.DiscoveryName}, c.DiscoveryPort
	}

	return discovery.ParseMemberList(c.Members), c.BindPort
}

func (c *Config) advertiseAddr() string {
	if c.AdvertiseAddr != "" {
		return c.AdvertiseAddr
	}

	return c.BindAddr
}
