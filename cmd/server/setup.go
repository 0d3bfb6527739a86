package main

import (
	"context"
	"fmt"
	"os"
	"time"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/kluster/clustering"
	"github.com/maxpoletaev/kluster/discovery"
	"github.com/maxpoletaev/kluster/membership"
)

type shutdownFunc func(ctx context.Context) error

var noopShutdown = func(ctx context.Context) error { return nil }

func setupLogger() (kitlog.Logger, shutdownFunc) {
	logger := kitlog.NewLogfmtLogger(kitlog.NewSyncWriter(os.Stderr))
	logger = kitlog.With(logger, "ts", kitlog.DefaultTimestampUTC)

	if !opts.Verbose {
		logger = level.NewFilter(logger, level.AllowInfo())
	}

	return logger, noopShutdown
}

func setupConfig(logger kitlog.Logger) (clustering.Config, error) {
	conf := clustering.DefaultConfig()
	conf.NodeName = opts.Node.Name
	conf.ClusterName = opts.Cluster.Name
	conf.BindAddr = opts.Cluster.BindAddr
	conf.BindPort = opts.Cluster.BindPort
	conf.RPCPort = opts.Cluster.RPCPort
	conf.AdvertiseAddr = opts.Cluster.AdvertiseAddr
	conf.Members = opts.Cluster.Members
	conf.DiscoveryName = opts.Cluster.DNSName
	conf.DiscoveryPort = opts.Cluster.DNSPort
	conf.TombstoneTTL = time.Duration(opts.Cluster.TombstoneTTL) * time.Second
	conf.Logger = logger

	role, err := membership.ParseRole(opts.Node.Role)
	if err != nil {
		return conf, err
	}

	conf.ProcessRole = role

	if conf.Strategy, err = clustering.ParseStrategy(opts.Cluster.Strategy); err != nil {
		return conf, err
	}

	if conf.Strategy == clustering.StrategyDNS {
		lookup, err := discovery.NewDNSLookup(opts.Cluster.ResolvConf, 5*time.Second)
		if err != nil {
			return conf, err
		}

		conf.Lookup = lookup
	}

	return conf, conf.Validate()
}

func setupNode(ctx context.Context, conf clustering.Config, logger kitlog.Logger) (*clustering.Node, shutdownFunc, error) {
	node, err := clustering.Join(ctx, conf)
	if err != nil {
		return nil, nil, err
	}

	state := node.AppState()

	if err := state.RegisterClusterName(ctx, conf.ClusterName); err != nil {
		_ = node.Close()
		return nil, nil, err
	}

	if err := state.RegisterPlatformVersion(ctx, opts.PlatformVersion); err != nil {
		_ = node.Close()
		return nil, nil, err
	}

	if err := state.SetOperational(ctx); err != nil {
		_ = node.Close()
		return nil, nil, fmt.Errorf("failed to mark node operational: %w", err)
	}

	if conf.ProcessRole == membership.RoleWeb {
		leader, err := state.TryToLockWebLeader(ctx)
		if err != nil {
			level.Warn(logger).Log("msg", "leader election failed", "err", err)
		} else if leader {
			level.Info(logger).Log("msg", "elected as leader")
		}
	}

	shutdown := func(ctx context.Context) error {
		logger.Log("msg", "leaving cluster")

		if err := state.Forget(ctx); err != nil {
			level.Warn(logger).Log("msg", "failed to clear node state", "err", err)
		}

		if _, err := state.ResignLeader(ctx); err != nil {
			level.Warn(logger).Log("msg", "failed to resign leadership", "err", err)
		}

		if err := node.Close(); err != nil {
			return fmt.Errorf("failed to leave cluster: %w", err)
		}

		return nil
	}

	return node, shutdown, nil
}
