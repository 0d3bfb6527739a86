package discovery

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"

	kitlog "github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"golang.org/x/sync/errgroup"

	"github.com/maxpoletaev/kluster/internal/set"
)

const defaultConcurrency = 8

// Resolver turns host references (ip, hostname, host:port) into concrete
// ip:port join targets.
type Resolver struct {
	Lookup      Lookup
	DefaultPort int
	Logger      kitlog.Logger
	Concurrency int
}

func NewResolver(lookup Lookup, defaultPort int, logger kitlog.Logger) *Resolver {
	return &Resolver{
		Lookup:      lookup,
		DefaultPort: defaultPort,
		Logger:      logger,
		Concurrency: defaultConcurrency,
	}
}

// Resolve resolves every reference. A reference that cannot be parsed or
// resolved is logged and contributes no targets; it never fails the others.
// The output follows input order and holds no duplicates.
func (r *Resolver) Resolve(ctx context.Context, refs []string) []string {
	results := make([][]string, len(refs))

	g, ctx := errgroup.WithContext(ctx)
	if r.Concurrency > 0 {
		g.SetLimit(r.Concurrency)
	}

	for i, ref := range refs {
		i, ref := i, ref

		g.Go(func() error {
			results[i] = r.resolveOne(ctx, ref)
			return nil
		})
	}

	_ = g.Wait()

	seen := set.New[string]()
	targets := make([]string, 0, len(refs))

	for _, res := range results {
		for _, target := range res {
			if seen.Add(target) {
				targets = append(targets, target)
			}
		}
	}

	return targets
}

func (r *Resolver) resolveOne(ctx context.Context, ref string) []string {
	host, port, err := SplitHostPort(ref, r.DefaultPort)
	if err != nil {
		level.Warn(r.logger()).Log("msg", "invalid member address", "ref", ref, "err", err)
		return nil
	}

	if addr, err := netip.ParseAddr(host); err == nil {
		return []string{joinAddrPort(addr, port)}
	}

	addrs, err := r.Lookup.LookupHost(ctx, host)
	if err != nil {
		level.Warn(r.logger()).Log("msg", "failed to resolve member host", "host", host, "err", err)
		return nil
	}

	level.Debug(r.logger()).Log("msg", "resolved member host", "host", host, "addrs", len(addrs))

	targets := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		targets = append(targets, joinAddrPort(addr, port))
	}

	return targets
}

func (r *Resolver) logger() kitlog.Logger {
	if r.Logger == nil {
		return kitlog.NewNopLogger()
	}

	return r.Logger
}

// SplitHostPort splits a host reference, falling back to the default port
// when the reference has none. Bare IPv6 literals are accepted with or
// without brackets.
func SplitHostPort(ref string, defaultPort int) (string, int, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", 0, fmt.Errorf("empty address")
	}

	if addr, err := netip.ParseAddr(strings.Trim(ref, "[]")); err == nil {
		return addr.String(), defaultPort, nil
	}

	// IPv6 literals are handled above, so a reference without a colon has
	// no port, e.g. "db.local".
	if !strings.Contains(ref, ":") {
		if strings.ContainsAny(ref, "[]") {
			return "", 0, fmt.Errorf("invalid address %q", ref)
		}

		return ref, defaultPort, nil
	}

	host, portStr, err := net.SplitHostPort(ref)
	if err != nil {
		return "", 0, err
	}

	port, err := strconv.Atoi(portStr)
	if err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", portStr)
	}

	if host == "" {
		return "", 0, fmt.Errorf("empty host in %q", ref)
	}

	return host, port, nil
}

// ParseMemberList splits a comma-separated member list, dropping blanks.
func ParseMemberList(list string) []string {
	parts := strings.Split(list, ",")
	res := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			res = append(res, trimmed)
		}
	}

	return res
}

func joinAddrPort(addr netip.Addr, port int) string {
	return netip.AddrPortFrom(addr.Unmap(), uint16(port)).String()
}
