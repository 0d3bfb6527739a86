package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"

	"github.com/miekg/dns"
)

var ErrNoRecords = errors.New("no address records")

// Lookup resolves a hostname into the IP addresses it points to.
type Lookup interface {
	LookupHost(ctx context.Context, host string) ([]netip.Addr, error)
}

// NetLookup resolves names through the system resolver.
type NetLookup struct {
	Resolver *net.Resolver
}

func (l NetLookup) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	r := l.Resolver
	if r == nil {
		r = net.DefaultResolver
	}

	addrs, err := r.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return nil, err
	}

	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}

	return addrs, nil
}

// DNSLookup queries A and AAAA records straight from the configured name
// servers. It is used for service discovery names that round-robin to all
// peers, where the system resolver may only hand out a single address.
type DNSLookup struct {
	Servers []string
	client  *dns.Client
}

// NewDNSLookup reads name servers from a resolv.conf style file.
func NewDNSLookup(resolvConf string, timeout time.Duration) (*DNSLookup, error) {
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", resolvConf, err)
	}

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}

	return NewDNSLookupWithServers(servers, timeout), nil
}

func NewDNSLookupWithServers(servers []string, timeout time.Duration) *DNSLookup {
	return &DNSLookup{
		Servers: servers,
		client:  &dns.Client{Timeout: timeout},
	}
}

// LookupHost returns the A and AAAA records of the host. A failure of one
// query is ignored as long as the other one returns addresses.
func (l *DNSLookup) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	var (
		addrs []netip.Addr
		errs  []error
	)

	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		found, err := l.query(ctx, dns.Fqdn(host), qtype)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", dns.TypeToString[qtype], host, err))
			continue
		}

		addrs = append(addrs, found...)
	}

	if len(addrs) > 0 {
		return addrs, nil
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return nil, fmt.Errorf("%w for %s", ErrNoRecords, host)
}

func (l *DNSLookup) query(ctx context.Context, fqdn string, qtype uint16) ([]netip.Addr, error) {
	msg := new(dns.Msg)
	msg.SetQuestion(fqdn, qtype)
	msg.RecursionDesired = true

	var lastErr error

	for _, server := range l.Servers {
		resp, _, err := l.client.ExchangeContext(ctx, msg, server)
		if err != nil {
			lastErr = err
			continue
		}

		if resp.Rcode != dns.RcodeSuccess && resp.Rcode != dns.RcodeNameError {
			lastErr = fmt.Errorf("%s: %s", server, dns.RcodeToString[resp.Rcode])
			continue
		}

		return answerAddrs(resp.Answer), nil
	}

	if lastErr == nil {
		lastErr = errors.New("no name servers configured")
	}

	return nil, lastErr
}

func answerAddrs(answer []dns.RR) []netip.Addr {
	var addrs []netip.Addr

	for _, rr := range answer {
		var ip net.IP

		switch r := rr.(type) {
		case *dns.A:
			ip = r.A
		case *dns.AAAA:
			ip = r.AAAA
		default:
			continue
		}

		if addr, ok := netip.AddrFromSlice(ip); ok {
			addrs = append(addrs, addr.Unmap())
		}
	}

	return addrs
}
