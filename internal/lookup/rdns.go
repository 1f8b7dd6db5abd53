package lookup

import (
	"context"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// ReverseDNS resolves PTR records. It queries the first nameserver from
// /etc/resolv.conf directly and falls back to the system resolver when no
// nameserver is configured or the query fails.
type ReverseDNS struct {
	client  *dns.Client
	timeout time.Duration
}

func NewReverseDNS(timeout time.Duration) *ReverseDNS {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &ReverseDNS{
		client: &dns.Client{
			Net:          "udp",
			Timeout:      timeout,
			DialTimeout:  timeout,
			ReadTimeout:  timeout,
			WriteTimeout: timeout,
		},
		timeout: timeout,
	}
}

// Lookup returns the PTR hostname for ip, or "" when no record exists or
// resolution fails for any reason.
func (r *ReverseDNS) Lookup(ctx context.Context, ip string) string {
	rev, err := dns.ReverseAddr(ip)
	if err != nil {
		return ""
	}

	nameserver := ""
	if conf, err := dns.ClientConfigFromFile("/etc/resolv.conf"); err == nil && len(conf.Servers) > 0 {
		nameserver = net.JoinHostPort(conf.Servers[0], conf.Port)
	}

	if nameserver != "" {
		msg := new(dns.Msg)
		msg.SetQuestion(rev, dns.TypePTR)
		resp, _, err := r.client.ExchangeContext(ctx, msg, nameserver)
		if err == nil && resp != nil && resp.Rcode == dns.RcodeSuccess {
			for _, rr := range resp.Answer {
				if ptr, ok := rr.(*dns.PTR); ok {
					return strings.TrimSuffix(ptr.Ptr, ".")
				}
			}
			return ""
		}
	}

	lctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	names, err := net.DefaultResolver.LookupAddr(lctx, ip)
	if err != nil || len(names) == 0 {
		return ""
	}
	return strings.TrimSuffix(names[0], ".")
}
