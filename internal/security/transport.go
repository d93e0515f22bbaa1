// Package security guards outbound HTTP requests whose destination is chosen
// by a user. Web Push endpoints come straight from the browser, so the push
// sender must not be steered at loopback, private ranges or the cloud
// metadata service.
package security

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"net/url"
	"time"
)

const dnsTimeout = 500 * time.Millisecond

var (
	ErrBlockedAddress   = errors.New("ssrf: destination address is blocked")
	ErrDNSTimeout       = errors.New("ssrf: DNS resolution timeout")
	ErrDNSFailed        = errors.New("ssrf: DNS resolution failed")
	ErrTooManyRedirects = errors.New("ssrf: too many redirects")
	ErrInvalidEndpoint  = errors.New("invalid push endpoint")
)

// blockedPrefixes are never dialed. 169.254.0.0/16 covers the instance
// metadata endpoint.
var blockedPrefixes = mustPrefixes(
	"0.0.0.0/8",
	"10.0.0.0/8",
	"100.64.0.0/10",
	"127.0.0.0/8",
	"169.254.0.0/16",
	"172.16.0.0/12",
	"192.168.0.0/16",
	"198.18.0.0/15",
	"224.0.0.0/4",
	"240.0.0.0/4",
	"::1/128",
	"fc00::/7",
	"fe80::/10",
)

func mustPrefixes(cidrs ...string) []netip.Prefix {
	out := make([]netip.Prefix, len(cidrs))
	for i, c := range cidrs {
		out[i] = netip.MustParsePrefix(c)
	}
	return out
}

// IsBlocked reports whether addr falls in a blocked range. IPv4-mapped IPv6
// addresses are checked as IPv4.
func IsBlocked(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() {
		return true
	}
	for _, p := range blockedPrefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Resolver is satisfied by *net.Resolver.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Guard resolves hosts and refuses any whose addresses are blocked.
type Guard struct {
	Resolver Resolver
	Dialer   *net.Dialer
}

func NewGuard() *Guard {
	return &Guard{Resolver: net.DefaultResolver, Dialer: &net.Dialer{Timeout: 5 * time.Second}}
}

// Resolve returns the addresses for host after checking every one of them.
// A single blocked address rejects the host, so a DNS answer that mixes a
// public and a private address cannot be used for rebinding.
func (g *Guard) Resolve(ctx context.Context, host string) ([]netip.Addr, error) {
	if addr, err := netip.ParseAddr(host); err == nil {
		if IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
		}
		return []netip.Addr{addr}, nil
	}

	dnsCtx, cancel := context.WithTimeout(ctx, dnsTimeout)
	defer cancel()

	ipAddrs, err := g.Resolver.LookupIPAddr(dnsCtx, host)
	if err != nil {
		if dnsCtx.Err() != nil {
			return nil, fmt.Errorf("%w: host %q", ErrDNSTimeout, host)
		}
		return nil, fmt.Errorf("%w: host %q: %v", ErrDNSFailed, host, err)
	}
	if len(ipAddrs) == 0 {
		return nil, fmt.Errorf("%w: host %q resolved to no addresses", ErrDNSFailed, host)
	}

	addrs := make([]netip.Addr, 0, len(ipAddrs))
	for _, ia := range ipAddrs {
		addr, ok := netip.AddrFromSlice(ia.IP)
		if !ok || IsBlocked(addr) {
			return nil, fmt.Errorf("%w: %s (resolved from %s)", ErrBlockedAddress, ia.IP, host)
		}
		addrs = append(addrs, addr.Unmap())
	}
	return addrs, nil
}

// DialContext dials the first checked address for addr. It is installed on
// the transport so the check happens on the address actually connected to.
func (g *Guard) DialContext(ctx context.Context, network, addr string) (net.Conn, error) {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
	}
	addrs, err := g.Resolve(ctx, host)
	if err != nil {
		return nil, err
	}
	return g.Dialer.DialContext(ctx, network, net.JoinHostPort(addrs[0].String(), port))
}

// CheckRedirect limits redirects and checks each redirect target.
func (g *Guard) CheckRedirect(maxRedirects int) func(req *http.Request, via []*http.Request) error {
	return func(req *http.Request, via []*http.Request) error {
		if len(via) >= maxRedirects {
			return fmt.Errorf("%w: limit is %d", ErrTooManyRedirects, maxRedirects)
		}
		host := req.URL.Hostname()
		if host == "" {
			return fmt.Errorf("%w: redirect URL has no host", ErrBlockedAddress)
		}
		_, err := g.Resolve(req.Context(), host)
		return err
	}
}

// NewHTTPClient returns a client whose every connection goes through g.
func (g *Guard) NewHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.Proxy = nil
	transport.DialContext = g.DialContext
	return &http.Client{
		Transport:     transport,
		Timeout:       timeout,
		CheckRedirect: g.CheckRedirect(maxRedirects),
	}
}

// NewSafeHTTPClient is NewGuard().NewHTTPClient.
func NewSafeHTTPClient(timeout time.Duration, maxRedirects int) *http.Client {
	return NewGuard().NewHTTPClient(timeout, maxRedirects)
}

type webPushSubscription struct {
	Endpoint string `json:"endpoint"`
	Keys     struct {
		P256dh string `json:"p256dh"`
		Auth   string `json:"auth"`
	} `json:"keys"`
}

// ValidateWebPushSubscription checks a browser PushSubscription at
// registration time: it must carry both keys and an https endpoint that is
// not an IP literal in a blocked range. Hostnames are resolved later, at
// delivery, by the guarded transport.
func ValidateWebPushSubscription(raw string) error {
	var sub webPushSubscription
	if err := json.Unmarshal([]byte(raw), &sub); err != nil {
		return fmt.Errorf("%w: token is not a PushSubscription", ErrInvalidEndpoint)
	}
	if sub.Keys.P256dh == "" || sub.Keys.Auth == "" {
		return fmt.Errorf("%w: subscription keys are missing", ErrInvalidEndpoint)
	}

	u, err := url.Parse(sub.Endpoint)
	if err != nil || u.Hostname() == "" {
		return fmt.Errorf("%w: endpoint is not a URL", ErrInvalidEndpoint)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint must use https", ErrInvalidEndpoint)
	}
	if addr, err := netip.ParseAddr(u.Hostname()); err == nil && IsBlocked(addr) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, addr)
	}
	return nil
}
