package security

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockResolver struct {
	ips map[string][]string
	err error
}

func (m *mockResolver) LookupIPAddr(_ context.Context, host string) ([]net.IPAddr, error) {
	if m.err != nil {
		return nil, m.err
	}
	raw, ok := m.ips[host]
	if !ok {
		return nil, fmt.Errorf("no such host: %s", host)
	}
	out := make([]net.IPAddr, len(raw))
	for i, s := range raw {
		out[i] = net.IPAddr{IP: net.ParseIP(s)}
	}
	return out, nil
}

type slowResolver struct{}

func (slowResolver) LookupIPAddr(ctx context.Context, _ string) ([]net.IPAddr, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func guardWith(r Resolver) *Guard {
	return &Guard{Resolver: r, Dialer: &net.Dialer{Timeout: time.Second}}
}

func TestIsBlocked(t *testing.T) {
	tests := []struct {
		addr    string
		blocked bool
	}{
		{"127.0.0.1", true},
		{"10.1.2.3", true},
		{"172.16.0.1", true},
		{"172.32.0.1", false},
		{"192.168.1.1", true},
		{"169.254.169.254", true},
		{"100.64.0.1", true},
		{"0.0.0.0", true},
		{"::", true},
		{"::1", true},
		{"fe80::1", true},
		{"fd00::1", true},
		{"::ffff:127.0.0.1", true},
		{"93.184.216.34", false},
		{"2606:4700:4700::1111", false},
	}
	for _, tt := range tests {
		t.Run(tt.addr, func(t *testing.T) {
			assert.Equal(t, tt.blocked, IsBlocked(netip.MustParseAddr(tt.addr)))
		})
	}
}

func TestGuard_Resolve(t *testing.T) {
	g := guardWith(&mockResolver{ips: map[string][]string{
		"fcm.googleapis.com": {"142.250.0.95"},
		"evil.example.com":   {"169.254.169.254"},
		"mixed.example.com":  {"93.184.216.34", "10.0.0.5"},
		"empty.example.com":  {},
	}})
	ctx := context.Background()

	addrs, err := g.Resolve(ctx, "fcm.googleapis.com")
	require.NoError(t, err)
	assert.Equal(t, []netip.Addr{netip.MustParseAddr("142.250.0.95")}, addrs)

	_, err = g.Resolve(ctx, "evil.example.com")
	assert.ErrorIs(t, err, ErrBlockedAddress)

	_, err = g.Resolve(ctx, "mixed.example.com")
	assert.ErrorIs(t, err, ErrBlockedAddress)

	_, err = g.Resolve(ctx, "empty.example.com")
	assert.ErrorIs(t, err, ErrDNSFailed)

	_, err = g.Resolve(ctx, "unknown.example.com")
	assert.ErrorIs(t, err, ErrDNSFailed)

	_, err = g.Resolve(ctx, "10.0.0.1")
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestGuard_ResolveTimeout(t *testing.T) {
	_, err := guardWith(slowResolver{}).Resolve(context.Background(), "slow.example.com")
	assert.ErrorIs(t, err, ErrDNSTimeout)
}

func TestGuard_ClientRefusesLoopback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	client := guardWith(&mockResolver{}).NewHTTPClient(2*time.Second, 3)
	_, err := client.Get(srv.URL)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestGuard_ClientRefusesNameResolvingToPrivate(t *testing.T) {
	g := guardWith(&mockResolver{ips: map[string][]string{"push.example.com": {"192.168.0.10"}}})

	_, err := g.NewHTTPClient(2*time.Second, 3).Get("https://push.example.com/send/abc")
	assert.ErrorIs(t, err, ErrBlockedAddress)
}

func TestGuard_CheckRedirect(t *testing.T) {
	g := guardWith(&mockResolver{ips: map[string][]string{
		"cdn.example.com":   {"93.184.216.34"},
		"inner.example.com": {"10.0.0.2"},
	}})
	check := g.CheckRedirect(2)

	redirect := func(target string) *http.Request {
		req, err := http.NewRequest(http.MethodGet, target, nil)
		require.NoError(t, err)
		return req
	}
	one := []*http.Request{redirect("https://a.example.com")}

	assert.NoError(t, check(redirect("https://cdn.example.com/x"), one))
	assert.ErrorIs(t, check(redirect("https://inner.example.com/x"), one), ErrBlockedAddress)
	assert.ErrorIs(t, check(redirect("http://169.254.169.254/latest/meta-data"), one), ErrBlockedAddress)
	assert.ErrorIs(t, check(redirect("https://cdn.example.com/x"), append(one, one[0])), ErrTooManyRedirects)
}

func TestNewSafeHTTPClient(t *testing.T) {
	c := NewSafeHTTPClient(10*time.Second, 3)
	assert.Equal(t, 10*time.Second, c.Timeout)
	assert.NotNil(t, c.CheckRedirect)

	transport, ok := c.Transport.(*http.Transport)
	require.True(t, ok)
	assert.Nil(t, transport.Proxy)
	assert.NotNil(t, transport.DialContext)
}

func TestValidateWebPushSubscription(t *testing.T) {
	sub := func(endpoint string) string {
		return `{"endpoint":"` + endpoint + `","keys":{"p256dh":"BNc...","auth":"tBH..."}}`
	}

	tests := []struct {
		name string
		raw  string
		want error
	}{
		{"fcm", sub("https://fcm.googleapis.com/fcm/send/abc"), nil},
		{"mozilla", sub("https://updates.push.services.mozilla.com/wpush/v2/abc"), nil},
		{"not json", "ExponentPushToken[abc]", ErrInvalidEndpoint},
		{"missing keys", `{"endpoint":"https://fcm.googleapis.com/fcm/send/abc"}`, ErrInvalidEndpoint},
		{"http", sub("http://fcm.googleapis.com/fcm/send/abc"), ErrInvalidEndpoint},
		{"no host", sub("https:///x"), ErrInvalidEndpoint},
		{"metadata ip", sub("https://169.254.169.254/latest"), ErrBlockedAddress},
		{"loopback v6", sub("https://[::1]:8443/x"), ErrBlockedAddress},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateWebPushSubscription(tt.raw)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
