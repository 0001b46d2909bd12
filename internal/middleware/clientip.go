package middleware

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ClientIPResolver finds the address a request came from. Forwarding headers
// are honoured only when the socket peer is a trusted proxy; otherwise any
// client could pick its own identity.
type ClientIPResolver struct {
	trusted []netip.Prefix
}

func NewClientIPResolver(trusted []netip.Prefix) *ClientIPResolver {
	return &ClientIPResolver{trusted: trusted}
}

func (c *ClientIPResolver) Resolve(r *http.Request) string {
	peer, ok := peerAddr(r)
	if !ok {
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}

	if !c.isTrusted(peer) {
		return peer.String()
	}

	// Walk X-Forwarded-For from the nearest hop outwards and stop at the
	// first address our own proxies did not add.
	if forwarded := r.Header.Values("X-Forwarded-For"); len(forwarded) > 0 {
		hops := strings.Split(strings.Join(forwarded, ","), ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			hop = hop.Unmap()
			if !c.isTrusted(hop) {
				return hop.String()
			}
		}
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}

	return peer.String()
}

func (c *ClientIPResolver) isTrusted(addr netip.Addr) bool {
	if c == nil {
		return false
	}
	for _, prefix := range c.trusted {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(r *http.Request) (netip.Addr, bool) {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, false
	}
	return addr.Unmap(), true
}
