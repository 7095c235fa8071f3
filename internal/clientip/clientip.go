// Package clientip resolves the address a request came from.
package clientip

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// FromRequest returns the client IP from r.RemoteAddr, without the port.
// Forwarded headers are never read here; Proxies.Middleware rewrites
// RemoteAddr beforehand, and only for requests arriving from a trusted proxy.
func FromRequest(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = strings.Trim(addr, "[]")
	}
	// Normalize so ::ffff:1.2.3.4 and 1.2.3.4 share a key.
	if ip := net.ParseIP(host); ip != nil {
		return ip.String()
	}
	return host
}

// Proxies lists the networks allowed to report the client address through
// X-Forwarded-For or X-Real-IP. The zero value trusts nobody.
type Proxies []netip.Prefix

// ParseProxies accepts CIDR prefixes or bare addresses.
func ParseProxies(list []string) (Proxies, error) {
	out := make(Proxies, 0, len(list))
	for _, s := range list {
		s = strings.TrimSpace(s)
		if strings.Contains(s, "/") {
			p, err := netip.ParsePrefix(s)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
			}
			out = append(out, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(s)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", s, err)
		}
		a = a.Unmap()
		out = append(out, netip.PrefixFrom(a, a.BitLen()))
	}
	return out, nil
}

func (p Proxies) trusts(a netip.Addr) bool {
	a = a.Unmap()
	for _, prefix := range p {
		if prefix.Contains(a) {
			return true
		}
	}
	return false
}

func parseAddr(s string) (netip.Addr, bool) {
	a, err := netip.ParseAddr(strings.Trim(strings.TrimSpace(s), "[]"))
	if err != nil {
		return netip.Addr{}, false
	}
	return a.Unmap(), true
}

// Resolve returns the client address for r. Forwarded headers count only when
// the socket peer is a trusted proxy; X-Forwarded-For is read right to left
// and the first hop that is not itself a trusted proxy wins.
func (p Proxies) Resolve(r *http.Request) string {
	peer := FromRequest(r)
	if len(p) == 0 {
		return peer
	}
	peerAddr, ok := parseAddr(peer)
	if !ok || !p.trusts(peerAddr) {
		return peer
	}

	if xff := r.Header.Values("X-Forwarded-For"); len(xff) > 0 {
		hops := strings.Split(strings.Join(xff, ","), ",")
		var leftmost string
		for i := len(hops) - 1; i >= 0; i-- {
			a, ok := parseAddr(hops[i])
			if !ok {
				// A malformed hop ends the chain we can vouch for.
				break
			}
			if !p.trusts(a) {
				return a.String()
			}
			leftmost = a.String()
		}
		if leftmost != "" {
			return leftmost
		}
	}
	if a, ok := parseAddr(r.Header.Get("X-Real-IP")); ok {
		return a.String()
	}
	return peer
}

// Middleware rewrites r.RemoteAddr to the resolved client address so every
// later FromRequest call agrees with it.
func (p Proxies) Middleware(next http.Handler) http.Handler {
	if len(p) == 0 {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip := p.Resolve(r); ip != FromRequest(r) {
			r.RemoteAddr = ip
		}
		next.ServeHTTP(w, r)
	})
}
