package server

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// TrustedProxies lists the peers whose X-Forwarded-For, X-Real-IP and
// X-Forwarded-Proto headers are believed. With no entries every request is
// keyed on its TCP peer address.
type TrustedProxies []netip.Prefix

// ParseTrustedProxies accepts CIDR prefixes ("10.0.0.0/8") and bare
// addresses ("127.0.0.1").
func ParseTrustedProxies(specs []string) (TrustedProxies, error) {
	var proxies TrustedProxies
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if strings.Contains(spec, "/") {
			p, err := netip.ParsePrefix(spec)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", spec, err)
			}
			proxies = append(proxies, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", spec, err)
		}
		addr = addr.Unmap()
		proxies = append(proxies, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return proxies, nil
}

func (p TrustedProxies) trusts(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, prefix := range p {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

// peer returns the TCP peer of r.
func peer(r *http.Request) (netip.Addr, bool) {
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

// ClientIP returns the address a request is attributed to. Forwarding
// headers count only when the peer is a trusted proxy; X-Forwarded-For is
// then walked from the right and the first untrusted hop wins.
func (p TrustedProxies) ClientIP(r *http.Request) string {
	addr, ok := peer(r)
	if !ok {
		return r.RemoteAddr
	}
	if !p.trusts(addr) {
		return addr.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		client := addr
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			client = hop.Unmap()
			if !p.trusts(client) {
				break
			}
		}
		return client.String()
	}

	if realIP, err := netip.ParseAddr(strings.TrimSpace(r.Header.Get("X-Real-IP"))); err == nil {
		return realIP.Unmap().String()
	}
	return addr.String()
}

// Scheme returns "https" for TLS requests and for requests a trusted proxy
// marks as such.
func (p TrustedProxies) Scheme(r *http.Request) string {
	if r.TLS != nil {
		return "https"
	}
	if addr, ok := peer(r); ok && p.trusts(addr) && strings.EqualFold(r.Header.Get("X-Forwarded-Proto"), "https") {
		return "https"
	}
	return "http"
}
