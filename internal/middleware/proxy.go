package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"

	chimw "github.com/go-chi/chi/v5/middleware"
)

type trustedPeerKey struct{}

// TrustedProxies honors forwarding headers (X-Forwarded-For, X-Real-IP,
// True-Client-IP) and edge country headers only when the direct peer falls
// inside one of trusted. Requests from any other peer keep their RemoteAddr.
func TrustedProxies(trusted []netip.Prefix) func(http.Handler) http.Handler {
	prefixes := make([]netip.Prefix, 0, len(trusted))
	for _, p := range trusted {
		if p.IsValid() {
			prefixes = append(prefixes, p.Masked())
		}
	}
	return func(next http.Handler) http.Handler {
		forwarded := chimw.RealIP(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !peerTrusted(r.RemoteAddr, prefixes) {
				next.ServeHTTP(w, r)
				return
			}
			ctx := context.WithValue(r.Context(), trustedPeerKey{}, true)
			forwarded.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// FromTrustedProxy reports whether the request arrived through a trusted proxy.
func FromTrustedProxy(ctx context.Context) bool {
	v, _ := ctx.Value(trustedPeerKey{}).(bool)
	return v
}

func peerTrusted(remoteAddr string, prefixes []netip.Prefix) bool {
	if len(prefixes) == 0 {
		return false
	}
	host, _, err := net.SplitHostPort(remoteAddr)
	if err != nil {
		host = remoteAddr
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
