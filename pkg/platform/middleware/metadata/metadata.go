// Package metadata resolves who is calling (client address, user agent and a
// readable device label) so services can stamp audit entries without
// depending on net/http.
package metadata

import (
	"net/http"
	"net/netip"
	"strings"

	"github.com/mssola/useragent"

	"medshare/pkg/requestcontext"
)

// MaxForwardedHeaderLength bounds X-Forwarded-For and X-Real-IP values.
const MaxForwardedHeaderLength = 500

// Middleware extracts client metadata. Forwarding headers are honored only
// when the direct peer is inside TrustedProxies.
type Middleware struct {
	trustedProxies []netip.Prefix
}

func New(trustedProxies []netip.Prefix) *Middleware {
	return &Middleware{trustedProxies: trustedProxies}
}

// ParseTrustedProxies parses CIDR strings, skipping blanks.
func ParseTrustedProxies(cidrs []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, cidr := range cidrs {
		cidr = strings.TrimSpace(cidr)
		if cidr == "" {
			continue
		}
		prefix, err := netip.ParsePrefix(cidr)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}

func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userAgent := r.Header.Get("User-Agent")
		ctx := requestcontext.WithClientMetadata(r.Context(), m.clientIP(r), userAgent)
		ctx = requestcontext.WithDevice(ctx, DeviceLabel(userAgent))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (m *Middleware) clientIP(r *http.Request) string {
	peer, ok := peerAddr(r.RemoteAddr)
	if !ok {
		return "unknown"
	}
	if !m.trusted(peer) {
		return peer.String()
	}

	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if len(xff) > MaxForwardedHeaderLength {
			return peer.String()
		}
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.String()
		}
		return peer.String()
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" && len(xri) <= MaxForwardedHeaderLength {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.String()
		}
	}
	return peer.String()
}

func (m *Middleware) trusted(addr netip.Addr) bool {
	for _, prefix := range m.trustedProxies {
		if prefix.Contains(addr) {
			return true
		}
	}
	return false
}

func peerAddr(remoteAddr string) (netip.Addr, bool) {
	if remoteAddr == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(remoteAddr); err == nil {
		return addr.Unmap(), true
	}
	return netip.Addr{}, false
}

// DeviceLabel turns a User-Agent into "Browser on OS", e.g. "Firefox on
// Linux". Mobile agents report their platform instead of the OS string.
func DeviceLabel(userAgent string) string {
	if strings.TrimSpace(userAgent) == "" {
		return "Unknown Device"
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	if browser == "" {
		browser = "Unknown Browser"
	}
	if ua.Mobile() {
		if platform := ua.Platform(); platform != "" {
			return browser + " on " + platform
		}
	}
	os := ua.OS()
	if os == "" {
		os = "Unknown OS"
	}
	return browser + " on " + os
}
