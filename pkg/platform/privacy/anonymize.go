// Package privacy reduces identifying values before they reach logs.
// Audit entries keep full values; operational logs get these forms.
package privacy

import (
	"net/netip"
	"strings"
)

// AnonymizeIP keeps the network part of an address: /24 for IPv4 and /48
// for IPv6. It returns "unknown" for empty input and "invalid" for input
// that does not parse.
func AnonymizeIP(ip string) string {
	ip = strings.TrimSpace(ip)
	if ip == "" || ip == "unknown" {
		return "unknown"
	}
	addr, err := netip.ParseAddr(ip)
	if err != nil {
		return "invalid"
	}
	addr = addr.Unmap()

	bits := 48
	if addr.Is4() {
		bits = 24
	}
	prefix, err := addr.Prefix(bits)
	if err != nil {
		return "invalid"
	}
	return prefix.Addr().String()
}

// MaskEmail keeps the first character of the local part and the domain,
// e.g. "patient@example.com" becomes "p***@example.com".
func MaskEmail(email string) string {
	local, domain, ok := strings.Cut(strings.TrimSpace(email), "@")
	if !ok || local == "" || domain == "" {
		return "***"
	}
	return local[:1] + "***@" + domain
}
