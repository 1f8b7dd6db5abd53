// Package iputil extracts IP address literals from free-form text.
package iputil

import (
	"net/netip"
	"strings"
)

// Parse extracts valid IPv4/IPv6 literals from text. Commas, semicolons and
// pipes are treated as separators alongside whitespace. Duplicates are
// dropped, keeping the first occurrence so submission order is preserved.
func Parse(text string) []string {
	replacer := strings.NewReplacer(",", " ", ";", " ", "|", " ")
	fields := strings.Fields(replacer.Replace(text))

	seen := make(map[string]struct{}, len(fields))
	var out []string
	for _, f := range fields {
		if !IsValid(f) {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// IsValid reports whether s is a valid IPv4 or IPv6 literal.
func IsValid(s string) bool {
	_, err := netip.ParseAddr(s)
	return err == nil
}

// Version returns "IPv4" or "IPv6" for a valid literal, "Invalid" otherwise.
func Version(s string) string {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return "Invalid"
	}
	if addr.Is4() || addr.Is4In6() {
		return "IPv4"
	}
	return "IPv6"
}

// CountVersions tallies a list of validated literals by address family.
// Keys are "ipv4" and "ipv6".
func CountVersions(ips []string) map[string]int {
	counts := map[string]int{"ipv4": 0, "ipv6": 0}
	for _, ip := range ips {
		switch Version(ip) {
		case "IPv4":
			counts["ipv4"]++
		case "IPv6":
			counts["ipv6"]++
		}
	}
	return counts
}
