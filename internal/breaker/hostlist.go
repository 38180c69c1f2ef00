package breaker

import (
	"net"
	"strings"
)

// HostList matches a connection host against a configured set of literal
// hostnames, "*.domain" subdomain wildcards, and CIDR ranges, backing
// the host-group breaker variant.
type HostList struct {
	literals    map[string]struct{}
	subdomains  []string
	nets        []*net.IPNet
}

// NewHostList parses patterns into a HostList. Entries containing "/" are
// parsed as CIDR ranges; entries starting with "*." match the remainder
// itself and any subdomain of it; everything else is matched literally (case-insensitive).
func NewHostList(patterns []string) *HostList {
	hl := &HostList{literals: make(map[string]struct{})}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		switch {
		case strings.Contains(p, "/"):
			if _, ipnet, err := net.ParseCIDR(p); err == nil {
				hl.nets = append(hl.nets, ipnet)
			}
		case strings.HasPrefix(p, "*."):
			hl.subdomains = append(hl.subdomains, strings.ToLower(p[2:]))
		default:
			hl.literals[strings.ToLower(p)] = struct{}{}
		}
	}
	return hl
}

// Match reports whether host (a hostname or dotted/bracketed IP) satisfies
// any pattern in the list.
func (hl *HostList) Match(host string) bool {
	if hl == nil {
		return false
	}
	host = strings.TrimSuffix(strings.TrimPrefix(host, "["), "]")
	lower := strings.ToLower(host)
	if _, ok := hl.literals[lower]; ok {
		return true
	}
	for _, suffix := range hl.subdomains {
		if lower == suffix || strings.HasSuffix(lower, "."+suffix) {
			return true
		}
	}
	if ip := net.ParseIP(host); ip != nil {
		for _, n := range hl.nets {
			if n.Contains(ip) {
				return true
			}
		}
	}
	return false
}
