// internal/tenant/hosts.go
//
// Trusted-host policy.
//
// Only hosts matching tenancy.trusted_hosts are looked up in the domain
// map.  Patterns are exact hosts ("portal.example.org") or a single
// leading wildcard label ("*.cidade.gov.br").  Matching is done with
// go-glob on the canonical host.
package tenant

import (
	"net"
	"strings"

	"github.com/ryanuber/go-glob"
)

// HostPolicy is immutable once built.
type HostPolicy struct {
	patterns []string
}

// NewHostPolicy lower-cases and de-duplicates patterns.
func NewHostPolicy(patterns []string) HostPolicy {
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, p := range patterns {
		p = strings.ToLower(strings.TrimSpace(p))
		if p == "" {
			continue
		}
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return HostPolicy{patterns: out}
}

// Trusted reports whether host (already canonical) matches any pattern.
// An empty policy trusts nothing.
func (p HostPolicy) Trusted(host string) bool {
	if host == "" {
		return false
	}
	for _, pat := range p.patterns {
		if strings.HasPrefix(pat, "*.") {
			if glob.Glob(pat, host) {
				return true
			}
			continue
		}
		if pat == host {
			return true
		}
	}
	return false
}

// CanonicalHost lower-cases h and strips any port and trailing dot.
func CanonicalHost(h string) string {
	h = strings.TrimSpace(h)
	if h == "" {
		return ""
	}
	if host, _, err := net.SplitHostPort(h); err == nil {
		h = host
	}
	h = strings.TrimSuffix(strings.Trim(h, "[]"), ".")
	return strings.ToLower(h)
}
