package secretname

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNameCollision is returned when two configured domains map to the
// same secret name segment.
var ErrNameCollision = errors.New("secret name collision")

// maxLength is the secret-store limit on handle names (Docker Swarm caps
// secret names at 64 characters).
const maxLength = 64

// Role identifies one file of a certificate bundle.
type Role string

const (
	RoleCert    Role = "cert"
	RoleKey     Role = "key"
	RoleChain   Role = "chain"
	RoleArchive Role = "archive"
)

// FileRoles are the bundle roles stored as individual secrets, in the
// order they appear in a bundle. RoleArchive is last because it is the
// optional convenience format.
var FileRoles = []Role{RoleCert, RoleKey, RoleChain, RoleArchive}

// PEMRoles are the roles that must always be present in a complete bundle.
var PEMRoles = []Role{RoleCert, RoleKey, RoleChain}

// File returns the bundle file name for the role. These match the layout
// the ACME client writes under its trusted storage directory.
func (r Role) File() string {
	switch r {
	case RoleCert:
		return "cert.pem"
	case RoleKey:
		return "privkey.pem"
	case RoleChain:
		return "fullchain.pem"
	case RoleArchive:
		return "bundle.p12"
	}
	return string(r)
}

// Build returns the deterministic secret name for one bundle file of one
// run. Collision avoidance: the run identifier makes names unique per
// cycle, and the sanitized domain plus role file make them unique within
// a cycle. If the combined name would exceed the store's length limit the
// domain segment is truncated; role and run identifier are never cut so
// Prefix-based lookups and per-run correlation keep working.
func Build(domain string, role Role, runID string) string {
	suffix := "-" + role.File() + "-" + runID
	dom := Sanitize(domain)
	if len(dom)+len(suffix) > maxLength {
		dom = dom[:maxLength-len(suffix)]
		dom = strings.TrimRight(dom, "-")
	}
	return dom + suffix
}

// Prefix returns the name prefix shared by all runs' secrets for one
// domain and role. Used for existence probes and retention pruning.
func Prefix(domain string, role Role) string {
	suffix := "-" + role.File() + "-"
	dom := Sanitize(domain)
	// Mirror Build's truncation so the prefix matches truncated names too.
	if len(dom)+len(suffix)+runIDLength > maxLength {
		dom = dom[:maxLength-len(suffix)-runIDLength]
		dom = strings.TrimRight(dom, "-")
	}
	return dom + suffix
}

// runIDLength is the fixed length of identifiers produced by pkg/runid.
const runIDLength = 24

// RunID extracts the run identifier suffix from a secret name produced by
// Build, or "" if the name is too short to carry one.
func RunID(name string) string {
	if len(name) < runIDLength {
		return ""
	}
	return name[len(name)-runIDLength:]
}

// ValidateDistinct reports whether the given domains produce distinct
// secret names. The sanitized mapping is lossy, so distinct domains like
// "a-b.com" and "a.b.com" collide; configurations carrying such a pair
// are rejected up front rather than silently sharing secrets. Truncation
// of over-long domains is checked with the longest role suffix, which
// trims the most.
func ValidateDistinct(domains []string) error {
	seen := make(map[string]string, len(domains))
	for _, domain := range domains {
		segment := Prefix(domain, RoleChain)
		if prev, ok := seen[segment]; ok && prev != domain {
			return fmt.Errorf("%w: %q and %q both map to %q", ErrNameCollision, prev, domain, Sanitize(domain))
		}
		seen[segment] = domain
	}
	return nil
}

// Sanitize lowercases the domain and maps every character outside
// [a-z0-9-] to a dash, so "*.Example.COM" becomes "--example-com"
// trimmed to "example-com". Dots become dashes to keep the domain
// segment visually distinct from the role file name, which keeps its dot.
//
// The mapping is lossy: "a-b.com" and "a.b.com" sanitize identically.
// Use ValidateDistinct to reject domain sets that collide.
func Sanitize(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))

	var b strings.Builder
	b.Grow(len(domain))
	for _, r := range domain {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}

	s := strings.Trim(b.String(), "-")
	for strings.Contains(s, "--") {
		s = strings.ReplaceAll(s, "--", "-")
	}
	if s == "" {
		return "domain"
	}
	return s
}
