package tenant

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
)

var subdomainPattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// Reserved hostname labels that never resolve to a tenant.
var reservedSubdomains = map[string]struct{}{
	"www": {},
	"app": {},
}

// NormalizeSubdomain trims whitespace, lowercases the value, and ensures it
// matches the canonical subdomain pattern: alphanumeric/hyphen with no
// leading or trailing hyphen.
func NormalizeSubdomain(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", errors.New("subdomain is required")
	}

	normalized := strings.ToLower(trimmed)
	if !subdomainPattern.MatchString(normalized) {
		return "", fmt.Errorf("invalid subdomain %q: must match ^[a-z0-9]+(?:-[a-z0-9]+)*$", input)
	}

	return normalized, nil
}

// IsReservedSubdomain reports whether a hostname label can never identify a tenant.
func IsReservedSubdomain(label string) bool {
	_, reserved := reservedSubdomains[strings.ToLower(label)]
	return reserved
}

// SubdomainFromHost extracts the candidate tenant label from a request host.
// Hosts with two or fewer labels, or whose first label is reserved, yield "".
func SubdomainFromHost(host string) string {
	// Strip a port if present.
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}

	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return ""
	}
	if IsReservedSubdomain(labels[0]) {
		return ""
	}
	return strings.ToLower(labels[0])
}

// ToSnake converts a subdomain into snake_case for database naming.
func ToSnake(subdomain string) string {
	return strings.ReplaceAll(strings.ToLower(subdomain), "-", "_")
}

// BuildDatabaseName returns the canonical per-tenant database name.
// Format: tenant_<subdomainSnake>.
func BuildDatabaseName(subdomainSnake string) string {
	return "tenant_" + subdomainSnake
}

// DeriveStoreURL rewrites the master DSN to point at the tenant's isolated
// database. Tenant store addresses are never configured individually; they
// are derived deterministically from tenant identity.
func DeriveStoreURL(masterURL, subdomain string) (string, error) {
	normalized, err := NormalizeSubdomain(subdomain)
	if err != nil {
		return "", err
	}

	parsed, err := url.Parse(masterURL)
	if err != nil {
		return "", fmt.Errorf("parse master url: %w", err)
	}
	if parsed.Host == "" {
		return "", fmt.Errorf("master url %q has no host", masterURL)
	}

	parsed.Path = "/" + BuildDatabaseName(ToSnake(normalized))
	return parsed.String(), nil
}
