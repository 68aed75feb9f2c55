// Package watchlist keeps the set of paywalled domains whose links are resolved automatically.
package watchlist

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"time"
)

// ErrInvalidDomain is returned for input that does not name a host.
var ErrInvalidDomain = errors.New("invalid domain")

// Site is one watched domain.
type Site struct {
	Domain  string    `json:"domain"`
	AddedBy string    `json:"added_by,omitempty"`
	AddedAt time.Time `json:"added_at"`
}

// Store persists watched domains. Domains passed in must already be normalized.
type Store interface {
	// Add returns false when the domain was already present.
	Add(ctx context.Context, domain, addedBy string) (bool, error)
	// Remove returns false when the domain was not present.
	Remove(ctx context.Context, domain string) (bool, error)
	// List returns all sites ordered by domain.
	List(ctx context.Context) ([]Site, error)
}

// NormalizeDomain lowercases raw and strips any scheme, path, port and leading "www.".
func NormalizeDomain(raw string) (string, error) {
	d := strings.ToLower(strings.TrimSpace(raw))
	if strings.HasPrefix(d, "http://") || strings.HasPrefix(d, "https://") {
		u, err := url.Parse(d)
		if err != nil {
			return "", ErrInvalidDomain
		}
		d = u.Host
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, ok := strings.Cut(d, ":"); ok {
		d = host
	}
	d = strings.TrimPrefix(d, "www.")
	d = strings.Trim(d, ".")
	if d == "" || strings.ContainsAny(d, " \t") {
		return "", ErrInvalidDomain
	}
	return d, nil
}

// HostMatches reports whether host overlaps any watched domain. Matching is by substring in
// either direction, so "nytimes.com" covers "cooking.nytimes.com".
func HostMatches(host string, domains []string) bool {
	h := strings.TrimPrefix(strings.ToLower(host), "www.")
	if h == "" {
		return false
	}
	for _, d := range domains {
		if d == "" {
			continue
		}
		if strings.Contains(h, d) || strings.Contains(d, h) {
			return true
		}
	}
	return false
}

// Domains returns just the domain names from sites.
func Domains(sites []Site) []string {
	out := make([]string, 0, len(sites))
	for _, s := range sites {
		out = append(out, s.Domain)
	}
	return out
}
