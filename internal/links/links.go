// Package links builds the static search/create URLs for a manual archive provider.
package links

import (
	"net/url"
	"strings"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

// DefaultBaseURL is the archive.today front door.
const DefaultBaseURL = "https://archive.today"

// Generator derives ProviderLinks from a target. It performs no I/O.
type Generator struct {
	base string
}

// New returns a Generator rooted at baseURL, or DefaultBaseURL when empty.
func New(baseURL string) Generator {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		base = DefaultBaseURL
	}
	return Generator{base: base}
}

// For returns the links for an already normalized target.
func (g Generator) For(target archive.Target) archive.ProviderLinks {
	return g.forString(target.String())
}

// ForRaw normalizes raw best-effort and returns its links. It never fails.
func (g Generator) ForRaw(raw string) archive.ProviderLinks {
	if target, err := archive.ParseTarget(raw); err == nil {
		return g.For(target)
	}
	return g.forString(archive.EnsureScheme(raw))
}

func (g Generator) forString(normalized string) archive.ProviderLinks {
	base := g.base
	if base == "" {
		base = DefaultBaseURL
	}
	enc := Escape(normalized)
	return archive.ProviderLinks{
		Search: base + "/" + enc,
		Create: base + "/?run=1&url=" + enc,
	}
}

// Escape percent-encodes s leaving only RFC 3986 unreserved characters literal.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}
