package archive

import (
	"fmt"
	"net/url"
	"strings"
)

// Target is a normalized absolute http(s) URL that should be archived.
type Target struct {
	raw    string
	parsed *url.URL
}

// EnsureScheme prefixes inputs lacking an http(s) scheme with https://. It never fails.
func EnsureScheme(raw string) string {
	s := strings.TrimSpace(raw)
	lower := strings.ToLower(s)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return s
	case strings.HasPrefix(s, "//"):
		return "https:" + s
	case strings.Contains(s, "://"):
		return s
	default:
		return "https://" + s
	}
}

// ParseTarget normalizes raw into a Target. Inputs without a scheme are treated as https.
func ParseTarget(raw string) (Target, error) {
	if strings.TrimSpace(raw) == "" {
		return Target{}, fmt.Errorf("%w: empty url", ErrInvalidTarget)
	}
	s := EnsureScheme(raw)
	parsed, err := url.Parse(s)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	parsed.Scheme = strings.ToLower(parsed.Scheme)
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, parsed.Scheme)
	}
	if parsed.Host == "" {
		return Target{}, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}
	parsed.Host = strings.ToLower(parsed.Host)
	return Target{raw: parsed.String(), parsed: parsed}, nil
}

// MustParseTarget is ParseTarget for tests and constants; it panics on invalid input.
func MustParseTarget(raw string) Target {
	t, err := ParseTarget(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// String returns the normalized URL.
func (t Target) String() string {
	return t.raw
}

// Host returns the lowercase host name without port.
func (t Target) Host() string {
	if t.parsed == nil {
		return ""
	}
	return t.parsed.Hostname()
}

// IsZero reports whether the target was never parsed.
func (t Target) IsZero() bool {
	return t.raw == ""
}
