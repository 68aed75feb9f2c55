// Package fetcher defines the single-request HTTP abstraction used by the lookup and
// submission clients.
package fetcher

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// ErrNoLocation is returned by Response.Location when the response carries no Location header.
var ErrNoLocation = errors.New("no location header")

// Request describes one GET.
type Request struct {
	URL     string
	Headers http.Header
}

// Response is the outcome of a completed exchange, whatever its status code.
type Response struct {
	// URL is the final address after any redirects were followed.
	URL        string
	StatusCode int
	Headers    http.Header
	Body       []byte
	Duration   time.Duration
}

// Location resolves the Location header against the response URL.
func (r Response) Location() (*url.URL, error) {
	raw := r.Headers.Get("Location")
	if raw == "" {
		return nil, ErrNoLocation
	}
	loc, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("parse location %q: %w", raw, err)
	}
	base, err := url.Parse(r.URL)
	if err != nil {
		return loc, nil
	}
	return base.ResolveReference(loc), nil
}

// Fetcher performs a single GET. A non-nil error means no response was received;
// HTTP error statuses are reported in Response.StatusCode.
type Fetcher interface {
	Fetch(ctx context.Context, req Request) (Response, error)
}
