package lookup

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/fetcher"
	collyfetcher "github.com/JakeFAU/archive-resolver/internal/fetcher/colly"
)

const (
	// DefaultNewestBaseURL is the archive.today mirror queried for the latest capture.
	DefaultNewestBaseURL = "https://archive.today"

	newestName    = "archive_today"
	newestSegment = "/newest/"
)

// NewestConfig configures the redirect-to-newest lookup client.
type NewestConfig struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// Fetcher must return redirects unfollowed; the default does.
	Fetcher fetcher.Fetcher
	Logger  *zap.Logger
}

// Newest asks archive.today for its newest capture without following the redirect.
type Newest struct {
	base      string
	timeout   time.Duration
	userAgent string
	fetcher   fetcher.Fetcher
	logger    *zap.Logger
}

var _ archive.Lookuper = (*Newest)(nil)

// NewNewest builds a redirect-to-newest lookup client.
func NewNewest(cfg NewestConfig) *Newest {
	base := strings.TrimRight(cfg.BaseURL, "/")
	if base == "" {
		base = DefaultNewestBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := cfg.Fetcher
	if f == nil {
		f = collyfetcher.New(collyfetcher.Config{
			UserAgent:   cfg.UserAgent,
			Timeout:     timeout,
			MaxBodySize: maxBodyBytes,
			NoRedirects: true,
		})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Newest{
		base:      base,
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		fetcher:   f,
		logger:    logger.Named("newest"),
	}
}

// Name identifies the provider in outcomes and metrics.
func (n *Newest) Name() string { return newestName }

// Lookup requests <base>/newest/<target> and reads the redirect target.
func (n *Newest) Lookup(ctx context.Context, target archive.Target) archive.LookupOutcome {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	resp, err := get(ctx, n.fetcher, n.base+newestSegment+target.String(), n.userAgent)
	if err != nil {
		n.logger.Debug("newest request failed", zap.String("url", target.String()), zap.Error(err))
		return archive.LookupFailed(newestName, err)
	}

	switch {
	case isRedirect(resp.StatusCode):
		loc, err := resp.Location()
		if err != nil {
			if errors.Is(err, fetcher.ErrNoLocation) {
				return archive.LookupFailed(newestName,
					fmt.Errorf("redirect %d without location: %w", resp.StatusCode, archive.ErrUnexpectedResponse))
			}
			return archive.LookupFailed(newestName,
				fmt.Errorf("parse location: %w: %w", archive.ErrUnexpectedResponse, err))
		}
		if strings.Contains(loc.String(), newestSegment) {
			return archive.NotFound(newestName)
		}
		return archive.Found(newestName, loc.String())
	case resp.StatusCode == http.StatusTooManyRequests:
		return archive.LookupFailed(newestName, fmt.Errorf("newest endpoint: %w", archive.ErrRateLimited))
	case resp.StatusCode == http.StatusNotFound, resp.StatusCode == http.StatusOK:
		return archive.NotFound(newestName)
	default:
		return archive.LookupFailed(newestName,
			fmt.Errorf("newest endpoint status %d: %w", resp.StatusCode, archive.ErrUnexpectedResponse))
	}
}

func isRedirect(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	}
	return false
}
