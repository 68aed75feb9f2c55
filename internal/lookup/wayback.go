package lookup

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/fetcher"
	collyfetcher "github.com/JakeFAU/archive-resolver/internal/fetcher/colly"
)

const (
	// DefaultAvailabilityURL is the public Wayback availability endpoint.
	DefaultAvailabilityURL = "https://archive.org/wayback/available"
	// DefaultTimeout bounds a single lookup.
	DefaultTimeout = 10 * time.Second

	waybackName  = "wayback"
	maxBodyBytes = 1 << 20
)

// WaybackConfig configures a Wayback lookup client.
type WaybackConfig struct {
	AvailabilityURL string
	Timeout         time.Duration
	UserAgent       string
	Fetcher         fetcher.Fetcher
	Logger          *zap.Logger
}

// Wayback queries the availability API for the closest snapshot.
type Wayback struct {
	endpoint  string
	timeout   time.Duration
	userAgent string
	fetcher   fetcher.Fetcher
	logger    *zap.Logger
}

var _ archive.Lookuper = (*Wayback)(nil)

// NewWayback builds a Wayback lookup client.
func NewWayback(cfg WaybackConfig) *Wayback {
	endpoint := cfg.AvailabilityURL
	if endpoint == "" {
		endpoint = DefaultAvailabilityURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	f := cfg.Fetcher
	if f == nil {
		f = collyfetcher.New(collyfetcher.Config{UserAgent: cfg.UserAgent, Timeout: timeout, MaxBodySize: maxBodyBytes})
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Wayback{
		endpoint:  endpoint,
		timeout:   timeout,
		userAgent: cfg.UserAgent,
		fetcher:   f,
		logger:    logger.Named("wayback"),
	}
}

// Name identifies the provider in outcomes and metrics.
func (w *Wayback) Name() string { return waybackName }

type availabilityResponse struct {
	ArchivedSnapshots struct {
		Closest *struct {
			Available *bool  `json:"available"`
			URL       string `json:"url"`
			Timestamp string `json:"timestamp"`
			Status    string `json:"status"`
		} `json:"closest"`
	} `json:"archived_snapshots"`
}

// Lookup asks the availability API whether target has a snapshot.
func (w *Wayback) Lookup(ctx context.Context, target archive.Target) archive.LookupOutcome {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	reqURL := w.endpoint + "?url=" + url.QueryEscape(target.String())
	resp, err := get(ctx, w.fetcher, reqURL, w.userAgent)
	if err != nil {
		w.logger.Debug("availability request failed", zap.String("url", target.String()), zap.Error(err))
		return archive.LookupFailed(waybackName, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return archive.LookupFailed(waybackName, fmt.Errorf("availability api: %w", archive.ErrRateLimited))
	case resp.StatusCode != http.StatusOK:
		return archive.LookupFailed(waybackName,
			fmt.Errorf("availability api status %d: %w", resp.StatusCode, archive.ErrUnexpectedResponse))
	}

	var body availabilityResponse
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return archive.LookupFailed(waybackName,
			fmt.Errorf("decode availability response: %w: %w", archive.ErrUnexpectedResponse, err))
	}

	closest := body.ArchivedSnapshots.Closest
	if closest == nil || strings.TrimSpace(closest.URL) == "" {
		return archive.NotFound(waybackName)
	}
	if closest.Available != nil && !*closest.Available {
		return archive.NotFound(waybackName)
	}
	w.logger.Debug("snapshot found",
		zap.String("url", target.String()),
		zap.String("snapshot", closest.URL),
		zap.String("timestamp", closest.Timestamp))
	return archive.Found(waybackName, closest.URL)
}

// get performs one GET through f, mapping transport failures to archive.ErrNetwork.
func get(ctx context.Context, f fetcher.Fetcher, rawURL, userAgent string) (fetcher.Response, error) {
	req := fetcher.Request{URL: rawURL}
	if userAgent != "" {
		req.Headers = http.Header{"User-Agent": {userAgent}}
	}
	resp, err := f.Fetch(ctx, req)
	if err != nil {
		return fetcher.Response{}, fmt.Errorf("%w: %w", archive.ErrNetwork, err)
	}
	return resp, nil
}
