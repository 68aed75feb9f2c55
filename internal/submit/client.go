// Package submit asks an HTTP save endpoint to capture a page, retrying transient failures.
package submit

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/clock/system"
	"github.com/JakeFAU/archive-resolver/internal/fetcher"
	collyfetcher "github.com/JakeFAU/archive-resolver/internal/fetcher/colly"
	"github.com/JakeFAU/archive-resolver/internal/metrics"
	"github.com/JakeFAU/archive-resolver/internal/ratelimit"
	"github.com/JakeFAU/archive-resolver/internal/retry"
)

const (
	// DefaultSaveURL is the Wayback save endpoint; the target URL is appended verbatim.
	DefaultSaveURL = "https://web.archive.org/save/"
	// DefaultTimeout bounds a single save request.
	DefaultTimeout = 60 * time.Second

	providerName = "wayback_save"
	maxBodyBytes = 64 << 10
)

// DefaultCreatedPattern matches the final address of a freshly captured Wayback page.
var DefaultCreatedPattern = regexp.MustCompile(`/web/\d{14}[^/]*/`)

// Config configures a save Client.
type Config struct {
	SaveURL        string
	Timeout        time.Duration
	UserAgent      string
	CreatedPattern *regexp.Regexp
	Policy         retry.Policy
	Clock          archive.Clock
	Limiter        *ratelimit.Limiter
	Fetcher        fetcher.Fetcher
	Logger         *zap.Logger
}

// Client submits targets to an HTTP save endpoint.
type Client struct {
	saveURL   string
	timeout   time.Duration
	userAgent string
	created   *regexp.Regexp
	policy    retry.Policy
	clock     archive.Clock
	limiter   *ratelimit.Limiter
	fetcher   fetcher.Fetcher
	logger    *zap.Logger
}

var _ archive.Submitter = (*Client)(nil)

// New builds a save Client, filling unset fields with defaults.
func New(cfg Config) *Client {
	c := &Client{
		saveURL:   cfg.SaveURL,
		timeout:   cfg.Timeout,
		userAgent: cfg.UserAgent,
		created:   cfg.CreatedPattern,
		policy:    cfg.Policy,
		clock:     cfg.Clock,
		limiter:   cfg.Limiter,
		fetcher:   cfg.Fetcher,
		logger:    cfg.Logger,
	}
	if c.saveURL == "" {
		c.saveURL = DefaultSaveURL
	}
	if c.timeout <= 0 {
		c.timeout = DefaultTimeout
	}
	if c.created == nil {
		c.created = DefaultCreatedPattern
	}
	if c.policy.MaxAttempts() == 0 {
		c.policy = retry.NewExponentialPolicy(0, 0, 0)
	}
	if c.clock == nil {
		c.clock = system.New()
	}
	if c.fetcher == nil {
		c.fetcher = collyfetcher.New(collyfetcher.Config{UserAgent: c.userAgent, Timeout: c.timeout, MaxBodySize: maxBodyBytes})
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("submit")
	return c
}

// Name identifies the provider in outcomes and metrics.
func (c *Client) Name() string { return providerName }

// Submit requests a capture of target. Rate limiting and network failures are retried
// with exponential backoff; other failures return immediately.
func (c *Client) Submit(ctx context.Context, target archive.Target) archive.SubmissionOutcome {
	for attempt := 1; ; attempt++ {
		out, hint := c.attempt(ctx, target)
		out.Attempts = attempt
		metrics.ObserveSubmissionAttempt(providerName)

		if out.Succeeded() {
			return out
		}
		if !c.policy.ShouldRetry(out.Err, attempt) {
			if archive.Transient(out.Err) {
				out.Err = retry.Exhausted(attempt, out.Err)
				out.Status = archive.SubmissionError
			}
			return out
		}

		delay := c.policy.Delay(attempt, hint)
		c.logger.Info("retrying submission",
			zap.String("url", target.String()),
			zap.Int("attempt", attempt),
			zap.Duration("delay", delay),
			zap.String("reason", archive.Classify(out.Err)))
		if err := c.policy.Wait(ctx, c.clock, attempt, hint); err != nil {
			out.Err = fmt.Errorf("submission interrupted: %w", err)
			out.Status = archive.SubmissionError
			return out
		}
	}
}

// attempt performs one save request and returns the outcome plus any Retry-After hint.
func (c *Client) attempt(ctx context.Context, target archive.Target) (archive.SubmissionOutcome, time.Duration) {
	reqURL := c.saveURL + target.String()
	if err := c.limiter.Wait(ctx, reqURL); err != nil {
		return failed(fmt.Errorf("throttle: %w", err)), 0
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req := fetcher.Request{URL: reqURL}
	if c.userAgent != "" {
		req.Headers = http.Header{"User-Agent": {c.userAgent}}
	}
	resp, err := c.fetcher.Fetch(ctx, req)
	if err != nil {
		return failed(fmt.Errorf("save request: %w: %w", archive.ErrNetwork, err)), 0
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		final := resp.URL
		if c.created.MatchString(final) {
			return archive.SubmissionOutcome{Provider: providerName, Status: archive.SubmissionCreated, ArchiveURL: final}, 0
		}
		return archive.SubmissionOutcome{Provider: providerName, Status: archive.SubmissionAccepted}, 0
	case resp.StatusCode == http.StatusTooManyRequests:
		return archive.SubmissionOutcome{
			Provider: providerName,
			Status:   archive.SubmissionRateLimited,
			Err:      fmt.Errorf("save endpoint: %w", archive.ErrRateLimited),
		}, c.retryAfter(resp.Headers.Get("Retry-After"))
	default:
		return failed(fmt.Errorf("save endpoint status %d: %w", resp.StatusCode, archive.ErrUnexpectedResponse)), 0
	}
}

// retryAfter parses a Retry-After header given as seconds or an HTTP date.
func (c *Client) retryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(c.clock.Now()); d > 0 {
			return d
		}
	}
	return 0
}

func failed(err error) archive.SubmissionOutcome {
	return archive.SubmissionOutcome{Provider: providerName, Status: archive.SubmissionError, Err: err}
}
