// Package resolver sequences lookups, submission and fallback links into one Result per URL.
package resolver

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/cache"
	"github.com/JakeFAU/archive-resolver/internal/clock/system"
	"github.com/JakeFAU/archive-resolver/internal/links"
	"github.com/JakeFAU/archive-resolver/internal/logging"
	"github.com/JakeFAU/archive-resolver/internal/metrics"
)

// DefaultTopic is the event name attached to published resolutions.
const DefaultTopic = "archive.resolution"

// publishTimeout bounds event publication after the result is final.
const publishTimeout = 5 * time.Second

// SourceCache marks results served from the cache.
const SourceCache = "cache"

// BrowserSubmitter is the browser form flow as seen by the resolver.
type BrowserSubmitter interface {
	archive.Submitter
	Configured() bool
	Close() error
}

// Closer releases a background resource such as the solver pool.
type Closer interface {
	Close()
}

// Config tunes the resolver.
type Config struct {
	// BrowserEnabled routes submissions through the browser when a solving credential exists.
	BrowserEnabled bool
	CacheTTL       time.Duration
	Topic          string
}

// Options wires collaborators. Every field may be nil except Links, which defaults to the
// archive.today generator.
type Options struct {
	Links     *links.Generator
	Lookups   []archive.Lookuper
	Submitter archive.Submitter
	Browser   BrowserSubmitter
	Solver    Closer
	Cache     cache.Cache
	Publisher archive.Publisher
	IDs       archive.IDGenerator
	Clock     archive.Clock
	Logger    *zap.Logger
}

// Resolver is the orchestrator. It is safe for concurrent use.
type Resolver struct {
	cfg       Config
	links     links.Generator
	lookups   []archive.Lookuper
	submitter archive.Submitter
	browser   BrowserSubmitter
	solver    Closer
	cache     cache.Cache
	publisher archive.Publisher
	ids       archive.IDGenerator
	clock     archive.Clock
	logger    *zap.Logger
}

// New builds a Resolver.
func New(cfg Config, opts Options) *Resolver {
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = cache.DefaultTTL
	}
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	r := &Resolver{
		cfg:       cfg,
		links:     links.New(""),
		lookups:   opts.Lookups,
		submitter: opts.Submitter,
		browser:   opts.Browser,
		solver:    opts.Solver,
		cache:     opts.Cache,
		publisher: opts.Publisher,
		ids:       opts.IDs,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}
	if opts.Links != nil {
		r.links = *opts.Links
	}
	if r.cache == nil {
		r.cache = cache.Nop{}
	}
	if r.clock == nil {
		r.clock = system.New()
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	r.logger = r.logger.Named("resolver")
	return r
}

// Links returns the manual search/create links for raw. It performs no I/O.
func (r *Resolver) Links(raw string) archive.ProviderLinks {
	return r.links.ForRaw(raw)
}

// Resolve finds or creates an archive for raw. Failures are reported in the Result.
func (r *Resolver) Resolve(ctx context.Context, raw string) archive.Result {
	return r.run(ctx, raw, false)
}

// Render skips cache and lookups and submits through the browser. Without a solving
// credential the Result carries a configuration error.
func (r *Resolver) Render(ctx context.Context, raw string) archive.Result {
	return r.run(ctx, raw, true)
}

// Shutdown closes the browser and the solver pool. It is idempotent.
func (r *Resolver) Shutdown(_ context.Context) error {
	var errs []error
	if r.browser != nil {
		if err := r.browser.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if r.solver != nil {
		r.solver.Close()
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown: %w", errors.Join(errs...))
	}
	r.logger.Info("resolver shut down")
	return nil
}

var tracer = otel.Tracer("github.com/JakeFAU/archive-resolver/internal/resolver")

func (r *Resolver) run(ctx context.Context, raw string, render bool) archive.Result {
	ctx = r.withRequestID(ctx)
	requestID := archive.RequestID(ctx)
	ctx, span := tracer.Start(ctx, "resolver.resolve", trace.WithAttributes(
		attribute.String("archive.input", raw),
		attribute.Bool("archive.render", render),
		attribute.String("archive.request_id", requestID),
	))
	defer span.End()
	logger := logging.ForRequest(ctx, r.logger).With(zap.String("input", raw))

	res := archive.Result{RequestID: requestID, Links: r.links.ForRaw(raw)}

	target, err := archive.ParseTarget(raw)
	if err != nil {
		res.Target = archive.EnsureScheme(raw)
		r.fail(&res, err)
		r.finish(ctx, logger, &res, "invalid")
		return res
	}
	res.Target = target.String()
	res.Links = r.links.For(target)
	logger = logger.With(zap.String("url", res.Target))

	if render {
		r.render(ctx, logger, target, &res)
		return res
	}

	if url, ok := r.cached(ctx, logger, target); ok {
		res.Found = true
		res.ArchiveURL = url
		res.Source = SourceCache
		r.finish(ctx, logger, &res, "cached")
		return res
	}

	if found, ok := r.lookup(ctx, logger, target); ok {
		res.Found = true
		res.ArchiveURL = found.ArchiveURL
		res.Source = found.Provider
		r.remember(ctx, logger, target, found.ArchiveURL)
		r.finish(ctx, logger, &res, "found")
		return res
	}

	sub := r.chooseSubmitter()
	if sub == nil {
		r.fail(&res, fmt.Errorf("no archive found and no submitter configured: %w", archive.ErrConfiguration))
		r.finish(ctx, logger, &res, "not_found")
		return res
	}
	r.submit(ctx, logger, sub, target, &res)
	return res
}

func (r *Resolver) render(ctx context.Context, logger *zap.Logger, target archive.Target, res *archive.Result) {
	if r.browser == nil || !r.browser.Configured() {
		r.fail(res, fmt.Errorf("render needs a solver api key: %w", archive.ErrConfiguration))
		r.finish(ctx, logger, res, "error")
		return
	}
	r.submit(ctx, logger, r.browser, target, res)
}

// lookup walks the lookup chain. A rate-limited provider ends the chain.
func (r *Resolver) lookup(ctx context.Context, logger *zap.Logger, target archive.Target) (archive.LookupOutcome, bool) {
	for _, l := range r.lookups {
		if ctx.Err() != nil {
			return archive.LookupOutcome{}, false
		}
		out := l.Lookup(ctx, target)
		if out.Provider == "" {
			out.Provider = l.Name()
		}
		metrics.ObserveLookup(out.Provider, string(out.Status))
		switch out.Status {
		case archive.LookupFound:
			logger.Info("archive found", zap.String("provider", out.Provider), zap.String("archive_url", out.ArchiveURL))
			return out, true
		case archive.LookupError:
			logger.Warn("lookup failed",
				zap.String("provider", out.Provider),
				zap.String("error_kind", archive.Classify(out.Err)),
				zap.Error(out.Err))
			if errors.Is(out.Err, archive.ErrRateLimited) {
				return archive.LookupOutcome{}, false
			}
		default:
			logger.Debug("no archive", zap.String("provider", out.Provider))
		}
	}
	return archive.LookupOutcome{}, false
}

func (r *Resolver) chooseSubmitter() archive.Submitter {
	if r.cfg.BrowserEnabled && r.browser != nil && r.browser.Configured() {
		return r.browser
	}
	if r.submitter != nil {
		return r.submitter
	}
	return nil
}

func (r *Resolver) submit(ctx context.Context, logger *zap.Logger, sub archive.Submitter, target archive.Target, res *archive.Result) {
	out := sub.Submit(ctx, target)
	if out.Provider == "" {
		out.Provider = sub.Name()
	}
	metrics.ObserveSubmission(out.Provider, string(out.Status))

	res.SubmissionAttempted = true
	res.Submission = out.Summary()
	res.Source = out.Provider

	switch out.Status {
	case archive.SubmissionCreated:
		res.Submitted = true
		res.ArchiveURL = out.ArchiveURL
		r.remember(ctx, logger, target, out.ArchiveURL)
		r.finish(ctx, logger, res, "created")
	case archive.SubmissionAccepted:
		res.Submitted = true
		r.finish(ctx, logger, res, "accepted")
	default:
		err := out.Err
		if err == nil {
			err = fmt.Errorf("submission %s", out.Status)
		}
		logger.Warn("submission failed",
			zap.String("provider", out.Provider),
			zap.String("status", string(out.Status)),
			zap.String("last_url", out.LastURL),
			zap.Error(err))
		r.fail(res, err)
		r.finish(ctx, logger, res, string(out.Status))
	}
}

func (r *Resolver) cached(ctx context.Context, logger *zap.Logger, target archive.Target) (string, bool) {
	url, ok, err := r.cache.Get(ctx, target.String())
	if err != nil {
		logger.Warn("cache read failed", zap.Error(err))
		return "", false
	}
	metrics.ObserveCache(ok)
	return url, ok
}

func (r *Resolver) remember(ctx context.Context, logger *zap.Logger, target archive.Target, archiveURL string) {
	if archiveURL == "" {
		return
	}
	if err := r.cache.Set(ctx, target.String(), archiveURL, r.cfg.CacheTTL); err != nil {
		logger.Warn("cache write failed", zap.Error(err))
	}
}

// fail records err on res with the manual fallback link appended.
func (r *Resolver) fail(res *archive.Result, err error) {
	msg := err.Error()
	if res.Links.Create != "" {
		msg = fmt.Sprintf("%s; archive manually at %s", msg, res.Links.Create)
	}
	res.Error = msg
}

func (r *Resolver) finish(ctx context.Context, logger *zap.Logger, res *archive.Result, outcome string) {
	metrics.ObserveResolution(outcome)
	trace.SpanFromContext(ctx).SetAttributes(
		attribute.String("archive.outcome", outcome),
		attribute.Bool("archive.found", res.Found),
		attribute.Bool("archive.submitted", res.Submitted),
	)
	logger.Info("resolution complete",
		zap.String("outcome", outcome),
		zap.Bool("found", res.Found),
		zap.Bool("submitted", res.Submitted),
		zap.String("archive_url", res.ArchiveURL))
	if r.publisher == nil {
		return
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	event := Event{Outcome: outcome, Result: *res, At: r.clock.Now().UTC()}
	if _, err := r.publisher.Publish(pubCtx, r.cfg.Topic, event); err != nil {
		logger.Warn("publish resolution failed", zap.Error(err))
	}
}

func (r *Resolver) withRequestID(ctx context.Context) context.Context {
	if archive.RequestID(ctx) != "" || r.ids == nil {
		return ctx
	}
	id, err := r.ids.NewID()
	if err != nil {
		r.logger.Warn("generate request id", zap.Error(err))
		return ctx
	}
	return archive.WithRequestID(ctx, id)
}
