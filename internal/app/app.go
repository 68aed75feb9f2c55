// Package app builds the long-lived services from configuration, acting as a dependency injection container.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/api"
	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/browser"
	"github.com/JakeFAU/archive-resolver/internal/cache"
	memcache "github.com/JakeFAU/archive-resolver/internal/cache/memory"
	rediscache "github.com/JakeFAU/archive-resolver/internal/cache/redis"
	"github.com/JakeFAU/archive-resolver/internal/challenge"
	"github.com/JakeFAU/archive-resolver/internal/clock/system"
	"github.com/JakeFAU/archive-resolver/internal/config"
	"github.com/JakeFAU/archive-resolver/internal/diagnostics"
	"github.com/JakeFAU/archive-resolver/internal/id/uuid"
	"github.com/JakeFAU/archive-resolver/internal/links"
	"github.com/JakeFAU/archive-resolver/internal/lookup"
	pubsubpublisher "github.com/JakeFAU/archive-resolver/internal/publisher/pubsub"
	"github.com/JakeFAU/archive-resolver/internal/ratelimit"
	"github.com/JakeFAU/archive-resolver/internal/resolver"
	"github.com/JakeFAU/archive-resolver/internal/retry"
	"github.com/JakeFAU/archive-resolver/internal/storage"
	"github.com/JakeFAU/archive-resolver/internal/storage/gcs"
	"github.com/JakeFAU/archive-resolver/internal/storage/local"
	memstore "github.com/JakeFAU/archive-resolver/internal/storage/memory"
	"github.com/JakeFAU/archive-resolver/internal/submit"
	"github.com/JakeFAU/archive-resolver/internal/telemetry"
	"github.com/JakeFAU/archive-resolver/internal/watchlist"
	memwatch "github.com/JakeFAU/archive-resolver/internal/watchlist/memory"
	pgwatch "github.com/JakeFAU/archive-resolver/internal/watchlist/postgres"
)

// App holds all the shared, long-lived services for the application.
type App struct {
	cfg       config.Config
	logger    *zap.Logger
	resolver  *resolver.Resolver
	watchlist watchlist.Store
	ids       archive.IDGenerator

	closers []func() error
	checks  []func(ctx context.Context) error
}

// Resolver returns the orchestrator.
func (a *App) Resolver() *resolver.Resolver {
	return a.resolver
}

// Watchlist returns the watch-list store.
func (a *App) Watchlist() watchlist.Store {
	return a.watchlist
}

// Logger returns the shared logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Handler builds the HTTP API over the app's services.
func (a *App) Handler() http.Handler {
	var key string
	if a.cfg.Auth.Enabled {
		key = a.cfg.Auth.APIKey
	}
	return api.NewServer(api.Options{
		Resolver:       a.resolver,
		Watchlist:      a.watchlist,
		IDs:            a.ids,
		APIKey:         key,
		RequestTimeout: a.cfg.RequestTimeout(),
		Ready:          a.Ready,
		Logger:         a.logger,
	}).Handler()
}

// Ready runs every backend health check.
func (a *App) Ready(ctx context.Context) error {
	for _, check := range a.checks {
		if err := check(ctx); err != nil {
			return err
		}
	}
	return nil
}

// New creates the App from cfg. It fails fast if a configured backend cannot be reached;
// anything already opened is closed before returning the error.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *App, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger, ids: uuid.New()}
	defer func() {
		if err != nil {
			_ = a.closeAll()
		}
	}()

	logger.Info("initializing application services")

	if cfg.Tracing.Enabled {
		tp, err := telemetry.InitTracerProvider(ctx, cfg.Tracing.ServiceName)
		if err != nil {
			return nil, fmt.Errorf("init tracing: %w", err)
		}
		a.closers = append(a.closers, func() error {
			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			return tp.Shutdown(shutdownCtx)
		})
	}

	sink, err := a.buildSink(ctx)
	if err != nil {
		return nil, err
	}
	resultCache, err := a.buildCache(ctx)
	if err != nil {
		return nil, err
	}
	if a.watchlist, err = a.buildWatchlist(ctx); err != nil {
		return nil, err
	}
	publisher, err := a.buildPublisher(ctx)
	if err != nil {
		return nil, err
	}

	clock := system.New()
	linkGen := links.New(cfg.Providers.ArchiveTodayBase)

	solver := challenge.NewAdapter(challenge.AdapterConfig{
		Client: challenge.NewClient(challenge.ClientConfig{
			APIKey:       cfg.Challenge.APIKey,
			BaseURL:      cfg.Challenge.ServiceURL,
			PollInterval: cfg.SolvePollInterval(),
			Clock:        clock,
			Logger:       logger,
		}),
		Workers: cfg.Challenge.Workers,
		Timeout: cfg.SolveTimeout(),
		Logger:  logger,
	})

	nav, poll, interval, settle := cfg.BrowserTimings()
	controller := browser.NewController(browser.Config{
		LandingURL:   cfg.Providers.ArchiveTodayBase,
		ArchiveHosts: cfg.Browser.ArchiveHosts,
		NavTimeout:   nav,
		PollTimeout:  poll,
		PollInterval: interval,
		Settle:       settle,
		URLField:     cfg.Browser.URLFieldSelector,
		SubmitButton: cfg.Browser.SubmitButtonSelector,
		Screenshots:  cfg.Browser.Screenshots,
	}, browser.Options{
		Launcher: browser.NewChromeLauncher(browser.ChromeConfig{
			ExecPath:  cfg.Browser.ExecPath,
			RemoteURL: cfg.Browser.RemoteURL,
			Headless:  cfg.Browser.Headless,
		}, logger),
		Solver: solver,
		Sink:   sink,
		Clock:  clock,
		Logger: logger,
	})
	if cfg.Browser.Enabled && !controller.Configured() {
		logger.Warn("browser submissions enabled without a solver api key; falling back to the HTTP save path")
	}

	initial, maxDelay := cfg.Backoff()
	saver := submit.New(submit.Config{
		SaveURL:   cfg.Providers.WaybackSave,
		Timeout:   cfg.SubmitTimeout(),
		UserAgent: cfg.Providers.UserAgent,
		Policy:    retry.NewExponentialPolicy(cfg.Submit.MaxAttempts, initial, maxDelay),
		Clock:     clock,
		Limiter: ratelimit.New(ratelimit.Config{
			DefaultRPS:   cfg.Submit.RateLimitRPS,
			DefaultBurst: cfg.Submit.RateLimitBurst,
		}),
		Logger: logger,
	})

	a.resolver = resolver.New(resolver.Config{
		BrowserEnabled: cfg.Browser.Enabled,
		CacheTTL:       cfg.CacheTTL(),
	}, resolver.Options{
		Links:     &linkGen,
		Lookups:   buildLookups(cfg, logger),
		Submitter: saver,
		Browser:   controller,
		Solver:    solver,
		Cache:     resultCache,
		Publisher: publisher,
		IDs:       a.ids,
		Clock:     clock,
		Logger:    logger,
	})

	logger.Info("application services initialized",
		zap.Strings("lookups", cfg.Lookup.Order),
		zap.Bool("browser_enabled", cfg.Browser.Enabled),
		zap.Bool("solver_configured", controller.Configured()),
		zap.String("cache", cfg.Cache.Backend),
		zap.String("watchlist", cfg.Watchlist.Backend))
	return a, nil
}

func buildLookups(cfg config.Config, logger *zap.Logger) []archive.Lookuper {
	out := make([]archive.Lookuper, 0, len(cfg.Lookup.Order))
	for _, name := range cfg.Lookup.Order {
		switch name {
		case "wayback":
			out = append(out, lookup.NewWayback(lookup.WaybackConfig{
				AvailabilityURL: cfg.Providers.WaybackAvailable,
				Timeout:         cfg.LookupTimeout(),
				UserAgent:       cfg.Providers.UserAgent,
				Logger:          logger,
			}))
		case "archive_today":
			out = append(out, lookup.NewNewest(lookup.NewestConfig{
				BaseURL:   cfg.Providers.ArchiveTodayBase,
				Timeout:   cfg.LookupTimeout(),
				UserAgent: cfg.Providers.UserAgent,
				Logger:    logger,
			}))
		}
	}
	return out
}

func (a *App) buildSink(ctx context.Context) (diagnostics.Sink, error) {
	logSink := diagnostics.NewLogSink(a.logger)
	switch a.cfg.Diagnostics.Sink {
	case "none":
		return diagnostics.Nop{}, nil
	case "blob":
		store, err := a.buildBlobStore(ctx)
		if err != nil {
			return nil, err
		}
		return diagnostics.Multi{logSink, diagnostics.NewBlobSink(store, a.logger)}, nil
	default:
		return logSink, nil
	}
}

func (a *App) buildBlobStore(ctx context.Context) (storage.BlobStore, error) {
	sc := a.cfg.Storage
	switch sc.Backend {
	case "gcs":
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: sc.GCSBucket, Prefix: sc.Prefix})
		if err != nil {
			return nil, fmt.Errorf("init gcs store: %w", err)
		}
		a.logger.Info("diagnostics stored in gcs", zap.String("bucket", sc.GCSBucket))
		return store, nil
	case "memory":
		return memstore.NewBlobStore(), nil
	default:
		store, err := local.New(local.Config{BaseDir: sc.LocalDir})
		if err != nil {
			return nil, fmt.Errorf("init local store: %w", err)
		}
		a.logger.Info("diagnostics stored on disk", zap.String("dir", sc.LocalDir))
		return store, nil
	}
}

func (a *App) buildCache(ctx context.Context) (cache.Cache, error) {
	cc := a.cfg.Cache
	switch cc.Backend {
	case "redis":
		c, err := rediscache.New(ctx, rediscache.Config{
			Addr:      cc.RedisAddr,
			Password:  cc.RedisPassword,
			DB:        cc.RedisDB,
			KeyPrefix: cc.KeyPrefix,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("init redis cache: %w", err)
		}
		a.closers = append(a.closers, c.Close)
		a.checks = append(a.checks, c.Ping)
		return c, nil
	case "none":
		return cache.Nop{}, nil
	default:
		return memcache.New(nil), nil
	}
}

func (a *App) buildWatchlist(ctx context.Context) (watchlist.Store, error) {
	wc := a.cfg.Watchlist
	var store watchlist.Store
	switch wc.Backend {
	case "postgres":
		pg, err := pgwatch.New(ctx, pgwatch.Config{DSN: wc.DSN, Table: wc.Table, MaxConns: wc.MaxConns})
		if err != nil {
			return nil, fmt.Errorf("init watch list: %w", err)
		}
		a.closers = append(a.closers, func() error { pg.Close(); return nil })
		store = pg
	default:
		store = memwatch.New()
	}
	for _, raw := range wc.Seed {
		domain, err := watchlist.NormalizeDomain(raw)
		if err != nil {
			return nil, fmt.Errorf("watchlist.seed %q: %w", raw, err)
		}
		if _, err := store.Add(ctx, domain, "config"); err != nil {
			return nil, fmt.Errorf("seed watch list: %w", err)
		}
	}
	return store, nil
}

func (a *App) buildPublisher(ctx context.Context) (archive.Publisher, error) {
	pc := a.cfg.PubSub
	if !pc.Enabled {
		return nil, nil
	}
	client, err := pubsub.NewClient(ctx, pc.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("create pubsub client: %w", err)
	}
	pub := pubsubpublisher.New(client.Topic(pc.TopicName))
	a.closers = append(a.closers, func() error {
		pub.Stop()
		return client.Close()
	})
	a.logger.Info("publishing resolutions", zap.String("topic", pc.TopicName))
	return pub, nil
}

// Run serves the HTTP API until ctx is canceled or SIGINT/SIGTERM arrives, then shuts down.
func (a *App) Run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
		Handler:           a.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		a.logger.Info("http server started", zap.Int("port", a.cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	a.logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("server shutdown error", zap.Error(err))
	}
	return nil
}

// Close shuts down the resolver, then every backend in reverse order of creation.
func (a *App) Close(ctx context.Context) error {
	a.logger.Info("shutting down application services")
	var errs []error
	if a.resolver != nil {
		if err := a.resolver.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}
	_ = a.logger.Sync()
	return errors.Join(errs...)
}

func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
