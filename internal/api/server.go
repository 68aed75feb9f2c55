package api

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/metrics"
	"github.com/JakeFAU/archive-resolver/internal/watchlist"
)

// DefaultRequestTimeout bounds one request when Options leaves it zero. Browser
// submissions can take minutes.
const DefaultRequestTimeout = 5 * time.Minute

const (
	// maxScanURLs caps how many watched URLs one scan resolves.
	maxScanURLs = 10
	// scanConcurrency caps how many of them resolve at once.
	scanConcurrency = 4
)

// Resolver is the engine as seen by the HTTP layer.
type Resolver interface {
	Resolve(ctx context.Context, raw string) archive.Result
	Render(ctx context.Context, raw string) archive.Result
	Links(raw string) archive.ProviderLinks
}

// Options configures a Server.
type Options struct {
	Resolver  Resolver
	Watchlist watchlist.Store
	IDs       archive.IDGenerator
	// APIKey enables X-API-Key checks on /v1 routes when non-empty.
	APIKey         string
	RequestTimeout time.Duration
	// Ready reports downstream readiness for /readyz. Nil means always ready.
	Ready  func(ctx context.Context) error
	Logger *zap.Logger
}

// Server wires HTTP handlers to the resolver and watch list.
type Server struct {
	router    chi.Router
	resolver  Resolver
	watchlist watchlist.Store
	ready     func(ctx context.Context) error
	logger    *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}
	s := &Server{
		resolver:  opts.Resolver,
		watchlist: opts.Watchlist,
		ready:     opts.Ready,
		logger:    logger.Named("api"),
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware(opts.IDs))
	r.Use(loggingMiddleware(s.logger))
	r.Use(recoverMiddleware(s.logger))
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Use(timeoutMiddleware(timeout))
		if opts.APIKey != "" {
			r.Use(apiKeyMiddleware(opts.APIKey))
		}
		r.Post("/resolve", s.resolve)
		r.Get("/links", s.links)
		r.Post("/scan", s.scan)
		r.Route("/sites", func(r chi.Router) {
			r.Get("/", s.listSites)
			r.Post("/", s.addSite)
			r.Delete("/{domain}", s.removeSite)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, r *http.Request) {
	if s.ready != nil {
		if err := s.ready(r.Context()); err != nil {
			s.logger.Warn("readiness check failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type resolveRequest struct {
	URL    string `json:"url"`
	Render bool   `json:"render"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if strings.TrimSpace(req.URL) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	var res archive.Result
	if req.Render {
		res = s.resolver.Render(r.Context(), req.URL)
	} else {
		res = s.resolver.Resolve(r.Context(), req.URL)
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) links(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("url")
	if strings.TrimSpace(raw) == "" {
		writeError(w, http.StatusBadRequest, "url required")
		return
	}
	writeJSON(w, http.StatusOK, s.resolver.Links(raw))
}

type scanRequest struct {
	Text string `json:"text"`
}

type scanResponse struct {
	Results []archive.Result `json:"results"`
}

// scan resolves every watched URL found in free text, concurrently and in input order.
func (s *Server) scan(w http.ResponseWriter, r *http.Request) {
	if s.watchlist == nil {
		writeError(w, http.StatusNotImplemented, "watch list not configured")
		return
	}
	var req scanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sites, err := s.watchlist.List(r.Context())
	if err != nil {
		s.logger.Error("list watch list", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load watch list")
		return
	}
	urls := watchlist.MatchURLs(req.Text, watchlist.Domains(sites))
	if len(urls) > maxScanURLs {
		urls = urls[:maxScanURLs]
	}

	results := make([]archive.Result, len(urls))
	var g errgroup.Group
	g.SetLimit(scanConcurrency)
	for i, u := range urls {
		g.Go(func() error {
			results[i] = s.resolver.Resolve(r.Context(), u)
			return nil
		})
	}
	_ = g.Wait()
	writeJSON(w, http.StatusOK, scanResponse{Results: results})
}

type siteRequest struct {
	Domain  string `json:"domain"`
	AddedBy string `json:"added_by"`
}

func (s *Server) listSites(w http.ResponseWriter, r *http.Request) {
	if s.watchlist == nil {
		writeError(w, http.StatusNotImplemented, "watch list not configured")
		return
	}
	sites, err := s.watchlist.List(r.Context())
	if err != nil {
		s.logger.Error("list watch list", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list sites")
		return
	}
	if sites == nil {
		sites = []watchlist.Site{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sites": sites})
}

func (s *Server) addSite(w http.ResponseWriter, r *http.Request) {
	if s.watchlist == nil {
		writeError(w, http.StatusNotImplemented, "watch list not configured")
		return
	}
	var req siteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	domain, err := watchlist.NormalizeDomain(req.Domain)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	added, err := s.watchlist.Add(r.Context(), domain, req.AddedBy)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !added {
		writeJSON(w, http.StatusOK, map[string]any{"domain": domain, "added": false})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"domain": domain, "added": true})
}

func (s *Server) removeSite(w http.ResponseWriter, r *http.Request) {
	if s.watchlist == nil {
		writeError(w, http.StatusNotImplemented, "watch list not configured")
		return
	}
	domain, err := watchlist.NormalizeDomain(chi.URLParam(r, "domain"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	removed, err := s.watchlist.Remove(r.Context(), domain)
	if err != nil {
		s.writeStoreError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "site not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) writeStoreError(w http.ResponseWriter, err error) {
	s.logger.Error("watch list store", zap.Error(err))
	writeError(w, http.StatusInternalServerError, "watch list unavailable")
}
