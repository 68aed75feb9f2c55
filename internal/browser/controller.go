package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/challenge"
	"github.com/JakeFAU/archive-resolver/internal/clock/system"
	"github.com/JakeFAU/archive-resolver/internal/diagnostics"
	"github.com/JakeFAU/archive-resolver/internal/metrics"
)

// Defaults for Config fields left zero.
const (
	DefaultLandingURL   = "https://archive.today"
	DefaultNavTimeout   = 30 * time.Second
	DefaultPollTimeout  = 120 * time.Second
	DefaultPollInterval = 2 * time.Second
	DefaultSettle       = 2 * time.Second
	DefaultURLField     = `input[name="url"]`
	DefaultSubmitButton = `input[type="submit"]`

	providerName = "archive_today"
	// diagTimeout bounds best-effort page reads made only for diagnostics.
	diagTimeout = 5 * time.Second
)

// Solver is the challenge adapter as seen by the controller.
type Solver interface {
	Configured() bool
	Solve(ctx context.Context, ch challenge.Challenge) (string, error)
}

// Config tunes the submission flow.
type Config struct {
	LandingURL   string
	ArchiveHosts []string
	NavTimeout   time.Duration
	PollTimeout  time.Duration
	PollInterval time.Duration
	Settle       time.Duration
	URLField     string
	SubmitButton string
	// Screenshots attaches a PNG to every diagnostic artifact.
	Screenshots bool
}

func (c Config) withDefaults() Config {
	if c.LandingURL == "" {
		c.LandingURL = DefaultLandingURL
	}
	if c.NavTimeout <= 0 {
		c.NavTimeout = DefaultNavTimeout
	}
	if c.PollTimeout <= 0 {
		c.PollTimeout = DefaultPollTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Settle <= 0 {
		c.Settle = DefaultSettle
	}
	if c.URLField == "" {
		c.URLField = DefaultURLField
	}
	if c.SubmitButton == "" {
		c.SubmitButton = DefaultSubmitButton
	}
	return c
}

// Controller owns the shared browser and runs one submission flow per call.
type Controller struct {
	cfg      Config
	hosts    hostMatcher
	launcher Launcher
	solver   Solver
	sink     diagnostics.Sink
	clock    archive.Clock
	logger   *zap.Logger

	mu      sync.Mutex
	browser Browser
}

var _ archive.Submitter = (*Controller)(nil)

// Options wires the controller's collaborators. Only Launcher and Solver are required.
type Options struct {
	Launcher Launcher
	Solver   Solver
	Sink     diagnostics.Sink
	Clock    archive.Clock
	Logger   *zap.Logger
}

// NewController builds a Controller. The browser is not started until first use.
func NewController(cfg Config, opts Options) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:      cfg,
		hosts:    newHostMatcher(cfg.ArchiveHosts),
		launcher: opts.Launcher,
		solver:   opts.Solver,
		sink:     opts.Sink,
		clock:    opts.Clock,
		logger:   opts.Logger,
	}
	if c.sink == nil {
		c.sink = diagnostics.Nop{}
	}
	if c.clock == nil {
		c.clock = system.New()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("browser")
	return c
}

// Name identifies the provider in outcomes and metrics.
func (c *Controller) Name() string { return providerName }

// Configured reports whether a solving credential is available.
func (c *Controller) Configured() bool {
	return c.solver != nil && c.solver.Configured()
}

// Submit runs the form flow for target. Without a solving credential it fails with
// archive.ErrConfiguration before touching the browser.
func (c *Controller) Submit(ctx context.Context, target archive.Target) archive.SubmissionOutcome {
	if !c.Configured() {
		return archive.SubmissionOutcome{
			Provider: providerName,
			Status:   archive.SubmissionError,
			Attempts: 1,
			Err:      fmt.Errorf("browser submission needs a solver api key: %w", archive.ErrConfiguration),
		}
	}

	b, err := c.ensure(ctx)
	if err != nil {
		return c.failed(fmt.Errorf("start browser: %w: %w", archive.ErrNetwork, err))
	}
	page, err := b.NewPage(ctx)
	if err != nil {
		// The browser is shared; a caller giving up says nothing about its health.
		if ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return c.failed(fmt.Errorf("open page: %w: %w", archive.ErrTimeout, err))
		}
		c.discard(b)
		return c.failed(fmt.Errorf("open page: %w: %w", archive.ErrNetwork, err))
	}
	defer func() { _ = page.Close() }()

	s := &session{
		c:         c,
		page:      page,
		target:    target,
		requestID: archive.RequestID(ctx),
		logger:    c.logger.With(zap.String("url", target.String()), zap.String("request_id", archive.RequestID(ctx))),
		state:     StateIdle,
	}
	out := s.run(ctx)
	out.Provider = providerName
	out.Attempts = 1
	return out
}

// Close shuts the browser down. It is idempotent and safe before first use; a later
// Submit starts a new browser.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser == nil {
		return nil
	}
	err := c.browser.Close()
	c.browser = nil
	if err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	c.logger.Info("browser closed")
	return nil
}

// ensure returns the shared browser, launching it on first use.
func (c *Controller) ensure(ctx context.Context) (Browser, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != nil {
		return c.browser, nil
	}
	if c.launcher == nil {
		return nil, errors.New("no browser launcher configured")
	}
	b, err := c.launcher.Launch(ctx)
	if err != nil {
		return nil, err
	}
	c.browser = b
	return b, nil
}

// discard drops b so the next call relaunches, unless another caller already replaced it.
func (c *Controller) discard(b Browser) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.browser != b {
		return
	}
	_ = b.Close()
	c.browser = nil
}

func (c *Controller) failed(err error) archive.SubmissionOutcome {
	c.logger.Warn("browser submission failed", zap.Error(err))
	return archive.SubmissionOutcome{Provider: providerName, Status: archive.SubmissionError, Attempts: 1, Err: err}
}

// session is the state of one submission flow.
type session struct {
	c         *Controller
	page      Page
	target    archive.Target
	requestID string
	logger    *zap.Logger
	state     State
	seq       int
	lastURL   string
}

func (s *session) run(ctx context.Context) archive.SubmissionOutcome {
	cfg := s.c.cfg

	s.enter(ctx, StateNavigating, cfg.LandingURL)
	navCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	err := s.page.Navigate(navCtx, cfg.LandingURL)
	cancel()
	if err != nil {
		return s.fail(ctx, archive.SubmissionError, fmt.Errorf("load %s: %w: %w", cfg.LandingURL, archive.ErrNetwork, err))
	}

	if err := s.clearChallenge(ctx, StateChallengeCheck); err != nil {
		return s.fail(ctx, archive.SubmissionChallengeFailed, err)
	}

	s.enter(ctx, StateSubmitForm, "")
	formCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
	err = s.page.Fill(formCtx, cfg.URLField, s.target.String())
	if err == nil {
		err = s.page.Click(formCtx, cfg.SubmitButton)
	}
	cancel()
	if err != nil {
		return s.fail(ctx, archive.SubmissionError, fmt.Errorf("submit form: %w: %w", archive.ErrUnexpectedResponse, err))
	}
	if err := s.c.clock.Sleep(ctx, cfg.Settle); err != nil {
		return s.fail(ctx, archive.SubmissionError, err)
	}

	if err := s.clearChallenge(ctx, StatePostSubmitChallengeCheck); err != nil {
		return s.fail(ctx, archive.SubmissionChallengeFailed, err)
	}

	return s.poll(ctx)
}

// clearChallenge inspects the page and, when a widget is found, solves it once.
func (s *session) clearChallenge(ctx context.Context, check State) error {
	s.enter(ctx, check, "")
	det, err := s.detect(ctx)
	if err != nil {
		return err
	}
	switch det.Verdict {
	case challenge.VerdictNone:
		s.enter(ctx, StateNoChallenge, "")
		return nil
	case challenge.VerdictSuspected:
		metrics.ObserveChallenge("unknown", "undetected")
		return fmt.Errorf("challenge suspected but no site key found: %w", archive.ErrChallengeUnsolved)
	}

	ch := det.Challenge
	s.enter(ctx, StateSolving, fmt.Sprintf("%s via %s", ch.Kind, det.Strategy))
	start := time.Now()
	token, err := s.c.solver.Solve(ctx, ch)
	if err != nil {
		if errors.Is(err, archive.ErrChallengeUnsolved) {
			return err
		}
		return fmt.Errorf("%w: %w", archive.ErrChallengeUnsolved, err)
	}
	s.logger.Info("challenge solved", zap.String("kind", string(ch.Kind)), zap.Duration("elapsed", time.Since(start)))

	evalCtx, cancel := context.WithTimeout(ctx, s.c.cfg.NavTimeout)
	err = s.page.Eval(evalCtx, injectTokenScript(token))
	cancel()
	if err != nil {
		return fmt.Errorf("inject token: %w: %w", archive.ErrChallengeUnsolved, err)
	}
	if err := s.c.clock.Sleep(ctx, s.c.cfg.Settle); err != nil {
		return err
	}

	after, err := s.detect(ctx)
	if err != nil {
		return err
	}
	if after.Verdict != challenge.VerdictNone {
		metrics.ObserveChallenge(string(ch.Kind), "rejected")
		return fmt.Errorf("challenge still present after solve: %w", archive.ErrChallengeUnsolved)
	}
	return nil
}

func (s *session) detect(ctx context.Context) (challenge.Detection, error) {
	readCtx, cancel := context.WithTimeout(ctx, s.c.cfg.NavTimeout)
	defer cancel()
	html, err := s.page.HTML(readCtx)
	if err != nil {
		return challenge.Detection{}, fmt.Errorf("read page: %w: %w", archive.ErrUnexpectedResponse, err)
	}
	loc, _ := s.page.Location(readCtx)
	if loc != "" {
		s.lastURL = loc
	}
	return challenge.Detect(html, loc), nil
}

// poll waits for the page to land on a finished capture, reloading work-in-progress pages.
func (s *session) poll(ctx context.Context) archive.SubmissionOutcome {
	cfg := s.c.cfg
	s.enter(ctx, StatePolling, "")
	start := s.c.clock.Now()
	deadline := start.Add(cfg.PollTimeout)

	for {
		if err := ctx.Err(); err != nil {
			metrics.ObservePoll("canceled", s.c.clock.Now().Sub(start))
			return s.fail(ctx, archive.SubmissionError, fmt.Errorf("polling canceled: %w", err))
		}

		readCtx, cancel := context.WithTimeout(ctx, cfg.NavTimeout)
		loc, err := s.page.Location(readCtx)
		if err == nil && loc != "" {
			s.lastURL = loc
			switch {
			case IsInProgress(loc):
				if err := s.page.Reload(readCtx); err != nil {
					s.logger.Debug("reload failed", zap.Error(err))
				}
			case s.c.hosts.isCapture(loc):
				cancel()
				metrics.ObservePoll("done", s.c.clock.Now().Sub(start))
				s.enter(ctx, StateDone, loc)
				return archive.SubmissionOutcome{Status: archive.SubmissionCreated, ArchiveURL: loc, LastURL: loc}
			}
		} else if err != nil {
			s.logger.Debug("read location failed", zap.Error(err))
		}
		cancel()

		if !s.c.clock.Now().Before(deadline) {
			metrics.ObservePoll("timeout", s.c.clock.Now().Sub(start))
			s.enter(ctx, StateTimeout, s.lastURL)
			return archive.SubmissionOutcome{
				Status:  archive.SubmissionError,
				LastURL: s.lastURL,
				Err: fmt.Errorf("capture not finished after %s (last address %q): %w",
					cfg.PollTimeout, s.lastURL, archive.ErrTimeout),
			}
		}
		if err := s.c.clock.Sleep(ctx, cfg.PollInterval); err != nil {
			metrics.ObservePoll("canceled", s.c.clock.Now().Sub(start))
			return s.fail(ctx, archive.SubmissionError, fmt.Errorf("polling canceled: %w", err))
		}
	}
}

func (s *session) fail(ctx context.Context, status archive.SubmissionStatus, err error) archive.SubmissionOutcome {
	s.enter(ctx, StateFailed, err.Error())
	s.logger.Warn("browser submission failed", zap.String("status", string(status)), zap.Error(err))
	return archive.SubmissionOutcome{Status: status, LastURL: s.lastURL, Err: err}
}

// enter records a transition. Page reads here are best effort and never change the flow.
func (s *session) enter(ctx context.Context, next State, note string) {
	s.logger.Debug("state transition", zap.String("from", string(s.state)), zap.String("to", string(next)))
	s.state = next
	s.seq++

	readCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), diagTimeout)
	defer cancel()
	a := diagnostics.Artifact{
		RequestID: s.requestID,
		Sequence:  s.seq,
		State:     string(next),
		URL:       s.lastURL,
		Note:      note,
		At:        s.c.clock.Now(),
	}
	if loc, err := s.page.Location(readCtx); err == nil && loc != "" {
		a.URL = loc
	}
	if title, err := s.page.Title(readCtx); err == nil {
		a.Title = title
	}
	if s.c.cfg.Screenshots {
		if png, err := s.page.Screenshot(readCtx); err == nil {
			a.Screenshot = png
		}
	}
	s.c.sink.Record(readCtx, a)
}

// injectTokenScript writes token into the response fields, then fires the widget callback
// or submits the enclosing form.
func injectTokenScript(token string) string {
	quoted, _ := json.Marshal(token)
	return fmt.Sprintf(`(function(token) {
  var fields = document.querySelectorAll('[name="h-captcha-response"], [name="g-recaptcha-response"]');
  for (var i = 0; i < fields.length; i++) {
    fields[i].value = token;
    fields[i].innerHTML = token;
  }
  var widget = document.querySelector('[data-callback]');
  if (widget) {
    var name = widget.getAttribute('data-callback');
    if (name && typeof window[name] === 'function') {
      window[name](token);
      return true;
    }
  }
  var form = (fields.length && fields[0].form) || (widget && widget.closest('form')) || document.querySelector('form');
  if (form) {
    form.submit();
    return true;
  }
  return false;
})(%s)`, quoted)
}
