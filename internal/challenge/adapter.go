package challenge

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/metrics"
)

// DefaultTimeout bounds one solve including queueing for a slot.
const DefaultTimeout = 120 * time.Second

// kindSolver maps a challenge onto a service call.
type kindSolver func(ctx context.Context, c *Client, ch Challenge) (string, error)

var kindSolvers = map[Kind]kindSolver{
	KindHCaptcha: func(ctx context.Context, c *Client, ch Challenge) (string, error) {
		return c.SolveHCaptcha(ctx, ch.SiteKey, ch.PageURL)
	},
	KindRecaptcha: func(ctx context.Context, c *Client, ch Challenge) (string, error) {
		return c.SolveRecaptcha(ctx, ch.SiteKey, ch.PageURL, ch.Invisible)
	},
}

// AdapterConfig configures an Adapter.
type AdapterConfig struct {
	Client  *Client
	Workers int
	Timeout time.Duration
	Logger  *zap.Logger
}

// Adapter dispatches solves by kind onto a bounded pool.
type Adapter struct {
	client  *Client
	pool    *Pool
	timeout time.Duration
	logger  *zap.Logger
}

var _ Solver = (*Adapter)(nil)

// NewAdapter builds an Adapter.
func NewAdapter(cfg AdapterConfig) *Adapter {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{
		client:  cfg.Client,
		pool:    NewPool(cfg.Workers),
		timeout: timeout,
		logger:  logger.Named("challenge"),
	}
}

// Configured reports whether a solving credential is available.
func (a *Adapter) Configured() bool {
	return a != nil && a.client.HasCredential()
}

// Solve returns a token for ch or an error wrapping archive.ErrChallengeUnsolved,
// archive.ErrConfiguration or ErrPoolClosed.
func (a *Adapter) Solve(ctx context.Context, ch Challenge) (string, error) {
	if !a.Configured() {
		return "", fmt.Errorf("no solver credential: %w", archive.ErrConfiguration)
	}
	solve, ok := kindSolvers[ch.Kind]
	if !ok {
		metrics.ObserveChallenge(string(ch.Kind), "unsupported")
		return "", fmt.Errorf("%w %q: %w", ErrUnsupportedKind, ch.Kind, archive.ErrChallengeUnsolved)
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	token, err := a.pool.Do(ctx, func(ctx context.Context) (string, error) {
		return solve(ctx, a.client, ch)
	})
	metrics.ObserveSolveDuration(string(ch.Kind), time.Since(start))

	if err == nil && token == "" {
		err = errors.New("empty token")
	}
	if err != nil {
		metrics.ObserveChallenge(string(ch.Kind), "failed")
		a.logger.Warn("challenge solve failed",
			zap.String("kind", string(ch.Kind)),
			zap.String("page_url", ch.PageURL),
			zap.Error(err))
		if errors.Is(err, archive.ErrConfiguration) {
			return "", err
		}
		return "", fmt.Errorf("solve %s: %w: %w", ch.Kind, archive.ErrChallengeUnsolved, err)
	}
	metrics.ObserveChallenge(string(ch.Kind), "solved")
	return token, nil
}

// Close shuts down the pool. Later solves fail with ErrPoolClosed.
func (a *Adapter) Close() {
	if a == nil {
		return
	}
	a.pool.Close()
}
