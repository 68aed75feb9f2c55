package challenge

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	"github.com/JakeFAU/archive-resolver/internal/clock/system"
)

const (
	// DefaultServiceURL is the SolveCaptcha endpoint; it speaks the 2captcha in.php/res.php protocol.
	DefaultServiceURL = "https://api.solvecaptcha.com"
	// DefaultPollInterval is the wait between result polls.
	DefaultPollInterval = 5 * time.Second

	notReady = "CAPCHA_NOT_READY"
)

// credentialErrors are service replies that mean the API key itself is unusable.
var credentialErrors = map[string]bool{
	"ERROR_WRONG_USER_KEY":     true,
	"ERROR_KEY_DOES_NOT_EXIST": true,
	"ERROR_ZERO_BALANCE":       true,
	"ERROR_IP_NOT_ALLOWED":     true,
}

// ClientConfig configures the solving service client.
type ClientConfig struct {
	APIKey       string
	BaseURL      string
	PollInterval time.Duration
	Clock        archive.Clock
	HTTPClient   *http.Client
	Logger       *zap.Logger
}

// Client talks to a 2captcha-compatible solving service.
type Client struct {
	apiKey       string
	baseURL      string
	pollInterval time.Duration
	clock        archive.Clock
	http         *http.Client
	logger       *zap.Logger
}

// NewClient builds a service client.
func NewClient(cfg ClientConfig) *Client {
	c := &Client{
		apiKey:       strings.TrimSpace(cfg.APIKey),
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		pollInterval: cfg.PollInterval,
		clock:        cfg.Clock,
		http:         cfg.HTTPClient,
		logger:       cfg.Logger,
	}
	if c.baseURL == "" {
		c.baseURL = DefaultServiceURL
	}
	if c.pollInterval <= 0 {
		c.pollInterval = DefaultPollInterval
	}
	if c.clock == nil {
		c.clock = system.New()
	}
	if c.http == nil {
		c.http = &http.Client{Timeout: 30 * time.Second}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	c.logger = c.logger.Named("solver")
	return c
}

// HasCredential reports whether an API key is configured.
func (c *Client) HasCredential() bool {
	return c != nil && c.apiKey != ""
}

type serviceReply struct {
	Status  int    `json:"status"`
	Request string `json:"request"`
}

// SolveHCaptcha submits an hCaptcha task and waits for its token.
func (c *Client) SolveHCaptcha(ctx context.Context, siteKey, pageURL string) (string, error) {
	form := url.Values{}
	form.Set("method", "hcaptcha")
	form.Set("sitekey", siteKey)
	form.Set("pageurl", pageURL)
	return c.solve(ctx, form)
}

// SolveRecaptcha submits a reCAPTCHA v2 task and waits for its token.
func (c *Client) SolveRecaptcha(ctx context.Context, siteKey, pageURL string, invisible bool) (string, error) {
	form := url.Values{}
	form.Set("method", "userrecaptcha")
	form.Set("googlekey", siteKey)
	form.Set("pageurl", pageURL)
	if invisible {
		form.Set("invisible", "1")
	}
	return c.solve(ctx, form)
}

func (c *Client) solve(ctx context.Context, form url.Values) (string, error) {
	if !c.HasCredential() {
		return "", fmt.Errorf("solver api key: %w", archive.ErrConfiguration)
	}
	form.Set("key", c.apiKey)
	form.Set("json", "1")

	id, err := c.submitTask(ctx, form)
	if err != nil {
		return "", err
	}
	c.logger.Debug("task submitted", zap.String("task_id", id), zap.String("method", form.Get("method")))

	for {
		if err := c.clock.Sleep(ctx, c.pollInterval); err != nil {
			return "", fmt.Errorf("await solver task %s: %w", id, err)
		}
		token, ready, err := c.poll(ctx, id)
		if err != nil {
			return "", err
		}
		if ready {
			return token, nil
		}
	}
}

func (c *Client) submitTask(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/in.php", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build solver request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	reply, err := c.do(req)
	if err != nil {
		return "", err
	}
	if reply.Status != 1 {
		return "", c.replyError("submit task", reply.Request)
	}
	return reply.Request, nil
}

func (c *Client) poll(ctx context.Context, id string) (string, bool, error) {
	q := url.Values{}
	q.Set("key", c.apiKey)
	q.Set("action", "get")
	q.Set("id", id)
	q.Set("json", "1")
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/res.php?"+q.Encode(), nil)
	if err != nil {
		return "", false, fmt.Errorf("build poll request: %w", err)
	}

	reply, err := c.do(req)
	if err != nil {
		return "", false, err
	}
	if reply.Status == 1 {
		return reply.Request, true, nil
	}
	if reply.Request == notReady {
		return "", false, nil
	}
	return "", false, c.replyError("poll task "+id, reply.Request)
}

func (c *Client) do(req *http.Request) (serviceReply, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return serviceReply{}, fmt.Errorf("solver request: %w: %w", archive.ErrNetwork, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return serviceReply{}, fmt.Errorf("solver status %d: %w", resp.StatusCode, archive.ErrUnexpectedResponse)
	}
	var reply serviceReply
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&reply); err != nil {
		return serviceReply{}, fmt.Errorf("decode solver reply: %w: %w", archive.ErrUnexpectedResponse, err)
	}
	return reply, nil
}

func (c *Client) replyError(op, code string) error {
	if credentialErrors[code] {
		return fmt.Errorf("%s: %s: %w", op, code, archive.ErrConfiguration)
	}
	return fmt.Errorf("%s: %s: %w", op, code, archive.ErrChallengeUnsolved)
}
