package browser

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/JakeFAU/archive-resolver/internal/challenge"
	"github.com/JakeFAU/archive-resolver/internal/diagnostics"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	sleeps []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) total() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	var sum time.Duration
	for _, d := range c.sleeps {
		sum += d
	}
	return sum
}

// fakePage scripts how the archive form reacts to each interaction.
type fakePage struct {
	mu        sync.Mutex
	location  string
	html      string
	navErr    error
	fillErr   error
	navigated []string
	fills     map[string]string
	clicks    []string
	evals     []string
	reloads   int
	closed    bool

	afterClick  func(p *fakePage)
	afterEval   func(p *fakePage)
	afterReload func(p *fakePage)
}

func (p *fakePage) Navigate(_ context.Context, url string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigated = append(p.navigated, url)
	if p.navErr != nil {
		return p.navErr
	}
	p.location = url + "/"
	return nil
}

func (p *fakePage) Reload(context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.reloads++
	if p.afterReload != nil {
		p.afterReload(p)
	}
	return nil
}

func (p *fakePage) Location(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.location, nil
}

func (p *fakePage) Title(context.Context) (string, error) { return "archive.today", nil }

func (p *fakePage) HTML(context.Context) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.html, nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fillErr != nil {
		return p.fillErr
	}
	if p.fills == nil {
		p.fills = map[string]string{}
	}
	p.fills[selector] = value
	return nil
}

func (p *fakePage) Click(_ context.Context, selector string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.clicks = append(p.clicks, selector)
	if p.afterClick != nil {
		p.afterClick(p)
	}
	return nil
}

func (p *fakePage) Eval(_ context.Context, script string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.evals = append(p.evals, script)
	if p.afterEval != nil {
		p.afterEval(p)
	}
	return nil
}

func (p *fakePage) Screenshot(context.Context) ([]byte, error) { return []byte("png"), nil }

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

type fakeBrowser struct {
	mu     sync.Mutex
	pages  []*fakePage
	newPg  func() *fakePage
	closes int
}

func (b *fakeBrowser) NewPage(ctx context.Context) (Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if b.newPg == nil {
		return nil, errors.New("browser crashed")
	}
	p := b.newPg()
	b.pages = append(b.pages, p)
	return p, nil
}

func (b *fakeBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closes++
	return nil
}

type fakeLauncher struct {
	mu       sync.Mutex
	launches int
	browsers []*fakeBrowser
	newPg    func() *fakePage
	err      error
}

func (l *fakeLauncher) Launch(context.Context) (Browser, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.launches++
	if l.err != nil {
		return nil, l.err
	}
	b := &fakeBrowser{newPg: l.newPg}
	l.browsers = append(l.browsers, b)
	return b, nil
}

func (l *fakeLauncher) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.launches
}

type fakeSolver struct {
	mu         sync.Mutex
	configured bool
	token      string
	err        error
	calls      []challenge.Challenge
}

func (s *fakeSolver) Configured() bool { return s.configured }

func (s *fakeSolver) Solve(_ context.Context, ch challenge.Challenge) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls = append(s.calls, ch)
	return s.token, s.err
}

type recordingSink struct {
	mu     sync.Mutex
	states []string
	shots  int
}

func (r *recordingSink) Record(_ context.Context, a diagnostics.Artifact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, a.State)
	if len(a.Screenshot) > 0 {
		r.shots++
	}
}

func (r *recordingSink) trace() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return strings.Join(r.states, ">")
}
