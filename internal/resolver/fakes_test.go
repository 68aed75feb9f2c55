package resolver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

type fakeLookuper struct {
	name  string
	out   archive.LookupOutcome
	calls atomic.Int32
}

func (f *fakeLookuper) Name() string { return f.name }

func (f *fakeLookuper) Lookup(context.Context, archive.Target) archive.LookupOutcome {
	f.calls.Add(1)
	out := f.out
	out.Provider = f.name
	return out
}

type fakeSubmitter struct {
	name  string
	out   archive.SubmissionOutcome
	calls atomic.Int32

	mu      sync.Mutex
	targets []string
}

func (f *fakeSubmitter) Name() string { return f.name }

func (f *fakeSubmitter) Submit(_ context.Context, target archive.Target) archive.SubmissionOutcome {
	f.calls.Add(1)
	f.mu.Lock()
	f.targets = append(f.targets, target.String())
	f.mu.Unlock()
	out := f.out
	out.Provider = f.name
	return out
}

type fakeBrowser struct {
	fakeSubmitter
	configured bool
	closes     atomic.Int32
}

func (f *fakeBrowser) Configured() bool { return f.configured }

func (f *fakeBrowser) Close() error {
	f.closes.Add(1)
	return nil
}

type fakeSolver struct {
	closes atomic.Int32
}

func (f *fakeSolver) Close() { f.closes.Add(1) }

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() (string, error) { return f.id, nil }

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

func (c fixedClock) Sleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }
