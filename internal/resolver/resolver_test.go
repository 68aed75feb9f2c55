package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-resolver/internal/archive"
	memcache "github.com/JakeFAU/archive-resolver/internal/cache/memory"
	"github.com/JakeFAU/archive-resolver/internal/links"
	"github.com/JakeFAU/archive-resolver/internal/lookup"
	"github.com/JakeFAU/archive-resolver/internal/publisher/memory"
)

func TestResolveEndToEndFound(t *testing.T) {
	t.Parallel()

	const snapshot = "https://archive.example/20240101/https://example.com/a"
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = fmt.Fprintf(w, `{"archived_snapshots":{"closest":{"available":true,"status":"200","url":%q,"timestamp":"20240101000000"}}}`, snapshot)
	}))
	t.Cleanup(srv.Close)

	sub := &fakeSubmitter{name: "wayback_save"}
	pub := memory.New()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	r := New(Config{}, Options{
		Lookups:   []archive.Lookuper{lookup.NewWayback(lookup.WaybackConfig{AvailabilityURL: srv.URL})},
		Submitter: sub,
		Publisher: pub,
		IDs:       fixedIDs{id: "req-1"},
		Clock:     fixedClock{now: at},
	})

	res := r.Resolve(context.Background(), "https://example.com/a")
	require.True(t, res.Found)
	require.Equal(t, snapshot, res.ArchiveURL)
	require.False(t, res.Submitted)
	require.False(t, res.SubmissionAttempted)
	require.Empty(t, res.Error)
	require.Equal(t, "wayback", res.Source)
	require.Equal(t, "req-1", res.RequestID)
	require.NotEmpty(t, res.Links.Search)
	require.NotEmpty(t, res.Links.Create)
	require.Zero(t, sub.calls.Load())

	msgs := pub.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, DefaultTopic, msgs[0].Topic)
	event, ok := msgs[0].Payload.(Event)
	require.True(t, ok)
	require.Equal(t, "found", event.Outcome)
	require.Equal(t, snapshot, event.Result.ArchiveURL)
	require.Equal(t, at, event.At, "event time comes from the injected clock")
}

func TestResolveFoundNeverSubmits(t *testing.T) {
	t.Parallel()

	first := &fakeLookuper{name: "wayback", out: archive.NotFound("")}
	second := &fakeLookuper{name: "archive_today", out: archive.Found("", "https://archive.ph/abc12")}
	third := &fakeLookuper{name: "unused", out: archive.NotFound("")}
	sub := &fakeSubmitter{name: "wayback_save"}
	browser := &fakeBrowser{fakeSubmitter: fakeSubmitter{name: "archive_today"}, configured: true}

	r := New(Config{BrowserEnabled: true}, Options{
		Lookups:   []archive.Lookuper{first, second, third},
		Submitter: sub,
		Browser:   browser,
	})

	res := r.Resolve(context.Background(), "example.com/page")
	require.True(t, res.Found)
	require.Equal(t, "https://archive.ph/abc12", res.ArchiveURL)
	require.Equal(t, "archive_today", res.Source)
	require.Equal(t, "https://example.com/page", res.Target)
	require.Zero(t, sub.calls.Load())
	require.Zero(t, browser.calls.Load())
	require.Zero(t, third.calls.Load())
}

func TestResolveRateLimitedLookupStopsChain(t *testing.T) {
	t.Parallel()

	limited := &fakeLookuper{name: "archive_today", out: archive.LookupFailed("", fmt.Errorf("newest: %w", archive.ErrRateLimited))}
	next := &fakeLookuper{name: "wayback", out: archive.Found("", "https://web.archive.org/web/1/x")}
	sub := &fakeSubmitter{name: "wayback_save", out: archive.SubmissionOutcome{Status: archive.SubmissionAccepted, Attempts: 1}}

	r := New(Config{}, Options{Lookups: []archive.Lookuper{limited, next}, Submitter: sub})
	res := r.Resolve(context.Background(), "https://example.com/a")

	require.Zero(t, next.calls.Load())
	require.Equal(t, int32(1), sub.calls.Load())
	require.False(t, res.Found)
	require.True(t, res.SubmissionAttempted)
	require.True(t, res.Submitted)
	require.Equal(t, "wayback_save", res.Source)
	require.Empty(t, res.ArchiveURL)
}

func TestResolveOtherLookupErrorContinues(t *testing.T) {
	t.Parallel()

	broken := &fakeLookuper{name: "wayback", out: archive.LookupFailed("", fmt.Errorf("dial: %w", archive.ErrNetwork))}
	next := &fakeLookuper{name: "archive_today", out: archive.Found("", "https://archive.ph/zz")}
	r := New(Config{}, Options{Lookups: []archive.Lookuper{broken, next}})

	res := r.Resolve(context.Background(), "https://example.com/a")
	require.True(t, res.Found)
	require.Equal(t, int32(1), next.calls.Load())
}

func TestResolveSubmissionExhaustedKeepsFallbackLink(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{name: "wayback_save", out: archive.SubmissionOutcome{
		Status:   archive.SubmissionError,
		Attempts: 3,
		Err:      fmt.Errorf("gave up after 3 attempts: %w", archive.ErrRateLimited),
	}}
	r := New(Config{}, Options{
		Lookups:   []archive.Lookuper{&fakeLookuper{name: "wayback", out: archive.NotFound("")}},
		Submitter: sub,
	})

	res := r.Resolve(context.Background(), "https://example.com/a")
	require.False(t, res.Found)
	require.True(t, res.SubmissionAttempted)
	require.False(t, res.Submitted)
	require.NotNil(t, res.Submission)
	require.Equal(t, archive.SubmissionError, res.Submission.Status)
	require.Equal(t, 3, res.Submission.Attempts)
	require.Equal(t, "rate_limited", res.Submission.ErrorKind)
	require.NotEmpty(t, res.ManualURL())
	require.Contains(t, res.Error, res.ManualURL())
}

func TestResolveCreatedIsCachedAndServedFromCache(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := memcache.New(func() time.Time { return now })
	look := &fakeLookuper{name: "wayback", out: archive.NotFound("")}
	sub := &fakeSubmitter{name: "wayback_save", out: archive.SubmissionOutcome{
		Status:     archive.SubmissionCreated,
		ArchiveURL: "https://web.archive.org/web/20240101000000/https://example.com/a",
		Attempts:   1,
	}}
	r := New(Config{}, Options{Lookups: []archive.Lookuper{look}, Submitter: sub, Cache: c})

	first := r.Resolve(context.Background(), "https://example.com/a")
	require.True(t, first.Submitted)
	require.False(t, first.Found)
	require.Equal(t, sub.out.ArchiveURL, first.ArchiveURL)

	second := r.Resolve(context.Background(), "https://example.com/a")
	require.True(t, second.Found)
	require.Equal(t, SourceCache, second.Source)
	require.Equal(t, sub.out.ArchiveURL, second.ArchiveURL)
	require.Equal(t, int32(1), look.calls.Load())
	require.Equal(t, int32(1), sub.calls.Load())
}

func TestResolveChoosesSubmitter(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		enabled     bool
		configured  bool
		wantBrowser bool
	}{
		{name: "browser enabled with credential", enabled: true, configured: true, wantBrowser: true},
		{name: "browser enabled without credential", enabled: true, configured: false},
		{name: "browser disabled", enabled: false, configured: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			sub := &fakeSubmitter{name: "wayback_save", out: archive.SubmissionOutcome{Status: archive.SubmissionAccepted}}
			browser := &fakeBrowser{
				fakeSubmitter: fakeSubmitter{name: "archive_today", out: archive.SubmissionOutcome{Status: archive.SubmissionCreated, ArchiveURL: "https://archive.ph/abcde1"}},
				configured:    tt.configured,
			}
			r := New(Config{BrowserEnabled: tt.enabled}, Options{Submitter: sub, Browser: browser})

			res := r.Resolve(context.Background(), "https://example.com/a")
			require.True(t, res.Submitted)
			if tt.wantBrowser {
				require.Equal(t, int32(1), browser.calls.Load())
				require.Zero(t, sub.calls.Load())
				require.Equal(t, "archive_today", res.Source)
			} else {
				require.Zero(t, browser.calls.Load())
				require.Equal(t, int32(1), sub.calls.Load())
			}
		})
	}
}

func TestResolveInvalidTarget(t *testing.T) {
	t.Parallel()

	sub := &fakeSubmitter{name: "wayback_save"}
	look := &fakeLookuper{name: "wayback"}
	r := New(Config{}, Options{Lookups: []archive.Lookuper{look}, Submitter: sub})

	res := r.Resolve(context.Background(), "ftp://example.com/file")
	require.False(t, res.Found)
	require.False(t, res.SubmissionAttempted)
	require.Contains(t, res.Error, archive.ErrInvalidTarget.Error())
	require.NotEmpty(t, res.Links.Create)
	require.Zero(t, look.calls.Load())
	require.Zero(t, sub.calls.Load())
}

func TestResolveNoSubmitter(t *testing.T) {
	t.Parallel()

	r := New(Config{}, Options{Lookups: []archive.Lookuper{&fakeLookuper{name: "wayback", out: archive.NotFound("")}}})
	res := r.Resolve(context.Background(), "https://example.com/a")
	require.False(t, res.Found)
	require.False(t, res.SubmissionAttempted)
	require.Contains(t, res.Error, archive.ErrConfiguration.Error())
}

func TestRender(t *testing.T) {
	t.Parallel()

	t.Run("without credential", func(t *testing.T) {
		t.Parallel()
		browser := &fakeBrowser{fakeSubmitter: fakeSubmitter{name: "archive_today"}}
		r := New(Config{BrowserEnabled: true}, Options{Browser: browser})

		res := r.Render(context.Background(), "https://example.com/a")
		require.Contains(t, res.Error, archive.ErrConfiguration.Error())
		require.False(t, res.SubmissionAttempted)
		require.Zero(t, browser.calls.Load())
		require.NotEmpty(t, res.Links.Create)
	})

	t.Run("skips lookups", func(t *testing.T) {
		t.Parallel()
		look := &fakeLookuper{name: "wayback", out: archive.Found("", "https://web.archive.org/web/1/x")}
		browser := &fakeBrowser{
			fakeSubmitter: fakeSubmitter{name: "archive_today", out: archive.SubmissionOutcome{Status: archive.SubmissionCreated, ArchiveURL: "https://archive.ph/abcde1"}},
			configured:    true,
		}
		r := New(Config{}, Options{Lookups: []archive.Lookuper{look}, Browser: browser})

		res := r.Render(context.Background(), "example.com/a")
		require.Zero(t, look.calls.Load())
		require.Equal(t, int32(1), browser.calls.Load())
		require.True(t, res.Submitted)
		require.Equal(t, "https://archive.ph/abcde1", res.ArchiveURL)
	})

	t.Run("challenge failure", func(t *testing.T) {
		t.Parallel()
		browser := &fakeBrowser{
			fakeSubmitter: fakeSubmitter{name: "archive_today", out: archive.SubmissionOutcome{
				Status: archive.SubmissionChallengeFailed,
				Err:    fmt.Errorf("solve: %w", archive.ErrChallengeUnsolved),
			}},
			configured: true,
		}
		r := New(Config{}, Options{Browser: browser})

		res := r.Render(context.Background(), "https://example.com/a")
		require.False(t, res.Submitted)
		require.Equal(t, "challenge_unsolved", res.Submission.ErrorKind)
		require.Contains(t, res.Error, res.Links.Create)
	})
}

func TestShutdownIsIdempotent(t *testing.T) {
	t.Parallel()

	browser := &fakeBrowser{
		fakeSubmitter: fakeSubmitter{name: "archive_today", out: archive.SubmissionOutcome{Status: archive.SubmissionAccepted}},
		configured:    true,
	}
	solver := &fakeSolver{}
	r := New(Config{BrowserEnabled: true}, Options{Browser: browser, Solver: solver})

	require.NoError(t, r.Shutdown(context.Background()))
	require.NoError(t, r.Shutdown(context.Background()))
	require.Equal(t, int32(2), browser.closes.Load())
	require.Equal(t, int32(2), solver.closes.Load())

	res := r.Resolve(context.Background(), "https://example.com/a")
	require.True(t, res.Submitted)
}

func TestShutdownWithNothingWired(t *testing.T) {
	t.Parallel()

	r := New(Config{}, Options{})
	require.NoError(t, r.Shutdown(context.Background()))
	require.NoError(t, r.Shutdown(context.Background()))
}

func TestResolveKeepsCallerRequestID(t *testing.T) {
	t.Parallel()

	r := New(Config{}, Options{IDs: fixedIDs{id: "generated"}})
	ctx := archive.WithRequestID(context.Background(), "from-header")
	res := r.Resolve(ctx, "https://example.com/a")
	require.Equal(t, "from-header", res.RequestID)
}

func TestResolvePublishFailureDoesNotAffectResult(t *testing.T) {
	t.Parallel()

	pub := memory.New()
	pub.FailWith(errors.New("topic missing"))
	r := New(Config{}, Options{
		Lookups:   []archive.Lookuper{&fakeLookuper{name: "wayback", out: archive.Found("", "https://web.archive.org/web/1/x")}},
		Publisher: pub,
	})

	res := r.Resolve(context.Background(), "https://example.com/a")
	require.True(t, res.Found)
	require.Empty(t, res.Error)
}

func TestLinksNormalizesScheme(t *testing.T) {
	t.Parallel()

	base := links.New("https://archive.example")
	r := New(Config{}, Options{Links: &base})
	got := r.Links("example.com/a?q=1")
	require.Equal(t, "https://archive.example/"+links.Escape("https://example.com/a?q=1"), got.Search)
}
