package collyfetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-resolver/internal/fetcher"
)

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasPrefix(r.URL.Path, "/save/"):
			w.Header().Set("Location", "/web/20240101000000/https://example.com/a")
			w.WriteHeader(http.StatusFound)
		case strings.HasPrefix(r.URL.Path, "/web/"):
			w.Header().Set("X-Agent", r.Header.Get("User-Agent"))
			w.Header().Set("X-Trace", r.Header.Get("X-Trace"))
			_, _ = w.Write([]byte("captured"))
		case r.URL.Path == "/busy":
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetchFollowsRedirects(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{UserAgent: "archiver-test", Timeout: 5 * time.Second})

	for range 2 {
		resp, err := f.Fetch(context.Background(), fetcher.Request{
			URL:     srv.URL + "/save/https://example.com/a",
			Headers: http.Header{"X-Trace": {"yes"}},
		})
		require.NoError(t, err, "repeat visits to the same URL are allowed")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Equal(t, srv.URL+"/web/20240101000000/https://example.com/a", resp.URL)
		require.Equal(t, "captured", string(resp.Body))
		require.Equal(t, "archiver-test", resp.Headers.Get("X-Agent"))
		require.Equal(t, "yes", resp.Headers.Get("X-Trace"))
	}
}

func TestFetchWithoutRedirects(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	f := New(Config{NoRedirects: true})

	resp, err := f.Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/save/https://example.com/a"})
	require.NoError(t, err)
	require.Equal(t, http.StatusFound, resp.StatusCode)
	loc, err := resp.Location()
	require.NoError(t, err)
	require.Equal(t, srv.URL+"/web/20240101000000/https://example.com/a", loc.String())
}

func TestFetchReportsErrorStatuses(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	resp, err := New(Config{}).Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/busy"})
	require.NoError(t, err)
	require.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	require.Equal(t, "7", resp.Headers.Get("Retry-After"))

	resp, err = New(Config{}).Fetch(context.Background(), fetcher.Request{URL: srv.URL + "/missing"})
	require.NoError(t, err)
	require.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestFetchTransportFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	_, err := New(Config{}).Fetch(context.Background(), fetcher.Request{URL: addr + "/x"})
	require.Error(t, err)
}

func TestFetchCanceledContext(t *testing.T) {
	t.Parallel()

	srv := newServer(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(Config{}).Fetch(ctx, fetcher.Request{URL: srv.URL + "/busy"})
	require.ErrorIs(t, err, context.Canceled)
}

type stubHooks struct {
	onRequest  colly.RequestCallback
	onResponse colly.ResponseCallback
	onError    colly.ErrorCallback
}

func (s *stubHooks) OnRequest(cb colly.RequestCallback)   { s.onRequest = cb }
func (s *stubHooks) OnResponse(cb colly.ResponseCallback) { s.onResponse = cb }
func (s *stubHooks) OnError(cb colly.ErrorCallback)       { s.onError = cb }

func TestConfigureCollectorHooks(t *testing.T) {
	t.Parallel()

	var (
		result   fetcher.Response
		fetchErr error
	)
	hooks := &stubHooks{}
	configureCollectorHooks(hooks, fetcher.Request{Headers: http.Header{"X-Trace": {"yes"}}}, time.Unix(0, 0), &result, &fetchErr)

	collyReq := &colly.Request{Headers: &http.Header{}}
	hooks.onRequest(collyReq)
	require.Equal(t, "yes", collyReq.Headers.Get("X-Trace"))

	final, err := url.Parse("https://web.archive.org/web/20240101000000/https://example.com/a")
	require.NoError(t, err)
	hooks.onResponse(&colly.Response{
		StatusCode: http.StatusOK,
		Body:       []byte("body"),
		Request:    &colly.Request{URL: final},
	})
	require.Equal(t, final.String(), result.URL)
	require.Equal(t, "body", string(result.Body))
	require.Nil(t, result.Headers)

	hooks.onError(nil, errors.New("boom"))
	require.EqualError(t, fetchErr, "boom")
}
