package lookup

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

func TestNewestLookup(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		handler  http.HandlerFunc
		want     archive.LookupStatus
		wantURL  string
		wantKind error
	}{
		{
			name: "redirect to capture",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Location", "https://archive.ph/AbCdE")
				w.WriteHeader(http.StatusFound)
			},
			want:    archive.LookupFound,
			wantURL: "https://archive.ph/AbCdE",
		},
		{
			name: "relative redirect is resolved",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Location", "/XyZ12")
				w.WriteHeader(http.StatusMovedPermanently)
			},
			want: archive.LookupFound,
		},
		{
			name: "redirect back to newest",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Location", "https://archive.ph/newest/https://example.com/a")
				w.WriteHeader(http.StatusFound)
			},
			want: archive.LookupNotFound,
		},
		{
			name: "not found",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNotFound)
			},
			want: archive.LookupNotFound,
		},
		{
			name: "plain page",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				_, _ = w.Write([]byte("<html>no captures</html>"))
			},
			want: archive.LookupNotFound,
		},
		{
			name: "rate limited",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusTooManyRequests)
			},
			want:     archive.LookupError,
			wantKind: archive.ErrRateLimited,
		},
		{
			name: "redirect without location",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusFound)
			},
			want:     archive.LookupError,
			wantKind: archive.ErrUnexpectedResponse,
		},
		{
			name: "server error",
			handler: func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusServiceUnavailable)
			},
			want:     archive.LookupError,
			wantKind: archive.ErrUnexpectedResponse,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			var gotPath atomic.Value
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				gotPath.Store(r.URL.Path)
				tc.handler(w, r)
			}))
			defer srv.Close()

			client := NewNewest(NewestConfig{BaseURL: srv.URL + "/"})
			out := client.Lookup(context.Background(), archive.MustParseTarget("https://example.com/a"))

			require.Equal(t, "archive_today", out.Provider)
			require.Equal(t, "/newest/https://example.com/a", gotPath.Load())
			require.Equal(t, tc.want, out.Status)
			if tc.wantURL != "" {
				require.Equal(t, tc.wantURL, out.ArchiveURL)
			}
			if tc.name == "relative redirect is resolved" {
				require.Equal(t, srv.URL+"/XyZ12", out.ArchiveURL)
			}
			if tc.wantKind != nil {
				require.ErrorIs(t, out.Err, tc.wantKind)
			}
		})
	}
}
