package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestCacheExpiry(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	c := New(clock)
	ctx := context.Background()

	_, ok, err := c.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, c.Set(ctx, "https://example.com/a", "https://archive.ph/AbCdE", time.Hour))
	require.NoError(t, c.Set(ctx, "https://example.com/b", "https://archive.ph/FgHiJ", 0))

	got, ok, err := c.Get(ctx, "https://example.com/a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "https://archive.ph/AbCdE", got)

	mu.Lock()
	now = now.Add(time.Hour)
	mu.Unlock()

	_, ok, _ = c.Get(ctx, "https://example.com/a")
	require.False(t, ok)
	_, ok, _ = c.Get(ctx, "https://example.com/b")
	require.True(t, ok, "zero ttl never expires")
	require.Equal(t, 1, c.Len())
}
