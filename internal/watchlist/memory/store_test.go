package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-resolver/internal/watchlist"
)

func TestStoreCRUD(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := New("wsj.com")

	added, err := s.Add(ctx, "nytimes.com", "alice")
	require.NoError(t, err)
	require.True(t, added)

	added, err = s.Add(ctx, "nytimes.com", "bob")
	require.NoError(t, err)
	require.False(t, added)

	sites, err := s.List(ctx)
	require.NoError(t, err)
	require.Equal(t, []string{"nytimes.com", "wsj.com"}, watchlist.Domains(sites))
	require.Equal(t, "alice", sites[0].AddedBy)

	removed, err := s.Remove(ctx, "wsj.com")
	require.NoError(t, err)
	require.True(t, removed)
	removed, err = s.Remove(ctx, "wsj.com")
	require.NoError(t, err)
	require.False(t, removed)
}
