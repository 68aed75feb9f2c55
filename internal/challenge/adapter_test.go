package challenge

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/archive-resolver/internal/archive"
)

func TestAdapterSolveDispatchesByKind(t *testing.T) {
	t.Parallel()

	svc := &fakeService{}
	client, _ := newServiceClient(t, svc, "secret")
	a := NewAdapter(AdapterConfig{Client: client, Workers: 1})
	t.Cleanup(a.Close)
	require.True(t, a.Configured())

	token, err := a.Solve(context.Background(), Challenge{Kind: KindRecaptcha, SiteKey: "k", PageURL: "https://archive.ph/"})
	require.NoError(t, err)
	require.Equal(t, "P0_token", token)
}

func TestAdapterWithoutCredential(t *testing.T) {
	t.Parallel()

	a := NewAdapter(AdapterConfig{Client: NewClient(ClientConfig{})})
	require.False(t, a.Configured())
	_, err := a.Solve(context.Background(), Challenge{Kind: KindHCaptcha, SiteKey: "k"})
	require.ErrorIs(t, err, archive.ErrConfiguration)

	var nilAdapter *Adapter
	require.False(t, nilAdapter.Configured())
	nilAdapter.Close()
}

func TestAdapterUnsupportedKind(t *testing.T) {
	t.Parallel()

	client, _ := newServiceClient(t, &fakeService{}, "secret")
	a := NewAdapter(AdapterConfig{Client: client})
	_, err := a.Solve(context.Background(), Challenge{Kind: "turnstile", SiteKey: "k"})
	require.ErrorIs(t, err, ErrUnsupportedKind)
	require.ErrorIs(t, err, archive.ErrChallengeUnsolved)
}

func TestAdapterTimeoutIsUnsolved(t *testing.T) {
	t.Parallel()

	client, _ := newServiceClient(t, &fakeService{notReadyPolls: 1 << 30}, "secret")
	a := NewAdapter(AdapterConfig{Client: client, Timeout: 20 * time.Millisecond})

	_, err := a.Solve(context.Background(), Challenge{Kind: KindHCaptcha, SiteKey: "k"})
	require.ErrorIs(t, err, archive.ErrChallengeUnsolved)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestAdapterAfterClose(t *testing.T) {
	t.Parallel()

	client, _ := newServiceClient(t, &fakeService{}, "secret")
	a := NewAdapter(AdapterConfig{Client: client})
	a.Close()
	a.Close()

	_, err := a.Solve(context.Background(), Challenge{Kind: KindHCaptcha, SiteKey: "k"})
	require.ErrorIs(t, err, ErrPoolClosed)
	require.ErrorIs(t, err, archive.ErrChallengeUnsolved)
}
