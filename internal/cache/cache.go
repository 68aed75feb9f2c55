// Package cache memoizes archive addresses found for a target so repeated requests skip
// the provider round trips.
package cache

import (
	"context"
	"time"
)

// DefaultTTL is how long a found archive address is trusted.
const DefaultTTL = 24 * time.Hour

// Cache maps a normalized target URL to an archive address.
type Cache interface {
	Get(ctx context.Context, target string) (string, bool, error)
	Set(ctx context.Context, target, archiveURL string, ttl time.Duration) error
}

// Nop never hits.
type Nop struct{}

// Get implements Cache.
func (Nop) Get(context.Context, string) (string, bool, error) { return "", false, nil }

// Set implements Cache.
func (Nop) Set(context.Context, string, string, time.Duration) error { return nil }
