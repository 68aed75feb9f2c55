// Package challenge detects interactive human-verification widgets and obtains solution
// tokens for them from a third-party solving service.
package challenge

import (
	"context"
	"errors"
)

// Kind names a challenge widget family.
type Kind string

// Supported challenge kinds.
const (
	KindHCaptcha  Kind = "hcaptcha"
	KindRecaptcha Kind = "recaptcha"
)

var (
	// ErrPoolClosed is returned once the worker pool has been shut down.
	ErrPoolClosed = errors.New("challenge pool closed")
	// ErrUnsupportedKind is returned for a challenge no solver is registered for.
	ErrUnsupportedKind = errors.New("unsupported challenge kind")
)

// Challenge is the transient context for one solve attempt. It is never cached.
type Challenge struct {
	Kind      Kind
	SiteKey   string
	PageURL   string
	Invisible bool
}

// Solver obtains a token for a challenge.
type Solver interface {
	Solve(ctx context.Context, ch Challenge) (string, error)
}
