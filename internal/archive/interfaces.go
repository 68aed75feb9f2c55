package archive

import (
	"context"
	"time"
)

// Lookuper checks a provider for an existing snapshot. It never mutates provider state.
type Lookuper interface {
	Name() string
	Lookup(ctx context.Context, target Target) LookupOutcome
}

// Submitter asks a provider to create a snapshot. HTTP save endpoints and the browser form
// flow both satisfy it.
type Submitter interface {
	Name() string
	Submit(ctx context.Context, target Target) SubmissionOutcome
}

// Clock reads time and sleeps; tests swap it to simulate delays.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// Publisher pushes resolution events to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// IDGenerator produces request IDs.
type IDGenerator interface {
	NewID() (string, error)
}
