package archive

import (
	"context"
	"errors"
)

// Error taxonomy. Provider clients wrap one of these so callers can classify with errors.Is.
var (
	// ErrNetwork marks connection or transport level failures.
	ErrNetwork = errors.New("network error")
	// ErrRateLimited marks a provider 429 response.
	ErrRateLimited = errors.New("rate limited")
	// ErrChallengeUnsolved marks a challenge the solver could not clear.
	ErrChallengeUnsolved = errors.New("challenge unsolved")
	// ErrTimeout marks a poll or operation that exceeded its bound.
	ErrTimeout = errors.New("timeout")
	// ErrConfiguration marks a missing credential or invalid setting.
	ErrConfiguration = errors.New("configuration error")
	// ErrUnexpectedResponse marks a status or payload the client does not recognize.
	ErrUnexpectedResponse = errors.New("unexpected response")
	// ErrInvalidTarget marks an input URL that cannot be archived.
	ErrInvalidTarget = errors.New("invalid target url")
)

// Classify returns a short label for err suitable for metrics and log fields.
func Classify(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrChallengeUnsolved):
		return "challenge_unsolved"
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrUnexpectedResponse):
		return "unexpected_response"
	case errors.Is(err, ErrInvalidTarget):
		return "invalid_target"
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "unknown"
	}
}

// Transient reports whether err is worth retrying within the same call.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrRateLimited) || errors.Is(err, ErrNetwork)
}
