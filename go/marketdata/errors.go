package marketdata

import "errors"

// Sentinel errors forming the core's error taxonomy (spec §7). Callers
// should test with errors.Is; wrapping with fmt.Errorf("...: %w", err) is
// expected along call chains (retry, the resilience gate, the API layer).
var (
	// ErrFeedUnavailable means the upstream connection is absent or failing.
	// Recoverable via retry.
	ErrFeedUnavailable = errors.New("feed unavailable")

	// ErrRateLimited means a permit was not acquired within the configured
	// timeout. The caller may retry with backoff.
	ErrRateLimited = errors.New("rate limited")

	// ErrCircuitOpen means the resilience gate is failing fast; no retry
	// until the cooldown elapses.
	ErrCircuitOpen = errors.New("circuit open")

	// ErrInvalidArgument means a malformed RIC or empty request. Fatal for
	// the call, not the service.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrNotRunning means the feed adapter is not in the RUNNING state.
	// Fatal for the call.
	ErrNotRunning = errors.New("not running")

	// ErrMalformed means an upstream message could not be parsed. It is
	// counted and swallowed, never surfaced to a caller.
	ErrMalformed = errors.New("malformed upstream message")

	// ErrSlowConsumer is internal to the fan-out: it demotes a subscriber
	// to CLOSING and is never returned to other callers.
	ErrSlowConsumer = errors.New("slow consumer")

	// ErrValidation marks a data-quality failure of a single update. It
	// never fails the update's propagation through the cache or fan-out.
	ErrValidation = errors.New("validation error")
)
