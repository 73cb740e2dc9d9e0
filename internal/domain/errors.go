package domain

import "errors"

var (
	// ErrNotFound maps HTTP 404: terminal, never retried, cached as such.
	ErrNotFound = errors.New("not found")
	// ErrRateLimited maps HTTP 429: retried after a cooldown.
	ErrRateLimited = errors.New("rate limited")
	// ErrTransient covers network blips and 5xx responses: retried.
	ErrTransient = errors.New("transient failure")
	// ErrExhausted means the retry budget was spent without success.
	ErrExhausted = errors.New("retries exhausted")
	// ErrUnauthorized maps HTTP 401/403.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrMalformedData means a page structure could not be parsed; the item is
	// skipped, never escalated.
	ErrMalformedData = errors.New("malformed page data")
	// ErrResourceUnavailable means the document provider could not be
	// initialized. This is the only error fatal to a whole run.
	ErrResourceUnavailable = errors.New("document provider unavailable")
)
