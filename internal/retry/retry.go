// Package retry wraps fallible external calls with a bounded retry budget.
// The policy distinguishes three failure classes: transient errors (network
// blips, 5xx) retried after a fixed delay, rate-limit responses retried after
// a longer cooldown, and not-found which is terminal and never retried.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/niftyarb/internal/domain"
)

// Policy holds the retry parameters. The zero value is unusable; construct
// with New.
type Policy struct {
	maxRetries int
	delay      time.Duration
	cooldown   time.Duration
	logger     *slog.Logger
}

// New creates a Policy. maxRetries is the number of attempts after the first;
// delay is slept between transient retries and cooldown after a rate-limit
// response.
func New(maxRetries int, delay, cooldown time.Duration, logger *slog.Logger) *Policy {
	return &Policy{
		maxRetries: maxRetries,
		delay:      delay,
		cooldown:   cooldown,
		logger:     logger.With(slog.String("component", "retry")),
	}
}

// Do invokes fn, retrying per the policy. op names the call for logging.
//
// Classification:
//   - domain.ErrNotFound: returned immediately, never retried.
//   - domain.ErrRateLimited: sleep cooldown, consume one retry.
//   - domain.ErrTransient: sleep delay, consume one retry.
//   - anything else: returned immediately.
//
// When the budget is spent the last error is wrapped in domain.ErrExhausted.
func (p *Policy) Do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("retry: %s: %w", op, err)
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		switch {
		case errors.Is(err, domain.ErrNotFound):
			return err
		case errors.Is(err, domain.ErrRateLimited):
			p.logger.WarnContext(ctx, "rate limited, cooling down",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.Duration("cooldown", p.cooldown),
			)
			lastErr = err
			if !p.sleep(ctx, p.cooldown) {
				return fmt.Errorf("retry: %s: %w", op, ctx.Err())
			}
		case errors.Is(err, domain.ErrTransient):
			p.logger.WarnContext(ctx, "transient failure, retrying",
				slog.String("op", op),
				slog.Int("attempt", attempt+1),
				slog.String("error", err.Error()),
			)
			lastErr = err
			if !p.sleep(ctx, p.delay) {
				return fmt.Errorf("retry: %s: %w", op, ctx.Err())
			}
		default:
			return err
		}
	}

	return fmt.Errorf("%w: %s after %d retries: %v", domain.ErrExhausted, op, p.maxRetries, lastErr)
}

// sleep waits for d, returning false if the context ended first.
func (p *Policy) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
