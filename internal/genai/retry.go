package genai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"viba/internal/domain"
	"viba/internal/infra"
)

// RetryPolicy bounds a single logical upstream call.
type RetryPolicy struct {
	Timeout    time.Duration
	MaxRetries int

	// BackoffBase scales the exponential delay between attempts; tests shrink
	// it. Zero means one second.
	BackoffBase time.Duration
	// BackoffCap bounds the delay. Zero means thirty seconds.
	BackoffCap time.Duration
}

func (p RetryPolicy) backoffBase() time.Duration {
	if p.BackoffBase > 0 {
		return p.BackoffBase
	}
	return time.Second
}

func (p RetryPolicy) backoffCap() time.Duration {
	if p.BackoffCap > 0 {
		return p.BackoffCap
	}
	return 30 * time.Second
}

// Invoke runs op until it succeeds, racing every attempt against the policy
// timeout. Quota-classified failures abort immediately regardless of remaining
// budget; any other failure is retried up to MaxRetries times with capped
// exponential backoff. The operation must be idempotent from the caller's
// perspective: a timed-out attempt is abandoned, not cancelled upstream.
func Invoke[T any](ctx context.Context, logger infra.Logger, policy RetryPolicy, op func(context.Context) (T, error)) (T, error) {
	var zero T
	attempt := 0

	for {
		if attempt > 0 {
			delay := backoffDelay(attempt, policy.backoffBase(), policy.backoffCap())
			logger.Warn().Int("attempt", attempt).Dur("delay", delay).Msg("genai: retrying after backoff")
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}

		value, err := runAttempt(ctx, policy.Timeout, op)
		if err == nil {
			return value, nil
		}

		attempt++
		logger.Warn().Err(err).Int("attempt", attempt).Msg("genai: attempt failed")

		if IsQuota(err) {
			logger.Error().Err(err).Msg("genai: quota exhausted, not retrying")
			if !errors.Is(err, domain.ErrQuotaExceeded) {
				err = fmt.Errorf("%s: %w", err.Error(), domain.ErrQuotaExceeded)
			}
			return zero, err
		}

		if attempt > policy.MaxRetries {
			return zero, err
		}
	}
}

// runAttempt races one call of op against the timeout. The op goroutine keeps
// running after a timeout; the buffered channel lets it finish and be
// discarded without leaking.
func runAttempt[T any](ctx context.Context, timeout time.Duration, op func(context.Context) (T, error)) (T, error) {
	var zero T

	attemptCtx := ctx
	cancel := context.CancelFunc(func() {})
	if timeout > 0 {
		attemptCtx, cancel = context.WithTimeout(ctx, timeout)
	}
	defer cancel()

	type outcome struct {
		value T
		err   error
	}
	done := make(chan outcome, 1)
	go func() {
		value, err := op(attemptCtx)
		done <- outcome{value: value, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		if errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return zero, fmt.Errorf("attempt timed out after %s: %w", timeout, domain.ErrTimeout)
		}
		return zero, attemptCtx.Err()
	case result := <-done:
		if result.err != nil && errors.Is(result.err, context.DeadlineExceeded) {
			return zero, fmt.Errorf("attempt timed out after %s: %w", timeout, domain.ErrTimeout)
		}
		return result.value, result.err
	}
}

// IsQuota classifies a failure as a rate/usage-limit signal. It matches both
// the typed sentinel and the raw signatures upstream errors carry, so quota
// responses are never retried no matter which layer produced the error.
func IsQuota(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, domain.ErrQuotaExceeded) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "RESOURCE_EXHAUSTED") ||
		strings.Contains(strings.ToLower(msg), "quota")
}

func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if attempt < 1 {
		return 0
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	return delay
}
