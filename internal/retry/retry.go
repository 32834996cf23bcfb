// Package retry factors the spec's single global retry policy into one
// combinator, Do, parameterized by a classifier distinguishing
// fatal-quota, retryable-transient, and non-retryable errors (design
// notes, §9).
package retry

import (
	"context"
	"errors"
	"strings"
	"time"
)

// Class is the outcome of classifying an error for retry purposes.
type Class int

const (
	ClassFatalQuota Class = iota
	ClassRetryableTransient
	ClassNonRetryable
)

// ErrQuotaExhausted names the account-credit/quota exhaustion condition —
// always fatal, never retried. Do does not wrap errors with it: a quota
// error is returned verbatim and recognised through Classify's
// ClassFatalQuota.
var ErrQuotaExhausted = errors.New("credits/quota exhausted")

// MaxAttempts bounds retryable-transient errors per spec §7.
const MaxAttempts = 5

var quotaMarkers = []string{"402", "insufficient balance", "quota", "credit"}

var retryableMarkers = []string{
	"timeout", "deadline exceeded", "connection reset", "connection refused",
	"eof", "server error", "502", "503", "504", "529",
	"rate limit", "too many requests", "overloaded", "temporarily unavailable",
	"429",
}

var perMinuteMarkers = []string{"per min", "tpm", "rpm"}

// Classify inspects an error's message and decides its retry class.
// Quota markers take priority over transient markers since a 402 is
// fatal even if it also happens to mention "rate limit" language.
func Classify(err error) Class {
	if err == nil {
		return ClassNonRetryable
	}
	msg := strings.ToLower(err.Error())
	for _, m := range quotaMarkers {
		if strings.Contains(msg, m) {
			return ClassFatalQuota
		}
	}
	for _, m := range retryableMarkers {
		if strings.Contains(msg, m) {
			return ClassRetryableTransient
		}
	}
	return ClassNonRetryable
}

// IsPerMinuteRateLimit reports whether an error's message names a
// per-minute reset window, triggering the 60s backoff floor.
func IsPerMinuteRateLimit(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, m := range perMinuteMarkers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// Delay computes the capped exponential backoff for the given attempt
// (1-indexed): delay = 2 * 2^(attempt-1), with a floor of 60s when the
// error mentions a per-minute rate-limit window (spec §5).
func Delay(attempt int, err error) time.Duration {
	base := time.Duration(2*(1<<uint(attempt-1))) * time.Second
	if IsPerMinuteRateLimit(err) && base < 60*time.Second {
		return 60 * time.Second
	}
	return base
}

// Do runs fn, retrying on ClassRetryableTransient errors up to
// MaxAttempts times with the capped exponential backoff above. It
// returns immediately, without retrying, on ClassFatalQuota and
// ClassNonRetryable errors — both are propagated verbatim so the caller
// can apply the spec's propagation policy.
func Do(ctx context.Context, fn func(ctx context.Context, attempt int) error) error {
	var lastErr error
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		err := fn(ctx, attempt)
		if err == nil {
			return nil
		}
		lastErr = err
		switch Classify(err) {
		case ClassFatalQuota, ClassNonRetryable:
			return err
		case ClassRetryableTransient:
			if attempt == MaxAttempts {
				return err
			}
			d := Delay(attempt, err)
			timer := time.NewTimer(d)
			select {
			case <-ctx.Done():
				timer.Stop()
				return ctx.Err()
			case <-timer.C:
			}
		}
	}
	return lastErr
}
