// Package ratelimit implements the transfer worker's per-process
// send-rate pacing and protocol retry/backoff (spec §4.3 step 5, §4.6
// TRL_CALC_FIFO, §7).
package ratelimit

import (
	"context"

	"golang.org/x/time/rate"
)

// defaultBurst is the token-bucket burst size, sized to one typical
// transfer block so a single WriteBlock call on an otherwise idle
// bucket never stalls waiting for it to fill.
const defaultBurst = 64 * 1024

// TokenBucket paces a transfer worker's send loop to a per-process
// byte-rate budget (spec §4.3 step 5: "enforce the per-process rate
// limit with a token-bucket-like pacer"). It wraps
// golang.org/x/time/rate, the DOMAIN STACK's choice for this concern.
type TokenBucket struct {
	limiter *rate.Limiter
}

// NewTokenBucket builds a limiter capped at bytesPerSec (0 means
// unlimited).
func NewTokenBucket(bytesPerSec int64) *TokenBucket {
	return &TokenBucket{limiter: rate.NewLimiter(toLimit(bytesPerSec), defaultBurst)}
}

// WaitN blocks until n bytes' worth of budget is available, or ctx is
// done.
func (t *TokenBucket) WaitN(ctx context.Context, n int) error {
	return t.limiter.WaitN(ctx, n)
}

// SetLimit updates the budget in place, used when TRL_CALC_FIFO
// recomputes a host's per-process split (spec §4.6).
func (t *TokenBucket) SetLimit(bytesPerSec int64) {
	t.limiter.SetLimit(toLimit(bytesPerSec))
}

// Tokens reports the current token count available without blocking,
// used by Split.HasBudget to answer a dispatch-time "is there budget
// right now" question without actually consuming any.
func (t *TokenBucket) Tokens() float64 {
	return t.limiter.Tokens()
}

func toLimit(bytesPerSec int64) rate.Limit {
	if bytesPerSec <= 0 {
		return rate.Inf
	}
	return rate.Limit(bytesPerSec)
}
