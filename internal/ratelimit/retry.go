package ratelimit

import (
	"context"
	"errors"
	"io"
	"net"
	"syscall"
	"time"
)

// BackoffState carries a worker's retry/backoff calculator state
// across attempts: how long it slept last time and how many
// consecutive retries it has made.
type BackoffState struct {
	SleepTime          time.Duration
	ConsecutiveRetries int
}

// Backoff is a decay/attack sleep-time calculator for transient
// protocol errors (spec §7's "Protocol error ... D maps that to retry
// or escalation via error_counter"). It reproduces the shape of the
// teacher's lib/pacer Default calculator (decay on success, attack on
// failure, both geometric toward a floor/ceiling) — the retrieval pack
// carried lib/pacer as test files only, no buildable source (see
// DESIGN.md), so the decay/attack formulas here are reconstructed from
// lib/pacer_test.go's table-driven expectations rather than ported
// from source this repo never saw.
type Backoff struct {
	MinSleep       time.Duration
	MaxSleep       time.Duration
	DecayConstant  uint
	AttackConstant uint
}

// NewBackoff returns a Backoff with the teacher's observed defaults
// (10ms min, 2s max, decay 2, attack 1).
func NewBackoff() *Backoff {
	return &Backoff{
		MinSleep:       10 * time.Millisecond,
		MaxSleep:       2 * time.Second,
		DecayConstant:  2,
		AttackConstant: 1,
	}
}

// Next advances state after one attempt. On success it decays the
// sleep time geometrically toward MinSleep and resets
// ConsecutiveRetries; on failure it attacks (grows) the sleep time
// geometrically toward MaxSleep and increments ConsecutiveRetries.
func (b *Backoff) Next(state BackoffState, retry bool) BackoffState {
	if !retry {
		return BackoffState{SleepTime: b.decay(state.SleepTime)}
	}
	return BackoffState{
		SleepTime:          b.attack(state.SleepTime),
		ConsecutiveRetries: state.ConsecutiveRetries + 1,
	}
}

func (b *Backoff) decay(sleepTime time.Duration) time.Duration {
	if sleepTime <= 0 {
		sleepTime = b.MinSleep
	}
	if b.DecayConstant == 0 {
		return b.MinSleep
	}
	sleepTime -= sleepTime / time.Duration(uint(1)<<b.DecayConstant)
	if sleepTime < b.MinSleep {
		sleepTime = b.MinSleep
	}
	return sleepTime
}

func (b *Backoff) attack(sleepTime time.Duration) time.Duration {
	if sleepTime <= 0 {
		sleepTime = b.MinSleep
	}
	if b.AttackConstant == 0 {
		return b.MaxSleep
	}
	denom := time.Duration((uint(1) << b.AttackConstant) - 1)
	sleepTime += sleepTime / denom
	if sleepTime > b.MaxSleep {
		sleepTime = b.MaxSleep
	}
	return sleepTime
}

// Wait sleeps state.SleepTime or until ctx is done, whichever comes
// first.
func (b *Backoff) Wait(ctx context.Context, state BackoffState) error {
	if state.SleepTime <= 0 {
		return nil
	}
	t := time.NewTimer(state.SleepTime)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ShouldRetry classifies a protocol error as transient (worth a
// retry/backoff cycle) vs terminal, the same two-step shape
// `backend/ftp/ftp.go`'s shouldRetry/isRetriableFtpError uses: first
// check for context cancellation, then a small set of known-transient
// conditions (connection reset, timeout, EOF mid-stream), with
// anything else treated as non-retriable and left to D's
// error_counter escalation (spec §7).
func ShouldRetry(ctx context.Context, err error) bool {
	if err == nil {
		return false
	}
	if ctx.Err() != nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}
