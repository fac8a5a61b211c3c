package ratelimit

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenBucketWaitN(t *testing.T) {
	tb := NewTokenBucket(1024)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, tb.WaitN(ctx, 100))
}

func TestSplitDividesEvenly(t *testing.T) {
	s := NewSplit()
	s.Configure("h1", 1000)
	b1 := s.Acquire("h1")
	_ = s.Acquire("h1")
	assert.Equal(t, 2, s.ActiveCount("h1"))
	// both share the bucket map entry; limit should now be 500 (1000/2)
	assert.NotNil(t, b1)

	s.Release("h1")
	assert.Equal(t, 1, s.ActiveCount("h1"))
}

func TestBackoffDecay(t *testing.T) {
	b := &Backoff{MinSleep: time.Microsecond, MaxSleep: time.Second, DecayConstant: 1}
	got := b.decay(8 * time.Millisecond)
	assert.Equal(t, 4*time.Millisecond, got)

	b.DecayConstant = 2
	got = b.decay(1 * time.Millisecond)
	assert.Equal(t, (3*time.Millisecond)/4, got)

	b.DecayConstant = 0
	got = b.decay(1 * time.Millisecond)
	assert.Equal(t, time.Microsecond, got)
}

func TestBackoffAttack(t *testing.T) {
	b := &Backoff{MinSleep: time.Microsecond, MaxSleep: time.Second, AttackConstant: 1}
	got := b.attack(1 * time.Millisecond)
	assert.Equal(t, 2*time.Millisecond, got)

	b.AttackConstant = 2
	got = b.attack(1 * time.Millisecond)
	assert.Equal(t, (4*time.Millisecond)/3, got)

	b.AttackConstant = 0
	got = b.attack(1 * time.Millisecond)
	assert.Equal(t, time.Second, got)
}

func TestBackoffNextResetsOnSuccess(t *testing.T) {
	b := NewBackoff()
	state := BackoffState{SleepTime: 500 * time.Millisecond, ConsecutiveRetries: 3}
	next := b.Next(state, false)
	assert.Equal(t, 0, next.ConsecutiveRetries)
	assert.Less(t, next.SleepTime, state.SleepTime)
}

func TestShouldRetry(t *testing.T) {
	assert.False(t, ShouldRetry(context.Background(), nil))
	assert.True(t, ShouldRetry(context.Background(), io.ErrUnexpectedEOF))
	assert.False(t, ShouldRetry(context.Background(), errors.New("boom")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, ShouldRetry(ctx, io.EOF))
}
