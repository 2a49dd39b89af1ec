package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLimiter_AllowsUpToBurstThenDenies(t *testing.T) {
	l, cancel := New(context.Background(), Limit{Requests: 2, Per: time.Minute})
	defer cancel()

	ok, _ := l.Allow("client-a")
	assert.True(t, ok)
	ok, _ = l.Allow("client-a")
	assert.True(t, ok)

	ok, retryAfter := l.Allow("client-a")
	assert.False(t, ok)
	assert.Greater(t, retryAfter, time.Duration(0))
}

func TestLimiter_KeysAreIndependent(t *testing.T) {
	l, cancel := New(context.Background(), Limit{Requests: 1, Per: time.Minute})
	defer cancel()

	ok, _ := l.Allow("client-a")
	require.True(t, ok)

	ok, _ = l.Allow("client-b")
	assert.True(t, ok, "a separate key must not share client-a's budget")

	ok, _ = l.Allow("client-a")
	assert.False(t, ok)
}

func TestLimiter_NilLimiterAlwaysAllows(t *testing.T) {
	var l *Limiter
	ok, retryAfter := l.Allow("anything")
	assert.True(t, ok)
	assert.Zero(t, retryAfter)
}

func TestLimiter_RetryAfterIsWholeSeconds(t *testing.T) {
	l, cancel := New(context.Background(), Limit{Requests: 10, Per: time.Minute})
	defer cancel()

	for i := 0; i < 10; i++ {
		ok, _ := l.Allow("burst")
		require.True(t, ok)
	}
	_, retryAfter := l.Allow("burst")
	assert.Equal(t, retryAfter, retryAfter.Round(time.Second))
	assert.Greater(t, retryAfter, time.Duration(0))
}
