package ratelimit

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLimiterAllowPerKey(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 2})

	require.True(t, l.Allow("u-1"))
	require.True(t, l.Allow("u-1"))
	require.False(t, l.Allow("u-1"))

	require.True(t, l.Allow("u-2"), "buckets are independent per key")
	require.Equal(t, 2, l.Len())
}

func TestLimiterAnonymousShareBucket(t *testing.T) {
	t.Parallel()

	l := New(Config{RPS: 0.001, Burst: 1})

	require.True(t, l.Allow(""))
	require.False(t, l.Allow(""))
	require.False(t, l.Allow(anonymous))
}

func TestLimiterUnlimited(t *testing.T) {
	t.Parallel()

	l := New(Config{})
	for i := 0; i < 100; i++ {
		require.True(t, l.Allow("u-1"))
	}
}
