package eventloop

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoopRunsInOrder(t *testing.T) {
	t.Parallel()

	l := New(nil)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	var seen []int
	for i := 0; i < 50; i++ {
		i := i
		require.True(t, l.Post(func() { seen = append(seen, i) }))
	}
	var snapshot []int
	require.NoError(t, l.Do(context.Background(), func() { snapshot = append(snapshot, seen...) }))
	require.Len(t, snapshot, 50)
	for i, v := range snapshot {
		require.Equal(t, i, v)
	}
}

func TestLoopNestedPostDoesNotBlock(t *testing.T) {
	t.Parallel()

	l := New(nil)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	var ran atomic.Bool
	done := make(chan struct{})
	l.Post(func() {
		l.Post(func() {
			ran.Store(true)
			close(done)
		})
	})
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("nested post never ran")
	}
	require.True(t, ran.Load())
}

func TestLoopSurvivesPanics(t *testing.T) {
	t.Parallel()

	l := New(nil)
	defer func() { require.NoError(t, l.Close(context.Background())) }()

	l.Post(func() { panic("boom") })
	var ok bool
	require.NoError(t, l.Do(context.Background(), func() { ok = true }))
	require.True(t, ok)
}

func TestLoopRejectsWorkAfterClose(t *testing.T) {
	t.Parallel()

	l := New(nil)
	require.NoError(t, l.Close(context.Background()))
	require.NoError(t, l.Close(context.Background()))

	require.False(t, l.Post(func() {}))
	require.ErrorIs(t, l.Do(context.Background(), func() {}), ErrClosed)
}

func TestLoopDoneClosesAfterClose(t *testing.T) {
	t.Parallel()

	l := New(nil)
	select {
	case <-l.Done():
		t.Fatal("done before close")
	default:
	}

	release := make(chan struct{})
	var ran atomic.Int32
	require.True(t, l.Post(func() { <-release }))
	require.True(t, l.Post(func() { ran.Add(1) }))

	closed := make(chan error, 1)
	go func() { closed <- l.Close(context.Background()) }()
	require.Eventually(t, func() bool { return !l.Post(func() {}) }, time.Second, time.Millisecond)
	close(release)

	select {
	case <-l.Done():
	case <-time.After(time.Second):
		t.Fatal("done never closed")
	}
	require.NoError(t, <-closed)
	require.Equal(t, int32(0), ran.Load())
}
