package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_PushTryPop(t *testing.T) {
	q := New[string]()

	require.NoError(t, q.Push("a"))

	got, ok := q.TryPop()
	require.True(t, ok)
	assert.Equal(t, "a", got)
}

func TestQueue_FIFO(t *testing.T) {
	q := New[int]()
	for i := 1; i <= 3; i++ {
		require.NoError(t, q.Push(i))
	}

	for want := 1; want <= 3; want++ {
		got, ok := q.TryPop()
		require.True(t, ok)
		assert.Equal(t, want, got)
	}
}

func TestQueue_TryPop_Empty(t *testing.T) {
	q := New[int]()

	_, ok := q.TryPop()
	assert.False(t, ok, "pop from empty queue should return false")
}

func TestQueue_Pop_BlocksUntilAvailable(t *testing.T) {
	q := New[string]()
	done := make(chan string, 1)

	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			done <- v
		}
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, q.Push("late"))

	select {
	case v := <-done:
		assert.Equal(t, "late", v)
	case <-time.After(time.Second):
		t.Fatal("Pop did not return after Push")
	}
}

func TestQueue_Pop_ContextCancelled(t *testing.T) {
	q := New[int]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueue_Close_DrainsThenErrClosed(t *testing.T) {
	q := New[int]()
	require.NoError(t, q.Push(1))
	q.Close()

	assert.ErrorIs(t, q.Push(2), ErrClosed, "push after close should fail")

	v, err := q.Pop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, v)

	_, err = q.Pop(context.Background())
	assert.ErrorIs(t, err, ErrClosed)
	assert.True(t, q.Drained())
}

func TestQueue_Close_Idempotent(t *testing.T) {
	q := New[int]()
	q.Close()
	q.Close()
	assert.True(t, q.Closed())
}

func TestQueue_Close_WakesWaiter(t *testing.T) {
	q := New[int]()
	done := make(chan error, 1)

	go func() {
		_, err := q.Pop(context.Background())
		done <- err
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the waiting consumer")
	}
}

func TestQueue_ConcurrentPush(t *testing.T) {
	q := New[int]()
	const producers = 20
	const perProducer = 50

	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				_ = q.Push(j)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*perProducer, q.Len())
}
