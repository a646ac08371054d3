package gate

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGate_SignalBeforeWait(t *testing.T) {
	g := New[int]()
	g.Signal(4)

	v, err := g.Wait(context.Background(), nil)
	require.NoError(t, err)
	require.Equal(t, 4, v)

	v, ok := g.Load()
	require.True(t, ok)
	require.Equal(t, 4, v)
}

func TestGate_Timeout(t *testing.T) {
	g := New[int]()

	_, err := g.Wait(context.Background(), time.After(10*time.Millisecond))
	require.ErrorIs(t, err, ErrTimeout)
}

func TestGate_ContextCancel(t *testing.T) {
	g := New[int]()
	ctx, cancel := context.WithCancel(context.Background())

	errCh := make(chan error, 1)
	go func() {
		_, err := g.Wait(ctx, nil)
		errCh <- err
	}()

	cancel()

	select {
	case err := <-errCh:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatalf("wait did not return after cancellation")
	}
}

func TestGate_FanOut(t *testing.T) {
	const numWaiters = 50
	g := New[string]()

	var started sync.WaitGroup
	results := make(chan string, numWaiters)
	for i := 0; i < numWaiters; i++ {
		started.Add(1)
		go func() {
			readyCh := g.Ready()
			started.Done()
			<-readyCh

			v, err := g.Wait(context.Background(), nil)
			if err != nil {
				results <- "error: " + err.Error()
				return
			}
			results <- v
		}()
	}
	started.Wait()

	g.Signal("leader")

	timeoutCh := time.After(time.Second)
	for i := 0; i < numWaiters; i++ {
		select {
		case v := <-results:
			assert.Equal(t, "leader", v)
		case <-timeoutCh:
			t.Fatalf("only %d of %d waiters were released", i, numWaiters)
		}
	}
}

func TestGate_ClearDoesNotAffectHeldValue(t *testing.T) {
	g := New[*int]()
	leader := new(int)
	*leader = 7

	g.Signal(leader)
	held, ok := g.Load()
	require.True(t, ok)

	g.Clear()
	_, ok = g.Load()
	require.False(t, ok)
	require.Equal(t, 7, *held)

	// clearing twice is harmless
	g.Clear()

	select {
	case <-g.Ready():
		t.Fatalf("ready channel should be open after clear")
	default:
	}
}

func TestGate_CompareAndClear(t *testing.T) {
	g := New[string]()

	require.False(t, g.CompareAndClear("a"))

	g.Signal("a")
	g.Signal("b")
	require.False(t, g.CompareAndClear("a"))

	v, ok := g.Load()
	require.True(t, ok)
	require.Equal(t, "b", v)

	require.True(t, g.CompareAndClear("b"))
	_, ok = g.Load()
	require.False(t, ok)
}

func TestGate_WaitAfterClearAndResignal(t *testing.T) {
	g := New[int]()
	g.Signal(1)
	g.Clear()

	done := make(chan int, 1)
	go func() {
		v, _ := g.Wait(context.Background(), time.After(time.Second))
		done <- v
	}()

	time.Sleep(5 * time.Millisecond)
	g.Signal(2)

	select {
	case v := <-done:
		require.Equal(t, 2, v)
	case <-time.After(2 * time.Second):
		t.Fatalf("waiter was not released")
	}
}
