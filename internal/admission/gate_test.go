package admission

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewRejectsNonPositiveCapacity(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	require.Error(t, err)
	_, err = New(-3)
	require.Error(t, err)
}

func TestGateNeverExceedsCapacity(t *testing.T) {
	t.Parallel()

	for _, capacity := range []int{1, 2, 5} {
		gate, err := New(capacity)
		require.NoError(t, err)

		var (
			current atomic.Int64
			peak    atomic.Int64
			wg      sync.WaitGroup
		)
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				ok, err := gate.Admit(context.Background())
				if err != nil || !ok {
					t.Errorf("unexpected admit result ok=%v err=%v", ok, err)
					return
				}
				n := current.Add(1)
				for {
					p := peak.Load()
					if n <= p || peak.CompareAndSwap(p, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				current.Add(-1)
				gate.Release()
			}()
		}
		wg.Wait()
		require.LessOrEqual(t, peak.Load(), int64(capacity))
		require.Equal(t, 0, gate.InFlight())
	}
}

func TestTerminateWakesAllWaiters(t *testing.T) {
	t.Parallel()

	gate, err := New(1)
	require.NoError(t, err)
	ok, err := gate.Admit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	const waiters = 10
	results := make(chan bool, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			admitted, err := gate.Admit(context.Background())
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			results <- admitted
		}()
	}

	time.Sleep(20 * time.Millisecond)
	gate.Terminate()
	gate.Terminate()

	for i := 0; i < waiters; i++ {
		select {
		case admitted := <-results:
			require.False(t, admitted)
		case <-time.After(time.Second):
			t.Fatal("waiter did not observe termination")
		}
	}
	require.True(t, gate.Terminated())
	require.Equal(t, 1, gate.InFlight())
}

func TestAdmitAfterTerminateIsRejected(t *testing.T) {
	t.Parallel()

	gate, err := New(4)
	require.NoError(t, err)
	gate.Terminate()

	for i := 0; i < 3; i++ {
		ok, err := gate.Admit(context.Background())
		require.NoError(t, err)
		require.False(t, ok)
	}
	require.Equal(t, 0, gate.InFlight())
}

func TestAdmitHonorsContext(t *testing.T) {
	t.Parallel()

	gate, err := New(1)
	require.NoError(t, err)
	ok, err := gate.Admit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	ok, err = gate.Admit(ctx)
	require.False(t, ok)
	require.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestReleaseWakesWaiter(t *testing.T) {
	t.Parallel()

	gate, err := New(1)
	require.NoError(t, err)
	ok, err := gate.Admit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	admitted := make(chan bool, 1)
	go func() {
		ok, _ := gate.Admit(context.Background())
		admitted <- ok
	}()

	select {
	case <-admitted:
		t.Fatal("waiter admitted while gate was full")
	case <-time.After(20 * time.Millisecond):
	}

	gate.Release()
	select {
	case ok := <-admitted:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("release did not wake the waiter")
	}
}

func TestWaitersAdmittedInArrivalOrder(t *testing.T) {
	t.Parallel()

	gate, err := New(1)
	require.NoError(t, err)
	ok, err := gate.Admit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	const waiters = 4
	admitted := make(chan int, waiters)
	for i := 0; i < waiters; i++ {
		go func() {
			ok, err := gate.Admit(context.Background())
			if err != nil || !ok {
				t.Errorf("waiter %d: ok=%v err=%v", i, ok, err)
				return
			}
			admitted <- i
		}()
		require.Eventually(t, func() bool { return gate.waiting() == i+1 },
			time.Second, time.Millisecond, "waiter %d did not queue", i)
	}

	for want := 0; want < waiters; want++ {
		gate.Release()
		select {
		case got := <-admitted:
			require.Equal(t, want, got)
		case <-time.After(time.Second):
			t.Fatalf("release %d woke nobody", want)
		}
		require.Equal(t, 1, gate.InFlight())
	}
	gate.Release()
	require.Equal(t, 0, gate.InFlight())
}

func TestCanceledWaiterPassesItsTurn(t *testing.T) {
	t.Parallel()

	gate, err := New(1)
	require.NoError(t, err)
	ok, err := gate.Admit(context.Background())
	require.NoError(t, err)
	require.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	first := make(chan error, 1)
	go func() {
		_, err := gate.Admit(ctx)
		first <- err
	}()
	require.Eventually(t, func() bool { return gate.waiting() == 1 }, time.Second, time.Millisecond)

	second := make(chan bool, 1)
	go func() {
		ok, _ := gate.Admit(context.Background())
		second <- ok
	}()
	require.Eventually(t, func() bool { return gate.waiting() == 2 }, time.Second, time.Millisecond)

	cancel()
	require.ErrorIs(t, <-first, context.Canceled)
	require.Eventually(t, func() bool { return gate.waiting() == 1 }, time.Second, time.Millisecond)

	gate.Release()
	select {
	case ok := <-second:
		require.True(t, ok)
	case <-time.After(time.Second):
		t.Fatal("remaining waiter was not admitted")
	}
}

func TestReleaseWithoutAdmitPanics(t *testing.T) {
	t.Parallel()

	gate, err := New(1)
	require.NoError(t, err)
	require.Panics(t, gate.Release)
}
