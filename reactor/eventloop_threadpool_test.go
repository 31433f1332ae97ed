package reactor

import (
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestEventLoopThreadStopJoins verifies Stop blocks until threadMain's
// goroutine has actually returned, not merely until Quit has been posted.
func TestEventLoopThreadStopJoins(t *testing.T) {
	thread := NewEventLoopThread(nil)
	loop := thread.StartLoop()
	require.NotNil(t, loop)

	done := make(chan struct{})
	go func() {
		thread.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EventLoopThread.Stop did not return")
	}

	require.NoError(t, loop.Close())
}

// TestEventLoopThreadPoolStopJoinsAllWorkers verifies the pool's Stop joins
// every worker thread it started, leaking none of them.
func TestEventLoopThreadPoolStopJoinsAllWorkers(t *testing.T) {
	baseLoop := NewEventLoop()
	defer baseLoop.Close()

	before := runtime.NumGoroutine()

	pool := NewEventLoopThreadPool(baseLoop)
	pool.SetThreadNum(4)
	pool.Start(nil)

	go baseLoop.Loop()
	defer baseLoop.Quit()

	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() >= before+4
	}, time.Second, 5*time.Millisecond)

	done := make(chan struct{})
	go func() {
		pool.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("EventLoopThreadPool.Stop did not return")
	}

	// The base loop's own goroutine, started after `before` was taken, is
	// still running until the deferred Quit; only the workers must be gone.
	require.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= before+1
	}, time.Second, 5*time.Millisecond, "worker goroutines leaked past Stop")
}
