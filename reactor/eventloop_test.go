package reactor

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestCrossThreadRunInLoop is spec.md S5: three goroutines each call
// RunInLoop 1000 times; after quiescing, the counter must read exactly
// 3000, with every increment having actually run on the loop's own
// goroutine.
func TestCrossThreadRunInLoop(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var counter int64
	var badGoroutine int32

	go loop.Loop()

	var wg sync.WaitGroup
	for g := 0; g < 3; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1000; i++ {
				loop.RunInLoop(func() {
					if !loop.isInLoopGoroutine() {
						atomic.StoreInt32(&badGoroutine, 1)
					}
					atomic.AddInt64(&counter, 1)
				})
			}
		}()
	}
	wg.Wait()

	require.Eventually(t, func() bool {
		return atomic.LoadInt64(&counter) == 3000
	}, 2*time.Second, 5*time.Millisecond)
	require.Zero(t, atomic.LoadInt32(&badGoroutine))

	loop.Quit()
}

// TestQuitIsIdempotent is spec.md invariant 6.
func TestQuitIsIdempotent(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	done := make(chan struct{})
	go func() {
		loop.Loop()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	loop.Quit()
	loop.Quit()
	loop.Quit()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop")
	}
}

// TestLivenessBound is spec.md invariant 7: a cross-goroutine task runs
// well within one poll cycle even with nothing else happening on the loop.
func TestLivenessBound(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()
	go loop.Loop()
	defer loop.Quit()

	ran := make(chan struct{})
	start := time.Now()
	loop.RunInLoop(func() { close(ran) })

	select {
	case <-ran:
		require.Less(t, time.Since(start), 1*time.Second)
	case <-time.After(3 * time.Second):
		t.Fatal("task did not run within the liveness bound")
	}
}

// TestSameGoroutineAssertionsSucceed covers only the positive side of
// invariant 1: the affinity assertion does not abort on a loop that is not
// looping. The wrong-goroutine path calls base.Fatal, which calls zap's
// Fatal and so os.Exit; no test exercises it.
func TestSameGoroutineAssertionsSucceed(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()
	require.NotPanics(t, func() {
		loop.assertInLoopGoroutine()
	})
}
