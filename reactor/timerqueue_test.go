package reactor

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yxf006/muduo/base"
)

// TestTimerOrdering is spec.md S3: timers scheduled out of order fire in
// expiration order.
func TestTimerOrdering(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var mu sync.Mutex
	var log []int

	done := make(chan struct{})
	record := func(label int) func() {
		return func() {
			mu.Lock()
			log = append(log, label)
			mu.Unlock()
			if label == 30 {
				close(done)
			}
		}
	}

	loop.RunAfter(30*time.Millisecond, record(30))
	loop.RunAfter(10*time.Millisecond, record(10))
	loop.RunAfter(20*time.Millisecond, record(20))

	go loop.Loop()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timers did not fire in time")
	}
	loop.Quit()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, []int{10, 20, 30}, log)
}

// TestTimerCancel is spec.md S4 and invariant 4: cancelling before fire
// suppresses the callback.
func TestTimerCancel(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	fired := false
	id := loop.RunAfter(50*time.Millisecond, func() { fired = true })
	loop.RunAfter(10*time.Millisecond, func() { loop.CancelTimer(id) })

	go loop.Loop()
	time.Sleep(200 * time.Millisecond)
	loop.Quit()
	time.Sleep(20 * time.Millisecond)

	require.False(t, fired, "cancelled timer must never fire")
}

// TestTimerQueueSizeInvariant is spec.md invariant 2: heap and by-id map
// agree on size at every public-operation boundary.
func TestTimerQueueSizeInvariant(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	var ids []TimerId
	added := make(chan struct{})
	loop.RunInLoop(func() {
		for i := 0; i < 10; i++ {
			ids = append(ids, loop.timerQueue.AddTimer(func() {}, base.Now().Add(time.Hour), 0))
		}
		close(added)
	})

	go loop.Loop()
	<-added
	time.Sleep(20 * time.Millisecond)

	done := make(chan struct{})
	loop.RunInLoop(func() {
		for _, id := range ids {
			loop.CancelTimer(id)
		}
		loop.timerQueue.assertSizesMatch()
		require.Equal(t, 0, len(loop.timerQueue.heap))
		close(done)
	})
	<-done
	loop.Quit()
}
