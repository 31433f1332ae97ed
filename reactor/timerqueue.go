package reactor

import (
	"container/heap"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
)

// timerFloor matches muduo's TimerQueue::howMuchTimeFromNow 100µs minimum,
// so a timer whose expiration has already slipped into the past doesn't
// starve the loop with a zero-delay rearm storm.
const timerFloor = 100 * time.Microsecond

// timerFD abstracts the kernel object that becomes readable at a
// programmed monotonic instant (spec.md glossary: "Timer fd"). linux uses
// a real timerfd; other unix targets fall back to a goroutine-driven
// self-pipe (timerfd_other.go).
type timerFD interface {
	fd() int
	reset(d time.Duration) error
	drain()
	close() error
}

// TimerQueue is a monotonic-timer-fd-driven ordered set of pending timers
// (spec.md §4.3), realized as a container/heap min-heap plus a map for
// O(1) cancel-by-id lookup — the alternative spec.md's Design Notes
// explicitly sanction in place of the two parallel ordered C++ sets.
//
// All public methods are safe to call from any goroutine: they delegate to
// the owning loop via RunInLoop, exactly like muduo's TimerQueue.
type TimerQueue struct {
	loop *EventLoop
	tfd  timerFD

	channel *Channel

	heap timerHeap
	byID map[uint64]*timerNode

	nextSeq uint64 // atomic; timer ids are handed out off the loop thread

	callingExpired bool
	cancelingNow   map[uint64]struct{}
}

func newTimerQueue(loop *EventLoop) *TimerQueue {
	tfd, err := newPlatformTimerFd()
	if err != nil {
		base.Fatal("TimerQueue: failed to create timer fd", zap.Error(err))
	}
	q := &TimerQueue{
		loop: loop,
		tfd:  tfd,
		byID: make(map[uint64]*timerNode),
	}
	q.channel = newChannel(loop, tfd.fd())
	q.channel.SetReadCallback(q.handleRead)
	// Always reading: disarm via reset(), never via disabling the channel,
	// matching muduo's "we are always reading the timerfd" comment.
	q.channel.EnableReading()
	return q
}

// AddTimer schedules cb to run at `when`; if interval > 0 it repeats every
// interval thereafter. Safe to call from any goroutine.
func (q *TimerQueue) AddTimer(cb func(), when base.Timestamp, interval time.Duration) TimerId {
	seq := atomic.AddUint64(&q.nextSeq, 1)
	id := TimerId{seq: seq}
	node := &timerNode{id: id, expiration: when, interval: interval, callback: cb}
	q.loop.RunInLoop(func() { q.addTimerInLoop(node) })
	return id
}

// Cancel cancels a previously scheduled timer. Safe to call from any
// goroutine; a no-op on a stale or already-fired id. Cancelling a timer
// whose callback is executing right now prevents it from being re-armed
// even if it's periodic.
func (q *TimerQueue) Cancel(id TimerId) {
	q.loop.RunInLoop(func() { q.cancelInLoop(id) })
}

func (q *TimerQueue) addTimerInLoop(n *timerNode) {
	q.loop.assertInLoopGoroutine()
	if q.insert(n) {
		q.resetTimerFd(n.expiration)
	}
}

func (q *TimerQueue) cancelInLoop(id TimerId) {
	q.loop.assertInLoopGoroutine()
	q.assertSizesMatch()
	if n, ok := q.byID[id.seq]; ok {
		delete(q.byID, id.seq)
		heap.Remove(&q.heap, n.heapIndex)
	} else if q.callingExpired {
		q.cancelingNow[id.seq] = struct{}{}
	}
	q.assertSizesMatch()
}

// handleRead is the timerfd's channel read callback: drain the counter,
// collect everyone expired by now, fire them, then rearm repeats.
func (q *TimerQueue) handleRead(base.Timestamp) {
	q.loop.assertInLoopGoroutine()
	now := base.Now()
	q.tfd.drain()

	expired := q.getExpired(now)

	q.callingExpired = true
	q.cancelingNow = make(map[uint64]struct{})
	for _, n := range expired {
		n.callback()
	}
	q.callingExpired = false

	q.rearm(expired, now)
}

func (q *TimerQueue) getExpired(now base.Timestamp) []*timerNode {
	q.assertSizesMatch()
	var expired []*timerNode
	for len(q.heap) > 0 && !q.heap[0].expiration.After(now) {
		n := heap.Pop(&q.heap).(*timerNode)
		delete(q.byID, n.id.seq)
		expired = append(expired, n)
	}
	q.assertSizesMatch()
	return expired
}

func (q *TimerQueue) rearm(expired []*timerNode, now base.Timestamp) {
	for _, n := range expired {
		_, canceling := q.cancelingNow[n.id.seq]
		if n.interval > 0 && !canceling {
			n.expiration = now.Add(n.interval)
			q.insert(n)
		}
	}
	if len(q.heap) > 0 {
		q.resetTimerFd(q.heap[0].expiration)
	}
}

// insert adds n to both indices and reports whether it is now the
// earliest-expiring timer (so the caller knows to reprogram the timer fd).
func (q *TimerQueue) insert(n *timerNode) bool {
	earliestChanged := len(q.heap) == 0 || n.expiration.Before(q.heap[0].expiration)
	heap.Push(&q.heap, n)
	q.byID[n.id.seq] = n
	return earliestChanged
}

func (q *TimerQueue) resetTimerFd(expiration base.Timestamp) {
	d := time.Until(expiration)
	if d < timerFloor {
		d = timerFloor
	}
	if err := q.tfd.reset(d); err != nil {
		base.L().Error("TimerQueue: reset timer fd failed", zap.Error(err))
	}
}

func (q *TimerQueue) assertSizesMatch() {
	if len(q.heap) != len(q.byID) {
		panic("TimerQueue: heap/byID size mismatch")
	}
}

func (q *TimerQueue) close() error {
	q.channel.DisableAll()
	q.channel.Remove()
	return q.tfd.close()
}
