package reactor

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
)

// pollTimeoutMs bounds how long a single Poll call may block, matching
// muduo's kPollTimeMs: the loop must wake at least this often even with no
// I/O or timer activity, so queued cross-goroutine work is never starved
// for more than this long even if the wakeup write were somehow lost.
const pollTimeoutMs = 10000

// loopInThisGoroutine enforces "one EventLoop per goroutine" (spec.md's
// thread-affinity invariant), the Go realization of muduo's
// __thread EventLoop* t_loopInThisThread.
var loopInThisGoroutine sync.Map // goID uint64 -> *EventLoop

// EventLoop is a single-goroutine reactor: it owns a Poller, a TimerQueue
// and a cross-goroutine wakeup edge, and dispatches every Channel callback
// from the one goroutine that calls Loop (spec.md §4.4).
type EventLoop struct {
	// goID is captured at the top of Loop, not in NewEventLoop: the
	// goroutine that constructs an EventLoop (e.g. EventLoopThread's
	// threadMain) need not be the one that ends up running it, and
	// spec.md §1 defines loop affinity against "the id recorded when
	// the loop's Loop method began running." Accessed with atomics
	// since it's written once by the loop goroutine and read by any
	// goroutine calling RunInLoop/Quit/etc.
	goID int64

	looping int32 // atomic bool
	quit    int32 // atomic bool

	eventHandling        bool
	currentActiveChannel *Channel
	activeChannels       []*Channel

	poller     Poller
	timerQueue *TimerQueue
	wakeup     *wakeup

	mu                     sync.Mutex
	pendingFunctors        []func()
	callingPendingFunctors bool

	iteration int64
}

// NewEventLoop constructs a loop. It may be constructed on any goroutine —
// the Poller/TimerQueue/wakeup fds set up here register their channels
// before the loop has an owning goroutine, so affinity isn't asserted yet.
// The goroutine that later calls Loop becomes the loop's owner; calling
// Loop a second time on a goroutine that already owns a loop is a fatal
// programming error, just as in muduo.
func NewEventLoop() *EventLoop {
	el := &EventLoop{}

	el.poller = newDefaultPoller(el)
	el.timerQueue = newTimerQueue(el)
	w, err := newWakeup(el)
	if err != nil {
		base.Fatal("NewEventLoop: failed to create wakeup", zap.Error(err))
	}
	el.wakeup = w

	return el
}

func (el *EventLoop) isInLoopGoroutine() bool {
	return int64(base.GoID()) == atomic.LoadInt64(&el.goID)
}

// assertInLoopGoroutine only enforces affinity while the loop is actually
// looping: before Loop starts (construction) and after it has returned
// (teardown via Close) there is no owning goroutine to violate.
func (el *EventLoop) assertInLoopGoroutine() {
	if atomic.LoadInt32(&el.looping) == 0 {
		return
	}
	if !el.isInLoopGoroutine() {
		base.Fatal("EventLoop used from the wrong goroutine",
			zap.Int64("loop_goid", atomic.LoadInt64(&el.goID)), zap.Uint64("caller_goid", base.GoID()))
	}
}

// Iteration reports how many times Poll has returned, useful in tests that
// want to observe forward progress.
func (el *EventLoop) Iteration() int64 { return atomic.LoadInt64(&el.iteration) }

// Loop runs the reactor until Quit is called. Must be invoked exactly once;
// the calling goroutine becomes the loop's permanent owner for affinity
// purposes (spec.md §1) from this point until Loop returns.
func (el *EventLoop) Loop() {
	id := int64(base.GoID())
	if prev, ok := loopInThisGoroutine.Load(id); ok && prev != nil {
		base.Fatal("EventLoop.Loop: another EventLoop already loops on this goroutine",
			zap.Int64("goid", id))
	}
	atomic.StoreInt64(&el.goID, id)
	loopInThisGoroutine.Store(id, el)

	atomic.StoreInt32(&el.looping, 1)
	atomic.StoreInt32(&el.quit, 0)

	base.L().Debug("EventLoop.Loop start", zap.Int64("goid", id))

	for atomic.LoadInt32(&el.quit) == 0 {
		el.activeChannels = el.activeChannels[:0]
		receiveTime := el.poller.Poll(pollTimeoutMs, &el.activeChannels)
		atomic.AddInt64(&el.iteration, 1)

		if base.Enabled(base.LevelTrace) {
			el.printActiveChannels()
		}

		el.eventHandling = true
		for _, ch := range el.activeChannels {
			el.currentActiveChannel = ch
			ch.HandleEvent(receiveTime)
		}
		el.currentActiveChannel = nil
		el.eventHandling = false

		el.doPendingFunctors()
	}

	base.L().Debug("EventLoop.Loop stop", zap.Int64("goid", id))
	atomic.StoreInt32(&el.looping, 0)
}

func (el *EventLoop) printActiveChannels() {
	for _, ch := range el.activeChannels {
		base.L().Debug("active channel", zap.Int("fd", ch.Fd()))
	}
}

// Quit asks the loop to stop after it finishes the current iteration. Safe
// to call from any goroutine; wakes the loop if called cross-goroutine so
// it doesn't wait out a full pollTimeoutMs first.
func (el *EventLoop) Quit() {
	atomic.StoreInt32(&el.quit, 1)
	if !el.isInLoopGoroutine() {
		el.wakeup.wake()
	}
}

// RunInLoop runs cb in the loop's goroutine: immediately if called from
// that goroutine already, otherwise queued and woken.
func (el *EventLoop) RunInLoop(cb func()) {
	if el.isInLoopGoroutine() {
		cb()
	} else {
		el.QueueInLoop(cb)
	}
}

// QueueInLoop always defers cb to run after the current (or next) Poll
// iteration, even when called from the loop's own goroutine — needed when
// a callback must not re-enter the caller (spec.md's loop re-entrancy
// avoidance).
func (el *EventLoop) QueueInLoop(cb func()) {
	el.mu.Lock()
	el.pendingFunctors = append(el.pendingFunctors, cb)
	el.mu.Unlock()

	// Must also wake up when called from the loop's own goroutine but from
	// inside doPendingFunctors: otherwise a functor that queues another
	// functor would have to wait a full poll cycle to run it.
	if !el.isInLoopGoroutine() || el.callingPendingFunctors {
		el.wakeup.wake()
	}
}

func (el *EventLoop) doPendingFunctors() {
	var functors []func()

	el.mu.Lock()
	functors, el.pendingFunctors = el.pendingFunctors, nil
	el.mu.Unlock()

	el.callingPendingFunctors = true
	for _, fn := range functors {
		fn()
	}
	el.callingPendingFunctors = false
}

// updateChannel and removeChannel are called only by Channel, only from
// the loop's own goroutine.
func (el *EventLoop) updateChannel(ch *Channel) {
	el.assertInLoopGoroutine()
	el.poller.UpdateChannel(ch)
}

func (el *EventLoop) removeChannel(ch *Channel) {
	el.assertInLoopGoroutine()
	if el.eventHandling {
		if el.currentActiveChannel != ch && el.channelStillActive(ch) {
			base.Fatal("EventLoop.removeChannel: channel is in the active list being dispatched")
		}
	}
	el.poller.RemoveChannel(ch)
}

func (el *EventLoop) channelStillActive(ch *Channel) bool {
	for _, c := range el.activeChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// RunAt, RunAfter and RunEvery schedule timer callbacks on this loop; all
// are safe to call from any goroutine (spec.md §4.3).
func (el *EventLoop) RunAt(when base.Timestamp, cb func()) TimerId {
	return el.timerQueue.AddTimer(cb, when, 0)
}

func (el *EventLoop) RunAfter(d time.Duration, cb func()) TimerId {
	return el.RunAt(base.Now().Add(d), cb)
}

func (el *EventLoop) RunEvery(interval time.Duration, cb func()) TimerId {
	return el.timerQueue.AddTimer(cb, base.Now().Add(interval), interval)
}

func (el *EventLoop) CancelTimer(id TimerId) {
	el.timerQueue.Cancel(id)
}

// Close releases the loop's own fds (wakeup, timer fd, poller backend).
// Must be called after Loop has returned; safe to call even if Loop was
// never invoked (e.g. a loop built and torn down without ever looping).
func (el *EventLoop) Close() error {
	if id := atomic.LoadInt64(&el.goID); id != 0 {
		loopInThisGoroutine.Delete(id)
	}
	err1 := el.wakeup.close()
	err2 := el.timerQueue.close()
	err3 := el.poller.Close()
	for _, err := range []error{err1, err2, err3} {
		if err != nil {
			return err
		}
	}
	return nil
}
