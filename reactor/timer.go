package reactor

import (
	"time"

	"github.com/yxf006/muduo/base"
)

// TimerId is an opaque handle sufficient to cancel a scheduled timer. The
// sequence number alone makes it robust against reuse: sequences are
// assigned from a monotonically increasing counter that is never reset or
// recycled, so a stale id simply won't be present in the queue's index —
// Go's GC means there's no address to reuse in the first place, which is
// the hazard muduo's TimerId(Timer*, sequence) pairing defends against.
type TimerId struct {
	seq uint64
}

// timerNode is the in-queue representation; exclusively owned by
// TimerQueue between insertion and firing (spec.md §3).
type timerNode struct {
	id         TimerId
	expiration base.Timestamp
	interval   time.Duration // 0 means one-shot
	callback   func()
	heapIndex  int
}
