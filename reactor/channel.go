package reactor

import (
	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
)

// Event is the reactor's own, OS-independent readiness/interest bitmask.
// Each Poller backend translates to/from its native representation
// (POLLIN/EPOLLIN and friends) at the boundary, so Channel never has to
// know which backend is in play.
type Event uint32

const (
	EventNone  Event = 0
	EventRead  Event = 1 << 0 // readable, or urgent (out-of-band) data
	EventWrite Event = 1 << 1 // writable
)

// Returned-event bits, kept distinct from interest bits because a single
// poll wakeup can report several of these simultaneously and Channel's
// dispatch order (spec.md §4.1) depends on telling them apart.
const (
	RevHup Event = 1 << (iota + 8)
	RevNval
	RevErr
	RevIn
	RevPri
	RevRdHup
	RevOut
)

// Handler is a read-event callback; it carries the instant the poller
// returned, matching muduo's ReadEventCallback(Timestamp).
type Handler func(receiveTime base.Timestamp)

// Channel binds one fd to an interest mask and up to four callbacks. It
// does not own the fd: whoever created the Channel (Acceptor, Connector,
// TcpConnection, TimerQueue, wakeup) is responsible for closing it.
//
// Invariants (spec.md §3): mutated only from loop's own goroutine; must be
// disabled (events == EventNone) before Remove(); fd must outlive the
// Channel or the Channel must be removed first.
type Channel struct {
	loop *EventLoop
	fd   int

	events  Event // interest, set by Enable/Disable*
	revents Event // last readiness reported by the poller
	index   int   // Poller-private slot; -1 means "not yet registered"

	tie      func() (ref any, alive bool) // lifetime guard, see Tie
	tied     bool
	handling bool // true while handleEventWithGuard runs; no other code reads it
	logHup   bool

	readCallback  Handler
	writeCallback func()
	closeCallback func()
	errorCallback func()
}

// newChannel is unexported: only package-internal owners (Acceptor,
// Connector, TimerQueue, wakeup, TcpConnection) construct channels.
func newChannel(loop *EventLoop, fd int) *Channel {
	return &Channel{
		loop:   loop,
		fd:     fd,
		index:  -1,
		logHup: true,
	}
}

func (c *Channel) Fd() int       { return c.fd }
func (c *Channel) Events() Event { return c.events }

// SetRevents is called by the owning Poller only, while filling the active
// list for a wakeup.
func (c *Channel) SetRevents(ev Event) { c.revents = ev }

func (c *Channel) IsNoneEvent() bool { return c.events == EventNone }

func (c *Channel) Index() int        { return c.index }
func (c *Channel) SetIndex(idx int)  { c.index = idx }

func (c *Channel) SetReadCallback(fn Handler)      { c.readCallback = fn }
func (c *Channel) SetWriteCallback(fn func())      { c.writeCallback = fn }
func (c *Channel) SetCloseCallback(fn func())      { c.closeCallback = fn }
func (c *Channel) SetErrorCallback(fn func())      { c.errorCallback = fn }
func (c *Channel) DoNotLogHup()                    { c.logHup = false }

// Tie stores a weak-style liveness guard: before any dispatch, the loop
// calls alive() and only proceeds if it reports true. The indirection
// (rather than a real weak pointer, which Go lacks pre-1.24) is spec.md's
// "arena + generation index" alternative: owners hand Channel a closure
// that checks their own liveness flag instead of a reference-counted
// handle.
func (c *Channel) Tie(alive func() (any, bool)) {
	c.tie = alive
	c.tied = true
}

func (c *Channel) EnableReading() {
	c.events |= EventRead
	c.update()
}

func (c *Channel) EnableWriting() {
	c.events |= EventWrite
	c.update()
}

func (c *Channel) DisableWriting() {
	c.events &^= EventWrite
	c.update()
}

func (c *Channel) DisableAll() {
	c.events = EventNone
	c.update()
}

func (c *Channel) IsWriting() bool { return c.events&EventWrite != 0 }
func (c *Channel) IsReading() bool { return c.events&EventRead != 0 }

func (c *Channel) update() {
	c.loop.updateChannel(c)
}

// Remove asks the owning loop to forget this channel. Must be preceded by
// DisableAll(), per spec.md's Channel invariant (b).
func (c *Channel) Remove() {
	c.loop.removeChannel(c)
}

// HandleEvent dispatches exactly one callback pass for the current revents,
// applied in the fixed order spec.md §4.1 mandates. It never re-enters for
// the same channel: handling is set for the duration of the call.
func (c *Channel) HandleEvent(receiveTime base.Timestamp) {
	if c.tied {
		if _, alive := c.tie(); !alive {
			return
		}
	}
	c.handleEventWithGuard(receiveTime)
}

func (c *Channel) handleEventWithGuard(receiveTime base.Timestamp) {
	c.handling = true
	defer func() { c.handling = false }()

	rev := c.revents

	// 1. Hangup without read-ready: close, once; the steps below still
	// apply to any other bits set in the same mask.
	if rev&RevHup != 0 && rev&RevIn == 0 {
		if c.logHup {
			base.L().Warn("Channel.HandleEvent: RevHup", zap.Int("fd", c.fd))
		}
		if c.closeCallback != nil {
			c.closeCallback()
		}
	}

	// 2. Invalid fd: log and fall through to error handling.
	if rev&RevNval != 0 {
		base.L().Warn("Channel.HandleEvent: RevNval", zap.Int("fd", c.fd))
	}

	// 3. Error or invalid fd.
	if rev&(RevErr|RevNval) != 0 {
		if c.errorCallback != nil {
			c.errorCallback()
		}
	}

	// 4. Read-ready, urgent, or peer half-close.
	if rev&(RevIn|RevPri|RevRdHup) != 0 {
		if c.readCallback != nil {
			c.readCallback(receiveTime)
		}
	}

	// 5. Write-ready.
	if rev&RevOut != 0 {
		if c.writeCallback != nil {
			c.writeCallback()
		}
	}
}
