package reactor

import (
	"os"
	"runtime"

	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
)

// Poller is the I/O multiplexing backend contract (spec.md §4.2). All
// methods must only be called from the owning EventLoop's goroutine.
type Poller interface {
	// Poll waits up to timeoutMs and appends every Channel with a non-zero
	// revents mask onto active. Returns the instant the wait returned.
	Poll(timeoutMs int, active *[]*Channel) base.Timestamp

	// UpdateChannel registers a new channel or applies an interest-mask
	// change for an existing one, discriminated by ch.Index() < 0.
	UpdateChannel(ch *Channel)

	// RemoveChannel unregisters ch, which must have ch.IsNoneEvent() true.
	RemoveChannel(ch *Channel)

	// Close releases the backend's own kernel resources (epoll fd, etc).
	Close() error
}

// newDefaultPoller mirrors muduo's Poller::newDefaultPoller: pick epoll on
// linux, fall back to poll() everywhere else, with an env var escape hatch
// matching the original's MUDUO_USE_POLL knob.
func newDefaultPoller(loop *EventLoop) Poller {
	if _, forcePoll := os.LookupEnv("MUDUO_USE_POLL"); forcePoll || runtime.GOOS != "linux" {
		return newPollPoller(loop)
	}
	p, err := newEpollPoller(loop)
	if err != nil {
		base.L().Warn("falling back to poll(): epoll init failed", zap.Error(err))
		return newPollPoller(loop)
	}
	return p
}
