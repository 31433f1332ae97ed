package reactor

import (
	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
)

// wakeup is the cross-goroutine notification edge (spec.md §4.5): an
// eventfd (or pipe fallback) wrapped in a read-only Channel whose read
// callback drains the counter. It exists purely to make the loop's poll
// wait return promptly when another goroutine has queued work.
type wakeup struct {
	readFd  int
	writeFd int
	channel *Channel
}

func newWakeup(loop *EventLoop) (*wakeup, error) {
	readFd, writeFd, err := newWakeupFds()
	if err != nil {
		return nil, err
	}
	w := &wakeup{readFd: readFd, writeFd: writeFd}
	w.channel = newChannel(loop, readFd)
	w.channel.SetReadCallback(w.handleRead)
	w.channel.EnableReading()
	return w, nil
}

func (w *wakeup) handleRead(base.Timestamp) {
	if err := drainWakeup(w.readFd); err != nil {
		base.L().Error("wakeup: drain failed", zap.Error(err))
	}
}

// wake is safe to call from any goroutine.
func (w *wakeup) wake() {
	if err := writeWakeup(w.writeFd); err != nil {
		base.L().Error("wakeup: write failed", zap.Error(err))
	}
}

func (w *wakeup) close() error {
	w.channel.DisableAll()
	w.channel.Remove()
	return closeWakeup(w.readFd, w.writeFd)
}
