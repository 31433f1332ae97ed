//go:build unix

package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yxf006/muduo/base"
)

// pollPoller is a direct Go port of muduo's PollPoller.cc: a packed
// unix.PollFd slice plus a parallel fd->Channel map, using the
// negate-fd-minus-one sentinel so a temporarily-interest-less channel
// keeps its O(1) slot instead of being removed and re-added.
type pollPoller struct {
	loop     *EventLoop
	pollfds  []unix.PollFd
	channels map[int]*Channel
}

func newPollPoller(loop *EventLoop) *pollPoller {
	return &pollPoller{
		loop:     loop,
		channels: make(map[int]*Channel),
	}
}

func toNativeEvents(ev Event) int16 {
	var n int16
	if ev&EventRead != 0 {
		n |= unix.POLLIN | unix.POLLPRI
	}
	if ev&EventWrite != 0 {
		n |= unix.POLLOUT
	}
	return n
}

func fromNativeRevents(n int16) Event {
	var ev Event
	if n&unix.POLLHUP != 0 {
		ev |= RevHup
	}
	if n&unix.POLLNVAL != 0 {
		ev |= RevNval
	}
	if n&unix.POLLERR != 0 {
		ev |= RevErr
	}
	if n&unix.POLLIN != 0 {
		ev |= RevIn
	}
	if n&unix.POLLPRI != 0 {
		ev |= RevPri
	}
	if n&unix.POLLRDHUP != 0 {
		ev |= RevRdHup
	}
	if n&unix.POLLOUT != 0 {
		ev |= RevOut
	}
	return ev
}

func (p *pollPoller) Poll(timeoutMs int, active *[]*Channel) base.Timestamp {
	n, err := unix.Poll(p.pollfds, timeoutMs)
	now := base.Now()
	if err != nil {
		if err != unix.EINTR {
			base.L().Error("pollPoller.Poll", zap.Error(err))
		}
		return now
	}
	if n > 0 {
		p.fillActiveChannels(n, active)
	}
	return now
}

func (p *pollPoller) fillActiveChannels(numEvents int, active *[]*Channel) {
	for _, pfd := range p.pollfds {
		if numEvents <= 0 {
			break
		}
		if pfd.Revents == 0 {
			continue
		}
		numEvents--
		fd := pfd.Fd
		if fd < 0 {
			fd = -fd - 1
		}
		ch, ok := p.channels[int(fd)]
		if !ok {
			continue
		}
		ch.SetRevents(fromNativeRevents(pfd.Revents))
		*active = append(*active, ch)
	}
}

func (p *pollPoller) UpdateChannel(ch *Channel) {
	if ch.Index() < 0 {
		// New channel: append to the packed array.
		pfd := unix.PollFd{
			Fd:     int32(ch.Fd()),
			Events: toNativeEvents(ch.Events()),
		}
		p.pollfds = append(p.pollfds, pfd)
		idx := len(p.pollfds) - 1
		ch.SetIndex(idx)
		p.channels[ch.Fd()] = ch
		return
	}

	idx := ch.Index()
	pfd := &p.pollfds[idx]
	pfd.Events = toNativeEvents(ch.Events())
	pfd.Revents = 0
	if ch.IsNoneEvent() {
		// Sentinel: keep the slot but make poll() ignore it.
		pfd.Fd = int32(-ch.Fd() - 1)
	} else {
		pfd.Fd = int32(ch.Fd())
	}
}

func (p *pollPoller) RemoveChannel(ch *Channel) {
	idx := ch.Index()
	last := len(p.pollfds) - 1
	delete(p.channels, ch.Fd())
	if idx == last {
		p.pollfds = p.pollfds[:last]
		ch.SetIndex(-1)
		return
	}
	// O(1) remove: swap with the last slot, patch the displaced channel's
	// recorded index, then shrink.
	fdToMove := p.pollfds[last].Fd
	p.pollfds[idx] = p.pollfds[last]
	p.pollfds = p.pollfds[:last]
	movedFd := fdToMove
	if movedFd < 0 {
		movedFd = -movedFd - 1
	}
	if moved, ok := p.channels[int(movedFd)]; ok {
		moved.SetIndex(idx)
	}
	ch.SetIndex(-1)
}

func (p *pollPoller) Close() error { return nil }
