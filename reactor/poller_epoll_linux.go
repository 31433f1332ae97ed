//go:build linux

package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yxf006/muduo/base"
)

const (
	epollNew     = -1 // matches Channel's default index, i.e. never seen before
	epollAdded   = 1
	epollDeleted = 2
)

const defaultEpollEventCount = 64

// epollPoller is the linux-native backend, grounded on the gnet/tnet
// epoll wrappers in the retrieval pack. It tracks channel membership with
// the three-state (NEW/ADDED/DELETED) scheme spec.md explicitly sanctions
// as an epoll-appropriate alternative to the poll-backend's sentinel trick.
type epollPoller struct {
	loop     *EventLoop
	epfd     int
	events   []unix.EpollEvent
	channels map[int]*Channel
}

func newEpollPoller(loop *EventLoop) (*epollPoller, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollPoller{
		loop:     loop,
		epfd:     fd,
		events:   make([]unix.EpollEvent, defaultEpollEventCount),
		channels: make(map[int]*Channel),
	}, nil
}

func toEpollEvents(ev Event) uint32 {
	var n uint32
	if ev&EventRead != 0 {
		n |= unix.EPOLLIN | unix.EPOLLPRI
	}
	if ev&EventWrite != 0 {
		n |= unix.EPOLLOUT
	}
	return n
}

func fromEpollEvents(n uint32) Event {
	var ev Event
	if n&unix.EPOLLHUP != 0 {
		ev |= RevHup
	}
	if n&unix.EPOLLERR != 0 {
		ev |= RevErr
	}
	if n&unix.EPOLLIN != 0 {
		ev |= RevIn
	}
	if n&unix.EPOLLPRI != 0 {
		ev |= RevPri
	}
	if n&unix.EPOLLRDHUP != 0 {
		ev |= RevRdHup
	}
	if n&unix.EPOLLOUT != 0 {
		ev |= RevOut
	}
	return ev
}

func (p *epollPoller) Poll(timeoutMs int, active *[]*Channel) base.Timestamp {
	n, err := unix.EpollWait(p.epfd, p.events, timeoutMs)
	now := base.Now()
	if err != nil {
		if err != unix.EINTR {
			base.L().Error("epollPoller.Poll", zap.Error(err))
		}
		return now
	}
	for i := 0; i < n; i++ {
		fd := int(p.events[i].Fd)
		ch, ok := p.channels[fd]
		if !ok {
			continue
		}
		ch.SetRevents(fromEpollEvents(p.events[i].Events))
		*active = append(*active, ch)
	}
	if n == len(p.events) {
		// Active set filled the buffer; grow it for the next wait.
		p.events = make([]unix.EpollEvent, len(p.events)*2)
	}
	return now
}

func (p *epollPoller) ctl(op int, ch *Channel) error {
	ev := unix.EpollEvent{
		Events: toEpollEvents(ch.Events()),
		Fd:     int32(ch.Fd()),
	}
	return unix.EpollCtl(p.epfd, op, ch.Fd(), &ev)
}

func (p *epollPoller) UpdateChannel(ch *Channel) {
	index := ch.Index()
	if index == epollNew || index == epollDeleted {
		fd := ch.Fd()
		p.channels[fd] = ch
		if err := p.ctl(unix.EPOLL_CTL_ADD, ch); err != nil {
			base.L().Error("epollPoller: EPOLL_CTL_ADD", zap.Int("fd", fd), zap.Error(err))
			return
		}
		ch.SetIndex(epollAdded)
		return
	}

	// Existing, already added.
	if ch.IsNoneEvent() {
		if err := p.ctl(unix.EPOLL_CTL_DEL, ch); err != nil {
			base.L().Error("epollPoller: EPOLL_CTL_DEL", zap.Int("fd", ch.Fd()), zap.Error(err))
		}
		ch.SetIndex(epollDeleted)
		return
	}
	if err := p.ctl(unix.EPOLL_CTL_MOD, ch); err != nil {
		base.L().Error("epollPoller: EPOLL_CTL_MOD", zap.Int("fd", ch.Fd()), zap.Error(err))
	}
}

func (p *epollPoller) RemoveChannel(ch *Channel) {
	fd := ch.Fd()
	delete(p.channels, fd)
	if ch.Index() == epollAdded {
		if err := p.ctl(unix.EPOLL_CTL_DEL, ch); err != nil {
			base.L().Error("epollPoller: EPOLL_CTL_DEL on remove", zap.Int("fd", fd), zap.Error(err))
		}
	}
	ch.SetIndex(-1)
}

func (p *epollPoller) Close() error {
	return unix.Close(p.epfd)
}
