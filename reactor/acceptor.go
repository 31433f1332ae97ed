package reactor

import (
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yxf006/muduo/base"
)

// NewConnectionHandler receives an accepted connection's fd and its peer
// address; the Acceptor itself takes no further interest in the fd once
// this returns.
type NewConnectionHandler func(connFd int, peer InetAddress)

// Acceptor owns a listening socket and converts its readability into
// accepted connections (spec.md §4.6), a direct port of muduo's
// Acceptor.cc.
type Acceptor struct {
	loop        *EventLoop
	listenFd    int
	channel     *Channel
	listening   bool
	idleFd      int
	newConnCb   NewConnectionHandler
}

func NewAcceptor(loop *EventLoop, listenAddr InetAddress, reusePort bool) *Acceptor {
	fd := createNonblockingOrDie()
	idleFd, err := unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		base.Fatal("Acceptor: open /dev/null failed", zap.Error(err))
	}

	a := &Acceptor{
		loop:     loop,
		listenFd: fd,
		idleFd:   idleFd,
	}
	setReuseAddr(fd, true)
	setReusePort(fd, reusePort)
	bindOrDie(fd, listenAddr)

	a.channel = newChannel(loop, fd)
	a.channel.SetReadCallback(a.handleRead)
	return a
}

func (a *Acceptor) SetNewConnectionCallback(cb NewConnectionHandler) { a.newConnCb = cb }

func (a *Acceptor) Listening() bool { return a.listening }

func (a *Acceptor) Listen() {
	a.loop.assertInLoopGoroutine()
	a.listening = true
	listenOrDie(a.listenFd)
	a.channel.EnableReading()
}

// Close must be called from the loop goroutine once the server is done
// accepting; idempotent is not required, matching the original's
// destructor-only teardown.
func (a *Acceptor) Close() {
	a.channel.DisableAll()
	a.channel.Remove()
	closeFd(a.idleFd)
	closeFd(a.listenFd)
}

func (a *Acceptor) handleRead(base.Timestamp) {
	a.loop.assertInLoopGoroutine()
	connFd, peer, err := acceptConn(a.listenFd)
	if err == nil {
		if a.newConnCb != nil {
			a.newConnCb(connFd, peer)
		} else {
			closeFd(connFd)
		}
		return
	}

	// By Marc Lehmann, author of libev: gracefully shed the spurious,
	// always-ready accept event EMFILE causes under level-triggered
	// polling by freeing one fd, accepting (and immediately dropping) the
	// connection, then reclaiming the idle fd.
	if err == unix.EMFILE {
		closeFd(a.idleFd)
		a.idleFd, _, _ = acceptConn(a.listenFd)
		closeFd(a.idleFd)
		a.idleFd, err = unix.Open("/dev/null", unix.O_RDONLY|unix.O_CLOEXEC, 0)
		if err != nil {
			base.L().Error("Acceptor: reopen /dev/null failed", zap.Error(err))
		}
	}
}
