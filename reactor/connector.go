package reactor

import (
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yxf006/muduo/base"
)

type connectorState int

const (
	connectorDisconnected connectorState = iota
	connectorConnecting
	connectorConnected
)

const (
	connectorInitRetryDelay = 500 * time.Millisecond
	connectorMaxRetryDelay  = 30 * time.Second
)

// NewConnectedHandler receives a connected socket's fd; the Connector
// takes no further interest in it once this returns.
type NewConnectedHandler func(connFd int)

// Connector drives a non-blocking outbound connect through to completion
// or exponential-backoff retry (spec.md §4.7), a port of muduo's
// Connector.cc with the timer now supplied by EventLoop.RunAfter instead
// of a raw Timer/TimerId pair constructed by hand.
type Connector struct {
	loop       *EventLoop
	serverAddr InetAddress

	connect bool
	state   connectorState

	channel *Channel

	retryDelay time.Duration
	retryTimer TimerId
	hasTimer   bool

	newConnCb NewConnectedHandler

	onRetryForTest func() // test-only observation hook; nil in production use
}

func NewConnector(loop *EventLoop, serverAddr InetAddress) *Connector {
	return &Connector{
		loop:       loop,
		serverAddr: serverAddr,
		state:      connectorDisconnected,
		retryDelay: connectorInitRetryDelay,
	}
}

func (c *Connector) SetNewConnectedCallback(cb NewConnectedHandler) { c.newConnCb = cb }

// Start is safe to call from any goroutine.
func (c *Connector) Start() {
	c.connect = true
	c.loop.RunInLoop(c.startInLoop)
}

func (c *Connector) startInLoop() {
	c.loop.assertInLoopGoroutine()
	if c.state != connectorDisconnected {
		base.Fatal("Connector.startInLoop: called while not disconnected")
	}
	if c.connect {
		c.dial()
	} else {
		base.L().Debug("Connector.startInLoop: connect disabled, not connecting")
	}
}

// Stop is safe to call from any goroutine.
func (c *Connector) Stop() {
	c.connect = false
	c.loop.RunInLoop(c.stopInLoop)
}

func (c *Connector) stopInLoop() {
	c.loop.assertInLoopGoroutine()
	if c.state == connectorConnecting {
		c.setState(connectorDisconnected)
		fd := c.removeAndResetChannel()
		closeFd(fd)
	}
	if c.hasTimer {
		c.loop.CancelTimer(c.retryTimer)
		c.hasTimer = false
	}
}

// Restart re-arms the connector from scratch, resetting the backoff.
func (c *Connector) Restart() {
	c.loop.assertInLoopGoroutine()
	c.setState(connectorDisconnected)
	c.retryDelay = connectorInitRetryDelay
	c.connect = true
	c.startInLoop()
}

func (c *Connector) setState(s connectorState) { c.state = s }

func (c *Connector) dial() {
	fd := createNonblockingOrDie()
	err := connect(fd, c.serverAddr)
	if err == nil || err == unix.EINPROGRESS || err == unix.EINTR || err == unix.EISCONN {
		c.connecting(fd)
		return
	}
	switch err {
	case unix.EAGAIN, unix.EADDRINUSE, unix.EADDRNOTAVAIL, unix.ECONNREFUSED, unix.ENETUNREACH:
		c.retry(fd)
	default:
		base.L().Error("Connector.dial: unexpected connect error", zap.Error(err))
		closeFd(fd)
	}
}

func (c *Connector) connecting(fd int) {
	c.setState(connectorConnecting)
	c.channel = newChannel(c.loop, fd)
	c.channel.SetWriteCallback(c.handleWrite)
	c.channel.SetErrorCallback(c.handleError)
	c.channel.EnableWriting()
}

func (c *Connector) removeAndResetChannel() int {
	c.channel.DisableAll()
	c.channel.Remove()
	fd := c.channel.Fd()
	// Deferred: we are still inside the Channel's own HandleEvent here.
	c.loop.QueueInLoop(c.resetChannel)
	return fd
}

func (c *Connector) resetChannel() { c.channel = nil }

func (c *Connector) handleWrite() {
	if c.state != connectorConnecting {
		return
	}
	fd := c.removeAndResetChannel()
	if err := getSocketError(fd); err != nil {
		base.L().Warn("Connector.handleWrite: SO_ERROR", zap.Error(err))
		c.retry(fd)
		return
	}
	if isSelfConnect(fd) {
		base.L().Warn("Connector.handleWrite: self connect")
		c.retry(fd)
		return
	}
	c.setState(connectorConnected)
	if c.connect && c.newConnCb != nil {
		c.newConnCb(fd)
	} else {
		closeFd(fd)
	}
}

func (c *Connector) handleError() {
	base.L().Error("Connector.handleError")
	fd := c.removeAndResetChannel()
	err := getSocketError(fd)
	base.L().Debug("Connector.handleError: SO_ERROR", zap.Error(err))
	c.retry(fd)
}

// retry backs off exponentially between connectorInitRetryDelay and
// connectorMaxRetryDelay, exactly as muduo's Connector::retry does.
func (c *Connector) retry(fd int) {
	closeFd(fd)
	c.setState(connectorDisconnected)
	if !c.connect {
		base.L().Debug("Connector.retry: connect disabled, not retrying")
		return
	}
	base.L().Info("Connector.retry: retrying",
		zap.String("server", c.serverAddr.String()),
		zap.Duration("delay", c.retryDelay))
	c.retryTimer = c.loop.RunAfter(c.retryDelay, c.startInLoop)
	c.hasTimer = true
	c.retryDelay *= 2
	if c.retryDelay > connectorMaxRetryDelay {
		c.retryDelay = connectorMaxRetryDelay
	}
	if c.onRetryForTest != nil {
		c.onRetryForTest()
	}
}
