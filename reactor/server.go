package reactor

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/yxf006/muduo/base"
)

// TcpServer ties an Acceptor, an EventLoopThreadPool and the live
// connection set together (spec.md §4.9), mirroring muduo's TcpServer.
type TcpServer struct {
	loop     *EventLoop // the acceptor's loop
	hostport string
	name     string

	acceptor   *Acceptor
	threadPool *EventLoopThreadPool

	connectionCb    ConnectionHandler
	messageCb       MessageHandler
	writeCompleteCb WriteCompleteHandler
	threadInitCb    ThreadInitHandler

	mu          sync.Mutex // guards started; removeConnection crosses goroutines
	started     bool
	nextConnID  int
	connections map[string]*TcpConnection

	opts Options // zero value is defaultOptions' zero-equivalent shape
}

func NewTcpServer(loop *EventLoop, listenAddr InetAddress, name string) *TcpServer {
	s := &TcpServer{
		loop:        loop,
		hostport:    listenAddr.String(),
		name:        name,
		acceptor:    NewAcceptor(loop, listenAddr, false),
		threadPool:  NewEventLoopThreadPool(loop),
		connections: make(map[string]*TcpConnection),
	}
	s.acceptor.SetNewConnectionCallback(s.newConnection)
	return s
}

func (s *TcpServer) Hostport() string { return s.hostport }
func (s *TcpServer) Name() string     { return s.name }

func (s *TcpServer) SetThreadNum(n int)                     { s.threadPool.SetThreadNum(n) }
func (s *TcpServer) SetThreadInitCallback(cb ThreadInitHandler) { s.threadInitCb = cb }

func (s *TcpServer) SetConnectionCallback(cb ConnectionHandler)         { s.connectionCb = cb }
func (s *TcpServer) SetMessageCallback(cb MessageHandler)               { s.messageCb = cb }
func (s *TcpServer) SetWriteCompleteCallback(cb WriteCompleteHandler)   { s.writeCompleteCb = cb }

// Start is idempotent. It starts the thread pool on the calling goroutine,
// so once the base loop is looping it must be called from that loop's
// goroutine; before Loop runs, any goroutine may call it.
func (s *TcpServer) Start() {
	s.mu.Lock()
	alreadyStarted := s.started
	s.started = true
	s.mu.Unlock()

	if alreadyStarted {
		return
	}

	s.threadPool.Start(s.threadInitCb)
	s.loop.RunInLoop(func() {
		if !s.acceptor.Listening() {
			s.acceptor.Listen()
		}
	})
}

// Stop tears down the acceptor and joins every worker loop owned by this
// server's thread pool. It does not Quit or Close the base loop: that loop
// was constructed by the caller (see NewTcpServer) and remains theirs to
// stop. Safe to call once, after Start.
func (s *TcpServer) Stop() {
	s.loop.RunInLoop(func() {
		s.acceptor.Close()
	})
	s.threadPool.Stop()
}

func (s *TcpServer) newConnection(connFd int, peer InetAddress) {
	s.loop.assertInLoopGoroutine()
	ioLoop := s.threadPool.GetNextLoop()

	connName := fmt.Sprintf("%s-%s#%d", s.name, s.hostport, s.nextConnID)
	s.nextConnID++

	local, err := getLocalAddr(connFd)
	if err != nil {
		base.L().Error("TcpServer.newConnection: getLocalAddr", zap.Error(err))
	}
	if s.opts.logLevel <= zapcore.InfoLevel {
		base.L().Info("TcpServer.newConnection",
			zap.String("conn", connName), zap.String("peer", peer.String()))
	}

	conn := newTcpConnection(ioLoop, connName, connFd, local, peer, s.opts.readBufferSize, s.opts.writeHighWater)
	conn.SetConnectionCallback(s.connectionCb)
	conn.SetMessageCallback(s.messageCb)
	conn.SetWriteCompleteCallback(s.writeCompleteCb)
	conn.setCloseCallback(s.removeConnection)

	s.connections[connName] = conn
	ioLoop.RunInLoop(conn.connectEstablished)
}

// removeConnection is the Channel close callback, so it always runs on the
// connection's own ioLoop — possibly a different goroutine than the
// acceptor's. Forward to the acceptor loop before mutating the shared map.
func (s *TcpServer) removeConnection(conn *TcpConnection) {
	s.loop.RunInLoop(func() { s.removeConnectionInLoop(conn) })
}

func (s *TcpServer) removeConnectionInLoop(conn *TcpConnection) {
	s.loop.assertInLoopGoroutine()
	if s.opts.logLevel <= zapcore.InfoLevel {
		base.L().Info("TcpServer.removeConnection", zap.String("conn", conn.Name()))
	}
	delete(s.connections, conn.Name())
	conn.Loop().QueueInLoop(conn.connectDestroyed)
}
