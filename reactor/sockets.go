package reactor

import (
	"fmt"
	"net"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/yxf006/muduo/base"
)

// InetAddress wraps an IPv4 sockaddr, the Go realization of muduo's
// InetAddress (spec.md glossary). Only IPv4 is supported, matching the
// original's scope.
type InetAddress struct {
	sa unix.SockaddrInet4
}

// NewInetAddress builds a wildcard-or-specific listening address, mirroring
// InetAddress(uint16_t port, bool loopbackOnly).
func NewInetAddress(port int, loopbackOnly bool) InetAddress {
	addr := InetAddress{sa: unix.SockaddrInet4{Port: port}}
	if loopbackOnly {
		addr.sa.Addr = [4]byte{127, 0, 0, 1}
	}
	return addr
}

// ResolveInetAddress resolves host:port (or just a port-less host) into an
// InetAddress, the Go stand-in for InetAddress(ip, port) plus
// InetAddress::resolve.
func ResolveInetAddress(host string, port int) (InetAddress, error) {
	ips, err := net.LookupIP(host)
	if err != nil {
		return InetAddress{}, err
	}
	for _, ip := range ips {
		if v4 := ip.To4(); v4 != nil {
			var a [4]byte
			copy(a[:], v4)
			return InetAddress{sa: unix.SockaddrInet4{Port: port, Addr: a}}, nil
		}
	}
	return InetAddress{}, fmt.Errorf("sockets: no IPv4 address for %q", host)
}

func (a InetAddress) sockaddr() *unix.SockaddrInet4 { return &a.sa }

// IP renders the dotted-quad address, mirroring sockets::toIp.
func (a InetAddress) IP() string {
	b := a.sa.Addr
	return fmt.Sprintf("%d.%d.%d.%d", b[0], b[1], b[2], b[3])
}

func (a InetAddress) Port() int { return a.sa.Port }

// String renders "ip:port", mirroring sockets::toIpPort.
func (a InetAddress) String() string {
	return fmt.Sprintf("%s:%d", a.IP(), a.sa.Port)
}

// createNonblockingOrDie mirrors sockets::createNonblockingOrDie: a
// non-blocking, close-on-exec TCP socket, or a fatal log line — a listening
// or connecting socket that can't even be created leaves nothing useful to
// degrade to.
func createNonblockingOrDie() int {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, unix.IPPROTO_TCP)
	if err != nil {
		base.Fatal("sockets: socket", zap.Error(err))
	}
	return fd
}

func bindOrDie(fd int, addr InetAddress) {
	if err := unix.Bind(fd, addr.sockaddr()); err != nil {
		base.Fatal("sockets: bind", zap.Error(err))
	}
}

func listenOrDie(fd int) {
	if err := unix.Listen(fd, unix.SOMAXCONN); err != nil {
		base.Fatal("sockets: listen", zap.Error(err))
	}
}

// acceptConn mirrors sockets::accept: accept4 with the non-blocking and
// cloexec flags set atomically, no separate fcntl dance needed as on the
// VALGRIND-friendly branch of the original.
func acceptConn(listenFd int) (connFd int, peer InetAddress, err error) {
	nfd, sa, err := unix.Accept4(listenFd, unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC)
	if err != nil {
		return -1, InetAddress{}, err
	}
	if v4, ok := sa.(*unix.SockaddrInet4); ok {
		return nfd, InetAddress{sa: *v4}, nil
	}
	return nfd, InetAddress{}, nil
}

func connect(fd int, addr InetAddress) error {
	return unix.Connect(fd, addr.sockaddr())
}

func setReuseAddr(fd int, on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, v)
}

func setReusePort(fd int, on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEPORT, v)
}

func setTcpNoDelay(fd int, on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = unix.SetsockoptInt(fd, unix.IPPROTO_TCP, unix.TCP_NODELAY, v)
}

func setKeepAlive(fd int, on bool) {
	v := 0
	if on {
		v = 1
	}
	_ = unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_KEEPALIVE, v)
}

// getSocketError mirrors sockets::getSocketError: read back the pending
// SO_ERROR from a socket whose non-blocking connect just became writable.
func getSocketError(fd int) error {
	errno, err := unix.GetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_ERROR)
	if err != nil {
		return err
	}
	if errno == 0 {
		return nil
	}
	return unix.Errno(errno)
}

func getLocalAddr(fd int) (InetAddress, error) {
	sa, err := unix.Getsockname(fd)
	if err != nil {
		return InetAddress{}, err
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return InetAddress{}, fmt.Errorf("sockets: local addr is not IPv4")
	}
	return InetAddress{sa: *v4}, nil
}

func getPeerAddr(fd int) (InetAddress, error) {
	sa, err := unix.Getpeername(fd)
	if err != nil {
		return InetAddress{}, err
	}
	v4, ok := sa.(*unix.SockaddrInet4)
	if !ok {
		return InetAddress{}, fmt.Errorf("sockets: peer addr is not IPv4")
	}
	return InetAddress{sa: *v4}, nil
}

// isSelfConnect mirrors sockets::isSelfConnect: a non-blocking connect can
// race its own ephemeral port and connect to itself.
func isSelfConnect(fd int) bool {
	local, err := getLocalAddr(fd)
	if err != nil {
		return false
	}
	peer, err := getPeerAddr(fd)
	if err != nil {
		return false
	}
	return local.Port() == peer.Port() && local.IP() == peer.IP()
}

func writeFd(fd int, buf []byte) (int, error) { return unix.Write(fd, buf) }

func closeFd(fd int) {
	if err := unix.Close(fd); err != nil {
		base.L().Error("sockets: close", zap.Error(err))
	}
}

func shutdownWrite(fd int) error {
	return unix.Shutdown(fd, unix.SHUT_WR)
}
