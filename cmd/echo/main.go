// Command echo is a minimal TCP echo server demonstrating the reactor
// package, grounded on kevwan-evio's examples/simple/server.go.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
	"github.com/yxf006/muduo/reactor"
)

func main() {
	port := flag.Int("port", 2007, "listen port")
	threads := flag.Int("threads", 0, "number of I/O worker loops (0 = run on the accept loop)")
	flag.Parse()

	loop := reactor.NewEventLoop()
	addr := reactor.NewInetAddress(*port, false)
	server := reactor.NewTcpServerWithOptions(loop, addr, "echo",
		reactor.WithThreadNum(*threads),
	)

	server.SetConnectionCallback(func(conn *reactor.TcpConnection) {
		if conn.Connected() {
			base.L().Info("connection up", zap.String("conn", conn.Name()), zap.String("peer", conn.PeerAddr().String()))
		} else {
			base.L().Info("connection down", zap.String("conn", conn.Name()))
		}
	})
	server.SetMessageCallback(func(conn *reactor.TcpConnection, buf *reactor.Buffer, receiveTime base.Timestamp) {
		conn.SendString(buf.RetrieveAllString())
	})

	server.Start()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sig
		base.L().Info("shutdown signal received, stopping server")
		server.Stop()
		loop.Quit()
	}()

	loop.Loop()
	loop.Close()
}
