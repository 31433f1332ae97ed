package reactor

import (
	"go.uber.org/zap"

	"github.com/yxf006/muduo/base"
)

// EventLoopThreadPool owns N worker EventLoops and hands them out
// round-robin to new connections, exactly like
// muduo's EventLoopThreadPool.
type EventLoopThreadPool struct {
	baseLoop   *EventLoop
	started    bool
	numThreads int
	next       int
	threads    []*EventLoopThread
	loops      []*EventLoop
}

func NewEventLoopThreadPool(baseLoop *EventLoop) *EventLoopThreadPool {
	return &EventLoopThreadPool{baseLoop: baseLoop}
}

func (p *EventLoopThreadPool) SetThreadNum(n int) { p.numThreads = n }

// Start must be called from the base loop's goroutine, before the base
// loop starts looping. Harmless to call only once; calling it twice is a
// programming error, just as in the original.
func (p *EventLoopThreadPool) Start(cb ThreadInitHandler) {
	p.baseLoop.assertInLoopGoroutine()
	if p.started {
		base.Fatal("EventLoopThreadPool.Start: already started")
	}
	p.started = true

	for i := 0; i < p.numThreads; i++ {
		t := NewEventLoopThread(cb)
		p.threads = append(p.threads, t)
		p.loops = append(p.loops, t.StartLoop())
	}
	if p.numThreads == 0 && cb != nil {
		cb(p.baseLoop)
	}
}

// GetNextLoop round-robins across the pool; with no worker threads it
// always returns the base loop, so a zero-thread TcpServer runs entirely
// on its own goroutine.
func (p *EventLoopThreadPool) GetNextLoop() *EventLoop {
	p.baseLoop.assertInLoopGoroutine()
	loop := p.baseLoop
	if len(p.loops) > 0 {
		loop = p.loops[p.next]
		p.next = (p.next + 1) % len(p.loops)
	}
	return loop
}

func (p *EventLoopThreadPool) GetAllLoops() []*EventLoop {
	if len(p.loops) == 0 {
		return []*EventLoop{p.baseLoop}
	}
	return p.loops
}

// Stop quits and joins every worker thread, then releases each worker
// loop's own fds. The base loop is not touched: the caller constructed it
// and owns its lifetime. Safe to call once the pool has been Start'ed;
// a no-op on a zero-thread pool.
func (p *EventLoopThreadPool) Stop() {
	for i, t := range p.threads {
		t.Stop()
		if err := p.loops[i].Close(); err != nil {
			base.L().Error("EventLoopThreadPool.Stop: Close", zap.Error(err))
		}
	}
}
