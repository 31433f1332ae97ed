package reactor

// ThreadInitHandler runs on a pool thread's own loop, before that loop
// starts looping — the hook TcpServer uses to attach per-thread state.
type ThreadInitHandler func(loop *EventLoop)

// EventLoopThread spawns a goroutine, constructs an EventLoop on it and
// publishes the pointer back to the caller once it's ready — the Go
// realization of muduo's EventLoopThread, swapping the mutex+condition
// variable handoff for a buffered channel, which is simpler and exactly as
// safe for a single producer/single consumer handoff.
type EventLoopThread struct {
	loop   *EventLoop
	loopCh chan *EventLoop
	initCb ThreadInitHandler
	done   chan struct{} // closed once threadMain's Loop call returns
}

func NewEventLoopThread(cb ThreadInitHandler) *EventLoopThread {
	return &EventLoopThread{
		loopCh: make(chan *EventLoop, 1),
		initCb: cb,
		done:   make(chan struct{}),
	}
}

// StartLoop spawns the goroutine and blocks until its EventLoop exists,
// mirroring EventLoopThread::startLoop's condition-variable wait.
func (t *EventLoopThread) StartLoop() *EventLoop {
	go t.threadMain()
	t.loop = <-t.loopCh
	return t.loop
}

func (t *EventLoopThread) threadMain() {
	loop := NewEventLoop()
	if t.initCb != nil {
		t.initCb(loop)
	}
	t.loopCh <- loop
	loop.Loop()
	close(t.done)
}

// Stop quits the owned loop and blocks until its goroutine has actually
// exited, the Go realization of EventLoopThread's destructor (quit + join).
// Safe to call only after StartLoop has returned.
func (t *EventLoopThread) Stop() {
	t.loop.Quit()
	<-t.done
}
