//go:build !linux && unix

package reactor

import "time"

// fallbackTimerFd realizes the same "fd becomes readable at a programmed
// instant" contract without a native timerfd, using a goroutine-owned
// time.Timer that signals a self-pipe — the non-linux fallback spec.md's
// Design Notes anticipate ("an equivalent implementation is a min-heap ...
// either works provided the invariants ... are preserved" applies equally
// to the timer-fd substrate itself on platforms lacking one).
type fallbackTimerFd struct {
	readFd, writeFd int
	resetCh         chan time.Duration
	stopCh          chan struct{}
}

func newPlatformTimerFd() (timerFD, error) {
	readFd, writeFd, err := newWakeupFds()
	if err != nil {
		return nil, err
	}
	t := &fallbackTimerFd{
		readFd:  readFd,
		writeFd: writeFd,
		resetCh: make(chan time.Duration, 1),
		stopCh:  make(chan struct{}),
	}
	go t.run()
	return t, nil
}

func (t *fallbackTimerFd) run() {
	timer := time.NewTimer(time.Hour)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case d := <-t.resetCh:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			if d > 0 {
				timer.Reset(d)
			}
		case <-timer.C:
			_ = writeWakeup(t.writeFd)
		case <-t.stopCh:
			timer.Stop()
			return
		}
	}
}

func (t *fallbackTimerFd) fd() int { return t.readFd }

func (t *fallbackTimerFd) reset(d time.Duration) error {
	select {
	case t.resetCh <- d:
	default:
		select {
		case <-t.resetCh:
		default:
		}
		t.resetCh <- d
	}
	return nil
}

func (t *fallbackTimerFd) drain() {
	_ = drainWakeup(t.readFd)
}

func (t *fallbackTimerFd) close() error {
	close(t.stopCh)
	return closeWakeup(t.readFd, t.writeFd)
}
