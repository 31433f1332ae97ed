//go:build linux

package reactor

import (
	"time"

	"golang.org/x/sys/unix"
)

// linuxTimerFd wraps CLOCK_MONOTONIC timerfd, the literal kernel object
// spec.md §3/§4.3 describes ("Monotonic timer-fd driven ordered set").
type linuxTimerFd struct {
	timerFd int
}

func newPlatformTimerFd() (timerFD, error) {
	fd, err := unix.TimerfdCreate(unix.CLOCK_MONOTONIC, unix.TFD_NONBLOCK|unix.TFD_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &linuxTimerFd{timerFd: fd}, nil
}

func (t *linuxTimerFd) fd() int { return t.timerFd }

// reset reprograms the timer to fire d from now; d <= 0 disarms it.
func (t *linuxTimerFd) reset(d time.Duration) error {
	if d < 0 {
		d = 0
	}
	spec := unix.ItimerSpec{
		Value: unix.NsecToTimespec(d.Nanoseconds()),
	}
	return unix.TimerfdSettime(t.timerFd, 0, &spec, nil)
}

func (t *linuxTimerFd) drain() {
	var buf [8]byte
	_, _ = unix.Read(t.timerFd, buf[:])
}

func (t *linuxTimerFd) close() error {
	return unix.Close(t.timerFd)
}
