//go:build !linux && unix

package reactor

import (
	"golang.org/x/sys/unix"
)

// newWakeupFds falls back to a self-pipe on non-linux unix targets, the
// alternative spec.md §4.5 explicitly allows ("eventfd (or pipe fallback)").
// Writes to writeFd become readable bytes on readFd; unlike eventfd this
// doesn't coalesce, so drainWakeup reads in a loop until EAGAIN.
func newWakeupFds() (readFd, writeFd int, err error) {
	var fds [2]int
	if err := unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		return -1, -1, err
	}
	return fds[0], fds[1], nil
}

func writeWakeup(writeFd int) error {
	_, err := unix.Write(writeFd, []byte{1})
	return err
}

func drainWakeup(readFd int) error {
	var buf [64]byte
	for {
		n, err := unix.Read(readFd, buf[:])
		if err != nil || n == 0 {
			if err == unix.EAGAIN {
				return nil
			}
			return err
		}
		if n < len(buf) {
			return nil
		}
	}
}

func closeWakeup(readFd, writeFd int) error {
	_ = unix.Close(writeFd)
	return unix.Close(readFd)
}
