//go:build linux

package reactor

import (
	"encoding/binary"

	"golang.org/x/sys/unix"
)

// newWakeupFds creates the cross-thread notification edge as a genuine
// eventfd, per spec.md §4.5 and muduo's EventLoop::createEventfd. Both
// returned fds are the same descriptor: eventfd is read/write symmetric.
func newWakeupFds() (readFd, writeFd int, err error) {
	fd, err := unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return -1, -1, err
	}
	return fd, fd, nil
}

func writeWakeup(fd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(fd, buf[:])
	return err
}

func drainWakeup(fd int) error {
	var buf [8]byte
	_, err := unix.Read(fd, buf[:])
	return err
}

func closeWakeup(readFd, writeFd int) error {
	return unix.Close(readFd)
}
