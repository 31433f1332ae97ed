package reactor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestChannelTieSkipsDeadGuard verifies Channel's weak-reference emulation
// (spec.md Design Notes §9): once the tie closure reports not-alive, no
// further callback fires for that channel.
func TestChannelTieSkipsDeadGuard(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	readFd, writeFd, err := newWakeupFds()
	require.NoError(t, err)
	defer closeWakeup(readFd, writeFd)

	ch := newChannel(loop, readFd)
	fired := 0
	ch.SetReadCallback(func(time.Time) { fired++ })

	alive := true
	ch.Tie(func() (any, bool) { return ch, alive })

	ch.SetRevents(RevIn)
	ch.HandleEvent(time.Now())
	require.Equal(t, 1, fired)

	alive = false
	ch.HandleEvent(time.Now())
	require.Equal(t, 1, fired, "dead guard must suppress dispatch")
}

// TestChannelHupWithoutReadReadyClosesOnce verifies dispatch ordering
// invariant: RevHup without RevIn triggers close and nothing else.
func TestChannelHupWithoutReadReadyClosesOnce(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	readFd, writeFd, err := newWakeupFds()
	require.NoError(t, err)
	defer closeWakeup(readFd, writeFd)

	ch := newChannel(loop, readFd)
	var closed, read int
	ch.SetCloseCallback(func() { closed++ })
	ch.SetReadCallback(func(time.Time) { read++ })
	ch.DoNotLogHup()

	ch.SetRevents(RevHup)
	ch.HandleEvent(time.Now())

	require.Equal(t, 1, closed)
	require.Equal(t, 0, read)
}

func TestChannelEnableDisableWriting(t *testing.T) {
	loop := NewEventLoop()
	defer loop.Close()

	readFd, writeFd, err := newWakeupFds()
	require.NoError(t, err)
	defer closeWakeup(readFd, writeFd)

	ch := newChannel(loop, readFd)
	require.False(t, ch.IsWriting())
	ch.EnableWriting()
	require.True(t, ch.IsWriting())
	ch.DisableWriting()
	require.False(t, ch.IsWriting())
}
