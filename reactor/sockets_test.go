package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestInetAddressFormatting(t *testing.T) {
	addr := NewInetAddress(8080, true)
	require.Equal(t, "127.0.0.1", addr.IP())
	require.Equal(t, 8080, addr.Port())
	require.Equal(t, "127.0.0.1:8080", addr.String())
}

func TestResolveInetAddressLoopback(t *testing.T) {
	addr, err := ResolveInetAddress("localhost", 9000)
	require.NoError(t, err)
	require.Equal(t, 9000, addr.Port())
	require.Equal(t, "127.0.0.1", addr.IP())
}

func TestSocketBindListenGetsocknameRoundTrip(t *testing.T) {
	fd := createNonblockingOrDie()
	defer closeFd(fd)
	setReuseAddr(fd, true)
	bindOrDie(fd, NewInetAddress(0, true))
	listenOrDie(fd)

	bound, err := getLocalAddr(fd)
	require.NoError(t, err)
	require.NotZero(t, bound.Port())
}
