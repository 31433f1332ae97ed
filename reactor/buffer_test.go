package reactor

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestBufferAppendRetrieve(t *testing.T) {
	b := NewBuffer()
	require.Equal(t, 0, b.ReadableBytes())

	b.AppendString("hello")
	require.Equal(t, 5, b.ReadableBytes())
	require.Equal(t, "hello", string(b.Peek()))

	require.Equal(t, "hel", b.RetrieveString(3))
	require.Equal(t, 2, b.ReadableBytes())
	require.Equal(t, "lo", b.RetrieveAllString())
	require.Equal(t, 0, b.ReadableBytes())
}

func TestBufferGrowsPastInitialCapacity(t *testing.T) {
	b := NewBuffer()
	big := make([]byte, bufferInitialSize*3)
	for i := range big {
		big[i] = byte(i)
	}
	b.Append(big)
	require.Equal(t, len(big), b.ReadableBytes())
	require.Equal(t, big, b.Peek())
}

func TestBufferPrependInt32(t *testing.T) {
	b := NewBuffer()
	b.AppendString("payload")
	b.PrependInt32(int32(len("payload")))
	require.Equal(t, len("payload")+4, b.ReadableBytes())
}

func TestBufferCompactsBeforeGrowing(t *testing.T) {
	b := NewBuffer()
	// Fill the buffer completely, then retrieve almost all of it: writable
	// space is now zero, but the freed-up prependable space is ample, so
	// the next append must compact in place rather than reallocate.
	b.Append(make([]byte, bufferInitialSize))
	require.Equal(t, 0, b.WritableBytes())
	b.Retrieve(bufferInitialSize - 4)
	require.Equal(t, 4, b.ReadableBytes())

	before := &b.buf[0]
	b.AppendString("more")
	after := &b.buf[0]
	require.Equal(t, before, after, "expected in-place compaction, not a reallocation")
	require.Equal(t, 8, b.ReadableBytes())
}
