package reactor

import (
	"encoding/binary"
	"errors"

	"golang.org/x/sys/unix"
)

// Buffer is muduo's prependable/readable/writable byte ring, minus the
// ring: a flat slice with two cursors. No Buffer.h/.cc made it into the
// retrieval pack, so this is built from spec.md §6's description of the
// contract (prepend space for length-prefixing, readFd doing a single
// readv into an on-stack extra buffer to avoid over-allocating session
// memory) rather than a ported file.
type Buffer struct {
	buf        []byte
	readIndex  int
	writeIndex int
}

const (
	bufferCheapPrepend = 8
	bufferInitialSize  = 1024
)

func NewBuffer() *Buffer {
	return NewBufferSize(bufferInitialSize)
}

// NewBufferSize constructs a Buffer whose initial writable region holds at
// least initialSize bytes, for callers that know their connections run
// larger-than-default messages (TcpServer's WithReadBufferSize option).
func NewBufferSize(initialSize int) *Buffer {
	if initialSize <= 0 {
		initialSize = bufferInitialSize
	}
	return &Buffer{
		buf:        make([]byte, bufferCheapPrepend+initialSize),
		readIndex:  bufferCheapPrepend,
		writeIndex: bufferCheapPrepend,
	}
}

func (b *Buffer) ReadableBytes() int  { return b.writeIndex - b.readIndex }
func (b *Buffer) WritableBytes() int  { return len(b.buf) - b.writeIndex }
func (b *Buffer) PrependableBytes() int { return b.readIndex }

// Peek returns the readable region without consuming it.
func (b *Buffer) Peek() []byte { return b.buf[b.readIndex:b.writeIndex] }

// Retrieve consumes n bytes from the front of the readable region.
func (b *Buffer) Retrieve(n int) {
	if n < b.ReadableBytes() {
		b.readIndex += n
		return
	}
	b.RetrieveAll()
}

func (b *Buffer) RetrieveAll() {
	b.readIndex = bufferCheapPrepend
	b.writeIndex = bufferCheapPrepend
}

// RetrieveAllString drains the whole readable region as a string, the
// common case for a line- or message-oriented protocol handler.
func (b *Buffer) RetrieveAllString() string {
	s := string(b.Peek())
	b.RetrieveAll()
	return s
}

// RetrieveString drains exactly n bytes as a string.
func (b *Buffer) RetrieveString(n int) string {
	s := string(b.buf[b.readIndex : b.readIndex+n])
	b.Retrieve(n)
	return s
}

func (b *Buffer) Append(data []byte) {
	b.ensureWritable(len(data))
	b.writeIndex += copy(b.buf[b.writeIndex:], data)
}

func (b *Buffer) AppendString(s string) { b.Append([]byte(s)) }

// Prepend writes data just before the readable region, used for
// length-prefixing a message after its body is already known.
func (b *Buffer) Prepend(data []byte) {
	if len(data) > b.readIndex {
		panic("Buffer.Prepend: not enough prependable space")
	}
	b.readIndex -= len(data)
	copy(b.buf[b.readIndex:], data)
}

// PrependInt32 prepends a big-endian length header, the common framing
// idiom a protocol built atop TcpConnection reaches for.
func (b *Buffer) PrependInt32(n int32) {
	var tmp [4]byte
	binary.BigEndian.PutUint32(tmp[:], uint32(n))
	b.Prepend(tmp[:])
}

func (b *Buffer) ensureWritable(n int) {
	if b.WritableBytes() >= n {
		return
	}
	if b.WritableBytes()+b.PrependableBytes()-bufferCheapPrepend >= n {
		// Enough total space once we compact: slide the readable region
		// down to the cheap-prepend boundary instead of growing.
		readable := b.ReadableBytes()
		copy(b.buf[bufferCheapPrepend:], b.buf[b.readIndex:b.writeIndex])
		b.readIndex = bufferCheapPrepend
		b.writeIndex = b.readIndex + readable
		return
	}
	needed := b.writeIndex + n
	grown := make([]byte, needed*2)
	copy(grown, b.buf)
	b.buf = grown
}

// readFd fills the buffer directly from fd in one syscall, spilling any
// overflow into a 64KiB stack buffer so a single read never forces a huge grow when
// only a little of it is real application data — muduo's
// Buffer::readFd extra-buffer trick, realized with readv via unix.Readv.
func (b *Buffer) readFd(fd int) (int, error) {
	var extra [65536]byte
	writable := b.WritableBytes()

	n, err := unix.Readv(fd, [][]byte{b.buf[b.writeIndex:], extra[:]})
	if err != nil {
		return -1, err
	}
	if int(n) <= writable {
		b.writeIndex += int(n)
	} else {
		b.writeIndex = len(b.buf)
		b.Append(extra[:int(n)-writable])
	}
	return int(n), err
}

var errShortWrite = errors.New("reactor: short write")
