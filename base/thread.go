package base

import (
	"bytes"
	"runtime"
	"strconv"
)

// GoID returns the calling goroutine's numeric id, parsed out of the
// runtime's own stack dump header ("goroutine 123 [running]: ..."). The Go
// runtime intentionally exposes no public API for this; parsing the stack
// trace is the standard, if slightly unloved, workaround used by debugging
// and leak-detection tooling that needs a stable per-goroutine handle.
//
// This stands in for muduo's base/CurrentThread.h, which caches a cached
// gettid() per OS thread for the same purpose: letting EventLoop assert
// that loop-thread-only methods are never called from the wrong caller.
// EventLoop calls it on every affinity check (RunInLoop, QueueInLoop, Quit,
// and assertions while the loop runs), including from dispatched callbacks.
func GoID() uint64 {
	buf := make([]byte, 64)
	n := runtime.Stack(buf, false)
	buf = buf[:n]

	const prefix = "goroutine "
	buf = bytes.TrimPrefix(buf, []byte(prefix))
	if idx := bytes.IndexByte(buf, ' '); idx >= 0 {
		buf = buf[:idx]
	}
	id, err := strconv.ParseUint(string(buf), 10, 64)
	if err != nil {
		// Should be unreachable; the runtime's format is stable across Go
		// versions. Return 0 rather than panicking from an assertion helper.
		return 0
	}
	return id
}
