package base

import "time"

// Timestamp mirrors muduo's Timestamp: an instant suitable for ordering and
// formatting. Go's time.Time already carries a monotonic reading when
// obtained from time.Now, so no separate microsecond-epoch type is needed;
// this alias exists purely to keep call sites readable against spec.md's
// vocabulary (pollReturnTime, receiveTime, expiration).
type Timestamp = time.Time

// Now returns the current instant, monotonic-clock-backed.
func Now() Timestamp { return time.Now() }

// MicrosecondsSinceEpoch matches muduo's Timestamp::microSecondsSinceEpoch,
// used only for log formatting / tests that want a stable numeric handle.
func MicrosecondsSinceEpoch(t Timestamp) int64 {
	return t.UnixMicro()
}
