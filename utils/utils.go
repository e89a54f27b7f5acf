package utils

import (
	"context"
	"fmt"
	"time"

	"github.com/c2h5oh/datasize"
)

// DefaultPreviewSize is the number of bytes DisplayASCII shows by default
const DefaultPreviewSize = 32

// SleepContext sleeps for given duration. If the context closes in the
// meantime, it returns immediately with a context.Canceled error.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return context.Canceled
	case <-t.C:
		return nil
	}
}

// DisplayASCII represents a payload as ascii if it only contains safe ascii
// characters. Unsafe characters are replaced by '.' and a hex representation
// is added to the output. At most max bytes are shown, longer payloads get
// a "..." suffix.
func DisplayASCII(b []byte, max int) string {
	truncated := false
	if max > 0 && len(b) > max {
		b = b[:max]
		truncated = true
	}
	ret := make([]byte, len(b))
	unsafe := false
	for i, ch := range b {
		if ch < 32 || ch > 126 {
			ret[i] = '.'
			unsafe = true
		} else {
			ret[i] = ch
		}
	}
	var suffix string
	if truncated {
		suffix = "..."
	}
	if unsafe || len(b) <= 8 {
		return fmt.Sprintf("%s%s [% 0x]", string(ret), suffix, b)
	}
	return string(ret) + suffix
}

// TimeDiff returns the difference between two times, rounded to milliseconds.
func TimeDiff(t1, t0 time.Time) time.Duration {
	return t1.Sub(t0).Round(time.Millisecond)
}

// Throughput returns a human readable rate, like "12.3 MB/s"
func Throughput(size datasize.ByteSize, d time.Duration) string {
	if d <= 0 {
		return "n/a"
	}
	perSecond := datasize.ByteSize(float64(size) / d.Seconds())
	return perSecond.HR() + "/s"
}

// PerSecond returns a count per second, or 0 when d is not positive
func PerSecond(n int64, d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(n) / d.Seconds()
}
