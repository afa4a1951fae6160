// Package logutil bounds how fast diagnostic lines reach the log output.
package logutil

import (
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// ThrottledWriter passes whole log lines through a token bucket. Lines over
// budget are dropped and counted; the next line that gets through is
// preceded by a summary of how many were lost.
type ThrottledWriter struct {
	out io.Writer
	lim *rate.Limiter
	now func() time.Time

	mu      sync.Mutex
	pending uint64
	dropped atomic.Uint64
}

// NewThrottledWriter allows perSec lines per second with a burst of the same
// size. perSec <= 0 disables throttling.
func NewThrottledWriter(out io.Writer, perSec int) *ThrottledWriter {
	w := &ThrottledWriter{out: out, now: time.Now}
	if perSec > 0 {
		w.lim = rate.NewLimiter(rate.Limit(perSec), perSec)
	}
	return w
}

func (w *ThrottledWriter) Write(p []byte) (int, error) {
	if w.lim == nil {
		return w.out.Write(p)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if !w.lim.AllowN(w.now(), 1) {
		w.pending++
		w.dropped.Add(1)
		return len(p), nil
	}
	if w.pending > 0 {
		if _, err := fmt.Fprintf(w.out, "level=warn kind=log_throttled dropped=%d\n", w.pending); err != nil {
			return 0, err
		}
		w.pending = 0
	}
	return w.out.Write(p)
}

// Dropped returns the total number of suppressed lines.
func (w *ThrottledWriter) Dropped() uint64 {
	return w.dropped.Load()
}
