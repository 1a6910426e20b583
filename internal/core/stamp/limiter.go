package stamp

import (
	"sync"
	"time"
)

// warnKey groups drop warnings by outer source address and buffer stage.
type warnKey struct {
	src   [4]byte
	stage string
}

// warnLimiter caps drop warnings per key within a fixed window. Warnings
// over the cap are counted; the count is handed back once, to the first
// caller of the next window, so the log still says how much was hidden.
type warnLimiter struct {
	mu      sync.Mutex
	counts  map[warnKey]int
	start   time.Time
	window  time.Duration
	max     int
	pending int64 // swallowed in the current window
	total   int64
}

// newWarnLimiter returns nil when max <= 0; a nil limiter allows everything.
func newWarnLimiter(max int, window time.Duration) *warnLimiter {
	if max <= 0 {
		return nil
	}
	if window <= 0 {
		window = 10 * time.Second
	}
	return &warnLimiter{
		counts: make(map[warnKey]int),
		start:  time.Now(),
		window: window,
		max:    max,
	}
}

// Allow reports whether a warning for k may be logged at now. swallowed is
// non-zero only for the first call of a window that follows a window in
// which warnings were dropped.
func (l *warnLimiter) Allow(k warnKey, now time.Time) (ok bool, swallowed int64) {
	if l == nil {
		return true, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.start) >= l.window {
		clear(l.counts)
		l.start = now
		swallowed, l.pending = l.pending, 0
	}
	l.counts[k]++
	if l.counts[k] > l.max {
		l.pending++
		l.total++
		return false, swallowed
	}
	return true, swallowed
}

// Suppressed returns how many warnings were not logged since creation.
func (l *warnLimiter) Suppressed() int64 {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}
