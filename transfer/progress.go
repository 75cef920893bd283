package transfer

import "time"

// DefaultProgressInterval is the throttle callers usually want for
// user-facing progress output.
const DefaultProgressInterval = 500 * time.Millisecond

// ProgressFunc receives the running byte count after every completed part.
// The engines call it unthrottled; callers that update a UI should wrap it
// with Throttle.
type ProgressFunc func(transferred, total int64)

// Throttle forwards at most one call per interval. The terminal call, where
// transferred equals total, is always forwarded so a consumer never misses
// the 100% notification. The returned function is not safe for concurrent
// use; the engines invoke progress from the orchestrating goroutine only.
func Throttle(fn ProgressFunc, interval time.Duration) ProgressFunc {
	if fn == nil {
		return nil
	}
	var last time.Time
	return func(transferred, total int64) {
		now := time.Now()
		if transferred != total && now.Sub(last) < interval {
			return
		}
		last = now
		fn(transferred, total)
	}
}
