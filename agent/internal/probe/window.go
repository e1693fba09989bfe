package probe

import "sync"

// window counts matcher hits inside a tumbling interval. The counter
// is zeroed only at window boundaries by the period timer; crossing
// the threshold does not reset or disarm it, so every further match
// within the same window fires again with a strictly larger count.
// Downstream correlation depends on that monotonicity.
type window struct {
	mu        sync.Mutex
	count     int
	threshold int
}

func newWindow(threshold int) *window {
	return &window{threshold: threshold}
}

// hit records one matching unit and reports whether an event should
// fire, along with the counter value the event carries.
func (w *window) hit() (fire bool, count int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.count++
	return w.count >= w.threshold, w.count
}

// reset zeroes the counter at a window boundary.
func (w *window) reset() {
	w.mu.Lock()
	w.count = 0
	w.mu.Unlock()
}
