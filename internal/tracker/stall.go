package tracker

import (
	"sync"
	"time"
)

// stallDetector watches the sequence of progress values and raises an
// advisory stalled flag when no increase has been observed for longer than
// the threshold. The flag never halts polling; the remote pipeline can
// legitimately sit on one progress value through model retries, and the
// detector only distinguishes slow from stuck.
type stallDetector struct {
	threshold time.Duration
	now       func() time.Time

	mu          sync.Mutex
	lastValue   int
	lastAdvance time.Time
	stalled     bool
	dismissed   bool
}

func newStallDetector(threshold time.Duration, now func() time.Time) *stallDetector {
	if now == nil {
		now = time.Now
	}
	return &stallDetector{
		threshold:   threshold,
		now:         now,
		lastValue:   -1,
		lastAdvance: now(),
	}
}

// Observe feeds one poll cycle's progress value and returns the current
// stalled state. Any increase clears the flag and resets the quiet timer;
// otherwise the flag raises once the quiet period exceeds the threshold.
// A dismissed flag stays down until the next increase resets the detector.
func (d *stallDetector) Observe(current int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if current > d.lastValue {
		d.lastValue = current
		d.lastAdvance = d.now()
		d.stalled = false
		d.dismissed = false
		return false
	}
	if d.threshold > 0 && !d.dismissed && d.now().Sub(d.lastAdvance) > d.threshold {
		d.stalled = true
	}
	return d.stalled
}

// Quiet returns how long progress has been flat.
func (d *stallDetector) Quiet() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now().Sub(d.lastAdvance)
}

// Dismiss lowers the flag at the user's request. It stays down until the
// detector sees progress advance again.
func (d *stallDetector) Dismiss() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stalled = false
	d.dismissed = true
}

// Stalled reports the advisory flag without feeding a new observation.
func (d *stallDetector) Stalled() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stalled
}
