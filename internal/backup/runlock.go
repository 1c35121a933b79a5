package backup

import (
	"sync"
	"time"
)

// runLock is the single mutual-exclusion token guarding backup runs.
// Requests that find it held collapse into the in-flight run; they are
// never queued. A lock held past the stuck threshold is forcibly cleared
// so an abnormal prior run cannot wedge the engine forever.
type runLock struct {
	mu        sync.Mutex
	running   bool
	heldSince time.Time
	owner     uint64
}

// TryAcquire attempts to take the lock. It returns an owner token for the
// acquisition, whether acquisition succeeded and whether a stuck lock had
// to be cleared first. Only the matching token can release the lock, so a
// displaced holder that wakes up late cannot free it out from under the
// run that took over.
func (l *runLock) TryAcquire(now time.Time, stuckAfter time.Duration) (token uint64, acquired, wasStuck bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.running {
		if stuckAfter <= 0 || now.Sub(l.heldSince) < stuckAfter {
			return 0, false, false
		}
		// Held past the plausible maximum run duration: force-release
		// and let this attempt proceed.
		wasStuck = true
	}

	l.owner++
	l.running = true
	l.heldSince = now
	return l.owner, true, wasStuck
}

// Release returns the lock to idle if token still owns it. A release from
// a displaced holder is a no-op.
func (l *runLock) Release(token uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.running || token != l.owner {
		return
	}
	l.running = false
	l.heldSince = time.Time{}
}

// State reports the current lock state
func (l *runLock) State() (running bool, heldSince time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.running, l.heldSince
}
