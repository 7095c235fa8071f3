// Package throttle slows down password guessing against POST /auth/login.
//
// Failures are counted per client address in process memory. After Threshold
// consecutive failures the address is locked out until Lockout has passed since
// the last failure. Nothing is persisted; a restart clears every record.
package throttle

import (
	"fmt"
	"sync"
	"time"
)

// State of a single client key.
type State int

const (
	// Clear means no record exists.
	Clear State = iota
	// Warming means at least one failure is recorded, below the threshold.
	Warming
	// Locked means the threshold was reached; Check rejects until the window elapses.
	Locked
)

func (s State) String() string {
	switch s {
	case Clear:
		return "clear"
	case Warming:
		return "warming"
	case Locked:
		return "locked"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Defaults for NewThrottle.
const (
	DefaultThreshold = 5
	DefaultLockout   = 5 * time.Minute
)

// StaleAfter is how long an idle Warming record is kept before Sweep drops it.
const StaleAfter = 24 * time.Hour

// record is one client's failure history. count >= 1 while it exists.
type record struct {
	count int
	last  time.Time
}

// Attempts is the shared failure table. Create one at startup and hand it to
// NewThrottle; every method is safe for concurrent use.
type Attempts struct {
	mu      sync.Mutex
	records map[string]*record
}

// NewAttempts returns an empty table.
func NewAttempts() *Attempts {
	return &Attempts{records: make(map[string]*record)}
}

// Len reports how many keys currently have a record.
func (a *Attempts) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.records)
}

// LockedError is returned by Check while a key is locked out.
type LockedError struct {
	RetryAfter time.Duration
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("too many login attempts, try again in %d minutes", e.Minutes())
}

// Minutes rounds RetryAfter up to whole minutes, as shown to clients.
func (e *LockedError) Minutes() int {
	ms := e.RetryAfter.Milliseconds()
	return int((ms + 59999) / 60000)
}

// Throttle applies a threshold and lockout policy to an Attempts table.
type Throttle struct {
	attempts  *Attempts
	threshold int
	lockout   time.Duration
	now       func() time.Time
}

// NewThrottle wires policy onto attempts. threshold and lockout must be positive.
func NewThrottle(attempts *Attempts, threshold int, lockout time.Duration) *Throttle {
	return &Throttle{
		attempts:  attempts,
		threshold: threshold,
		lockout:   lockout,
		now:       time.Now,
	}
}

// Threshold is the failure count at which a key locks.
func (t *Throttle) Threshold() int { return t.threshold }

// WithClock swaps the time source. Tests only.
func (t *Throttle) WithClock(now func() time.Time) *Throttle {
	t.now = now
	return t
}

// Check gates one login attempt for key.
// Returns *LockedError while locked. A lock whose window has elapsed is evicted
// so the attempt is evaluated from a clean slate.
func (t *Throttle) Check(key string) error {
	a := t.attempts
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[key]
	if !ok || rec.count < t.threshold {
		return nil
	}

	elapsed := t.now().Sub(rec.last)
	if elapsed < t.lockout {
		return &LockedError{RetryAfter: t.lockout - elapsed}
	}
	delete(a.records, key)
	return nil
}

// Fail records a failed credential check for key and returns the new count.
func (t *Throttle) Fail(key string) int {
	a := t.attempts
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[key]
	if !ok {
		rec = &record{}
		a.records[key] = rec
	}
	rec.count++
	rec.last = t.now()
	return rec.count
}

// Succeed clears key after a successful login.
func (t *Throttle) Succeed(key string) {
	a := t.attempts
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.records, key)
}

// State reports where key sits in the Clear -> Warming -> Locked progression.
// A lock past its window still reads Locked until Check or Sweep evicts it.
func (t *Throttle) State(key string) State {
	a := t.attempts
	a.mu.Lock()
	defer a.mu.Unlock()

	rec, ok := a.records[key]
	switch {
	case !ok:
		return Clear
	case rec.count >= t.threshold:
		return Locked
	default:
		return Warming
	}
}

// Sweep evicts expired locks and Warming records idle longer than StaleAfter.
// Returns the number of records removed.
func (t *Throttle) Sweep(now time.Time) int {
	a := t.attempts
	a.mu.Lock()
	defer a.mu.Unlock()

	removed := 0
	for key, rec := range a.records {
		idle := now.Sub(rec.last)
		if (rec.count >= t.threshold && idle >= t.lockout) || idle >= StaleAfter {
			delete(a.records, key)
			removed++
		}
	}
	return removed
}
