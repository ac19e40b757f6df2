package teamgames

import (
	"math"
	"sync"
	"time"
)

// CooldownDecision is the result of a claim attempt against the cooldown gate.
type CooldownDecision struct {
	Allowed bool
	// Remaining is the whole number of seconds left in the window when the claim is denied.
	Remaining int
}

// CooldownTracker remembers the last allowed claim per player.
type CooldownTracker struct {
	sync.Mutex
	window     time.Duration
	retention  time.Duration
	lastClaims map[string]time.Time
}

// NewCooldownTracker creates a tracker with the given window. Entries idle for longer than
// window*retentionMultiple are dropped by Sweep.
func NewCooldownTracker(window time.Duration, retentionMultiple int) *CooldownTracker {
	if retentionMultiple < 1 {
		retentionMultiple = 1
	}
	return &CooldownTracker{
		window:     window,
		retention:  window * time.Duration(retentionMultiple),
		lastClaims: make(map[string]time.Time),
	}
}

// Window returns the configured cooldown window.
func (t *CooldownTracker) Window() time.Duration {
	return t.window
}

// TryAcquire records a claim for playerID at now if the window has elapsed. A denied claim
// leaves the recorded time untouched.
func (t *CooldownTracker) TryAcquire(playerID string, now time.Time) CooldownDecision {
	t.Lock()
	defer t.Unlock()

	if last, found := t.lastClaims[playerID]; found {
		elapsed := now.Sub(last)
		if elapsed < t.window {
			remaining := int(math.Ceil((t.window - elapsed).Seconds()))
			return CooldownDecision{Allowed: false, Remaining: remaining}
		}
	}

	t.lastClaims[playerID] = now
	return CooldownDecision{Allowed: true}
}

// LastClaim returns the recorded claim time for playerID.
func (t *CooldownTracker) LastClaim(playerID string) (time.Time, bool) {
	t.Lock()
	defer t.Unlock()
	last, found := t.lastClaims[playerID]
	return last, found
}

// Sweep removes entries older than the retention and returns how many were removed.
func (t *CooldownTracker) Sweep(now time.Time) int {
	t.Lock()
	defer t.Unlock()

	removed := 0
	for playerID, last := range t.lastClaims {
		if now.Sub(last) > t.retention {
			delete(t.lastClaims, playerID)
			removed++
		}
	}
	return removed
}

// Len returns the number of tracked players.
func (t *CooldownTracker) Len() int {
	t.Lock()
	defer t.Unlock()
	return len(t.lastClaims)
}
