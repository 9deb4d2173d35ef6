package notify

import "sync"

// Deduper tracks which activity ids are currently live so a ride's start
// notification is processed at most once. Check-then-insert is a single
// atomic operation under the mutex: of any number of concurrent starts for
// the same id, exactly one wins.
type Deduper struct {
	mu   sync.Mutex
	live map[string]struct{}
}

// NewDeduper returns an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{live: make(map[string]struct{})}
}

// TryStart marks activityID as live. It returns false if the id was already
// live, in which case the caller must reject the start as a duplicate.
func (d *Deduper) TryStart(activityID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.live[activityID]; exists {
		return false
	}
	d.live[activityID] = struct{}{}
	return true
}

// End removes activityID unconditionally; ending an unknown id is a no-op.
func (d *Deduper) End(activityID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.live, activityID)
}

// Live reports whether activityID is currently tracked as live.
func (d *Deduper) Live(activityID string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, exists := d.live[activityID]
	return exists
}
