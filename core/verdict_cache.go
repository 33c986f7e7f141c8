package core

import "sync"

// VerdictCache is the in-memory sid → Verdict map with consume-on-read
// semantics for terminal entries. A plain mutex-guarded map is
// used rather than sync.Map: consume-on-read is a compound
// check-then-delete-then-return that needs one critical section.
type VerdictCache struct {
	mu      sync.Mutex
	entries map[int64]Verdict
}

func NewVerdictCache() *VerdictCache {
	return &VerdictCache{entries: make(map[int64]Verdict)}
}

// Publish overwrites the entry for sid. Called on every state
// transition (Queued → Done/Error).
func (c *VerdictCache) Publish(sid int64, v Verdict) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[sid] = v
}

// Get performs a consume-on-read: the first successful read of a
// terminal (Done/Error) verdict removes the entry. Queued reads do not
// consume. The second bool reports whether an entry was found at all.
func (c *VerdictCache) Get(sid int64) (Verdict, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.entries[sid]
	if !ok {
		return Verdict{}, false
	}
	if v.Status != VerdictQueued {
		delete(c.entries, sid)
	}
	return v, true
}

// Clear wipes all entries (used by the reset flow).
func (c *VerdictCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[int64]Verdict)
}
