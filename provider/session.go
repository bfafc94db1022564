package provider

import "sync/atomic"

// sessionCell is the write-once slot holding the session id the agent
// assigned on the first observed initialization event. The compare-and-set
// makes first-write-wins race-safe under concurrent first calls; note that
// when two independent conversations race on a fresh instance, the
// second session id is silently dropped. Callers needing deterministic
// session pinning must serialize the first call per instance.
type sessionCell struct {
	v atomic.Pointer[string]
}

// Set records the id if the cell is still empty. It reports whether this
// call was the winning first write.
func (c *sessionCell) Set(id string) bool {
	if id == "" {
		return false
	}
	return c.v.CompareAndSwap(nil, &id)
}

// Get returns the remembered session id, or "" when none was recorded.
func (c *sessionCell) Get() string {
	p := c.v.Load()
	if p == nil {
		return ""
	}
	return *p
}
