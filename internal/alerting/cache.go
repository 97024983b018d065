package alerting

import (
	"sort"
	"sync/atomic"
)

// RulesCache holds the active-rules snapshot used on the hot path.
// Snapshots are immutable once published; callers must not modify them.
type RulesCache struct {
	snapshot atomic.Pointer[[]Rule]
}

// NewRulesCache returns an empty cache.
func NewRulesCache() *RulesCache {
	c := &RulesCache{}
	empty := []Rule{}
	c.snapshot.Store(&empty)
	return c
}

// Get returns the current snapshot without blocking.
func (c *RulesCache) Get() []Rule {
	return *c.snapshot.Load()
}

// Replace publishes the enabled subset of rules ordered by creation time.
func (c *RulesCache) Replace(rules []Rule) {
	active := make([]Rule, 0, len(rules))
	for _, r := range rules {
		if r.Enabled {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		return active[i].CreatedAt.Before(active[j].CreatedAt)
	})
	c.snapshot.Store(&active)
}

// Len reports the number of rules in the current snapshot.
func (c *RulesCache) Len() int {
	return len(c.Get())
}
