package orders

import (
	"sync"

	"github.com/hms/hms/internal/domain/encounter"
)

// summaryCache memoizes requisition counts for the three dimensions
// summary widgets key on: everything, one encounter, one kind. A submit
// invalidates all three keys it touches so each widget refetches
// independently.
type summaryCache struct {
	mu     sync.Mutex
	counts map[string]int
}

func newSummaryCache() *summaryCache {
	return &summaryCache{counts: make(map[string]int)}
}

const allKey = "all"

func encounterKey(ref encounter.Ref) string {
	return "enc:" + string(ref.Kind) + "/" + ref.ObjectID.String()
}

func kindKey(k Kind) string {
	return "kind:" + string(k)
}

func (c *summaryCache) get(key string) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	n, ok := c.counts[key]
	return n, ok
}

func (c *summaryCache) set(key string, n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.counts[key] = n
}

func (c *summaryCache) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		delete(c.counts, k)
	}
}
