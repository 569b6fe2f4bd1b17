package session

import (
	"sort"
	"sync"

	"github.com/linkproofhq/linkproof/pkg/types"
)

// Collector is the append-only run-result store shared by session workers.
// It is the only concurrently mutated state in a session; results are
// re-ordered by run index on read so parallel completion order never leaks
// into the report.
type Collector struct {
	mu      sync.Mutex
	results []types.RunResult
}

func NewCollector(capacity int) *Collector {
	if capacity < 1 {
		capacity = 1
	}
	return &Collector{results: make([]types.RunResult, 0, capacity)}
}

// Put appends a completed run-iteration's result.
func (c *Collector) Put(result types.RunResult) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Len reports how many run-iterations have completed.
func (c *Collector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.results)
}

// Ordered returns a copy of the collected results sorted by run index.
func (c *Collector) Ordered() []types.RunResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]types.RunResult, len(c.results))
	copy(out, c.results)
	sort.Slice(out, func(i, j int) bool { return out[i].Run < out[j].Run })
	return out
}
