package counter

import (
	"sort"
	"sync"
)

// Counter names recorded by the HTTP layer.
const (
	GenerationsSucceeded = "generations_succeeded"
	GenerationsFailed    = "generations_failed"
	GenerationsRejected  = "generations_rejected"
	WebhooksApplied      = "webhooks_applied"
	WebhooksDuplicate    = "webhooks_duplicate"
	WebhooksRejected     = "webhooks_rejected"
	CouponsRedeemed      = "coupons_redeemed"
	PrintDataTriggered   = "print_data_triggered"
	OrdersCreated        = "orders_created"
)

// Counters is a set of monotonically increasing named counters.
type Counters struct {
	mu     sync.Mutex
	values map[string]int64
}

func New() *Counters {
	return &Counters{values: make(map[string]int64)}
}

// Add increments name by delta. A nil receiver is a no-op.
func (c *Counters) Add(name string, delta int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.values[name] += delta
	c.mu.Unlock()
}

// Inc increments name by one.
func (c *Counters) Inc(name string) {
	c.Add(name, 1)
}

// Get returns the current value of name.
func (c *Counters) Get(name string) int64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[name]
}

// Snapshot returns a copy of all counters.
func (c *Counters) Snapshot() map[string]int64 {
	out := make(map[string]int64)
	if c == nil {
		return out
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, v := range c.values {
		out[k] = v
	}
	return out
}

// Names returns the recorded counter names in sorted order.
func (c *Counters) Names() []string {
	snap := c.Snapshot()
	names := make([]string, 0, len(snap))
	for k := range snap {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}
