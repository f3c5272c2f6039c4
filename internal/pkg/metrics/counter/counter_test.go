package counter

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCounters_AddAndSnapshot(t *testing.T) {
	c := New()
	c.Inc(WebhooksApplied)
	c.Add(OrdersCreated, 5)
	c.Inc(WebhooksApplied)

	assert.Equal(t, int64(2), c.Get(WebhooksApplied))
	assert.Equal(t, int64(5), c.Get(OrdersCreated))
	assert.Equal(t, int64(0), c.Get(CouponsRedeemed))
	assert.Equal(t, []string{OrdersCreated, WebhooksApplied}, c.Names())

	snap := c.Snapshot()
	snap[WebhooksApplied] = 100
	assert.Equal(t, int64(2), c.Get(WebhooksApplied))
}

func TestCounters_Concurrent(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				c.Inc(GenerationsSucceeded)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int64(1000), c.Get(GenerationsSucceeded))
}

func TestCounters_NilIsNoop(t *testing.T) {
	var c *Counters
	c.Inc(WebhooksApplied)
	assert.Equal(t, int64(0), c.Get(WebhooksApplied))
	assert.Empty(t, c.Snapshot())
}
