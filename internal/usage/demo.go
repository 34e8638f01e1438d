// ABOUTME: Demo usage counting: idempotent per request id and adapted for conversation controllers
// ABOUTME: Counts only answered turns; the used count never decreases

package usage

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/2389/chatdesk/internal/dedupe"
	"github.com/2389/chatdesk/internal/store"
	"github.com/2389/chatdesk/internal/widget"
)

// DemoUsage increments demo counters.
type DemoUsage struct {
	store  store.WidgetStore
	cache  *dedupe.Cache[int]
	logger *slog.Logger
}

// NewDemoUsage creates a DemoUsage. cache may be nil, which disables replay.
func NewDemoUsage(st store.WidgetStore, cache *dedupe.Cache[int], logger *slog.Logger) *DemoUsage {
	if logger == nil {
		logger = slog.Default()
	}
	return &DemoUsage{
		store:  st,
		cache:  cache,
		logger: logger.With("component", "demo_usage"),
	}
}

// Increment adds one to the demo's used count and returns the new value.
// A repeated requestID within the cache TTL returns the first result
// without incrementing again; replayed reports that case.
func (d *DemoUsage) Increment(ctx context.Context, demoID, requestID string) (used int, replayed bool, err error) {
	incr := func() (int, error) {
		n, err := d.store.IncrementDemoUsage(ctx, demoID)
		if err != nil {
			return 0, fmt.Errorf("incrementing demo %s: %w", demoID, err)
		}
		return n, nil
	}

	if d.cache == nil || requestID == "" {
		n, err := incr()
		return n, false, err
	}

	used, replayed, err = d.cache.Do(demoID+"/"+requestID, incr)
	if err != nil {
		return 0, false, err
	}
	if replayed {
		d.logger.Debug("replayed demo usage increment", "demo_id", demoID, "request_id", requestID)
	}
	return used, replayed, nil
}

// DemoCounter tracks one demo's quota for a conversation controller.
type DemoCounter struct {
	usage  *DemoUsage
	demoID string

	mu    sync.Mutex
	used  int
	limit int
}

// Counter returns a DemoCounter seeded from demo.
func (d *DemoUsage) Counter(demo *widget.Demo) *DemoCounter {
	return &DemoCounter{
		usage:  d,
		demoID: demo.ID,
		used:   demo.UsedCount,
		limit:  demo.UsageLimit,
	}
}

// Usage re-reads the demo so turns answered by other sessions count.
// The stored values win, which lets an admin reset reopen the demo.
func (c *DemoCounter) Usage(ctx context.Context) (int, int, error) {
	demo, err := c.usage.store.GetDemo(ctx, c.demoID)
	if err != nil {
		return 0, 0, fmt.Errorf("loading demo %s: %w", c.demoID, err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.used, c.limit = demo.UsedCount, demo.UsageLimit
	return c.used, c.limit, nil
}

// Increment records one answered turn.
func (c *DemoCounter) Increment(ctx context.Context) (int, error) {
	n, _, err := c.usage.Increment(ctx, c.demoID, uuid.New().String())
	if err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if n > c.used {
		c.used = n
	}
	return c.used, nil
}
