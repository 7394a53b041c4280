package runtime

import (
	"context"
	"sync"
	"time"

	"github.com/drblury/ledgerflow/internal/runtime/observer"
)

// observerCell guards the observer shared by the consumer loop and the
// periodic report goroutine. Notifications hold the write lock for the
// duration of one call; reports and interval reads hold the read lock.
type observerCell struct {
	mu     sync.RWMutex
	logger observer.Logger
}

func (c *observerCell) set(l observer.Logger) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
}

func (c *observerCell) get() observer.Logger {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.logger
}

func (c *observerCell) notify(fn func(observer.Logger)) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.logger != nil {
		fn(c.logger)
	}
}

func (c *observerCell) interval() time.Duration {
	if c == nil {
		return 0
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger == nil {
		return 0
	}
	return c.logger.PeriodicReportInterval()
}

func (c *observerCell) report(ctx context.Context) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.logger != nil {
		c.logger.PeriodicReport(ctx)
	}
}

// reportLoop calls the periodic report every interval until ctx is done.
func (c *observerCell) reportLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.report(ctx)
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
