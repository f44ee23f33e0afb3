package kernel

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/me/kthread/pkg/model"
)

// Tick is the timer interrupt handler. It charges the tick to the running
// task and preempts it once its quantum is used up. The idle task is never
// preempted: it gives the CPU away by blocking.
func (k *Kernel) Tick() {
	cur := k.Current()
	if !cur.CanaryOK() {
		k.fatal(model.ErrStackCorrupt, cur, "stack canary overwritten")
	}
	cur.elapsed++
	k.ticks++

	if cur.ticks > 0 {
		cur.ticks--
		return
	}
	if cur != k.idle {
		k.Schedule()
	}
}

// Clock raises the timer interrupt at a fixed interval.
type Clock struct {
	kernel   *Kernel
	interval time.Duration
	logger   *slog.Logger
	queued   atomic.Bool
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// NewClock creates a clock for k. Start it with Start.
func NewClock(k *Kernel, interval time.Duration) *Clock {
	return &Clock{
		kernel:   k,
		interval: interval,
		logger:   k.logger.With("component", "clock"),
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start raises ticks until ctx is cancelled or Stop is called. At most one
// tick is outstanding at a time; ticks the CPU could not take are dropped.
func (c *Clock) Start(ctx context.Context) error {
	c.logger.Debug("clock started", "interval", c.interval)
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	defer close(c.doneCh)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopCh:
			return nil
		case <-ticker.C:
			if c.queued.CompareAndSwap(false, true) {
				c.kernel.intr.Raise(c.tick)
			}
		}
	}
}

func (c *Clock) tick() {
	c.queued.Store(false)
	c.kernel.Tick()
}

// Stop halts the clock and waits for Start to return.
func (c *Clock) Stop() {
	close(c.stopCh)
	<-c.doneCh
}
