// Package intr simulates the interrupt flag of a single CPU.
//
// Interrupt sources (timers, device wake-ups) may Raise handlers from any
// goroutine, but a handler only ever runs on the flow of control that
// currently owns the CPU, and only while interrupts are enabled. Masking
// interrupts is therefore enough to make a sequence of scheduler operations
// atomic with respect to every handler.
package intr

import (
	"log/slog"
	"sync"

	"github.com/me/kthread/internal/logging"
)

// Level is the state of the interrupt flag.
type Level int

const (
	Off Level = iota
	On
)

func (l Level) String() string {
	if l == On {
		return "on"
	}
	return "off"
}

// Handler is an interrupt service routine.
type Handler func()

// Controller is the interrupt controller of the simulated CPU.
type Controller struct {
	mu      sync.Mutex
	cond    *sync.Cond
	level   Level
	pending []Handler
	closed  bool
	taken   uint64
	logger  *slog.Logger
}

// New returns a controller with interrupts disabled, as they are at boot.
func New(logger *slog.Logger) *Controller {
	c := &Controller{
		level:  Off,
		logger: logging.OrDiscard(logger).With("component", "intr"),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Level returns the current interrupt flag.
func (c *Controller) Level() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.level
}

// Disable masks interrupts and returns the previous level.
func (c *Controller) Disable() Level {
	c.mu.Lock()
	defer c.mu.Unlock()
	old := c.level
	c.level = Off
	return old
}

// Enable unmasks interrupts, runs any pending handlers and returns the
// previous level.
func (c *Controller) Enable() Level {
	c.mu.Lock()
	old := c.level
	c.level = On
	c.mu.Unlock()
	c.deliver()
	return old
}

// SetLevel restores a level saved by Disable or Enable.
func (c *Controller) SetLevel(l Level) Level {
	if l == On {
		return c.Enable()
	}
	return c.Disable()
}

// Raise queues h for delivery. Safe to call from any goroutine.
func (c *Controller) Raise(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.pending = append(c.pending, h)
	c.cond.Broadcast()
}

// Pending returns the number of queued handlers.
func (c *Controller) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Taken returns how many handlers have been run.
func (c *Controller) Taken() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taken
}

// Poll marks an instruction boundary: pending handlers run now if
// interrupts are enabled.
func (c *Controller) Poll() {
	c.deliver()
}

// Halt enables interrupts and stops the CPU until a handler is pending,
// then runs it. Enabling and waiting happen under one lock, so a handler
// raised between the caller's last check and the halt is never lost.
// Halt returns false once the controller is closed.
func (c *Controller) Halt() bool {
	c.mu.Lock()
	c.level = On
	for len(c.pending) == 0 && !c.closed {
		c.cond.Wait()
	}
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return false
	}
	c.deliver()
	return true
}

// Close drops pending handlers and releases a halted CPU. Later Raise
// calls are ignored.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	c.pending = nil
	c.cond.Broadcast()
}

func (c *Controller) deliver() {
	for {
		c.mu.Lock()
		if c.level != On || len(c.pending) == 0 {
			c.mu.Unlock()
			return
		}
		h := c.pending[0]
		c.pending = c.pending[1:]
		c.level = Off
		c.taken++
		c.mu.Unlock()

		h()

		// iret: the handler may have switched away and come back, either
		// way the interrupted flow resumes with interrupts enabled.
		c.mu.Lock()
		c.level = On
		c.mu.Unlock()
	}
}
