package intr

import (
	"testing"
	"time"
)

func TestController_StartsDisabled(t *testing.T) {
	c := New(nil)
	if c.Level() != Off {
		t.Errorf("Level = %v, want off", c.Level())
	}
}

func TestController_DisableRestore(t *testing.T) {
	c := New(nil)
	c.Enable()

	outer := c.Disable()
	inner := c.Disable()
	if outer != On || inner != Off {
		t.Fatalf("outer=%v inner=%v, want on/off", outer, inner)
	}

	// Restoring the inner level keeps interrupts masked.
	c.SetLevel(inner)
	if c.Level() != Off {
		t.Error("restoring nested level re-enabled interrupts")
	}
	c.SetLevel(outer)
	if c.Level() != On {
		t.Error("restoring outer level did not enable interrupts")
	}
}

func TestController_RaiseDeferredWhileMasked(t *testing.T) {
	c := New(nil)
	ran := 0
	var levelInHandler Level = On
	c.Raise(func() {
		ran++
		levelInHandler = c.Level()
	})

	c.Poll()
	if ran != 0 {
		t.Fatal("handler ran with interrupts disabled")
	}

	c.Enable()
	if ran != 1 {
		t.Fatalf("ran = %d, want 1", ran)
	}
	if levelInHandler != Off {
		t.Error("handler should run with interrupts masked")
	}
	if c.Level() != On {
		t.Error("interrupts not re-enabled after handler")
	}
	if c.Taken() != 1 || c.Pending() != 0 {
		t.Errorf("Taken=%d Pending=%d", c.Taken(), c.Pending())
	}
}

func TestController_PollDeliversInOrder(t *testing.T) {
	c := New(nil)
	c.Enable()

	var order []int
	c.Raise(func() { order = append(order, 1) })
	c.Raise(func() { order = append(order, 2) })
	c.Poll()

	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Errorf("order = %v, want [1 2]", order)
	}
}

func TestController_HaltWakesOnRaise(t *testing.T) {
	c := New(nil)
	woke := make(chan struct{})

	go func() {
		time.Sleep(10 * time.Millisecond)
		c.Raise(func() { close(woke) })
	}()

	if !c.Halt() {
		t.Fatal("Halt returned false on an open controller")
	}
	select {
	case <-woke:
	default:
		t.Fatal("Halt returned before the handler ran")
	}
	if c.Level() != On {
		t.Error("Halt should leave interrupts enabled")
	}
}

func TestController_HaltWithPendingReturnsImmediately(t *testing.T) {
	c := New(nil)
	ran := false
	c.Raise(func() { ran = true })
	if !c.Halt() || !ran {
		t.Error("pending handler was not delivered by Halt")
	}
}

func TestController_Close(t *testing.T) {
	c := New(nil)
	done := make(chan bool)
	go func() { done <- c.Halt() }()

	time.Sleep(10 * time.Millisecond)
	c.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Halt returned true after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not release Halt")
	}

	c.Raise(func() { t.Error("handler raised after Close must not run") })
	c.Enable()
}
