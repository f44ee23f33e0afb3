package kernel

import (
	"runtime"

	"github.com/me/kthread/pkg/model"
)

// idleLoop is the body of the idle task. It only gets the CPU when the
// scheduler finds nothing else to run; it then halts until an interrupt
// arrives and goes back to sleep so the woken task can run.
func (k *Kernel) idleLoop(any) {
	for {
		// Stay masked from the block until the halt. A wake-up raised while
		// idle was being switched back in then stays queued for Halt instead
		// of running early and leaving the CPU halted with work ready.
		k.intr.Disable()
		k.Block(model.TaskBlocked)
		if !k.intr.Halt() {
			runtime.Goexit()
		}
	}
}
