package kernel

import (
	"fmt"
	"strconv"

	"github.com/me/kthread/internal/intr"
	"github.com/me/kthread/internal/mm"
	"github.com/me/kthread/pkg/model"
)

// Current returns the running task, found from the stack pointer the same
// way the hardware would: the record sits at the base of the stack's page.
func (k *Kernel) Current() *Task {
	sp := k.machine.SP()
	t := k.byPage[mm.PageOf(sp-1)]
	if t == nil {
		k.fatal(model.ErrBadContext, nil, fmt.Sprintf("stack pointer %#x is not on a task page", sp))
	}
	return t
}

// enqueue makes t Ready, at the head of the ready queue when front is set
// and at the tail otherwise. Every transition into Ready goes through here,
// which is what keeps ticks == priority on entry.
func (k *Kernel) enqueue(t *Task, front bool) {
	if k.ready.Find(&t.readyTag) {
		k.fatal(model.ErrDuplicateReady, t, "task already in ready queue")
	}
	if front {
		k.ready.Push(&t.readyTag)
	} else {
		k.ready.Append(&t.readyTag)
	}
	t.ticks = t.priority
	k.setStatus(t, model.TaskReady)
}

// setStatus moves t to status s. In debug mode moves the status table does
// not allow are fatal.
func (k *Kernel) setStatus(t *Task, s model.TaskStatus) {
	if k.cfg.Debug && t.status != s && !t.status.CanTransitionTo(s) {
		err := &model.InvalidTransitionError{
			Entity: "task",
			ID:     strconv.FormatUint(uint64(t.pid), 10),
			From:   t.status.String(),
			To:     s.String(),
		}
		k.fatal(model.ErrBadTransition, t, err.Error())
	}
	t.status = s
}

// Schedule hands the CPU to the task at the head of the ready queue.
// Interrupts must be disabled. A Running caller goes to the tail of the
// queue; a caller that already blocked itself is left out. Schedule
// returns when the caller is next picked.
func (k *Kernel) Schedule() {
	if k.intr.Level() != intr.Off {
		k.fatal(model.ErrInterruptsEnabled, nil, "schedule called with interrupts enabled")
	}

	cur := k.Current()
	if cur.status == model.TaskRunning {
		k.enqueue(cur, false)
	}

	// Nothing else to run: wake the idle task so the CPU can halt.
	if k.ready.Empty() && k.idle != nil && k.idle.status.IsBlocked() {
		k.enqueue(k.idle, true)
	}
	if k.ready.Empty() {
		k.fatal(model.ErrReadyQueueEmpty, cur, "no task to run")
	}

	next := k.ready.Pop().Value
	k.setStatus(next, model.TaskRunning)

	if k.cfg.Debug {
		k.checkStack(cur)
		k.checkStack(next)
	}

	k.activate(next)
	k.switches++
	if cur != next {
		k.logger.Debug("switch", "from", cur.name, "to", next.name, "from_status", cur.status)
	}
	if k.hooks.OnSwitch != nil {
		k.hooks.OnSwitch(cur, next)
	}
	k.machine.SwitchTo(cur.thread, next.thread)
}

// activate installs next's page directory. Tasks without an address space
// run on the kernel's.
func (k *Kernel) activate(next *Task) {
	if next.space == nil {
		k.mmu.Load(mm.KernelPageDir)
		return
	}
	k.mmu.Load(next.space.PageDir.Addr)
	k.mmu.SetEsp0(next.thread.Page.Top())
}

func (k *Kernel) checkStack(t *Task) {
	if !t.CanaryOK() {
		k.fatal(model.ErrStackCorrupt, t, "stack canary overwritten")
	}
}
