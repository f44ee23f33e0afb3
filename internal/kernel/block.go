package kernel

import "github.com/me/kthread/pkg/model"

// Block takes the running task out of scheduling with the given status
// (Blocked, Waiting or Hanging) and runs someone else. It returns after
// another task has unblocked the caller and the scheduler picked it again,
// with the caller's interrupt level restored.
func (k *Kernel) Block(status model.TaskStatus) {
	if !status.IsBlocked() {
		k.fatal(model.ErrInvalidBlockStatus, k.Current(), "cannot block with status "+status.String())
	}
	old := k.intr.Disable()
	cur := k.Current()
	k.setStatus(cur, status)
	k.logger.Debug("block", "pid", cur.pid, "name", cur.name, "status", status)
	k.Schedule()
	k.intr.SetLevel(old)
}

// Unblock makes a blocked task Ready at the head of the ready queue, ahead
// of tasks that merely yielded. Unblocking a task that is already Ready is
// a no-op.
func (k *Kernel) Unblock(t *Task) {
	old := k.intr.Disable()
	switch {
	case t.status == model.TaskReady:
		k.logger.Debug("unblock of ready task ignored", "pid", t.pid, "name", t.name)
	case !t.status.IsBlocked():
		k.fatal(model.ErrNotBlocked, t, "unblock of task in status "+t.status.String())
	default:
		k.enqueue(t, true)
		k.logger.Debug("unblock", "pid", t.pid, "name", t.name)
	}
	k.intr.SetLevel(old)
}

// Yield puts the running task at the tail of the ready queue and runs the
// task at the head.
func (k *Kernel) Yield() {
	old := k.intr.Disable()
	cur := k.Current()
	k.enqueue(cur, false)
	k.Schedule()
	k.intr.SetLevel(old)
}
