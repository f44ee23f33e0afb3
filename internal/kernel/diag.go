package kernel

import (
	"fmt"

	"github.com/me/kthread/pkg/model"
)

// Tasks returns every task in the registry in creation order.
func (k *Kernel) Tasks() []*Task {
	old := k.intr.Disable()
	defer k.intr.SetLevel(old)

	var out []*Task
	k.all.Walk(func(e *Elem[*Task]) bool {
		out = append(out, e.Value)
		return false
	})
	return out
}

// Lookup returns the first task with the given name, or nil.
func (k *Kernel) Lookup(name string) *Task {
	old := k.intr.Disable()
	defer k.intr.SetLevel(old)

	e := k.all.Walk(func(e *Elem[*Task]) bool { return e.Value.name == name })
	if e == nil {
		return nil
	}
	return e.Value
}

// ReadyQueue returns the ready tasks from head to tail.
func (k *Kernel) ReadyQueue() []*Task {
	old := k.intr.Disable()
	defer k.intr.SetLevel(old)

	var out []*Task
	k.ready.Walk(func(e *Elem[*Task]) bool {
		out = append(out, e.Value)
		return false
	})
	return out
}

// Snapshot returns the state of every task, canaries checked.
func (k *Kernel) Snapshot() []model.TaskInfo {
	tasks := k.Tasks()
	out := make([]model.TaskInfo, 0, len(tasks))
	for _, t := range tasks {
		info := t.Info()
		if !info.CanaryOK {
			k.logger.Warn("stack canary overwritten", "pid", t.pid, "name", t.name)
		}
		out = append(out, info)
	}
	return out
}

// Check verifies the scheduler invariants: exactly one task is Running,
// and a task is in the ready queue exactly when it is Ready.
func (k *Kernel) Check() error {
	old := k.intr.Disable()
	defer k.intr.SetLevel(old)

	running := 0
	ready := 0
	var err error
	k.all.Walk(func(e *Elem[*Task]) bool {
		t := e.Value
		if t.status == model.TaskRunning {
			running++
		}
		if t.status == model.TaskReady {
			ready++
		}
		queued := k.ready.Find(&t.readyTag)
		if queued != (t.status == model.TaskReady) {
			err = fmt.Errorf("task %s (pid %d) status %s but queued=%v", t.name, t.pid, t.status, queued)
			return true
		}
		if !t.CanaryOK() {
			err = fmt.Errorf("task %s (pid %d) stack canary overwritten", t.name, t.pid)
			return true
		}
		return false
	})
	if err != nil {
		return err
	}
	if running != 1 {
		return fmt.Errorf("%d tasks running, want 1", running)
	}
	if n := k.ready.Len(); n != ready {
		return fmt.Errorf("ready queue holds %d tasks, %d are Ready", n, ready)
	}
	if cur := k.Current(); cur.status != model.TaskRunning {
		return fmt.Errorf("current task %s has status %s", cur.name, cur.status)
	}
	return nil
}
