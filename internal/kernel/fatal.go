package kernel

import "github.com/me/kthread/pkg/model"

// fatal halts the system: scheduler state is inconsistent and there is
// nothing to recover to.
func (k *Kernel) fatal(kind model.PanicKind, t *Task, msg string) {
	p := &model.KernelPanic{Kind: kind, Msg: msg}
	if t != nil {
		p.Task = t.name
		p.PID = t.pid
	}
	k.panic(p)
}

func (k *Kernel) panic(p *model.KernelPanic) {
	k.logger.Error("kernel panic", "kind", p.Kind, "task", p.Task, "pid", p.PID, "msg", p.Msg)
	if k.hooks.OnPanic != nil {
		k.hooks.OnPanic(p)
	}
	panic(p)
}
