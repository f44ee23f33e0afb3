package kernel

import (
	"github.com/me/kthread/internal/arch"
	"github.com/me/kthread/internal/mm"
	"github.com/me/kthread/pkg/model"
)

const (
	// StackMagic is the canary written at the end of the record area.
	StackMagic uint32 = 0x20020905

	// RecordSize is the part of a task page reserved for the record itself.
	// The kernel stack grows down from the page top towards it.
	RecordSize = 0x40

	// NameLen is the size of the name field; longer names are cut.
	NameLen = 16
)

// Task is a task record: one schedulable flow of control and the page that
// holds its kernel stack.
type Task struct {
	pid      model.PID
	name     string
	status   model.TaskStatus
	priority int
	ticks    int
	elapsed  uint64
	thread   *arch.Thread
	space    *mm.AddressSpace

	readyTag Elem[*Task]
	allTag   Elem[*Task]
}

// canaryAddr is the last word of the record area.
func (t *Task) canaryAddr() uint32 {
	return t.thread.Page.Addr + RecordSize - 4
}

// init resets the record on its page. Only the bootstrap record starts
// out Running.
func (t *Task) init(pid model.PID, page *mm.Page, name string, priority int, running bool) {
	if len(name) > NameLen {
		name = name[:NameLen]
	}
	page.Zero(page.Addr, page.Addr+RecordSize)
	*t = Task{
		pid:      pid,
		name:     name,
		status:   model.TaskReady,
		priority: priority,
		ticks:    priority,
		thread:   arch.NewThread(page),
	}
	if running {
		t.status = model.TaskRunning
	}
	t.readyTag.Value = t
	t.allTag.Value = t
	page.SetWord(t.canaryAddr(), StackMagic)
}

func (t *Task) PID() model.PID                 { return t.pid }
func (t *Task) Name() string                   { return t.name }
func (t *Task) Status() model.TaskStatus       { return t.status }
func (t *Task) Priority() int                  { return t.priority }
func (t *Task) TicksRemaining() int            { return t.ticks }
func (t *Task) ElapsedTicks() uint64           { return t.elapsed }
func (t *Task) AddressSpace() *mm.AddressSpace { return t.space }

// StackPointer returns the saved context pointer.
func (t *Task) StackPointer() uint32 { return t.thread.SP }

// Page returns the page holding the record and its stack.
func (t *Task) Page() *mm.Page { return t.thread.Page }

// CanaryOK reports whether the stack canary is intact.
func (t *Task) CanaryOK() bool {
	return t.thread.Page.Word(t.canaryAddr()) == StackMagic
}

// Info returns a snapshot of the record.
func (t *Task) Info() model.TaskInfo {
	return model.TaskInfo{
		PID:             t.pid,
		Name:            t.name,
		Status:          t.status,
		Priority:        t.priority,
		TicksRemaining:  t.ticks,
		ElapsedTicks:    t.elapsed,
		PageAddr:        t.thread.Page.Addr,
		StackPointer:    t.thread.SP,
		HasAddressSpace: t.space != nil,
		CanaryOK:        t.CanaryOK(),
	}
}
