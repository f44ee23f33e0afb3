package arch

import (
	"errors"
	"testing"

	"github.com/me/kthread/internal/intr"
	"github.com/me/kthread/internal/mm"
	"github.com/me/kthread/pkg/model"
)

type testMachine struct {
	m    *Machine
	ic   *intr.Controller
	pool *mm.Pool
	main *Thread
}

func newTestMachine(t *testing.T) *testMachine {
	t.Helper()
	ic := intr.New(nil)
	pool := mm.NewPool(mm.KernelBase, 8, nil)
	m := NewMachine(ic, nil)

	pg, err := pool.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	main := NewThread(pg)
	m.Adopt(main)
	t.Cleanup(m.Shutdown)
	return &testMachine{m: m, ic: ic, pool: pool, main: main}
}

// freshThread lays out an interrupt frame and a thread frame that resumes
// into the trampoline.
func (tm *testMachine) freshThread(t *testing.T, fn EntryFunc, arg any) *Thread {
	t.Helper()
	pg, err := tm.pool.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	th := NewThread(pg)
	th.SP -= IntrFrameSize + ThreadFrameSize
	pc, argp := tm.m.Link(fn, arg)
	pg.SetWord(th.SP+FrameEIP, TrampolinePC)
	pg.SetWord(th.SP+FrameFunction, pc)
	pg.SetWord(th.SP+FrameArg, argp)
	return th
}

func TestSwitchTo_FirstSwitchRunsEntryWithArgument(t *testing.T) {
	tm := newTestMachine(t)

	type result struct {
		arg   any
		level intr.Level
	}
	var got result
	var worker *Thread
	worker = tm.freshThread(t, func(arg any) {
		got = result{arg: arg, level: tm.ic.Level()}
		tm.ic.Disable()
		tm.m.SwitchTo(worker, tm.main)
	}, "payload")

	tm.m.SwitchTo(tm.main, worker)

	if got.arg != "payload" {
		t.Errorf("entry arg = %v, want payload", got.arg)
	}
	if got.level != intr.On {
		t.Error("trampoline did not enable interrupts before the entry function")
	}
	if tm.m.Running() != tm.main {
		t.Error("main is not the running thread after switching back")
	}
	if tm.main.SP != tm.main.Page.Top() {
		t.Errorf("main SP = %#x, want page top %#x", tm.main.SP, tm.main.Page.Top())
	}
}

func TestSwitchTo_PingPong(t *testing.T) {
	tm := newTestMachine(t)

	var trace []string
	var worker *Thread
	worker = tm.freshThread(t, func(any) {
		for i := 0; i < 3; i++ {
			trace = append(trace, "worker")
			tm.m.SwitchTo(worker, tm.main)
		}
	}, nil)

	for i := 0; i < 3; i++ {
		trace = append(trace, "main")
		tm.m.SwitchTo(tm.main, worker)
	}

	want := []string{"main", "worker", "main", "worker", "main", "worker"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}

	// A parked thread's saved frame ends in the resume address.
	if eip := worker.Page.Word(worker.SP + FrameEIP); eip != ResumePC {
		t.Errorf("saved eip = %#x, want %#x", eip, ResumePC)
	}
}

func TestSwitchTo_SelfSwitch(t *testing.T) {
	tm := newTestMachine(t)
	sp := tm.main.SP
	tm.m.SwitchTo(tm.main, tm.main)
	if tm.main.SP != sp {
		t.Errorf("SP after self switch = %#x, want %#x", tm.main.SP, sp)
	}
}

func TestSwitchTo_CorruptContextFaults(t *testing.T) {
	tm := newTestMachine(t)
	pg, _ := tm.pool.AllocPage()
	bad := NewThread(pg)
	bad.SP -= ThreadFrameSize
	pg.SetWord(bad.SP+FrameEIP, 0x1234)

	var fault *model.KernelPanic
	tm.m.OnFault(func(p *model.KernelPanic) { fault = p })

	defer func() {
		r := recover()
		err, ok := r.(error)
		var kp *model.KernelPanic
		if !ok || !errors.As(err, &kp) {
			t.Fatalf("recovered %v, want *model.KernelPanic", r)
		}
		if kp.Kind != model.ErrBadContext {
			t.Errorf("Kind = %s, want %s", kp.Kind, model.ErrBadContext)
		}
		if fault != kp {
			t.Error("fault handler was not called with the panic value")
		}
	}()
	tm.m.SwitchTo(tm.main, bad)
}

func TestPush_OverflowFaults(t *testing.T) {
	tm := newTestMachine(t)
	pg, _ := tm.pool.AllocPage()
	th := NewThread(pg)
	th.SP = pg.Addr

	defer func() {
		kp, ok := recover().(*model.KernelPanic)
		if !ok || kp.Kind != model.ErrStackCorrupt {
			t.Fatalf("recovered %v, want stack corrupt panic", kp)
		}
	}()
	tm.m.Push(th, 1)
}
