package arch

import (
	"fmt"
	"log/slog"
	"runtime"
	"sync"

	"github.com/me/kthread/internal/intr"
	"github.com/me/kthread/internal/logging"
	"github.com/me/kthread/internal/mm"
	"github.com/me/kthread/pkg/model"
)

// EntryFunc is the body of a thread.
type EntryFunc func(arg any)

// Thread is the machine-level half of a task: the page that holds its
// kernel stack, the saved stack pointer, and the goroutine standing in for
// its register file. Only the thread owning the CPU executes; the others
// wait for the CPU to be handed to them.
type Thread struct {
	Page *mm.Page
	SP   uint32
	cpu  chan struct{}
}

// NewThread returns a thread whose stack is empty: SP at the page top.
func NewThread(page *mm.Page) *Thread {
	return &Thread{
		Page: page,
		SP:   page.Top(),
		cpu:  make(chan struct{}, 1),
	}
}

// Machine is a single simulated CPU.
type Machine struct {
	intr   *intr.Controller
	logger *slog.Logger

	mu      sync.Mutex
	text    map[uint32]EntryFunc
	data    map[uint32]any
	nextPC  uint32
	nextArg uint32

	running *Thread
	onExit  func()
	onFault func(*model.KernelPanic)
	done    chan struct{}
	once    sync.Once
}

// Load addresses handed out for entry functions and their arguments.
const (
	textBase uint32 = 0x08048000
	dataBase uint32 = 0x0a000000
)

// NewMachine creates a CPU wired to an interrupt controller.
func NewMachine(ic *intr.Controller, logger *slog.Logger) *Machine {
	return &Machine{
		intr:    ic,
		logger:  logging.OrDiscard(logger).With("component", "arch"),
		text:    make(map[uint32]EntryFunc),
		data:    make(map[uint32]any),
		nextPC:  textBase,
		nextArg: dataBase,
		onExit:  func() { select {} },
		onFault: func(p *model.KernelPanic) { panic(p) },
		done:    make(chan struct{}),
	}
}

// OnExit sets the routine a thread runs when its entry function returns.
// It must not return.
func (m *Machine) OnExit(fn func()) { m.onExit = fn }

// OnFault sets the handler for unrecoverable machine faults. It must not
// return.
func (m *Machine) OnFault(fn func(*model.KernelPanic)) { m.onFault = fn }

// Adopt makes the calling goroutine the flow of control of t, which
// becomes the running thread.
func (m *Machine) Adopt(t *Thread) {
	m.running = t
}

// Running returns the thread that owns the CPU.
func (m *Machine) Running() *Thread {
	return m.running
}

// SP returns the stack pointer of the running thread.
func (m *Machine) SP() uint32 {
	if m.running == nil {
		return 0
	}
	return m.running.SP
}

// Link places fn and arg in the machine's text and data segments and
// returns their addresses, suitable for a thread frame.
func (m *Machine) Link(fn EntryFunc, arg any) (pc, argp uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	pc = m.nextPC
	m.nextPC += 16
	argp = m.nextArg
	m.nextArg += WordSize
	m.text[pc] = fn
	m.data[argp] = arg
	return pc, argp
}

// Push writes a word below t's stack pointer.
func (m *Machine) Push(t *Thread, v uint32) {
	if t.SP-WordSize < t.Page.Addr || t.SP > t.Page.Top() {
		m.fault(model.ErrStackCorrupt, fmt.Sprintf("kernel stack overflow at %#x", t.SP))
	}
	t.SP -= WordSize
	t.Page.SetWord(t.SP, v)
}

// Pop reads the word at t's stack pointer and moves it up.
func (m *Machine) Pop(t *Thread) uint32 {
	if !t.Page.Contains(t.SP) {
		m.fault(model.ErrBadContext, fmt.Sprintf("stack pointer %#x outside page %#x", t.SP, t.Page.Addr))
	}
	v := t.Page.Word(t.SP)
	t.SP += WordSize
	return v
}

// SwitchTo saves the running context of cur on cur's stack, restores next
// from its stack and hands it the CPU. The call returns only when some
// later switch restores cur.
func (m *Machine) SwitchTo(cur, next *Thread) {
	// push retaddr; push esi; push edi; push ebx; push ebp; mov [cur], esp
	m.Push(cur, ResumePC)
	m.Push(cur, 0)
	m.Push(cur, 0)
	m.Push(cur, 0)
	m.Push(cur, 0)

	// mov esp, [next]; pop ebp; pop ebx; pop edi; pop esi; ret
	if next.SP > next.Page.Top()-switchFrameSize || next.SP < next.Page.Addr {
		m.fault(model.ErrBadContext, fmt.Sprintf("no saved context at %#x", next.SP))
	}
	for i := 0; i < 4; i++ {
		m.Pop(next)
	}
	eip := m.Pop(next)
	m.running = next

	switch eip {
	case ResumePC:
		next.cpu <- struct{}{}
	case TrampolinePC:
		fn, arg := m.entry(next)
		go m.trampoline(next, fn, arg)
	default:
		m.fault(model.ErrBadContext, fmt.Sprintf("return into %#x from saved context", eip))
	}
	m.park(cur)
}

// entry decodes the function and argument slots above the trampoline's
// dummy return address.
func (m *Machine) entry(t *Thread) (EntryFunc, any) {
	pc := t.Page.Word(t.SP + FrameFunction - FrameUnused)
	argp := t.Page.Word(t.SP + FrameArg - FrameUnused)

	m.mu.Lock()
	fn, ok := m.text[pc]
	arg := m.data[argp]
	delete(m.data, argp)
	m.mu.Unlock()

	if !ok {
		m.fault(model.ErrBadContext, fmt.Sprintf("entry %#x is not linked", pc))
	}
	return fn, arg
}

// trampoline is the first code a thread runs. Interrupts are enabled
// before the entry function so a new thread cannot starve the timer.
func (m *Machine) trampoline(t *Thread, fn EntryFunc, arg any) {
	m.intr.Enable()
	fn(arg)
	m.onExit()
}

func (m *Machine) park(t *Thread) {
	select {
	case <-t.cpu:
	case <-m.done:
		runtime.Goexit()
	}
}

func (m *Machine) fault(kind model.PanicKind, msg string) {
	p := &model.KernelPanic{Kind: kind, Msg: msg}
	m.logger.Error("machine fault", "kind", kind, "msg", msg)
	m.onFault(p)
	panic(p)
}

// Shutdown powers the machine off. Every parked thread exits; the caller
// keeps running as a plain goroutine.
func (m *Machine) Shutdown() {
	m.once.Do(func() { close(m.done) })
}

// Done is closed by Shutdown.
func (m *Machine) Done() <-chan struct{} {
	return m.done
}
