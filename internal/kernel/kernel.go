// Package kernel is the scheduling core of a single-CPU preemptible kernel:
// task records, the ready queue, the scheduler and the block, unblock and
// yield protocol built on it.
//
// All scheduler state is protected by masking interrupts. The only lock is
// the one inside the pid allocator.
package kernel

import (
	"fmt"
	"log/slog"

	"github.com/me/kthread/internal/arch"
	"github.com/me/kthread/internal/config"
	"github.com/me/kthread/internal/intr"
	"github.com/me/kthread/internal/logging"
	"github.com/me/kthread/internal/mm"
	"github.com/me/kthread/pkg/model"
)

// Hooks observe scheduler events. They run inside the scheduler's critical
// section and must not call back into the kernel.
type Hooks struct {
	OnSwitch func(from, to *Task)
	OnPanic  func(*model.KernelPanic)
}

// Kernel owns all scheduler state of one CPU.
type Kernel struct {
	cfg     config.KernelConfig
	logger  *slog.Logger
	intr    *intr.Controller
	machine *arch.Machine
	pages   *mm.Pool
	mmu     *mm.MMU
	pids    pidAllocator
	hooks   Hooks

	ready  List[*Task] // runnable tasks, FIFO
	all    List[*Task] // every task ever created
	byPage map[uint32]*Task

	main     *Task
	idle     *Task
	ticks    uint64
	switches uint64
}

// Option configures optional Kernel dependencies.
type Option func(*Kernel)

// WithHooks installs scheduler observers.
func WithHooks(h Hooks) Option {
	return func(k *Kernel) {
		k.hooks = h
	}
}

// WithPagePool replaces the page pool built from the config.
func WithPagePool(p *mm.Pool) Option {
	return func(k *Kernel) {
		k.pages = p
	}
}

// New creates a kernel that has not booted yet.
func New(cfg config.KernelConfig, logger *slog.Logger, opts ...Option) *Kernel {
	logger = logging.OrDiscard(logger)
	ic := intr.New(logger)
	k := &Kernel{
		cfg:     cfg,
		logger:  logger.With("component", "kernel"),
		intr:    ic,
		machine: arch.NewMachine(ic, logger),
		pages:   mm.NewPool(mm.KernelBase, cfg.Pages, logger),
		mmu:     mm.NewMMU(),
		byPage:  make(map[uint32]*Task),
	}
	for _, opt := range opts {
		opt(k)
	}
	k.machine.OnFault(func(p *model.KernelPanic) { k.panic(p) })
	k.machine.OnExit(k.park)
	return k
}

// Boot turns the calling goroutine into the main task, creates the idle
// task and enables interrupts. Every later kernel call must come from the
// flow of control that currently owns the CPU.
func (k *Kernel) Boot() error {
	if k.main != nil {
		return fmt.Errorf("kernel already booted")
	}
	k.intr.Disable()

	page, err := k.pages.AllocPage()
	if err != nil {
		return fmt.Errorf("main task: %w", err)
	}
	main := &Task{}
	main.init(k.pids.allocate(), page, "main", k.cfg.MainPriority, true)
	k.machine.Adopt(main.thread)
	k.register(main)
	k.main = main

	idle, err := k.StartThread("idle", k.cfg.IdlePriority, k.idleLoop, nil)
	if err != nil {
		return fmt.Errorf("idle task: %w", err)
	}
	k.idle = idle

	k.logger.Info("kernel booted", "main_pid", main.pid, "idle_pid", idle.pid, "pages", k.pages.Cap())
	k.intr.Enable()
	return nil
}

// ThreadOption configures a task at creation time.
type ThreadOption func(*Task)

// WithAddressSpace gives the task its own page directory.
func WithAddressSpace(as *mm.AddressSpace) ThreadOption {
	return func(t *Task) {
		t.space = as
	}
}

// StartThread creates a task that will run fn(arg) and makes it Ready at
// the tail of the ready queue.
func (k *Kernel) StartThread(name string, priority int, fn arch.EntryFunc, arg any, opts ...ThreadOption) (*Task, error) {
	if priority <= 0 {
		return nil, fmt.Errorf("start %s: priority must be positive, got %d", name, priority)
	}
	page, err := k.pages.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", name, err)
	}
	pid := k.pids.allocate()

	old := k.intr.Disable()
	t := &Task{}
	t.init(pid, page, name, priority, false)
	for _, opt := range opts {
		opt(t)
	}
	k.buildInitialStack(t, fn, arg)
	k.enqueue(t, false)
	k.register(t)
	k.intr.SetLevel(old)

	k.logger.Debug("thread started", "pid", t.pid, "name", t.name, "priority", priority)
	return t, nil
}

// register links t into the registry.
func (k *Kernel) register(t *Task) {
	if k.all.Find(&t.allTag) {
		k.fatal(model.ErrDuplicateTask, t, "task already in registry")
	}
	k.all.Append(&t.allTag)
	k.byPage[t.thread.Page.Addr] = t
}

// park is where a task goes when its entry function returns. There is no
// exit path, so it hangs for good.
func (k *Kernel) park() {
	for {
		k.Block(model.TaskHanging)
	}
}

// Shutdown powers the machine off. Must be called by the running task,
// which continues as an ordinary goroutine; all other tasks are discarded.
func (k *Kernel) Shutdown() {
	k.intr.Close()
	k.machine.Shutdown()
}

// Main returns the bootstrap task.
func (k *Kernel) Main() *Task { return k.main }

// Idle returns the idle task.
func (k *Kernel) Idle() *Task { return k.idle }

// Interrupts returns the interrupt controller.
func (k *Kernel) Interrupts() *intr.Controller { return k.intr }

// MMU returns the memory management unit.
func (k *Kernel) MMU() *mm.MMU { return k.mmu }

// Pages returns the page pool task records are allocated from.
func (k *Kernel) Pages() *mm.Pool { return k.pages }

// Ticks returns the number of timer ticks handled.
func (k *Kernel) Ticks() uint64 { return k.ticks }

// Switches returns the number of context switches performed.
func (k *Kernel) Switches() uint64 { return k.switches }
