package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/google/uuid"

	"github.com/me/kthread/internal/config"
	"github.com/me/kthread/internal/kernel"
	"github.com/me/kthread/internal/logging"
	"github.com/me/kthread/internal/mm"
	"github.com/me/kthread/internal/store"
	"github.com/me/kthread/pkg/model"
)

// Result is everything recorded about one run.
type Result struct {
	Run    *model.Run
	Events []model.SwitchEvent
	Tasks  []model.TaskInfo
	Output []string
}

// Runner boots a kernel per scenario and drives it to completion.
type Runner struct {
	cfg    config.KernelConfig
	store  store.Store
	logger *slog.Logger
}

// NewRunner creates a runner. st may be nil, in which case runs are not
// persisted.
func NewRunner(cfg config.KernelConfig, st store.Store, logger *slog.Logger) *Runner {
	return &Runner{
		cfg:    cfg,
		store:  st,
		logger: logging.OrDiscard(logger).With("component", "workload"),
	}
}

// Run executes sc on a new kernel. The calling goroutine becomes the main
// task for the duration of the call: it starts every task, then waits in
// status Waiting until the last task body returns or the run is aborted by
// its timeout or by ctx.
//
// A run that fails inside the kernel (a script error, a timeout, a broken
// invariant) is reported through Result.Run.Status, not as an error.
func (r *Runner) Run(ctx context.Context, sc *Scenario) (*Result, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}
	cfg := r.cfg
	if sc.TickInterval > 0 {
		cfg.TickInterval = sc.TickInterval
	}
	timeout := cfg.RunTimeout
	if sc.Timeout > 0 {
		timeout = sc.Timeout
	}

	run := &model.Run{
		ID:        "run_" + uuid.New().String(),
		Scenario:  sc.Name,
		Status:    model.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	if r.store != nil {
		if err := r.store.CreateRun(ctx, run); err != nil {
			return nil, fmt.Errorf("create run: %w", err)
		}
	}
	logger := r.logger.With("run_id", run.ID, "scenario", sc.Name)
	logger.Info("run started", "tasks", len(sc.Tasks), "tick_interval", cfg.TickInterval, "timeout", timeout)

	ex := &execution{sc: sc, logger: logger}
	execErr := ex.execute(ctx, cfg, timeout)

	finished := time.Now().UTC()
	run.FinishedAt = &finished
	run.Switches = len(ex.events)
	run.Ticks = ex.ticks
	switch {
	case execErr != nil:
		run.Status = model.RunStatusFailed
		run.Error = execErr.Error()
	case errors.Is(ex.abortErr, context.DeadlineExceeded):
		run.Status = model.RunStatusTimedOut
		run.Error = fmt.Sprintf("%d task(s) still running after %s", ex.remaining, timeout)
	case ex.abortErr != nil:
		run.Status = model.RunStatusFailed
		run.Error = ex.abortErr.Error()
	case ex.checkErr != nil:
		run.Status = model.RunStatusFailed
		run.Error = ex.checkErr.Error()
	case len(ex.errs) > 0:
		run.Status = model.RunStatusFailed
		run.Error = errors.Join(ex.errs...).Error()
	default:
		run.Status = model.RunStatusCompleted
	}

	res := &Result{Run: run, Events: ex.events, Tasks: ex.tasks, Output: ex.output}
	if err := r.persist(context.WithoutCancel(ctx), res); err != nil {
		return res, fmt.Errorf("persist run %s: %w", run.ID, err)
	}
	logger.Info("run finished", "status", run.Status, "switches", run.Switches, "ticks", run.Ticks)
	if execErr != nil {
		return res, execErr
	}
	return res, nil
}

func (r *Runner) persist(ctx context.Context, res *Result) error {
	if r.store == nil {
		return nil
	}
	if len(res.Events) > 0 {
		if err := r.store.AddSwitchEvents(ctx, res.Run.ID, res.Events); err != nil {
			return err
		}
	}
	if len(res.Tasks) > 0 {
		if err := r.store.SaveTaskSnapshot(ctx, res.Run.ID, res.Tasks); err != nil {
			return err
		}
	}
	return r.store.UpdateRun(ctx, res.Run)
}

// execution is the state of one run. Apart from the fields under mu it is
// only touched by the task that owns the CPU, with interrupts disabled
// where it matters.
type execution struct {
	sc     *Scenario
	k      *kernel.Kernel
	logger *slog.Logger

	remaining int
	abortErr  error
	errs      []error
	events    []model.SwitchEvent
	output    []string
	tasks     []model.TaskInfo
	checkErr  error
	ticks     uint64

	mu      sync.Mutex
	vms     []*goja.Runtime
	aborted bool
}

func (ex *execution) execute(ctx context.Context, cfg config.KernelConfig, timeout time.Duration) error {
	k := kernel.New(cfg, ex.logger, kernel.WithHooks(kernel.Hooks{OnSwitch: ex.recordSwitch}))
	ex.k = k
	if err := k.Boot(); err != nil {
		k.Shutdown()
		return fmt.Errorf("boot: %w", err)
	}
	defer k.Shutdown()

	ex.remaining = len(ex.sc.Tasks)
	for i := range ex.sc.Tasks {
		ts := &ex.sc.Tasks[i]
		var opts []kernel.ThreadOption
		if ts.AddressSpace {
			as, err := mm.NewAddressSpace(k.Pages())
			if err != nil {
				return fmt.Errorf("task %s: %w", ts.Name, err)
			}
			opts = append(opts, kernel.WithAddressSpace(as))
		}
		if _, err := k.StartThread(ts.Name, ts.Priority, ex.body, ts, opts...); err != nil {
			return err
		}
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	stop := context.AfterFunc(ctx, func() { ex.abort(ctx) })
	defer stop()

	var clock *kernel.Clock
	if cfg.TickInterval > 0 {
		clock = kernel.NewClock(k, cfg.TickInterval)
		go clock.Start(ctx)
	}

	// Checking the condition and blocking must not be split by a task
	// finishing in between, or the wake-up is lost.
	old := k.Interrupts().Disable()
	for ex.remaining > 0 && ex.abortErr == nil {
		k.Block(model.TaskWaiting)
	}
	stop()
	k.Interrupts().SetLevel(old)

	if clock != nil {
		clock.Stop()
	}
	ex.tasks = k.Snapshot()
	ex.checkErr = k.Check()
	ex.ticks = k.Ticks()
	return nil
}

// abort runs when the run's context ends. It stops every script and
// raises an interrupt that wakes the main task wherever the CPU is.
func (ex *execution) abort(ctx context.Context) {
	ex.mu.Lock()
	ex.aborted = true
	for _, vm := range ex.vms {
		vm.Interrupt(ctx.Err())
	}
	ex.mu.Unlock()

	k := ex.k
	k.Interrupts().Raise(func() {
		// The deadline can pass while the last task is finishing.
		if ex.remaining == 0 {
			return
		}
		ex.logger.Warn("run aborted", "reason", ctx.Err(), "remaining", ex.remaining)
		ex.abortErr = ctx.Err()
		if main := k.Main(); main.Status().IsBlocked() {
			k.Unblock(main)
		}
	})
}

func (ex *execution) track(vm *goja.Runtime) {
	ex.mu.Lock()
	defer ex.mu.Unlock()
	ex.vms = append(ex.vms, vm)
	if ex.aborted {
		vm.Interrupt("run aborted")
	}
}

// body is the entry function of every scenario task.
func (ex *execution) body(arg any) {
	ts := arg.(*TaskSpec)
	vm := goja.New()
	if err := ex.bind(vm, ts); err != nil {
		ex.errs = append(ex.errs, fmt.Errorf("task %s: %w", ts.Name, err))
	} else {
		ex.track(vm)
		if _, err := vm.RunProgram(ts.program); err != nil {
			ex.logger.Warn("task script failed", "task", ts.Name, "error", err)
			ex.errs = append(ex.errs, fmt.Errorf("task %s: %w", ts.Name, err))
		}
	}
	ex.finish()
}

// finish wakes the main task once the last body returns.
func (ex *execution) finish() {
	k := ex.k
	old := k.Interrupts().Disable()
	ex.remaining--
	if ex.remaining == 0 && k.Main().Status() == model.TaskWaiting {
		k.Unblock(k.Main())
	}
	k.Interrupts().SetLevel(old)
}

func (ex *execution) recordSwitch(from, to *kernel.Task) {
	if from == to {
		return
	}
	ex.events = append(ex.events, model.SwitchEvent{
		Seq:      len(ex.events) + 1,
		FromPID:  from.PID(),
		FromName: from.Name(),
		ToPID:    to.PID(),
		ToName:   to.Name(),
		Tick:     ex.k.Ticks(),
		At:       time.Now().UTC(),
	})
}

// bind installs the scheduler API a task script sees:
//
//	yield()          give up the CPU, stay Ready
//	block([status])  block as BLOCKED (default), WAITING or HANGING
//	wake(name)       unblock a task; false if it was not blocked
//	spin(ms)         burn CPU for ms milliseconds, taking interrupts
//	log(...)         append a line to the run output
//	self()           pid, name, priority, ticks and elapsed of the caller
//	ticks()          timer ticks handled so far
func (ex *execution) bind(vm *goja.Runtime, ts *TaskSpec) error {
	k := ex.k
	bindings := map[string]any{
		"yield": func() { k.Yield() },

		"block": func(call goja.FunctionCall) goja.Value {
			status := model.TaskBlocked
			if arg := call.Argument(0); !goja.IsUndefined(arg) {
				s, ok := model.ParseTaskStatus(arg.String())
				if !ok {
					panic(vm.NewTypeError("block: %q is not a blocked status", arg.String()))
				}
				status = s
			}
			k.Block(status)
			return goja.Undefined()
		},

		"wake": func(name string) bool {
			old := k.Interrupts().Disable()
			defer k.Interrupts().SetLevel(old)

			t := k.Lookup(name)
			if t == nil {
				panic(vm.NewTypeError("wake: no task named %q", name))
			}
			if t == k.Idle() {
				panic(vm.NewTypeError("wake: the idle task is only woken by the scheduler"))
			}
			if !t.Status().IsBlocked() {
				return false
			}
			k.Unblock(t)
			return true
		},

		"spin": func(ms int64) {
			deadline := time.Now().Add(time.Duration(ms) * time.Millisecond)
			for time.Now().Before(deadline) {
				k.Interrupts().Poll()
			}
		},

		"log": func(call goja.FunctionCall) goja.Value {
			parts := make([]string, len(call.Arguments))
			for i, a := range call.Arguments {
				parts[i] = a.String()
			}
			msg := strings.Join(parts, " ")
			ex.output = append(ex.output, ts.Name+": "+msg)
			ex.logger.Info("task log", "task", ts.Name, "msg", msg)
			return goja.Undefined()
		},

		"self": func() map[string]any {
			t := k.Current()
			return map[string]any{
				"pid":      int64(t.PID()),
				"name":     t.Name(),
				"priority": t.Priority(),
				"ticks":    t.TicksRemaining(),
				"elapsed":  int64(t.ElapsedTicks()),
			}
		},

		"ticks": func() int64 { return int64(k.Ticks()) },
	}
	for name, fn := range bindings {
		if err := vm.Set(name, fn); err != nil {
			return fmt.Errorf("bind %s: %w", name, err)
		}
	}
	return nil
}
