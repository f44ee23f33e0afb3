package workload

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/me/kthread/internal/config"
	"github.com/me/kthread/internal/kernel"
	"github.com/me/kthread/internal/logging"
	"github.com/me/kthread/internal/store"
	"github.com/me/kthread/pkg/model"
)

func newRunner(t *testing.T, st store.Store) *Runner {
	t.Helper()
	cfg := config.DefaultKernelConfig()
	cfg.Pages = 32
	cfg.RunTimeout = 5 * time.Second
	return NewRunner(cfg, st, logging.Discard())
}

func mustParse(t *testing.T, doc string) *Scenario {
	t.Helper()
	sc, err := ParseScenario([]byte(doc))
	if err != nil {
		t.Fatalf("ParseScenario: %v", err)
	}
	return sc
}

func assertOutput(t *testing.T, got, want []string) {
	t.Helper()
	if strings.Join(got, "\n") != strings.Join(want, "\n") {
		t.Errorf("output:\n%s\nwant:\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func taskInfo(res *Result, name string) model.TaskInfo {
	for _, ti := range res.Tasks {
		if ti.Name == name {
			return ti
		}
	}
	return model.TaskInfo{}
}

func TestRun_RoundRobin(t *testing.T) {
	sc, err := LoadScenario("testdata/roundrobin.yaml")
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}

	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusCompleted {
		t.Fatalf("status = %s (%s)", res.Run.Status, res.Run.Error)
	}
	if !strings.HasPrefix(res.Run.ID, "run_") {
		t.Errorf("run id = %q", res.Run.ID)
	}
	assertOutput(t, res.Output, []string{"A: A 0", "B: B 0", "A: A 1", "B: B 1", "A: A 2", "B: B 2"})

	if len(res.Tasks) != 4 {
		t.Fatalf("snapshot has %d tasks, want 4", len(res.Tasks))
	}
	if ti := taskInfo(res, "main"); ti.Status != model.TaskRunning || ti.PID != 1 {
		t.Errorf("main = %+v", ti)
	}
	for _, name := range []string{"A", "B"} {
		if ti := taskInfo(res, name); ti.Status != model.TaskHanging || !ti.CanaryOK {
			t.Errorf("%s = %+v", name, ti)
		}
	}

	// The first switch leaves main for idle, which was queued at boot.
	if len(res.Events) == 0 || res.Events[0].FromName != "main" || res.Events[0].ToName != "idle" {
		t.Fatalf("events = %+v", res.Events)
	}
	for i, ev := range res.Events {
		if ev.Seq != i+1 {
			t.Errorf("event %d has seq %d", i, ev.Seq)
		}
	}
	if last := res.Events[len(res.Events)-1]; last.ToName != "main" {
		t.Errorf("last switch goes to %s, want main", last.ToName)
	}
	if res.Run.Switches != len(res.Events) {
		t.Errorf("switches = %d, events = %d", res.Run.Switches, len(res.Events))
	}
}

func TestRun_BlockAndWake(t *testing.T) {
	sc := mustParse(t, `
name: wake
tasks:
  - name: waiter
    script: |
      block("waiting");
      log("woken");
  - name: waker
    script: |
      log("waking");
      log("woke", wake("waiter"));
      log("again", wake("waiter"));
`)
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusCompleted {
		t.Fatalf("status = %s (%s)", res.Run.Status, res.Run.Error)
	}
	// The woken task goes to the head of the queue but the waker keeps the
	// CPU until it gives it up.
	assertOutput(t, res.Output, []string{"waker: waking", "waker: woke true", "waker: again false", "waiter: woken"})
}

func TestRun_WakeByFullLengthName(t *testing.T) {
	sc := mustParse(t, `
name: long-names
tasks:
  - name: sleeper_sixteen_
    script: |
      block();
      log("woken");
  - name: waker
    script: |
      log("woke", wake("sleeper_sixteen_"));
`)
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusCompleted {
		t.Fatalf("status = %s (%s)", res.Run.Status, res.Run.Error)
	}
	assertOutput(t, res.Output, []string{"waker: woke true", "sleeper_sixteen_: woken"})
}

func TestAbort_AfterLastTaskFinished(t *testing.T) {
	tests := []struct {
		name      string
		remaining int
		wantErr   bool
	}{
		{"all finished", 0, false},
		{"task still running", 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultKernelConfig()
			cfg.Pages = 8
			k := kernel.New(cfg, logging.Discard())
			if err := k.Boot(); err != nil {
				t.Fatalf("Boot: %v", err)
			}
			t.Cleanup(k.Shutdown)

			ex := &execution{k: k, logger: logging.Discard(), remaining: tt.remaining}
			ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
			defer cancel()
			<-ctx.Done()

			ex.abort(ctx)
			k.Interrupts().Poll()

			if k.Interrupts().Taken() != 1 {
				t.Fatalf("handlers taken = %d, want 1", k.Interrupts().Taken())
			}
			if (ex.abortErr != nil) != tt.wantErr {
				t.Errorf("abortErr = %v, wantErr %v", ex.abortErr, tt.wantErr)
			}
			if k.Main().Status() != model.TaskRunning {
				t.Errorf("main status = %s, want RUNNING", k.Main().Status())
			}
		})
	}
}

func TestRun_ScriptError(t *testing.T) {
	sc := mustParse(t, `
name: boom
tasks:
  - name: bad
    script: throw new Error("boom")
  - name: good
    script: log("fine")
`)
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusFailed || !strings.Contains(res.Run.Error, "boom") {
		t.Errorf("run = %s %q, want FAILED mentioning boom", res.Run.Status, res.Run.Error)
	}
	assertOutput(t, res.Output, []string{"good: fine"})
}

func TestRun_InvalidBlockStatus(t *testing.T) {
	sc := mustParse(t, "name: x\ntasks:\n  - name: a\n    script: block('ready')\n")
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusFailed || !strings.Contains(res.Run.Error, "not a blocked status") {
		t.Errorf("run = %s %q", res.Run.Status, res.Run.Error)
	}
}

func TestRun_WakeIdleRejected(t *testing.T) {
	sc := mustParse(t, "name: x\ntasks:\n  - name: a\n    script: wake('idle')\n")
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusFailed {
		t.Errorf("status = %s, want FAILED", res.Run.Status)
	}
}

func TestRun_TimeoutWhenTaskNeverWakes(t *testing.T) {
	sc := mustParse(t, `
name: stuck
timeout: 50ms
tasks:
  - name: sleeper
    script: block()
`)
	start := time.Now()
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusTimedOut {
		t.Fatalf("status = %s (%s), want TIMED_OUT", res.Run.Status, res.Run.Error)
	}
	if elapsed := time.Since(start); elapsed > 3*time.Second {
		t.Errorf("run took %v", elapsed)
	}
	if ti := taskInfo(res, "sleeper"); ti.Status != model.TaskBlocked {
		t.Errorf("sleeper = %s, want BLOCKED", ti.Status)
	}
	if ti := taskInfo(res, "idle"); ti.Status != model.TaskBlocked {
		t.Errorf("idle = %s, want BLOCKED", ti.Status)
	}
}

func TestRun_InterruptsRunawayScript(t *testing.T) {
	sc := mustParse(t, `
name: runaway
timeout: 50ms
tasks:
  - name: loop
    script: while (true) {}
`)
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status == model.RunStatusCompleted || res.Run.Error == "" {
		t.Errorf("run = %s %q, want a failed run", res.Run.Status, res.Run.Error)
	}
}

func TestRun_TimerPreemptsSpinningTask(t *testing.T) {
	sc := mustParse(t, `
name: preempt
tick_interval: 1ms
tasks:
  - name: hog
    priority: 1
    script: |
      log("start");
      spin(100);
      log("done");
  - name: other
    script: log("ran")
`)
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.Run.Status != model.RunStatusCompleted {
		t.Fatalf("status = %s (%s)", res.Run.Status, res.Run.Error)
	}
	assertOutput(t, res.Output, []string{"hog: start", "other: ran", "hog: done"})
	if res.Run.Ticks == 0 {
		t.Error("no timer ticks recorded")
	}
	if ti := taskInfo(res, "hog"); ti.ElapsedTicks == 0 {
		t.Errorf("hog elapsed = %d, want > 0", ti.ElapsedTicks)
	}
}

func TestRun_AddressSpace(t *testing.T) {
	sc := mustParse(t, "name: x\ntasks:\n  - name: user\n    address_space: true\n    script: log(self().name)\n")
	res, err := newRunner(t, nil).Run(context.Background(), sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if ti := taskInfo(res, "user"); !ti.HasAddressSpace {
		t.Errorf("user = %+v, want an address space", ti)
	}
	assertOutput(t, res.Output, []string{"user: user"})
}

func TestRun_OutOfPages(t *testing.T) {
	cfg := config.DefaultKernelConfig()
	cfg.Pages = 3
	r := NewRunner(cfg, nil, logging.Discard())
	sc := mustParse(t, "name: x\ntasks:\n  - name: a\n  - name: b\n")

	res, err := r.Run(context.Background(), sc)
	if err == nil {
		t.Fatal("expected error when pages run out")
	}
	if res == nil || res.Run.Status != model.RunStatusFailed {
		t.Errorf("result = %+v", res)
	}
}

func TestRun_PersistsToStore(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:", logging.Discard())
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	ctx := context.Background()
	if err := st.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	sc, err := LoadScenario("testdata/roundrobin.yaml")
	if err != nil {
		t.Fatalf("LoadScenario: %v", err)
	}
	res, err := newRunner(t, st).Run(ctx, sc)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	run, err := st.GetRun(ctx, res.Run.ID)
	if err != nil || run == nil {
		t.Fatalf("GetRun: %v %v", run, err)
	}
	if run.Status != model.RunStatusCompleted || run.FinishedAt == nil || run.Switches != len(res.Events) {
		t.Errorf("stored run = %+v", run)
	}
	events, err := st.ListSwitchEvents(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListSwitchEvents: %v", err)
	}
	if len(events) != len(res.Events) {
		t.Errorf("stored %d events, want %d", len(events), len(res.Events))
	}
	tasks, err := st.ListTaskSnapshot(ctx, run.ID)
	if err != nil {
		t.Fatalf("ListTaskSnapshot: %v", err)
	}
	if len(tasks) != 4 || tasks[0].Name != "main" {
		t.Errorf("stored snapshot = %+v", tasks)
	}
}
