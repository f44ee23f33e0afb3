package model

import "strings"

// TaskStatus is the execution status of a task record.
type TaskStatus string

const (
	TaskRunning TaskStatus = "RUNNING"
	TaskReady   TaskStatus = "READY"
	TaskBlocked TaskStatus = "BLOCKED"
	TaskWaiting TaskStatus = "WAITING"
	TaskHanging TaskStatus = "HANGING"
)

// String returns the string representation of the task status.
func (s TaskStatus) String() string {
	return string(s)
}

// IsBlocked returns true for the three statuses that take a task out of
// scheduling. They differ only for the caller's own bookkeeping.
func (s TaskStatus) IsBlocked() bool {
	switch s {
	case TaskBlocked, TaskWaiting, TaskHanging:
		return true
	}
	return false
}

// ValidTaskTransitions defines the allowed status transitions for tasks.
// There is no terminal status: a task, once created, lives forever.
var ValidTaskTransitions = map[TaskStatus][]TaskStatus{
	TaskRunning: {TaskReady, TaskBlocked, TaskWaiting, TaskHanging},
	TaskReady:   {TaskRunning},
	TaskBlocked: {TaskReady},
	TaskWaiting: {TaskReady},
	TaskHanging: {TaskReady},
}

// CanTransitionTo returns true if moving from the current status to next is valid.
func (s TaskStatus) CanTransitionTo(next TaskStatus) bool {
	for _, allowed := range ValidTaskTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// ParseTaskStatus maps a case-insensitive name to a blocked status.
// Only blocked statuses are accepted since they are the only ones a
// caller may request directly.
func ParseTaskStatus(s string) (TaskStatus, bool) {
	switch TaskStatus(strings.ToUpper(s)) {
	case TaskBlocked:
		return TaskBlocked, true
	case TaskWaiting:
		return TaskWaiting, true
	case TaskHanging:
		return TaskHanging, true
	}
	return "", false
}

// RunStatus is the lifecycle status of a recorded workload run.
type RunStatus string

const (
	RunStatusRunning   RunStatus = "RUNNING"
	RunStatusCompleted RunStatus = "COMPLETED"
	RunStatusFailed    RunStatus = "FAILED"
	RunStatusTimedOut  RunStatus = "TIMED_OUT"
)

// String returns the string representation of the run status.
func (s RunStatus) String() string {
	return string(s)
}

// IsTerminal returns true if the run is in a final state.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusFailed, RunStatusTimedOut:
		return true
	}
	return false
}
