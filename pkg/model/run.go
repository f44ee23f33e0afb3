package model

import "time"

// Run is one recorded execution of a workload scenario.
type Run struct {
	ID         string     `json:"id"`
	Scenario   string     `json:"scenario"`
	Status     RunStatus  `json:"status"`
	Switches   int        `json:"switches"`
	Ticks      uint64     `json:"ticks"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SwitchEvent records one context switch performed by the scheduler.
type SwitchEvent struct {
	Seq      int       `json:"seq"`
	FromPID  PID       `json:"from_pid"`
	FromName string    `json:"from_name"`
	ToPID    PID       `json:"to_pid"`
	ToName   string    `json:"to_name"`
	Tick     uint64    `json:"tick"`
	At       time.Time `json:"at"`
}
