package model

import (
	"fmt"
	"strings"
	"time"
)

// Response wraps every body the run API returns. Error is null on success;
// Pagination is only set by the run listing.
type Response struct {
	Status     string      `json:"status"`
	RequestID  string      `json:"request_id"`
	Timestamp  time.Time   `json:"timestamp"`
	Data       any         `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
	Error      *APIError   `json:"error"`
}

// Pagination describes one page of recorded runs.
type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Offset  int  `json:"offset"`
	HasMore bool `json:"has_more"`
}

// Run listing bounds.
const (
	DefaultRunLimit = 20
	MaxRunLimit     = 100
)

// ListOptions selects a page of runs, newest first, optionally only those
// in one RunStatus.
type ListOptions struct {
	Limit  int
	Offset int
	Status string
}

func DefaultListOptions() ListOptions {
	return ListOptions{Limit: DefaultRunLimit}
}

// Clamp pulls Limit into [1, MaxRunLimit] and Offset to at least zero.
func (o *ListOptions) Clamp() {
	if o.Limit <= 0 {
		o.Limit = DefaultRunLimit
	}
	if o.Limit > MaxRunLimit {
		o.Limit = MaxRunLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
}

// Validate normalizes the status filter to upper case and rejects names
// that are not a RunStatus.
func (o *ListOptions) Validate() error {
	if o.Status == "" {
		return nil
	}
	s := RunStatus(strings.ToUpper(o.Status))
	switch s {
	case RunStatusRunning, RunStatusCompleted, RunStatusFailed, RunStatusTimedOut:
		o.Status = string(s)
		return nil
	}
	return fmt.Errorf("unknown run status %q", o.Status)
}

// Page returns the pagination block for a listing of total runs.
func (o ListOptions) Page(total int) *Pagination {
	return &Pagination{
		Total:   total,
		Limit:   o.Limit,
		Offset:  o.Offset,
		HasMore: o.Offset+o.Limit < total,
	}
}
