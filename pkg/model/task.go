package model

// PID identifies a task. Values start at 1 and are never reused.
type PID uint32

// TaskInfo is a point-in-time view of a task record, produced by the
// kernel's diagnostics walk over the registry.
type TaskInfo struct {
	PID            PID        `json:"pid"`
	Name           string     `json:"name"`
	Status         TaskStatus `json:"status"`
	Priority       int        `json:"priority"`
	TicksRemaining int        `json:"ticks_remaining"`
	ElapsedTicks   uint64     `json:"elapsed_ticks"`

	// PageAddr is the base of the page that holds the record and its stack.
	PageAddr uint32 `json:"page_addr"`

	// StackPointer is the saved context pointer inside the page.
	StackPointer uint32 `json:"stack_pointer"`

	HasAddressSpace bool `json:"has_address_space"`
	CanaryOK        bool `json:"canary_ok"`
}

// StackUsed returns how many bytes of the page the saved stack occupies.
func (t TaskInfo) StackUsed(pageSize uint32) uint32 {
	top := t.PageAddr + pageSize
	if t.StackPointer == 0 || t.StackPointer > top {
		return 0
	}
	return top - t.StackPointer
}
