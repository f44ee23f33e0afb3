package kernel

import (
	"sync"

	"github.com/me/kthread/pkg/model"
)

// pidAllocator hands out task ids. It takes a lock instead of masking
// interrupts because it is also called where interrupts stay enabled.
type pidAllocator struct {
	mu   sync.Mutex
	last model.PID
}

func (a *pidAllocator) allocate() model.PID {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.last++
	return a.last
}
