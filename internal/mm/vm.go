package mm

import (
	"fmt"
	"sync"
)

// kernelPDE marks the page-directory slot that maps the shared kernel half.
// Every address space carries it so kernel code stays reachable after a
// page-table switch.
const (
	kernelPDEIndex = 0x300
	kernelPDE      = KernelPageDir | 0x7
)

// AddressSpace is a task's private page directory.
type AddressSpace struct {
	PageDir *Page
}

// NewAddressSpace allocates a page directory from pool and maps the kernel
// half into it.
func NewAddressSpace(pool *Pool) (*AddressSpace, error) {
	pg, err := pool.AllocPage()
	if err != nil {
		return nil, fmt.Errorf("page directory: %w", err)
	}
	pg.SetWord(pg.Addr+kernelPDEIndex*4, kernelPDE)
	return &AddressSpace{PageDir: pg}, nil
}

// MapsKernel reports whether the kernel half is present.
func (as *AddressSpace) MapsKernel() bool {
	return as.PageDir.Word(as.PageDir.Addr+kernelPDEIndex*4) == kernelPDE
}

// MMU holds the simulated CR3 register and the ring-0 stack pointer of the
// task state segment.
type MMU struct {
	mu    sync.Mutex
	cr3   uint32
	esp0  uint32
	loads int
}

// NewMMU returns an MMU with the kernel page directory loaded.
func NewMMU() *MMU {
	return &MMU{cr3: KernelPageDir}
}

// Load installs a page directory.
func (m *MMU) Load(pageDir uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cr3 = pageDir
	m.loads++
}

// CR3 returns the active page directory.
func (m *MMU) CR3() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cr3
}

// SetEsp0 updates the stack used on a privilege change into the kernel.
func (m *MMU) SetEsp0(sp uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.esp0 = sp
}

// Esp0 returns the current ring-0 stack pointer.
func (m *MMU) Esp0() uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.esp0
}

// Loads returns how many times a page directory was installed.
func (m *MMU) Loads() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loads
}
