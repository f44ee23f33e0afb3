// Package mm provides the page allocator and address-space plumbing the
// scheduler relies on. Memory is simulated: a page is a 4 KiB byte array
// with a fixed virtual base address.
package mm

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/me/kthread/internal/logging"
)

const (
	PageSize = 4096

	// KernelBase is the virtual address of the first kernel heap page.
	KernelBase uint32 = 0xc0100000

	// KernelPageDir is the physical address of the kernel page directory.
	KernelPageDir uint32 = 0x00100000
)

// ErrOutOfMemory is returned when the pool has no free page left.
var ErrOutOfMemory = errors.New("out of kernel pages")

// PageOf rounds addr down to the base of the page containing it.
func PageOf(addr uint32) uint32 {
	return addr &^ (PageSize - 1)
}

// Page is one page of simulated kernel memory.
type Page struct {
	Addr uint32
	mem  [PageSize]byte
}

// Top returns the first address past the end of the page.
func (p *Page) Top() uint32 {
	return p.Addr + PageSize
}

// Contains reports whether a word at addr lies entirely inside the page.
func (p *Page) Contains(addr uint32) bool {
	return addr >= p.Addr && addr <= p.Top()-4
}

// Word reads the little-endian 32-bit word at addr.
func (p *Page) Word(addr uint32) uint32 {
	off := p.offset(addr)
	return binary.LittleEndian.Uint32(p.mem[off : off+4])
}

// SetWord writes a little-endian 32-bit word at addr.
func (p *Page) SetWord(addr, v uint32) {
	off := p.offset(addr)
	binary.LittleEndian.PutUint32(p.mem[off:off+4], v)
}

// Zero clears the byte range [from, to).
func (p *Page) Zero(from, to uint32) {
	clear(p.mem[p.offset(from) : to-p.Addr])
}

func (p *Page) offset(addr uint32) uint32 {
	if !p.Contains(addr) {
		panic(fmt.Sprintf("mm: address %#x outside page %#x", addr, p.Addr))
	}
	return addr - p.Addr
}

// Pool hands out pages from a fixed-size region starting at a base address.
// Pages are never returned: nothing in the scheduler frees a task page.
type Pool struct {
	mu     sync.Mutex
	base   uint32
	limit  int
	pages  []*Page
	logger *slog.Logger
}

// NewPool creates a pool of n pages starting at base.
func NewPool(base uint32, n int, logger *slog.Logger) *Pool {
	return &Pool{
		base:   PageOf(base),
		limit:  n,
		logger: logging.OrDiscard(logger).With("component", "mm"),
	}
}

// AllocPage returns a zeroed page.
func (p *Pool) AllocPage() (*Page, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pages) >= p.limit {
		return nil, fmt.Errorf("alloc page (%d/%d in use): %w", len(p.pages), p.limit, ErrOutOfMemory)
	}
	pg := &Page{Addr: p.base + uint32(len(p.pages))*PageSize}
	p.pages = append(p.pages, pg)
	p.logger.Debug("alloc page", "addr", fmt.Sprintf("%#x", pg.Addr))
	return pg, nil
}

// Lookup returns the allocated page with the given base address.
func (p *Pool) Lookup(addr uint32) *Page {
	p.mu.Lock()
	defer p.mu.Unlock()
	if addr < p.base {
		return nil
	}
	i := int((addr - p.base) / PageSize)
	if i >= len(p.pages) || p.pages[i].Addr != addr {
		return nil
	}
	return p.pages[i]
}

// Used returns the number of allocated pages.
func (p *Pool) Used() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pages)
}

// Cap returns the size of the pool in pages.
func (p *Pool) Cap() int {
	return p.limit
}
