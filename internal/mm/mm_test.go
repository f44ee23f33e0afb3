package mm

import (
	"errors"
	"testing"
)

func TestPageOf(t *testing.T) {
	tests := []struct {
		addr uint32
		want uint32
	}{
		{0xc0100000, 0xc0100000},
		{0xc0100ffc, 0xc0100000},
		{0xc0101000, 0xc0101000},
		{0xc0101004, 0xc0101000},
	}
	for _, tt := range tests {
		if got := PageOf(tt.addr); got != tt.want {
			t.Errorf("PageOf(%#x) = %#x, want %#x", tt.addr, got, tt.want)
		}
	}
}

func TestPool_AllocPage(t *testing.T) {
	pool := NewPool(KernelBase, 2, nil)

	a, err := pool.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	b, err := pool.AllocPage()
	if err != nil {
		t.Fatalf("AllocPage: %v", err)
	}
	if a.Addr != KernelBase || b.Addr != KernelBase+PageSize {
		t.Errorf("addrs = %#x, %#x", a.Addr, b.Addr)
	}
	if pool.Used() != 2 || pool.Cap() != 2 {
		t.Errorf("Used/Cap = %d/%d, want 2/2", pool.Used(), pool.Cap())
	}

	if _, err := pool.AllocPage(); !errors.Is(err, ErrOutOfMemory) {
		t.Errorf("third AllocPage err = %v, want ErrOutOfMemory", err)
	}

	if pool.Lookup(b.Addr) != b {
		t.Error("Lookup did not return the second page")
	}
	if pool.Lookup(b.Addr+4) != nil {
		t.Error("Lookup of an unaligned address should be nil")
	}
}

func TestPage_Words(t *testing.T) {
	pg := &Page{Addr: KernelBase}
	pg.SetWord(pg.Top()-4, 0xdeadbeef)
	pg.SetWord(pg.Addr, 1)

	if got := pg.Word(pg.Top() - 4); got != 0xdeadbeef {
		t.Errorf("top word = %#x", got)
	}
	pg.Zero(pg.Addr, pg.Top())
	if pg.Word(pg.Top()-4) != 0 || pg.Word(pg.Addr) != 0 {
		t.Error("Zero left data behind")
	}
}

func TestPage_OutOfRangePanics(t *testing.T) {
	pg := &Page{Addr: KernelBase}
	defer func() {
		if recover() == nil {
			t.Error("expected panic for access past the page")
		}
	}()
	pg.Word(pg.Top())
}

func TestAddressSpace(t *testing.T) {
	pool := NewPool(KernelBase, 4, nil)
	as, err := NewAddressSpace(pool)
	if err != nil {
		t.Fatalf("NewAddressSpace: %v", err)
	}
	if !as.MapsKernel() {
		t.Error("address space does not map the kernel half")
	}

	mmu := NewMMU()
	if mmu.CR3() != KernelPageDir {
		t.Errorf("initial CR3 = %#x", mmu.CR3())
	}
	mmu.Load(as.PageDir.Addr)
	mmu.SetEsp0(0xc0102000)
	if mmu.CR3() != as.PageDir.Addr || mmu.Esp0() != 0xc0102000 || mmu.Loads() != 1 {
		t.Errorf("CR3=%#x esp0=%#x loads=%d", mmu.CR3(), mmu.Esp0(), mmu.Loads())
	}
}
