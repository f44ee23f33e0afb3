// Package arch is the i386-style machine layer under the scheduler: the
// layout of saved contexts on a kernel stack and the context switch.
package arch

// WordSize is the width of a stack slot.
const WordSize = 4

// Code addresses a saved context can resume into.
const (
	// TrampolinePC is where a never-run thread starts: it enables
	// interrupts and calls the thread's entry function.
	TrampolinePC uint32 = 0xc0001500

	// ResumePC is the return address of the switch call inside the
	// scheduler, pushed when a running thread is switched out.
	ResumePC uint32 = 0xc0001580
)

// The interrupt frame is what the interrupt entry stub pushes: vector
// number, general registers, segment registers, error code and the
// hardware iret frame.
const (
	IntrFrameWords = 19
	IntrFrameSize  = IntrFrameWords * WordSize
)

// The thread frame is what switch_to pops on the way into a thread:
// callee-saved registers and the return address. For a fresh thread the
// three slots above the return address hold a dummy return address for
// the trampoline, the entry function and its argument.
const (
	ThreadFrameWords = 8
	ThreadFrameSize  = ThreadFrameWords * WordSize

	FrameEBP      = 0 * WordSize
	FrameEBX      = 1 * WordSize
	FrameEDI      = 2 * WordSize
	FrameESI      = 3 * WordSize
	FrameEIP      = 4 * WordSize
	FrameUnused   = 5 * WordSize
	FrameFunction = 6 * WordSize
	FrameArg      = 7 * WordSize

	// switchFrameSize is the part of the thread frame switch_to pushes
	// and pops: four registers and the return address.
	switchFrameSize = FrameUnused
)
