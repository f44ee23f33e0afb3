package kernel

import "github.com/me/kthread/internal/arch"

// buildInitialStack lays out a never-run context on t's page so that the
// first switch into t lands in the trampoline, which calls fn(arg).
//
// From the page top down: an interrupt frame, then a thread frame whose
// return address is the trampoline and whose callee-saved slots are zero.
func (k *Kernel) buildInitialStack(t *Task, fn arch.EntryFunc, arg any) {
	pg := t.thread.Page

	t.thread.SP -= arch.IntrFrameSize
	pg.Zero(t.thread.SP, t.thread.SP+arch.IntrFrameSize)

	t.thread.SP -= arch.ThreadFrameSize
	sp := t.thread.SP
	pc, argp := k.machine.Link(fn, arg)

	pg.SetWord(sp+arch.FrameEBP, 0)
	pg.SetWord(sp+arch.FrameEBX, 0)
	pg.SetWord(sp+arch.FrameEDI, 0)
	pg.SetWord(sp+arch.FrameESI, 0)
	pg.SetWord(sp+arch.FrameEIP, arch.TrampolinePC)
	pg.SetWord(sp+arch.FrameUnused, 0)
	pg.SetWord(sp+arch.FrameFunction, pc)
	pg.SetWord(sp+arch.FrameArg, argp)
}
