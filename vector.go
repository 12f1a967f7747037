package rvhal

import "sync/atomic"

// slot is one vector table entry.
type slot func(h *Hart)

// vectorTable mirrors the hardware table at mtvec: slot 0 takes
// exceptions, slot n takes interrupt line n. Entries are 4 bytes apart.
type vectorTable [MaxLines]slot

// vectored gives each line a trampoline that already knows its line and
// handler. Tables are immutable; every change builds a new one and swaps
// it in whole, so a trap never sees a half updated table.
type vectored struct {
	table atomic.Pointer[vectorTable]
}

func (*vectored) mode() uint8 { return 1 }

func (v *vectored) vector(h *Hart, pc uint32) {
	t := v.table.Load()
	t[(pc-h.mtvec&^3)>>2](h)
}

func (v *vectored) publish(h *Hart) {
	t := new(vectorTable)
	t[0] = (*Hart).dispatch
	enabled := h.intc.enable.Read()
	for line := 1; line < MaxLines; line++ {
		fn := h.handlers[line]
		if line > h.chip.Lines || fn == nil || enabled&(1<<line) == 0 {
			t[line] = spuriousSlot(line)
			continue
		}
		t[line] = trampoline(line, fn)
	}
	v.table.Store(t)
}

func trampoline(line int, fn Handler) slot {
	return func(h *Hart) {
		h.intc.ack(line)
		h.service(line, fn)
	}
}

func spuriousSlot(line int) slot {
	return func(h *Hart) {
		h.intc.ack(line)
		h.spuriousTrap(line)
	}
}
