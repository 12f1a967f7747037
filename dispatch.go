package rvhal

// entry is the code mtvec points at. The strategy is fixed when the hart
// is built, so taking a trap never branches on the mode.
type entry interface {
	// mode returns the mtvec mode bits.
	mode() uint8

	// vector runs the entry point at pc.
	vector(h *Hart, pc uint32)

	// publish is called, inside a critical section, after any change to
	// bindings or enable state.
	publish(h *Hart)
}

// direct funnels every trap through dispatch.
type direct struct{}

func (direct) mode() uint8               { return 0 }
func (direct) vector(h *Hart, pc uint32) { h.dispatch() }
func (direct) publish(*Hart)             {}

// dispatch is the single trap entry. It decodes mcause once and routes the
// trap to the exception handler or to the handler bound to the line.
func (h *Hart) dispatch() {
	cause := Cause(h.mcause)
	if !cause.IsInterrupt() {
		h.exception()
		return
	}
	line := int(cause.Code())
	h.intc.ack(line)
	fn := h.handlers[line]
	if fn == nil || !h.intc.enabled(line) {
		h.spuriousTrap(line)
		return
	}
	h.service(line, fn)
}

// service runs fn for line. With preemption on, the threshold is raised to
// the line's priority and interrupts are unmasked so only strictly higher
// priorities can nest; otherwise the handler runs with interrupts masked.
// The line stays in service, and so cannot re-enter, until fn returns.
func (h *Hart) service(line int, fn Handler) {
	bit := uint32(1) << line
	h.inService |= bit
	if h.cfg.Preemption {
		h.intc.thresh.Write(uint32(h.intc.priority(line)))
		h.mstatus = mstatusMIE.Set(h.mstatus, 1)
		h.pollInterrupts()
	}
	h.protect(fn)
	h.mstatus = mstatusMIE.Set(h.mstatus, 0)
	h.inService &^= bit
}

func (h *Hart) exception() {
	f := h.frames[len(h.frames)-1]
	if h.inException {
		h.log.Printf("rvhal: %v at mepc %#08x while handling an exception: halting", f.Cause, f.PC)
		h.halt(&FaultError{Cause: f.Cause, PC: f.PC, Tval: f.Tval})
	}
	h.inException = true
	h.protect(func() { h.onException(h, f) })
	h.inException = false
}

func (h *Hart) spuriousTrap(line int) {
	h.spurious[line].Add(1)
	h.log.Printf("rvhal: spurious interrupt on line %d", line)
}
