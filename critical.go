package rvhal

// noCopy makes go vet flag copies of a Token.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Token is proof that interrupts were disabled by Enter. It remembers the
// mstatus.MIE value seen at acquisition so Exit can restore it.
type Token struct {
	_     noCopy
	hart  *Hart
	prev  uint8
	depth int
	done  bool
}

// Enter disables interrupts on the hart and returns a token recording the
// previous state. Entering while already inside a critical section is
// allowed; the new token records the already disabled state, so only the
// outermost Exit turns interrupts back on.
func (h *Hart) Enter() *Token {
	prev := mstatusMIE.Get(h.mstatus)
	h.mstatus = mstatusMIE.Set(h.mstatus, 0)
	h.csDepth++
	return &Token{hart: h, prev: prev, depth: h.csDepth}
}

// Exit restores the interrupt enable state captured by t. Tokens must be
// released exactly once, innermost first; anything else panics with a
// *TokenError. A fault taken while pending interrupts are sampled halts the
// hart; Err reports it and the registry refuses further changes.
func (h *Hart) Exit(t *Token) {
	switch {
	case t == nil:
		panic(&TokenError{Want: h.csDepth, Reason: "is nil"})
	case t.hart != h:
		panic(&TokenError{Depth: t.depth, Want: h.csDepth, Reason: "belongs to another hart"})
	case t.done:
		panic(&TokenError{Depth: t.depth, Want: h.csDepth, Reason: "already released"})
	case t.depth != h.csDepth:
		panic(&TokenError{Depth: t.depth, Want: h.csDepth, Reason: "released out of order"})
	}
	t.done = true
	h.csDepth--
	if t.prev == 1 {
		h.mstatus = mstatusMIE.Set(h.mstatus, 1)
		if err := h.sample(); err != nil {
			h.log.Printf("rvhal: halted leaving critical section: %v", err)
		}
	}
}

// Critical runs fn with interrupts disabled.
func (h *Hart) Critical(fn func()) {
	tok := h.Enter()
	fn()
	h.Exit(tok)
}

// InCritical reports whether a critical section is open on the hart.
func (h *Hart) InCritical() bool { return h.csDepth > 0 }

// EnableInterrupts sets mstatus.MIE. Startup code calls it once after Init
// and after drivers have bound their handlers. Interrupts already pending
// are taken before it returns; if one of them halts the hart, the fault is
// returned.
func (h *Hart) EnableInterrupts() error {
	h.mstatus = mstatusMIE.Set(h.mstatus, 1)
	return h.sample()
}

// InterruptsEnabled reports the current value of mstatus.MIE.
func (h *Hart) InterruptsEnabled() bool { return mstatusMIE.Get(h.mstatus) == 1 }
