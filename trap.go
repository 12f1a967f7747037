package rvhal

import "fmt"

// Cause is the value of the mcause register. Bit 31 distinguishes
// asynchronous interrupts from synchronous exceptions; the low bits hold
// the exception code or interrupt line.
type Cause uint32

const interruptBit Cause = 1 << 31

const (
	CauseInstrMisaligned  Cause = 0
	CauseInstrAccessFault Cause = 1
	CauseIllegalInstr     Cause = 2
	CauseBreakpoint       Cause = 3
	CauseLoadMisaligned   Cause = 4
	CauseLoadAccessFault  Cause = 5
	CauseStoreMisaligned  Cause = 6
	CauseStoreAccessFault Cause = 7
	CauseEcallU           Cause = 8
	CauseEcallM           Cause = 11
)

var exceptionNames = map[Cause]string{
	CauseInstrMisaligned:  "instruction address misaligned",
	CauseInstrAccessFault: "instruction access fault",
	CauseIllegalInstr:     "illegal instruction",
	CauseBreakpoint:       "breakpoint",
	CauseLoadMisaligned:   "load address misaligned",
	CauseLoadAccessFault:  "load access fault",
	CauseStoreMisaligned:  "store address misaligned",
	CauseStoreAccessFault: "store access fault",
	CauseEcallU:           "environment call from U-mode",
	CauseEcallM:           "environment call from M-mode",
}

// InterruptCause returns the cause reported for CPU interrupt line n.
func InterruptCause(line int) Cause { return interruptBit | Cause(line) }

// IsInterrupt reports whether c is an asynchronous interrupt.
func (c Cause) IsInterrupt() bool { return c&interruptBit != 0 }

// Code returns the exception code or the interrupt line.
func (c Cause) Code() uint32 { return uint32(c &^ interruptBit) }

func (c Cause) String() string {
	if c.IsInterrupt() {
		return fmt.Sprintf("interrupt: line %d", c.Code())
	}
	if s, ok := exceptionNames[c]; ok {
		return "exception: " + s
	}
	return fmt.Sprintf("exception: code %d", c.Code())
}

// trap is a synchronous exception raised by code running on the hart. It
// travels as a panic value until the hart takes it.
type trap struct {
	cause Cause
	tval  uint32
}

func (t trap) String() string {
	return fmt.Sprintf("%v, tval: %#08x", t.cause, t.tval)
}

// Frame is the machine context saved on trap entry and restored by mret.
// Context.PC is the saved mepc; an exception handler that wants to skip
// the faulting instruction advances it.
type Frame struct {
	Context
	Cause     Cause
	Tval      uint32
	Mstatus   uint32
	Threshold uint32
}

// ExceptionHandler handles a synchronous exception. Returning resumes the
// hart at f.PC.
type ExceptionHandler func(h *Hart, f *Frame)

// FaultError reports an unhandled exception. The hart is halted.
type FaultError struct {
	Cause Cause
	PC    uint32
	Tval  uint32
}

func (e *FaultError) Error() string {
	return fmt.Sprintf("rvhal: unhandled %v at pc %#08x, tval %#08x", e.Cause, e.PC, e.Tval)
}

// halt unwinds the hart after a fatal exception.
type halt struct{ err *FaultError }

func defaultExceptionHandler(h *Hart, f *Frame) {
	h.log.Printf("rvhal: %v at mepc %#08x, mtval %#08x: halting", f.Cause, f.PC, f.Tval)
	h.halt(&FaultError{Cause: f.Cause, PC: f.PC, Tval: f.Tval})
}
