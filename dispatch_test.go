package rvhal

import (
	"errors"
	"testing"

	"github.com/matryer/is"
)

func TestInterruptDelivery(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})

		var (
			calls int
			state State
			depth int
			cause Cause
		)
		is.NoErr(h.Enable(3, 1))
		is.NoErr(h.Bind(3, func() {
			calls++
			state, depth, cause = h.State(), h.Depth(), h.Mcause()
			h.X[10] = 0xdead // clobber, mret must undo it
		}))
		is.NoErr(h.EnableInterrupts())

		h.X[10] = 42
		before := h.Context
		is.NoErr(h.Raise(3))
		is.NoErr(h.Step())

		is.Equal(calls, 1)
		is.Equal(state, Trapped)
		is.Equal(depth, 1)
		is.Equal(cause, InterruptCause(3))
		is.Equal(h.Context, before)
		is.Equal(h.Mepc(), before.PC)
		is.Equal(h.State(), Running)
		is.Equal(h.Depth(), 0)
		is.True(h.InterruptsEnabled())
		is.True(!h.Snapshot()[2].Pending) // acknowledged

		// nothing left to take
		is.NoErr(h.Step())
		is.Equal(calls, 1)
	})
}

func TestSpurious(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		t.Run("unbound", func(t *testing.T) {
			is := is.New(t)
			log := new(logRecorder)
			h := newHart(t, Config{Mode: mode, Log: log})
			is.NoErr(h.Enable(5, 2))
			is.NoErr(h.EnableInterrupts())
			before := h.Context

			is.NoErr(h.Raise(5))
			is.NoErr(h.Step())
			is.Equal(h.Spurious(5), uint64(1))
			is.Equal(h.State(), Running)
			is.Equal(h.Context, before)
			is.True(log.len() > 1) // lifecycle line and the spurious report
		})
		t.Run("disabled", func(t *testing.T) {
			is := is.New(t)
			h := newHart(t, Config{Mode: mode})
			calls := 0
			is.NoErr(h.Bind(6, func() { calls++ }))
			is.NoErr(h.EnableInterrupts())

			is.NoErr(h.Raise(6))
			is.NoErr(h.Step())
			is.Equal(calls, 0)
			is.Equal(h.Spurious(6), uint64(1))
			is.Equal(h.SpuriousTotal(), uint64(1))
		})
		t.Run("disabled after enable", func(t *testing.T) {
			is := is.New(t)
			h := newHart(t, Config{Mode: mode})
			calls := 0
			is.NoErr(h.Enable(6, 4))
			is.NoErr(h.Bind(6, func() { calls++ }))
			is.NoErr(h.Disable(6))
			is.NoErr(h.EnableInterrupts())

			is.NoErr(h.Raise(6))
			is.NoErr(h.Step())
			is.Equal(calls, 0)
			is.Equal(h.Spurious(6), uint64(1))
		})
	})
}

func TestRebind(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})
		var got []string
		is.NoErr(h.Enable(4, 1))
		is.NoErr(h.Bind(4, func() { got = append(got, "first") }))
		is.NoErr(h.Bind(4, func() { got = append(got, "second") }))
		is.NoErr(h.EnableInterrupts())

		is.NoErr(h.Raise(4))
		is.NoErr(h.Step())
		is.Equal(got, []string{"second"})

		is.NoErr(h.Bind(4, nil))
		is.NoErr(h.Raise(4))
		is.NoErr(h.Step())
		is.Equal(len(got), 1)
		is.Equal(h.Spurious(4), uint64(1))
	})
}

func TestArbitrationOrder(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})
		var order []int
		for line, p := range map[int]Priority{2: 1, 7: 3, 4: 3, 9: 2} {
			line := line
			is.NoErr(h.Enable(line, p))
			is.NoErr(h.Bind(line, func() { order = append(order, line) }))
		}
		for _, line := range []int{2, 7, 4, 9} {
			is.NoErr(h.Raise(line))
		}
		is.NoErr(h.EnableInterrupts())
		is.Equal(order, []int{4, 7, 9, 2})
	})
}

func TestPreemption(t *testing.T) {
	run := func(t *testing.T, mode Mode, preempt bool) ([]string, int) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode, Preemption: preempt})
		var trace []string
		var nested int
		is.NoErr(h.Enable(2, 1))
		is.NoErr(h.Enable(9, 5))
		is.NoErr(h.Enable(10, 1))
		is.NoErr(h.Bind(2, func() {
			trace = append(trace, "low")
			is.NoErr(h.Raise(10)) // same priority: never nests
			is.NoErr(h.Raise(9))
			is.NoErr(h.Step())
			trace = append(trace, "low done")
		}))
		is.NoErr(h.Bind(9, func() {
			trace = append(trace, "high")
			nested = h.Depth()
		}))
		is.NoErr(h.Bind(10, func() { trace = append(trace, "peer") }))
		is.NoErr(h.EnableInterrupts())

		is.NoErr(h.Raise(2))
		is.NoErr(h.Step())
		is.Equal(h.State(), Running)
		is.Equal(h.Depth(), 0)
		return trace, nested
	}

	eachMode(t, func(t *testing.T, mode Mode) {
		t.Run("on", func(t *testing.T) {
			is := is.New(t)
			trace, nested := run(t, mode, true)
			is.Equal(trace, []string{"low", "high", "low done", "peer"})
			is.Equal(nested, 2)
		})
		t.Run("off", func(t *testing.T) {
			is := is.New(t)
			trace, nested := run(t, mode, false)
			is.Equal(trace, []string{"low", "low done", "high", "peer"})
			is.Equal(nested, 1)
		})
	})
}

func TestNoReentry(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode, Preemption: true})
		calls, maxDepth := 0, 0
		is.NoErr(h.Enable(3, 2))
		is.NoErr(h.Bind(3, func() {
			calls++
			if d := h.Depth(); d > maxDepth {
				maxDepth = d
			}
			if calls == 1 {
				is.NoErr(h.Raise(3))
				is.NoErr(h.Step())
			}
		}))
		is.NoErr(h.EnableInterrupts())

		is.NoErr(h.Raise(3))
		is.NoErr(h.Step())
		is.Equal(calls, 2)
		is.Equal(maxDepth, 1)
	})
}

func TestThresholdRestored(t *testing.T) {
	is := is.New(t)
	h := newHart(t, Config{Preemption: true})
	var inside uint32
	is.NoErr(h.Enable(8, 6))
	is.NoErr(h.Bind(8, func() { inside = h.intc.thresh.Read() }))
	is.NoErr(h.EnableInterrupts())

	is.NoErr(h.Raise(8))
	is.NoErr(h.Step())
	is.Equal(inside, uint32(6))
	is.Equal(h.intc.thresh.Read(), uint32(0))
}

func TestDefaultExceptionHalts(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})
		pc := h.PC

		err := h.Exec(func() { h.Fault(CauseIllegalInstr, 0xbad) })
		var fault *FaultError
		is.True(errors.As(err, &fault))
		is.Equal(*fault, FaultError{Cause: CauseIllegalInstr, PC: pc, Tval: 0xbad})
		is.Equal(h.State(), Halted)
		is.Equal(h.Err(), err)

		// a halted hart stays halted
		is.Equal(h.Step(), err)
		is.Equal(h.Exec(func() {}), err)
	})
}

func TestExceptionHandlerResumes(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})
		var seen []Cause
		h.SetExceptionHandler(func(h *Hart, f *Frame) {
			seen = append(seen, f.Cause)
			is.Equal(h.Mcause(), f.Cause)
			is.Equal(h.Mtval(), uint32(0x77))
			f.PC += 4
		})
		pc := h.PC
		ran := false

		err := h.Exec(func() {
			h.Fault(CauseBreakpoint, 0x77)
			ran = true
		})
		is.NoErr(err)
		is.True(!ran) // rest of the instruction abandoned
		is.Equal(seen, []Cause{CauseBreakpoint})
		is.Equal(h.PC, pc+4)
		is.Equal(h.State(), Running)

		is.NoErr(h.Exec(func() {}))
		is.Equal(h.PC, pc+8)
	})
}

func TestFaultInHandler(t *testing.T) {
	eachMode(t, func(t *testing.T, mode Mode) {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})
		var depth int
		h.SetExceptionHandler(func(h *Hart, f *Frame) {
			depth = h.Depth()
			f.PC += 4
		})
		is.NoErr(h.Enable(12, 3))
		is.NoErr(h.Bind(12, func() { h.Load(0) }))
		is.NoErr(h.EnableInterrupts())
		before := h.Context

		is.NoErr(h.Raise(12))
		is.NoErr(h.Step())
		is.Equal(depth, 2)
		is.Equal(h.Context, before)
		is.Equal(h.State(), Running)
		is.True(h.InterruptsEnabled())
	})
}

func TestDoubleFaultHalts(t *testing.T) {
	is := is.New(t)
	h := newHart(t, Config{})
	h.SetExceptionHandler(func(h *Hart, f *Frame) {
		h.Fault(CauseEcallM, 0)
	})

	err := h.Exec(func() { h.Fault(CauseBreakpoint, 0) })
	var fault *FaultError
	is.True(errors.As(err, &fault))
	is.Equal(fault.Cause, CauseEcallM)
	is.Equal(h.State(), Halted)
}

func TestSetExceptionHandlerNil(t *testing.T) {
	is := is.New(t)
	h := newHart(t, Config{})
	h.SetExceptionHandler(func(h *Hart, f *Frame) { f.PC += 4 })
	h.SetExceptionHandler(nil)

	err := h.Exec(func() { h.Fault(CauseBreakpoint, 0) })
	is.True(err != nil)
}

func TestFaultWhileSampling(t *testing.T) {
	setup := func(t *testing.T, mode Mode) *Hart {
		is := is.New(t)
		h := newHart(t, Config{Mode: mode})
		is.NoErr(h.Enable(3, 1))
		is.NoErr(h.Bind(3, func() { h.Fault(CauseIllegalInstr, 0) }))
		return h
	}
	refused := func(is *is.I, h *Hart) {
		err := h.Err()
		is.True(err != nil)
		is.Equal(h.Enable(4, 1), err)
		is.Equal(h.Disable(3), err)
		is.Equal(h.SetPriority(3, 2), err)
		is.Equal(h.Bind(4, func() {}), err)
		is.Equal(h.Map(h.chip.Sources["UART0"], 4), err)
		is.True(!h.Snapshot()[3].Enabled) // line 4 untouched
	}

	eachMode(t, func(t *testing.T, mode Mode) {
		t.Run("enable interrupts", func(t *testing.T) {
			is := is.New(t)
			h := setup(t, mode)
			is.NoErr(h.Raise(3))

			err := h.EnableInterrupts()
			var fault *FaultError
			is.True(errors.As(err, &fault))
			is.Equal(fault.Cause, CauseIllegalInstr)
			is.Equal(h.State(), Halted)
			is.Equal(h.Depth(), 0)
			is.Equal(h.Err(), err)
			refused(is, h)
		})
		t.Run("exit", func(t *testing.T) {
			is := is.New(t)
			h := setup(t, mode)
			is.NoErr(h.EnableInterrupts())

			tok := h.Enter()
			is.NoErr(h.Raise(3))
			h.Exit(tok)
			is.Equal(h.State(), Halted)
			is.Equal(h.Depth(), 0)
			is.True(!h.InCritical())
			refused(is, h)
		})
	})
}
