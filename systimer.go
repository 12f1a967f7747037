package rvhal

import (
	"context"
	"time"
)

// SYSTIMER register offsets.
const (
	stConf   = 0x00
	stIntEna = 0x64
	stIntRaw = 0x68
	stIntClr = 0x6c
	stIntSt  = 0x70
	stSize   = 0x100

	stWorkEn = 1 << 0 // CONF: unit 0 counting
	stTarget = 1 << 0 // INT_*: target 0
)

type systimerDevice struct {
	regs regfile
}

func (d *systimerDevice) read32(off uint32) uint32 {
	switch off {
	case stIntSt:
		ena := d.regs.read32(stIntEna)
		return d.regs.andNot(stIntRaw, ena) & ena
	case stIntClr:
		return 0
	default:
		return d.regs.read32(off)
	}
}

func (d *systimerDevice) write32(off uint32, v uint32) {
	switch off {
	case stIntClr:
		d.regs.andNot(stIntRaw, v)
	case stIntSt:
		// read only
	default:
		d.regs.write32(off, v)
	}
}

// Systimer is the system timer's target 0 comparator, reduced to a
// periodic alarm. Each alarm latches INT_RAW and, when enabled, asserts
// SYSTIMER_TARGET0 through the interrupt matrix.
type Systimer struct {
	Block
	h   *Hart
	dev *systimerDevice
	src Source

	conf, intEna, intRaw, intClr Register

	// IntSt reports raw alarms masked by INT_ENA. Reading it clears the
	// bits it returns, which is how a handler acknowledges the alarm.
	IntSt Register
}

func newSystimer(h *Hart) *Systimer {
	t := &Systimer{
		Block: Block{Name: "SYSTIMER", Base: h.chip.Blocks.Systimer, bus: &h.bus, guard: h},
		h:     h,
		dev:   &systimerDevice{regs: newRegfile(stSize)},
		src:   h.chip.Sources["SYSTIMER_TARGET0"],
	}
	h.bus.attach(t.Name, t.Base, stSize, t.dev)
	t.conf = t.reg(stConf, "CONF")
	t.intEna = t.reg(stIntEna, "INT_ENA")
	t.intRaw = t.reg(stIntRaw, "INT_RAW")
	t.intClr = t.reg(stIntClr, "INT_CLR")
	t.IntSt = t.clearOnRead(stIntSt, "INT_ST")
	return t
}

// Systimer returns the hart's system timer.
func (h *Hart) Systimer() *Systimer { return h.timer }

// Source returns the interrupt source the alarm asserts.
func (t *Systimer) Source() Source { return t.src }

// Enable starts or stops the counter and its interrupt.
func (t *Systimer) Enable(on bool) {
	if on {
		t.intClr.Write(stTarget)
		t.conf.SetBits(stWorkEn)
		t.intEna.SetBits(stTarget)
		return
	}
	t.intEna.ClearBits(stTarget)
	t.conf.ClearBits(stWorkEn)
}

// Pending reports whether an alarm has latched, regardless of INT_ENA.
func (t *Systimer) Pending() bool { return t.intRaw.Read()&stTarget != 0 }

// Start fires the alarm every period until ctx is done.
func (t *Systimer) Start(ctx context.Context, period time.Duration) {
	go func() {
		ticks := time.NewTicker(period)
		defer ticks.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticks.C:
				t.tick()
			}
		}
	}()
}

func (t *Systimer) tick() {
	regs := t.dev.regs
	if regs.read32(stConf)&stWorkEn == 0 {
		return
	}
	regs.or(stIntRaw, stTarget)
	if regs.read32(stIntEna)&stTarget != 0 {
		t.h.AssertSource(t.src)
	}
}
