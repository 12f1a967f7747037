package rvhal

import (
	"fmt"
	"sync/atomic"
)

// Source is a peripheral interrupt source number, fixed by the silicon.
type Source uint32

// Interrupt controller register offsets.
const (
	intcMap     = 0x000 // INTR_MAP_n, one word per source
	intcEnable  = 0x104
	intcClear   = 0x10c
	intcEIP     = 0x110 // pending lines, read only
	intcPri     = 0x114 // CPU_INT_PRI_n, one word per line
	intcThresh  = 0x194
	intcSize    = 0x800
	intcPriMask = 0xf
)

// intcDevice is the register file of the interrupt controller. Lines are
// raised by peripherals on their own goroutines, so pending state is only
// ever changed with atomic operations.
type intcDevice struct {
	regs regfile
}

func (d *intcDevice) read32(off uint32) uint32 {
	switch {
	case off == intcClear:
		return 0
	default:
		return d.regs.read32(off)
	}
}

func (d *intcDevice) write32(off uint32, v uint32) {
	switch {
	case off == intcClear:
		d.regs.andNot(intcEIP, v)
	case off == intcEIP:
		// read only
	case off == intcEnable:
		d.regs.write32(off, v&^1)
	case off >= intcPri && off < intcThresh:
		d.regs.write32(off, v&intcPriMask)
	case off == intcThresh:
		d.regs.write32(off, v&intcPriMask)
	default:
		d.regs.write32(off, v)
	}
}

// intc is the interrupt controller block: the interrupt matrix that routes
// peripheral sources to CPU lines, and the per-line enable, priority and
// pending registers the registry is built on. It is read from trap
// context, so its block is guarded.
type intc struct {
	Block
	dev *intcDevice

	enable Register
	clear  Register
	eip    Register
	thresh Register
	pris   [MaxLines]Register
	routes [intcEnable / 4]Register // one per source

	unmapped atomic.Uint64
}

func newIntc(h *Hart) *intc {
	c := &intc{
		Block: Block{Name: "INTERRUPT_CORE0", Base: h.chip.Blocks.Intc, bus: &h.bus, guard: h},
		dev:   &intcDevice{regs: newRegfile(intcSize)},
	}
	h.bus.attach(c.Name, c.Base, intcSize, c.dev)
	c.enable = c.reg(intcEnable, "CPU_INT_ENABLE")
	c.clear = c.reg(intcClear, "CPU_INT_CLEAR")
	c.eip = c.reg(intcEIP, "CPU_INT_EIP_STATUS")
	c.thresh = c.reg(intcThresh, "CPU_INT_THRESH")
	for line := range c.pris {
		c.pris[line] = c.reg(intcPri+4*uint32(line), fmt.Sprintf("CPU_INT_PRI_%d", line))
	}
	for src := range c.routes {
		c.routes[src] = c.reg(intcMap+4*uint32(src), fmt.Sprintf("INTR_MAP_%d", src))
	}
	return c
}

func (c *intc) pri(line int) Register { return c.pris[line] }

// route returns the map register of src. Callers check src against the
// chip's source table first.
func (c *intc) route(src Source) Register { return c.routes[src] }

func (c *intc) pending() uint32 { return c.eip.Read() }

func (c *intc) enabled(line int) bool { return c.enable.Read()&(1<<line) != 0 }

func (c *intc) priority(line int) Priority { return Priority(c.pri(line).Read()) }

// raise latches line as pending. The request stays pending until the
// dispatcher acknowledges it or it is cleared.
func (c *intc) raise(line int) { c.dev.regs.or(intcEIP, 1<<line) }

// ack clears the pending bit of a line about to be serviced.
func (c *intc) ack(line int) { c.clear.Write(1 << line) }
