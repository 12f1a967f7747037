package rvhal

import (
	"fmt"
	"sync/atomic"
)

// Device is a block of memory mapped registers. Offsets are relative to
// the block's base address and always word aligned.
type Device interface {
	read32(off uint32) uint32
	write32(off uint32, v uint32)
}

type region struct {
	base, size uint32
	name       string
	dev        Device
}

// Bus is the hart's view of the peripheral address space. The region list
// is fixed once the hart is built.
type Bus struct {
	regions []region
}

func (b *Bus) attach(name string, base, size uint32, dev Device) {
	for _, r := range b.regions {
		if base < r.base+r.size && r.base < base+size {
			panic(fmt.Sprintf("bus: %s at %#08x overlaps %s", name, base, r.name))
		}
	}
	b.regions = append(b.regions, region{base: base, size: size, name: name, dev: dev})
}

func (b *Bus) find(addr uint32) (Device, uint32, bool) {
	for _, r := range b.regions {
		if addr >= r.base && addr-r.base < r.size {
			return r.dev, addr - r.base, true
		}
	}
	return nil, 0, false
}

// read32 reads addr from the bus.
func (b *Bus) read32(addr uint32) uint32 {
	if addr&3 != 0 {
		panic(trap{CauseLoadMisaligned, addr})
	}
	dev, off, ok := b.find(addr)
	if !ok {
		panic(trap{CauseLoadAccessFault, addr})
	}
	return dev.read32(off)
}

// write32 writes v to addr on the bus.
func (b *Bus) write32(addr uint32, v uint32) {
	if addr&3 != 0 {
		panic(trap{CauseStoreMisaligned, addr})
	}
	dev, off, ok := b.find(addr)
	if !ok {
		panic(trap{CauseStoreAccessFault, addr})
	}
	dev.write32(off, v)
}

// regfile is plain register storage with no side effects. Words are
// atomic because peripherals update them from their own goroutines.
type regfile []atomic.Uint32

func newRegfile(size uint32) regfile { return make(regfile, size/4) }

func (r regfile) read32(off uint32) uint32     { return r[off>>2].Load() }
func (r regfile) write32(off uint32, v uint32) { r[off>>2].Store(v) }

func (r regfile) or(off uint32, bits uint32) (old uint32) {
	w := &r[off>>2]
	for {
		old = w.Load()
		if w.CompareAndSwap(old, old|bits) {
			return old
		}
	}
}

func (r regfile) andNot(off uint32, bits uint32) (old uint32) {
	w := &r[off>>2]
	for {
		old = w.Load()
		if w.CompareAndSwap(old, old&^bits) {
			return old
		}
	}
}
