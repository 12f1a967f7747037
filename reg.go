package rvhal

import "golang.org/x/exp/constraints"

// Field names a run of bits inside a 32 bit register.
type Field[T constraints.Unsigned] struct {
	Shift, Width uint8
}

// Bit returns a single bit field.
func Bit(n uint8) Field[uint8] { return Field[uint8]{Shift: n, Width: 1} }

func (f Field[T]) mask() uint32 { return (uint32(1)<<f.Width - 1) << f.Shift }

// Get decodes the field from raw.
func (f Field[T]) Get(raw uint32) T { return T((raw & f.mask()) >> f.Shift) }

// Set returns raw with the field replaced by v. Bits of v wider than the
// field are discarded.
func (f Field[T]) Set(raw uint32, v T) uint32 {
	return raw&^f.mask() | (uint32(v)<<f.Shift)&f.mask()
}

// guard makes a register update atomic with respect to traps.
type guard interface {
	Enter() *Token
	Exit(*Token)
}

// Block is a peripheral register block. A block touched from trap context
// carries a guard, and every Modify of its registers runs inside a
// critical section. Blocks only touched from normal execution have none.
type Block struct {
	Name  string
	Base  uint32
	bus   *Bus
	guard guard
}

func (b *Block) reg(off uint32, name string) Register {
	return Register{block: b, off: off, name: name}
}

func (b *Block) clearOnRead(off uint32, name string) Register {
	return Register{block: b, off: off, name: name, ClearOnRead: true}
}

// Register is a descriptor for one memory mapped register. Descriptors are
// only created by the block that owns them, so an arbitrary address can
// never reach the bus through a Register.
type Register struct {
	block *Block
	off   uint32
	name  string

	// ClearOnRead registers reset some or all bits as a side effect of
	// Read. Modify on such a register loses those bits.
	ClearOnRead bool
}

// Addr returns the register's physical address.
func (r Register) Addr() uint32 { return r.block.Base + r.off }

func (r Register) String() string { return r.block.Name + "." + r.name }

// Read returns the raw register value.
func (r Register) Read() uint32 { return r.block.bus.read32(r.Addr()) }

// Write stores a full register value.
func (r Register) Write(v uint32) { r.block.bus.write32(r.Addr(), v) }

// Modify performs read-mask-write with fn computing the new value.
func (r Register) Modify(fn func(uint32) uint32) {
	g := r.block.guard
	if g == nil {
		r.Write(fn(r.Read()))
		return
	}
	tok := g.Enter()
	r.Write(fn(r.Read()))
	g.Exit(tok)
}

// SetBits sets the bits in mask.
func (r Register) SetBits(mask uint32) {
	r.Modify(func(v uint32) uint32 { return v | mask })
}

// ClearBits clears the bits in mask.
func (r Register) ClearBits(mask uint32) {
	r.Modify(func(v uint32) uint32 { return v &^ mask })
}
