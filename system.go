package rvhal

import "fmt"

// Peripheral is a peripheral whose clock and reset are controlled by the
// SYSTEM block.
type Peripheral int

const (
	Spi2 Peripheral = iota
	Spi3
	I2cExt0
	Rmt
	Ledc
	ApbSarAdc
	Gdma
)

var peripherals = [...]struct {
	name string
	en1  bool // lives in PERIP_CLK_EN1/PERIP_RST_EN1
	bit  uint8
}{
	Spi2:      {"spi2", false, 6},
	Spi3:      {"spi3", false, 16},
	I2cExt0:   {"i2c_ext0", false, 7},
	Rmt:       {"rmt", false, 9},
	Ledc:      {"ledc", false, 11},
	ApbSarAdc: {"apb_saradc", false, 28},
	Gdma:      {"gdma", true, 6},
}

func (p Peripheral) String() string {
	if p < 0 || int(p) >= len(peripherals) {
		return fmt.Sprintf("peripheral(%d)", int(p))
	}
	return peripherals[p].name
}

// SYSTEM register offsets.
const (
	sysClkEn0 = 0x10
	sysClkEn1 = 0x14
	sysRstEn0 = 0x18
	sysRstEn1 = 0x1c
	sysSize   = 0x1000
)

// system is the SYSTEM block. It is never touched from trap context, so
// its registers are modified without a critical section.
type system struct {
	Block
	clkEn0, clkEn1 Register
	rstEn0, rstEn1 Register
}

func newSystem(h *Hart) *system {
	s := &system{
		Block: Block{Name: "SYSTEM", Base: h.chip.Blocks.System, bus: &h.bus},
	}
	regs := newRegfile(sysSize)
	h.bus.attach(s.Name, s.Base, sysSize, regs)
	s.clkEn0 = s.reg(sysClkEn0, "PERIP_CLK_EN0")
	s.clkEn1 = s.reg(sysClkEn1, "PERIP_CLK_EN1")
	s.rstEn0 = s.reg(sysRstEn0, "PERIP_RST_EN0")
	s.rstEn1 = s.reg(sysRstEn1, "PERIP_RST_EN1")

	// Peripherals come out of power-on reset held in reset.
	s.rstEn0.Write(^uint32(0))
	s.rstEn1.Write(^uint32(0))
	return s
}

func (s *system) regs(p Peripheral) (clk, rst Register, mask uint32) {
	d := peripherals[p]
	if d.en1 {
		return s.clkEn1, s.rstEn1, 1 << d.bit
	}
	return s.clkEn0, s.rstEn0, 1 << d.bit
}

// EnablePeripheral ungates the peripheral's clock and releases its reset.
func (h *Hart) EnablePeripheral(p Peripheral) error {
	if p < 0 || int(p) >= len(peripherals) {
		return ErrUnknownPeripheral
	}
	if !h.chip.hasPeripheral(p.String()) {
		return fmt.Errorf("%s on %s: %w", p, h.chip.Name, ErrUnsupported)
	}
	clk, rst, mask := h.sys.regs(p)
	clk.SetBits(mask)
	rst.ClearBits(mask)
	return nil
}

// PeripheralEnabled reports whether p is clocked and out of reset.
func (h *Hart) PeripheralEnabled(p Peripheral) bool {
	if p < 0 || int(p) >= len(peripherals) {
		return false
	}
	clk, rst, mask := h.sys.regs(p)
	return clk.Read()&mask != 0 && rst.Read()&mask == 0
}
