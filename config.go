package rvhal

import "fmt"

// DefaultChip is used when Config.Chip is empty.
const DefaultChip = "esp32c3"

// Mode selects how traps reach their handlers.
type Mode uint8

const (
	// ModeDefault resolves to the mode selected at build time: vectored
	// when built with the vectored tag, direct otherwise.
	ModeDefault Mode = iota

	// ModeDirect funnels every trap through one dispatcher entry.
	ModeDirect

	// ModeVectored gives each interrupt line its own table slot.
	ModeVectored
)

func (m Mode) String() string {
	switch m {
	case ModeDefault:
		return "default"
	case ModeDirect:
		return "direct"
	case ModeVectored:
		return "vectored"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// ParseMode converts a mode name as printed by Mode.String. The empty
// string selects ModeDefault.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "default":
		return ModeDefault, nil
	case "direct":
		return ModeDirect, nil
	case "vectored":
		return ModeVectored, nil
	default:
		return ModeDefault, fmt.Errorf("mode %q: %w", s, ErrUnsupported)
	}
}

// Logger receives diagnostics from the core: spurious interrupts,
// fatal exceptions, lifecycle events.
type Logger interface {
	Printf(format string, v ...any)
}

type nopLogger struct{}

func (nopLogger) Printf(string, ...any) {}

// Config selects the chip variant and the system-wide trap policy.
type Config struct {
	Chip string
	Mode Mode

	// Preemption lets a strictly higher priority interrupt preempt a
	// running handler. When false, handlers run to completion with
	// interrupts masked.
	Preemption bool

	// DirectBoot starts from flash without a second stage loader. It
	// only changes the reset PC.
	DirectBoot bool

	// VectorBase overrides the chip's default trap vector base.
	VectorBase uint32

	Log Logger
}
