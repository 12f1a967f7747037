package rvhal

import (
	"context"
	"fmt"
	"sync/atomic"
)

// MaxLines is the width of the CPU interrupt line space. Line 0 does not
// exist; chips use lines 1 through Chip.Lines.
const MaxLines = 32

var (
	mstatusMIE  = Bit(3)
	mstatusMPIE = Bit(7)
	mtvecMode   = Field[uint8]{Shift: 0, Width: 2}
)

// State is the hart's position in the trap state machine.
type State int

const (
	Running State = iota // normal execution
	Trapped              // inside one or more trap handlers
	Halted               // stopped by an unhandled exception
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Trapped:
		return "trapped"
	case Halted:
		return "halted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Context is the architectural state a trap must preserve.
type Context struct {
	PC uint32
	X  [32]uint32 // x0-x31
}

// Hart is a single RISC-V hardware thread together with the interrupt
// controller and register blocks wired to it.
//
// A Hart is driven by one goroutine, the core. Raise and AssertSource are
// hardware lines and may be called from any goroutine; every other method
// must be called from the core.
type Hart struct {
	Context

	mstatus, mtvec, mepc, mcause, mtval uint32
	mtvecLocked                         bool

	chip    Chip
	cfg     Config
	log     Logger
	bus     Bus
	sources map[Source]string

	intc  *intc
	sys   *system
	timer *Systimer

	entry       entry
	onException ExceptionHandler
	inException bool

	handlers  [MaxLines]Handler
	spurious  [MaxLines]atomic.Uint64
	inService uint32

	state   State
	frames  []*Frame
	csDepth int
	guarded int
	fault   *FaultError

	wake chan struct{}
}

// New builds a hart for cfg, installs the default exception handler and
// publishes the trap vector base.
func New(cfg Config) (*Hart, error) {
	if cfg.Chip == "" {
		cfg.Chip = DefaultChip
	}
	chip, err := LookupChip(cfg.Chip)
	if err != nil {
		return nil, err
	}
	if cfg.Mode == ModeDefault {
		cfg.Mode = buildMode
	}
	if cfg.Mode == ModeVectored && !chip.Has("vectored") {
		return nil, fmt.Errorf("%s: vectored mode: %w", chip.Name, ErrUnsupported)
	}
	if cfg.Log == nil {
		cfg.Log = nopLogger{}
	}

	h := &Hart{
		chip:        chip,
		cfg:         cfg,
		log:         cfg.Log,
		sources:     make(map[Source]string, len(chip.Sources)),
		onException: defaultExceptionHandler,
		wake:        make(chan struct{}, 1),
	}
	for name, src := range chip.Sources {
		h.sources[src] = name
	}
	h.intc = newIntc(h)
	h.sys = newSystem(h)
	h.timer = newSystimer(h)

	switch cfg.Mode {
	case ModeVectored:
		h.entry = new(vectored)
	default:
		h.entry = direct{}
	}

	h.Reset()

	base := cfg.VectorBase
	if base == 0 {
		base = chip.VectorBase
	}
	if err := h.WriteTrapVector(base); err != nil {
		return nil, err
	}
	h.log.Printf("rvhal: %s hart up, %v mode, mtvec %#08x, pc %#08x", chip.Name, cfg.Mode, h.mtvec, h.PC)
	return h, nil
}

// Reset returns the hart to its power-on state. The trap vector base
// survives: once published it never moves.
func (h *Hart) Reset() {
	h.Context = Context{PC: h.chip.ResetPC.Loader}
	if h.cfg.DirectBoot {
		h.PC = h.chip.ResetPC.Direct
	}
	h.mstatus, h.mepc, h.mcause, h.mtval = 0, 0, 0, 0
	h.frames = nil
	h.state = Running
	h.csDepth = 0
	h.inService = 0
	h.inException = false
	h.fault = nil
}

// WriteTrapVector publishes the trap vector base together with the mode
// bits of the hart's dispatch strategy. It succeeds once.
func (h *Hart) WriteTrapVector(base uint32) error {
	if h.mtvecLocked {
		return ErrVectorBaseLocked
	}
	if h.chip.VectorAlign != 0 && base%h.chip.VectorAlign != 0 {
		return fmt.Errorf("mtvec %#08x: %w", base, ErrVectorMisaligned)
	}
	h.mtvec = mtvecMode.Set(base, h.entry.mode())
	h.mtvecLocked = true
	h.entry.publish(h)
	return nil
}

// TrapVector returns the published trap vector base and mode.
func (h *Hart) TrapVector() (base uint32, mode Mode) {
	return h.mtvec &^ 3, h.cfg.Mode
}

// SetExceptionHandler overrides the exception handler. nil restores the
// default, which reports the fault and halts.
func (h *Hart) SetExceptionHandler(fn ExceptionHandler) {
	if fn == nil {
		fn = defaultExceptionHandler
	}
	h.onException = fn
}

func (h *Hart) Chip() Chip { return h.chip }
func (h *Hart) Mode() Mode { return h.cfg.Mode }
func (h *Hart) State() State { return h.state }
func (h *Hart) Depth() int { return len(h.frames) }
func (h *Hart) Mcause() Cause { return Cause(h.mcause) }
func (h *Hart) Mepc() uint32 { return h.mepc }
func (h *Hart) Mtval() uint32 { return h.mtval }
func (h *Hart) Mstatus() uint32 { return h.mstatus }

// Err returns the fault that halted the hart, if any.
func (h *Hart) Err() error {
	if h.fault == nil {
		return nil
	}
	return h.fault
}

// Step is an instruction boundary: pending interrupts that may be taken
// are taken, highest priority first.
func (h *Hart) Step() error {
	return h.boundary(h.pollInterrupts)
}

// Exec runs fn as one instruction of program code at PC. A synchronous
// exception raised by fn (through Fault, Load or Store) abandons the rest
// of fn, traps to the exception handler and resumes at the saved mepc.
// Otherwise PC advances past the instruction.
func (h *Hart) Exec(fn func()) error {
	return h.boundary(func() {
		if !h.protect(fn) {
			h.PC += 4
		}
	})
}

// Run idles the hart like WFI, servicing interrupts as lines are raised,
// until ctx is done or the hart halts.
func (h *Hart) Run(ctx context.Context) error {
	for {
		if err := h.Step(); err != nil {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.wake:
		}
	}
}

// Fault raises a synchronous exception. It must be called from code run
// by Exec or from a handler.
func (h *Hart) Fault(cause Cause, tval uint32) {
	if cause.IsInterrupt() {
		panic(fmt.Sprintf("rvhal: Fault with %v", cause))
	}
	panic(trap{cause, tval})
}

// Load reads a word from the bus on behalf of program code.
func (h *Hart) Load(addr uint32) uint32 { return h.bus.read32(addr) }

// Store writes a word to the bus on behalf of program code.
func (h *Hart) Store(addr uint32, v uint32) { h.bus.write32(addr, v) }

// boundary is where the core's trap machinery meets its caller. The
// outermost boundary turns a halt into an error; nested ones just trap.
func (h *Hart) boundary(fn func()) (err error) {
	if h.state == Halted {
		return h.fault
	}
	if h.guarded > 0 {
		h.protect(fn)
		return nil
	}
	h.guarded++
	defer func() {
		h.guarded--
		if r := recover(); r != nil {
			hl, ok := r.(halt)
			if !ok {
				panic(r)
			}
			// frames abandoned by the halt are never returned to
			h.frames = nil
			h.inService = 0
			h.inException = false
			err = hl.err
		}
	}()
	h.protect(fn)
	return nil
}

// protect runs fn and converts a synchronous exception raised inside it
// into a trap. Critical sections fn left open are abandoned. It reports
// whether a trap was taken.
func (h *Hart) protect(fn func()) (trapped bool) {
	depth, mie := h.csDepth, mstatusMIE.Get(h.mstatus)
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		t, ok := r.(trap)
		if !ok {
			panic(r)
		}
		h.take(t.cause, t.tval)
		h.csDepth = depth
		h.mstatus = mstatusMIE.Set(h.mstatus, mie)
		trapped = true
	}()
	fn()
	return false
}

// sample takes pending interrupts from outside a handler, for example when
// a critical section ends.
func (h *Hart) sample() error {
	return h.boundary(h.pollInterrupts)
}

func (h *Hart) halt(err *FaultError) {
	h.state = Halted
	h.fault = err
	panic(halt{err})
}

// pollInterrupts takes interrupts until none is deliverable.
func (h *Hart) pollInterrupts() {
	for mstatusMIE.Get(h.mstatus) == 1 {
		line, ok := h.arbitrate()
		if !ok {
			return
		}
		h.take(InterruptCause(line), 0)
	}
}

// arbitrate picks the pending line to take next: highest priority first,
// lowest line number among equals. Inside a handler only strictly higher
// priorities qualify, and only when preemption is on.
func (h *Hart) arbitrate() (int, bool) {
	if h.state == Trapped && !h.cfg.Preemption {
		return 0, false
	}
	pending := h.intc.pending() &^ h.inService
	if pending == 0 {
		return 0, false
	}
	thresh := Priority(h.intc.thresh.Read())
	best, bestPri := 0, Priority(0)
	for line := 1; line <= h.chip.Lines; line++ {
		if pending&(1<<line) == 0 {
			continue
		}
		p := h.intc.priority(line)
		if h.state == Trapped && p <= thresh {
			continue
		}
		if best == 0 || p > bestPri {
			best, bestPri = line, p
		}
	}
	return best, best != 0
}

// take performs trap entry, runs the entry point mtvec selects and
// returns with mret.
func (h *Hart) take(cause Cause, tval uint32) {
	f := &Frame{
		Context:   h.Context,
		Cause:     cause,
		Tval:      tval,
		Mstatus:   h.mstatus,
		Threshold: h.intc.thresh.Read(),
	}
	h.frames = append(h.frames, f)
	h.state = Trapped

	h.mepc, h.mcause, h.mtval = h.PC, uint32(cause), tval
	h.mstatus = mstatusMPIE.Set(h.mstatus, mstatusMIE.Get(h.mstatus))
	h.mstatus = mstatusMIE.Set(h.mstatus, 0)
	h.PC = h.trapPC(cause)

	h.entry.vector(h, h.PC)
	h.mret()
}

// trapPC is the address the hardware jumps to for cause.
func (h *Hart) trapPC(cause Cause) uint32 {
	base := h.mtvec &^ 3
	if mtvecMode.Get(h.mtvec) == 1 && cause.IsInterrupt() {
		return base + 4*cause.Code()
	}
	return base
}

func (h *Hart) mret() {
	n := len(h.frames) - 1
	f := h.frames[n]
	h.frames[n] = nil
	h.frames = h.frames[:n]

	h.intc.thresh.Write(f.Threshold)
	h.Context = f.Context
	h.mepc = f.PC
	h.mstatus = f.Mstatus
	if n == 0 {
		h.state = Running
	}
}
