package rvhal

import "fmt"

// Priority is an interrupt priority level. 0 means the line cannot
// interrupt; usable levels run from 1 to Chip.Priorities.
type Priority uint8

// Handler services one interrupt line. Shared mutable state a handler
// touches must also be accessed from normal execution only inside a
// critical section.
type Handler func()

// LineState is a point in time view of one CPU interrupt line.
type LineState struct {
	Line     int
	Enabled  bool
	Priority Priority
	Bound    bool
	Pending  bool
	Spurious uint64
}

func (h *Hart) checkLine(line int) error {
	if line < 1 || line > h.chip.Lines {
		return ErrInvalidSource
	}
	return nil
}

func (h *Hart) checkPriority(p Priority) error {
	if p < 1 || int(p) > h.chip.Priorities {
		return ErrInvalidPriority
	}
	return nil
}

// Enable arms line at priority p. If the line is already pending it may
// be taken as soon as the call returns. Registry changes are refused once
// the hart has halted; the fault that halted it is returned instead.
func (h *Hart) Enable(line int, p Priority) error {
	if err := h.Err(); err != nil {
		return err
	}
	if err := h.checkLine(line); err != nil {
		return err
	}
	if err := h.checkPriority(p); err != nil {
		return err
	}
	h.Critical(func() {
		h.intc.pri(line).Write(uint32(p))
		h.intc.enable.SetBits(1 << line)
		h.entry.publish(h)
	})
	return h.Err()
}

// Disable disarms line. A disabled line always has priority 0, so enabling
// and then disabling a line leaves no trace in the registry.
func (h *Hart) Disable(line int) error {
	if err := h.Err(); err != nil {
		return err
	}
	if err := h.checkLine(line); err != nil {
		return err
	}
	h.Critical(func() {
		h.intc.enable.ClearBits(1 << line)
		h.intc.pri(line).Write(0)
		h.entry.publish(h)
	})
	return h.Err()
}

// SetPriority changes the priority of an enabled line.
func (h *Hart) SetPriority(line int, p Priority) error {
	if err := h.Err(); err != nil {
		return err
	}
	if err := h.checkLine(line); err != nil {
		return err
	}
	if err := h.checkPriority(p); err != nil {
		return err
	}
	var err error
	h.Critical(func() {
		if !h.intc.enabled(line) {
			err = ErrSourceDisabled
			return
		}
		h.intc.pri(line).Write(uint32(p))
	})
	if err != nil {
		return err
	}
	return h.Err()
}

// Bind makes fn the handler for line, replacing any previous binding.
// A nil fn unbinds the line. Rebinding a line whose handler may be
// running on a preempted frame is the caller's hazard to avoid.
func (h *Hart) Bind(line int, fn Handler) error {
	if err := h.Err(); err != nil {
		return err
	}
	if err := h.checkLine(line); err != nil {
		return err
	}
	h.Critical(func() {
		h.handlers[line] = fn
		h.entry.publish(h)
	})
	return h.Err()
}

// Raise asserts line. It is safe to call from any goroutine; the request
// is taken at the core's next instruction boundary.
func (h *Hart) Raise(line int) error {
	if err := h.checkLine(line); err != nil {
		return err
	}
	h.intc.raise(line)
	select {
	case h.wake <- struct{}{}:
	default:
	}
	return nil
}

// Clear drops a pending request on line.
func (h *Hart) Clear(line int) error {
	if err := h.checkLine(line); err != nil {
		return err
	}
	h.intc.ack(line)
	return nil
}

// Spurious returns the number of spurious traps seen on line.
func (h *Hart) Spurious(line int) uint64 {
	if h.checkLine(line) != nil {
		return 0
	}
	return h.spurious[line].Load()
}

// SpuriousTotal counts every spurious event: traps on disabled or unbound
// lines, and assertions from sources not routed to any line.
func (h *Hart) SpuriousTotal() uint64 {
	n := h.intc.unmapped.Load()
	for i := range h.spurious {
		n += h.spurious[i].Load()
	}
	return n
}

// Snapshot reports the registry state of every line.
func (h *Hart) Snapshot() []LineState {
	pending := h.intc.pending()
	enabled := h.intc.enable.Read()
	lines := make([]LineState, 0, h.chip.Lines)
	for line := 1; line <= h.chip.Lines; line++ {
		lines = append(lines, LineState{
			Line:     line,
			Enabled:  enabled&(1<<line) != 0,
			Priority: h.intc.priority(line),
			Bound:    h.handlers[line] != nil,
			Pending:  pending&(1<<line) != 0,
			Spurious: h.spurious[line].Load(),
		})
	}
	return lines
}

// LookupSource returns the peripheral source with the given name.
func (h *Hart) LookupSource(name string) (Source, error) {
	src, ok := h.chip.Sources[name]
	if !ok {
		return 0, ErrUnknownSource
	}
	return src, nil
}

// Map routes a peripheral source to a CPU interrupt line.
func (h *Hart) Map(src Source, line int) error {
	if err := h.Err(); err != nil {
		return err
	}
	if _, ok := h.sources[src]; !ok {
		return ErrUnknownSource
	}
	if err := h.checkLine(line); err != nil {
		return err
	}
	h.Critical(func() {
		h.intc.route(src).Write(uint32(line))
	})
	return h.Err()
}

// Unmap disconnects a peripheral source from the CPU.
func (h *Hart) Unmap(src Source) error {
	if err := h.Err(); err != nil {
		return err
	}
	if _, ok := h.sources[src]; !ok {
		return ErrUnknownSource
	}
	h.Critical(func() {
		h.intc.route(src).Write(0)
	})
	return h.Err()
}

// Route returns the line src is mapped to, 0 if none.
func (h *Hart) Route(src Source) int {
	if _, ok := h.sources[src]; !ok {
		return 0
	}
	return int(h.intc.route(src).Read())
}

// AssertSource is the peripheral side of the interrupt matrix: it raises
// the CPU line src is routed to. An unrouted source is counted as
// spurious. Safe to call from any goroutine.
func (h *Hart) AssertSource(src Source) {
	name, ok := h.sources[src]
	if !ok {
		panic(fmt.Sprintf("rvhal: assert of unknown source %d", src))
	}
	line := int(h.intc.route(src).Read())
	if line == 0 {
		h.intc.unmapped.Add(1)
		h.log.Printf("rvhal: source %s asserted with no route", name)
		return
	}
	_ = h.Raise(line)
}
