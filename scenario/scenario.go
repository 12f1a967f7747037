// Package scenario drives a hart from a YAML script and records what its
// handlers did, so the same interrupt sequence can be replayed under both
// dispatch modes and compared.
package scenario

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/davecheney/rvhal"
	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"
	"gopkg.in/yaml.v3"
)

// Script is a scenario file.
type Script struct {
	Name       string                 `yaml:"name"`
	Chip       string                 `yaml:"chip"`
	Preemption bool                   `yaml:"preemption"`
	Exceptions string                 `yaml:"exceptions"` // "halt" (default) or "skip"
	Handlers   map[string]HandlerSpec `yaml:"handlers"`
	Steps      []Op                   `yaml:"steps"`
	Expect     *Expect                `yaml:"expect"`
}

// HandlerSpec describes what a named handler does when it runs.
type HandlerSpec struct {
	Raise []int  `yaml:"raise"` // lines raised from inside the handler
	Step  bool   `yaml:"step"`  // take an instruction boundary after raising
	Fault string `yaml:"fault"` // exception raised last, by name
}

// Op is one step of a script.
type Op struct {
	Op       string `yaml:"op"`
	Line     int    `yaml:"line"`
	Priority int    `yaml:"priority"`
	Handler  string `yaml:"handler"`
	Source   string `yaml:"source"`
	Fault    string `yaml:"fault"`
}

// Expect is the outcome a script asserts.
type Expect struct {
	Trace    []string       `yaml:"trace"`
	Spurious map[int]uint64 `yaml:"spurious"`
	Halted   bool           `yaml:"halted"`
}

// Event is a handler entering or leaving.
type Event struct {
	Handler string
	Line    int
	Depth   int
	Exit    bool
}

// String renders e as "+name" on entry and "-name" on exit.
func (e Event) String() string {
	if e.Exit {
		return "-" + e.Handler
	}
	return "+" + e.Handler
}

// Result is what a run observed.
type Result struct {
	Trace    []Event
	Spurious map[int]uint64
	Total    uint64 // including unrouted source assertions
	Halted   bool
	Fault    error
}

// Names returns the trace in its Event.String form.
func (r *Result) Names() []string {
	names := make([]string, len(r.Trace))
	for i, e := range r.Trace {
		names[i] = e.String()
	}
	return names
}

var faults = map[string]rvhal.Cause{
	"illegal":    rvhal.CauseIllegalInstr,
	"breakpoint": rvhal.CauseBreakpoint,
	"ecall":      rvhal.CauseEcallM,
}

// Load decodes a script. Unknown keys are an error.
func Load(r io.Reader) (*Script, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var s Script
	if err := dec.Decode(&s); err != nil {
		return nil, err
	}
	if err := s.validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// LoadFile decodes the script at path.
func LoadFile(path string) (*Script, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	s, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return s, nil
}

func (s *Script) validate() error {
	switch s.Exceptions {
	case "", "halt", "skip":
	default:
		return fmt.Errorf("exceptions: %q is neither halt nor skip", s.Exceptions)
	}
	for name, h := range s.Handlers {
		if _, ok := faults[h.Fault]; h.Fault != "" && !ok {
			return fmt.Errorf("handler %s: unknown fault %q", name, h.Fault)
		}
	}
	for i, op := range s.Steps {
		if op.Op == "bind" && op.Handler != "" {
			if _, ok := s.Handlers[op.Handler]; !ok {
				return fmt.Errorf("step %d: unknown handler %q", i, op.Handler)
			}
		}
	}
	return nil
}

// Run replays s on a fresh hart built for mode.
func Run(s *Script, mode rvhal.Mode, log rvhal.Logger) (*Result, error) {
	h, err := rvhal.New(rvhal.Config{
		Chip:       s.Chip,
		Mode:       mode,
		Preemption: s.Preemption,
		Log:        log,
	})
	if err != nil {
		return nil, err
	}
	r := runner{h: h, s: s}
	if s.Exceptions == "skip" {
		h.SetExceptionHandler(r.skip)
	}
	for i, op := range s.Steps {
		if err := r.step(op); err != nil {
			return nil, fmt.Errorf("step %d (%s): %w", i, op.Op, err)
		}
		if h.State() == rvhal.Halted {
			break
		}
	}
	res := &Result{
		Trace:    r.trace,
		Spurious: make(map[int]uint64),
		Total:    h.SpuriousTotal(),
		Halted:   h.State() == rvhal.Halted,
		Fault:    h.Err(),
	}
	for _, l := range h.Snapshot() {
		if l.Spurious > 0 {
			res.Spurious[l.Line] = l.Spurious
		}
	}
	return res, nil
}

type runner struct {
	h     *rvhal.Hart
	s     *Script
	toks  []*rvhal.Token
	trace []Event
}

func (r *runner) step(op Op) error {
	h := r.h
	switch op.Op {
	case "enable":
		return h.Enable(op.Line, rvhal.Priority(op.Priority))
	case "disable":
		return h.Disable(op.Line)
	case "priority":
		return h.SetPriority(op.Line, rvhal.Priority(op.Priority))
	case "bind":
		if op.Handler == "" {
			return h.Bind(op.Line, nil)
		}
		return h.Bind(op.Line, r.handler(op.Line, op.Handler))
	case "raise":
		return h.Raise(op.Line)
	case "clear":
		return h.Clear(op.Line)
	case "map":
		src, err := h.LookupSource(op.Source)
		if err != nil {
			return err
		}
		return h.Map(src, op.Line)
	case "unmap":
		src, err := h.LookupSource(op.Source)
		if err != nil {
			return err
		}
		return h.Unmap(src)
	case "assert":
		src, err := h.LookupSource(op.Source)
		if err != nil {
			return err
		}
		h.AssertSource(src)
		return nil
	case "interrupts":
		return recorded(h.EnableInterrupts())
	case "enter":
		r.toks = append(r.toks, h.Enter())
		return nil
	case "exit":
		if len(r.toks) == 0 {
			return errors.New("exit without enter")
		}
		n := len(r.toks) - 1
		tok := r.toks[n]
		r.toks = r.toks[:n]
		h.Exit(tok)
		return nil
	case "step":
		return recorded(h.Step())
	case "exec":
		cause, ok := faults[op.Fault]
		return recorded(h.Exec(func() {
			if ok {
				h.Fault(cause, 0)
			}
		}))
	default:
		return fmt.Errorf("unknown op %q", op.Op)
	}
}

// recorded drops a fault that halted the hart; Run reports it in the
// result. Anything else stops the script.
func recorded(err error) error {
	var fault *rvhal.FaultError
	if errors.As(err, &fault) {
		return nil
	}
	return err
}

func (r *runner) handler(line int, name string) rvhal.Handler {
	hs := r.s.Handlers[name]
	return func() {
		h := r.h
		r.trace = append(r.trace, Event{Handler: name, Line: line, Depth: h.Depth()})
		for _, l := range hs.Raise {
			_ = h.Raise(l)
		}
		if hs.Step {
			_ = h.Step()
		}
		if cause, ok := faults[hs.Fault]; ok {
			h.Fault(cause, uint32(line))
		}
		r.trace = append(r.trace, Event{Handler: name, Line: line, Depth: h.Depth(), Exit: true})
	}
}

func (r *runner) skip(h *rvhal.Hart, f *rvhal.Frame) {
	r.trace = append(r.trace, Event{Handler: "exception", Depth: h.Depth()})
	f.PC += 4
}

// Check compares res with the script's expectations.
func (s *Script) Check(res *Result) error {
	e := s.Expect
	if e == nil {
		return nil
	}
	var problems []string
	if e.Trace != nil && !slices.Equal(e.Trace, res.Names()) {
		problems = append(problems, fmt.Sprintf("trace: got %v, want %v", res.Names(), e.Trace))
	}
	if e.Spurious != nil && !maps.Equal(e.Spurious, res.Spurious) {
		problems = append(problems, fmt.Sprintf("spurious: got %v, want %v", res.Spurious, e.Spurious))
	}
	if e.Halted != res.Halted {
		problems = append(problems, fmt.Sprintf("halted: got %v, want %v", res.Halted, e.Halted))
	}
	if len(problems) > 0 {
		return fmt.Errorf("%s: %s", s.Name, strings.Join(problems, "; "))
	}
	return nil
}
