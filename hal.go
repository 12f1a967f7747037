// Package rvhal is the trap and critical section core of a hardware
// abstraction layer for a RISC-V microcontroller family.
//
// Init builds the process-wide hart once at startup. Drivers then use the
// package level Enable, Disable, SetPriority and Bind to arm their
// interrupt lines, and Enter and Exit to protect state they share with
// their handlers.
//
// Delivery guarantees: among pending lines the highest priority is taken
// first and equal priorities are taken lowest line first. A line is never
// re-entered while its handler runs. With Config.Preemption a strictly
// higher priority interrupt preempts a running handler; without it every
// handler runs to completion before the next trap is taken.
package rvhal

import "sync/atomic"

var core atomic.Pointer[Hart]

// Init builds the process-wide hart. It must be called exactly once,
// before interrupts are enabled.
func Init(cfg Config) (*Hart, error) {
	if core.Load() != nil {
		return nil, ErrAlreadyInitialized
	}
	h, err := New(cfg)
	if err != nil {
		return nil, err
	}
	if !core.CompareAndSwap(nil, h) {
		return nil, ErrAlreadyInitialized
	}
	return h, nil
}

// Core returns the hart built by Init, or nil.
func Core() *Hart { return core.Load() }

func mustCore() *Hart {
	h := core.Load()
	if h == nil {
		panic(ErrNotInitialized)
	}
	return h
}

// Enable arms line at priority p on the process-wide hart.
func Enable(line int, p Priority) error {
	h := core.Load()
	if h == nil {
		return ErrNotInitialized
	}
	return h.Enable(line, p)
}

// Disable masks line on the process-wide hart.
func Disable(line int) error {
	h := core.Load()
	if h == nil {
		return ErrNotInitialized
	}
	return h.Disable(line)
}

// SetPriority changes the priority of an enabled line.
func SetPriority(line int, p Priority) error {
	h := core.Load()
	if h == nil {
		return ErrNotInitialized
	}
	return h.SetPriority(line, p)
}

// Bind installs fn as the handler for line.
func Bind(line int, fn Handler) error {
	h := core.Load()
	if h == nil {
		return ErrNotInitialized
	}
	return h.Bind(line, fn)
}

// Enter opens a critical section on the process-wide hart.
func Enter() *Token { return mustCore().Enter() }

// Exit closes the critical section t was returned for.
func Exit(t *Token) { mustCore().Exit(t) }
