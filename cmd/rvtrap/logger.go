package main

import (
	"sync"

	"github.com/davecheney/rvhal"
	"github.com/fatih/color"
)

var (
	diagColor  = color.New(color.FgCyan)
	eventColor = color.New(color.FgGreen)
	failColor  = color.New(color.FgRed, color.Bold)
)

// logger prints core diagnostics and handler activity. The systimer
// goroutine logs unrouted assertions, so writes are serialised.
type logger struct {
	mu      sync.Mutex
	verbose bool
}

func newLogger(verbose bool) *logger { return &logger{verbose: verbose} }

func (l *logger) Printf(format string, v ...any) {
	if !l.verbose {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	diagColor.Printf(format+"\n", v...)
}

func (l *logger) event(h *rvhal.Hart, line int, what string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	eventColor.Printf("%-8s line %2d  depth %d  mepc %#08x\n", what, line, h.Depth(), h.Mepc())
}

func (l *logger) pass(path string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	eventColor.Print("ok   ")
	color.White("%s", path)
}

func (l *logger) fail(path string, err error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	failColor.Print("FAIL ")
	color.White("%s: %v", path, err)
}
