// rvtrap runs the interrupt core of a simulated RISC-V microcontroller.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"time"

	"github.com/alecthomas/kong"
	"github.com/davecheney/rvhal"
	"github.com/davecheney/rvhal/scenario"
)

func main() {
	var cli struct {
		Run    runCmd    `cmd:"" default:"1" help:"run a hart; keys 1-9 raise interrupt lines, q quits"`
		Script scriptCmd `cmd:"" help:"replay scenario scripts under both dispatch modes"`
		Chips  chipsCmd  `cmd:"" help:"list chip variants"`
	}

	ctx := kong.Parse(&cli)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

type runCmd struct {
	Chip       string        `default:"esp32c3" help:"chip variant"`
	Mode       string        `help:"trap dispatch: direct or vectored (default from build tags)"`
	Preempt    bool          `help:"let higher priority interrupts preempt running handlers"`
	DirectBoot bool          `name:"direct-boot" help:"reset as if booted without a second stage loader"`
	Tick       time.Duration `default:"1s" help:"systimer alarm period, 0 to disable"`
	Verbose    bool          `short:"v" help:"log core diagnostics"`
}

// systimerLine is where the CLI routes SYSTIMER_TARGET0.
const systimerLine = 10

func (r *runCmd) Run(ctx *kong.Context) error {
	mode, err := rvhal.ParseMode(r.Mode)
	if err != nil {
		return err
	}
	log := newLogger(r.Verbose)
	h, err := rvhal.Init(rvhal.Config{
		Chip:       r.Chip,
		Mode:       mode,
		Preemption: r.Preempt,
		DirectBoot: r.DirectBoot,
		Log:        log,
	})
	if err != nil {
		return err
	}

	// Line n runs at priority n, so higher keys win.
	for line := 1; line <= 9; line++ {
		line := line
		if err := rvhal.Enable(line, rvhal.Priority(line)); err != nil {
			return err
		}
		if err := rvhal.Bind(line, func() {
			log.event(h, line, "key")
		}); err != nil {
			return err
		}
	}

	run, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	if r.Tick > 0 {
		st := h.Systimer()
		if err := h.Map(st.Source(), systimerLine); err != nil {
			return err
		}
		if err := rvhal.Enable(systimerLine, 1); err != nil {
			return err
		}
		if err := rvhal.Bind(systimerLine, func() {
			st.IntSt.Read()
			log.event(h, systimerLine, "systimer")
		}); err != nil {
			return err
		}
		st.Enable(true)
		st.Start(run, r.Tick)
	}

	cons := openConsole(os.Stdin)
	defer cons.restore()
	go cons.poll(h, cancel)

	if err := h.EnableInterrupts(); err != nil {
		return err
	}
	err = h.Run(run)
	if errors.Is(err, context.Canceled) {
		log.Printf("rvtrap: %d spurious interrupts", h.SpuriousTotal())
		return nil
	}
	return err
}

type scriptCmd struct {
	Paths   []string `arg:"" name:"script" help:"scenario files"`
	Verbose bool     `short:"v" help:"log core diagnostics"`
}

func (s *scriptCmd) Run(ctx *kong.Context) error {
	log := newLogger(s.Verbose)
	failed := 0
	for _, path := range s.Paths {
		if err := replay(path, log); err != nil {
			failed++
			log.fail(path, err)
			continue
		}
		log.pass(path)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d scripts failed", failed, len(s.Paths))
	}
	return nil
}

func replay(path string, log *logger) error {
	sc, err := scenario.LoadFile(path)
	if err != nil {
		return err
	}
	direct, err := scenario.Run(sc, rvhal.ModeDirect, log)
	if err != nil {
		return err
	}
	vectored, err := scenario.Run(sc, rvhal.ModeVectored, log)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(direct, vectored) {
		return fmt.Errorf("direct and vectored disagree: %v vs %v", direct.Names(), vectored.Names())
	}
	return sc.Check(direct)
}

type chipsCmd struct{}

func (c *chipsCmd) Run(ctx *kong.Context) error {
	for _, chip := range rvhal.Chips() {
		fmt.Printf("%-8s %s, %d lines, priorities 1-%d, mtvec %#08x\n",
			chip.Name, chip.Arch, chip.Lines, chip.Priorities, chip.VectorBase)
		fmt.Printf("         features:    %s\n", strings.Join(chip.Features, " "))
		fmt.Printf("         peripherals: %s\n", strings.Join(chip.Peripherals, " "))
		fmt.Printf("         sources:     %d\n", len(chip.Sources))
	}
	return nil
}
