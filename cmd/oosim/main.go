// Package main provides the entry point for oosim, a cycle-stepped
// out-of-order ARM-family pipeline simulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/pprof"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/sarchlab/oosim/config"
	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/pipeline"
	"github.com/sarchlab/oosim/program"
)

var (
	configPath = flag.String("config", "", "Path to a CpuConfig JSON file")
	tiny       = flag.Bool("tiny", false, "Use the resource-starved TinyConfig preset")
	dumpRegs   = flag.Bool("dump-regs", false, "Print final architectural register state on clean halt")
	maxCycles  = flag.Uint64("max-cycles", 10_000_000, "Abort after this many cycles without a clean halt")
	cpuProfile = flag.String("cpuprofile", "", "Write a pprof CPU profile to this path")
	memProfile = flag.String("memprofile", "", "Write a pprof heap profile to this path")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		fmt.Fprintf(os.Stderr, "Usage: oosim [options] <program.asm>\n\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating cpu profile: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "error starting cpu profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	code := run(flag.Arg(0))

	if *memProfile != "" {
		f, err := os.Create(*memProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error creating memory profile: %v\n", err)
		} else {
			defer f.Close()
			if err := pprof.WriteHeapProfile(f); err != nil {
				fmt.Fprintf(os.Stderr, "error writing memory profile: %v\n", err)
			}
		}
	}

	os.Exit(code)
}

func run(programPath string) int {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading config: %v\n", err)
		return 1
	}

	src, err := os.ReadFile(programPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error reading program: %v\n", err)
		return 1
	}

	prog, err := program.Assemble(string(src))
	if err != nil {
		fmt.Fprintf(os.Stderr, "error assembling program: %v\n", err)
		return 1
	}

	pipe := pipeline.New(cfg, prog, os.Stdout, os.Stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return reportStats(gctx, pipe, cfg.StatsSeconds) })

	var runErr error
	for pipe.Cycle() < *maxCycles {
		if pipe.Halted() {
			break
		}
		if err := pipe.Tick(); err != nil {
			runErr = err
			break
		}
		if ctx.Err() != nil {
			break
		}
	}
	stop()
	_ = g.Wait()

	if runErr != nil {
		fmt.Fprintf(os.Stderr, "structural violation: %v\n", runErr)
		return 1
	}
	if !pipe.Halted() {
		fmt.Fprintf(os.Stderr, "did not reach a clean halt within %d cycles\n", *maxCycles)
		return 1
	}

	fmt.Fprintln(os.Stderr, pipe.Perf.Snapshot().String())
	if *dumpRegs {
		dumpRegisters(pipe)
	}
	return 0
}

func loadConfig() (*config.CpuConfig, error) {
	switch {
	case *configPath != "":
		return config.Load(*configPath)
	case *tiny:
		return config.TinyConfig(), nil
	default:
		return config.Default(), nil
	}
}

// reportStats prints the periodic perf snapshot on a wall-clock cadence
// derived from stats_seconds, as its own goroutine alongside the tick loop
// (SPEC_FULL.md §4.12): it only ever reads already-latched counters, so the
// core's single-stepped behavior is unaffected by wall-clock pacing.
func reportStats(ctx context.Context, pipe *pipeline.Pipeline, statsSeconds float64) error {
	ticker := time.NewTicker(time.Duration(statsSeconds * float64(time.Second)))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			fmt.Fprintln(os.Stderr, pipe.Perf.Snapshot().String())
		}
	}
}

func dumpRegisters(pipe *pipeline.Pipeline) {
	for r := 0; r < core.NumArch; r++ {
		// After a clean halt the ROB is empty, so every register's
		// committed shadow is its final value, renamed or not.
		v := pipe.ARF.CommittedValue(r)
		fmt.Printf("r%d = %d\n", r, v.Signed())
	}
}
