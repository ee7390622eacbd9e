// Package pipeline implements the out-of-order core of spec.md: fetch and
// decode into an instruction queue, rename/allocate onto reservation
// stations and a reorder buffer, dispatch to execution units, in-order
// retirement with store-buffer commit, and branch-misprediction recovery.
package pipeline

import (
	"io"

	"github.com/sarchlab/oosim/config"
	"github.com/sarchlab/oosim/core"
	"github.com/sarchlab/oosim/isa"
	"github.com/sarchlab/oosim/program"
	"github.com/sarchlab/oosim/trace"
)

// Pipeline wires every pipeline-stage struct onto shared state and exposes
// Tick, run once per simulated cycle in the reverse-pipeline order of
// spec.md §2 so each stage reads only state already latched this tick.
type Pipeline struct {
	Config *config.CpuConfig

	ARF *core.ARF
	PRF *core.PRF
	Mem *core.Memory

	IQ  *InstrQueue
	RS  *RSPool
	ROB *ROB
	SB  *SB
	EUs *EUPool
	BP  *BranchPredictor

	Frontend *Frontend
	Rename   *RenameStage
	Dispatch *DispatchStage
	Execute  *ExecuteStage
	Retire   *RetireStage

	Log  *trace.Logger
	Perf *trace.PerfMonitor

	cycle uint64
	seq   uint64
}

// New constructs a Pipeline sized from cfg, fetching prog starting at its
// entry point, with the PRINTR stream written to printSink and per-stage
// trace lines written to traceSink.
func New(cfg *config.CpuConfig, prog *program.Program, printSink, traceSink io.Writer) *Pipeline {
	arf := core.NewARF()
	prf := core.NewPRF(cfg.PhysRegCount)
	mem := core.NewMemory(cfg.MemorySize)
	for addr, v := range prog.Data {
		_ = mem.Write(addr, core.FromSigned(v))
	}

	iq := NewInstrQueue(cfg.InstrQueueCapacity)
	rs := NewRSPool(cfg.RSCount)
	rob := NewROB(cfg.ROBCapacity)
	sb := NewSB(cfg.SBCapacity)
	eus := NewEUPool(cfg.EUCount)
	bp := NewBranchPredictor()

	log := trace.New(traceSink, cfg.Trace)
	perf := &trace.PerfMonitor{}

	frontend := NewFrontend(prog, bp, cfg.FrontendNWide)
	frontend.Log = log

	p := &Pipeline{
		Config: cfg,
		ARF:    arf,
		PRF:    prf,
		Mem:    mem,
		IQ:     iq,
		RS:     rs,
		ROB:    rob,
		SB:     sb,
		EUs:    eus,
		BP:     bp,

		Frontend: frontend,
		Rename: &RenameStage{
			ARF: arf, PRF: prf, ROB: rob, RS: rs, SB: sb,
			NWide: cfg.IssueNWide, Log: log,
		},
		Dispatch: &DispatchStage{RS: rs, EUs: eus, NWide: cfg.DispatchNWide, Log: log},
		Execute: &ExecuteStage{
			RS: rs, ROB: rob, PRF: prf, SB: sb, Mem: mem, EUs: eus, BP: bp,
			Log: log, Print: printSink,
		},
		Retire: &RetireStage{
			ARF: arf, PRF: prf, ROB: rob, RS: rs, SB: sb, EUs: eus, IQ: iq, BP: bp,
			Frontend: frontend, NWide: cfg.RetireNWide, Log: log, Perf: perf,
		},

		Log:  log,
		Perf: perf,
	}
	return p
}

// lrHint returns the speculative return address BX/RET prediction uses:
// the in-flight renamed LR value if it is already valid, else the last
// committed LR (spec.md §11 open question 3).
func (p *Pipeline) lrHint() int {
	value, renamed, tag := p.ARF.Read(isa.RegLR)
	if !renamed {
		return int(value)
	}
	if v, valid := p.PRF.Read(tag); valid {
		return int(v)
	}
	return int(p.ARF.CommittedValue(isa.RegLR))
}

// Tick advances every pipeline stage by one simulated cycle, in the
// reverse-pipeline order of spec.md §2: retire, dispatch-to-EU,
// execute/write-back, issue, decode, store-buffer commit, cycle tick.
func (p *Pipeline) Tick() error {
	p.Retire.Retire(p.cycle)

	if _, dispatchStalled := p.Dispatch.Dispatch(p.cycle); dispatchStalled {
		p.Perf.RecordStall()
	}
	p.Execute.Run(p.cycle)

	if _, issueStalled := p.Rename.Issue(p.IQ, &p.seq, p.cycle); issueStalled {
		p.Perf.RecordStall()
	}
	if fetchStalled := p.Frontend.Fetch(p.IQ, p.lrHint(), p.cycle); fetchStalled {
		p.Perf.RecordStall()
	}

	if _, err := p.SB.DrainEligible(p.Config.LFBCount, p.Mem); err != nil {
		return err
	}

	p.cycle++
	p.Perf.TickCycle()
	return nil
}

// Cycle returns the current simulated cycle count.
func (p *Pipeline) Cycle() uint64 { return p.cycle }

// Halted reports the clean-halt condition of spec.md §6: the PC has walked
// off the program image and both the ROB and SB have drained.
func (p *Pipeline) Halted() bool {
	return p.Frontend.AtEnd() && p.IQ.Len() == 0 && p.ROB.Empty() && p.SB.Empty()
}
