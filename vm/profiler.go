package vm

import (
	"fmt"
	"io"
	"sort"
	"sync/atomic"
)

// Profiler counts function invocations and executed instructions. A
// function becomes hot once its invocation count reaches HotThreshold.
// Counters are atomic so one profiler may be shared by several runtimes of
// the same module.
type Profiler struct {
	functions []FunctionProfile
	opcodes   [256]uint64

	// Configuration thresholds
	HotThreshold uint64 // Default: 100

	// Callback when a function becomes hot
	OnHot func(fn int, profile *FunctionProfile)

	hotCount uint64
}

// FunctionProfile holds profiling data for a single function.
type FunctionProfile struct {
	Name        string
	Invocations uint64 // top-level runs, dispatches and CALLs
	Steps       uint64 // instructions executed while the function was innermost
	IsHot       bool
}

// OpcodeCount pairs an opcode with its execution count.
type OpcodeCount struct {
	Op    Opcode
	Count uint64
}

// NewProfiler creates a profiler for m with default thresholds.
func NewProfiler(m *Module) *Profiler {
	p := &Profiler{
		functions:    make([]FunctionProfile, len(m.Functions)),
		HotThreshold: 100,
	}
	for i, f := range m.Functions {
		p.functions[i].Name = f.Name
	}
	return p
}

// recordInvocation increments the invocation count for fn. Returns true if
// this invocation made the function hot.
func (p *Profiler) recordInvocation(fn int) bool {
	if fn < 0 || fn >= len(p.functions) {
		return false
	}
	profile := &p.functions[fn]
	count := atomic.AddUint64(&profile.Invocations, 1)

	if !profile.IsHot && count >= p.HotThreshold {
		profile.IsHot = true
		atomic.AddUint64(&p.hotCount, 1)
		if p.OnHot != nil {
			p.OnHot(fn, profile)
		}
		return true
	}
	return false
}

func (p *Profiler) recordStep(fn int, op Opcode) {
	atomic.AddUint64(&p.opcodes[op], 1)
	if fn >= 0 && fn < len(p.functions) {
		atomic.AddUint64(&p.functions[fn].Steps, 1)
	}
}

// Function returns a copy of the profile for fn.
func (p *Profiler) Function(fn int) (FunctionProfile, bool) {
	if fn < 0 || fn >= len(p.functions) {
		return FunctionProfile{}, false
	}
	f := &p.functions[fn]
	return FunctionProfile{
		Name:        f.Name,
		Invocations: atomic.LoadUint64(&f.Invocations),
		Steps:       atomic.LoadUint64(&f.Steps),
		IsHot:       f.IsHot,
	}, true
}

// OpcodeCount returns how often op executed.
func (p *Profiler) OpcodeCount(op Opcode) uint64 {
	return atomic.LoadUint64(&p.opcodes[op])
}

// ProfilerStats holds aggregate profiling statistics.
type ProfilerStats struct {
	Functions    int    // functions invoked at least once
	HotFunctions int    // functions past the hot threshold
	Invocations  uint64 // total function invocations
	Steps        uint64 // total instructions
}

// Stats returns aggregate profiling statistics.
func (p *Profiler) Stats() ProfilerStats {
	var stats ProfilerStats
	for i := range p.functions {
		f, _ := p.Function(i)
		if f.Invocations > 0 {
			stats.Functions++
		}
		stats.Invocations += f.Invocations
	}
	for i := range p.opcodes {
		stats.Steps += atomic.LoadUint64(&p.opcodes[i])
	}
	stats.HotFunctions = int(atomic.LoadUint64(&p.hotCount))
	return stats
}

// TopFunctions returns the n functions with the most executed instructions.
// Ties keep module order.
func (p *Profiler) TopFunctions(n int) []FunctionProfile {
	all := make([]FunctionProfile, 0, len(p.functions))
	for i := range p.functions {
		if f, _ := p.Function(i); f.Invocations > 0 {
			all = append(all, f)
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Steps > all[j].Steps })
	return all[:min(n, len(all))]
}

// TopOpcodes returns the n most executed opcodes. Ties order by opcode value.
func (p *Profiler) TopOpcodes(n int) []OpcodeCount {
	var all []OpcodeCount
	for i := range p.opcodes {
		if c := atomic.LoadUint64(&p.opcodes[i]); c > 0 {
			all = append(all, OpcodeCount{Op: Opcode(i), Count: c})
		}
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].Count > all[j].Count })
	return all[:min(n, len(all))]
}

// WriteReport prints the top functions and opcodes.
func (p *Profiler) WriteReport(w io.Writer, n int) error {
	stats := p.Stats()
	pr := &infoPrinter{w: w}
	pr.printf("; profile: %d invocations, %d steps, %d hot functions\n",
		stats.Invocations, stats.Steps, stats.HotFunctions)
	pr.printf("; functions\n")
	for _, f := range p.TopFunctions(n) {
		hot := ""
		if f.IsHot {
			hot = " hot"
		}
		pr.printf("  %-24s calls=%-6d steps=%d%s\n", f.Name, f.Invocations, f.Steps, hot)
	}
	pr.printf("; opcodes\n")
	for _, oc := range p.TopOpcodes(n) {
		pr.printf("  %-24s %d\n", oc.Op, oc.Count)
	}
	return pr.err
}

// Reset clears all profiling data.
func (p *Profiler) Reset() {
	for i := range p.functions {
		p.functions[i] = FunctionProfile{Name: p.functions[i].Name}
	}
	p.opcodes = [256]uint64{}
	atomic.StoreUint64(&p.hotCount, 0)
}

func (p *Profiler) String() string {
	s := p.Stats()
	return fmt.Sprintf("profiler(%d functions, %d steps)", s.Functions, s.Steps)
}
