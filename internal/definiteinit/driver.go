package definiteinit

import (
	"fmt"

	"diaudit/internal/air"
	"diaudit/internal/diag"
	"diaudit/internal/observ"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

// Options tunes PassDriver's behavior per the spec's two Open Questions
// this module keeps gated off by default: cross-block load forwarding is
// never attempted regardless of this flag (LoadPromoter only looks within
// one block), and EnableCopyAddrForwarding controls a strictly additional
// optimization, never required for correctness, that lets the load
// promoter's fast path also fire when the reaching write is a copy_addr
// rather than a direct store.
type Options struct {
	EnableCopyAddrForwarding bool
	MaxDiagnosticsPerFunction int
}

// DefaultOptions matches the spec's conservative baseline.
func DefaultOptions() Options {
	return Options{MaxDiagnosticsPerFunction: 64}
}

// Stats summarizes one PassDriver run across however many functions it saw.
type Stats struct {
	NumLoadsPromoted   int
	NumAssignsRewritten int
	NumDiagnostics     int
}

// PassDriver runs definite-initialization checking and load promotion over
// a whole module: discover each function's allocations, build each one's
// Uses table, run the dataflow/rewrite pipeline per allocation, then sweep
// the function once more to finish lowering every surviving marker
// instruction.
type PassDriver struct {
	Types    *types.Interner
	Strs     *source.Interner
	Oracle   TypeOracle
	Reporter diag.Reporter
	Options  Options

	// Timer, when non-nil, records the collect/lower/promote phases of every
	// allocation this driver processes, named after the allocation so a
	// caller printing Timer.Summary() can see where a function's time went.
	Timer *observ.Timer

	nextValueID air.ValueID
}

// Run runs the pass over every function in m, reporting through bag.
func Run(m *air.Module, in *types.Interner, strs *source.Interner, oracle TypeOracle, bag *diag.Bag, opts Options) Stats {
	d := &PassDriver{Types: in, Strs: strs, Oracle: oracle, Reporter: diag.BagReporter{Bag: bag}, Options: opts}
	return d.Run(m)
}

// RunFunction runs the pass over a single function, reporting through bag
// and accumulating into stats.
func RunFunction(f *air.Function, in *types.Interner, strs *source.Interner, oracle TypeOracle, bag *diag.Bag, opts Options, stats *Stats) {
	d := &PassDriver{Types: in, Strs: strs, Oracle: oracle, Reporter: diag.BagReporter{Bag: bag}, Options: opts}
	stats.add(d.RunFunction(f))
}

// Run processes every function in m.
func (d *PassDriver) Run(m *air.Module) Stats {
	var stats Stats
	for _, fn := range m.Funcs {
		stats.add(d.RunFunction(fn))
	}
	return stats
}

func (s *Stats) add(o Stats) {
	s.NumLoadsPromoted += o.NumLoadsPromoted
	s.NumAssignsRewritten += o.NumAssignsRewritten
	s.NumDiagnostics += o.NumDiagnostics
}

// RunFunction processes one function: every allocation it roots is checked
// and lowered independently, then the function gets one final sweep that
// erases mark_uninitialized/mark_function_escape wrappers and drops
// everything marked Dead.
func (d *PassDriver) RunFunction(fn *air.Function) Stats {
	var stats Stats
	d.seedNextValueID(fn)
	scalarizeAssigns(fn, d.Types, d.allocValueID)

	idx := buildFuncIndex(fn)
	blockOf := buildBlockOf(fn)
	allocs := discoverAllocations(fn)

	for _, alloc := range allocs {
		stats.add(d.runAllocation(fn, idx, blockOf, alloc))
	}

	finalLowering(fn)
	fn.InvalidateCFG()
	return stats
}

func (d *PassDriver) runAllocation(fn *air.Function, idx *funcIndex, blockOf map[*air.Instr]air.BlockID, alloc Allocation) Stats {
	var stats Stats
	numBuckets := BucketCount(d.Types, alloc.ElemType)
	if numBuckets == 0 {
		numBuckets = 1
	}

	name := d.nameOf(alloc)

	var collectPhase int
	if d.Timer != nil {
		collectPhase = d.Timer.Begin("collect:" + name)
	}
	collector := NewCollector(d.Types, d.Strs, fn, idx)
	uses := collector.Run(alloc, numBuckets)
	if d.Timer != nil {
		d.Timer.End(collectPhase, fmt.Sprintf("%d buckets", numBuckets))
	}

	flows := make([]*InitDataflow, numBuckets)
	for i, b := range uses.Buckets {
		flows[i] = NewInitDataflow(fn, b)
	}

	diagCount := 0
	skip := d.checkPartialStores(uses, flows, blockOf, alloc, &stats)
	lowering := &AssignLowering{
		Fn:     fn,
		Oracle: d.Oracle,
		NextID: d.allocValueID,
		Diagnose: func(instr *air.Instr, buckets []int, verdicts []Verdict) {
			if diagCount >= d.Options.MaxDiagnosticsPerFunction {
				return
			}
			diagCount++
			d.reportPartialAssign(alloc, instr, buckets, verdicts)
		},
		Skip: skip,
	}
	var lowerPhase int
	if d.Timer != nil {
		lowerPhase = d.Timer.Begin("lower:" + name)
	}
	rewritten := lowering.Run(uses, blockOf, flows)
	if d.Timer != nil {
		d.Timer.End(lowerPhase, fmt.Sprintf("%d rewritten", rewritten))
	}
	stats.NumAssignsRewritten += rewritten
	stats.NumDiagnostics += diagCount

	idx.rebuild(fn)
	blockOf = buildBlockOf(fn)
	for i, b := range uses.Buckets {
		flows[i] = NewInitDataflow(fn, b)
	}

	d.checkTerminalUses(uses, flows, blockOf, alloc, &stats)

	var promotePhase int
	if d.Timer != nil {
		promotePhase = d.Timer.Begin("promote:" + name)
	}
	promoter := &LoadPromoter{
		Fn:                       fn,
		Index:                    idx,
		NextID:                   d.allocValueID,
		Types:                    d.Types,
		Flows:                    flows,
		EnableCopyAddrForwarding: d.Options.EnableCopyAddrForwarding,
	}
	promoted := promoter.Run(uses, blockOf)
	if d.Timer != nil {
		d.Timer.End(promotePhase, fmt.Sprintf("%d promoted", promoted))
	}
	stats.NumLoadsPromoted += promoted

	return stats
}

// checkPartialStores reports struct_not_fully_initialized immediately for
// every partial store whose bucket is not yet definitely initialized right
// where the store happens — whether or not the store is wrapped in an
// assign, and whether or not anything later ever loads, escapes, or
// releases the allocation. A struct's fields can only be written once the
// whole struct is already initialized (an atomic first store or a
// memberwise initializer produces that); writing one field before the
// struct as a whole is initialized is always an error, never something a
// later use has to surface. The returned set names every instruction this
// diagnosed, so AssignLowering knows not to also rewrite it.
func (d *PassDriver) checkPartialStores(u *Uses, flows []*InitDataflow, blockOf map[*air.Instr]air.BlockID, alloc Allocation, stats *Stats) map[*air.Instr]bool {
	skip := make(map[*air.Instr]bool)
	seen := make(map[*air.Instr]bool)
	for bi, b := range u.Buckets {
		if b.diagnosed {
			continue
		}
		for _, use := range b.uses {
			if !use.Valid || use.Kind != UsePartialStore || seen[use.Instr] {
				continue
			}
			blockID, ok := blockOf[use.Instr]
			if !ok {
				continue
			}
			verdict := flows[bi].VerdictAt(blockID, use.Instr)
			if verdict == VerdictYes {
				continue
			}
			if stats.NumDiagnostics >= d.Options.MaxDiagnosticsPerFunction {
				continue
			}
			seen[use.Instr] = true
			skip[use.Instr] = true
			b.diagnosed = true
			stats.NumDiagnostics++
			d.reportPartialStore(alloc, use)
		}
	}
	return skip
}

func (d *PassDriver) reportPartialStore(alloc Allocation, use Use) {
	if d.Reporter == nil {
		return
	}
	name := d.nameOf(alloc)
	diag.ReportError(d.Reporter, diag.DIStructNotFullyInitialized, use.Instr.Span,
		fmt.Sprintf("%s not fully initialized at use", name)).
		WithNote(alloc.Span, "variable defined here").
		Emit()
}

// checkTerminalUses reports the spec's four use-kind diagnostics for every
// load, inout, escape, and release use whose bucket is not definitely
// initialized at that point, plus the struct/function-escape variants.
func (d *PassDriver) checkTerminalUses(u *Uses, flows []*InitDataflow, blockOf map[*air.Instr]air.BlockID, alloc Allocation, stats *Stats) {
	seen := make(map[*air.Instr]bool)
	for bi, b := range u.Buckets {
		if b.diagnosed {
			continue
		}
		for _, use := range b.uses {
			if !use.Valid {
				continue
			}
			switch use.Kind {
			case UseLoad, UseInOutUse, UseEscape, UseRelease:
			default:
				continue
			}
			blockID, ok := blockOf[use.Instr]
			if !ok {
				continue
			}
			verdict := flows[bi].VerdictAt(blockID, use.Instr)
			if verdict == VerdictYes {
				continue
			}
			key := use.Instr
			if seen[key] && verdict == VerdictPartial {
				continue
			}
			seen[key] = true
			b.diagnosed = true
			stats.NumDiagnostics++
			d.reportTerminalUse(alloc, bi, use, verdict)
		}
	}
}

func (d *PassDriver) reportTerminalUse(alloc Allocation, bucket int, use Use, verdict Verdict) {
	if d.Reporter == nil {
		return
	}
	name := d.nameOf(alloc)
	path := PathString(d.Types, d.Strs, alloc.ElemType, bucket)

	var code diag.Code
	var msg string
	switch use.Kind {
	case UseLoad:
		code = diag.DIUsedBeforeInitialized
		msg = fmt.Sprintf("%s%s used before being initialized", name, path)
	case UseInOutUse:
		code = diag.DIInoutBeforeInitialized
		msg = fmt.Sprintf("%s%s passed inout before being initialized", name, path)
	case UseEscape:
		code = diag.DIEscapeBeforeInitialized
		msg = fmt.Sprintf("%s%s captured before being initialized", name, path)
		if use.Instr.Kind == air.InstrMarkFunctionEscape {
			code = diag.DIFunctionEscapeUninit
			msg = fmt.Sprintf("%s%s used by a function before being initialized", name, path)
		}
	case UseRelease:
		code = diag.DIDestroyedBeforeInitialized
		msg = fmt.Sprintf("%s%s destroyed before being initialized", name, path)
	default:
		return
	}
	if verdict == VerdictPartial && d.Types != nil {
		if t, ok := d.Types.Lookup(alloc.ElemType); ok && t.Kind == types.KindStruct {
			code = diag.DIStructNotFullyInitialized
			msg = fmt.Sprintf("%s not fully initialized at use", name)
		} else {
			code = diag.DIInitializedOnSomePaths
			msg = fmt.Sprintf("%s%s initialized on some paths but not others", name, path)
		}
	}

	diag.ReportError(d.Reporter, code, use.Instr.Span, msg).
		WithNote(alloc.Span, "variable defined here").
		Emit()
}

func (d *PassDriver) reportPartialAssign(alloc Allocation, instr *air.Instr, buckets []int, verdicts []Verdict) {
	if d.Reporter == nil {
		return
	}
	name := d.nameOf(alloc)
	diag.ReportError(d.Reporter, diag.DIInitializedOnSomePaths, instr.Span,
		fmt.Sprintf("%s initialized on some paths but not others at assignment", name)).
		WithNote(alloc.Span, "variable defined here").
		Emit()
	_ = buckets
	_ = verdicts
}

func (d *PassDriver) nameOf(alloc Allocation) string {
	if d.Strs == nil {
		return "value"
	}
	if s, ok := d.Strs.Lookup(alloc.Name); ok && s != "" {
		return s
	}
	return "value"
}

func (d *PassDriver) seedNextValueID(fn *air.Function) {
	highest := air.ValueID(-1)
	for bi := range fn.Blocks {
		for _, in := range fn.Blocks[bi].Instrs {
			if in.ID > highest {
				highest = in.ID
			}
			for _, op := range operandsOf(in) {
				if op > highest {
					highest = op
				}
			}
		}
	}
	d.nextValueID = highest + 1
}

func (d *PassDriver) allocValueID() air.ValueID {
	id := d.nextValueID
	d.nextValueID++
	return id
}

// buildBlockOf maps every instruction in fn to the block containing it.
func buildBlockOf(fn *air.Function) map[*air.Instr]air.BlockID {
	m := make(map[*air.Instr]air.BlockID)
	for bi := range fn.Blocks {
		b := fn.Blocks[bi]
		for _, in := range b.Instrs {
			m[in] = b.ID
		}
	}
	return m
}

// discoverAllocations finds every alloc_box, alloc_stack, and
// mark_uninitialized in fn, each the root of its own independent Uses tree.
func discoverAllocations(fn *air.Function) []Allocation {
	var allocs []Allocation
	for bi := range fn.Blocks {
		for _, in := range fn.Blocks[bi].Instrs {
			if in.Dead {
				continue
			}
			switch in.Kind {
			case air.InstrAllocBox:
				allocs = append(allocs, Allocation{
					Root: in.ID, Instr: in, Kind: AllocHeapBox,
					ElemType: in.Type, Name: in.AllocBox.Name, Span: in.Span,
				})
			case air.InstrAllocStack:
				allocs = append(allocs, Allocation{
					Root: in.ID, Instr: in, Kind: AllocStackSlot,
					ElemType: in.Type, Name: in.AllocStack.Name, Span: in.Span,
				})
			case air.InstrMarkUninitialized:
				allocs = append(allocs, Allocation{
					Root: in.ID, Instr: in, Kind: AllocMarkUninit,
					ElemType: in.Type, Span: in.Span,
				})
			}
		}
	}
	return allocs
}

// finalLowering sweeps fn once all allocations have been checked and
// lowered: mark_uninitialized is replaced by its operand everywhere (every
// remaining reference becomes a direct reference to the underlying
// address), mark_function_escape is erased outright, and anything left
// Dead is dropped from its block.
func finalLowering(fn *air.Function) {
	idx := buildFuncIndex(fn)
	for bi := range fn.Blocks {
		for _, in := range fn.Blocks[bi].Instrs {
			if in.Dead || in.Kind != air.InstrMarkUninitialized {
				continue
			}
			for _, user := range idx.users[in.ID] {
				replaceOperand(user, in.ID, in.MarkUninitialized.Operand)
			}
			in.Dead = true
		}
	}
	for bi := range fn.Blocks {
		b := &fn.Blocks[bi]
		for _, in := range b.Instrs {
			if in.Kind == air.InstrMarkFunctionEscape {
				in.Dead = true
			}
		}
		kept := b.Instrs[:0]
		for _, in := range b.Instrs {
			if in.Dead {
				continue
			}
			kept = append(kept, in)
		}
		b.Instrs = kept
	}
}

