package definiteinit

import (
	"diaudit/internal/air"
	"diaudit/internal/types"
)

// collectLoadGroups mirrors collectAssignGroups for plain Load instructions:
// one group per load instruction, holding every bucket it reads.
func collectLoadGroups(u *Uses) []*assignGroup {
	groups := make(map[*air.Instr]*assignGroup)
	var order []*assignGroup
	for bi, b := range u.Buckets {
		for _, use := range b.uses {
			if !use.Valid || use.Kind != UseLoad || use.Instr.Kind != air.InstrLoad {
				continue
			}
			g, ok := groups[use.Instr]
			if !ok {
				g = &assignGroup{Instr: use.Instr}
				groups[use.Instr] = g
				order = append(order, g)
			}
			g.Buckets = append(g.Buckets, bi)
		}
	}
	return order
}

// reachingWrite is what a backward scan finds for one bucket: the
// instruction that last wrote it before the load, and which offset of that
// instruction's aggregate value landed in this particular bucket.
type reachingWrite struct {
	instr  *air.Instr
	offset int
}

// LoadPromoter replaces a load of memory that is definitely initialized
// with the value that was stored there, eliminating the memory round-trip.
// The fast path handles a load entirely covered by a single reaching write
// at matching offsets with no new instructions at all; when that fails,
// the general reconstruction path resolves each tuple element
// independently — decomposing a reaching write that covered a wider
// aggregate than just this element via a tuple_extract, recursing into
// nested tuples, and gluing the pieces back together with a tuple
// instruction — falling back to a freshly synthesized sub-load for any
// element with no reaching write at all, when InitDataflow already
// considers that element definitely initialized here. Matching the scope
// the rest of this pass already commits to, neither path ever looks across
// a block boundary: a load whose reaching write lives in a predecessor
// block is left as a real memory load.
type LoadPromoter struct {
	Fn     *air.Function
	Index  *funcIndex
	NextID func() air.ValueID

	// Types and Flows drive the general reconstruction path: Types
	// navigates tuple structure to decompose/rebuild aggregate values,
	// Flows (one InitDataflow per bucket, in the same order as the Uses
	// table's buckets) answers whether a bucket with no reaching write is
	// still safe to load directly. Both are nil-safe: reconstruct bails out
	// to "not promotable" rather than panicking when either is unset.
	Types *types.Interner
	Flows []*InitDataflow

	// EnableCopyAddrForwarding mirrors Options.EnableCopyAddrForwarding:
	// when set, a reaching copy_addr is also eligible, via explodeCopyAddr,
	// instead of only a direct store or assign.
	EnableCopyAddrForwarding bool
}

// Run promotes every eligible load reading allocation u's buckets,
// returning the number of loads promoted.
func (p *LoadPromoter) Run(u *Uses, blockOf map[*air.Instr]air.BlockID) int {
	promoted := 0
	for _, g := range collectLoadGroups(u) {
		blockID := blockOf[g.Instr]
		block := p.Fn.Block(blockID)
		if block == nil {
			continue
		}
		idx := block.IndexOf(g.Instr)
		if idx < 0 {
			continue
		}
		addr := g.Instr.Load.Addr
		value, ok := p.resolve(u, g, block, idx)
		if !ok {
			continue
		}
		p.replaceAllUses(g.Instr.ID, value)
		g.Instr.Dead = true
		removeDeadProjections(p.Index, addr)
		promoted++
	}
	if promoted > 0 {
		p.Index.rebuild(p.Fn)
	}
	return promoted
}

// removeDeadProjections walks back from addr through whatever chain of
// tuple_element_addr/struct_element_addr projections fed it, marking each
// one dead once it has no remaining live user. A promoted load leaves its
// own addressing chain dangling; without this, a chain computed solely to
// feed one now-dead load survives PassDriver's final sweep as inert address
// arithmetic nobody reads.
func removeDeadProjections(idx *funcIndex, addr air.ValueID) {
	for addr.IsValid() {
		def, ok := idx.defs[addr]
		if !ok || def.Dead {
			return
		}
		switch def.Kind {
		case air.InstrTupleElementAddr, air.InstrStructElementAddr:
		default:
			return
		}
		for _, u := range idx.users[addr] {
			if !u.Dead {
				return
			}
		}
		def.Dead = true
		next := operandsOf(def)
		if len(next) == 0 {
			return
		}
		addr = next[0]
	}
}

// explodeCopyAddr turns a reaching copy_addr into an explicit load of its
// source address, inserted immediately after the copy, and returns that
// load's result. This is the one case where promotion's fast path needs to
// fabricate a new instruction rather than just reusing an existing value:
// a copy_addr carries no ValueID of its own to hand back.
func (p *LoadPromoter) explodeCopyAddr(block *air.Block, copyAddr *air.Instr, ty types.TypeID) (air.ValueID, bool) {
	idx := block.IndexOf(copyAddr)
	if idx < 0 || p.NextID == nil {
		return air.NoValueID, false
	}
	id := p.NextID()
	block.InsertBefore(idx+1, &air.Instr{
		ID:   id,
		Kind: air.InstrLoad,
		Type: ty,
		Span: copyAddr.Span,
		Load: air.LoadInstr{Addr: copyAddr.CopyAddr.Src},
	})
	return id, true
}

// resolve runs the backward scan for one load group, then tries the fast
// path (every bucket resolving to the same writing instruction at matching
// offsets, no new instructions needed) before falling back to general
// reconstruction.
func (p *LoadPromoter) resolve(u *Uses, g *assignGroup, block *air.Block, loadIdx int) (air.ValueID, bool) {
	resolved, ok := p.backwardScan(u, g, block, loadIdx)
	if !ok {
		return air.NoValueID, false
	}
	// No bucket has a reaching write in this block: the load stays a real
	// memory load.
	if len(resolved) == 0 {
		return air.NoValueID, false
	}
	if value, ok := p.fastPathValue(g, block, resolved); ok {
		return value, true
	}
	return p.reconstruct(g, block, resolved)
}

// backwardScan walks block backward from loadIdx, recording the nearest
// reaching write for every bucket g.Buckets covers. A release found for any
// of them aborts the whole scan: memory known destroyed before this load
// cannot be promoted from, no matter what any other bucket resolved to. A
// bucket left unresolved when the scan runs out of block is not an error
// here — reconstruct treats it as "no reaching write" and may still
// synthesize a direct sub-load for it.
func (p *LoadPromoter) backwardScan(u *Uses, g *assignGroup, block *air.Block, loadIdx int) (map[int]reachingWrite, bool) {
	pending := make(map[int]bool, len(g.Buckets))
	for _, bi := range g.Buckets {
		pending[bi] = true
	}
	resolved := make(map[int]reachingWrite, len(g.Buckets))

	for i := loadIdx - 1; i >= 0 && len(pending) > 0; i-- {
		in := block.Instrs[i]
		if in.Dead {
			continue
		}
		for bi := range pending {
			rw, found := findBucketEffect(u.Buckets[bi], in)
			if !found {
				continue
			}
			if rw.instr == nil {
				// A release or other terminal effect with no reaching
				// value: this bucket cannot be promoted.
				return nil, false
			}
			resolved[bi] = rw
			delete(pending, bi)
		}
	}
	return resolved, true
}

// fastPathValue succeeds only when every bucket the load covers resolved to
// the one writing instruction, at consecutive offsets matching the load's
// own bucket order — meaning that instruction's stored value already IS
// the whole loaded value, with nothing to decompose or rebuild.
func (p *LoadPromoter) fastPathValue(g *assignGroup, block *air.Block, resolved map[int]reachingWrite) (air.ValueID, bool) {
	var source *air.Instr
	for _, bi := range g.Buckets {
		rw, ok := resolved[bi]
		if !ok {
			return air.NoValueID, false
		}
		if source == nil {
			source = rw.instr
		} else if rw.instr != source {
			return air.NoValueID, false
		}
	}
	if source == nil {
		return air.NoValueID, false
	}
	for want, bi := range g.Buckets {
		if resolved[bi].offset != want {
			return air.NoValueID, false
		}
	}

	switch source.Kind {
	case air.InstrStore:
		return source.Store.Value, true
	case air.InstrAssign:
		return source.Assign.Value, true
	case air.InstrCopyAddr:
		if !p.EnableCopyAddrForwarding {
			return air.NoValueID, false
		}
		return p.explodeCopyAddr(block, source, g.Instr.Type)
	default:
		return air.NoValueID, false
	}
}

// reconstruct is the spec's general aggregate-reconstruction algorithm:
// build the loaded value recursively out of each bucket's independent
// resolution, deferring every synthesized instruction into ops until the
// whole tree succeeds, so a failed attempt never pollutes the function with
// half-built addressing or extraction code.
func (p *LoadPromoter) reconstruct(g *assignGroup, block *air.Block, resolved map[int]reachingWrite) (air.ValueID, bool) {
	if p.Types == nil || p.NextID == nil {
		return air.NoValueID, false
	}
	var ops []*air.Instr
	value, ok := p.buildValue(g, block, resolved, 0, g.Instr.Type, &ops)
	if !ok {
		return air.NoValueID, false
	}
	if len(ops) > 0 {
		idx := block.IndexOf(g.Instr)
		if idx < 0 {
			return air.NoValueID, false
		}
		block.InsertBefore(idx, ops...)
	}
	return value, true
}

// buildValue builds the value occupying local bucket range
// [localBase, localBase+BucketCount(ty)) of g's load, recursing through
// ty's tuple structure and gluing resolved elements back together with a
// tuple instruction. A struct is never recursed into: definiteinit tracks a
// struct as exactly one bucket regardless of field count, so a struct-typed
// element is always resolved as a single leaf.
func (p *LoadPromoter) buildValue(g *assignGroup, block *air.Block, resolved map[int]reachingWrite, localBase int, ty types.TypeID, ops *[]*air.Instr) (air.ValueID, bool) {
	if BucketCount(p.Types, ty) <= 1 {
		return p.resolveLeaf(g, block, resolved, localBase, ty, ops)
	}
	info, ok := p.Types.TupleInfo(ty)
	if !ok {
		return air.NoValueID, false
	}
	elems := make([]air.ValueID, len(info.Elems))
	offset := 0
	for i, e := range info.Elems {
		v, ok := p.buildValue(g, block, resolved, localBase+offset, e, ops)
		if !ok {
			return air.NoValueID, false
		}
		elems[i] = v
		offset += BucketCount(p.Types, e)
	}
	id := p.NextID()
	*ops = append(*ops, &air.Instr{
		ID:   id,
		Kind: air.InstrTuple,
		Type: ty,
		Span: g.Instr.Span,
		Tuple: air.TupleInstr{Elems: elems},
	})
	return id, true
}

// resolveLeaf resolves the single bucket at local position localBase (ty
// has BucketCount 1) to a value: from its reaching write's stored value,
// decomposed with a tuple_extract first if that write's destination was
// wider than this one bucket, or — when the bucket has no reaching write at
// all — from a freshly synthesized load of its own address, legal only
// when InitDataflow already considers it definitely initialized here,
// since nothing else tells us the address holds a value worth reading.
func (p *LoadPromoter) resolveLeaf(g *assignGroup, block *air.Block, resolved map[int]reachingWrite, localBase int, ty types.TypeID, ops *[]*air.Instr) (air.ValueID, bool) {
	bucket := g.Buckets[localBase]
	if rw, ok := resolved[bucket]; ok {
		switch rw.instr.Kind {
		case air.InstrStore:
			return p.valueFromWrite(rw, rw.instr.Store.Addr, rw.instr.Store.Value, ops)
		case air.InstrAssign:
			return p.valueFromWrite(rw, rw.instr.Assign.Addr, rw.instr.Assign.Value, ops)
		case air.InstrCopyAddr:
			if !p.EnableCopyAddrForwarding {
				return air.NoValueID, false
			}
			return p.explodeCopyAddr(block, rw.instr, ty)
		default:
			return air.NoValueID, false
		}
	}
	return p.synthesizeSubLoad(g, block, bucket, localBase, ops)
}

// valueFromWrite returns the value a store or assign into addr contributed
// to one bucket: the stored value itself when addr's pointee is exactly one
// bucket wide, or a tuple_extract at rw's recorded offset out of it when
// addr's pointee is wider (the write covered this bucket and others beside
// it).
func (p *LoadPromoter) valueFromWrite(rw reachingWrite, addr, value air.ValueID, ops *[]*air.Instr) (air.ValueID, bool) {
	destTy, ok := p.destType(addr)
	if !ok || BucketCount(p.Types, destTy) <= 1 {
		return value, true
	}
	return ExtractBucket(p.Types, ops, p.NextID, value, destTy, rw.offset), true
}

// destType looks up the pointee type addr was declared with, from the
// instruction that produced it (tuple_element_addr, struct_element_addr, or
// one of the three allocation-site kinds all record their own result type
// this way).
func (p *LoadPromoter) destType(addr air.ValueID) (types.TypeID, bool) {
	if p.Index == nil {
		return types.NoTypeID, false
	}
	def, ok := p.Index.defOf(addr)
	if !ok {
		return types.NoTypeID, false
	}
	return def.Type, true
}

// synthesizeSubLoad emits a direct load of bucket's own address, the
// general algorithm's fallback for an element with no reaching write this
// scan could find. Only legal when the bucket's own InitDataflow already
// answers Yes immediately before the original load: that is the only
// guarantee, absent a reaching write to point at, that the address holds a
// value and not uninitialized memory.
func (p *LoadPromoter) synthesizeSubLoad(g *assignGroup, block *air.Block, bucket, localBase int, ops *[]*air.Instr) (air.ValueID, bool) {
	if p.Flows == nil || bucket < 0 || bucket >= len(p.Flows) {
		return air.NoValueID, false
	}
	if p.Flows[bucket].VerdictAt(block.ID, g.Instr) != VerdictYes {
		return air.NoValueID, false
	}
	addr, elemTy := BuildBucketAddr(p.Types, ops, p.NextID, g.Instr.Load.Addr, g.Instr.Type, localBase)
	id := p.NextID()
	*ops = append(*ops, &air.Instr{
		ID:   id,
		Kind: air.InstrLoad,
		Type: elemTy,
		Span: g.Instr.Span,
		Load: air.LoadInstr{Addr: addr},
	})
	return id, true
}

// findBucketEffect reports whether in is recorded as a write (or release)
// of bucket b, and if it is a write, which offset within its aggregate
// value landed there.
func findBucketEffect(b *bucketState, in *air.Instr) (reachingWrite, bool) {
	for _, use := range b.uses {
		if use.Instr != in || !use.Valid {
			continue
		}
		switch use.Kind {
		case UseStore, UsePartialStore:
			return reachingWrite{instr: in, offset: use.Offset}, true
		case UseRelease:
			return reachingWrite{}, true
		}
	}
	return reachingWrite{}, false
}

// replaceAllUses rewrites every operand equal to old, across the whole
// function, to replacement, using the cached user index to avoid a full
// rescan.
func (p *LoadPromoter) replaceAllUses(old, replacement air.ValueID) {
	for _, user := range p.Index.users[old] {
		replaceOperand(user, old, replacement)
	}
}

// replaceOperand mutates in's operand fields in place, substituting
// replacement for every occurrence of old. Mirrors operandsOf's case list
// exactly, since every kind that reads a ValueID must also support having
// it rewritten.
func replaceOperand(in *air.Instr, old, replacement air.ValueID) {
	sub := func(v air.ValueID) air.ValueID {
		if v == old {
			return replacement
		}
		return v
	}
	switch in.Kind {
	case air.InstrMarkUninitialized:
		in.MarkUninitialized.Operand = sub(in.MarkUninitialized.Operand)
	case air.InstrLoad:
		in.Load.Addr = sub(in.Load.Addr)
	case air.InstrStore:
		in.Store.Value = sub(in.Store.Value)
		in.Store.Addr = sub(in.Store.Addr)
	case air.InstrWeakLoad:
		in.WeakLoad.Addr = sub(in.WeakLoad.Addr)
	case air.InstrWeakStore:
		in.WeakStore.Value = sub(in.WeakStore.Value)
		in.WeakStore.Addr = sub(in.WeakStore.Addr)
	case air.InstrCopyAddr:
		in.CopyAddr.Src = sub(in.CopyAddr.Src)
		in.CopyAddr.Dst = sub(in.CopyAddr.Dst)
	case air.InstrAssign:
		in.Assign.Value = sub(in.Assign.Value)
		in.Assign.Addr = sub(in.Assign.Addr)
	case air.InstrTupleElementAddr:
		in.TupleElementAddr.Addr = sub(in.TupleElementAddr.Addr)
	case air.InstrStructElementAddr:
		in.StructElementAddr.Addr = sub(in.StructElementAddr.Addr)
	case air.InstrTupleExtract:
		in.TupleExtract.Value = sub(in.TupleExtract.Value)
	case air.InstrStructExtract:
		in.StructExtract.Value = sub(in.StructExtract.Value)
	case air.InstrTuple:
		for i, v := range in.Tuple.Elems {
			in.Tuple.Elems[i] = sub(v)
		}
	case air.InstrApply:
		in.Apply.Callee = sub(in.Apply.Callee)
		for i := range in.Apply.Args {
			in.Apply.Args[i].Value = sub(in.Apply.Args[i].Value)
		}
	case air.InstrInitializeVar:
		in.InitializeVar.Addr = sub(in.InitializeVar.Addr)
	case air.InstrInjectEnumAddr:
		in.InjectEnumAddr.Addr = sub(in.InjectEnumAddr.Addr)
	case air.InstrInitExistentialAddr:
		in.InitExistentialAddr.Addr = sub(in.InitExistentialAddr.Addr)
	case air.InstrEnumDataAddr:
		in.EnumDataAddr.Addr = sub(in.EnumDataAddr.Addr)
	case air.InstrUpcastExistential:
		in.UpcastExistential.Src = sub(in.UpcastExistential.Src)
		if in.UpcastExistential.HasDst {
			in.UpcastExistential.Dst = sub(in.UpcastExistential.Dst)
		}
	case air.InstrProjectExistential:
		in.ProjectExistential.Addr = sub(in.ProjectExistential.Addr)
	case air.InstrProtocolMethod:
		in.ProtocolMethod.Addr = sub(in.ProtocolMethod.Addr)
	case air.InstrRelease:
		in.Release.Addr = sub(in.Release.Addr)
	case air.InstrMarkFunctionEscape:
		for i, v := range in.MarkFunctionEscape.Operands {
			in.MarkFunctionEscape.Operands[i] = sub(v)
		}
	case air.InstrOther:
		for i, v := range in.Other.Operands {
			in.Other.Operands[i] = sub(v)
		}
	}
}
