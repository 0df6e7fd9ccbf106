package definiteinit

import (
	"diaudit/internal/air"
	"diaudit/internal/types"
)

// TypeOracle is the narrow set of type-lowering queries AssignLowering and
// LoadPromoter need from the host compiler. aircompat.DefaultOracle is the
// production implementation, backed by the move checker's MovePolicy.
type TypeOracle interface {
	IsTrivial(ty types.TypeID) bool
	EmitDestroy(ops *[]*air.Instr, value air.ValueID)
	EmitLoadOfCopy(ops *[]*air.Instr, nextID func() air.ValueID, addr air.ValueID, ty types.TypeID) air.ValueID
	EmitStoreOfCopy(ops *[]*air.Instr, value, addr air.ValueID)
}

// assignGroup collects every bucket one Assign instruction covers, in
// ascending bucket order, since a whole-aggregate assign of the
// allocation's own root type is recorded once per bucket by UseCollector.
type assignGroup struct {
	Instr   *air.Instr
	Buckets []int
}

// collectAssignGroups walks u's bucket use lists and groups them back by
// the originating Assign instruction.
func collectAssignGroups(u *Uses) []*assignGroup {
	groups := make(map[*air.Instr]*assignGroup)
	var order []*assignGroup
	for bi, b := range u.Buckets {
		for _, use := range b.uses {
			if !use.Valid || use.Instr.Kind != air.InstrAssign {
				continue
			}
			if use.Kind != UseStore && use.Kind != UsePartialStore {
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

// AssignLowering rewrites every assign instruction covering allocation u
// into a plain store (destination known uninitialized), a full
// load-old/store-new/destroy-old sequence (destination known initialized,
// non-trivial type), or a bare store (destination known initialized,
// trivial type needs no destroy). An assign whose covered buckets disagree
// is left alone and reported through Diagnose instead of rewritten, since
// there is no single correct lowering for it.
type AssignLowering struct {
	Fn     *air.Function
	Oracle TypeOracle
	NextID func() air.ValueID

	// Diagnose is called once per assign instruction whose covered buckets
	// do not agree on a verdict (PassDriver wires this to a diag.Reporter
	// call naming the allocation).
	Diagnose func(instr *air.Instr, buckets []int, verdicts []Verdict)

	// Skip names assign instructions PassDriver already diagnosed as a
	// partial store into a not-yet-initialized struct before this lowering
	// ran: the original never lowers an assign it has already rejected, so
	// neither do we.
	Skip map[*air.Instr]bool
}

// Run rewrites u's allocation's assign instructions in place, returning the
// count of instructions rewritten (not counting ones left for Diagnose).
func (a *AssignLowering) Run(u *Uses, blockOf map[*air.Instr]air.BlockID, flows []*InitDataflow) int {
	rewritten := 0
	for _, g := range collectAssignGroups(u) {
		if a.Skip != nil && a.Skip[g.Instr] {
			continue
		}
		verdicts := make([]Verdict, len(g.Buckets))
		blockID := blockOf[g.Instr]
		for i, bi := range g.Buckets {
			verdicts[i] = flows[bi].VerdictAt(blockID, g.Instr)
		}
		switch classifyGroup(verdicts) {
		case VerdictYes:
			a.lowerInitialized(g)
			rewritten++
		case VerdictNo:
			a.lowerUninitialized(g)
			rewritten++
		default:
			if a.Diagnose != nil {
				a.Diagnose(g.Instr, g.Buckets, verdicts)
			}
		}
	}
	return rewritten
}

// classifyGroup folds a group's per-bucket verdicts into one of Yes, No, or
// Partial (meaning "disagreement" here, not the per-bucket Partial
// verdict): unanimous Yes or unanimous No rewrite cleanly, anything else is
// reported rather than guessed at.
func classifyGroup(verdicts []Verdict) Verdict {
	allYes, allNo := true, true
	for _, v := range verdicts {
		if v != VerdictYes {
			allYes = false
		}
		if v != VerdictNo {
			allNo = false
		}
	}
	switch {
	case allYes:
		return VerdictYes
	case allNo:
		return VerdictNo
	default:
		return VerdictPartial
	}
}

// lowerUninitialized rewrites "assign value to addr" into a plain
// initializing store: the destination holds no live value to destroy.
func (a *AssignLowering) lowerUninitialized(g *assignGroup) {
	in := g.Instr
	in.Kind = air.InstrStore
	in.Store = air.StoreInstr{Value: in.Assign.Value, Addr: in.Assign.Addr}
}

// lowerInitialized rewrites "assign value to addr" for a destination that
// already holds a live value. Trivial types need no destroy, so the rewrite
// there is just as cheap as the uninitialized case; non-trivial types get
// the old value loaded out before the new one is stored in, and that loaded
// old value destroyed right after the store.
func (a *AssignLowering) lowerInitialized(g *assignGroup) {
	in := g.Instr
	ty := in.Type
	value, addr := in.Assign.Value, in.Assign.Addr
	if a.Oracle.IsTrivial(ty) {
		in.Kind = air.InstrStore
		in.Store = air.StoreInstr{Value: value, Addr: addr}
		return
	}

	var pre []*air.Instr
	old := a.Oracle.EmitLoadOfCopy(&pre, a.NextID, addr, ty)
	in.Kind = air.InstrStore
	in.Store = air.StoreInstr{Value: value, Addr: addr}

	var post []*air.Instr
	a.Oracle.EmitDestroy(&post, old)

	spliceAround(a.Fn, in, pre, post)
}

// spliceAround finds the block containing target and inserts pre
// immediately before it and post immediately after it.
func spliceAround(fn *air.Function, target *air.Instr, pre, post []*air.Instr) {
	for bi := range fn.Blocks {
		b := &fn.Blocks[bi]
		idx := b.IndexOf(target)
		if idx < 0 {
			continue
		}
		if len(post) > 0 {
			b.InsertBefore(idx+1, post...)
		}
		if len(pre) > 0 {
			b.InsertBefore(idx, pre...)
		}
		return
	}
}
