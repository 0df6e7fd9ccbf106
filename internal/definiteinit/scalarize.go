package definiteinit

import (
	"diaudit/internal/air"
	"diaudit/internal/types"
)

// scalarizeAssigns rewrites every whole-tuple-typed assign instruction in fn
// into one assign per top-level field, before any allocation's Uses table is
// built. Grounded on the original's AssignInst branch of its scalarization
// pass (_examples/original_source/lib/SILPasses/DefiniteInitialization.cpp,
// getScalarizedElementAddresses/getScalarizedElements, the AssignInst case
// around line 1519): a tuple's fields are allowed to disagree on
// initialization state — one already stored, another not — and AssignLowering
// needs each field's own independent lowering decision, not one unanimous
// verdict forced across all of them. Structs are never scalarized (they stay
// one opaque bucket at any nesting depth); weak assigns don't exist in this
// IR and wouldn't be scalarized either way.
func scalarizeAssigns(fn *air.Function, tin *types.Interner, nextID func() air.ValueID) bool {
	changed := false
	for bi := range fn.Blocks {
		b := &fn.Blocks[bi]
		var out []*air.Instr
		rewroteBlock := false
		for _, in := range b.Instrs {
			if !in.Dead && in.Kind == air.InstrAssign && isTupleType(tin, in.Type) {
				out = append(out, scalarizeAssign(tin, nextID, in)...)
				rewroteBlock = true
				continue
			}
			out = append(out, in)
		}
		if rewroteBlock {
			b.Instrs = out
			changed = true
		}
	}
	return changed
}

func isTupleType(tin *types.Interner, ty types.TypeID) bool {
	t, ok := tin.Lookup(ty)
	return ok && t.Kind == types.KindTuple
}

// scalarizeAssign replaces one whole-tuple assign with one assign per
// top-level field: a tuple_element_addr materializes each field's address
// (getScalarizedElementAddresses), a tuple_extract pulls the matching field
// out of the already-materialized aggregate value (getScalarizedElements),
// and a narrower assign ties them together. A field that is itself
// tuple-typed is scalarized again immediately — the original's "recurse down
// into the newly created element address computations" — rather than left
// for a later pass to find, since the field assigns this function fabricates
// never go through the block-walking loop scalarizeAssigns drives.
func scalarizeAssign(tin *types.Interner, nextID func() air.ValueID, in *air.Instr) []*air.Instr {
	info, ok := tin.TupleInfo(in.Type)
	if !ok {
		return []*air.Instr{in}
	}
	addr, value, span := in.Assign.Addr, in.Assign.Value, in.Span
	out := make([]*air.Instr, 0, len(info.Elems)*3)
	for i, e := range info.Elems {
		addrID := nextID()
		out = append(out, &air.Instr{
			ID:               addrID,
			Kind:             air.InstrTupleElementAddr,
			Type:             e,
			Span:             span,
			TupleElementAddr: air.TupleElementAddrInstr{Addr: addr, Index: i},
		})
		valID := nextID()
		out = append(out, &air.Instr{
			ID:   valID,
			Kind: air.InstrTupleExtract,
			Type: e,
			Span: span,
			TupleExtract: air.TupleExtractInstr{Value: value, Index: i},
		})
		elemAssign := &air.Instr{
			Kind:   air.InstrAssign,
			Type:   e,
			Span:   span,
			Assign: air.AssignInstr{Value: valID, Addr: addrID},
		}
		if isTupleType(tin, e) {
			out = append(out, scalarizeAssign(tin, nextID, elemAssign)...)
		} else {
			out = append(out, elemAssign)
		}
	}
	return out
}
