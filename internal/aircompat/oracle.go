// Package aircompat adapts the host compiler's existing type-lowering and
// move-policy facilities to the narrow TypeOracle contract
// internal/definiteinit needs.
package aircompat

import (
	"diaudit/internal/air"
	"diaudit/internal/types"
)

// DefaultOracle answers the type queries internal/definiteinit issues while
// lowering assigns and promoting loads, backed by the same MovePolicy
// vocabulary the teacher's move checker used.
type DefaultOracle struct {
	Types *types.Interner
	Moves *MovePlan
}

// IsTrivial reports whether a value of ty needs no destroy/copy bookkeeping:
// AssignLowering emits a single store for trivial destinations even when the
// verdict is Yes, skipping the load-store-destroy sequence. The answer comes
// from the type's shape alone; the move plan's per-value MoveCopy and
// MoveNeedsDrop overrides are applied only by IsTrivialValue.
func (o *DefaultOracle) IsTrivial(ty types.TypeID) bool {
	if o == nil || o.Types == nil {
		return true
	}
	t, ok := o.Types.Lookup(ty)
	if !ok {
		return true
	}
	switch t.Kind {
	case types.KindBool, types.KindInt, types.KindUint, types.KindFloat,
		types.KindUnit, types.KindNothing, types.KindPointer:
		return true
	case types.KindReference:
		return true
	case types.KindTuple:
		info, ok := o.Types.TupleInfo(ty)
		if !ok {
			return false
		}
		for _, elem := range info.Elems {
			if !o.IsTrivial(elem) {
				return false
			}
		}
		return true
	case types.KindStruct:
		info, ok := o.Types.StructInfo(ty)
		if !ok {
			return false
		}
		for _, f := range info.Fields {
			if !o.IsTrivial(f.Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// IsTrivialValue is IsTrivial's move-plan-aware sibling: a caller that
// already knows which value is being assigned, not just its type, can call
// this instead to let a per-value MoveCopy/MoveNeedsDrop verdict override
// the type-shape default. Neither LoadPromoter nor AssignLowering call this
// today (TypeOracle only requires the type-only form), but DefaultOracle
// keeps it wired and tested since a caller with an air.ValueID in hand
// should get the more precise answer when one is available.
func (o *DefaultOracle) IsTrivialValue(value air.ValueID, ty types.TypeID) bool {
	if o == nil {
		return true
	}
	switch o.Moves.PolicyOf(value) {
	case MoveCopy:
		return true
	case MoveNeedsDrop:
		return false
	default:
		return o.IsTrivial(ty)
	}
}

// EmitDestroy appends a Release of value to ops, matching the move
// checker's own MoveNeedsDrop bookkeeping for the same local.
func (o *DefaultOracle) EmitDestroy(ops *[]*air.Instr, value air.ValueID) {
	*ops = append(*ops, &air.Instr{
		Kind:    air.InstrRelease,
		Release: air.ReleaseInstr{Addr: value},
	})
}

// EmitLoadOfCopy appends a Load of addr to ops and returns its result ID.
func (o *DefaultOracle) EmitLoadOfCopy(ops *[]*air.Instr, nextID func() air.ValueID, addr air.ValueID, ty types.TypeID) air.ValueID {
	id := nextID()
	*ops = append(*ops, &air.Instr{
		ID:   id,
		Kind: air.InstrLoad,
		Type: ty,
		Load: air.LoadInstr{Addr: addr},
	})
	return id
}

// EmitStoreOfCopy appends a Store of value into addr to ops.
func (o *DefaultOracle) EmitStoreOfCopy(ops *[]*air.Instr, value, addr air.ValueID) {
	*ops = append(*ops, &air.Instr{
		Kind:  air.InstrStore,
		Store: air.StoreInstr{Value: value, Addr: addr},
	})
}
