// Package definiteinit verifies that every memory allocation in a function
// is written before it is read, passed by reference, captured, or released,
// and opportunistically replaces loads of definitely-initialized elements
// with the values that were stored into them.
//
// The element index used throughout this package is the "bucket" from the
// spec this pass implements: tuples flatten recursively (nested tuples
// contribute one bucket per leaf), structs never do — a struct-typed
// allocation, or a struct-typed tuple field, is exactly one bucket no
// matter how many stored properties it declares. AccessPathCalculus's
// separate, fully-flattened SubElementCount exists only for diagnostic
// path naming and for extracting a field out of an already-materialized
// aggregate value; it is not the index InitDataflow or UseCollector track.
package definiteinit

import (
	"fmt"

	"diaudit/internal/air"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

// SubElementCount is the fully-flattened leaf count of ty: 1 for a scalar,
// the sum over tuple fields, and (unlike BucketCount) the sum over struct
// fields too.
func SubElementCount(tin *types.Interner, ty types.TypeID) int {
	t, ok := tin.Lookup(ty)
	if !ok {
		return 1
	}
	switch t.Kind {
	case types.KindTuple:
		info, ok := tin.TupleInfo(ty)
		if !ok {
			return 1
		}
		n := 0
		for _, e := range info.Elems {
			n += SubElementCount(tin, e)
		}
		return n
	case types.KindStruct:
		info, ok := tin.StructInfo(ty)
		if !ok {
			return 1
		}
		n := 0
		for _, f := range info.Fields {
			n += SubElementCount(tin, f.Type)
		}
		return n
	default:
		return 1
	}
}

// BucketCount is the bucket-granularity count definiteinit's dataflow
// tracks: tuples flatten recursively, a struct (at any depth) is always
// exactly one bucket.
func BucketCount(tin *types.Interner, ty types.TypeID) int {
	t, ok := tin.Lookup(ty)
	if !ok || t.Kind != types.KindTuple {
		return 1
	}
	info, ok := tin.TupleInfo(ty)
	if !ok {
		return 1
	}
	n := 0
	for _, e := range info.Elems {
		n += BucketCount(tin, e)
	}
	return n
}

// ExtractBucket emits a tuple_extract that descends from a materialized
// tuple value down to the sub-value occupying bucket idx (BucketCount
// space, unlike ExtractSubElement's SubElementCount space): a struct bucket
// is never descended into, since a struct is always exactly one bucket.
// Used by LoadPromoter's general reconstruction path to pull a load's
// missing element out of a wider value some other bucket already resolved.
func ExtractBucket(tin *types.Interner, ops *[]*air.Instr, nextID func() air.ValueID, value air.ValueID, ty types.TypeID, idx int) air.ValueID {
	t, ok := tin.Lookup(ty)
	if !ok || t.Kind != types.KindTuple {
		return value
	}
	info, ok := tin.TupleInfo(ty)
	if !ok {
		return value
	}
	offset := 0
	for i, e := range info.Elems {
		n := BucketCount(tin, e)
		if idx < offset+n {
			id := nextID()
			*ops = append(*ops, &air.Instr{
				ID:   id,
				Kind: air.InstrTupleExtract,
				Type: e,
				TupleExtract: air.TupleExtractInstr{Value: value, Index: i},
			})
			return ExtractBucket(tin, ops, nextID, id, e, idx-offset)
		}
		offset += n
	}
	return value
}

// BuildBucketAddr emits a tuple_element_addr that descends from addr (of
// type ty) down to the address of bucket idx, appending it to ops and
// returning the synthesized address and its pointee type. Used by
// LoadPromoter's general reconstruction path to synthesize a direct
// sub-load for a bucket that has no reaching write of its own to reuse.
func BuildBucketAddr(tin *types.Interner, ops *[]*air.Instr, nextID func() air.ValueID, addr air.ValueID, ty types.TypeID, idx int) (air.ValueID, types.TypeID) {
	t, ok := tin.Lookup(ty)
	if !ok || t.Kind != types.KindTuple {
		return addr, ty
	}
	info, ok := tin.TupleInfo(ty)
	if !ok {
		return addr, ty
	}
	offset := 0
	for i, e := range info.Elems {
		n := BucketCount(tin, e)
		if idx < offset+n {
			id := nextID()
			*ops = append(*ops, &air.Instr{
				ID:   id,
				Kind: air.InstrTupleElementAddr,
				Type: e,
				TupleElementAddr: air.TupleElementAddrInstr{Addr: addr, Index: i},
			})
			return BuildBucketAddr(tin, ops, nextID, id, e, idx-offset)
		}
		offset += n
	}
	return addr, ty
}

// DefLookup resolves a ValueID to the instruction that produced it. Callers
// build this once per function (see funcIndex.defOf in operands.go).
type DefLookup func(air.ValueID) (*air.Instr, bool)

// AccessPath is the result of walking an address back to its allocation
// root: which bucket it lands in, and whether any struct-element-address
// projection was crossed along the way (the sticky flag that promotes a
// subsequent Store into a PartialStore).
type AccessPath struct {
	Bucket   int
	InStruct bool
}

// TryAccessPath walks addr back through tuple/struct-element-address
// projections to root, accumulating the bucket offset contributed by each
// tuple projection (struct projections contribute none, but set InStruct
// once crossed, and it stays set for every projection after it). It
// returns ok=false if the chain is broken by any other instruction kind,
// or if addr is not reachable from root at all.
func TryAccessPath(tin *types.Interner, defOf DefLookup, root, addr air.ValueID) (AccessPath, bool) {
	if addr == root {
		return AccessPath{}, true
	}
	instr, ok := defOf(addr)
	if !ok {
		return AccessPath{}, false
	}
	switch instr.Kind {
	case air.InstrTupleElementAddr:
		parentAddr := instr.TupleElementAddr.Addr
		parent, ok := defOf(parentAddr)
		if !ok {
			return AccessPath{}, false
		}
		base, ok := TryAccessPath(tin, defOf, root, parentAddr)
		if !ok {
			return AccessPath{}, false
		}
		info, ok := tin.TupleInfo(parent.Type)
		if !ok {
			return AccessPath{}, false
		}
		extra := 0
		for i := 0; i < instr.TupleElementAddr.Index && i < len(info.Elems); i++ {
			extra += BucketCount(tin, info.Elems[i])
		}
		return AccessPath{Bucket: base.Bucket + extra, InStruct: base.InStruct}, true
	case air.InstrStructElementAddr:
		parentAddr := instr.StructElementAddr.Addr
		base, ok := TryAccessPath(tin, defOf, root, parentAddr)
		if !ok {
			return AccessPath{}, false
		}
		return AccessPath{Bucket: base.Bucket, InStruct: true}, true
	default:
		return AccessPath{}, false
	}
}

// PathString renders a dotted, human-readable path for bucket idx of type
// ty, used for diagnostic messages: one ".N" segment per tuple level down to
// the bucket. A struct-typed or scalar level renders nothing, so struct
// field names never appear in the path.
func PathString(tin *types.Interner, strs *source.Interner, ty types.TypeID, idx int) string {
	t, ok := tin.Lookup(ty)
	if !ok || t.Kind != types.KindTuple {
		return ""
	}
	info, ok := tin.TupleInfo(ty)
	if !ok {
		return ""
	}
	offset := 0
	for i, e := range info.Elems {
		n := BucketCount(tin, e)
		if idx < offset+n {
			return fmt.Sprintf(".%d%s", i, PathString(tin, strs, e, idx-offset))
		}
		offset += n
	}
	return ""
}

// ExtractSubElement emits tuple_extract/struct_extract instructions that
// descend from a materialized aggregate value down to the leaf at subIdx
// (fully-flattened, SubElementCount space), appending them to ops.
func ExtractSubElement(tin *types.Interner, ops *[]*air.Instr, nextID func() air.ValueID, value air.ValueID, ty types.TypeID, subIdx int) air.ValueID {
	t, ok := tin.Lookup(ty)
	if !ok {
		return value
	}
	switch t.Kind {
	case types.KindTuple:
		info, ok := tin.TupleInfo(ty)
		if !ok {
			return value
		}
		offset := 0
		for i, e := range info.Elems {
			n := SubElementCount(tin, e)
			if subIdx < offset+n {
				id := nextID()
				*ops = append(*ops, &air.Instr{
					ID:   id,
					Kind: air.InstrTupleExtract,
					Type: e,
					TupleExtract: air.TupleExtractInstr{
						Value: value,
						Index: i,
					},
				})
				return ExtractSubElement(tin, ops, nextID, id, e, subIdx-offset)
			}
			offset += n
		}
		return value
	case types.KindStruct:
		info, ok := tin.StructInfo(ty)
		if !ok {
			return value
		}
		offset := 0
		for i, f := range info.Fields {
			n := SubElementCount(tin, f.Type)
			if subIdx < offset+n {
				id := nextID()
				*ops = append(*ops, &air.Instr{
					ID:   id,
					Kind: air.InstrStructExtract,
					Type: f.Type,
					StructExtract: air.StructExtractInstr{
						Value:     value,
						FieldName: f.Name,
						FieldIdx:  i,
					},
				})
				return ExtractSubElement(tin, ops, nextID, id, f.Type, subIdx-offset)
			}
			offset += n
		}
		return value
	default:
		return value
	}
}
