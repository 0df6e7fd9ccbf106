package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"
)

// TupleInfo stores the element types for a tuple type, in declaration order.
type TupleInfo struct {
	Elems []TypeID
}

// RegisterTuple creates or finds a tuple type with the given elements.
func (in *Interner) RegisterTuple(elems []TypeID) TypeID {
	key := tupleKey(elems)
	if id, ok := in.tupleIndex()[key]; ok {
		return id
	}
	slot := in.appendTupleInfo(TupleInfo{Elems: slices.Clone(elems)})
	id := in.internRaw(Type{Kind: KindTuple, Payload: slot})
	in.tupleIndex()[key] = id
	return id
}

// TupleInfo returns the element types for a tuple TypeID.
func (in *Interner) TupleInfo(id TypeID) (*TupleInfo, bool) {
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindTuple {
		return nil, false
	}
	if t.Payload == 0 || int(t.Payload) >= len(in.tuples) {
		return nil, false
	}
	return &in.tuples[t.Payload], true
}

func (in *Interner) appendTupleInfo(info TupleInfo) uint32 {
	in.tuples = append(in.tuples, info)
	slot, err := safecast.Conv[uint32](len(in.tuples) - 1)
	if err != nil {
		panic(fmt.Errorf("types: tuple table overflow: %w", err))
	}
	return slot
}

// tupleIndex and tupleKey deduplicate tuple registrations by element list,
// since Type itself (Kind+Payload) can't express structural equality for
// aggregates the way the scalar typeKey does.
func (in *Interner) tupleIndex() map[string]TypeID {
	if in.tupleIdx == nil {
		in.tupleIdx = make(map[string]TypeID, 16)
	}
	return in.tupleIdx
}

func tupleKey(elems []TypeID) string {
	b := make([]byte, 0, len(elems)*4)
	for _, e := range elems {
		b = append(b, byte(e), byte(e>>8), byte(e>>16), byte(e>>24))
	}
	return string(b)
}
