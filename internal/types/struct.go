package types

import (
	"fmt"
	"slices"

	"fortio.org/safecast"

	"diaudit/internal/source"
)

// StructField describes a single field inside a struct type.
type StructField struct {
	Name source.StringID
	Type TypeID
}

// StructInfo stores metadata for a struct type. Structs are registered
// before their fields are known (to let a field's own type reference the
// struct recursively through a pointer/own), then SetStructFields fills
// them in once the declaration has been fully resolved.
type StructInfo struct {
	Name   source.StringID
	Decl   source.Span
	Fields []StructField
}

// RegisterStruct allocates a struct type slot and returns its TypeID. Each
// call allocates a fresh, distinct TypeID even if name was seen before —
// nominal identity is the declaration site, not the name.
func (in *Interner) RegisterStruct(name source.StringID, decl source.Span) TypeID {
	slot := in.appendStructInfo(StructInfo{Name: name, Decl: decl})
	return in.internRaw(Type{Kind: KindStruct, Payload: slot})
}

// SetStructFields stores the resolved field descriptors for the struct type.
func (in *Interner) SetStructFields(id TypeID, fields []StructField) {
	info := in.structInfo(id)
	if info == nil {
		return
	}
	info.Fields = slices.Clone(fields)
}

// StructInfo returns metadata for id.
func (in *Interner) StructInfo(id TypeID) (*StructInfo, bool) {
	info := in.structInfo(id)
	if info == nil {
		return nil, false
	}
	return info, true
}

func (in *Interner) structInfo(id TypeID) *StructInfo {
	if id == NoTypeID {
		return nil
	}
	t, ok := in.Lookup(id)
	if !ok || t.Kind != KindStruct {
		return nil
	}
	if t.Payload == 0 || int(t.Payload) >= len(in.structs) {
		return nil
	}
	return &in.structs[t.Payload]
}

func (in *Interner) appendStructInfo(info StructInfo) uint32 {
	in.structs = append(in.structs, info)
	slot, err := safecast.Conv[uint32](len(in.structs) - 1)
	if err != nil {
		panic(fmt.Errorf("types: struct table overflow: %w", err))
	}
	return slot
}
