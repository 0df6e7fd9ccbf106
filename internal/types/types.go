// Package types provides a minimal structural type interner: scalars,
// pointers, references, owning pointers, tuples, and structs. It gives
// internal/definiteinit concrete field layouts to walk.
package types

import "fmt"

// TypeID uniquely identifies a type inside an Interner.
type TypeID uint32

// NoTypeID marks the absence of a type.
const NoTypeID TypeID = 0

// Kind enumerates the supported kinds of types.
type Kind uint8

const (
	KindInvalid Kind = iota
	KindUnit
	KindNothing
	KindBool
	KindString
	KindInt
	KindUint
	KindFloat
	KindArray
	KindPointer
	KindReference
	KindOwn
	KindTuple
	KindStruct
)

func (k Kind) String() string {
	switch k {
	case KindInvalid:
		return "invalid"
	case KindUnit:
		return "unit"
	case KindNothing:
		return "nothing"
	case KindBool:
		return "bool"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindUint:
		return "uint"
	case KindFloat:
		return "float"
	case KindArray:
		return "array"
	case KindPointer:
		return "pointer"
	case KindReference:
		return "reference"
	case KindOwn:
		return "own"
	case KindTuple:
		return "tuple"
	case KindStruct:
		return "struct"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

// Width captures the precision of integers/floats.
type Width uint8

const (
	WidthAny Width = 0
	Width8   Width = 8
	Width16  Width = 16
	Width32  Width = 32
	Width64  Width = 64
)

// ArrayDynamicLength marks arrays with unknown compile-time length.
const ArrayDynamicLength = ^uint32(0)

// Type is a compact descriptor for any supported type. Payload indexes into
// the Interner's tuples or structs table, depending on Kind; it is 0 (and
// meaningless) for every other kind.
type Type struct {
	Kind    Kind
	Elem    TypeID
	Count   uint32
	Width   Width
	Mutable bool
	Payload uint32
}

// MakeInt describes a signed integer of the given width (WidthAny for "int").
func MakeInt(width Width) Type { return Type{Kind: KindInt, Width: width} }

// MakeUint describes an unsigned integer type.
func MakeUint(width Width) Type { return Type{Kind: KindUint, Width: width} }

// MakeFloat describes a floating-point type.
func MakeFloat(width Width) Type { return Type{Kind: KindFloat, Width: width} }

// MakeArray describes an array of elem, count elements long.
// Use ArrayDynamicLength for an open-ended array.
func MakeArray(elem TypeID, count uint32) Type {
	return Type{Kind: KindArray, Elem: elem, Count: count}
}

// MakePointer describes a raw pointer to elem.
func MakePointer(elem TypeID) Type { return Type{Kind: KindPointer, Elem: elem} }

// MakeReference describes &elem or &mut elem depending on mutable.
func MakeReference(elem TypeID, mutable bool) Type {
	return Type{Kind: KindReference, Elem: elem, Mutable: mutable}
}

// MakeOwn describes an owning pointer to elem. Values behind an own pointer
// have non-trivial destruction semantics.
func MakeOwn(elem TypeID) Type { return Type{Kind: KindOwn, Elem: elem} }
