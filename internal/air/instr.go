package air

import (
	"diaudit/internal/source"
	"diaudit/internal/types"
)

// InstrKind enumerates the instruction shapes definiteinit must recognize.
// Anything the host IR emits that has no dedicated case is lowered by the
// frontend into InstrOther, which the pass treats conservatively as an
// escape of every sub-element it touches.
type InstrKind uint8

const (
	InstrInvalid InstrKind = iota

	// Allocation sites. Every element bucket definiteinit tracks is rooted
	// at one of these three.
	InstrAllocBox           // heap-allocated box
	InstrAllocStack         // stack slot
	InstrMarkUninitialized  // wraps an address already produced elsewhere

	// Plain memory access.
	InstrLoad
	InstrStore
	InstrWeakLoad
	InstrWeakStore
	InstrCopyAddr
	InstrAssign

	// Address projections.
	InstrTupleElementAddr
	InstrStructElementAddr

	// Materialized-value projections, used by extract_sub_element.
	InstrTupleExtract
	InstrStructExtract

	// InstrTuple builds a tuple value out of its already-materialized
	// elements. LoadPromoter's general reconstruction path is the only
	// producer: a tuple load with no single reaching write still promotes
	// when every element resolves independently, by gluing them back
	// together with one of these instead of leaving the load in place.
	InstrTuple

	// Calls.
	InstrApply

	// Enum/existential plumbing.
	InstrInitializeVar
	InstrInjectEnumAddr
	InstrInitExistentialAddr
	InstrEnumDataAddr
	InstrUpcastExistential
	InstrProjectExistential
	InstrProtocolMethod

	// Lifetime.
	InstrRelease
	InstrMarkFunctionEscape

	// Catch-all for every instruction kind definiteinit does not special-case.
	InstrOther
)

func (k InstrKind) String() string {
	switch k {
	case InstrAllocBox:
		return "alloc_box"
	case InstrAllocStack:
		return "alloc_stack"
	case InstrMarkUninitialized:
		return "mark_uninitialized"
	case InstrLoad:
		return "load"
	case InstrStore:
		return "store"
	case InstrWeakLoad:
		return "weak_load"
	case InstrWeakStore:
		return "weak_store"
	case InstrCopyAddr:
		return "copy_addr"
	case InstrAssign:
		return "assign"
	case InstrTupleElementAddr:
		return "tuple_element_addr"
	case InstrStructElementAddr:
		return "struct_element_addr"
	case InstrTupleExtract:
		return "tuple_extract"
	case InstrStructExtract:
		return "struct_extract"
	case InstrTuple:
		return "tuple"
	case InstrApply:
		return "apply"
	case InstrInitializeVar:
		return "initialize_var"
	case InstrInjectEnumAddr:
		return "inject_enum_addr"
	case InstrInitExistentialAddr:
		return "init_existential_addr"
	case InstrEnumDataAddr:
		return "enum_data_addr"
	case InstrUpcastExistential:
		return "upcast_existential"
	case InstrProjectExistential:
		return "project_existential"
	case InstrProtocolMethod:
		return "protocol_method"
	case InstrRelease:
		return "release"
	case InstrMarkFunctionEscape:
		return "mark_function_escape"
	case InstrOther:
		return "other"
	}
	return "invalid"
}

// ParamConvention classifies how an Apply argument is passed, mirroring the
// call-convention introspection the pass needs for rule 4.2.5.
type ParamConvention uint8

const (
	ConvDirect ParamConvention = iota
	ConvIndirectResult
	ConvIndirectInOut
)

// Instr is a single IR instruction. Kind selects which payload field is
// meaningful; Go has no tagged-union sugar so the rest ride along unused,
// matching the shape of internal/mir.Instr.
type Instr struct {
	ID   ValueID
	Kind InstrKind
	Span source.Span

	// Dead marks an instruction erased by the pass. Erased instructions
	// are left in place rather than spliced out, since Use entries elsewhere
	// may still hold a pointer to them; PassDriver's final lowering sweep
	// is what actually drops dead instructions from their block.
	Dead bool

	// Type is the instruction's result type: the pointee type for an
	// address-producing instruction, the value type for a load/extract.
	Type types.TypeID

	AllocBox           AllocBoxInstr
	AllocStack         AllocStackInstr
	MarkUninitialized  MarkUninitializedInstr
	Load               LoadInstr
	Store              StoreInstr
	WeakLoad           WeakLoadInstr
	WeakStore          WeakStoreInstr
	CopyAddr           CopyAddrInstr
	Assign             AssignInstr
	TupleElementAddr   TupleElementAddrInstr
	StructElementAddr  StructElementAddrInstr
	TupleExtract       TupleExtractInstr
	StructExtract      StructExtractInstr
	Tuple              TupleInstr
	Apply              ApplyInstr
	InitializeVar      InitializeVarInstr
	InjectEnumAddr     InjectEnumAddrInstr
	InitExistentialAddr InitExistentialAddrInstr
	EnumDataAddr       EnumDataAddrInstr
	UpcastExistential  UpcastExistentialInstr
	ProjectExistential ProjectExistentialInstr
	ProtocolMethod     ProtocolMethodInstr
	Release            ReleaseInstr
	MarkFunctionEscape MarkFunctionEscapeInstr
	Other              OtherInstr
}

// HasResult reports whether the instruction produces a usable ValueID.
func (in *Instr) HasResult() bool { return in.ID.IsValid() }

type AllocBoxInstr struct {
	Name source.StringID
}

type AllocStackInstr struct {
	Name source.StringID
}

// MarkUninitializedInstr wraps Operand (an address produced elsewhere,
// typically a function argument or alloc_stack) and is itself treated as an
// allocation root by definiteinit.
type MarkUninitializedInstr struct {
	Operand ValueID
}

type LoadInstr struct {
	Addr ValueID
}

type StoreInstr struct {
	Value ValueID
	Addr  ValueID
}

type WeakLoadInstr struct {
	Addr ValueID
}

type WeakStoreInstr struct {
	Value ValueID
	Addr  ValueID
}

// CopyAddrInstr models a whole-aggregate copy between two addresses.
// IsInitialization records the [init] flag read from the input: true means
// the destination is known uninitialized (a plain copy), false means the
// destination must be destroyed first. AssignLowering neither sets nor
// changes it.
type CopyAddrInstr struct {
	Src              ValueID
	Dst              ValueID
	IsTake           bool
	IsInitialization bool
}

// AssignInstr is the two-form opcode AssignLowering rewrites: "assign Value
// to Addr" with the verdict-driven choice of store-only vs load-store-destroy
// left to the pass.
type AssignInstr struct {
	Value ValueID
	Addr  ValueID
}

type TupleElementAddrInstr struct {
	Addr  ValueID
	Index int
}

type StructElementAddrInstr struct {
	Addr      ValueID
	FieldName source.StringID
	FieldIdx  int
}

type TupleExtractInstr struct {
	Value ValueID
	Index int
}

type StructExtractInstr struct {
	Value     ValueID
	FieldName source.StringID
	FieldIdx  int
}

// TupleInstr builds a tuple value from Elems, one value per tuple position
// in order.
type TupleInstr struct {
	Elems []ValueID
}

type ApplyArg struct {
	Value ValueID
	Conv  ParamConvention
	// Type is the parameter's pointee type when Conv is indirect; zero
	// otherwise. definiteinit needs it to size the bucket range an
	// indirect argument covers.
	Type types.TypeID
}

type ApplyInstr struct {
	Callee ValueID
	Args   []ApplyArg
}

type InitializeVarInstr struct {
	Addr ValueID
}

type InjectEnumAddrInstr struct {
	Addr     ValueID
	CaseName source.StringID
}

// InitExistentialAddrInstr stores into the outer buckets at Addr and yields,
// as its own result, the inner address that subsequent stores target as
// PartialStore uses.
type InitExistentialAddrInstr struct {
	Addr ValueID
}

type EnumDataAddrInstr struct {
	Addr     ValueID
	CaseName source.StringID
}

// UpcastExistentialInstr mirrors copy_addr's two-operand shape: Src is always
// a Load, Dst (when present) is a Store.
type UpcastExistentialInstr struct {
	Src    ValueID
	Dst    ValueID
	HasDst bool
}

type ProjectExistentialInstr struct {
	Addr ValueID
}

type ProtocolMethodInstr struct {
	Addr ValueID
}

// ReleaseInstr is the consuming-destroy of an allocation's owner value;
// every element bucket must be definitely initialized here.
type ReleaseInstr struct {
	Addr ValueID
}

// MarkFunctionEscapeInstr records that a global's address escapes into a
// function body without going through the ordinary use list.
type MarkFunctionEscapeInstr struct {
	Operands []ValueID
}

// OtherInstr is the catch-all: every operand it names is treated as an
// Escape across every bucket it covers.
type OtherInstr struct {
	Operands []ValueID
}
