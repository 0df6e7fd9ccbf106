// Package air defines an address-taken, SSA-form intermediate representation:
// values are either ordinary SSA results or addresses of memory allocations
// that can be projected, partially initialized, loaded, and stored. It is
// the IR internal/definiteinit operates on.
package air

// ValueID names the result of an instruction. Instructions with no result
// (Store, Release, ...) leave their ID unset at NoValueID.
type ValueID int32

// BlockID names a basic block within a Function.
type BlockID int32

// FuncID names a Function within a Module.
type FuncID int32

const (
	NoValueID ValueID = -1
	NoBlockID BlockID = -1
	NoFuncID  FuncID  = -1
)

// IsValid reports whether v refers to an actual instruction result.
func (v ValueID) IsValid() bool { return v != NoValueID }
