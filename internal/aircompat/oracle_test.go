package aircompat

import (
	"testing"

	"diaudit/internal/air"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

func TestIsTrivialScalarsAndAggregates(t *testing.T) {
	tin := types.NewInterner()
	o := &DefaultOracle{Types: tin}

	if !o.IsTrivial(tin.Builtins().Int) {
		t.Errorf("expected int to be trivial")
	}
	ownInt := tin.Intern(types.MakeOwn(tin.Builtins().Int))
	if o.IsTrivial(ownInt) {
		t.Errorf("expected an own-typed value to be non-trivial")
	}

	allTrivialTuple := tin.RegisterTuple([]types.TypeID{tin.Builtins().Int, tin.Builtins().Bool})
	if !o.IsTrivial(allTrivialTuple) {
		t.Errorf("expected a tuple of trivial elements to be trivial")
	}
	mixedTuple := tin.RegisterTuple([]types.TypeID{tin.Builtins().Int, ownInt})
	if o.IsTrivial(mixedTuple) {
		t.Errorf("expected a tuple with one non-trivial element to be non-trivial")
	}
}

func TestIsTrivialStruct(t *testing.T) {
	tin := types.NewInterner()
	o := &DefaultOracle{Types: tin}

	name := tin.RegisterStruct(0, source.Span{})
	tin.SetStructFields(name, []types.StructField{
		{Name: 0, Type: tin.Builtins().Int},
	})
	if !o.IsTrivial(name) {
		t.Errorf("expected an all-trivial struct to be trivial")
	}
}

func TestIsTrivialValueOverridesByMovePolicy(t *testing.T) {
	tin := types.NewInterner()
	ownInt := tin.Intern(types.MakeOwn(tin.Builtins().Int))
	plan := &MovePlan{Values: map[air.ValueID]MoveInfo{
		1: {Policy: MoveCopy},
		2: {Policy: MoveNeedsDrop},
	}}
	o := &DefaultOracle{Types: tin, Moves: plan}

	if !o.IsTrivialValue(1, ownInt) {
		t.Errorf("expected a MoveCopy value to be trivial even for a non-trivial type")
	}
	if o.IsTrivialValue(2, tin.Builtins().Int) {
		t.Errorf("expected a MoveNeedsDrop value to be non-trivial even for a trivial type")
	}
	if !o.IsTrivialValue(3, tin.Builtins().Int) {
		t.Errorf("expected a value with no plan entry to fall back to type-shape triviality")
	}
}

func TestIsTrivialNilOracle(t *testing.T) {
	var o *DefaultOracle
	if !o.IsTrivial(types.NoTypeID) {
		t.Errorf("a nil oracle should treat everything as trivial")
	}
}

func TestEmitHelpersAppendInOrder(t *testing.T) {
	tin := types.NewInterner()
	o := &DefaultOracle{Types: tin}
	var ops []*air.Instr
	next := air.ValueID(100)
	nextID := func() air.ValueID {
		id := next
		next++
		return id
	}

	loaded := o.EmitLoadOfCopy(&ops, nextID, 1, tin.Builtins().Int)
	o.EmitStoreOfCopy(&ops, loaded, 2)
	o.EmitDestroy(&ops, 1)

	if len(ops) != 3 {
		t.Fatalf("expected 3 emitted instructions, got %d", len(ops))
	}
	if ops[0].Kind != air.InstrLoad || ops[1].Kind != air.InstrStore || ops[2].Kind != air.InstrRelease {
		t.Errorf("expected load, store, release in order, got %v, %v, %v", ops[0].Kind, ops[1].Kind, ops[2].Kind)
	}
	if ops[1].Store.Value != loaded {
		t.Errorf("expected the store's value to be the loaded ID %d, got %d", loaded, ops[1].Store.Value)
	}
}
