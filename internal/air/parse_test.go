package air

import (
	"strings"
	"testing"

	"diaudit/internal/source"
	"diaudit/internal/types"
)

func parseSrc(t *testing.T, src string) (*Module, *types.Interner, *source.Interner) {
	t.Helper()
	tin := types.NewInterner()
	strs := source.NewInterner()
	m, err := ParseModule(src, tin, strs)
	if err != nil {
		t.Fatalf("ParseModule: %v", err)
	}
	return m, tin, strs
}

func TestParseSimpleFunction(t *testing.T) {
	m, _, strs := parseSrc(t, `
func f() {
bb0:
  %0 = alloc_stack x: int
  store %1 to %0
  %2 = load %0
  return %2
}
`)
	if len(m.Funcs) != 1 {
		t.Fatalf("expected 1 function, got %d", len(m.Funcs))
	}
	fn := m.Funcs[0]
	if fn.Name != "f" {
		t.Errorf("expected name f, got %q", fn.Name)
	}
	if len(fn.Blocks) != 1 || len(fn.Blocks[0].Instrs) != 3 {
		t.Fatalf("expected 1 block with 3 instructions, got %+v", fn.Blocks)
	}
	alloc := fn.Blocks[0].Instrs[0]
	if alloc.Kind != InstrAllocStack {
		t.Fatalf("expected alloc_stack, got %v", alloc.Kind)
	}
	if name, ok := strs.Lookup(alloc.AllocStack.Name); !ok || name != "x" {
		t.Errorf("expected alloc_stack name %q, got %q (ok=%v)", "x", name, ok)
	}
	if fn.Blocks[0].Term.Kind != TermReturn {
		t.Errorf("expected return terminator, got %v", fn.Blocks[0].Term.Kind)
	}
}

func TestParseStructDeclAndFieldAccess(t *testing.T) {
	m, tin, strs := parseSrc(t, `
struct Pair {
  a: int,
  b: int,
}
func g() {
bb0:
  %0 = alloc_stack p: Pair
  %1 = struct_element_addr %0, a
  store %2 to %1
  release %0
  return
}
`)
	fn := m.Funcs[0]
	alloc := fn.Blocks[0].Instrs[0]
	info, ok := tin.StructInfo(alloc.Type)
	if !ok || len(info.Fields) != 2 {
		t.Fatalf("expected a 2-field struct, got %+v (ok=%v)", info, ok)
	}
	fieldAddr := fn.Blocks[0].Instrs[1]
	if fieldAddr.Kind != InstrStructElementAddr {
		t.Fatalf("expected struct_element_addr, got %v", fieldAddr.Kind)
	}
	if name, ok := strs.Lookup(fieldAddr.StructElementAddr.FieldName); !ok || name != "a" {
		t.Errorf("expected field name a, got %q (ok=%v)", name, ok)
	}
	if fieldAddr.StructElementAddr.FieldIdx != 0 {
		t.Errorf("expected field index 0, got %d", fieldAddr.StructElementAddr.FieldIdx)
	}
}

func TestParseTupleElementAddr(t *testing.T) {
	m, tin, _ := parseSrc(t, `
func h() {
bb0:
  %0 = alloc_stack t: (int, int)
  %1 = tuple_element_addr %0, 1
  store %2 to %1
  return
}
`)
	fn := m.Funcs[0]
	alloc := fn.Blocks[0].Instrs[0]
	info, ok := tin.TupleInfo(alloc.Type)
	if !ok || len(info.Elems) != 2 {
		t.Fatalf("expected a 2-element tuple type, got %+v (ok=%v)", info, ok)
	}
	elemAddr := fn.Blocks[0].Instrs[1]
	if elemAddr.Kind != InstrTupleElementAddr || elemAddr.TupleElementAddr.Index != 1 {
		t.Fatalf("expected tuple_element_addr index 1, got %+v", elemAddr)
	}
}

func TestParseIfAndGoto(t *testing.T) {
	m, _, _ := parseSrc(t, `
func cond() {
bb0:
  if %0 then bb1 else bb2
bb1:
  goto bb3
bb2:
  goto bb3
bb3:
  return
}
`)
	fn := m.Funcs[0]
	if len(fn.Blocks) != 4 {
		t.Fatalf("expected 4 blocks, got %d", len(fn.Blocks))
	}
	entry := fn.Blocks[0]
	if entry.Term.Kind != TermIf {
		t.Fatalf("expected if terminator, got %v", entry.Term.Kind)
	}
	if entry.Term.If.Then != 1 || entry.Term.If.Else != 2 {
		t.Errorf("expected then=bb1, else=bb2, got then=%d, else=%d", entry.Term.If.Then, entry.Term.If.Else)
	}
	if fn.Blocks[1].Term.Kind != TermGoto || fn.Blocks[1].Term.Goto.Target != 3 {
		t.Errorf("expected bb1 to goto bb3, got %+v", fn.Blocks[1].Term)
	}
}

func TestParseRejectsUnknownInstruction(t *testing.T) {
	_, err := ParseModule(`
func f() {
bb0:
  frobnicate %0
  return
}
`, types.NewInterner(), source.NewInterner())
	if err == nil {
		t.Fatal("expected a parse error for an unknown mnemonic")
	}
	if !strings.Contains(err.Error(), "frobnicate") {
		t.Errorf("expected the error to name the bad mnemonic, got %v", err)
	}
}

func TestParseRejectsUnknownType(t *testing.T) {
	_, err := ParseModule(`
func f() {
bb0:
  %0 = alloc_stack x: frobtype
  return
}
`, types.NewInterner(), source.NewInterner())
	if err == nil {
		t.Fatal("expected a parse error for an unknown type name")
	}
}

func TestParseOwnAndPointerTypes(t *testing.T) {
	m, tin, _ := parseSrc(t, `
func f(x: *int, y: &mut int) {
bb0:
  %0 = alloc_stack z: own int
  return
}
`)
	fn := m.Funcs[0]
	alloc := fn.Blocks[0].Instrs[0]
	ty, ok := tin.Lookup(alloc.Type)
	if !ok || ty.Kind != types.KindOwn {
		t.Fatalf("expected own type, got %+v (ok=%v)", ty, ok)
	}
}
