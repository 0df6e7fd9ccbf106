package air

import (
	"strings"
	"testing"

	"diaudit/internal/source"
)

func TestDumpFuncMatchesInstructionShape(t *testing.T) {
	strs := source.NewInterner()
	fn := &Function{Name: "f", Entry: 0, Blocks: []Block{{
		ID: 0,
		Instrs: []*Instr{
			{ID: 0, Kind: InstrAllocStack, AllocStack: AllocStackInstr{Name: strs.Intern("x")}},
			{Kind: InstrStore, Store: StoreInstr{Value: 1, Addr: 0}},
			{ID: 2, Kind: InstrLoad, Load: LoadInstr{Addr: 0}},
		},
		Term: Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: true, Value: 2}},
	}}}

	var buf strings.Builder
	if err := DumpFunc(&buf, fn, strs); err != nil {
		t.Fatalf("DumpFunc: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"func f {", "bb0:", "alloc_stack x", "store %1 to %0", "%2 = load %0", "return %2"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected dump to contain %q, got:\n%s", want, out)
		}
	}
}

func TestDumpFuncSkipsDeadInstructions(t *testing.T) {
	strs := source.NewInterner()
	fn := &Function{Name: "f", Entry: 0, Blocks: []Block{{
		ID: 0,
		Instrs: []*Instr{
			{ID: 0, Kind: InstrAllocStack, Dead: true, AllocStack: AllocStackInstr{Name: strs.Intern("x")}},
			{ID: 1, Kind: InstrLoad, Load: LoadInstr{Addr: 0}},
		},
		Term: Terminator{Kind: TermReturn},
	}}}
	var buf strings.Builder
	if err := DumpFunc(&buf, fn, strs); err != nil {
		t.Fatalf("DumpFunc: %v", err)
	}
	if strings.Contains(buf.String(), "alloc_stack") {
		t.Errorf("expected a dead instruction to be omitted, got:\n%s", buf.String())
	}
}

func TestDumpModuleSortsFunctionsByName(t *testing.T) {
	strs := source.NewInterner()
	m := &Module{Funcs: []*Function{
		{Name: "zeta", Blocks: []Block{{ID: 0, Term: Terminator{Kind: TermReturn}}}},
		{Name: "alpha", Blocks: []Block{{ID: 0, Term: Terminator{Kind: TermReturn}}}},
	}}
	var buf strings.Builder
	if err := DumpModule(&buf, m, strs); err != nil {
		t.Fatalf("DumpModule: %v", err)
	}
	out := buf.String()
	if strings.Index(out, "func alpha") > strings.Index(out, "func zeta") {
		t.Errorf("expected alpha to be dumped before zeta, got:\n%s", out)
	}
}
