package scheduler

import (
	"context"
	"testing"

	"diaudit/internal/air"
	"diaudit/internal/aircompat"
	"diaudit/internal/cache"
	"diaudit/internal/definiteinit"
	"diaudit/internal/diag"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

func buildModule(strs *source.Interner, tin *types.Interner) *air.Module {
	intTy := tin.Builtins().Int
	good := &air.Function{Name: "good", Entry: 0, Blocks: []air.Block{{
		ID: 0,
		Instrs: []*air.Instr{
			{ID: 0, Kind: air.InstrAllocStack, Type: intTy, AllocStack: air.AllocStackInstr{Name: strs.Intern("x")}},
			{Kind: air.InstrStore, Store: air.StoreInstr{Value: 1, Addr: 0}},
			{ID: 1, Kind: air.InstrLoad, Type: intTy, Load: air.LoadInstr{Addr: 0}},
		},
		Term: air.Terminator{Kind: air.TermReturn},
	}}}
	bad := &air.Function{Name: "bad", Entry: 0, Blocks: []air.Block{{
		ID: 0,
		Instrs: []*air.Instr{
			{ID: 0, Kind: air.InstrAllocStack, Type: intTy, AllocStack: air.AllocStackInstr{Name: strs.Intern("y")}},
			{ID: 1, Kind: air.InstrLoad, Type: intTy, Load: air.LoadInstr{Addr: 0}},
		},
		Term: air.Terminator{Kind: air.TermReturn},
	}}}
	return &air.Module{Funcs: []*air.Function{good, bad}}
}

func TestRunModuleMergesAcrossFunctions(t *testing.T) {
	strs := source.NewInterner()
	tin := types.NewInterner()
	m := buildModule(strs, tin)
	oracle := &aircompat.DefaultOracle{Types: tin}

	bag, stats, err := RunModule(context.Background(), m, oracle, Options{
		Pass:  definiteinit.DefaultOptions(),
		Strs:  strs,
		Types: tin,
	})
	if err != nil {
		t.Fatalf("RunModule: %v", err)
	}
	if bag.Len() != 1 {
		t.Fatalf("expected exactly one diagnostic (from \"bad\"), got %d: %+v", bag.Len(), bag.Items())
	}
	if bag.Items()[0].Code != diag.DIUsedBeforeInitialized {
		t.Errorf("expected DIUsedBeforeInitialized, got %v", bag.Items()[0].Code)
	}
	if stats.NumLoadsPromoted.Load() != 1 {
		t.Errorf("expected 1 load promoted across the module, got %d", stats.NumLoadsPromoted.Load())
	}
}

func TestRunModuleSkipsCachedFunctions(t *testing.T) {
	strs := source.NewInterner()
	tin := types.NewInterner()
	m := buildModule(strs, tin)
	oracle := &aircompat.DefaultOracle{Types: tin}

	diskCache, err := cache.Open(t.TempDir())
	if err != nil {
		t.Fatalf("cache.Open: %v", err)
	}

	opts := Options{Pass: definiteinit.DefaultOptions(), Strs: strs, Types: tin, Cache: diskCache}

	if _, _, err := RunModule(context.Background(), m, oracle, opts); err != nil {
		t.Fatalf("first RunModule: %v", err)
	}
	_, stats, err := RunModule(context.Background(), m, oracle, opts)
	if err != nil {
		t.Fatalf("second RunModule: %v", err)
	}
	if stats.CacheHits.Load() != 2 {
		t.Errorf("expected both functions to hit cache on the second run, got %d", stats.CacheHits.Load())
	}
}

func TestRunModuleEmptyModule(t *testing.T) {
	oracle := &aircompat.DefaultOracle{Types: types.NewInterner()}
	bag, stats, err := RunModule(context.Background(), &air.Module{}, oracle, Options{Pass: definiteinit.DefaultOptions()})
	if err != nil {
		t.Fatalf("RunModule: %v", err)
	}
	if bag.Len() != 0 || stats.NumDiagnostics.Load() != 0 {
		t.Errorf("expected an empty module to report nothing, got bag.Len()=%d", bag.Len())
	}
}
