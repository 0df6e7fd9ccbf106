package cache

import (
	"testing"

	"diaudit/internal/air"
	"diaudit/internal/source"
)

func makeFunc(name string, strs *source.Interner) *air.Function {
	return &air.Function{
		Name:  name,
		Entry: 0,
		Blocks: []air.Block{{
			ID: 0,
			Instrs: []*air.Instr{
				{ID: 0, Kind: air.InstrAllocStack, AllocStack: air.AllocStackInstr{Name: strs.Intern("x")}},
			},
			Term: air.Terminator{Kind: air.TermReturn},
		}},
	}
}

func TestPutGetRoundTrip(t *testing.T) {
	strs := source.NewInterner()
	fn := makeFunc("f", strs)

	key, err := ComputeFingerprint(fn, strs)
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}

	c, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if _, ok, err := c.Get(key); err != nil || ok {
		t.Fatalf("expected a cache miss on an empty cache, got ok=%v err=%v", ok, err)
	}

	want := Payload{NumLoadsPromoted: 3, NumAssignsRewritten: 2, NumDiagnostics: 1}
	if err := c.Put(key, want); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(key)
	if err != nil || !ok {
		t.Fatalf("expected a cache hit, got ok=%v err=%v", ok, err)
	}
	if got.NumLoadsPromoted != want.NumLoadsPromoted ||
		got.NumAssignsRewritten != want.NumAssignsRewritten ||
		got.NumDiagnostics != want.NumDiagnostics {
		t.Errorf("got %+v, want %+v (schema %d)", got, want, got.Schema)
	}
}

func TestFingerprintChangesWithBody(t *testing.T) {
	strs := source.NewInterner()
	a := makeFunc("f", strs)
	b := makeFunc("f", strs)
	b.Blocks[0].Instrs = append(b.Blocks[0].Instrs, &air.Instr{
		Kind: air.InstrRelease, Release: air.ReleaseInstr{Addr: 0},
	})

	keyA, err := ComputeFingerprint(a, strs)
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}
	keyB, err := ComputeFingerprint(b, strs)
	if err != nil {
		t.Fatalf("ComputeFingerprint: %v", err)
	}
	if keyA == keyB {
		t.Errorf("expected different fingerprints for different instruction streams")
	}
}

func TestGetMissingKeyOnNilCache(t *testing.T) {
	var c *DiskCache
	if _, ok, err := c.Get(Fingerprint{}); err != nil || ok {
		t.Errorf("a nil cache should report a clean miss, got ok=%v err=%v", ok, err)
	}
	if err := c.Put(Fingerprint{}, Payload{}); err != nil {
		t.Errorf("Put on a nil cache should be a no-op, got %v", err)
	}
}
