package definiteinit

import (
	"diaudit/internal/air"
	"diaudit/internal/source"
	"diaudit/internal/types"
)

// UseKind classifies how one instruction observes a bucket's memory.
type UseKind uint8

const (
	UseInvalid UseKind = iota
	UseLoad
	UseStore
	UsePartialStore
	UseInOutUse
	UseEscape
	UseRelease
)

func (k UseKind) String() string {
	switch k {
	case UseLoad:
		return "load"
	case UseStore:
		return "store"
	case UsePartialStore:
		return "partial-store"
	case UseInOutUse:
		return "inout"
	case UseEscape:
		return "escape"
	case UseRelease:
		return "release"
	default:
		return "invalid"
	}
}

// Use is one entry in a bucket's ordered use list. Offset distinguishes,
// for an instruction that covers several buckets at once (a whole-tuple
// load/store, copy_addr, an indirect apply argument), which slice of the
// instruction's value this particular bucket corresponds to — the
// "bit_offset_within_stored_value" the load promoter needs to reconstruct
// an aggregate from a single wide store.
type Use struct {
	Kind   UseKind
	Instr  *air.Instr
	Offset int
	Valid  bool
}

// AllocKind identifies which of the three allocation-site shapes rooted a
// given Uses table.
type AllocKind uint8

const (
	AllocHeapBox AllocKind = iota
	AllocStackSlot
	AllocMarkUninit
)

// Allocation is the root of one access-path tree: TheMemory in the spec
// this pass implements.
type Allocation struct {
	Root     air.ValueID
	Instr    *air.Instr
	Kind     AllocKind
	ElemType types.TypeID
	Name     source.StringID
	Span     source.Span
}

// Availability is the memoized live-out verdict InitDataflow's cross-block
// recursion keeps per bucket and block; blockElementState pairs it with
// whether the block holds any non-load use of the bucket. Whether the bucket
// has escaped anywhere in the function is kept on bucketState.
type Availability uint8

const (
	AvailUnknown Availability = iota
	AvailNotLiveOut
	AvailLiveOut
	AvailComputing
)

type blockElementState struct {
	hasNonLoadUse bool
	availability  Availability
}

// bucketState is every piece of per-bucket state the four phases share.
type bucketState struct {
	uses         []Use
	hasAnyEscape bool
	blocks       map[air.BlockID]*blockElementState
	diagnosed    bool // once an element errors, no further diagnostic for it
}

func newBucketState() *bucketState {
	return &bucketState{blocks: make(map[air.BlockID]*blockElementState)}
}

func (b *bucketState) block(id air.BlockID) *blockElementState {
	st, ok := b.blocks[id]
	if !ok {
		st = &blockElementState{}
		b.blocks[id] = st
	}
	return st
}

// Uses is the complete per-allocation use table: one bucketState per
// top-level element, per spec's "Element bucket" definition.
type Uses struct {
	Alloc   Allocation
	Buckets []*bucketState
}

func newUses(alloc Allocation, numBuckets int) *Uses {
	u := &Uses{Alloc: alloc, Buckets: make([]*bucketState, numBuckets)}
	for i := range u.Buckets {
		u.Buckets[i] = newBucketState()
	}
	return u
}

func (u *Uses) inRange(bucket int) bool { return bucket >= 0 && bucket < len(u.Buckets) }

// Collector walks an allocation's (transitive) address uses, classifying
// each per spec §4.2's traversal rules, and records them into per-bucket
// Use lists.
type Collector struct {
	Types *types.Interner
	Strs  *source.Interner
	Index *funcIndex

	// blockOf maps an instruction to the block that contains it, so a
	// non-load use can be attributed to the right block's
	// has_non_load_use flag without threading the block ID through every
	// recursive visit/walk call. NewCollector builds it from the
	// function's block list.
	blockOf map[*air.Instr]air.BlockID
}

// NewCollector builds a Collector for fn, indexed by idx.
func NewCollector(tin *types.Interner, strs *source.Interner, fn *air.Function, idx *funcIndex) *Collector {
	blockOf := make(map[*air.Instr]air.BlockID)
	for bi := range fn.Blocks {
		b := fn.Blocks[bi]
		for _, in := range b.Instrs {
			blockOf[in] = b.ID
		}
	}
	return &Collector{Types: tin, Strs: strs, Index: idx, blockOf: blockOf}
}

// Run builds the Uses table for alloc by walking the def/use graph starting
// at its root address.
func (c *Collector) Run(alloc Allocation, numBuckets int) *Uses {
	u := newUses(alloc, numBuckets)
	c.walk(u, alloc.Root, 0, false, alloc.ElemType)
	return u
}

func (u *Uses) record(c *Collector, bucket int, kind UseKind, instr *air.Instr, offset int) {
	if !u.inRange(bucket) {
		return
	}
	b := u.Buckets[bucket]
	b.uses = append(b.uses, Use{Kind: kind, Instr: instr, Offset: offset, Valid: true})
	if kind == UseEscape {
		b.hasAnyEscape = true
	}
	if kind != UseLoad {
		if blk, ok := c.blockOf[instr]; ok {
			b.block(blk).hasNonLoadUse = true
		}
	}
}

// addElementUses implements the spec's add_element_uses: when not inside a
// struct sub-element, record kind across n consecutive buckets starting at
// first (each tagged with its offset into the instruction's aggregate
// value); otherwise record it once, in the single current bucket.
func (c *Collector) addElementUses(u *Uses, first, n int, inStruct bool, kind UseKind, instr *air.Instr) {
	if inStruct {
		u.record(c, first, kind, instr, 0)
		return
	}
	for i := 0; i < n; i++ {
		u.record(c, first+i, kind, instr, i)
	}
}

func (c *Collector) walk(u *Uses, addr air.ValueID, bucket int, inStruct bool, curType types.TypeID) {
	for _, in := range c.Index.users[addr] {
		if in.Dead {
			continue
		}
		c.visit(u, in, addr, bucket, inStruct, curType)
	}
}

func (c *Collector) visit(u *Uses, in *air.Instr, addr air.ValueID, bucket int, inStruct bool, curType types.TypeID) {
	switch in.Kind {
	case air.InstrTupleElementAddr:
		if in.TupleElementAddr.Addr != addr {
			return
		}
		info, ok := c.Types.TupleInfo(curType)
		if !ok {
			return
		}
		idx := in.TupleElementAddr.Index
		if idx < 0 || idx >= len(info.Elems) {
			return
		}
		extra := 0
		for i := 0; i < idx; i++ {
			extra += BucketCount(c.Types, info.Elems[i])
		}
		c.walk(u, in.ID, bucket+extra, inStruct, info.Elems[idx])

	case air.InstrStructElementAddr:
		if in.StructElementAddr.Addr != addr {
			return
		}
		info, ok := c.Types.StructInfo(curType)
		if !ok {
			return
		}
		idx := in.StructElementAddr.FieldIdx
		if idx < 0 || idx >= len(info.Fields) {
			return
		}
		c.walk(u, in.ID, bucket, true, info.Fields[idx].Type)

	case air.InstrLoad:
		if in.Load.Addr != addr {
			return
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, UseLoad, in)

	case air.InstrWeakLoad:
		if in.WeakLoad.Addr != addr {
			return
		}
		u.record(c, bucket, UseLoad, in, 0)

	case air.InstrStore:
		if in.Store.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)

	case air.InstrWeakStore:
		if in.WeakStore.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		u.record(c, bucket, kind, in, 0)

	case air.InstrAssign:
		if in.Assign.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)

	case air.InstrCopyAddr:
		n := BucketCount(c.Types, curType)
		if in.CopyAddr.Src == addr {
			c.addElementUses(u, bucket, n, inStruct, UseLoad, in)
		}
		if in.CopyAddr.Dst == addr {
			kind := UseStore
			if inStruct {
				kind = UsePartialStore
			}
			c.addElementUses(u, bucket, n, inStruct, kind, in)
		}

	case air.InstrApply:
		for _, a := range in.Apply.Args {
			if a.Value != addr {
				continue
			}
			switch a.Conv {
			case air.ConvIndirectResult:
				kind := UseStore
				if inStruct {
					kind = UsePartialStore
				}
				c.addElementUses(u, bucket, BucketCount(c.Types, a.Type), inStruct, kind, in)
			case air.ConvIndirectInOut:
				c.addElementUses(u, bucket, BucketCount(c.Types, a.Type), inStruct, UseInOutUse, in)
			default:
				c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, UseEscape, in)
			}
		}

	case air.InstrInitializeVar:
		if in.InitializeVar.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)

	case air.InstrInjectEnumAddr:
		if in.InjectEnumAddr.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)

	case air.InstrInitExistentialAddr:
		if in.InitExistentialAddr.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)
		c.walk(u, in.ID, bucket, true, in.Type)

	case air.InstrEnumDataAddr:
		if in.EnumDataAddr.Addr != addr {
			return
		}
		kind := UseStore
		if inStruct {
			kind = UsePartialStore
		}
		c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)
		c.walk(u, in.ID, bucket, true, in.Type)

	case air.InstrUpcastExistential:
		if in.UpcastExistential.HasDst && in.UpcastExistential.Dst == addr {
			kind := UseStore
			if inStruct {
				kind = UsePartialStore
			}
			c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, kind, in)
			return
		}
		if in.UpcastExistential.Src == addr {
			c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, UseLoad, in)
		}

	case air.InstrProjectExistential:
		if in.ProjectExistential.Addr != addr {
			return
		}
		u.record(c, bucket, UseLoad, in, 0)

	case air.InstrProtocolMethod:
		if in.ProtocolMethod.Addr != addr {
			return
		}
		u.record(c, bucket, UseLoad, in, 0)

	case air.InstrRelease:
		if in.Release.Addr != addr {
			return
		}
		n := BucketCount(c.Types, curType)
		for i := 0; i < n; i++ {
			u.record(c, bucket+i, UseRelease, in, i)
		}

	case air.InstrMarkFunctionEscape:
		for _, op := range in.MarkFunctionEscape.Operands {
			if op == addr {
				c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, UseEscape, in)
				return
			}
		}

	default:
		for _, op := range operandsOf(in) {
			if op == addr {
				c.addElementUses(u, bucket, BucketCount(c.Types, curType), inStruct, UseEscape, in)
				return
			}
		}
	}
}
