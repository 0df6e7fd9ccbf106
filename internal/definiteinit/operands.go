package definiteinit

import "diaudit/internal/air"

// operandsOf returns every ValueID in in's operand position, i.e. everything
// it reads. Used to build the per-function def/use indices UseCollector
// walks instead of a threaded use-list, since air.Instr does not maintain
// one itself.
func operandsOf(in *air.Instr) []air.ValueID {
	switch in.Kind {
	case air.InstrMarkUninitialized:
		return []air.ValueID{in.MarkUninitialized.Operand}
	case air.InstrLoad:
		return []air.ValueID{in.Load.Addr}
	case air.InstrStore:
		return []air.ValueID{in.Store.Value, in.Store.Addr}
	case air.InstrWeakLoad:
		return []air.ValueID{in.WeakLoad.Addr}
	case air.InstrWeakStore:
		return []air.ValueID{in.WeakStore.Value, in.WeakStore.Addr}
	case air.InstrCopyAddr:
		return []air.ValueID{in.CopyAddr.Src, in.CopyAddr.Dst}
	case air.InstrAssign:
		return []air.ValueID{in.Assign.Value, in.Assign.Addr}
	case air.InstrTupleElementAddr:
		return []air.ValueID{in.TupleElementAddr.Addr}
	case air.InstrStructElementAddr:
		return []air.ValueID{in.StructElementAddr.Addr}
	case air.InstrTupleExtract:
		return []air.ValueID{in.TupleExtract.Value}
	case air.InstrStructExtract:
		return []air.ValueID{in.StructExtract.Value}
	case air.InstrTuple:
		return append([]air.ValueID(nil), in.Tuple.Elems...)
	case air.InstrApply:
		ops := make([]air.ValueID, 0, len(in.Apply.Args)+1)
		ops = append(ops, in.Apply.Callee)
		for _, a := range in.Apply.Args {
			ops = append(ops, a.Value)
		}
		return ops
	case air.InstrInitializeVar:
		return []air.ValueID{in.InitializeVar.Addr}
	case air.InstrInjectEnumAddr:
		return []air.ValueID{in.InjectEnumAddr.Addr}
	case air.InstrInitExistentialAddr:
		return []air.ValueID{in.InitExistentialAddr.Addr}
	case air.InstrEnumDataAddr:
		return []air.ValueID{in.EnumDataAddr.Addr}
	case air.InstrUpcastExistential:
		if in.UpcastExistential.HasDst {
			return []air.ValueID{in.UpcastExistential.Src, in.UpcastExistential.Dst}
		}
		return []air.ValueID{in.UpcastExistential.Src}
	case air.InstrProjectExistential:
		return []air.ValueID{in.ProjectExistential.Addr}
	case air.InstrProtocolMethod:
		return []air.ValueID{in.ProtocolMethod.Addr}
	case air.InstrRelease:
		return []air.ValueID{in.Release.Addr}
	case air.InstrMarkFunctionEscape:
		return append([]air.ValueID(nil), in.MarkFunctionEscape.Operands...)
	case air.InstrOther:
		return append([]air.ValueID(nil), in.Other.Operands...)
	default:
		return nil
	}
}

// funcIndex precomputes, for one function, the def site of every ValueID
// and the reverse (user) index UseCollector needs to walk an address's
// "use list" without the IR threading one itself.
type funcIndex struct {
	defs  map[air.ValueID]*air.Instr
	users map[air.ValueID][]*air.Instr
}

func buildFuncIndex(fn *air.Function) *funcIndex {
	idx := &funcIndex{
		defs:  make(map[air.ValueID]*air.Instr),
		users: make(map[air.ValueID][]*air.Instr),
	}
	for bi := range fn.Blocks {
		for _, in := range fn.Blocks[bi].Instrs {
			if in.Dead {
				continue
			}
			if in.HasResult() {
				idx.defs[in.ID] = in
			}
			for _, op := range operandsOf(in) {
				if op.IsValid() {
					idx.users[op] = append(idx.users[op], in)
				}
			}
		}
	}
	return idx
}

func (idx *funcIndex) defOf(v air.ValueID) (*air.Instr, bool) {
	in, ok := idx.defs[v]
	return in, ok
}

// rebuild recomputes the index; callers call this after AssignLowering or
// LoadPromoter splice new instructions into a function, since the def/user
// maps are a snapshot, not a live view.
func (idx *funcIndex) rebuild(fn *air.Function) {
	*idx = *buildFuncIndex(fn)
}
