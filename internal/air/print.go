package air

import (
	"fmt"
	"io"
	"sort"

	"diaudit/internal/source"
)

// DumpModule writes a human-readable, diffable rendering of m, exercised by
// print_test.go.
func DumpModule(w io.Writer, m *Module, interner *source.Interner) error {
	if w == nil || m == nil {
		return nil
	}
	funcs := append([]*Function(nil), m.Funcs...)
	sort.SliceStable(funcs, func(i, j int) bool { return funcs[i].Name < funcs[j].Name })

	for _, f := range funcs {
		if f == nil {
			continue
		}
		if err := dumpFunc(w, f, interner); err != nil {
			return err
		}
	}
	return nil
}

// DumpFunc writes f alone, in the same format DumpModule uses for each of
// a module's functions. internal/cache hashes this text to fingerprint a
// function for its on-disk cache key.
func DumpFunc(w io.Writer, f *Function, interner *source.Interner) error {
	return dumpFunc(w, f, interner)
}

func dumpFunc(w io.Writer, f *Function, interner *source.Interner) error {
	if _, err := fmt.Fprintf(w, "func %s {\n", f.Name); err != nil {
		return err
	}
	for i := range f.Blocks {
		b := &f.Blocks[i]
		if _, err := fmt.Fprintf(w, "bb%d:\n", b.ID); err != nil {
			return err
		}
		for _, in := range b.Instrs {
			if in.Dead {
				continue
			}
			if err := dumpInstr(w, in, interner); err != nil {
				return err
			}
		}
		if err := dumpTerm(w, b.Term); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func dumpInstr(w io.Writer, in *Instr, interner *source.Interner) error {
	dst := "  "
	if in.HasResult() {
		dst = fmt.Sprintf("  %%%d = ", in.ID)
	}
	body, err := instrBody(in, interner)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s%s\n", dst, body)
	return err
}

func instrBody(in *Instr, interner *source.Interner) (string, error) {
	switch in.Kind {
	case InstrAllocBox:
		return fmt.Sprintf("alloc_box %s", lookup(interner, in.AllocBox.Name)), nil
	case InstrAllocStack:
		return fmt.Sprintf("alloc_stack %s", lookup(interner, in.AllocStack.Name)), nil
	case InstrMarkUninitialized:
		return fmt.Sprintf("mark_uninitialized %%%d", in.MarkUninitialized.Operand), nil
	case InstrLoad:
		return fmt.Sprintf("load %%%d", in.Load.Addr), nil
	case InstrStore:
		return fmt.Sprintf("store %%%d to %%%d", in.Store.Value, in.Store.Addr), nil
	case InstrWeakLoad:
		return fmt.Sprintf("weak_load %%%d", in.WeakLoad.Addr), nil
	case InstrWeakStore:
		return fmt.Sprintf("weak_store %%%d to %%%d", in.WeakStore.Value, in.WeakStore.Addr), nil
	case InstrCopyAddr:
		flags := ""
		if in.CopyAddr.IsTake {
			flags += " [take]"
		}
		if in.CopyAddr.IsInitialization {
			flags += " [init]"
		}
		return fmt.Sprintf("copy_addr %%%d to %%%d%s", in.CopyAddr.Src, in.CopyAddr.Dst, flags), nil
	case InstrAssign:
		return fmt.Sprintf("assign %%%d to %%%d", in.Assign.Value, in.Assign.Addr), nil
	case InstrTupleElementAddr:
		return fmt.Sprintf("tuple_element_addr %%%d, %d", in.TupleElementAddr.Addr, in.TupleElementAddr.Index), nil
	case InstrStructElementAddr:
		return fmt.Sprintf("struct_element_addr %%%d, %s", in.StructElementAddr.Addr, lookup(interner, in.StructElementAddr.FieldName)), nil
	case InstrTupleExtract:
		return fmt.Sprintf("tuple_extract %%%d, %d", in.TupleExtract.Value, in.TupleExtract.Index), nil
	case InstrStructExtract:
		return fmt.Sprintf("struct_extract %%%d, %s", in.StructExtract.Value, lookup(interner, in.StructExtract.FieldName)), nil
	case InstrTuple:
		return fmt.Sprintf("tuple %s", formatValueIDs(in.Tuple.Elems)), nil
	case InstrApply:
		return fmt.Sprintf("apply %%%d(%s)", in.Apply.Callee, formatArgs(in.Apply.Args)), nil
	case InstrInitializeVar:
		return fmt.Sprintf("initialize_var %%%d", in.InitializeVar.Addr), nil
	case InstrInjectEnumAddr:
		return fmt.Sprintf("inject_enum_addr %%%d, %s", in.InjectEnumAddr.Addr, lookup(interner, in.InjectEnumAddr.CaseName)), nil
	case InstrInitExistentialAddr:
		return fmt.Sprintf("init_existential_addr %%%d", in.InitExistentialAddr.Addr), nil
	case InstrEnumDataAddr:
		return fmt.Sprintf("enum_data_addr %%%d, %s", in.EnumDataAddr.Addr, lookup(interner, in.EnumDataAddr.CaseName)), nil
	case InstrUpcastExistential:
		if in.UpcastExistential.HasDst {
			return fmt.Sprintf("upcast_existential %%%d to %%%d", in.UpcastExistential.Src, in.UpcastExistential.Dst), nil
		}
		return fmt.Sprintf("upcast_existential %%%d", in.UpcastExistential.Src), nil
	case InstrProjectExistential:
		return fmt.Sprintf("project_existential %%%d", in.ProjectExistential.Addr), nil
	case InstrProtocolMethod:
		return fmt.Sprintf("protocol_method %%%d", in.ProtocolMethod.Addr), nil
	case InstrRelease:
		return fmt.Sprintf("release %%%d", in.Release.Addr), nil
	case InstrMarkFunctionEscape:
		return fmt.Sprintf("mark_function_escape %s", formatValueIDs(in.MarkFunctionEscape.Operands)), nil
	case InstrOther:
		return fmt.Sprintf("other %s", formatValueIDs(in.Other.Operands)), nil
	default:
		return "invalid", nil
	}
}

func dumpTerm(w io.Writer, t Terminator) error {
	var body string
	switch t.Kind {
	case TermReturn:
		if t.Return.HasValue {
			body = fmt.Sprintf("return %%%d", t.Return.Value)
		} else {
			body = "return"
		}
	case TermGoto:
		body = fmt.Sprintf("goto bb%d", t.Goto.Target)
	case TermIf:
		body = fmt.Sprintf("if %%%d then bb%d else bb%d", t.If.Cond, t.If.Then, t.If.Else)
	case TermUnreachable:
		body = "unreachable"
	default:
		body = "<no terminator>"
	}
	_, err := fmt.Fprintf(w, "  %s\n", body)
	return err
}

func formatArgs(args []ApplyArg) string {
	s := ""
	for i, a := range args {
		if i > 0 {
			s += ", "
		}
		switch a.Conv {
		case ConvIndirectResult:
			s += fmt.Sprintf("@out %%%d", a.Value)
		case ConvIndirectInOut:
			s += fmt.Sprintf("@inout %%%d", a.Value)
		default:
			s += fmt.Sprintf("%%%d", a.Value)
		}
	}
	return s
}

func formatValueIDs(ids []ValueID) string {
	s := ""
	for i, id := range ids {
		if i > 0 {
			s += ", "
		}
		s += fmt.Sprintf("%%%d", id)
	}
	return s
}

func lookup(interner *source.Interner, id source.StringID) string {
	if interner == nil {
		return fmt.Sprintf("$%d", id)
	}
	s, ok := interner.Lookup(id)
	if !ok {
		return fmt.Sprintf("$%d", id)
	}
	return s
}
