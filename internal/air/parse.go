package air

import (
	"fmt"
	"strconv"
	"strings"

	"diaudit/internal/source"
	"diaudit/internal/types"
)

// ParseModule parses the small textual IR language cmd/diaudit's check
// command reads its input file as: zero or more struct declarations
// followed by one or more function bodies of labeled basic blocks, each
// holding the same instruction mnemonics print.go's dumper emits. Unlike
// the dumper, every allocation and parameter carries an explicit ": Type"
// annotation — print.go drops types because a diffable dump doesn't need
// them, but a parser building a *Module from scratch does. Everything else
// (element/extract indices, field names, existential kinds) is typed by
// propagation from the address it projects out of, the same way a real
// frontend's IR builder would compute it rather than read it back from
// text.
//
// Grammar sketch:
//
//	Module    := (StructDecl | FuncDecl)*
//	StructDecl:= "struct" IDENT "{" (IDENT ":" Type ",")* "}"
//	FuncDecl  := "func" IDENT "(" ParamList ")" "{" Block+ "}"
//	ParamList := (Param ("," Param)*)?
//	Param     := ("@out" | "@inout")? IDENT ":" Type
//	Block     := "bb" INT ":" Instr* Term
//	Type      := "int"|"uint"|"float"[WIDTH] | "bool"|"string"|"unit"|"nothing"
//	           | "*" Type | "&" "mut"? Type | "own" Type
//	           | "(" Type ("," Type)* ")" | IDENT
//
// A parsed struct's Decl span and every instruction's Span are the zero
// source.Span, since this format carries no source positions of its own;
// diagnostics PassDriver reports against a parsed module point at position
// zero rather than at real source text.
func ParseModule(src string, ty *types.Interner, strs *source.Interner) (*Module, error) {
	toks, err := lex(src)
	if err != nil {
		return nil, err
	}
	p := &parser{
		toks:        toks,
		ty:          ty,
		strs:        strs,
		structTypes: make(map[string]types.TypeID),
	}
	return p.parseModule()
}

// --- lexer ---

type tokKind int

const (
	tokEOF tokKind = iota
	tokIdent
	tokInt
	tokValue // %N, text holds the digits
	tokPunct
)

type tok struct {
	kind tokKind
	text string
	line int
}

func lex(src string) ([]tok, error) {
	b := []byte(src)
	var out []tok
	line := 1
	i := 0
	for i < len(b) {
		c := b[i]
		switch {
		case c == '\n':
			line++
			i++
		case c == ' ' || c == '\t' || c == '\r':
			i++
		case c == '#':
			for i < len(b) && b[i] != '\n' {
				i++
			}
		case c == '%':
			i++
			start := i
			for i < len(b) && isDigitByte(b[i]) {
				i++
			}
			if start == i {
				return nil, fmt.Errorf("air: line %d: expected digits after '%%'", line)
			}
			out = append(out, tok{kind: tokValue, text: string(b[start:i]), line: line})
		case isIdentStartByte(c):
			start := i
			for i < len(b) && isIdentContinueByte(b[i]) {
				i++
			}
			out = append(out, tok{kind: tokIdent, text: string(b[start:i]), line: line})
		case isDigitByte(c):
			start := i
			for i < len(b) && isDigitByte(b[i]) {
				i++
			}
			out = append(out, tok{kind: tokInt, text: string(b[start:i]), line: line})
		case strings.IndexByte("{}()[]:,*&=@", c) >= 0:
			out = append(out, tok{kind: tokPunct, text: string(c), line: line})
			i++
		default:
			return nil, fmt.Errorf("air: line %d: unexpected character %q", line, c)
		}
	}
	out = append(out, tok{kind: tokEOF, line: line})
	return out, nil
}

func isDigitByte(c byte) bool        { return c >= '0' && c <= '9' }
func isIdentStartByte(c byte) bool   { return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func isIdentContinueByte(c byte) bool {
	return isIdentStartByte(c) || isDigitByte(c)
}

// --- parser ---

type parser struct {
	toks []tok
	pos  int

	ty   *types.Interner
	strs *source.Interner

	structTypes map[string]types.TypeID
	valueTypes  map[ValueID]types.TypeID
}

func (p *parser) cur() tok { return p.toks[p.pos] }

func (p *parser) at(offset int) tok {
	i := p.pos + offset
	if i >= len(p.toks) {
		return p.toks[len(p.toks)-1]
	}
	return p.toks[i]
}

func (p *parser) advance() tok {
	t := p.cur()
	if t.kind != tokEOF {
		p.pos++
	}
	return t
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("air: line %d: %s", p.cur().line, fmt.Sprintf(format, args...))
}

func (p *parser) curIsIdent(s string) bool { return p.cur().kind == tokIdent && p.cur().text == s }
func (p *parser) curIsPunct(s string) bool { return p.cur().kind == tokPunct && p.cur().text == s }

func (p *parser) expectIdent(s string) error {
	if !p.curIsIdent(s) {
		return p.errorf("expected %q, got %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectPunct(s string) error {
	if !p.curIsPunct(s) {
		return p.errorf("expected %q, got %q", s, p.cur().text)
	}
	p.advance()
	return nil
}

func (p *parser) expectAnyIdent() (string, error) {
	if p.cur().kind != tokIdent {
		return "", p.errorf("expected identifier, got %q", p.cur().text)
	}
	return p.advance().text, nil
}

func (p *parser) expectValue() (ValueID, error) {
	if p.cur().kind != tokValue {
		return NoValueID, p.errorf("expected %%value, got %q", p.cur().text)
	}
	t := p.advance()
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return NoValueID, p.errorf("bad value id %q: %v", t.text, err)
	}
	return ValueID(n), nil
}

func (p *parser) expectInt() (int, error) {
	if p.cur().kind != tokInt {
		return 0, p.errorf("expected integer, got %q", p.cur().text)
	}
	t := p.advance()
	n, err := strconv.Atoi(t.text)
	if err != nil {
		return 0, p.errorf("bad integer %q: %v", t.text, err)
	}
	return n, nil
}

func (p *parser) typeOf(v ValueID) types.TypeID {
	if p.valueTypes == nil {
		return types.NoTypeID
	}
	return p.valueTypes[v]
}

func (p *parser) setType(v ValueID, ty types.TypeID) {
	if p.valueTypes == nil {
		p.valueTypes = make(map[ValueID]types.TypeID)
	}
	p.valueTypes[v] = ty
}

func (p *parser) parseModule() (*Module, error) {
	m := &Module{}
	for p.cur().kind != tokEOF {
		switch {
		case p.curIsIdent("struct"):
			if err := p.parseStructDecl(); err != nil {
				return nil, err
			}
		case p.curIsIdent("func"):
			fn, err := p.parseFuncDecl()
			if err != nil {
				return nil, err
			}
			m.Funcs = append(m.Funcs, fn)
		default:
			return nil, p.errorf("expected \"struct\" or \"func\", got %q", p.cur().text)
		}
	}
	return m, nil
}

func (p *parser) parseStructDecl() error {
	if err := p.expectIdent("struct"); err != nil {
		return err
	}
	name, err := p.expectAnyIdent()
	if err != nil {
		return err
	}
	id := p.ty.RegisterStruct(p.strs.Intern(name), source.Span{})
	p.structTypes[name] = id

	if err := p.expectPunct("{"); err != nil {
		return err
	}
	var fields []types.StructField
	for !p.curIsPunct("}") {
		fname, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		fty, err := p.parseType()
		if err != nil {
			return err
		}
		fields = append(fields, types.StructField{Name: p.strs.Intern(fname), Type: fty})
		if p.curIsPunct(",") {
			p.advance()
		} else {
			break
		}
	}
	if err := p.expectPunct("}"); err != nil {
		return err
	}
	p.ty.SetStructFields(id, fields)
	return nil
}

func (p *parser) parseType() (types.TypeID, error) {
	switch {
	case p.curIsPunct("*"):
		p.advance()
		elem, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		return p.ty.Intern(types.MakePointer(elem)), nil
	case p.curIsPunct("&"):
		p.advance()
		mutable := false
		if p.curIsIdent("mut") {
			p.advance()
			mutable = true
		}
		elem, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		return p.ty.Intern(types.MakeReference(elem, mutable)), nil
	case p.curIsIdent("own"):
		p.advance()
		elem, err := p.parseType()
		if err != nil {
			return types.NoTypeID, err
		}
		return p.ty.Intern(types.MakeOwn(elem)), nil
	case p.curIsPunct("("):
		p.advance()
		var elems []types.TypeID
		for !p.curIsPunct(")") {
			e, err := p.parseType()
			if err != nil {
				return types.NoTypeID, err
			}
			elems = append(elems, e)
			if p.curIsPunct(",") {
				p.advance()
			} else {
				break
			}
		}
		if err := p.expectPunct(")"); err != nil {
			return types.NoTypeID, err
		}
		return p.ty.RegisterTuple(elems), nil
	case p.cur().kind == tokIdent:
		name := p.advance().text
		switch {
		case name == "bool":
			return p.ty.Builtins().Bool, nil
		case name == "string":
			return p.ty.Builtins().String, nil
		case name == "unit":
			return p.ty.Builtins().Unit, nil
		case name == "nothing":
			return p.ty.Builtins().Nothing, nil
		case strings.HasPrefix(name, "int"):
			w, ok := widthOf(name[len("int"):])
			if !ok {
				break
			}
			return p.ty.Intern(types.MakeInt(w)), nil
		case strings.HasPrefix(name, "uint"):
			w, ok := widthOf(name[len("uint"):])
			if !ok {
				break
			}
			return p.ty.Intern(types.MakeUint(w)), nil
		case strings.HasPrefix(name, "float"):
			w, ok := widthOf(name[len("float"):])
			if !ok {
				break
			}
			return p.ty.Intern(types.MakeFloat(w)), nil
		}
		if id, ok := p.structTypes[name]; ok {
			return id, nil
		}
		return types.NoTypeID, p.errorf("unknown type %q", name)
	default:
		return types.NoTypeID, p.errorf("expected a type, got %q", p.cur().text)
	}
}

func widthOf(suffix string) (types.Width, bool) {
	switch suffix {
	case "":
		return types.WidthAny, true
	case "8":
		return types.Width8, true
	case "16":
		return types.Width16, true
	case "32":
		return types.Width32, true
	case "64":
		return types.Width64, true
	default:
		return types.WidthAny, false
	}
}

func (p *parser) parseFuncDecl() (*Function, error) {
	if err := p.expectIdent("func"); err != nil {
		return nil, err
	}
	name, err := p.expectAnyIdent()
	if err != nil {
		return nil, err
	}
	fn := &Function{Name: name}
	p.valueTypes = make(map[ValueID]types.TypeID)

	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var nextParam ValueID
	for !p.curIsPunct(")") {
		conv := ConvDirect
		if p.curIsPunct("@") {
			p.advance()
			kw, err := p.expectAnyIdent()
			if err != nil {
				return nil, err
			}
			switch kw {
			case "out":
				conv = ConvIndirectResult
			case "inout":
				conv = ConvIndirectInOut
			default:
				return nil, p.errorf("unknown parameter convention @%s", kw)
			}
		}
		pname, err := p.expectAnyIdent()
		if err != nil {
			return nil, err
		}
		if err := p.expectPunct(":"); err != nil {
			return nil, err
		}
		pty, err := p.parseType()
		if err != nil {
			return nil, err
		}
		fn.Params = append(fn.Params, Param{Name: p.strs.Intern(pname), Conv: conv})
		p.setType(nextParam, pty)
		nextParam++
		if p.curIsPunct(",") {
			p.advance()
		} else {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	if err := p.expectPunct("{"); err != nil {
		return nil, err
	}
	for !p.curIsPunct("}") {
		b, err := p.parseBlock()
		if err != nil {
			return nil, err
		}
		fn.Blocks = append(fn.Blocks, *b)
	}
	if err := p.expectPunct("}"); err != nil {
		return nil, err
	}
	if len(fn.Blocks) > 0 {
		fn.Entry = fn.Blocks[0].ID
	}
	return fn, nil
}

func (p *parser) parseBlock() (*Block, error) {
	id, err := p.expectBlockLabel()
	if err != nil {
		return nil, err
	}
	if err := p.expectPunct(":"); err != nil {
		return nil, err
	}
	b := &Block{ID: id}
	for {
		if p.isTerminatorStart() {
			term, err := p.parseTerminator()
			if err != nil {
				return nil, err
			}
			b.Term = term
			return b, nil
		}
		in, err := p.parseInstr()
		if err != nil {
			return nil, err
		}
		b.Instrs = append(b.Instrs, in)
	}
}

func (p *parser) expectBlockLabel() (BlockID, error) {
	if p.cur().kind != tokIdent || !strings.HasPrefix(p.cur().text, "bb") {
		return NoBlockID, p.errorf("expected a block label (\"bbN\"), got %q", p.cur().text)
	}
	text := p.advance().text
	n, err := strconv.Atoi(strings.TrimPrefix(text, "bb"))
	if err != nil {
		return NoBlockID, p.errorf("bad block label %q: %v", text, err)
	}
	return BlockID(n), nil
}

func (p *parser) isTerminatorStart() bool {
	return p.curIsIdent("return") || p.curIsIdent("goto") || p.curIsIdent("if") || p.curIsIdent("unreachable")
}

func (p *parser) parseTerminator() (Terminator, error) {
	switch {
	case p.curIsIdent("return"):
		p.advance()
		if p.cur().kind == tokValue {
			v, err := p.expectValue()
			if err != nil {
				return Terminator{}, err
			}
			return Terminator{Kind: TermReturn, Return: ReturnTerm{HasValue: true, Value: v}}, nil
		}
		return Terminator{Kind: TermReturn}, nil
	case p.curIsIdent("goto"):
		p.advance()
		target, err := p.expectBlockLabel()
		if err != nil {
			return Terminator{}, err
		}
		return Terminator{Kind: TermGoto, Goto: GotoTerm{Target: target}}, nil
	case p.curIsIdent("if"):
		p.advance()
		cond, err := p.expectValue()
		if err != nil {
			return Terminator{}, err
		}
		if err := p.expectIdent("then"); err != nil {
			return Terminator{}, err
		}
		then, err := p.expectBlockLabel()
		if err != nil {
			return Terminator{}, err
		}
		if err := p.expectIdent("else"); err != nil {
			return Terminator{}, err
		}
		els, err := p.expectBlockLabel()
		if err != nil {
			return Terminator{}, err
		}
		return Terminator{Kind: TermIf, If: IfTerm{Cond: cond, Then: then, Else: els}}, nil
	case p.curIsIdent("unreachable"):
		p.advance()
		return Terminator{Kind: TermUnreachable}, nil
	default:
		return Terminator{}, p.errorf("expected a terminator, got %q", p.cur().text)
	}
}

// parseInstr reads one "[%N =] mnemonic operands" line.
func (p *parser) parseInstr() (*Instr, error) {
	var result ValueID = NoValueID
	if p.cur().kind == tokValue && p.at(1).kind == tokPunct && p.at(1).text == "=" {
		v, err := p.expectValue()
		if err != nil {
			return nil, err
		}
		result = v
		if err := p.expectPunct("="); err != nil {
			return nil, err
		}
	}
	mnemonic, err := p.expectAnyIdent()
	if err != nil {
		return nil, err
	}
	in := &Instr{ID: result}
	if err := p.parseInstrBody(in, mnemonic); err != nil {
		return nil, err
	}
	if result.IsValid() {
		p.setType(result, in.Type)
	}
	return in, nil
}

func (p *parser) parseInstrBody(in *Instr, mnemonic string) error {
	switch mnemonic {
	case "alloc_box":
		name, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		in.Kind = InstrAllocBox
		in.AllocBox = AllocBoxInstr{Name: p.strs.Intern(name)}
		in.Type = ty
	case "alloc_stack":
		name, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		in.Kind = InstrAllocStack
		in.AllocStack = AllocStackInstr{Name: p.strs.Intern(name)}
		in.Type = ty
	case "mark_uninitialized":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrMarkUninitialized
		in.MarkUninitialized = MarkUninitializedInstr{Operand: v}
		in.Type = p.typeOf(v)
	case "load":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrLoad
		in.Load = LoadInstr{Addr: v}
		in.Type = p.typeOf(v)
	case "store":
		val, addr, err := p.parseValueToValue()
		if err != nil {
			return err
		}
		in.Kind = InstrStore
		in.Store = StoreInstr{Value: val, Addr: addr}
	case "weak_load":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrWeakLoad
		in.WeakLoad = WeakLoadInstr{Addr: v}
		in.Type = p.typeOf(v)
	case "weak_store":
		val, addr, err := p.parseValueToValue()
		if err != nil {
			return err
		}
		in.Kind = InstrWeakStore
		in.WeakStore = WeakStoreInstr{Value: val, Addr: addr}
	case "copy_addr":
		src, dst, err := p.parseValueToValue()
		if err != nil {
			return err
		}
		flags := CopyAddrInstr{Src: src, Dst: dst}
		for p.curIsPunct("[") {
			p.advance()
			flag, err := p.expectAnyIdent()
			if err != nil {
				return err
			}
			switch flag {
			case "take":
				flags.IsTake = true
			case "init":
				flags.IsInitialization = true
			default:
				return p.errorf("unknown copy_addr flag %q", flag)
			}
			if err := p.expectPunct("]"); err != nil {
				return err
			}
		}
		in.Kind = InstrCopyAddr
		in.CopyAddr = flags
	case "assign":
		val, addr, err := p.parseValueToValue()
		if err != nil {
			return err
		}
		in.Kind = InstrAssign
		in.Assign = AssignInstr{Value: val, Addr: addr}
		in.Type = p.typeOf(addr)
	case "tuple_element_addr":
		addr, err := p.expectValue()
		if err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		idx, err := p.expectInt()
		if err != nil {
			return err
		}
		in.Kind = InstrTupleElementAddr
		in.TupleElementAddr = TupleElementAddrInstr{Addr: addr, Index: idx}
		info, ok := p.ty.TupleInfo(p.typeOf(addr))
		if !ok || idx < 0 || idx >= len(info.Elems) {
			return p.errorf("tuple_element_addr: %%%d is not a tuple with an element %d", addr, idx)
		}
		in.Type = info.Elems[idx]
	case "struct_element_addr":
		addr, err := p.expectValue()
		if err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		field, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		info, ok := p.ty.StructInfo(p.typeOf(addr))
		if !ok {
			return p.errorf("struct_element_addr: %%%d is not a struct", addr)
		}
		idx, fieldTy, ok := findField(info.Fields, p.strs, field)
		if !ok {
			return p.errorf("struct_element_addr: no field %q", field)
		}
		in.Kind = InstrStructElementAddr
		in.StructElementAddr = StructElementAddrInstr{Addr: addr, FieldName: p.strs.Intern(field), FieldIdx: idx}
		in.Type = fieldTy
	case "tuple_extract":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		idx, err := p.expectInt()
		if err != nil {
			return err
		}
		in.Kind = InstrTupleExtract
		in.TupleExtract = TupleExtractInstr{Value: v, Index: idx}
		info, ok := p.ty.TupleInfo(p.typeOf(v))
		if !ok || idx < 0 || idx >= len(info.Elems) {
			return p.errorf("tuple_extract: %%%d is not a tuple with an element %d", v, idx)
		}
		in.Type = info.Elems[idx]
	case "struct_extract":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		field, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		info, ok := p.ty.StructInfo(p.typeOf(v))
		if !ok {
			return p.errorf("struct_extract: %%%d is not a struct", v)
		}
		idx, fieldTy, ok := findField(info.Fields, p.strs, field)
		if !ok {
			return p.errorf("struct_extract: no field %q", field)
		}
		in.Kind = InstrStructExtract
		in.StructExtract = StructExtractInstr{Value: v, FieldName: p.strs.Intern(field), FieldIdx: idx}
		in.Type = fieldTy
	case "apply":
		callee, err := p.expectValue()
		if err != nil {
			return err
		}
		args, err := p.parseApplyArgs()
		if err != nil {
			return err
		}
		in.Kind = InstrApply
		in.Apply = ApplyInstr{Callee: callee, Args: args}
	case "initialize_var":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrInitializeVar
		in.InitializeVar = InitializeVarInstr{Addr: v}
		in.Type = p.typeOf(v)
	case "inject_enum_addr":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		caseName, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		in.Kind = InstrInjectEnumAddr
		in.InjectEnumAddr = InjectEnumAddrInstr{Addr: v, CaseName: p.strs.Intern(caseName)}
		in.Type = p.typeOf(v)
	case "init_existential_addr":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrInitExistentialAddr
		in.InitExistentialAddr = InitExistentialAddrInstr{Addr: v}
		in.Type = p.typeOf(v)
	case "enum_data_addr":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		if err := p.expectPunct(","); err != nil {
			return err
		}
		caseName, err := p.expectAnyIdent()
		if err != nil {
			return err
		}
		in.Kind = InstrEnumDataAddr
		in.EnumDataAddr = EnumDataAddrInstr{Addr: v, CaseName: p.strs.Intern(caseName)}
		in.Type = p.typeOf(v)
	case "upcast_existential":
		src, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrUpcastExistential
		u := UpcastExistentialInstr{Src: src}
		if p.curIsIdent("to") {
			p.advance()
			dst, err := p.expectValue()
			if err != nil {
				return err
			}
			u.Dst, u.HasDst = dst, true
		}
		in.UpcastExistential = u
		in.Type = p.typeOf(src)
	case "project_existential":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrProjectExistential
		in.ProjectExistential = ProjectExistentialInstr{Addr: v}
		in.Type = p.typeOf(v)
	case "protocol_method":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrProtocolMethod
		in.ProtocolMethod = ProtocolMethodInstr{Addr: v}
		in.Type = p.typeOf(v)
	case "release":
		v, err := p.expectValue()
		if err != nil {
			return err
		}
		in.Kind = InstrRelease
		in.Release = ReleaseInstr{Addr: v}
	case "tuple":
		elems, err := p.parseValueList()
		if err != nil {
			return err
		}
		if err := p.expectPunct(":"); err != nil {
			return err
		}
		ty, err := p.parseType()
		if err != nil {
			return err
		}
		info, ok := p.ty.TupleInfo(ty)
		if !ok || len(info.Elems) != len(elems) {
			return p.errorf("tuple: result type does not have %d elements", len(elems))
		}
		in.Kind = InstrTuple
		in.Tuple = TupleInstr{Elems: elems}
		in.Type = ty
	case "mark_function_escape":
		ops, err := p.parseValueList()
		if err != nil {
			return err
		}
		in.Kind = InstrMarkFunctionEscape
		in.MarkFunctionEscape = MarkFunctionEscapeInstr{Operands: ops}
	case "other":
		ops, err := p.parseValueList()
		if err != nil {
			return err
		}
		in.Kind = InstrOther
		in.Other = OtherInstr{Operands: ops}
	default:
		return p.errorf("unknown instruction %q", mnemonic)
	}
	return nil
}

func (p *parser) parseValueToValue() (ValueID, ValueID, error) {
	a, err := p.expectValue()
	if err != nil {
		return NoValueID, NoValueID, err
	}
	if err := p.expectIdent("to"); err != nil {
		return NoValueID, NoValueID, err
	}
	b, err := p.expectValue()
	if err != nil {
		return NoValueID, NoValueID, err
	}
	return a, b, nil
}

func (p *parser) parseValueList() ([]ValueID, error) {
	var ids []ValueID
	if p.cur().kind != tokValue {
		return ids, nil
	}
	for {
		v, err := p.expectValue()
		if err != nil {
			return nil, err
		}
		ids = append(ids, v)
		if p.curIsPunct(",") {
			p.advance()
			continue
		}
		return ids, nil
	}
}

func (p *parser) parseApplyArgs() ([]ApplyArg, error) {
	if err := p.expectPunct("("); err != nil {
		return nil, err
	}
	var args []ApplyArg
	for !p.curIsPunct(")") {
		conv := ConvDirect
		if p.curIsPunct("@") {
			p.advance()
			kw, err := p.expectAnyIdent()
			if err != nil {
				return nil, err
			}
			switch kw {
			case "out":
				conv = ConvIndirectResult
			case "inout":
				conv = ConvIndirectInOut
			default:
				return nil, p.errorf("unknown argument convention @%s", kw)
			}
		}
		v, err := p.expectValue()
		if err != nil {
			return nil, err
		}
		arg := ApplyArg{Value: v, Conv: conv}
		if conv != ConvDirect {
			arg.Type = p.typeOf(v)
		}
		args = append(args, arg)
		if p.curIsPunct(",") {
			p.advance()
		} else {
			break
		}
	}
	if err := p.expectPunct(")"); err != nil {
		return nil, err
	}
	return args, nil
}

func findField(fields []types.StructField, strs *source.Interner, name string) (int, types.TypeID, bool) {
	for i, f := range fields {
		if s, ok := strs.Lookup(f.Name); ok && s == name {
			return i, f.Type, true
		}
	}
	return 0, types.NoTypeID, false
}
