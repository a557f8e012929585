package ir

import (
	"fmt"
	"sort"
)

// Parse reads a textual IR module.
//
// Grammar, by example:
//
//	; comment
//	extern fn @sink(%x)
//	intrinsic fn @trap()
//	fn @main(%x) {
//	bb0:
//	  %p = alloca
//	  store %p, %x
//	  %v = load %p
//	  %d = mul %v, 2
//	  %r = call @sink(%d)
//	  %c = lt %r, 10
//	  br %c, bb1, bb2
//	bb1:
//	  %s = phi [%r, bb0]
//	  ret %s
//	bb2:
//	  switch %r, bb1 [0: bb1]
//	}
//
// Operands are registers or integer literals. Registers may be referenced
// before their definition (back edges); unresolved names are reported at
// the end of the enclosing function.
func Parse(src string) (*Module, error) {
	p := &parser{s: newScanner(src), funcs: make(map[string]*Func)}
	if err := p.advance(); err != nil {
		return nil, err
	}
	m := &Module{}
	for p.tok.kind != tokEOF {
		f, err := p.parseFunc()
		if err != nil {
			return nil, err
		}
		m.Funcs = append(m.Funcs, f)
	}
	for name, f := range p.funcs {
		if !p.declared[name] {
			return nil, fmt.Errorf("function @%s is called but never declared", f.Name)
		}
	}
	return m, nil
}

type parser struct {
	s        *scanner
	tok      token
	funcs    map[string]*Func
	declared map[string]bool

	// Per-function state.
	f      *Func
	regs   map[string]*Value
	blocks map[string]*Block
	holes  map[string]*Value
	order  []string // block definition order, for error reporting
}

func (p *parser) advance() error {
	t, err := p.s.next()
	if err != nil {
		return err
	}
	p.tok = t
	return nil
}

func (p *parser) errf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.tok.line, fmt.Sprintf(format, args...))
}

func (p *parser) expect(k tokKind, what string) (token, error) {
	if p.tok.kind != k {
		return token{}, p.errf("expected %s, found %s", what, p.tok)
	}
	t := p.tok
	return t, p.advance()
}

func (p *parser) expectIdent(word string) error {
	if p.tok.kind != tokIdent || p.tok.text != word {
		return p.errf("expected %q, found %s", word, p.tok)
	}
	return p.advance()
}

// getFunc returns the function named name, creating a forward declaration
// placeholder on first reference.
func (p *parser) getFunc(name string) *Func {
	if f, ok := p.funcs[name]; ok {
		return f
	}
	f := &Func{Name: name}
	p.funcs[name] = f
	return f
}

func (p *parser) parseFunc() (*Func, error) {
	if p.declared == nil {
		p.declared = make(map[string]bool)
	}
	intrinsic, extern := false, false
	switch {
	case p.tok.kind == tokIdent && p.tok.text == "intrinsic":
		intrinsic = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	case p.tok.kind == tokIdent && p.tok.text == "extern":
		extern = true
		if err := p.advance(); err != nil {
			return nil, err
		}
	}
	if err := p.expectIdent("fn"); err != nil {
		return nil, err
	}
	sym, err := p.expect(tokSym, "function symbol")
	if err != nil {
		return nil, err
	}
	if p.declared[sym.text] {
		return nil, p.errf("duplicate function @%s", sym.text)
	}
	p.declared[sym.text] = true

	f := p.getFunc(sym.text)
	f.Intrinsic = intrinsic
	p.f = f
	p.regs = make(map[string]*Value)
	p.blocks = make(map[string]*Block)
	p.holes = make(map[string]*Value)
	p.order = nil

	if _, err := p.expect(tokLParen, "'('"); err != nil {
		return nil, err
	}
	for p.tok.kind != tokRParen {
		if len(f.Params) > 0 {
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
		}
		reg, err := p.expect(tokReg, "parameter register")
		if err != nil {
			return nil, err
		}
		if _, dup := p.regs[reg.text]; dup {
			return nil, p.errf("duplicate parameter %%%s", reg.text)
		}
		prm := f.newValue(OpParam, TypeInt)
		prm.AuxInt = int64(len(f.Params))
		prm.Name = reg.text
		f.Params = append(f.Params, prm)
		p.regs[reg.text] = prm
	}
	if err := p.advance(); err != nil { // ')'
		return nil, err
	}

	if p.tok.kind != tokLBrace {
		if intrinsic || extern {
			return f, nil
		}
		return nil, p.errf("function @%s needs a body or an extern/intrinsic marker", f.Name)
	}
	if intrinsic || extern {
		return nil, p.errf("declared function @%s must not have a body", f.Name)
	}
	if err := p.advance(); err != nil { // '{'
		return nil, err
	}

	for p.tok.kind != tokRBrace {
		if err := p.parseBlock(); err != nil {
			return nil, err
		}
	}
	if err := p.advance(); err != nil { // '}'
		return nil, err
	}

	// Resolve forward register references.
	for _, h := range sortedHoles(p.holes) {
		def, ok := p.regs[h.name]
		if !ok {
			return nil, fmt.Errorf("function @%s: undefined register %%%s", f.Name, h.name)
		}
		h.v.ReplaceAllUsesWith(def)
	}
	for name, b := range p.blocks {
		if b.Func == nil {
			return nil, fmt.Errorf("function @%s: undefined label %s", f.Name, name)
		}
	}
	if len(f.Blocks) == 0 {
		return nil, fmt.Errorf("function @%s has an empty body", f.Name)
	}
	return f, nil
}

type hole struct {
	name string
	v    *Value
}

func sortedHoles(m map[string]*Value) []hole {
	out := make([]hole, 0, len(m))
	for name, v := range m {
		out = append(out, hole{name, v})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].name < out[j].name })
	return out
}

// getBlock returns the block labelled name, creating a detached block on
// first reference. Detached blocks are appended to the function layout
// when their label is defined.
func (p *parser) getBlock(name string) *Block {
	if b, ok := p.blocks[name]; ok {
		return b
	}
	b := &Block{}
	p.blocks[name] = b
	return b
}

func (p *parser) defineBlock(name string) (*Block, error) {
	b := p.getBlock(name)
	if b.Func != nil {
		return nil, p.errf("duplicate label %s", name)
	}
	b.Func = p.f
	b.ID = p.f.blockID
	p.f.blockID++
	p.f.Blocks = append(p.f.Blocks, b)
	p.order = append(p.order, name)
	return b, nil
}

// operand resolves a register or literal. Unknown registers produce a
// shared placeholder resolved at the end of the function.
func (p *parser) operand() (*Value, error) {
	switch p.tok.kind {
	case tokInt:
		c := p.f.ConstInt(p.tok.n)
		return c, p.advance()
	case tokReg:
		name := p.tok.text
		if err := p.advance(); err != nil {
			return nil, err
		}
		if v, ok := p.regs[name]; ok {
			return v, nil
		}
		if v, ok := p.holes[name]; ok {
			return v, nil
		}
		v := p.f.newValue(OpInvalid, TypeInt)
		v.Name = name
		p.holes[name] = v
		return v, nil
	}
	return nil, p.errf("expected operand, found %s", p.tok)
}

func (p *parser) operandList(open, close tokKind) ([]*Value, error) {
	if _, err := p.expect(open, "argument list"); err != nil {
		return nil, err
	}
	var args []*Value
	for p.tok.kind != close {
		if len(args) > 0 {
			if _, err := p.expect(tokComma, "','"); err != nil {
				return nil, err
			}
		}
		a, err := p.operand()
		if err != nil {
			return nil, err
		}
		args = append(args, a)
	}
	return args, p.advance()
}

func (p *parser) define(name string, v *Value) error {
	if name == "" {
		return nil
	}
	if _, dup := p.regs[name]; dup {
		return p.errf("register %%%s redefined", name)
	}
	v.Name = name
	p.regs[name] = v
	return nil
}

func (p *parser) parseBlock() error {
	lbl, err := p.expect(tokIdent, "block label")
	if err != nil {
		return err
	}
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return err
	}
	b, err := p.defineBlock(lbl.text)
	if err != nil {
		return err
	}
	for {
		done, err := p.parseInstr(b)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// parseInstr consumes one instruction or terminator of b and reports
// whether the block is finished.
func (p *parser) parseInstr(b *Block) (bool, error) {
	f := p.f
	dst := ""
	if p.tok.kind == tokReg {
		dst = p.tok.text
		if err := p.advance(); err != nil {
			return false, err
		}
		if _, err := p.expect(tokAssign, "'='"); err != nil {
			return false, err
		}
	}
	op, err := p.expect(tokIdent, "opcode")
	if err != nil {
		return false, err
	}

	switch op.text {
	case "alloca":
		return false, p.define(dst, f.NewAlloca(b))

	case "load":
		slot, err := p.operand()
		if err != nil {
			return false, err
		}
		return false, p.define(dst, f.NewLoad(b, slot))

	case "store":
		slot, err := p.operand()
		if err != nil {
			return false, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return false, err
		}
		val, err := p.operand()
		if err != nil {
			return false, err
		}
		f.NewStore(b, slot, val)
		return false, nil

	case "add", "sub", "mul", "eq", "lt":
		x, err := p.operand()
		if err != nil {
			return false, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return false, err
		}
		y, err := p.operand()
		if err != nil {
			return false, err
		}
		binOp := map[string]Op{"add": OpAdd, "sub": OpSub, "mul": OpMul, "eq": OpEq, "lt": OpLt}[op.text]
		return false, p.define(dst, f.NewBin(b, binOp, x, y))

	case "call":
		sym, err := p.expect(tokSym, "callee symbol")
		if err != nil {
			return false, err
		}
		args, err := p.operandList(tokLParen, tokRParen)
		if err != nil {
			return false, err
		}
		return false, p.define(dst, f.NewCall(b, p.getFunc(sym.text), args...))

	case "calli":
		target, err := p.operand()
		if err != nil {
			return false, err
		}
		args, err := p.operandList(tokLParen, tokRParen)
		if err != nil {
			return false, err
		}
		return false, p.define(dst, f.NewCallIndirect(b, target, args...))

	case "asm":
		text, err := p.expect(tokString, "assembly text")
		if err != nil {
			return false, err
		}
		var args []*Value
		for p.tok.kind == tokComma {
			if err := p.advance(); err != nil {
				return false, err
			}
			a, err := p.operand()
			if err != nil {
				return false, err
			}
			args = append(args, a)
		}
		return false, p.define(dst, f.NewAsm(b, text.text, args...))

	case "phi":
		// Kept at its textual position on purpose: NewPhi would hoist it
		// into the leading phi run, hiding a phi-after-instruction layout
		// error from the validator.
		phi := f.append(b, OpPhi, TypeInt)
		for first := true; first || p.tok.kind == tokComma; first = false {
			if !first {
				if err := p.advance(); err != nil {
					return false, err
				}
			}
			if _, err := p.expect(tokLBrack, "'['"); err != nil {
				return false, err
			}
			val, err := p.operand()
			if err != nil {
				return false, err
			}
			if _, err := p.expect(tokComma, "','"); err != nil {
				return false, err
			}
			lbl, err := p.expect(tokIdent, "incoming label")
			if err != nil {
				return false, err
			}
			if _, err := p.expect(tokRBrack, "']'"); err != nil {
				return false, err
			}
			phi.AddIncoming(val, p.getBlock(lbl.text))
		}
		return false, p.define(dst, phi)

	case "br":
		if dst != "" {
			return false, p.errf("terminator cannot define a register")
		}
		if p.tok.kind == tokIdent { // unconditional
			b.SetJump(p.getBlock(p.tok.text))
			return true, p.advance()
		}
		cond, err := p.operand()
		if err != nil {
			return false, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return false, err
		}
		then, err := p.expect(tokIdent, "then label")
		if err != nil {
			return false, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return false, err
		}
		els, err := p.expect(tokIdent, "else label")
		if err != nil {
			return false, err
		}
		b.SetBranch(cond, p.getBlock(then.text), p.getBlock(els.text))
		return true, nil

	case "switch":
		if dst != "" {
			return false, p.errf("terminator cannot define a register")
		}
		index, err := p.operand()
		if err != nil {
			return false, err
		}
		if _, err := p.expect(tokComma, "','"); err != nil {
			return false, err
		}
		def, err := p.expect(tokIdent, "default label")
		if err != nil {
			return false, err
		}
		sw := b.SetSwitch(index, p.getBlock(def.text))
		if _, err := p.expect(tokLBrack, "'['"); err != nil {
			return false, err
		}
		for p.tok.kind != tokRBrack {
			if len(sw.Tags) > 0 {
				if _, err := p.expect(tokComma, "','"); err != nil {
					return false, err
				}
			}
			tag, err := p.expect(tokInt, "case tag")
			if err != nil {
				return false, err
			}
			if _, err := p.expect(tokColon, "':'"); err != nil {
				return false, err
			}
			lbl, err := p.expect(tokIdent, "case label")
			if err != nil {
				return false, err
			}
			sw.AddCase(tag.n, p.getBlock(lbl.text))
		}
		return true, p.advance()

	case "ret":
		if dst != "" {
			return false, p.errf("terminator cannot define a register")
		}
		if p.tok.kind == tokReg || p.tok.kind == tokInt {
			val, err := p.operand()
			if err != nil {
				return false, err
			}
			b.SetRet(val)
			return true, nil
		}
		b.SetRet(nil)
		return true, nil
	}
	return false, p.errf("unknown opcode %q", op.text)
}
