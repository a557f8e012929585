package ir

import (
	"fmt"
	"io"
	"strings"
)

// Fprint writes a module in the textual form accepted by Parse. Registers
// are printed positionally by value ID; source-level names are not
// preserved.
func Fprint(w io.Writer, m *Module) error {
	for i, f := range m.Funcs {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := fprintFunc(w, f); err != nil {
			return err
		}
	}
	return nil
}

// Sprint returns the textual form of a module.
func Sprint(m *Module) string {
	var b strings.Builder
	// strings.Builder never fails.
	_ = Fprint(&b, m)
	return b.String()
}

func fprintFunc(w io.Writer, f *Func) error {
	marker := ""
	switch {
	case f.Intrinsic:
		marker = "intrinsic "
	case f.Declared():
		marker = "extern "
	}
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = regName(p)
	}
	if f.Declared() {
		_, err := fmt.Fprintf(w, "%sfn @%s(%s)\n", marker, f.Name, strings.Join(params, ", "))
		return err
	}
	if _, err := fmt.Fprintf(w, "%sfn @%s(%s) {\n", marker, f.Name, strings.Join(params, ", ")); err != nil {
		return err
	}
	for _, b := range f.Blocks {
		if _, err := fmt.Fprintf(w, "%s:\n", b); err != nil {
			return err
		}
		for _, v := range b.Instrs {
			if _, err := fmt.Fprintf(w, "  %s\n", instrString(v)); err != nil {
				return err
			}
		}
		if b.Term != nil {
			if _, err := fmt.Fprintf(w, "  %s\n", termString(b)); err != nil {
				return err
			}
		}
	}
	_, err := fmt.Fprintln(w, "}")
	return err
}

func regName(v *Value) string {
	return fmt.Sprintf("%%%d", v.ID)
}

// operandString prints a register reference or an inline literal.
func operandString(v *Value) string {
	if v.Op == OpConst {
		return fmt.Sprintf("%d", v.AuxInt)
	}
	return regName(v)
}

func operandsString(vs []*Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = operandString(v)
	}
	return strings.Join(parts, ", ")
}

func instrString(v *Value) string {
	switch v.Op {
	case OpAlloca:
		return fmt.Sprintf("%s = alloca", regName(v))
	case OpLoad:
		return fmt.Sprintf("%s = load %s", regName(v), operandString(v.Args[0]))
	case OpStore:
		return fmt.Sprintf("store %s, %s", operandString(v.Args[0]), operandString(v.Args[1]))
	case OpAdd, OpSub, OpMul, OpEq, OpLt:
		return fmt.Sprintf("%s = %s %s, %s", regName(v), v.Op, operandString(v.Args[0]), operandString(v.Args[1]))
	case OpCall:
		call := fmt.Sprintf("call @%s(%s)", v.Callee.Name, operandsString(v.Args))
		if v.HasUses() {
			return fmt.Sprintf("%s = %s", regName(v), call)
		}
		return call
	case OpCallIndirect:
		call := fmt.Sprintf("calli %s(%s)", operandString(v.Args[0]), operandsString(v.Args[1:]))
		if v.HasUses() {
			return fmt.Sprintf("%s = %s", regName(v), call)
		}
		return call
	case OpAsm:
		s := fmt.Sprintf("asm %q", v.Name)
		if len(v.Args) > 0 {
			s += ", " + operandsString(v.Args)
		}
		if v.HasUses() {
			return fmt.Sprintf("%s = %s", regName(v), s)
		}
		return s
	case OpPhi:
		pairs := make([]string, len(v.Args))
		for i, a := range v.Args {
			pairs[i] = fmt.Sprintf("[%s, %s]", operandString(a), v.In[i])
		}
		return fmt.Sprintf("%s = phi %s", regName(v), strings.Join(pairs, ", "))
	}
	return fmt.Sprintf("%s = %s ???", regName(v), v.Op)
}

func termString(b *Block) string {
	t := b.Term
	switch t.Op {
	case OpJump:
		return fmt.Sprintf("br %s", b.Succs[0])
	case OpBranch:
		return fmt.Sprintf("br %s, %s, %s", operandString(t.Args[0]), b.Succs[0], b.Succs[1])
	case OpSwitch:
		cases := make([]string, len(t.Tags))
		for i, tag := range t.Tags {
			cases[i] = fmt.Sprintf("%d: %s", tag, b.Succs[1+i])
		}
		return fmt.Sprintf("switch %s, %s [%s]", operandString(t.Args[0]), b.Succs[0], strings.Join(cases, ", "))
	case OpRet:
		if len(t.Args) > 0 {
			return fmt.Sprintf("ret %s", operandString(t.Args[0]))
		}
		return "ret"
	}
	return "???"
}
