package ir_test

import (
	"strings"
	"testing"

	"callfuse/internal/ir"
)

const sample = `
; fib-ish arithmetic over one parameter
extern fn @sink(%v)
intrinsic fn @trap()
fn @main(%x) {
bb0:
  %p = alloca
  store %p, %x
  %v = load %p
  %d = mul %v, 2
  %r = call @sink(%d)
  %c = lt %r, 10
  br %c, bb1, bb2
bb1:
  %s = phi [%r, bb0], [%n, bb2]
  ret %s
bb2:
  %n = add %r, -1
  switch %n, bb1 [5: bb2]
}
`

func TestParse_Sample(t *testing.T) {
	m, err := ir.Parse(sample)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ir.Validate(m); err != nil {
		t.Fatalf("validate: %v", err)
	}
	if len(m.Funcs) != 3 {
		t.Fatalf("expected 3 functions, got %d", len(m.Funcs))
	}
	sink := m.FuncByName("sink")
	if sink == nil || !sink.Declared() || sink.Intrinsic {
		t.Error("@sink should be a plain extern declaration")
	}
	trap := m.FuncByName("trap")
	if trap == nil || !trap.Intrinsic {
		t.Error("@trap should be an intrinsic")
	}
	main := m.FuncByName("main")
	if len(main.Blocks) != 3 {
		t.Fatalf("expected 3 blocks in @main, got %d", len(main.Blocks))
	}
	if len(main.Entry().Instrs) != 6 {
		t.Errorf("expected 6 instructions in entry, got %d", len(main.Entry().Instrs))
	}
}

func TestParse_RoundTrip(t *testing.T) {
	m, err := ir.Parse(sample)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	text := ir.Sprint(m)
	m2, err := ir.Parse(text)
	if err != nil {
		t.Fatalf("reparse printed module: %v\n%s", err, text)
	}
	if err := ir.Validate(m2); err != nil {
		t.Fatalf("reparsed module invalid: %v", err)
	}
	// Printing is canonical, so a second round must be a fixed point.
	if text2 := ir.Sprint(m2); text2 != text {
		t.Errorf("print not canonical:\nfirst:\n%s\nsecond:\n%s", text, text2)
	}
}

func TestParse_ForwardReferences(t *testing.T) {
	src := `
fn @main(%x) {
bb0:
  br bb2
bb2:
  %a = add %x, %b
  %b = phi [%x, bb0]
  ret %a
}
`
	// %b referenced before its definition inside the block is a layout
	// error caught by the validator, not the parser.
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ir.Validate(m); err == nil {
		t.Error("validator should reject phi after non-phi and use before def")
	}
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"undefined register", "fn @f(%x) {\nbb0:\n  ret %nope\n}", "undefined register"},
		{"undefined label", "fn @f(%x) {\nbb0:\n  br bbnope\n}", "undefined label"},
		{"undeclared function", "fn @f(%x) {\nbb0:\n  %r = call @ghost(%x)\n  ret %r\n}", "never declared"},
		{"duplicate label", "fn @f(%x) {\nbb0:\n  br bb0\nbb0:\n  ret\n}", "duplicate label"},
		{"duplicate function", "extern fn @f(%x)\nextern fn @f(%x)", "duplicate function"},
		{"redefined register", "fn @f(%x) {\nbb0:\n  %a = add %x, 1\n  %a = add %x, 2\n  ret %a\n}", "redefined"},
		{"body on extern", "extern fn @f(%x) {\nbb0:\n  ret\n}", "must not have a body"},
		{"missing body", "fn @f(%x)", "needs a body"},
		{"bad opcode", "fn @f(%x) {\nbb0:\n  %a = frobnicate %x\n  ret %a\n}", "unknown opcode"},
		{"dst on terminator", "fn @f(%x) {\nbb0:\n  %a = br bb0\n}", "terminator cannot define"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ir.Parse(tt.src)
			if err == nil {
				t.Fatal("expected an error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestParse_NormalizesSymbolNames(t *testing.T) {
	// U+0065 U+0301 (e + combining acute) and U+00E9 (precomposed) must
	// name the same function.
	src := "extern fn @café(%x)\nfn @main(%x) {\nbb0:\n  %r = call @café(%x)\n  ret %r\n}"
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	main := m.FuncByName("main")
	call := main.Entry().Instrs[0]
	if call.Callee != m.FuncByName("café") {
		t.Error("combining-mark spelling should resolve to the same callee")
	}
}
