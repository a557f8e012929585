package ir_test

import (
	"testing"

	"callfuse/internal/ir"
)

func parseMain(t *testing.T, src string) (*ir.Module, *ir.Func) {
	t.Helper()
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ir.Validate(m); err != nil {
		t.Fatalf("validate: %v", err)
	}
	f := m.FuncByName("main")
	if f == nil {
		t.Fatal("no @main")
	}
	return m, f
}

func TestSplitAfter(t *testing.T) {
	m, f := parseMain(t, `
fn @main(%x) {
bb0:
  %a = add %x, 1
  %b = add %a, 2
  %c = lt %b, 10
  br %c, bb1, bb2
bb1:
  %p = phi [%b, bb0]
  ret %p
bb2:
  ret %b
}
`)
	bb0 := f.Entry()
	cut := bb0.Instrs[0] // %a
	cont := bb0.SplitAfter(cut)

	if len(bb0.Instrs) != 1 {
		t.Errorf("predecessor keeps 1 instruction, got %d", len(bb0.Instrs))
	}
	if len(cont.Instrs) != 2 {
		t.Errorf("continuation gets 2 instructions, got %d", len(cont.Instrs))
	}
	if bb0.Term.Op != ir.OpJump || bb0.Succs[0] != cont {
		t.Error("predecessor must end in a jump to the continuation")
	}
	if cont.Term.Op != ir.OpBranch {
		t.Error("continuation must inherit the original terminator")
	}
	// PHIs in former successors follow the edge to the continuation.
	bb1 := f.Blocks[1]
	phi := bb1.Instrs[0]
	if phi.In[0] != cont {
		t.Errorf("phi incoming block is %s, want %s", phi.In[0], cont)
	}
	if err := ir.Validate(m); err != nil {
		t.Errorf("split broke the module: %v", err)
	}
}

func TestSplitAfter_LastInstruction(t *testing.T) {
	m, f := parseMain(t, `
fn @main(%x) {
bb0:
  %a = add %x, 1
  ret %a
}
`)
	bb0 := f.Entry()
	cont := bb0.SplitAfter(bb0.Instrs[0])
	if len(cont.Instrs) != 0 {
		t.Errorf("continuation should be empty, got %d instructions", len(cont.Instrs))
	}
	if cont.Term.Op != ir.OpRet {
		t.Error("continuation must carry the return")
	}
	if err := ir.Validate(m); err != nil {
		t.Errorf("split broke the module: %v", err)
	}
}

func TestDemoteToStack(t *testing.T) {
	m, f := parseMain(t, `
fn @main(%x) {
bb0:
  %a = add %x, 1
  br bb1
bb1:
  %u = mul %a, %a
  ret %u
}
`)
	bb0 := f.Entry()
	a := bb0.Instrs[0]
	slot := ir.DemoteToStack(a)

	if slot.Op != ir.OpAlloca || slot.Block != bb0 {
		t.Fatalf("slot should be an alloca in the entry block, got %s in %s", slot.Op, slot.Block)
	}
	if bb0.Instrs[0] != slot {
		t.Error("slot must sit at the entry declaration point")
	}
	// %a's only remaining direct user is the store into the slot.
	if a.NumUses() != 1 || a.Users()[0].Op != ir.OpStore {
		t.Errorf("demoted value should only feed its store, users = %v", a.Users())
	}
	// The multiply now reads two loads.
	bb1 := f.Blocks[1]
	mul := bb1.Instrs[len(bb1.Instrs)-1]
	for i, arg := range mul.Args {
		if arg.Op != ir.OpLoad {
			t.Errorf("mul operand %d should be a reload, got %s", i, arg.Op)
		}
	}
	if err := ir.Validate(m); err != nil {
		t.Errorf("demotion broke the module: %v", err)
	}
	// Behavior is unchanged.
	got, err := ir.EvalFunc(f, []int64{4}, ir.EvalOptions{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != 25 {
		t.Errorf("main(4) = %d, want 25", got)
	}
}

func TestDemoteToStack_PhiUse(t *testing.T) {
	m, f := parseMain(t, `
fn @main(%x) {
bb0:
  %a = add %x, 1
  %c = lt %x, 0
  br %c, bb1, bb2
bb1:
  br bb3
bb2:
  br bb3
bb3:
  %p = phi [%a, bb1], [%a, bb2]
  ret %p
}
`)
	a := f.Entry().Instrs[0]
	ir.DemoteToStack(a)

	// Reloads feeding the PHI land at the bottom of each incoming block.
	bb3 := f.Blocks[3]
	phi := bb3.Instrs[0]
	for i, arg := range phi.Args {
		if arg.Op != ir.OpLoad {
			t.Fatalf("phi incoming %d should be a reload, got %s", i, arg.Op)
		}
		if arg.Block != phi.In[i] {
			t.Errorf("phi reload %d placed in %s, want %s", i, arg.Block, phi.In[i])
		}
	}
	if err := ir.Validate(m); err != nil {
		t.Errorf("demotion broke the module: %v", err)
	}
	for _, x := range []int64{-3, 0, 9} {
		got, err := ir.EvalFunc(f, []int64{x}, ir.EvalOptions{})
		if err != nil {
			t.Fatalf("eval(%d): %v", x, err)
		}
		if got != x+1 {
			t.Errorf("main(%d) = %d, want %d", x, got, x+1)
		}
	}
}

func TestReplaceAllUsesWith(t *testing.T) {
	m, f := parseMain(t, `
fn @main(%x) {
bb0:
  %a = add %x, 1
  %b = add %x, 2
  %u = mul %a, %a
  ret %u
}
`)
	bb0 := f.Entry()
	a, b := bb0.Instrs[0], bb0.Instrs[1]
	a.ReplaceAllUsesWith(b)
	if a.HasUses() {
		t.Errorf("%s still has %d uses", a, a.NumUses())
	}
	if b.NumUses() != 2 {
		t.Errorf("%s should have 2 uses, got %d", b, b.NumUses())
	}
	a.Erase()
	if err := ir.Validate(m); err != nil {
		t.Errorf("module invalid after replace+erase: %v", err)
	}
	got, err := ir.EvalFunc(f, []int64{3}, ir.EvalOptions{})
	if err != nil {
		t.Fatalf("eval: %v", err)
	}
	if got != 25 {
		t.Errorf("main(3) = %d, want 25", got)
	}
}

func TestSetJumpReroutesEdges(t *testing.T) {
	m, f := parseMain(t, `
fn @main(%x) {
bb0:
  br bb1
bb1:
  %p = phi [%x, bb0]
  ret %p
bb2:
  ret 0
}
`)
	bb0, bb1, bb2 := f.Blocks[0], f.Blocks[1], f.Blocks[2]
	bb0.SetJump(bb2)
	if len(bb1.Preds) != 0 {
		t.Errorf("bb1 should have lost its predecessor, has %d", len(bb1.Preds))
	}
	phi := bb1.Instrs[0]
	if len(phi.Args) != 0 {
		t.Errorf("phi should have lost its incoming pair, has %d", len(phi.Args))
	}
	if bb2.Preds[0] != bb0 {
		t.Error("bb2 should gain bb0 as predecessor")
	}
	_ = m
}
