package mergecalls_test

import (
	"reflect"
	"testing"

	"callfuse/internal/ir"
	"callfuse/internal/mergecalls"
)

func mustParse(t *testing.T, src string) *ir.Module {
	t.Helper()
	m, err := ir.Parse(src)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if err := ir.Validate(m); err != nil {
		t.Fatalf("input not well-formed: %v", err)
	}
	return m
}

// runOn parses src, runs the transform on the named function, and
// re-validates the result.
func runOn(t *testing.T, src, name string) (*ir.Module, bool) {
	t.Helper()
	m := mustParse(t, src)
	f := m.FuncByName(name)
	if f == nil {
		t.Fatalf("no function @%s", name)
	}
	changed := mergecalls.Run(f)
	if err := ir.Validate(m); err != nil {
		t.Fatalf("transform broke the module: %v\n%s", err, ir.Sprint(m))
	}
	return m, changed
}

func countCallsTo(f *ir.Func, name string) int {
	n := 0
	for _, b := range f.Blocks {
		for _, v := range b.Instrs {
			if v.Op == ir.OpCall && v.Callee.Name == name {
				n++
			}
		}
	}
	return n
}

// sharedBlockOf finds the block holding the single remaining call to
// name.
func sharedBlockOf(t *testing.T, f *ir.Func, name string) *ir.Block {
	t.Helper()
	var shared *ir.Block
	for _, b := range f.Blocks {
		for _, v := range b.Instrs {
			if v.Op == ir.OpCall && v.Callee.Name == name {
				if shared != nil {
					t.Fatalf("more than one call to @%s", name)
				}
				shared = b
			}
		}
	}
	if shared == nil {
		t.Fatalf("no call to @%s left", name)
	}
	return shared
}

// traceExtern records every argument list passed to an extern and
// returns ret(args).
func traceExtern(log *[][]int64, ret func(args []int64) int64) ir.Extern {
	return func(args []int64) (int64, error) {
		cp := make([]int64, len(args))
		copy(cp, args)
		*log = append(*log, cp)
		return ret(args), nil
	}
}

// checkEquivalent evaluates the named function before and after the
// transform for each argument tuple and requires identical results and
// identical extern call sequences.
func checkEquivalent(t *testing.T, src, name string, argTuples [][]int64) {
	t.Helper()
	for _, args := range argTuples {
		before := mustParse(t, src)
		after := mustParse(t, src)
		if !mergecalls.Run(after.FuncByName(name)) {
			t.Fatalf("transform did not fire for args %v", args)
		}
		if err := ir.Validate(after); err != nil {
			t.Fatalf("transform broke the module: %v\n%s", err, ir.Sprint(after))
		}

		var wantLog, gotLog [][]int64
		sum := func(args []int64) int64 {
			var s int64 = 7
			for _, a := range args {
				s = s*31 + a
			}
			return s
		}
		wantRes, wantErr := ir.EvalFunc(before.FuncByName(name), args, ir.EvalOptions{
			Externs: map[string]ir.Extern{"g": traceExtern(&wantLog, sum), "h": traceExtern(&wantLog, sum)},
		})
		gotRes, gotErr := ir.EvalFunc(after.FuncByName(name), args, ir.EvalOptions{
			Externs: map[string]ir.Extern{"g": traceExtern(&gotLog, sum), "h": traceExtern(&gotLog, sum)},
		})
		if wantErr != nil {
			t.Fatalf("args %v: original does not evaluate: %v", args, wantErr)
		}
		if gotErr != nil {
			t.Fatalf("args %v: merged function does not evaluate: %v\n%s", args, gotErr, ir.Sprint(after))
		}
		if gotRes != wantRes {
			t.Errorf("args %v: result %d, want %d\n%s", args, gotRes, wantRes, ir.Sprint(after))
		}
		if !reflect.DeepEqual(gotLog, wantLog) {
			t.Errorf("args %v: extern calls %v, want %v", args, gotLog, wantLog)
		}
	}
}

const twoSites = `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %v = mul %x, 2
  %r = call @g(%v)
  %ua = add %r, 100
  br bb1
bb1:
  %s = call @g(%x)
  %ub = add %s, 200
  %out = add %ua, %ub
  ret %out
}
`

func TestRun_MergesDuplicateCalls(t *testing.T) {
	m, changed := runOn(t, twoSites, "main")
	if !changed {
		t.Fatal("expected Run to report a change")
	}
	f := m.FuncByName("main")
	if n := countCallsTo(f, "g"); n != 1 {
		t.Errorf("expected exactly 1 call to @g, got %d", n)
	}
}

func TestRun_BehavioralEquivalence(t *testing.T) {
	checkEquivalent(t, twoSites, "main", [][]int64{{-5}, {-1}, {0}, {1}, {3}, {42}})
}

func TestRun_SharedBlockShape(t *testing.T) {
	m, _ := runOn(t, twoSites, "main")
	f := m.FuncByName("main")
	shared := sharedBlockOf(t, f, "g")

	// One argument PHI for @g's single parameter plus the discriminator
	// PHI, then the unified call.
	var phis []*ir.Value
	for _, v := range shared.Instrs {
		if v.Op == ir.OpPhi {
			phis = append(phis, v)
		}
	}
	if len(phis) != 2 {
		t.Fatalf("expected 2 PHIs in shared block (1 argument + discriminator), got %d", len(phis))
	}
	for _, phi := range phis {
		if len(phi.Args) != 2 {
			t.Errorf("%s: expected one incoming pair per call site, got %d", phi, len(phi.Args))
		}
	}

	// Discriminator PHI carries the tags 0 and 1.
	disc := phis[1]
	var tags []int64
	for _, a := range disc.Args {
		if a.Op != ir.OpConst {
			t.Fatalf("discriminator incoming %s is not a constant", a)
		}
		tags = append(tags, a.AuxInt)
	}
	if !reflect.DeepEqual(tags, []int64{0, 1}) {
		t.Errorf("discriminator tags = %v, want [0 1]", tags)
	}

	// Multi-way branch keyed on the discriminator with one case per tag.
	if shared.Term.Op != ir.OpSwitch {
		t.Fatalf("shared block terminator is %s, want switch", shared.Term.Op)
	}
	if shared.Term.Args[0] != disc {
		t.Error("switch is not keyed on the discriminator PHI")
	}
	if !reflect.DeepEqual(shared.Term.Tags, []int64{0, 1}) {
		t.Errorf("switch tags = %v, want [0 1]", shared.Term.Tags)
	}
}

func TestRun_ArgumentPhiOrder(t *testing.T) {
	src := `
extern fn @g(%a, %b)
fn @main(%x) {
bb0:
  %r = call @g(10, 11)
  br bb1
bb1:
  %s = call @g(20, 21)
  br bb2
bb2:
  %t = call @g(30, 31)
  %o1 = add %r, %s
  %o2 = add %o1, %t
  ret %o2
}
`
	m, _ := runOn(t, src, "main")
	f := m.FuncByName("main")
	shared := sharedBlockOf(t, f, "g")

	var phis []*ir.Value
	for _, v := range shared.Instrs {
		if v.Op == ir.OpPhi {
			phis = append(phis, v)
		}
	}
	if len(phis) != 3 { // 2 argument PHIs + discriminator
		t.Fatalf("expected 3 PHIs, got %d", len(phis))
	}
	// PHI #i's incoming from call site j equals site j's i-th argument.
	want := [][]int64{{10, 20, 30}, {11, 21, 31}}
	for i, phi := range phis[:2] {
		var got []int64
		for _, a := range phi.Args {
			if a.Op != ir.OpConst {
				t.Fatalf("argument PHI incoming %s is not the original constant", a)
			}
			got = append(got, a.AuxInt)
		}
		if !reflect.DeepEqual(got, want[i]) {
			t.Errorf("argument PHI #%d incomings = %v, want %v", i, got, want[i])
		}
	}
	checkEquivalent(t, src, "main", [][]int64{{0}})
}

func TestRun_MergeCountThreeSites(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %a = call @g(%x)
  %b = call @g(%a)
  %c = call @g(%b)
  ret %c
}
`
	m, changed := runOn(t, src, "main")
	if !changed {
		t.Fatal("expected a change")
	}
	if n := countCallsTo(m.FuncByName("main"), "g"); n != 1 {
		t.Errorf("expected 1 call to @g, got %d", n)
	}
	checkEquivalent(t, src, "main", [][]int64{{0}, {5}, {-3}})
}

func TestRun_SingleSiteUntouched(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %r = call @g(%x)
  ret %r
}
`
	m := mustParse(t, src)
	before := ir.Sprint(m)
	if mergecalls.Run(m.FuncByName("main")) {
		t.Fatal("single call site must not be transformed")
	}
	if after := ir.Sprint(m); after != before {
		t.Errorf("function changed:\nbefore:\n%s\nafter:\n%s", before, after)
	}
}

func TestRun_Idempotent(t *testing.T) {
	m, changed := runOn(t, twoSites, "main")
	if !changed {
		t.Fatal("first run should merge")
	}
	f := m.FuncByName("main")
	snapshot := ir.Sprint(m)
	if mergecalls.Run(f) {
		t.Fatal("second run must be a no-op")
	}
	if got := ir.Sprint(m); got != snapshot {
		t.Errorf("second run changed the function:\nbefore:\n%s\nafter:\n%s", snapshot, got)
	}
}

func TestRun_FilterExclusions(t *testing.T) {
	tests := []struct {
		name string
		src  string
	}{
		{
			name: "indirect",
			src: `
fn @main(%f) {
bb0:
  %a = calli %f(1)
  %b = calli %f(2)
  %o = add %a, %b
  ret %o
}
`,
		},
		{
			name: "intrinsic",
			src: `
intrinsic fn @trap()
fn @main(%x) {
bb0:
  call @trap()
  call @trap()
  ret %x
}
`,
		},
		{
			name: "inline asm",
			src: `
fn @main(%x) {
bb0:
  %a = asm "rdcycle", %x
  %b = asm "rdcycle", %x
  %o = add %a, %b
  ret %o
}
`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := mustParse(t, tt.src)
			before := ir.Sprint(m)
			if mergecalls.Run(m.FuncByName("main")) {
				t.Fatalf("%s calls must never be merged", tt.name)
			}
			if after := ir.Sprint(m); after != before {
				t.Errorf("function changed:\nbefore:\n%s\nafter:\n%s", before, after)
			}
		})
	}
}

func TestRun_ArityMismatchIneligible(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %r = call @g(%x)
  br bb1
bb1:
  %s = call @g(%x, %r)
  %o = add %r, %s
  ret %o
}
`
	m := mustParse(t, src)
	if mergecalls.Run(m.FuncByName("main")) {
		t.Fatal("arity-mismatched site left only one eligible call; nothing to merge")
	}
}

func TestRun_ZeroArgCallee(t *testing.T) {
	src := `
extern fn @g()
fn @main(%x) {
bb0:
  %a = call @g()
  br bb1
bb1:
  %b = call @g()
  %o = add %a, %b
  ret %o
}
`
	m, changed := runOn(t, src, "main")
	if !changed {
		t.Fatal("expected a change")
	}
	f := m.FuncByName("main")
	shared := sharedBlockOf(t, f, "g")
	nphi := 0
	for _, v := range shared.Instrs {
		if v.Op == ir.OpPhi {
			nphi++
		}
	}
	// Only the discriminator; no argument PHIs for a zero-arity callee.
	if nphi != 1 {
		t.Errorf("expected only the discriminator PHI, got %d PHIs", nphi)
	}
	checkEquivalent(t, src, "main", [][]int64{{0}})
}

func TestRun_EscapingValuePreserved(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %keep = mul %x, 3
  %r = call @g(%x)
  %u1 = add %keep, %r
  br bb1
bb1:
  %s = call @g(%u1)
  %u2 = add %keep, %s
  ret %u2
}
`
	checkEquivalent(t, src, "main", [][]int64{{-2}, {0}, {9}})
}

func TestRun_BranchingContinuations(t *testing.T) {
	// Two sites with distinct follow-up code; each
	// continuation must run exactly its own follow-up.
	src := `
extern fn @g(%a)
fn @main(%x, %y) {
bb0:
  %c = lt %x, %y
  br %c, bb1, bb2
bb1:
  %r = call @g(%x)
  %ua = mul %r, 10
  br bb3
bb2:
  %s = call @g(%y)
  %ub = mul %s, 100
  br bb3
bb3:
  %out = phi [%ua, bb1], [%ub, bb2]
  ret %out
}
`
	m, _ := runOn(t, src, "main")
	if n := countCallsTo(m.FuncByName("main"), "g"); n != 1 {
		t.Errorf("expected 1 call to @g, got %d", n)
	}
	checkEquivalent(t, src, "main", [][]int64{{1, 2}, {2, 1}, {0, 0}, {-4, 7}})
}

func TestRun_TwoSitesSameBlock(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %r = call @g(%x)
  %s = call @g(%r)
  %o = add %r, %s
  ret %o
}
`
	m, _ := runOn(t, src, "main")
	if n := countCallsTo(m.FuncByName("main"), "g"); n != 1 {
		t.Errorf("expected 1 call to @g, got %d", n)
	}
	checkEquivalent(t, src, "main", [][]int64{{0}, {1}, {-6}})
}

func TestRun_UnusedResults(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  call @g(%x)
  br bb1
bb1:
  call @g(7)
  ret %x
}
`
	m, _ := runOn(t, src, "main")
	if n := countCallsTo(m.FuncByName("main"), "g"); n != 1 {
		t.Errorf("expected 1 call to @g, got %d", n)
	}
	checkEquivalent(t, src, "main", [][]int64{{0}, {13}})
}

func TestRun_SelfRecursive(t *testing.T) {
	// Two recursive sites; recursion terminates via the lt guard.
	src := `
extern fn @g(%a)
fn @f(%n) {
bb0:
  %stop = lt %n, 1
  br %stop, bbdone, bbeven
bbdone:
  ret 0
bbeven:
  %n1 = sub %n, 1
  %a = call @f(%n1)
  %odd = mul %a, 2
  br bbodd
bbodd:
  %n2 = sub %n, 2
  %guard = lt %n2, 0
  br %guard, bbsum, bbrec
bbrec:
  %b = call @f(%n2)
  br bbsum
bbsum:
  %bv = phi [0, bbodd], [%b, bbrec]
  %s = add %odd, %bv
  %o = add %s, %n
  ret %o
}
`
	before := mustParse(t, src)
	after := mustParse(t, src)
	if !mergecalls.Run(after.FuncByName("f")) {
		t.Fatal("expected recursive sites to merge")
	}
	if err := ir.Validate(after); err != nil {
		t.Fatalf("transform broke the module: %v\n%s", err, ir.Sprint(after))
	}
	if n := countCallsTo(after.FuncByName("f"), "f"); n != 1 {
		t.Errorf("expected 1 recursive call, got %d", n)
	}
	for _, n := range []int64{0, 1, 2, 3, 5, 8} {
		want, err := ir.EvalFunc(before.FuncByName("f"), []int64{n}, ir.EvalOptions{})
		if err != nil {
			t.Fatalf("n=%d: original: %v", n, err)
		}
		got, err := ir.EvalFunc(after.FuncByName("f"), []int64{n}, ir.EvalOptions{})
		if err != nil {
			t.Fatalf("n=%d: merged: %v\n%s", n, err, ir.Sprint(after))
		}
		if got != want {
			t.Errorf("n=%d: got %d, want %d", n, got, want)
		}
	}
}

func TestRun_TwoGroups(t *testing.T) {
	src := `
extern fn @g(%a)
extern fn @h(%a)
fn @main(%x) {
bb0:
  %a = call @g(%x)
  %b = call @h(%a)
  br bb1
bb1:
  %c = call @g(%b)
  %d = call @h(%c)
  %o = add %c, %d
  ret %o
}
`
	m, _ := runOn(t, src, "main")
	f := m.FuncByName("main")
	if n := countCallsTo(f, "g"); n != 1 {
		t.Errorf("expected 1 call to @g, got %d", n)
	}
	if n := countCallsTo(f, "h"); n != 1 {
		t.Errorf("expected 1 call to @h, got %d", n)
	}
	checkEquivalent(t, src, "main", [][]int64{{0}, {4}})
}

func TestRun_DeclaredFunctionIgnored(t *testing.T) {
	src := `
extern fn @g(%a)
fn @main(%x) {
bb0:
  %r = call @g(%x)
  ret %r
}
`
	m := mustParse(t, src)
	if mergecalls.Run(m.FuncByName("g")) {
		t.Error("declared functions have no body to transform")
	}
	if mergecalls.Run(nil) {
		t.Error("nil function must be a no-op")
	}
}
