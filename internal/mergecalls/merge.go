// Package mergecalls collapses groups of call sites that invoke the same
// callee into one physical call, trading an extra dispatch branch for
// code size. Control flow is rerouted so every original call site jumps
// into a shared call block and returns to its own continuation, selected
// by a small integer discriminator.
package mergecalls

import "callfuse/internal/ir"

// Result summarizes one transformed function.
type Result struct {
	Changed         bool
	GroupsMerged    int
	CallsEliminated int
}

// Run merges duplicate call sites in f, mutating it in place. It reports
// whether any group was merged, so a host pipeline can invalidate cached
// analyses of the function.
func Run(f *ir.Func) bool {
	return RunFunc(f).Changed
}

// RunFunc merges duplicate call sites in f and returns merge counts.
func RunFunc(f *ir.Func) Result {
	var res Result
	if f == nil || f.Declared() {
		return res
	}
	for _, g := range collect(f) {
		if len(g.calls) < 2 {
			continue
		}
		mergeGroup(f, g)
		res.Changed = true
		res.GroupsMerged++
		res.CallsEliminated += len(g.calls) - 1
	}
	return res
}

func mergeGroup(f *ir.Func, g callGroup) {
	shared := f.NewBlock()
	preds := make([]*ir.Block, len(g.calls))
	conts := make([]*ir.Block, len(g.calls))

	for i, call := range g.calls {
		pred := call.Block
		cont := pred.SplitAfter(call)

		// Demote every value of the pre-split block that escapes it, so
		// the routing below cannot place a use where its definition no
		// longer dominates. Entry-block slots are already function-wide
		// and stay as they are; the call itself is demoted after it
		// moves. Collected up front: demotion grows pred's instruction
		// list.
		var demote []*ir.Value
		entry := f.Entry()
		for _, v := range pred.Instrs {
			if v == call {
				continue
			}
			if v.Op == ir.OpAlloca && v.Block == entry {
				continue
			}
			if v.Escapes() {
				demote = append(demote, v)
			}
		}
		for _, v := range demote {
			ir.DemoteToStack(v)
		}

		// The call will be reached through the shared block, so it
		// executes at the head of its continuation instead of its
		// original position.
		call.MoveToFront(cont)
		if call.HasUses() {
			ir.DemoteToStack(call)
		}

		// Drop the jump the split left behind and route into the shared
		// block instead.
		pred.SetJump(shared)

		preds[i] = pred
		conts[i] = cont
	}

	// One argument PHI per formal parameter, one incoming pair per call
	// site, in call-site order. Zero-arity callees get a bare call.
	var args []*ir.Value
	for pi := range g.target.Params {
		phi := f.NewPhi(shared, ir.TypeInt)
		for i, call := range g.calls {
			phi.AddIncoming(call.Args[pi], preds[i])
		}
		args = append(args, phi)
	}
	merged := f.NewCall(shared, g.target, args...)

	for _, call := range g.calls {
		call.ReplaceAllUsesWith(merged)
		call.Erase()
	}

	// Discriminator PHI records which call site control arrived from;
	// the switch dispatches each tag to that site's continuation. Tags
	// follow first-seen call-site order, so dispatch layout is
	// reproducible across runs. The default edge repeats tag 0's target
	// and is never semantically reached.
	disc := f.NewPhi(shared, ir.TypeInt)
	sw := shared.SetSwitch(disc, conts[0])
	for i := range g.calls {
		tag := int64(i)
		disc.AddIncoming(f.ConstInt(tag), preds[i])
		sw.AddCase(tag, conts[i])
	}
}
