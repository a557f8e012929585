package mergecalls

import "callfuse/internal/ir"

// callGroup is the transient grouping of eligible call sites sharing one
// direct callee. Built fresh per Run invocation and discarded after use.
type callGroup struct {
	target *ir.Func
	calls  []*ir.Value
}

// collect scans the function in layout order, block by block and top to
// bottom, and groups eligible calls by callee in first-seen order. The
// eligibility filter rejects, in order: inline-assembly operations (no
// callee to key on), indirect calls (callee not statically known),
// intrinsic callees (fixed semantics, unsafe to route through a shared
// site), and calls whose argument count differs from the callee's
// declared parameter count. Groups of size 1 are retained but never
// merged.
func collect(f *ir.Func) []callGroup {
	var groups []callGroup
	index := make(map[*ir.Func]int)

	for _, b := range f.Blocks {
		for _, v := range b.Instrs {
			switch v.Op {
			case ir.OpAsm, ir.OpCallIndirect:
				continue
			case ir.OpCall:
			default:
				continue
			}
			target := v.Callee
			if target.Intrinsic {
				continue
			}
			if len(v.Args) != len(target.Params) {
				continue
			}
			gi, ok := index[target]
			if !ok {
				gi = len(groups)
				index[target] = gi
				groups = append(groups, callGroup{target: target})
			}
			groups[gi].calls = append(groups[gi].calls, v)
		}
	}
	return groups
}
