package ir

import (
	"errors"
	"fmt"
)

// Validate checks module invariants. Returns a joined error listing every
// violation found.
func Validate(m *Module) error {
	if m == nil {
		return nil
	}
	var errs []error
	for _, f := range m.Funcs {
		if err := ValidateFunc(f); err != nil {
			errs = append(errs, fmt.Errorf("function @%s: %w", f.Name, err))
		}
	}
	return errors.Join(errs...)
}

// ValidateFunc checks structural invariants of a single function:
// terminated blocks, edge symmetry, PHI shape, use-list symmetry, and
// in-block definition order.
func ValidateFunc(f *Func) error {
	if f == nil || f.Declared() {
		return nil
	}
	var errs []error

	for _, b := range f.Blocks {
		if err := validateBlock(f, b); err != nil {
			errs = append(errs, err)
		}
	}
	if err := validateEdges(f); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func validateBlock(f *Func, b *Block) error {
	var errs []error
	if b.Func != f {
		errs = append(errs, fmt.Errorf("%s: wrong owner", b))
	}
	if !b.Terminated() {
		errs = append(errs, fmt.Errorf("%s: unterminated block", b))
	} else {
		if !b.Term.Op.IsTerminator() {
			errs = append(errs, fmt.Errorf("%s: terminator has opcode %s", b, b.Term.Op))
		}
		if b.Term.Block != b {
			errs = append(errs, fmt.Errorf("%s: terminator owned by %s", b, b.Term.Block))
		}
	}

	inPhiRun := true
	for i, v := range b.Instrs {
		if v.Block != b {
			errs = append(errs, fmt.Errorf("%s: instr %d owned by %s", b, i, v.Block))
		}
		if v.Op.IsTerminator() {
			errs = append(errs, fmt.Errorf("%s: terminator %s in instruction list", b, v.Op))
		}
		if v.Op == OpPhi {
			if !inPhiRun {
				errs = append(errs, fmt.Errorf("%s: %s after non-phi instruction", b, v))
			}
			errs = append(errs, validatePhi(b, v)...)
		} else {
			inPhiRun = false
		}
		errs = append(errs, validateOperands(b, i, v)...)
	}
	if b.Term != nil {
		errs = append(errs, validateOperands(b, len(b.Instrs), b.Term)...)
		if b.Term.Op == OpSwitch {
			seen := make(map[int64]bool)
			for _, tag := range b.Term.Tags {
				if seen[tag] {
					errs = append(errs, fmt.Errorf("%s: duplicate switch tag %d", b, tag))
				}
				seen[tag] = true
			}
		}
	}
	return errors.Join(errs...)
}

func validatePhi(b *Block, phi *Value) []error {
	var errs []error
	if len(phi.Args) != len(phi.In) {
		errs = append(errs, fmt.Errorf("%s: %s has %d values for %d incoming blocks",
			b, phi, len(phi.Args), len(phi.In)))
		return errs
	}
	if len(phi.In) != len(b.Preds) {
		errs = append(errs, fmt.Errorf("%s: %s has %d incoming pairs for %d predecessors",
			b, phi, len(phi.In), len(b.Preds)))
		return errs
	}
	// Incoming blocks must cover the predecessors, one pair per edge.
	remaining := make(map[*Block]int, len(b.Preds))
	for _, p := range b.Preds {
		remaining[p]++
	}
	for _, in := range phi.In {
		if remaining[in] == 0 {
			errs = append(errs, fmt.Errorf("%s: %s has incoming from non-predecessor %s", b, phi, in))
			continue
		}
		remaining[in]--
	}
	return errs
}

func validateOperands(b *Block, idx int, v *Value) []error {
	var errs []error
	for _, a := range v.Args {
		if a == nil {
			errs = append(errs, fmt.Errorf("%s: %s has nil operand", b, v))
			continue
		}
		if countUses(a, v) < 1 {
			errs = append(errs, fmt.Errorf("%s: %s missing from use list of %s", b, v, a))
		}
		// In-block definition order; cross-block dominance is left to the
		// evaluator and the host pipeline.
		if v.Op != OpPhi && a.Block == b {
			if ai := instrIndex(b, a); ai < 0 || ai >= idx {
				errs = append(errs, fmt.Errorf("%s: %s used by %s before its definition", b, a, v))
			}
		}
	}
	for _, a := range v.Args {
		if a != nil && countArgs(v, a) != countUses(a, v) {
			errs = append(errs, fmt.Errorf("%s: use list of %s out of sync with %s", b, a, v))
		}
	}
	return errs
}

func instrIndex(b *Block, v *Value) int {
	for i, w := range b.Instrs {
		if w == v {
			return i
		}
	}
	return -1
}

func countUses(v, user *Value) int {
	n := 0
	for _, u := range v.uses {
		if u == user {
			n++
		}
	}
	return n
}

func countArgs(user, v *Value) int {
	n := 0
	for _, a := range user.Args {
		if a == v {
			n++
		}
	}
	return n
}

func validateEdges(f *Func) error {
	var errs []error
	index := make(map[*Block]bool, len(f.Blocks))
	for _, b := range f.Blocks {
		index[b] = true
	}
	for _, b := range f.Blocks {
		want := 0
		if b.Term != nil {
			switch b.Term.Op {
			case OpJump:
				want = 1
			case OpBranch:
				want = 2
			case OpSwitch:
				want = 1 + len(b.Term.Tags)
			}
		}
		if len(b.Succs) != want {
			errs = append(errs, fmt.Errorf("%s: %d successors, terminator implies %d", b, len(b.Succs), want))
		}
		for _, s := range b.Succs {
			if !index[s] {
				errs = append(errs, fmt.Errorf("%s: successor %s not in function", b, s))
			}
			if countBlocks(s.Preds, b) != countBlocks(b.Succs, s) {
				errs = append(errs, fmt.Errorf("edge %s -> %s: pred/succ lists disagree", b, s))
			}
		}
		for _, p := range b.Preds {
			if !index[p] {
				errs = append(errs, fmt.Errorf("%s: predecessor %s not in function", b, p))
			}
			if countBlocks(p.Succs, b) == 0 {
				errs = append(errs, fmt.Errorf("%s: predecessor %s has no matching successor", b, p))
			}
		}
	}
	return errors.Join(errs...)
}

func countBlocks(bs []*Block, b *Block) int {
	n := 0
	for _, x := range bs {
		if x == b {
			n++
		}
	}
	return n
}
