package ir

import (
	"fmt"
	"slices"
)

// Value is a single SSA value: a function parameter, a constant, an
// instruction, or a terminator. Instructions and terminators belong to a
// Block; parameters and constants have a nil Block and are owned by the
// Func. Args are the operands; the use list tracks every Value that reads
// this one, with one entry per operand occurrence.
type Value struct {
	ID   int
	Op   Op
	Type Type
	Name string // register name for printing; asm text for OpAsm

	Args []*Value

	// Block is the containing block, or nil for OpParam/OpConst.
	Block *Block

	// AuxInt holds the literal for OpConst and the parameter index for
	// OpParam.
	AuxInt int64

	// Callee is the direct call target for OpCall.
	Callee *Func

	// In lists the incoming predecessor for each Args entry of an OpPhi,
	// parallel to Args.
	In []*Block

	// Tags lists the case tags of an OpSwitch, parallel to Succs[1:] of
	// the containing block.
	Tags []int64

	uses []*Value
}

func (v *Value) String() string {
	if v == nil {
		return "<nil>"
	}
	if v.Name != "" && v.Op != OpAsm {
		return "%" + v.Name
	}
	return fmt.Sprintf("%%v%d", v.ID)
}

// HasUses reports whether any value reads v.
func (v *Value) HasUses() bool { return len(v.uses) > 0 }

// NumUses returns the number of operand occurrences reading v.
func (v *Value) NumUses() int { return len(v.uses) }

// Users returns a snapshot of the values reading v. A value that reads v
// through several operands appears once per occurrence.
func (v *Value) Users() []*Value {
	return slices.Clone(v.uses)
}

func (v *Value) addUse(user *Value) {
	v.uses = append(v.uses, user)
}

// removeUse drops one occurrence of user from the use list.
func (v *Value) removeUse(user *Value) {
	for i, u := range v.uses {
		if u == user {
			v.uses = append(v.uses[:i], v.uses[i+1:]...)
			return
		}
	}
	panic(fmt.Sprintf("ir: %s is not a user of %s", user, v))
}

// AddArg appends an operand and records the use.
func (v *Value) AddArg(a *Value) {
	v.Args = append(v.Args, a)
	a.addUse(v)
}

// SetArg replaces operand i and keeps use lists consistent.
func (v *Value) SetArg(i int, a *Value) {
	v.Args[i].removeUse(v)
	v.Args[i] = a
	a.addUse(v)
}

// clearArgs drops all operands and their use entries.
func (v *Value) clearArgs() {
	for _, a := range v.Args {
		a.removeUse(v)
	}
	v.Args = v.Args[:0]
}

// ReplaceAllUsesWith rewrites every operand occurrence of v to read w
// instead. v keeps its own operands; only its readers change.
func (v *Value) ReplaceAllUsesWith(w *Value) {
	if v == w {
		return
	}
	for _, user := range v.Users() {
		for i, a := range user.Args {
			if a == v {
				user.SetArg(i, w)
			}
		}
	}
}

// Escapes reports whether v is consumed outside its defining block, or by
// a PHI. PHI consumers read across a control-flow edge, so they count as
// escaping even when the PHI lives in the same block.
func (v *Value) Escapes() bool {
	if v.Block == nil {
		return false
	}
	for _, u := range v.uses {
		if u.Block != v.Block || u.Op == OpPhi {
			return true
		}
	}
	return false
}

// AddIncoming appends one (value, predecessor) pair to an OpPhi. Pairs
// must be added in the predecessor order of the containing block.
func (v *Value) AddIncoming(val *Value, pred *Block) {
	if v.Op != OpPhi {
		panic("ir: AddIncoming on non-phi " + v.String())
	}
	v.AddArg(val)
	v.In = append(v.In, pred)
}

// AddCase appends one (tag, target) case to an OpSwitch terminator.
func (v *Value) AddCase(tag int64, target *Block) {
	if v.Op != OpSwitch {
		panic("ir: AddCase on non-switch " + v.String())
	}
	v.Tags = append(v.Tags, tag)
	addEdge(v.Block, target)
}

// Erase removes v from its block and releases its operands. v must have
// no remaining uses.
func (v *Value) Erase() {
	if len(v.uses) > 0 {
		panic(fmt.Sprintf("ir: erasing %s with %d uses", v, len(v.uses)))
	}
	b := v.Block
	if b == nil {
		panic("ir: erasing block-less value " + v.String())
	}
	if b.Term == v {
		v.clearArgs()
		b.Term = nil
		v.Block = nil
		return
	}
	i := b.indexOf(v)
	b.Instrs = append(b.Instrs[:i], b.Instrs[i+1:]...)
	v.clearArgs()
	v.In = nil
	v.Block = nil
}

// MoveToFront relocates v to the start of block b, after any leading
// PHIs.
func (v *Value) MoveToFront(b *Block) {
	old := v.Block
	i := old.indexOf(v)
	old.Instrs = append(old.Instrs[:i], old.Instrs[i+1:]...)
	at := len(b.phis())
	b.Instrs = slices.Insert(b.Instrs, at, v)
	v.Block = b
}
