package ir

import "fmt"

// Block is a basic block: an ordered run of instructions closed by
// exactly one terminator. Preds and Succs are kept eagerly consistent
// with the terminators that produce them.
type Block struct {
	ID     int
	Func   *Func
	Instrs []*Value
	Term   *Value
	Preds  []*Block
	Succs  []*Block
}

func (b *Block) String() string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("bb%d", b.ID)
}

// Terminated reports whether the block has a terminator.
func (b *Block) Terminated() bool {
	return b != nil && b.Term != nil
}

func (b *Block) indexOf(v *Value) int {
	for i, w := range b.Instrs {
		if w == v {
			return i
		}
	}
	panic(fmt.Sprintf("ir: %s not in %s", v, b))
}

// phis returns the leading PHI run of the block.
func (b *Block) phis() []*Value {
	for i, v := range b.Instrs {
		if v.Op != OpPhi {
			return b.Instrs[:i]
		}
	}
	return b.Instrs
}

// addEdge records a control-flow edge from -> to.
func addEdge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// removePred drops one occurrence of p from b's predecessor list and
// strikes the matching incoming pair from every PHI.
func (b *Block) removePred(p *Block) {
	for i, pred := range b.Preds {
		if pred != p {
			continue
		}
		b.Preds = append(b.Preds[:i], b.Preds[i+1:]...)
		for _, phi := range b.phis() {
			for j, in := range phi.In {
				if in == p {
					phi.Args[j].removeUse(phi)
					phi.Args = append(phi.Args[:j], phi.Args[j+1:]...)
					phi.In = append(phi.In[:j], phi.In[j+1:]...)
					break
				}
			}
		}
		return
	}
	panic(fmt.Sprintf("ir: no edge %s -> %s", p, b))
}

// replacePred rewrites one occurrence of p in b's predecessor list (and
// in PHI incoming pairs) to q.
func (b *Block) replacePred(p, q *Block) {
	for i, pred := range b.Preds {
		if pred == p {
			b.Preds[i] = q
			for _, phi := range b.phis() {
				for j, in := range phi.In {
					if in == p {
						phi.In[j] = q
						break
					}
				}
			}
			return
		}
	}
	panic(fmt.Sprintf("ir: no edge %s -> %s", p, b))
}

// dropTerm erases the current terminator together with the edges it
// created. PHIs in former successors lose the corresponding incoming
// pairs.
func (b *Block) dropTerm() {
	if b.Term == nil {
		return
	}
	for _, s := range b.Succs {
		s.removePred(b)
	}
	b.Succs = nil
	b.Term.Erase()
}

// SetJump replaces the block terminator with an unconditional branch to
// target.
func (b *Block) SetJump(target *Block) *Value {
	b.dropTerm()
	t := b.Func.newValue(OpJump, TypeVoid)
	t.Block = b
	b.Term = t
	addEdge(b, target)
	return t
}

// SetBranch replaces the block terminator with a conditional branch.
func (b *Block) SetBranch(cond *Value, then, els *Block) *Value {
	b.dropTerm()
	t := b.Func.newValue(OpBranch, TypeVoid)
	t.Block = b
	t.AddArg(cond)
	b.Term = t
	addEdge(b, then)
	addEdge(b, els)
	return t
}

// SetSwitch replaces the block terminator with a multi-way branch on
// index. Cases are attached afterwards with AddCase; def is the default
// target.
func (b *Block) SetSwitch(index *Value, def *Block) *Value {
	b.dropTerm()
	t := b.Func.newValue(OpSwitch, TypeVoid)
	t.Block = b
	t.AddArg(index)
	b.Term = t
	addEdge(b, def)
	return t
}

// SetRet replaces the block terminator with a return. result may be nil.
func (b *Block) SetRet(result *Value) *Value {
	b.dropTerm()
	t := b.Func.newValue(OpRet, TypeVoid)
	t.Block = b
	if result != nil {
		t.AddArg(result)
	}
	b.Term = t
	return t
}

// SplitAfter splits the block immediately after v. Everything following v
// moves to a new continuation block appended to the function, together
// with the terminator and its outgoing edges; PHIs in former successors
// are repointed at the continuation. The original block is closed with an
// unconditional branch to the continuation, which is returned.
func (b *Block) SplitAfter(v *Value) *Block {
	i := b.indexOf(v)
	cont := b.Func.NewBlock()

	cont.Instrs = append(cont.Instrs, b.Instrs[i+1:]...)
	for _, w := range cont.Instrs {
		w.Block = cont
	}
	b.Instrs = b.Instrs[:i+1]

	cont.Term = b.Term
	if cont.Term != nil {
		cont.Term.Block = cont
	}
	b.Term = nil
	cont.Succs = b.Succs
	b.Succs = nil
	for _, s := range cont.Succs {
		s.replacePred(b, cont)
	}

	b.SetJump(cont)
	return cont
}
