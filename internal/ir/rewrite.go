package ir

import "slices"

// insertAt places a fresh instruction value at index at of b.
func (f *Func) insertAt(b *Block, at int, op Op, t Type, args ...*Value) *Value {
	v := f.newValue(op, t)
	v.Block = b
	for _, a := range args {
		v.AddArg(a)
	}
	b.Instrs = slices.Insert(b.Instrs, at, v)
	return v
}

// allocaInsertIdx returns the index just past the leading stack-slot run
// of the entry block. New slots inserted there stay contiguous with the
// function's pre-existing declarations, so every later use is reachable.
func allocaInsertIdx(entry *Block) int {
	for i, v := range entry.Instrs {
		if v.Op != OpAlloca {
			return i
		}
	}
	return len(entry.Instrs)
}

// DemoteToStack converts the register-resident value v into a store/load
// pair through a dedicated stack slot: a slot is declared in the entry
// block, v is stored into it immediately after its definition, and every
// use is rewritten to a fresh load at the use site. Loads feeding a PHI
// are placed at the end of the matching incoming block. Returns the slot.
func DemoteToStack(v *Value) *Value {
	b := v.Block
	f := b.Func
	entry := f.Entry()

	slot := f.insertAt(entry, allocaInsertIdx(entry), OpAlloca, TypePtr)

	users := v.Users()

	// Store after the definition; for a PHI that is after the whole
	// leading PHI run, since PHIs evaluate together on block entry.
	at := b.indexOf(v) + 1
	if v.Op == OpPhi {
		at = len(b.phis())
	}
	f.insertAt(b, at, OpStore, TypeVoid, slot, v)

	for _, user := range users {
		switch {
		case user.Op == OpPhi:
			// One reload per incoming occurrence, at the bottom of the
			// edge's source block.
			for j, a := range user.Args {
				if a == v {
					pred := user.In[j]
					ld := f.append(pred, OpLoad, v.Type, slot)
					user.SetArg(j, ld)
					break
				}
			}
		case user == user.Block.Term:
			if replaceUsesIn(user, v) == 0 {
				continue // duplicate snapshot entry, already rewritten
			}
			ld := f.insertAt(user.Block, len(user.Block.Instrs), OpLoad, v.Type, slot)
			swapPlaceholder(user, ld)
		default:
			if replaceUsesIn(user, v) == 0 {
				continue
			}
			ld := f.insertAt(user.Block, user.Block.indexOf(user), OpLoad, v.Type, slot)
			swapPlaceholder(user, ld)
		}
	}
	return slot
}

// replaceUsesIn marks every occurrence of v among user's operands with a
// nil placeholder and returns the count. The placeholder is resolved by
// swapPlaceholder once the reload exists.
func replaceUsesIn(user, v *Value) int {
	n := 0
	for i, a := range user.Args {
		if a == v {
			v.removeUse(user)
			user.Args[i] = nil
			n++
		}
	}
	return n
}

func swapPlaceholder(user, ld *Value) {
	for i, a := range user.Args {
		if a == nil {
			user.Args[i] = ld
			ld.addUse(user)
		}
	}
}
