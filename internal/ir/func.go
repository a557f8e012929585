package ir

import "fmt"

// Func owns its blocks, parameters and constants. Declared functions
// (extern or intrinsic) have no blocks.
type Func struct {
	Name      string
	Params    []*Value
	Blocks    []*Block
	Intrinsic bool

	consts  map[int64]*Value
	valueID int
	blockID int
}

// NewFunc creates an empty function with nparams parameters.
func NewFunc(name string, nparams int) *Func {
	f := &Func{Name: name}
	for i := 0; i < nparams; i++ {
		p := f.newValue(OpParam, TypeInt)
		p.AuxInt = int64(i)
		f.Params = append(f.Params, p)
	}
	return f
}

func (f *Func) String() string { return "@" + f.Name }

// Declared reports whether the function has no body.
func (f *Func) Declared() bool { return len(f.Blocks) == 0 }

// Entry returns the entry block.
func (f *Func) Entry() *Block {
	if len(f.Blocks) == 0 {
		panic("ir: entry of declared function " + f.String())
	}
	return f.Blocks[0]
}

// NewBlock appends a fresh empty block to the function layout.
func (f *Func) NewBlock() *Block {
	b := &Block{ID: f.blockID, Func: f}
	f.blockID++
	f.Blocks = append(f.Blocks, b)
	return b
}

func (f *Func) newValue(op Op, t Type) *Value {
	v := &Value{ID: f.valueID, Op: op, Type: t}
	f.valueID++
	return v
}

// ConstInt returns the function-level constant value n. Constants are
// interned per function and belong to no block.
func (f *Func) ConstInt(n int64) *Value {
	if f.consts == nil {
		f.consts = make(map[int64]*Value)
	}
	if c, ok := f.consts[n]; ok {
		return c
	}
	c := f.newValue(OpConst, TypeInt)
	c.AuxInt = n
	f.consts[n] = c
	return c
}

// append adds an instruction value of op to the end of b and returns it.
func (f *Func) append(b *Block, op Op, t Type, args ...*Value) *Value {
	v := f.newValue(op, t)
	v.Block = b
	for _, a := range args {
		v.AddArg(a)
	}
	b.Instrs = append(b.Instrs, v)
	return v
}

// NewAlloca appends a stack slot declaration to b.
func (f *Func) NewAlloca(b *Block) *Value {
	return f.append(b, OpAlloca, TypePtr)
}

// NewLoad appends a load of slot to b.
func (f *Func) NewLoad(b *Block, slot *Value) *Value {
	return f.append(b, OpLoad, TypeInt, slot)
}

// NewStore appends a store of val to slot to b.
func (f *Func) NewStore(b *Block, slot, val *Value) *Value {
	return f.append(b, OpStore, TypeVoid, slot, val)
}

// NewBin appends a binary arithmetic or comparison instruction to b.
func (f *Func) NewBin(b *Block, op Op, x, y *Value) *Value {
	switch op {
	case OpAdd, OpSub, OpMul, OpEq, OpLt:
	default:
		panic(fmt.Sprintf("ir: NewBin with %s", op))
	}
	return f.append(b, op, TypeInt, x, y)
}

// NewCall appends a direct call to b. The result type is TypeInt; a
// caller that ignores the result simply leaves it unused.
func (f *Func) NewCall(b *Block, callee *Func, args ...*Value) *Value {
	v := f.append(b, OpCall, TypeInt, args...)
	v.Callee = callee
	return v
}

// NewCallIndirect appends an indirect call through target to b.
func (f *Func) NewCallIndirect(b *Block, target *Value, args ...*Value) *Value {
	args = append([]*Value{target}, args...)
	return f.append(b, OpCallIndirect, TypeInt, args...)
}

// NewAsm appends an opaque inline-assembly-like instruction to b.
func (f *Func) NewAsm(b *Block, text string, args ...*Value) *Value {
	v := f.append(b, OpAsm, TypeInt, args...)
	v.Name = text
	return v
}

// NewPhi creates a PHI at the end of the leading PHI run of b. Incoming
// pairs are attached with AddIncoming in predecessor order.
func (f *Func) NewPhi(b *Block, t Type) *Value {
	v := f.newValue(OpPhi, t)
	v.Block = b
	at := len(b.phis())
	b.Instrs = append(b.Instrs[:at], append([]*Value{v}, b.Instrs[at:]...)...)
	return v
}

// Module is an ordered collection of functions.
type Module struct {
	Funcs []*Func
}

// FuncByName returns the named function, or nil.
func (m *Module) FuncByName(name string) *Func {
	for _, f := range m.Funcs {
		if f.Name == name {
			return f
		}
	}
	return nil
}
