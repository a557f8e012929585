package ir

// Type classifies the value an instruction produces.
type Type uint8

const (
	// TypeVoid marks instructions that produce no value (stores, terminators,
	// calls whose result is discarded by construction).
	TypeVoid Type = iota
	// TypeInt is the 64-bit integer type. All data values are TypeInt.
	TypeInt
	// TypePtr is the address of a stack slot.
	TypePtr
)

func (t Type) String() string {
	switch t {
	case TypeVoid:
		return "void"
	case TypeInt:
		return "int"
	case TypePtr:
		return "ptr"
	}
	return "invalid"
}

// Op enumerates instruction and terminator opcodes.
type Op uint8

const (
	OpInvalid Op = iota

	// Block-less values. Their Block field is nil and they are never
	// listed in Block.Instrs.
	OpParam
	OpConst

	// Instructions.
	OpAlloca // stack slot declaration
	OpLoad   // Args[0]=slot
	OpStore  // Args[0]=slot, Args[1]=value
	OpAdd
	OpSub
	OpMul
	OpEq
	OpLt
	OpCall         // Callee set, Args are actual arguments
	OpCallIndirect // Args[0]=target value, Args[1:]=actual arguments
	OpAsm          // opaque inline-assembly-like operation, Name holds the text
	OpPhi          // Args parallel to In

	// Terminators.
	OpJump   // Succs[0]=target
	OpBranch // Args[0]=cond, Succs[0]=then, Succs[1]=else
	OpSwitch // Args[0]=index, Succs[0]=default, Succs[1+i]=case i, Tags[i]=tag i
	OpRet    // Args[0]=result (optional)
)

var opNames = [...]string{
	OpInvalid:      "invalid",
	OpParam:        "param",
	OpConst:        "const",
	OpAlloca:       "alloca",
	OpLoad:         "load",
	OpStore:        "store",
	OpAdd:          "add",
	OpSub:          "sub",
	OpMul:          "mul",
	OpEq:           "eq",
	OpLt:           "lt",
	OpCall:         "call",
	OpCallIndirect: "calli",
	OpAsm:          "asm",
	OpPhi:          "phi",
	OpJump:         "br",
	OpBranch:       "br",
	OpSwitch:       "switch",
	OpRet:          "ret",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return "invalid"
}

// IsTerminator reports whether op may only appear as a block terminator.
func (op Op) IsTerminator() bool {
	switch op {
	case OpJump, OpBranch, OpSwitch, OpRet:
		return true
	}
	return false
}
