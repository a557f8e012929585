package ir

import "fmt"

// Extern is a host hook backing a declared function during evaluation.
type Extern func(args []int64) (int64, error)

// EvalOptions configures the reference evaluator.
type EvalOptions struct {
	// Externs supplies behavior for extern and intrinsic callees by name.
	Externs map[string]Extern
	// MaxSteps bounds executed instructions (default 1 << 20).
	MaxSteps int
	// MaxDepth bounds the call stack (default 128).
	MaxDepth int
}

// EvalFunc executes a function over int64 values and returns its result.
// It is a debugging and testing aid, not an optimized interpreter: it
// checks dynamically that every value read was defined on the executed
// path, so dominance violations surface as errors.
func EvalFunc(f *Func, args []int64, opts EvalOptions) (int64, error) {
	if opts.MaxSteps == 0 {
		opts.MaxSteps = 1 << 20
	}
	if opts.MaxDepth == 0 {
		opts.MaxDepth = 128
	}
	e := &evaluator{opts: opts, steps: opts.MaxSteps}
	return e.call(f, args, opts.MaxDepth)
}

type evaluator struct {
	opts  EvalOptions
	steps int
	mem   map[int64]int64
	addr  int64
}

func (e *evaluator) call(f *Func, args []int64, depth int) (int64, error) {
	if depth <= 0 {
		return 0, fmt.Errorf("eval: call stack exceeded in @%s", f.Name)
	}
	if f.Declared() {
		ext, ok := e.opts.Externs[f.Name]
		if !ok {
			return 0, fmt.Errorf("eval: no extern hook for @%s", f.Name)
		}
		return ext(args)
	}
	if len(args) != len(f.Params) {
		return 0, fmt.Errorf("eval: @%s called with %d args, declares %d", f.Name, len(args), len(f.Params))
	}
	if e.mem == nil {
		e.mem = make(map[int64]int64)
	}

	env := make(map[*Value]int64)
	read := func(v *Value) (int64, error) {
		switch v.Op {
		case OpConst:
			return v.AuxInt, nil
		case OpParam:
			return args[v.AuxInt], nil
		}
		n, ok := env[v]
		if !ok {
			return 0, fmt.Errorf("eval: @%s: %s read before definition", f.Name, v)
		}
		return n, nil
	}

	var from *Block
	b := f.Entry()
	for {
		// PHIs evaluate together against the incoming edge.
		phis := b.phis()
		if len(phis) > 0 {
			vals := make([]int64, len(phis))
			for i, phi := range phis {
				found := false
				for j, in := range phi.In {
					if in == from {
						n, err := read(phi.Args[j])
						if err != nil {
							return 0, err
						}
						vals[i] = n
						found = true
						break
					}
				}
				if !found {
					return 0, fmt.Errorf("eval: @%s: %s has no incoming from %s", f.Name, phi, from)
				}
			}
			for i, phi := range phis {
				env[phi] = vals[i]
			}
		}

		for _, v := range b.Instrs[len(phis):] {
			if e.steps--; e.steps < 0 {
				return 0, fmt.Errorf("eval: @%s: step limit exceeded", f.Name)
			}
			switch v.Op {
			case OpAlloca:
				e.addr++
				env[v] = e.addr
				e.mem[e.addr] = 0
			case OpLoad:
				p, err := read(v.Args[0])
				if err != nil {
					return 0, err
				}
				env[v] = e.mem[p]
			case OpStore:
				p, err := read(v.Args[0])
				if err != nil {
					return 0, err
				}
				n, err := read(v.Args[1])
				if err != nil {
					return 0, err
				}
				e.mem[p] = n
			case OpAdd, OpSub, OpMul, OpEq, OpLt:
				x, err := read(v.Args[0])
				if err != nil {
					return 0, err
				}
				y, err := read(v.Args[1])
				if err != nil {
					return 0, err
				}
				switch v.Op {
				case OpAdd:
					env[v] = x + y
				case OpSub:
					env[v] = x - y
				case OpMul:
					env[v] = x * y
				case OpEq:
					env[v] = boolToInt(x == y)
				case OpLt:
					env[v] = boolToInt(x < y)
				}
			case OpCall:
				callArgs := make([]int64, len(v.Args))
				for i, a := range v.Args {
					n, err := read(a)
					if err != nil {
						return 0, err
					}
					callArgs[i] = n
				}
				n, err := e.call(v.Callee, callArgs, depth-1)
				if err != nil {
					return 0, err
				}
				env[v] = n
			case OpCallIndirect, OpAsm:
				return 0, fmt.Errorf("eval: @%s: cannot evaluate %s", f.Name, v.Op)
			default:
				return 0, fmt.Errorf("eval: @%s: unexpected opcode %s", f.Name, v.Op)
			}
		}

		t := b.Term
		if t == nil {
			return 0, fmt.Errorf("eval: @%s: fell off unterminated %s", f.Name, b)
		}
		if e.steps--; e.steps < 0 {
			return 0, fmt.Errorf("eval: @%s: step limit exceeded", f.Name)
		}
		switch t.Op {
		case OpJump:
			from, b = b, b.Succs[0]
		case OpBranch:
			c, err := read(t.Args[0])
			if err != nil {
				return 0, err
			}
			if c != 0 {
				from, b = b, b.Succs[0]
			} else {
				from, b = b, b.Succs[1]
			}
		case OpSwitch:
			n, err := read(t.Args[0])
			if err != nil {
				return 0, err
			}
			next := b.Succs[0]
			for i, tag := range t.Tags {
				if tag == n {
					next = b.Succs[1+i]
					break
				}
			}
			from, b = b, next
		case OpRet:
			if len(t.Args) > 0 {
				return read(t.Args[0])
			}
			return 0, nil
		default:
			return 0, fmt.Errorf("eval: @%s: bad terminator %s", f.Name, t.Op)
		}
	}
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
