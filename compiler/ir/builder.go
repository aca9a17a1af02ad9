package ir

import (
	"fmt"

	"tlog.app/go/errors"
)

type (
	// Builder constructs modules append-only. All naming counters live
	// here or on the function under construction, never in globals.
	Builder struct {
		m *Module
		f *Func

		cur int // current block index, -1 when no block is open
	}

	// StructuralError reports a malformed function: a terminator that is
	// not the last instruction of its block, a block with no terminator,
	// emission outside an open block, or a duplicate ssa name.
	StructuralError struct {
		Func  string
		Block string
		Msg   string
	}

	SwitchCase struct {
		Value Value
		Block int
	}
)

func (e StructuralError) Error() string {
	if e.Block == "" {
		return fmt.Sprintf("func %v: %v", e.Func, e.Msg)
	}

	return fmt.Sprintf("func %v: block %v: %v", e.Func, e.Block, e.Msg)
}

func NewBuilder(m *Module) *Builder {
	return &Builder{m: m, cur: -1}
}

func (b *Builder) Module() *Module { return b.m }

// Type interns a type by name.
func (b *Builder) Type(kind TypeKind, name string, size int) Type {
	if tp, ok := b.m.typeLUT[name]; ok {
		return tp
	}

	tp := Type(len(b.m.Types))

	b.m.Types = append(b.m.Types, TypeInfo{Kind: kind, Name: name, Size: size, Align: size})
	b.m.typeLUT[name] = tp

	return tp
}

// Func starts a new function. Parameters are bound into the arena and
// the symbol table so they can be used as operands.
func (b *Builder) Func(name string, ret Type, in ...Param) *Func {
	f := &Func{
		Name:   name,
		Ret:    ret,
		In:     in,
		names:  map[string]Value{},
		consts: map[Const]Value{},
	}

	for _, p := range in {
		v := Value(len(f.Exprs))
		f.Exprs = append(f.Exprs, Arg{Name: p.Name, Type: p.Type})
		f.names[p.Name] = v
	}

	b.m.Funcs = append(b.m.Funcs, f)
	b.m.funcLUT[name] = f

	b.f = f
	b.cur = -1

	return f
}

// Block creates a basic block and makes it current.
func (b *Builder) Block(name string) int {
	if name == "" {
		name = fmt.Sprintf("bb%d", b.f.blocks)
	}

	b.f.blocks++

	i := len(b.f.Blocks)
	b.f.Blocks = append(b.f.Blocks, Block{Name: name})
	b.cur = i

	return i
}

func (b *Builder) SetBlock(i int) {
	b.cur = i
}

// Const interns a constant in the function arena.
func (b *Builder) Const(tp Type, imm int64) Value {
	c := Const{Type: tp, Imm: imm}

	if v, ok := b.f.consts[c]; ok {
		return v
	}

	v := Value(len(b.f.Exprs))
	b.f.Exprs = append(b.f.Exprs, c)
	b.f.consts[c] = v

	return v
}

// Emit appends an instruction to the current block. Emitting a
// terminator closes the block; emitting with no open block or re-binding
// an ssa name fails with StructuralError.
func (b *Builder) Emit(op Op, tp Type, name string, args ...Value) (Value, error) {
	return b.emit(Instr{Op: op, Args: args, Type: tp, Name: name})
}

func (b *Builder) Branch(to int) (Value, error) {
	return b.emit(Instr{Op: Br, Blocks: []int{to}})
}

func (b *Builder) BranchIf(cond Value, then, els int) (Value, error) {
	return b.emit(Instr{Op: BrCond, Args: []Value{cond}, Blocks: []int{then, els}})
}

func (b *Builder) Switch(x Value, def int, cases ...SwitchCase) (Value, error) {
	in := Instr{Op: Switch, Args: []Value{x}, Blocks: []int{def}}

	for _, c := range cases {
		in.Args = append(in.Args, c.Value)
		in.Blocks = append(in.Blocks, c.Block)
	}

	return b.emit(in)
}

func (b *Builder) Ret(vals ...Value) (Value, error) {
	return b.emit(Instr{Op: Ret, Args: vals})
}

func (b *Builder) Unreachable() (Value, error) {
	return b.emit(Instr{Op: Unreachable})
}

// CallFunc emits a call to a function by name.
func (b *Builder) CallFunc(callee string, tp Type, name string, args ...Value) (Value, error) {
	return b.emit(Instr{Op: Call, Args: args, Type: tp, Name: name, Sym: callee})
}

// PhiOf emits a phi with incoming value/block pairs.
func (b *Builder) PhiOf(tp Type, name string, vals []Value, blocks []int) (Value, error) {
	if len(vals) != len(blocks) {
		return Nil, errors.New("phi: %d values for %d blocks", len(vals), len(blocks))
	}

	return b.emit(Instr{Op: Phi, Args: vals, Type: tp, Name: name, Blocks: blocks})
}

func (b *Builder) emit(x Instr) (Value, error) {
	f := b.f

	if f == nil {
		return Nil, StructuralError{Msg: "emit with no function"}
	}
	if b.cur < 0 {
		return Nil, StructuralError{Func: f.Name, Msg: "emit with no open block"}
	}

	blk := &f.Blocks[b.cur]

	if x.Name != "" {
		if _, ok := f.names[x.Name]; ok {
			return Nil, StructuralError{Func: f.Name, Block: blk.Name, Msg: fmt.Sprintf("duplicate ssa name %v", x.Name)}
		}
	}

	x.ID = f.id
	f.id++

	v := Value(len(f.Exprs))
	f.Exprs = append(f.Exprs, x)
	blk.Code = append(blk.Code, v)

	if x.Name != "" {
		f.names[x.Name] = v
	}

	if x.Op.IsTerminator() {
		for _, to := range x.Blocks {
			b.link(b.cur, to)
		}

		b.cur = -1
	}

	return v, nil
}

func (b *Builder) link(from, to int) {
	f := b.f

	for _, s := range f.Blocks[from].Succs {
		if s == to {
			return
		}
	}

	f.Blocks[from].Succs = append(f.Blocks[from].Succs, to)
	f.Blocks[to].Preds = append(f.Blocks[to].Preds, from)
}

// Validate checks the block structure of a finished function: every
// block ends with exactly one terminator and terminators appear nowhere
// else.
func Validate(f *Func) error {
	if len(f.Blocks) == 0 {
		return StructuralError{Func: f.Name, Msg: "no basic blocks"}
	}

	for _, blk := range f.Blocks {
		if len(blk.Code) == 0 {
			return StructuralError{Func: f.Name, Block: blk.Name, Msg: "empty block"}
		}

		for i, v := range blk.Code {
			x, ok := f.At(v).(Instr)
			if !ok {
				return StructuralError{Func: f.Name, Block: blk.Name, Msg: fmt.Sprintf("handle %d is not an instruction", v)}
			}

			last := i == len(blk.Code)-1

			if x.Op.IsTerminator() && !last {
				return StructuralError{Func: f.Name, Block: blk.Name, Msg: fmt.Sprintf("terminator %v is not the last instruction", x.Op)}
			}
			if last && !x.Op.IsTerminator() {
				return StructuralError{Func: f.Name, Block: blk.Name, Msg: "block has no terminator"}
			}
		}
	}

	return nil
}
