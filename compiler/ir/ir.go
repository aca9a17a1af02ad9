// Package ir defines the intermediate representation the rest of the
// pipeline operates on: typed values held in a per-function arena and
// addressed by stable integer handles, grouped into basic blocks.
package ir

import "fmt"

type (
	// Value is a handle into a function's expression arena.
	Value int

	// Type is a handle into the module type table.
	Type int

	Op int

	TypeKind int

	TypeInfo struct {
		Kind  TypeKind
		Name  string
		Size  int
		Align int
	}

	Const struct {
		Type Type
		Imm  int64
	}

	// Arg is a function parameter bound into the entry environment.
	Arg struct {
		Name string
		Type Type
	}

	Instr struct {
		Op   Op
		Args []Value
		Type Type
		Name string // ssa name, unique per function; empty for unnamed results
		ID   int

		// Blocks holds branch targets for terminators
		// and incoming block indices for phi.
		Blocks []int

		// Sym is the callee name for call.
		Sym string
	}

	Param struct {
		Name string
		Type Type
	}

	Block struct {
		Name string
		Code []Value

		Preds []int
		Succs []int
	}

	Func struct {
		Name string
		Ret  Type
		In   []Param

		Blocks []Block

		// Exprs is the arena. Entries are Const, Arg or Instr.
		Exprs []any

		names  map[string]Value
		consts map[Const]Value
		id     int
		blocks int
	}

	Module struct {
		Name string

		Types []TypeInfo
		Funcs []*Func

		typeLUT map[string]Type
		funcLUT map[string]*Func
	}
)

const Nil Value = -1

const (
	// arithmetic
	Add Op = iota
	Sub
	Mul
	Div
	Mod
	Neg

	// comparison
	CmpEQ
	CmpNE
	CmpLT
	CmpLE
	CmpGT
	CmpGE

	// logical
	And
	Or
	Xor
	Shl
	Shr
	Not

	// memory
	Load
	Store
	Alloca

	// control flow
	Br
	BrCond
	Switch
	Phi
	Call
	Ret
	Unreachable

	// conversion
	Trunc
	Zext
	Sext

	Nop

	opMax
)

const (
	TypeVoid TypeKind = iota
	TypeInt
	TypeFloat
	TypePtr
	TypeArray
	TypeStruct
	TypeFunc
)

var opNames = [...]string{
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod", Neg: "neg",
	CmpEQ: "cmp.eq", CmpNE: "cmp.ne", CmpLT: "cmp.lt", CmpLE: "cmp.le", CmpGT: "cmp.gt", CmpGE: "cmp.ge",
	And: "and", Or: "or", Xor: "xor", Shl: "shl", Shr: "shr", Not: "not",
	Load: "load", Store: "store", Alloca: "alloca",
	Br: "br", BrCond: "br.cond", Switch: "switch", Phi: "phi", Call: "call", Ret: "ret", Unreachable: "unreachable",
	Trunc: "trunc", Zext: "zext", Sext: "sext",
	Nop: "nop",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) || opNames[op] == "" {
		return fmt.Sprintf("op(%d)", int(op))
	}

	return opNames[op]
}

// IsTerminator reports whether op ends a basic block.
func (op Op) IsTerminator() bool {
	switch op {
	case Br, BrCond, Switch, Ret, Unreachable:
		return true
	}

	return false
}

func NewModule(name string) *Module {
	return &Module{
		Name:    name,
		typeLUT: map[string]Type{},
		funcLUT: map[string]*Func{},
	}
}

// TypeByName returns the handle of a previously created type.
func (m *Module) TypeByName(name string) (Type, bool) {
	tp, ok := m.typeLUT[name]
	return tp, ok
}

func (m *Module) TypeInfo(tp Type) TypeInfo {
	return m.Types[tp]
}

func (m *Module) Func(name string) *Func {
	return m.funcLUT[name]
}

// At resolves a handle to its arena entry.
func (f *Func) At(v Value) any {
	if v < 0 || int(v) >= len(f.Exprs) {
		return nil
	}

	return f.Exprs[v]
}

// NameOf returns the ssa name the handle is bound to, if any.
func (f *Func) NameOf(v Value) string {
	switch x := f.At(v).(type) {
	case Instr:
		return x.Name
	case Arg:
		return x.Name
	}

	return ""
}

// Value looks up a handle by ssa name.
func (f *Func) Value(name string) (Value, bool) {
	v, ok := f.names[name]
	return v, ok
}

// Uses returns the ssa names read by the instruction at v.
func (f *Func) Uses(v Value) []string {
	x, ok := f.At(v).(Instr)
	if !ok {
		return nil
	}

	var r []string

	for _, a := range x.Args {
		if name := f.NameOf(a); name != "" {
			r = append(r, name)
		}
	}

	return r
}
