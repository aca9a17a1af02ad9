// Package mach is the machine-instruction tier produced by instruction
// selection: a structural mirror of the IR function with target-shaped
// operands. It is mutated in place exactly once, by the allocation
// rewrite.
package mach

import "fmt"

type (
	Op int

	Kind int

	Operand struct {
		Kind Kind

		// Reg holds the register name. Virtual registers carry the
		// ssa name and the Virt tag until the rewrite substitutes
		// them.
		Reg  string
		Virt bool

		Imm int64

		// memory operand: base register + offset
		Base     string
		BaseVirt bool
		Off      int

		Sym string
	}

	Instr struct {
		Op      Op
		Ops     []Operand
		Comment string
	}

	Block struct {
		Name string
		Code []Instr
	}

	Func struct {
		Name   string
		Blocks []Block

		// Frame is the stack frame size in bytes: allocas plus, after
		// allocation, spill slots.
		Frame int
	}
)

const (
	KindReg Kind = iota
	KindImm
	KindMem
	KindLabel
)

const (
	Mov Op = iota
	Movzx
	Movsx
	Lea

	Add
	Sub
	Mul
	Div
	Mod
	Neg
	And
	Or
	Xor
	Shl
	Shr
	Not

	Cmp
	Test

	Sete
	Setne
	Setl
	Setle
	Setg
	Setge

	Jmp
	Je
	Jne

	Push
	Pop
	Call
	Ret

	Trap
	Nop
)

var opNames = [...]string{
	Mov: "mov", Movzx: "movzx", Movsx: "movsx", Lea: "lea",
	Add: "add", Sub: "sub", Mul: "mul", Div: "div", Mod: "mod", Neg: "neg",
	And: "and", Or: "or", Xor: "xor", Shl: "shl", Shr: "shr", Not: "not",
	Cmp: "cmp", Test: "test",
	Sete: "sete", Setne: "setne", Setl: "setl", Setle: "setle", Setg: "setg", Setge: "setge",
	Jmp: "jmp", Je: "je", Jne: "jne",
	Push: "push", Pop: "pop", Call: "call", Ret: "ret",
	Trap: "trap", Nop: "nop",
}

func (op Op) String() string {
	if op < 0 || int(op) >= len(opNames) || opNames[op] == "" {
		return fmt.Sprintf("op(%d)", int(op))
	}

	return opNames[op]
}

// Writes reports whether the instruction's last operand is written.
func (op Op) Writes() bool {
	switch op {
	case Mov, Movzx, Movsx, Lea,
		Add, Sub, Mul, Div, Mod, Neg, And, Or, Xor, Shl, Shr, Not,
		Sete, Setne, Setl, Setle, Setg, Setge,
		Pop:
		return true
	}

	return false
}

// ReadsDest reports whether the written operand is also read.
func (op Op) ReadsDest() bool {
	switch op {
	case Add, Sub, Mul, Div, Mod, Neg, And, Or, Xor, Shl, Shr, Not:
		return true
	}

	return false
}

func Reg(name string) Operand {
	return Operand{Kind: KindReg, Reg: name}
}

func Virt(name string) Operand {
	return Operand{Kind: KindReg, Reg: name, Virt: true}
}

func Imm(v int64) Operand {
	return Operand{Kind: KindImm, Imm: v}
}

func Mem(base string, off int) Operand {
	return Operand{Kind: KindMem, Base: base, Off: off}
}

func Label(sym string) Operand {
	return Operand{Kind: KindLabel, Sym: sym}
}

// VirtMem builds a memory operand whose base is still virtual.
func VirtMem(base string, off int) Operand {
	return Operand{Kind: KindMem, Base: base, BaseVirt: true, Off: off}
}

func (o Operand) Append(b []byte) []byte {
	switch o.Kind {
	case KindReg:
		if o.Virt {
			b = append(b, '%')
		}

		return append(b, o.Reg...)
	case KindImm:
		return fmt.Appendf(b, "$%d", o.Imm)
	case KindMem:
		if o.BaseVirt {
			return fmt.Appendf(b, "%d(%%%s)", o.Off, o.Base)
		}

		return fmt.Appendf(b, "%d(%s)", o.Off, o.Base)
	case KindLabel:
		return append(b, o.Sym...)
	}

	return append(b, "?"...)
}

func (o Operand) String() string {
	return string(o.Append(nil))
}

func (x Instr) Append(b []byte) []byte {
	b = append(b, '\t')
	b = append(b, x.Op.String()...)

	for i, o := range x.Ops {
		if i != 0 {
			b = append(b, ',')
		}

		b = append(b, ' ')
		b = o.Append(b)
	}

	if x.Comment != "" {
		b = append(b, "\t// "...)
		b = append(b, x.Comment...)
	}

	return append(b, '\n')
}

// Append formats the function as labeled blocks of instructions.
func (f *Func) Append(b []byte) []byte {
	b = fmt.Appendf(b, ".global %s\n%s:\n", f.Name, f.Name)

	for i := range f.Blocks {
		blk := &f.Blocks[i]

		b = fmt.Appendf(b, "%s:\n", blk.Name)

		for _, x := range blk.Code {
			b = x.Append(b)
		}
	}

	return b
}
