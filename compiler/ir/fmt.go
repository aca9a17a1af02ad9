package ir

import (
	"fmt"

	"github.com/nikandfor/hacked/hfmt"
)

// Append formats the function as a textual listing.
func (f *Func) Append(m *Module, b []byte) []byte {
	b = hfmt.Appendf(b, "func %s(", f.Name)

	for i, p := range f.In {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = hfmt.Appendf(b, "%s %s", p.Name, m.Types[p.Type].Name)
	}

	b = hfmt.Appendf(b, ") %s\n", m.Types[f.Ret].Name)

	for i := range f.Blocks {
		b = f.appendBlock(m, b, i)
	}

	return b
}

func (f *Func) appendBlock(m *Module, b []byte, i int) []byte {
	blk := &f.Blocks[i]

	b = hfmt.Appendf(b, "%s:\n", blk.Name)

	for _, v := range blk.Code {
		b = append(b, '\t')
		b = f.AppendValue(m, b, v)
		b = append(b, '\n')
	}

	return b
}

// AppendValue formats a single arena entry.
func (f *Func) AppendValue(m *Module, b []byte, v Value) []byte {
	switch x := f.At(v).(type) {
	case Const:
		return hfmt.Appendf(b, "%s %d", m.Types[x.Type].Name, x.Imm)
	case Arg:
		return hfmt.Appendf(b, "%%%s", x.Name)
	case Instr:
		if x.Name != "" {
			b = hfmt.Appendf(b, "%%%s = ", x.Name)
		}

		b = append(b, x.Op.String()...)

		if x.Sym != "" {
			b = hfmt.Appendf(b, " @%s", x.Sym)
		}

		for i, a := range x.Args {
			if i != 0 {
				b = append(b, ',')
			}

			b = append(b, ' ')
			b = f.appendOperand(m, b, a)
		}

		for i, blk := range x.Blocks {
			if i != 0 || len(x.Args) != 0 {
				b = append(b, ',')
			}

			b = hfmt.Appendf(b, " label %s", f.Blocks[blk].Name)
		}

		return b
	default:
		return hfmt.Appendf(b, "bad handle %d", int(v))
	}
}

func (f *Func) appendOperand(m *Module, b []byte, v Value) []byte {
	switch x := f.At(v).(type) {
	case Const:
		return hfmt.Appendf(b, "%d", x.Imm)
	case Arg:
		return hfmt.Appendf(b, "%%%s", x.Name)
	case Instr:
		if x.Name != "" {
			return hfmt.Appendf(b, "%%%s", x.Name)
		}

		return hfmt.Appendf(b, "%%t.%d", x.ID)
	default:
		return hfmt.Appendf(b, "bad handle %d", int(v))
	}
}

func (m *Module) String() string {
	b := fmt.Appendf(nil, "; module %s\n", m.Name)

	for _, f := range m.Funcs {
		b = append(b, '\n')
		b = f.Append(m, b)
	}

	return string(b)
}
