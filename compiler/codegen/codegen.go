// Package codegen drives the per-function pipeline: validate IR, build
// the control-flow graph, select instructions, run liveness, build the
// interference graph, color it, rewrite operands and emit text. Stages
// run strictly in that order and each consumes only the previous
// stage's output.
package codegen

import (
	"context"
	"sort"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/cfg"
	"github.com/glowlang/glow/compiler/df"
	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/isel"
	"github.com/glowlang/glow/compiler/mach"
	"github.com/glowlang/glow/compiler/regalloc"
	"github.com/glowlang/glow/compiler/target"
)

type (
	Generator struct {
		desc *target.Desc
		sel  *isel.Selector
	}
)

func New(arch target.Arch) (*Generator, error) {
	d, err := target.New(arch)
	if err != nil {
		return nil, errors.Wrap(err, "target")
	}

	return &Generator{
		desc: d,
		sel:  isel.New(d),
	}, nil
}

func (g *Generator) Target() *target.Desc { return g.desc }

// CompileModule compiles every function and appends the listing to b.
func (g *Generator) CompileModule(ctx context.Context, b []byte, m *ir.Module) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "codegen: compile module", "name", m.Name, "arch", g.desc.Arch)
	defer tr.Finish("err", &err)

	b = hfmt.Appendf(b, "// module %s\n// arch %s\n", m.Name, g.desc.Arch)

	for _, f := range m.Funcs {
		b = append(b, '\n')

		b, err = g.CompileFunc(ctx, b, m, f)
		if err != nil {
			return nil, errors.Wrap(err, "func %v", f.Name)
		}
	}

	return b, nil
}

// CompileFunc runs the seven-stage pipeline for one function. Any
// stage error aborts the function; nothing is retried or defaulted.
func (g *Generator) CompileFunc(ctx context.Context, b []byte, m *ir.Module, f *ir.Func) (_ []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "func", "name", f.Name, "blocks", len(f.Blocks))
	defer tr.Finish("err", &err)

	err = ir.Validate(f)
	if err != nil {
		return nil, errors.Wrap(err, "validate")
	}

	cg := cfg.FromFunc(ctx, f)
	cg.ComputeDominators()

	if tr.If("dump_dom") {
		for i := range f.Blocks {
			tr.Printw("dominators", "block", f.Blocks[i].Name, "dom", cg.Dominators(i), "idom", cg.ImmediateDominator(i))
		}
	}

	mf, err := g.sel.SelectFunc(ctx, m, f)
	if err != nil {
		return nil, errors.Wrap(err, "select")
	}

	live := df.Live(ctx, f, cg)

	ig := regalloc.Build(ctx, f, cg, live)

	res := regalloc.Allocate(ctx, ig, g.desc.Allocatable(target.GP))

	err = g.rewrite(mf, res)
	if err != nil {
		return nil, errors.Wrap(err, "rewrite")
	}

	b = g.emit(b, mf, res)

	return b, nil
}

// rewrite is the sole mutation point of the machine function: every
// virtual-register operand is replaced by its physical register, and
// spilled names get load-before-use / store-after-def sequences through
// the target's scratch registers.
func (g *Generator) rewrite(mf *mach.Func, res regalloc.Result) error {
	frame := mf.Frame
	slot := func(i int) int { return -(frame + 8*(i+1)) }

	mf.Frame += 8 * len(res.Spill)

	for bi := range mf.Blocks {
		blk := &mf.Blocks[bi]
		code := make([]mach.Instr, 0, len(blk.Code))

		for _, x := range blk.Code {
			scratch := map[string]string{} // spilled name -> scratch reg

			take := func(name string) (reg string, fresh bool, err error) {
				if r, ok := scratch[name]; ok {
					return r, false, nil
				}
				if len(scratch) == len(g.desc.Scratch) {
					return "", false, regalloc.AllocationError{Name: name, Why: "out of scratch registers for spill code"}
				}

				r := g.desc.Scratch[len(scratch)]
				scratch[name] = r

				return r, true, nil
			}

			var stores []mach.Instr

			for oi := range x.Ops {
				o := &x.Ops[oi]

				switch {
				case o.Kind == mach.KindReg && o.Virt:
					name := o.Reg

					if reg, ok := res.Regs[name]; ok {
						o.Reg, o.Virt = reg.Name, false
						break
					}

					si, ok := res.Spill[name]
					if !ok {
						return regalloc.AllocationError{Name: name, Why: "no register assigned"}
					}

					r, fresh, err := take(name)
					if err != nil {
						return err
					}

					dest := oi == len(x.Ops)-1 && x.Op.Writes()

					if fresh && (!dest || x.Op.ReadsDest()) {
						code = append(code, mach.Instr{
							Op:      mach.Mov,
							Ops:     []mach.Operand{mach.Mem(g.desc.FP, slot(si)), mach.Reg(r)},
							Comment: "reload " + name,
						})
					}

					if dest {
						stores = append(stores, mach.Instr{
							Op:      mach.Mov,
							Ops:     []mach.Operand{mach.Reg(r), mach.Mem(g.desc.FP, slot(si))},
							Comment: "spill " + name,
						})
					}

					o.Reg, o.Virt = r, false

				case o.Kind == mach.KindMem && o.BaseVirt:
					name := o.Base

					if reg, ok := res.Regs[name]; ok {
						o.Base, o.BaseVirt = reg.Name, false
						break
					}

					si, ok := res.Spill[name]
					if !ok {
						return regalloc.AllocationError{Name: name, Why: "no register assigned"}
					}

					r, fresh, err := take(name)
					if err != nil {
						return err
					}

					if fresh {
						code = append(code, mach.Instr{
							Op:      mach.Mov,
							Ops:     []mach.Operand{mach.Mem(g.desc.FP, slot(si)), mach.Reg(r)},
							Comment: "reload " + name,
						})
					}

					o.Base, o.BaseVirt = r, false
				}
			}

			code = append(code, x)
			code = append(code, stores...)
		}

		blk.Code = code
	}

	return nil
}

// emit formats the rewritten function followed by the allocation
// report consumed by the downstream assembler or loader.
func (g *Generator) emit(b []byte, mf *mach.Func, res regalloc.Result) []byte {
	if mf.Frame != 0 {
		b = hfmt.Appendf(b, "// frame %d bytes\n", mf.Frame)
	}

	b = mf.Append(b)

	names := make([]string, 0, len(res.Regs)+len(res.Spill))

	for name := range res.Regs {
		names = append(names, name)
	}
	for name := range res.Spill {
		names = append(names, name)
	}

	sort.Strings(names)

	if len(names) != 0 {
		b = append(b, "// allocation:\n"...)
	}

	for _, name := range names {
		if reg, ok := res.Regs[name]; ok {
			b = hfmt.Appendf(b, "//   %%%s -> %s\n", name, reg.Name)
		} else {
			b = hfmt.Appendf(b, "//   %%%s -> spill slot %d\n", name, res.Spill[name])
		}
	}

	return b
}
