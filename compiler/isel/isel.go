// Package isel lowers IR instructions to machine instruction sequences
// through a per-opcode pattern table. Operand resolution goes through a
// per-function binding table so repeated uses of a value bind
// consistently.
package isel

import (
	"context"
	"fmt"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/mach"
	"github.com/glowlang/glow/compiler/target"
)

type (
	Pattern func(st *state, v ir.Value, x ir.Instr) error

	Selector struct {
		desc *target.Desc

		patterns map[ir.Op]Pattern
	}

	state struct {
		m *ir.Module
		f *ir.Func

		mf  *mach.Func
		blk *mach.Block

		desc *target.Desc

		// binding table: value handle -> machine operand
		bind map[ir.Value]mach.Operand

		// phi copies pending placement into predecessor blocks
		phis []phiCopy
	}

	phiCopy struct {
		pred int
		x    mach.Instr
	}

	// SelectionError means an opcode reached the selector without a
	// registered lowering pattern. It is fatal: no placeholder
	// instruction is ever substituted.
	SelectionError struct {
		Op ir.Op
	}
)

func (e SelectionError) Error() string {
	return fmt.Sprintf("no selection pattern for opcode %v", e.Op)
}

var binOps = map[ir.Op]mach.Op{
	ir.Add: mach.Add,
	ir.Sub: mach.Sub,
	ir.Mul: mach.Mul,
	ir.Div: mach.Div,
	ir.Mod: mach.Mod,
	ir.And: mach.And,
	ir.Or:  mach.Or,
	ir.Xor: mach.Xor,
	ir.Shl: mach.Shl,
	ir.Shr: mach.Shr,
}

var unOps = map[ir.Op]mach.Op{
	ir.Neg: mach.Neg,
	ir.Not: mach.Not,
}

var cmpOps = map[ir.Op]mach.Op{
	ir.CmpEQ: mach.Sete,
	ir.CmpNE: mach.Setne,
	ir.CmpLT: mach.Setl,
	ir.CmpLE: mach.Setle,
	ir.CmpGT: mach.Setg,
	ir.CmpGE: mach.Setge,
}

var extOps = map[ir.Op]mach.Op{
	ir.Trunc: mach.Mov,
	ir.Zext:  mach.Movzx,
	ir.Sext:  mach.Movsx,
}

func New(d *target.Desc) *Selector {
	s := &Selector{
		desc:     d,
		patterns: map[ir.Op]Pattern{},
	}

	for op := range binOps {
		s.patterns[op] = selectBin
	}
	for op := range unOps {
		s.patterns[op] = selectUn
	}
	for op := range cmpOps {
		s.patterns[op] = selectCmp
	}
	for op := range extOps {
		s.patterns[op] = selectExt
	}

	s.patterns[ir.Load] = selectLoad
	s.patterns[ir.Store] = selectStore
	s.patterns[ir.Alloca] = selectAlloca
	s.patterns[ir.Br] = selectBr
	s.patterns[ir.BrCond] = selectBrCond
	s.patterns[ir.Switch] = selectSwitch
	s.patterns[ir.Phi] = selectPhi
	s.patterns[ir.Call] = selectCall
	s.patterns[ir.Ret] = selectRet
	s.patterns[ir.Unreachable] = selectUnreachable
	s.patterns[ir.Nop] = selectNop

	return s
}

// SelectFunc lowers a function into a fresh machine function with
// blocks mirroring the IR blocks 1:1.
func (s *Selector) SelectFunc(ctx context.Context, m *ir.Module, f *ir.Func) (_ *mach.Func, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "select", "func", f.Name, "arch", s.desc.Arch)
	defer tr.Finish("err", &err)

	st := &state{
		m:    m,
		f:    f,
		desc: s.desc,
		bind: map[ir.Value]mach.Operand{},

		mf: &mach.Func{
			Name:   f.Name,
			Blocks: make([]mach.Block, len(f.Blocks)),
		},
	}

	for i := range f.Blocks {
		st.mf.Blocks[i].Name = f.Blocks[i].Name
	}

	if len(f.Blocks) != 0 {
		st.blk = &st.mf.Blocks[0]

		err = st.params()
		if err != nil {
			return nil, errors.Wrap(err, "params")
		}
	}

	for i := range f.Blocks {
		st.blk = &st.mf.Blocks[i]

		for _, v := range f.Blocks[i].Code {
			x, ok := f.At(v).(ir.Instr)
			if !ok {
				continue
			}

			pat, ok := s.patterns[x.Op]
			if !ok {
				return nil, errors.Wrap(SelectionError{Op: x.Op}, "block %v", f.Blocks[i].Name)
			}

			err = pat(st, v, x)
			if err != nil {
				return nil, errors.Wrap(err, "block %v: %v", f.Blocks[i].Name, x.Op)
			}
		}
	}

	st.placePhis()

	tr.V("dump_mach").Printw("selected", "frame", st.mf.Frame, "blocks", len(st.mf.Blocks))

	return st.mf, nil
}

// placePhis inserts pending phi copies at the end of their predecessor
// blocks, just before the branch sequence. Runs after all blocks are
// lowered so back-edge predecessors are complete.
func (st *state) placePhis() {
	for _, pc := range st.phis {
		blk := &st.mf.Blocks[pc.pred]

		i := len(blk.Code)
		for i > 0 && isBranch(blk.Code[i-1].Op) {
			i--
		}

		blk.Code = append(blk.Code[:i], append([]mach.Instr{pc.x}, blk.Code[i:]...)...)
	}
}

func isBranch(op mach.Op) bool {
	switch op {
	case mach.Jmp, mach.Je, mach.Jne:
		return true
	}

	return false
}

// params moves incoming arguments from their convention registers into
// the virtual registers the body reads.
func (st *state) params() error {
	for i, p := range st.f.In {
		if i >= len(st.desc.Args) {
			return errors.New("param %v: only %d register args supported", p.Name, len(st.desc.Args))
		}

		st.emit(mach.Instr{
			Op:      mach.Mov,
			Ops:     []mach.Operand{mach.Reg(st.desc.Args[i]), mach.Virt(p.Name)},
			Comment: "param " + p.Name,
		})
	}

	return nil
}

func (st *state) emit(x mach.Instr) {
	st.blk.Code = append(st.blk.Code, x)
}

// operand resolves a value handle to its machine operand, memoized in
// the binding table.
func (st *state) operand(v ir.Value) (mach.Operand, error) {
	if o, ok := st.bind[v]; ok {
		return o, nil
	}

	var o mach.Operand

	switch x := st.f.At(v).(type) {
	case ir.Const:
		o = mach.Imm(x.Imm)
	case ir.Arg:
		o = mach.Virt(x.Name)
	case ir.Instr:
		if x.Name == "" {
			return o, errors.New("unnamed value %v (id %d) used as operand", x.Op, x.ID)
		}

		o = mach.Virt(x.Name)
	default:
		return o, errors.New("bad handle %d", int(v))
	}

	st.bind[v] = o

	return o, nil
}

// dest binds the instruction's own result.
func (st *state) dest(v ir.Value, x ir.Instr) (mach.Operand, error) {
	if x.Name == "" {
		return mach.Operand{}, errors.New("%v: result must be named", x.Op)
	}

	return st.operand(v)
}

func selectBin(st *state, v ir.Value, x ir.Instr) error {
	dst, err := st.dest(v, x)
	if err != nil {
		return err
	}

	a, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	b, err := st.operand(x.Args[1])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{a, dst}})
	st.emit(mach.Instr{Op: binOps[x.Op], Ops: []mach.Operand{b, dst}})

	return nil
}

func selectUn(st *state, v ir.Value, x ir.Instr) error {
	dst, err := st.dest(v, x)
	if err != nil {
		return err
	}

	a, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{a, dst}})
	st.emit(mach.Instr{Op: unOps[x.Op], Ops: []mach.Operand{dst}})

	return nil
}

func selectCmp(st *state, v ir.Value, x ir.Instr) error {
	dst, err := st.dest(v, x)
	if err != nil {
		return err
	}

	a, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	b, err := st.operand(x.Args[1])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: mach.Cmp, Ops: []mach.Operand{b, a}})
	st.emit(mach.Instr{Op: cmpOps[x.Op], Ops: []mach.Operand{dst}})

	return nil
}

func selectExt(st *state, v ir.Value, x ir.Instr) error {
	dst, err := st.dest(v, x)
	if err != nil {
		return err
	}

	a, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: extOps[x.Op], Ops: []mach.Operand{a, dst}})

	return nil
}

func selectLoad(st *state, v ir.Value, x ir.Instr) error {
	dst, err := st.dest(v, x)
	if err != nil {
		return err
	}

	addr, err := st.addr(x.Args[0])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{addr, dst}})

	return nil
}

func selectStore(st *state, v ir.Value, x ir.Instr) error {
	src, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	addr, err := st.addr(x.Args[1])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{src, addr}})

	return nil
}

// addr resolves a pointer value to a memory operand.
func (st *state) addr(v ir.Value) (mach.Operand, error) {
	o, err := st.operand(v)
	if err != nil {
		return o, err
	}

	switch o.Kind {
	case mach.KindMem:
		return o, nil
	case mach.KindReg:
		if o.Virt {
			return mach.VirtMem(o.Reg, 0), nil
		}

		return mach.Mem(o.Reg, 0), nil
	}

	return o, errors.New("bad address operand: %v", o)
}

// selectAlloca reserves a frame slot and binds the result to a
// frame-relative memory operand. No instruction is emitted.
func selectAlloca(st *state, v ir.Value, x ir.Instr) error {
	if x.Name == "" {
		return errors.New("alloca: result must be named")
	}

	size := st.m.TypeInfo(x.Type).Size
	if size <= 0 {
		size = st.desc.PtrSize
	}

	size = (size + 7) &^ 7

	st.mf.Frame += size
	st.bind[v] = mach.Mem(st.desc.FP, -st.mf.Frame)

	return nil
}

func selectBr(st *state, v ir.Value, x ir.Instr) error {
	st.emit(mach.Instr{Op: mach.Jmp, Ops: []mach.Operand{mach.Label(st.f.Blocks[x.Blocks[0]].Name)}})

	return nil
}

func selectBrCond(st *state, v ir.Value, x ir.Instr) error {
	c, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	st.emit(mach.Instr{Op: mach.Test, Ops: []mach.Operand{c, c}})
	st.emit(mach.Instr{Op: mach.Jne, Ops: []mach.Operand{mach.Label(st.f.Blocks[x.Blocks[0]].Name)}})
	st.emit(mach.Instr{Op: mach.Jmp, Ops: []mach.Operand{mach.Label(st.f.Blocks[x.Blocks[1]].Name)}})

	return nil
}

// selectSwitch lowers to a compare and branch chain ending in the
// default branch.
func selectSwitch(st *state, v ir.Value, x ir.Instr) error {
	val, err := st.operand(x.Args[0])
	if err != nil {
		return err
	}

	for i := 1; i < len(x.Args); i++ {
		c, err := st.operand(x.Args[i])
		if err != nil {
			return err
		}

		st.emit(mach.Instr{Op: mach.Cmp, Ops: []mach.Operand{c, val}})
		st.emit(mach.Instr{Op: mach.Je, Ops: []mach.Operand{mach.Label(st.f.Blocks[x.Blocks[i]].Name)}})
	}

	st.emit(mach.Instr{Op: mach.Jmp, Ops: []mach.Operand{mach.Label(st.f.Blocks[x.Blocks[0]].Name)}})

	return nil
}

// selectPhi lowers to one copy per incoming edge, placed at the end of
// the corresponding predecessor block so only the taken path's copy
// executes. Critical-edge splitting and parallel-copy resolution are
// the front end's concern.
func selectPhi(st *state, v ir.Value, x ir.Instr) error {
	dst, err := st.dest(v, x)
	if err != nil {
		return err
	}

	for i, a := range x.Args {
		src, err := st.operand(a)
		if err != nil {
			return err
		}

		st.phis = append(st.phis, phiCopy{
			pred: x.Blocks[i],
			x: mach.Instr{
				Op:      mach.Mov,
				Ops:     []mach.Operand{src, dst},
				Comment: "phi " + x.Name,
			},
		})
	}

	return nil
}

func selectCall(st *state, v ir.Value, x ir.Instr) error {
	if len(x.Args) > len(st.desc.Args) {
		return errors.New("call %v: only %d register args supported", x.Sym, len(st.desc.Args))
	}

	for i, a := range x.Args {
		src, err := st.operand(a)
		if err != nil {
			return err
		}

		st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{src, mach.Reg(st.desc.Args[i])}})
	}

	st.emit(mach.Instr{Op: mach.Call, Ops: []mach.Operand{mach.Label(x.Sym)}})

	if x.Name != "" {
		dst, err := st.dest(v, x)
		if err != nil {
			return err
		}

		st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{mach.Reg(st.desc.Ret), dst}})
	}

	return nil
}

func selectRet(st *state, v ir.Value, x ir.Instr) error {
	if len(x.Args) != 0 {
		src, err := st.operand(x.Args[0])
		if err != nil {
			return err
		}

		st.emit(mach.Instr{Op: mach.Mov, Ops: []mach.Operand{src, mach.Reg(st.desc.Ret)}})
	}

	st.emit(mach.Instr{Op: mach.Ret})

	return nil
}

func selectUnreachable(st *state, v ir.Value, x ir.Instr) error {
	st.emit(mach.Instr{Op: mach.Trap})

	return nil
}

func selectNop(st *state, v ir.Value, x ir.Instr) error {
	st.emit(mach.Instr{Op: mach.Nop})

	return nil
}
