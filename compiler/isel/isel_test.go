package isel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tlog.app/go/errors"

	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/mach"
	"github.com/glowlang/glow/compiler/target"
)

func addFunc(t *testing.T) (*ir.Module, *ir.Func) {
	t.Helper()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("add", i64, ir.Param{Name: "a", Type: i64}, ir.Param{Name: "b", Type: i64})

	b.Block("entry")

	a, _ := f.Value("a")
	bv, _ := f.Value("b")

	sum, err := b.Emit(ir.Add, i64, "sum", a, bv)
	require.NoError(t, err)

	_, err = b.Ret(sum)
	require.NoError(t, err)

	return m, f
}

func newDesc(t *testing.T) *target.Desc {
	t.Helper()

	d, err := target.New(target.AMD64)
	require.NoError(t, err)

	return d
}

func TestSelectAdd(t *testing.T) {
	ctx := context.Background()

	m, f := addFunc(t)
	s := New(newDesc(t))

	mf, err := s.SelectFunc(ctx, m, f)
	require.NoError(t, err)
	require.Len(t, mf.Blocks, 1)

	code := mf.Blocks[0].Code

	// param moves, then mov a, sum; add b, sum; mov sum, rax; ret
	require.Len(t, code, 6)

	assert.Equal(t, mach.Mov, code[0].Op)
	assert.Equal(t, mach.Reg("rdi"), code[0].Ops[0])
	assert.Equal(t, mach.Virt("a"), code[0].Ops[1])

	assert.Equal(t, mach.Mov, code[2].Op)
	assert.Equal(t, mach.Virt("a"), code[2].Ops[0])
	assert.Equal(t, mach.Virt("sum"), code[2].Ops[1])

	assert.Equal(t, mach.Add, code[3].Op)
	assert.Equal(t, mach.Virt("b"), code[3].Ops[0])
	assert.Equal(t, mach.Virt("sum"), code[3].Ops[1])

	assert.Equal(t, mach.Mov, code[4].Op)
	assert.Equal(t, mach.Reg("rax"), code[4].Ops[1])

	assert.Equal(t, mach.Ret, code[5].Op)
}

func TestBindingConsistent(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("sq3", i64, ir.Param{Name: "x", Type: i64})

	b.Block("entry")

	x, _ := f.Value("x")

	sq, err := b.Emit(ir.Mul, i64, "sq", x, x)
	require.NoError(t, err)

	tri, err := b.Emit(ir.Mul, i64, "tri", sq, x)
	require.NoError(t, err)

	_, err = b.Ret(tri)
	require.NoError(t, err)

	s := New(newDesc(t))

	mf, err := s.SelectFunc(ctx, m, f)
	require.NoError(t, err)

	// every use of x resolved to the same virtual register
	var uses int

	for _, ins := range mf.Blocks[0].Code {
		for _, o := range ins.Ops {
			if o.Kind == mach.KindReg && o.Virt && o.Reg == "x" {
				uses++
			}
		}
	}

	assert.Equal(t, 4, uses) // param mov dst + two mul reads + tri operand
}

func TestSelectMissingPattern(t *testing.T) {
	ctx := context.Background()

	m, f := addFunc(t)

	s := New(newDesc(t))
	delete(s.patterns, ir.Add)

	_, err := s.SelectFunc(ctx, m, f)
	require.Error(t, err)

	var se SelectionError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, ir.Add, se.Op)
}

func TestSelectBrCond(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("pick", i64, ir.Param{Name: "c", Type: i64})

	entry := b.Block("entry")
	then := b.Block("then")
	els := b.Block("else")

	c, _ := f.Value("c")

	b.SetBlock(entry)

	_, err := b.BranchIf(c, then, els)
	require.NoError(t, err)

	b.SetBlock(then)
	_, err = b.Ret(b.Const(i64, 1))
	require.NoError(t, err)

	b.SetBlock(els)
	_, err = b.Ret(b.Const(i64, 0))
	require.NoError(t, err)

	s := New(newDesc(t))

	mf, err := s.SelectFunc(ctx, m, f)
	require.NoError(t, err)

	code := mf.Blocks[0].Code
	require.Len(t, code, 4) // param mov, test, jne, jmp

	assert.Equal(t, mach.Test, code[1].Op)
	assert.Equal(t, mach.Jne, code[2].Op)
	assert.Equal(t, mach.Label("then"), code[2].Ops[0])
	assert.Equal(t, mach.Jmp, code[3].Op)
	assert.Equal(t, mach.Label("else"), code[3].Ops[0])
}

func TestSelectAlloca(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	p64 := b.Type(ir.TypePtr, "p64", 8)
	f := b.Func("store1", i64)

	b.Block("entry")

	slot, err := b.Emit(ir.Alloca, p64, "slot")
	require.NoError(t, err)

	_, err = b.Emit(ir.Store, i64, "", b.Const(i64, 7), slot)
	require.NoError(t, err)

	v, err := b.Emit(ir.Load, i64, "v", slot)
	require.NoError(t, err)

	_, err = b.Ret(v)
	require.NoError(t, err)

	s := New(newDesc(t))

	mf, err := s.SelectFunc(ctx, m, f)
	require.NoError(t, err)

	assert.Equal(t, 8, mf.Frame)

	code := mf.Blocks[0].Code
	require.Len(t, code, 4) // store mov, load mov, ret mov, ret

	assert.Equal(t, mach.Mov, code[0].Op)
	assert.Equal(t, mach.Imm(7), code[0].Ops[0])
	assert.Equal(t, mach.Mem("rbp", -8), code[0].Ops[1])

	assert.Equal(t, mach.Mem("rbp", -8), code[1].Ops[0])
	assert.Equal(t, mach.Virt("v"), code[1].Ops[1])
}

func TestSelectPhiInPredecessors(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("sel", i64, ir.Param{Name: "c", Type: i64})

	entry := b.Block("entry")
	then := b.Block("then")
	els := b.Block("else")
	join := b.Block("join")

	c, _ := f.Value("c")

	b.SetBlock(entry)

	_, err := b.BranchIf(c, then, els)
	require.NoError(t, err)

	b.SetBlock(then)
	_, err = b.Branch(join)
	require.NoError(t, err)

	b.SetBlock(els)
	_, err = b.Branch(join)
	require.NoError(t, err)

	b.SetBlock(join)

	r, err := b.PhiOf(i64, "r", []ir.Value{b.Const(i64, 1), b.Const(i64, 2)}, []int{then, els})
	require.NoError(t, err)

	_, err = b.Ret(r)
	require.NoError(t, err)

	s := New(newDesc(t))

	mf, err := s.SelectFunc(ctx, m, f)
	require.NoError(t, err)

	// each predecessor gets its own copy, before its jump
	for i, want := range map[int]int64{then: 1, els: 2} {
		code := mf.Blocks[i].Code
		require.Len(t, code, 2, "block %v", mf.Blocks[i].Name)

		assert.Equal(t, mach.Mov, code[0].Op)
		assert.Equal(t, mach.Imm(want), code[0].Ops[0])
		assert.Equal(t, mach.Virt("r"), code[0].Ops[1])
		assert.Equal(t, mach.Jmp, code[1].Op)
	}

	// the join block holds no copies, only the return sequence
	code := mf.Blocks[join].Code
	require.Len(t, code, 2)
	assert.Equal(t, mach.Mov, code[0].Op)
	assert.Equal(t, mach.Virt("r"), code[0].Ops[0])
	assert.Equal(t, mach.Ret, code[1].Op)
}

func TestUnnamedResultOperand(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("bad", i64, ir.Param{Name: "a", Type: i64})

	b.Block("entry")

	a, _ := f.Value("a")

	tmp, err := b.Emit(ir.Add, i64, "", a, a)
	require.NoError(t, err)

	_, err = b.Ret(tmp)
	require.NoError(t, err)

	s := New(newDesc(t))

	_, err = s.SelectFunc(ctx, m, f)
	assert.Error(t, err)
}
