package regalloc

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/glowlang/glow/compiler/cfg"
	"github.com/glowlang/glow/compiler/df"
	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/target"
)

func TestGraphEdges(t *testing.T) {
	g := NewGraph()

	g.AddEdge("a", "b")
	g.AddEdge("b", "c")

	assert.True(t, g.HasEdge("a", "b"))
	assert.True(t, g.HasEdge("b", "a"))
	assert.False(t, g.HasEdge("a", "c"))

	assert.Equal(t, 1, g.Degree("a"))
	assert.Equal(t, 2, g.Degree("b"))

	// duplicates and self loops do not change degrees
	g.AddEdge("a", "b")
	g.AddEdge("b", "b")

	assert.Equal(t, 1, g.Degree("a"))
	assert.Equal(t, 2, g.Degree("b"))

	assert.Equal(t, []string{"a", "b", "c"}, g.Vertices())
}

func gpRegs(t *testing.T, n int) []target.Register {
	t.Helper()

	d, err := target.New(target.AMD64)
	require.NoError(t, err)

	regs := d.Allocatable(target.GP)
	require.GreaterOrEqual(t, len(regs), n)

	return regs[:n]
}

func checkColoring(t *testing.T, g *Graph, r Result) {
	t.Helper()

	for _, a := range g.Vertices() {
		if _, ok := r.Spill[a]; ok {
			continue
		}

		ra, ok := r.Regs[a]
		require.True(t, ok, "%v neither colored nor spilled", a)

		for _, b := range g.Neighbors(a) {
			if _, ok := r.Spill[b]; ok {
				continue
			}

			assert.NotEqual(t, ra.Name, r.Regs[b].Name, "%v and %v interfere", a, b)
		}
	}
}

func TestAllocateTriangle(t *testing.T) {
	ctx := context.Background()

	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("b", "c")
	g.AddEdge("a", "c")

	r := Allocate(ctx, g, gpRegs(t, 3))

	assert.Empty(t, r.Spill)
	checkColoring(t, g, r)
}

func TestAllocateSpill(t *testing.T) {
	ctx := context.Background()

	g := NewGraph()
	g.AddEdge("a", "b")
	g.AddEdge("a", "c")
	g.AddEdge("b", "c")
	g.AddEdge("b", "d")
	g.AddEdge("c", "d")

	r := Allocate(ctx, g, gpRegs(t, 2))

	// the a-b-c triangle cannot be 2-colored
	require.NotEmpty(t, r.Spill)
	checkColoring(t, g, r)

	for name := range r.Spill {
		_, ok := r.Regs[name]
		assert.False(t, ok, "%v both colored and spilled", name)
	}
}

func TestAllocateDeterministic(t *testing.T) {
	ctx := context.Background()

	build := func() *Graph {
		g := NewGraph()
		g.AddEdge("a", "b")
		g.AddEdge("a", "c")
		g.AddEdge("b", "c")
		g.AddEdge("b", "d")
		g.AddEdge("c", "d")

		return g
	}

	r1 := Allocate(ctx, build(), gpRegs(t, 2))
	r2 := Allocate(ctx, build(), gpRegs(t, 2))

	assert.Equal(t, r1.Regs, r2.Regs)
	assert.Equal(t, r1.Spill, r2.Spill)
}

func TestAllocateIsolated(t *testing.T) {
	ctx := context.Background()

	g := NewGraph()
	g.AddVertex("lone")

	r := Allocate(ctx, g, gpRegs(t, 1))

	assert.Empty(t, r.Spill)
	assert.Contains(t, r.Regs, "lone")
}

func TestBuildInterference(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("f", i64, ir.Param{Name: "a", Type: i64}, ir.Param{Name: "b", Type: i64})

	b.Block("entry")

	a, _ := f.Value("a")
	bv, _ := f.Value("b")

	// t is defined while b is still needed, u only needs t and b
	tv, err := b.Emit(ir.Add, i64, "t", a, a)
	require.NoError(t, err)

	u, err := b.Emit(ir.Add, i64, "u", tv, bv)
	require.NoError(t, err)

	_, err = b.Ret(u)
	require.NoError(t, err)

	g := cfg.FromFunc(ctx, f)
	live := df.Live(ctx, f, g)

	ig := Build(ctx, f, g, live)

	assert.True(t, ig.HasEdge("a", "b"), "params interfere")
	assert.True(t, ig.HasEdge("t", "b"), "t defined while b live")
	assert.False(t, ig.HasEdge("u", "a"), "a dead before u defined")
	assert.False(t, ig.HasEdge("u", "t"), "t dead at u definition")
}

func TestBuildInterferenceAcrossBlocks(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("f", i64, ir.Param{Name: "a", Type: i64})

	entry := b.Block("entry")
	mid := b.Block("mid")
	exit := b.Block("exit")

	a, _ := f.Value("a")

	b.SetBlock(entry)

	tv, err := b.Emit(ir.Add, i64, "t", a, a)
	require.NoError(t, err)

	_, err = b.Branch(mid)
	require.NoError(t, err)

	b.SetBlock(mid)

	u, err := b.Emit(ir.Mul, i64, "u", a, a)
	require.NoError(t, err)

	_, err = b.Branch(exit)
	require.NoError(t, err)

	b.SetBlock(exit)

	s, err := b.Emit(ir.Add, i64, "s", tv, u)
	require.NoError(t, err)

	_, err = b.Ret(s)
	require.NoError(t, err)

	g := cfg.FromFunc(ctx, f)
	live := df.Live(ctx, f, g)
	ig := Build(ctx, f, g, live)

	// u is defined in mid while t is live across the whole block, so
	// they can never share a register
	assert.True(t, ig.HasEdge("t", "u"))

	r := Allocate(ctx, ig, gpRegs(t, 4))

	assert.Empty(t, r.Spill)
	assert.NotEqual(t, r.Regs["t"].Name, r.Regs["u"].Name)
}

func TestBuildAllocateRoundTrip(t *testing.T) {
	ctx := context.Background()

	m := ir.NewModule("test")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	f := b.Func("sum4", i64,
		ir.Param{Name: "a", Type: i64},
		ir.Param{Name: "b", Type: i64},
		ir.Param{Name: "c", Type: i64},
		ir.Param{Name: "d", Type: i64},
	)

	b.Block("entry")

	a, _ := f.Value("a")
	bv, _ := f.Value("b")
	c, _ := f.Value("c")
	d, _ := f.Value("d")

	ab, err := b.Emit(ir.Add, i64, "ab", a, bv)
	require.NoError(t, err)

	cd, err := b.Emit(ir.Add, i64, "cd", c, d)
	require.NoError(t, err)

	s, err := b.Emit(ir.Add, i64, "s", ab, cd)
	require.NoError(t, err)

	_, err = b.Ret(s)
	require.NoError(t, err)

	g := cfg.FromFunc(ctx, f)
	live := df.Live(ctx, f, g)
	ig := Build(ctx, f, g, live)

	r := Allocate(ctx, ig, gpRegs(t, 6))

	assert.Empty(t, r.Spill)
	checkColoring(t, ig, r)
}
