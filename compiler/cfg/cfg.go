// Package cfg derives explicit control-flow edges from a function's
// blocks and computes dominance over them.
package cfg

import (
	"context"

	"github.com/nikandfor/hacked/hfmt"
	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/set"
)

type (
	Graph struct {
		f *ir.Func

		Succs [][]int
		Preds [][]int

		dom []set.Bits[int]
	}
)

// New creates a graph over the function's blocks with no edges.
func New(f *ir.Func) *Graph {
	return &Graph{
		f:     f,
		Succs: make([][]int, len(f.Blocks)),
		Preds: make([][]int, len(f.Blocks)),
	}
}

// FromFunc builds the graph with edges taken from block terminators.
func FromFunc(ctx context.Context, f *ir.Func) *Graph {
	g := New(f)

	for i := range f.Blocks {
		for _, v := range f.Blocks[i].Code {
			x, ok := f.At(v).(ir.Instr)
			if !ok || !x.Op.IsTerminator() {
				continue
			}

			for _, to := range x.Blocks {
				g.AddEdge(i, to)
			}
		}
	}

	tlog.SpanFromContext(ctx).V("cfg").Printw("cfg built", "func", f.Name, "blocks", len(f.Blocks))

	return g
}

func (g *Graph) AddEdge(from, to int) {
	for _, s := range g.Succs[from] {
		if s == to {
			return
		}
	}

	g.Succs[from] = append(g.Succs[from], to)
	g.Preds[to] = append(g.Preds[to], from)
}

func (g *Graph) Len() int { return len(g.Succs) }

// ComputeDominators runs the iterative fixed point. Block 0 is the
// entry. Quadratic in blocks, which is fine at function scale.
func (g *Graph) ComputeDominators() {
	n := len(g.Succs)
	if n == 0 {
		g.dom = nil
		return
	}

	dom := make([]set.Bits[int], n)

	for i := range dom {
		dom[i] = set.Make[int]()

		if i == 0 {
			dom[i].Set(0)
		} else {
			dom[i].Fill(n)
		}
	}

	for changed := true; changed; {
		changed = false

		for i := 1; i < n; i++ {
			d := set.Make[int]()
			d.Fill(n)

			for _, p := range g.Preds[i] {
				d.Intersect(dom[p])
			}

			if len(g.Preds[i]) == 0 {
				// unreachable block: dominated only by itself
				d.Reset()
			}

			d.Set(i)

			if !d.Equal(dom[i]) {
				dom[i] = d
				changed = true
			}
		}
	}

	g.dom = dom
}

// Dominators returns the set of blocks dominating b.
// ComputeDominators must have been called.
func (g *Graph) Dominators(b int) set.Bits[int] {
	return g.dom[b]
}

func (g *Graph) Dominates(d, b int) bool {
	return g.dom[b].IsSet(d)
}

// ImmediateDominator returns the strict dominator of b not strictly
// dominated by any other strict dominator of b, or -1 for the entry.
func (g *Graph) ImmediateDominator(b int) int {
	idom := -1

	g.dom[b].Range(func(d int) bool {
		if d == b {
			return true
		}

		ok := true

		g.dom[b].Range(func(o int) bool {
			if o != b && o != d && g.dom[o].IsSet(d) {
				ok = false
				return false
			}

			return true
		})

		if ok {
			idom = d
			return false
		}

		return true
	})

	return idom
}

// AppendDOT renders the graph in graphviz format.
func (g *Graph) AppendDOT(b []byte) []byte {
	b = append(b, "digraph cfg {\n"...)

	for i := range g.Succs {
		b = hfmt.Appendf(b, "\t%s;\n", g.f.Blocks[i].Name)
	}

	for i, succs := range g.Succs {
		for _, s := range succs {
			b = hfmt.Appendf(b, "\t%s -> %s;\n", g.f.Blocks[i].Name, g.f.Blocks[s].Name)
		}
	}

	b = append(b, "}\n"...)

	return b
}
