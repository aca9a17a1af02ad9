package regalloc

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/cfg"
	"github.com/glowlang/glow/compiler/df"
	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/set"
)

type (
	// Graph is the interference graph: vertices are ssa names, edges
	// connect pairs simultaneously live at some program point. Vertex
	// order is insertion order, which keeps allocation deterministic.
	Graph struct {
		verts []string
		index map[string]int

		adj    []set.Bits[int]
		degree []int
	}
)

func NewGraph() *Graph {
	return &Graph{index: map[string]int{}}
}

func (g *Graph) AddVertex(name string) int {
	if i, ok := g.index[name]; ok {
		return i
	}

	i := len(g.verts)
	g.verts = append(g.verts, name)
	g.index[name] = i
	g.adj = append(g.adj, set.Make[int]())
	g.degree = append(g.degree, 0)

	return i
}

func (g *Graph) AddEdge(a, b string) {
	if a == b {
		return
	}

	i := g.AddVertex(a)
	j := g.AddVertex(b)

	if g.adj[i].IsSet(j) {
		return
	}

	g.adj[i].Set(j)
	g.adj[j].Set(i)
	g.degree[i]++
	g.degree[j]++
}

func (g *Graph) HasEdge(a, b string) bool {
	i, ok := g.index[a]
	if !ok {
		return false
	}

	j, ok := g.index[b]
	if !ok {
		return false
	}

	return g.adj[i].IsSet(j)
}

func (g *Graph) Degree(name string) int {
	i, ok := g.index[name]
	if !ok {
		return 0
	}

	return g.degree[i]
}

// Vertices returns vertex names in insertion order.
func (g *Graph) Vertices() []string {
	return g.verts
}

func (g *Graph) Neighbors(name string) []string {
	i, ok := g.index[name]
	if !ok {
		return nil
	}

	var r []string

	g.adj[i].Range(func(j int) bool {
		r = append(r, g.verts[j])
		return true
	})

	return r
}

// Build constructs the interference graph from true live ranges: a
// definition interferes with everything live just after it. Walks each
// block backward from the liveness out set.
func Build(ctx context.Context, f *ir.Func, g *cfg.Graph, live *df.Liveness) *Graph {
	tr := tlog.SpanFromContext(ctx)

	ig := NewGraph()

	// every name that is defined or live anywhere is a vertex
	for _, name := range live.Vars {
		ig.AddVertex(name)
	}

	for b := 0; b < g.Len(); b++ {
		live.WalkBlock(b, func(v ir.Value, after df.Set) bool {
			def := f.NameOf(v)
			if def == "" {
				return true
			}

			after.Range(func(j int) bool {
				if other := live.Vars[j]; other != def {
					ig.AddEdge(def, other)
				}

				return true
			})

			return true
		})
	}

	// parameters are all live on entry and interfere pairwise
	for i, p := range f.In {
		for _, q := range f.In[i+1:] {
			ig.AddEdge(p.Name, q.Name)
		}
	}

	edges := 0
	for _, d := range ig.degree {
		edges += d
	}

	tr.V("interference").Printw("interference graph", "func", f.Name, "vertices", len(ig.verts), "edges", edges/2)

	return ig
}
