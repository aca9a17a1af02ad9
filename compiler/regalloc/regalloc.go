// Package regalloc assigns physical registers to ssa names by greedy
// graph coloring over the interference graph, spilling when the
// available class is exhausted.
package regalloc

import (
	"context"
	"fmt"
	"sort"

	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/set"
	"github.com/glowlang/glow/compiler/target"
)

type (
	Result struct {
		// Regs maps colored names to their physical register.
		Regs map[string]target.Register

		// Spill maps uncolorable names to their spill slot index.
		Spill map[string]int
	}

	// AllocationError means a name needed a register but none remained
	// and spill code could not be generated.
	AllocationError struct {
		Name string
		Why  string
	}
)

func (e AllocationError) Error() string {
	return fmt.Sprintf("cannot allocate %v: %v", e.Name, e.Why)
}

// Allocate colors the graph with the given register set. Vertices are
// taken in descending degree order, ties broken by insertion order.
// Each vertex gets the lowest-numbered register unused by its colored
// neighbors, or a spill slot when all k are taken. For every edge the
// endpoints end up with distinct registers unless one is spilled.
func Allocate(ctx context.Context, g *Graph, regs []target.Register) Result {
	tr := tlog.SpanFromContext(ctx)

	order := make([]int, len(g.verts))
	for i := range order {
		order[i] = i
	}

	sort.SliceStable(order, func(i, j int) bool {
		return g.degree[order[i]] > g.degree[order[j]]
	})

	color := make([]int, len(g.verts))
	for i := range color {
		color[i] = -1
	}

	r := Result{
		Regs:  map[string]target.Register{},
		Spill: map[string]int{},
	}

	for _, i := range order {
		used := set.Make[int]()

		g.adj[i].Range(func(j int) bool {
			if color[j] >= 0 {
				used.Set(color[j])
			}

			return true
		})

		c := 0
		for used.IsSet(c) {
			c++
		}

		if c < len(regs) {
			color[i] = c
			r.Regs[g.verts[i]] = regs[c]

			continue
		}

		r.Spill[g.verts[i]] = len(r.Spill)

		tr.V("spill").Printw("spill", "name", g.verts[i], "degree", g.degree[i], "k", len(regs))
	}

	tr.V("regalloc").Printw("allocated", "colored", len(r.Regs), "spilled", len(r.Spill), "k", len(regs))

	return r
}
