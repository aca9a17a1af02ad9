// Package df is a generic iterative data-flow framework over a
// function's control-flow graph, parameterized by direction and meet
// operator. Facts are dense bitmaps over analysis-owned indices.
package df

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/cfg"
	"github.com/glowlang/glow/compiler/set"
)

type (
	Dir int

	MeetOp int

	Set = set.Bits[int]

	// Analysis supplies the transfer function. The engine owns the
	// in/out sets and iterates them to a fixed point.
	Analysis struct {
		Dir  Dir
		Meet MeetOp

		Transfer func(block int, in Set) Set
	}

	Result struct {
		In  []Set
		Out []Set
	}

	worklist struct {
		heap.Heap[int]

		queued set.Bits[int]
	}
)

const (
	Forward Dir = iota
	Backward
)

const (
	Union MeetOp = iota
	Intersect
)

// Run iterates the analysis to a fixed point. For every block the in
// set is the meet over the out sets of its predecessors (forward) or
// successors (backward), and the out set is the transfer of the in set.
// Termination follows from monotone sets over a finite universe.
func Run(ctx context.Context, g *cfg.Graph, a Analysis) Result {
	tr := tlog.SpanFromContext(ctx)

	n := g.Len()

	r := Result{
		In:  make([]Set, n),
		Out: make([]Set, n),
	}

	for i := 0; i < n; i++ {
		r.In[i] = set.Make[int]()
		r.Out[i] = set.Make[int]()
	}

	wl := worklist{Heap: heap.Heap[int]{Less: func(d []int, i, j int) bool { return d[i] < d[j] }}}

	for i := 0; i < n; i++ {
		wl.push(i)
	}

	rounds := 0

	for wl.Len() != 0 {
		i := wl.pop()
		rounds++

		in := set.Make[int]()

		edges := g.Preds[i]
		if a.Dir == Backward {
			edges = g.Succs[i]
		}

		for j, e := range edges {
			// the meet always consumes transfer results
			fact := r.Out[e]

			if j == 0 {
				in = fact.Copy()
			} else if a.Meet == Union {
				in.Merge(fact)
			} else {
				in.Intersect(fact)
			}
		}

		out := a.Transfer(i, in)

		if in.Equal(r.In[i]) && out.Equal(r.Out[i]) {
			continue
		}

		r.In[i] = in
		r.Out[i] = out

		dep := g.Succs[i]
		if a.Dir == Backward {
			dep = g.Preds[i]
		}

		for _, d := range dep {
			wl.push(d)
		}
	}

	tr.V("df").Printw("fixed point", "blocks", n, "rounds", rounds)

	return r
}

func (wl *worklist) push(i int) {
	if wl.queued.IsSet(i) {
		return
	}

	wl.queued.Set(i)
	wl.Heap.Push(i)
}

func (wl *worklist) pop() int {
	i := wl.Heap.Pop()
	wl.queued.Clear(i)

	return i
}
