package df

import (
	"context"

	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/cfg"
	"github.com/glowlang/glow/compiler/ir"
)

type (
	// Liveness holds per-block live-variable sets. Variables are ssa
	// names interned into dense indices.
	Liveness struct {
		f *ir.Func

		Vars  []string
		index map[string]int

		// In[b] is live at block entry, Out[b] at block exit.
		In  []Set
		Out []Set
	}
)

// Live runs live-variable analysis: backward direction, union meet,
// transfer walking each block's instructions in reverse.
func Live(ctx context.Context, f *ir.Func, g *cfg.Graph) *Liveness {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "liveness", "func", f.Name)
	defer tr.Finish()

	l := &Liveness{
		f:     f,
		index: map[string]int{},
	}

	for _, p := range f.In {
		l.intern(p.Name)
	}

	for _, blk := range f.Blocks {
		for _, v := range blk.Code {
			if name := f.NameOf(v); name != "" {
				l.intern(name)
			}
		}
	}

	r := Run(ctx, g, Analysis{
		Dir:  Backward,
		Meet: Union,

		Transfer: l.transfer,
	})

	// backward: the engine's in set is the block's live-out,
	// the transfer result its live-in.
	l.In = r.Out
	l.Out = r.In

	if tr.If("dump_live") {
		for b := range l.In {
			tr.Printw("live", "block", f.Blocks[b].Name, "in", l.In[b], "out", l.Out[b])
		}
	}

	return l
}

// Var returns the dense index of an ssa name.
func (l *Liveness) Var(name string) (int, bool) {
	i, ok := l.index[name]
	return i, ok
}

func (l *Liveness) intern(name string) int {
	if i, ok := l.index[name]; ok {
		return i
	}

	i := len(l.Vars)
	l.Vars = append(l.Vars, name)
	l.index[name] = i

	return i
}

func (l *Liveness) transfer(b int, in Set) Set {
	s := in.Copy()
	blk := &l.f.Blocks[b]

	for i := len(blk.Code) - 1; i >= 0; i-- {
		v := blk.Code[i]

		if def := l.f.NameOf(v); def != "" {
			s.Clear(l.index[def])
		}

		for _, use := range l.f.Uses(v) {
			s.Set(l.intern(use))
		}
	}

	return s
}

// WalkBlock walks block b's instructions in reverse, calling f with
// each handle and the set of variables live just after it. The set is
// reused between calls; copy it to retain.
func (l *Liveness) WalkBlock(b int, walk func(v ir.Value, live Set) bool) {
	live := l.Out[b].Copy()
	blk := &l.f.Blocks[b]

	for i := len(blk.Code) - 1; i >= 0; i-- {
		v := blk.Code[i]

		if !walk(v, live) {
			return
		}

		if def := l.f.NameOf(v); def != "" {
			if j, ok := l.index[def]; ok {
				live.Clear(j)
			}
		}

		for _, use := range l.f.Uses(v) {
			if j, ok := l.index[use]; ok {
				live.Set(j)
			}
		}
	}
}
