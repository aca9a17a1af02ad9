package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler"
	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/target"
)

func main() {
	demoCmd := &cli.Command{
		Name:        "demo",
		Description: "compile a built-in sample module for the given architecture (default amd64)",
		Action:      demoAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "glow",
		Description: "glow compiles ir modules to machine listings",
		Commands: []*cli.Command{
			demoCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func demoAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	arch := target.AMD64

	if len(c.Args) != 0 {
		arch, err = target.ParseArch(c.Args[0])
		if err != nil {
			return errors.Wrap(err, "parse arch")
		}
	}

	m, err := sample()
	if err != nil {
		return errors.Wrap(err, "build sample")
	}

	fmt.Printf("%s\n", m)

	obj, err := compiler.Compile(ctx, arch, m)
	if err != nil {
		return errors.Wrap(err, "compile")
	}

	fmt.Printf("%s", obj)

	return nil
}

// sample builds a module with a straight-line function and a diamond:
//
//	func add(a, b) { return a + b }
//	func clamp(x) { if x < 100 { r = x } else { r = 100 }; return r }
func sample() (*ir.Module, error) {
	m := ir.NewModule("demo")
	b := ir.NewBuilder(m)

	i64 := b.Type(ir.TypeInt, "i64", 8)
	i1 := b.Type(ir.TypeInt, "i1", 1)

	f := b.Func("add", i64, ir.Param{Name: "a", Type: i64}, ir.Param{Name: "b", Type: i64})
	b.Block("entry")

	a, _ := f.Value("a")
	bb, _ := f.Value("b")

	sum, err := b.Emit(ir.Add, i64, "sum", a, bb)
	if err != nil {
		return nil, errors.Wrap(err, "add")
	}

	_, err = b.Ret(sum)
	if err != nil {
		return nil, errors.Wrap(err, "ret")
	}

	f = b.Func("clamp", i64, ir.Param{Name: "x", Type: i64})

	entry := b.Block("entry")
	then := b.Block("small")
	els := b.Block("big")
	join := b.Block("join")

	x, _ := f.Value("x")

	b.SetBlock(entry)

	lim := b.Const(i64, 100)

	cond, err := b.Emit(ir.CmpLT, i1, "cond", x, lim)
	if err != nil {
		return nil, errors.Wrap(err, "cmp")
	}

	_, err = b.BranchIf(cond, then, els)
	if err != nil {
		return nil, errors.Wrap(err, "br.cond")
	}

	b.SetBlock(then)

	small, err := b.Emit(ir.Add, i64, "small.v", x, b.Const(i64, 0))
	if err != nil {
		return nil, errors.Wrap(err, "then")
	}

	_, err = b.Branch(join)
	if err != nil {
		return nil, errors.Wrap(err, "br")
	}

	b.SetBlock(els)

	big, err := b.Emit(ir.Add, i64, "big.v", lim, b.Const(i64, 0))
	if err != nil {
		return nil, errors.Wrap(err, "else")
	}

	_, err = b.Branch(join)
	if err != nil {
		return nil, errors.Wrap(err, "br")
	}

	b.SetBlock(join)

	r, err := b.PhiOf(i64, "r", []ir.Value{small, big}, []int{then, els})
	if err != nil {
		return nil, errors.Wrap(err, "phi")
	}

	_, err = b.Ret(r)
	if err != nil {
		return nil, errors.Wrap(err, "ret")
	}

	return m, nil
}
