package compiler

import (
	"context"

	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/glowlang/glow/compiler/codegen"
	"github.com/glowlang/glow/compiler/ir"
	"github.com/glowlang/glow/compiler/target"
)

// Compile lowers every function of the module to a textual machine
// listing for the architecture.
func Compile(ctx context.Context, arch target.Arch, m *ir.Module) (obj []byte, err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "compile", "module", m.Name, "arch", arch)
	defer tr.Finish("err", &err)

	g, err := codegen.New(arch)
	if err != nil {
		return nil, errors.Wrap(err, "init %v", arch)
	}

	obj, err = g.CompileModule(ctx, nil, m)
	if err != nil {
		return nil, errors.Wrap(err, "compile")
	}

	return obj, nil
}
