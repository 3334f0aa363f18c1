package main

import (
	"context"
	"flag"

	"github.com/quillpkg/quill/internal/reconcile"
)

const resolveShortHelp = `Resolve the project's dependencies`
const resolveLongHelp = `
Resolves a dependency graph against the manifest, respecting any existing
pins in quill.lock, writes the result back to quill.lock and checks out
each resolved package.

Exits 0 once the workspace reaches the applied state; any error the
reconciler reports (an unsatisfiable constraint set, a dirty checkout, a
cancelled context) is printed and the command exits non-zero.
`

type resolveCommand struct{}

func (cmd *resolveCommand) Name() string      { return "resolve" }
func (cmd *resolveCommand) Args() string      { return "" }
func (cmd *resolveCommand) ShortHelp() string { return resolveShortHelp }
func (cmd *resolveCommand) LongHelp() string  { return resolveLongHelp }
func (cmd *resolveCommand) Register(fs *flag.FlagSet) {}

func (cmd *resolveCommand) Run(ctx *Ctx, args []string) error {
	ws, closeWS, err := ctx.openWorkspace()
	if err != nil {
		return err
	}
	defer closeWS()

	if err := ws.Load(); err != nil {
		return err
	}

	bg := context.Background()
	if err := ws.Resolve(bg, reconcile.ResolveOptions{}); err != nil {
		return err
	}
	if err := ws.Apply(bg); err != nil {
		return err
	}

	for _, atom := range ws.Graph().Atoms() {
		ctx.Out.Printf("%s@%s\n", atom.Identity, atom.Version)
	}
	return nil
}
