package main

import (
	"context"
	"flag"

	"github.com/quillpkg/quill/internal/reconcile"
)

const updateShortHelp = `Re-resolve the project's dependencies, ignoring existing pins`
const updateLongHelp = `
Re-runs the resolver, ignoring the pin already recorded for each named
package (or every pin, with no arguments), and applies the result.
`

type updateCommand struct {
	downgrade bool
}

func (cmd *updateCommand) Name() string      { return "update" }
func (cmd *updateCommand) Args() string      { return "[package...]" }
func (cmd *updateCommand) ShortHelp() string { return updateShortHelp }
func (cmd *updateCommand) LongHelp() string  { return updateLongHelp }
func (cmd *updateCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.downgrade, "downgrade", false, "prefer the lowest allowed version instead of the highest")
}

func (cmd *updateCommand) Run(ctx *Ctx, args []string) error {
	ws, closeWS, err := ctx.openWorkspace()
	if err != nil {
		return err
	}
	defer closeWS()

	if err := ws.Load(); err != nil {
		return err
	}

	opts := reconcile.ResolveOptions{Downgrade: cmd.downgrade}
	if len(args) == 0 {
		opts.ChangeAll = true
	} else {
		opts.Change = identitiesFor(args)
	}

	bg := context.Background()
	if err := ws.Resolve(bg, opts); err != nil {
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
