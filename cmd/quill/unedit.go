package main

import (
	"context"
	"flag"

	"github.com/quillpkg/quill/internal/gps"
)

const uneditShortHelp = `Take a dependency's checkout out of edit mode`
const uneditLongHelp = `
Leaves edit mode for package. The checkout is restored to its pinned atom
on the next resolve/apply, not immediately by this command.
`

type uneditCommand struct{}

func (cmd *uneditCommand) Name() string      { return "unedit" }
func (cmd *uneditCommand) Args() string      { return "<package>" }
func (cmd *uneditCommand) ShortHelp() string { return uneditShortHelp }
func (cmd *uneditCommand) LongHelp() string  { return uneditLongHelp }
func (cmd *uneditCommand) Register(fs *flag.FlagSet) {}

func (cmd *uneditCommand) Run(ctx *Ctx, args []string) error {
	if len(args) != 1 {
		return errUsage("unedit takes exactly one package argument")
	}

	ws, closeWS, err := ctx.openWorkspace()
	if err != nil {
		return err
	}
	defer closeWS()

	if err := ws.Load(); err != nil {
		return err
	}

	return ws.LeaveEdit(context.Background(), gps.DeriveIdentity(args[0]))
}
