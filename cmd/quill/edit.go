package main

import (
	"context"
	"flag"

	"github.com/quillpkg/quill/internal/gps"
)

const editShortHelp = `Put a dependency's checkout into edit mode`
const editLongHelp = `
Switches package's on-disk checkout onto a branch or revision (exactly one
of -branch or -revision must be given) so it can be modified in place,
outside the normal resolve/apply flow. Requires a clean working copy, a
branch that doesn't already exist, and (for -revision) one that does.
`

type editCommand struct {
	branch   string
	revision string
}

func (cmd *editCommand) Name() string      { return "edit" }
func (cmd *editCommand) Args() string      { return "<package>" }
func (cmd *editCommand) ShortHelp() string { return editShortHelp }
func (cmd *editCommand) LongHelp() string  { return editLongHelp }
func (cmd *editCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.branch, "branch", "", "branch to create and switch to")
	fs.StringVar(&cmd.revision, "revision", "", "revision to switch to")
}

func (cmd *editCommand) Run(ctx *Ctx, args []string) error {
	if len(args) != 1 {
		return errUsage("edit takes exactly one package argument")
	}
	if (cmd.branch == "") == (cmd.revision == "") {
		return errUsage("edit requires exactly one of -branch or -revision")
	}

	ws, closeWS, err := ctx.openWorkspace()
	if err != nil {
		return err
	}
	defer closeWS()

	if err := ws.Load(); err != nil {
		return err
	}

	identity := gps.DeriveIdentity(args[0])
	return ws.EnterEdit(context.Background(), identity, gps.Branch(cmd.branch), gps.Revision(cmd.revision))
}
