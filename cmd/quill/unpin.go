package main

import (
	"flag"

	"github.com/quillpkg/quill/internal/gps"
)

const unpinShortHelp = `Remove a recorded pin`
const unpinLongHelp = `
Removes the pin recorded for package from quill.lock. With -all, clears
every pin instead.
`

type unpinCommand struct {
	all bool
}

func (cmd *unpinCommand) Name() string      { return "unpin" }
func (cmd *unpinCommand) Args() string      { return "[package]" }
func (cmd *unpinCommand) ShortHelp() string { return unpinShortHelp }
func (cmd *unpinCommand) LongHelp() string  { return unpinLongHelp }
func (cmd *unpinCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.all, "all", false, "remove every pin")
}

func (cmd *unpinCommand) Run(ctx *Ctx, args []string) error {
	if !cmd.all && len(args) != 1 {
		return errUsage("unpin takes exactly one package argument, or -all")
	}

	ws, closeWS, err := ctx.openWorkspace()
	if err != nil {
		return err
	}
	defer closeWS()

	if err := ws.Load(); err != nil {
		return err
	}

	if cmd.all {
		return ws.UnpinAll()
	}
	return ws.Unpin(gps.DeriveIdentity(args[0]))
}
