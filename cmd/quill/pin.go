package main

import (
	"flag"

	"github.com/quillpkg/quill/internal/gps"
)

const pinShortHelp = `Manually record a pin for one package`
const pinLongHelp = `
Records a pin for package directly in quill.lock, without running the
resolver - for recording a resolution already known to be correct (e.g. one
produced out of band) rather than recomputed.

-version, -branch and -revision may be combined. Giving -branch or
-revision records a source-control pin, and -branch alone is not enough:
a source-control pin with no revision is rejected on save, so -revision
must accompany -branch.
`

type pinCommand struct {
	version  string
	branch   string
	revision string
}

func (cmd *pinCommand) Name() string      { return "pin" }
func (cmd *pinCommand) Args() string      { return "<package>" }
func (cmd *pinCommand) ShortHelp() string { return pinShortHelp }
func (cmd *pinCommand) LongHelp() string  { return pinLongHelp }
func (cmd *pinCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.version, "version", "", "version to pin")
	fs.StringVar(&cmd.branch, "branch", "", "branch to pin")
	fs.StringVar(&cmd.revision, "revision", "", "revision to pin")
}

func (cmd *pinCommand) Run(ctx *Ctx, args []string) error {
	if len(args) != 1 {
		return errUsage("pin takes exactly one package argument")
	}

	var version gps.Version
	if cmd.version != "" {
		v, err := gps.ParseVersion(cmd.version)
		if err != nil {
			return err
		}
		version = v
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
	return ws.Pin(identity, version, gps.Branch(cmd.branch), gps.Revision(cmd.revision))
}
