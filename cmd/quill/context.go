package main

import (
	"log"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/quillpkg/quill/internal/cache"
	"github.com/quillpkg/quill/internal/gps"
	"github.com/quillpkg/quill/internal/reconcile"
	"github.com/quillpkg/quill/internal/vcs"
)

// Ctx carries the per-invocation state every subcommand needs, mirroring
// the teacher's dep.Ctx (working directory, log sinks, verbosity).
type Ctx struct {
	WorkingDir string
	Out, Err   *log.Logger
	Verbose    bool
}

// cacheTTL bounds how long a cached version/dependency lookup is trusted
// before the container is asked again.
const cacheTTL = 15 * time.Minute

// openWorkspace wires one reconcile.Workspace rooted at ctx.WorkingDir: a
// VCS-backed container cached through BoltDB, and a Checkouts view over the
// same on-disk checkouts the container fetches into.
func (ctx *Ctx) openWorkspace() (*reconcile.Workspace, func() error, error) {
	logger := logrus.New()
	logger.Out = ctx.Err.Writer()
	if ctx.Verbose {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.WarnLevel)
	}

	pkgDir := filepath.Join(ctx.WorkingDir, ".quill", "pkg")
	container := vcs.New(pkgDir)

	cachePath := filepath.Join(ctx.WorkingDir, ".quill", "cache.db")
	c, err := cache.Open(cachePath, cacheTTL)
	if err != nil {
		return nil, nil, err
	}
	cached := cache.NewCachedContainer(container, c)

	checkouts := vcs.NewCheckouts(container)

	ws := reconcile.NewWorkspace(ctx.WorkingDir, cached, checkouts, logger)
	return ws, c.Close, nil
}

func identitiesFor(args []string) []gps.Identity {
	ids := make([]gps.Identity, len(args))
	for i, a := range args {
		ids[i] = gps.DeriveIdentity(a)
	}
	return ids
}
