// Package vcs implements the gps.PackageContainer backed by a real source
// control checkout, via Masterminds/vcs - the same library golang-dep wraps
// in vcs_repo.go/vcs_source.go for Get/Update/tag listing. Where golang-dep
// shells out to per-VCS CLI tools directly for some operations (doListVersions
// calling `git ls-remote`), this container goes through Masterminds/vcs's
// Repo interface uniformly, since it already exposes Tags()/Branches() and
// checkout operations across git/hg/bzr/svn.
package vcs

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	vcslib "github.com/Masterminds/vcs"
	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/gps"
	"github.com/quillpkg/quill/internal/manifest"
)

// Container resolves package identities to clone URLs, checking them out
// under a shared workspace directory and reading their manifest to answer
// Dependencies queries.
type Container struct {
	workspaceDir string

	mu     sync.Mutex
	repos  map[gps.Identity]vcslib.Repo
}

// New builds a Container that checks out repositories under workspaceDir
// (one subdirectory per identity).
func New(workspaceDir string) *Container {
	return &Container{workspaceDir: workspaceDir, repos: make(map[gps.Identity]vcslib.Repo)}
}

func (c *Container) repoFor(identity gps.Identity, remote string) (vcslib.Repo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r, ok := c.repos[identity]; ok {
		return r, nil
	}

	local := filepath.Join(c.workspaceDir, sanitize(string(identity)))
	r, err := vcslib.NewRepo(remote, local)
	if err != nil {
		return nil, errors.Wrapf(err, "preparing vcs repo for %s", identity)
	}

	if _, err := os.Stat(local); os.IsNotExist(err) {
		if err := r.Get(); err != nil {
			return nil, errors.Wrapf(err, "cloning %s", remote)
		}
	} else if err := r.Update(); err != nil {
		return nil, errors.Wrapf(err, "updating checkout of %s", remote)
	}

	c.repos[identity] = r
	return r, nil
}

func sanitize(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '_')
		}
	}
	return string(out)
}

// Versions returns every tag parseable as a strict SemVer version.
func (c *Container) Versions(ctx context.Context, identity gps.Identity) ([]gps.Version, error) {
	r, err := c.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return nil, err
	}

	tags, err := r.Tags()
	if err != nil {
		return nil, errors.Wrapf(err, "listing tags for %s", identity)
	}

	var out []gps.Version
	for _, t := range tags {
		v, err := gps.ParseVersion(t)
		if err != nil {
			continue // non-SemVer tags (release notes, etc.) are simply not versions
		}
		out = append(out, v)
	}
	return out, nil
}

// Revisions returns every branch known for identity.
func (c *Container) Revisions(ctx context.Context, identity gps.Identity) ([]gps.Revision, error) {
	r, err := c.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return nil, err
	}
	branches, err := r.Branches()
	if err != nil {
		return nil, errors.Wrapf(err, "listing branches for %s", identity)
	}
	out := make([]gps.Revision, len(branches))
	for i, b := range branches {
		out[i] = gps.Revision(b)
	}
	return out, nil
}

// Dependencies checks out v and reads its manifest file to list declared
// dependencies.
func (c *Container) Dependencies(ctx context.Context, identity gps.Identity, v gps.Version) ([]gps.PackageDependency, error) {
	r, err := c.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return nil, err
	}
	if err := r.UpdateVersion(v.String()); err != nil {
		return nil, errors.Wrapf(err, "checking out %s@%s", identity, v)
	}
	return c.readManifestDeps(r.LocalPath())
}

// DependenciesAt checks out a bare revision/branch and reads its manifest.
func (c *Container) DependenciesAt(ctx context.Context, identity gps.Identity, rev gps.Revision) ([]gps.PackageDependency, error) {
	r, err := c.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return nil, err
	}
	if err := r.UpdateVersion(string(rev)); err != nil {
		return nil, errors.Wrapf(err, "checking out %s@%s", identity, rev)
	}
	return c.readManifestDeps(r.LocalPath())
}

// RevisionOf checks out v and returns the exact revision it resolves to,
// satisfying gps.RevisionLookupContainer so a pin recorded against v always
// carries a reproducible revision.
func (c *Container) RevisionOf(ctx context.Context, identity gps.Identity, v gps.Version) (gps.Revision, error) {
	r, err := c.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return "", err
	}
	if err := r.UpdateVersion(v.String()); err != nil {
		return "", errors.Wrapf(err, "checking out %s@%s", identity, v)
	}
	rev, err := r.Version()
	if err != nil {
		return "", errors.Wrapf(err, "reading checked-out revision of %s@%s", identity, v)
	}
	return gps.Revision(rev), nil
}

func (c *Container) readManifestDeps(localPath string) ([]gps.PackageDependency, error) {
	path := filepath.Join(localPath, manifest.FileName)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}

	m, err := manifest.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading manifest at %s", path)
	}

	deps := make([]gps.PackageDependency, 0, len(m.Dependencies))
	for _, d := range m.Dependencies {
		req, err := d.ToRequirement()
		if err != nil {
			return nil, err
		}
		deps = append(deps, gps.PackageDependency{
			Identity:    gps.DeriveIdentity(d.Location),
			Requirement: req,
		})
	}
	return deps, nil
}

// IsToolsVersionCompatible is always true: quill does not (yet) gate on a
// declared minimum toolchain version the way the tools-version rules in the
// classifier do for directory-with-extension handling.
func (c *Container) IsToolsVersionCompatible(ctx context.Context, identity gps.Identity, v gps.Version) (bool, error) {
	return true, nil
}

// editState records that a checkout has been switched onto a branch or
// revision outside the normal resolve/apply flow (spec §4.5's edit-mode
// operations), so reconcileCheckouts can recognize it and leave the
// checkout alone instead of clobbering it back to the pinned atom.
type editState struct {
	Branch   gps.Branch
	Revision gps.Revision
}

// Checkouts implements reconcile.Checkouts structurally (reconcile never
// imports this package - see reconcile.Workspace's constructor), wiring the
// same Masterminds/vcs-backed checkouts this container already maintains
// for Dependencies/DependenciesAt into the reconciler's on-disk view.
type Checkouts struct {
	container *Container

	mu      sync.Mutex
	editing map[gps.Identity]editState
}

// NewCheckouts builds a Checkouts view over container's workspace.
func NewCheckouts(container *Container) *Checkouts {
	return &Checkouts{container: container, editing: make(map[gps.Identity]editState)}
}

func (c *Checkouts) localPath(identity gps.Identity) string {
	return filepath.Join(c.container.workspaceDir, sanitize(string(identity)))
}

// Exists reports whether identity has ever been cloned into the workspace.
func (c *Checkouts) Exists(identity gps.Identity) bool {
	_, err := os.Stat(c.localPath(identity))
	return err == nil
}

// EditInfo reports whatever edit-mode branch/revision this process has put
// identity into. Edit state is tracked in memory for the process lifetime
// only - unlike pins, it isn't yet persisted alongside the lockfile, so a
// fresh process doesn't remember a checkout was left mid-edit.
func (c *Checkouts) EditInfo(identity gps.Identity) (gps.Branch, gps.Revision, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	st, ok := c.editing[identity]
	return st.Branch, st.Revision, ok
}

// HasUncommittedChanges reports local modifications never committed, via
// Masterminds/vcs's Repo.IsDirty.
func (c *Checkouts) HasUncommittedChanges(identity gps.Identity) bool {
	r, err := c.container.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return false
	}
	return r.IsDirty()
}

// HasUnpushedChanges always reports false: Masterminds/vcs exposes no
// tool-agnostic way to compare a local branch tip against its upstream (git
// alone would need an `ahead/behind` shell-out, the way golang-dep's own
// vcs_source.go reaches past the library for some operations), so this
// adapter doesn't attempt it.
func (c *Checkouts) HasUnpushedChanges(identity gps.Identity) bool {
	return false
}

// Path returns the on-disk checkout path for identity.
func (c *Checkouts) Path(identity gps.Identity) string {
	return c.localPath(identity)
}

// Checkout fetches (or re-fetches) identity and checks out atom's version.
func (c *Checkouts) Checkout(ctx context.Context, identity gps.Identity, atom gps.Atom) error {
	r, err := c.container.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return err
	}
	if err := r.UpdateVersion(atom.Version.String()); err != nil {
		return errors.Wrapf(err, "checking out %s@%s", identity, atom.Version)
	}
	return nil
}

// EnterEdit switches identity's checkout onto branch or revision, whichever
// is non-empty, and records the edit so EditInfo/LeaveEdit can see it.
func (c *Checkouts) EnterEdit(ctx context.Context, identity gps.Identity, branch gps.Branch, revision gps.Revision) error {
	r, err := c.container.repoFor(identity, "https://"+string(identity))
	if err != nil {
		return err
	}
	ref := string(branch)
	if ref == "" {
		ref = string(revision)
	}
	if err := r.UpdateVersion(ref); err != nil {
		return errors.Wrapf(err, "entering edit mode for %s at %s", identity, ref)
	}

	c.mu.Lock()
	c.editing[identity] = editState{Branch: branch, Revision: revision}
	c.mu.Unlock()
	return nil
}

// LeaveEdit clears identity's edit-mode bookkeeping. The checkout itself is
// restored to its pinned atom on the next reconcileCheckouts pass (driven by
// Workspace.Apply), not here, since leaving edit mode is documented as a
// standalone operation outside the resolve/apply flow.
func (c *Checkouts) LeaveEdit(ctx context.Context, identity gps.Identity) error {
	c.mu.Lock()
	delete(c.editing, identity)
	c.mu.Unlock()
	return nil
}
