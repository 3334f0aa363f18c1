// Package reconcile drives the workspace state machine: loading a
// manifest, asking the resolver for an assignment, persisting the result
// as pins, and reconciling that result against whatever is actually
// checked out on disk. Shaped after golang-dep's Ctx.Ensure/SolveMeta flow
// in cmd/dep/ensure.go and context.go, but split into explicit, inspectable
// states rather than one monolithic Ensure call, since the workspace
// reconciler (unlike golang-dep's ensure command) exposes edit-mode
// mutation as a standalone operation a caller can invoke between resolves.
package reconcile

import (
	"context"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/quillpkg/quill/internal/gps"
	"github.com/quillpkg/quill/internal/manifest"
)

// State names one point in the reconciler's lifecycle.
type State int

const (
	StateIdle State = iota
	StateLoaded
	StateResolving
	StateResolved
	StateApplied
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoaded:
		return "loaded"
	case StateResolving:
		return "resolving"
	case StateResolved:
		return "resolved"
	case StateApplied:
		return "applied"
	default:
		return "unknown"
	}
}

// Checkouts abstracts the on-disk checkout state the reconciler needs to
// reconcile against - a capability-set interface (spec §9) so tests can
// supply an in-memory fake instead of a real working copy.
type Checkouts interface {
	// Exists reports whether identity has a checkout on disk at all.
	Exists(identity gps.Identity) bool
	// EditInfo reports whether identity's checkout is currently in edit
	// mode and, if so, what branch/revision it's editing.
	EditInfo(identity gps.Identity) (branch gps.Branch, revision gps.Revision, editing bool)
	// HasUncommittedChanges reports local modifications that were never
	// committed.
	HasUncommittedChanges(identity gps.Identity) bool
	// HasUnpushedChanges reports local commits that don't exist upstream.
	HasUnpushedChanges(identity gps.Identity) bool
	// Path returns the on-disk checkout path for identity, for
	// diagnostics.
	Path(identity gps.Identity) string
	// Checkout fetches (or re-fetches) identity and checks out atom.
	Checkout(ctx context.Context, identity gps.Identity, atom gps.Atom) error
	// EnterEdit switches identity's checkout onto branch or revision,
	// whichever is non-empty.
	EnterEdit(ctx context.Context, identity gps.Identity, branch gps.Branch, revision gps.Revision) error
	// LeaveEdit takes identity's checkout out of edit mode, so the next
	// Apply checks its pinned atom out again.
	LeaveEdit(ctx context.Context, identity gps.Identity) error
}

// Workspace is one manifest/pins/checkout directory tree under
// reconciliation.
type Workspace struct {
	root      string
	container gps.PackageContainer
	checkouts Checkouts
	log       *logrus.Entry

	state    State
	manifest *manifest.Manifest
	mirrors  *gps.Mirrors
	pins     *gps.PinsStore
	graph    *gps.DependencyGraph

	// editing tracks identities the caller has put into edit mode during
	// this workspace's lifetime, independent of the solved graph.
	editing map[gps.Identity]editEntry
}

type editEntry struct {
	Branch   gps.Branch
	Revision gps.Revision
}

// NewWorkspace constructs a Workspace rooted at root. container supplies
// version/dependency data for the resolver; checkouts supplies the on-disk
// view the reconciler diffs the solve against.
func NewWorkspace(root string, container gps.PackageContainer, checkouts Checkouts, logger *logrus.Logger) *Workspace {
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Workspace{
		root:      root,
		container: container,
		checkouts: checkouts,
		log:       logger.WithField("component", "reconcile"),
		state:     StateIdle,
		editing:   make(map[gps.Identity]editEntry),
	}
}

// State returns the workspace's current lifecycle state.
func (w *Workspace) State() State { return w.state }

// pinsFileName is the conventional on-disk lockfile name, relative to root.
const pinsFileName = "quill.lock"

// Load reads the root manifest and pins file, transitioning Idle -> Loaded.
func (w *Workspace) Load() error {
	if w.state != StateIdle {
		return errors.Errorf("reconcile: Load called in state %s, want %s", w.state, StateIdle)
	}

	m, err := manifest.ReadFile(w.root + "/" + manifest.FileName)
	if err != nil {
		return errors.Wrap(err, "loading manifest")
	}
	w.manifest = m
	w.mirrors = gps.NewMirrors(m.Mirrors)

	w.pins = gps.NewPinsStore(w.root+"/"+pinsFileName, w.mirrors)
	if err := w.pins.Load(); err != nil {
		return errors.Wrap(err, "loading pins")
	}
	for _, warning := range w.pins.LoadWarnings() {
		w.log.Warn(warning)
	}

	w.state = StateLoaded
	return nil
}

// ResolveOptions configures one Resolve call.
type ResolveOptions struct {
	// Change lists identities whose pin should be ignored (an explicit
	// upgrade request).
	Change []gps.Identity
	// ChangeAll ignores every pin and re-resolves from scratch.
	ChangeAll bool
	Downgrade bool
}

// Resolve computes root terms from the loaded manifest, seeds the resolver
// with pins, and runs it to completion, transitioning
// Loaded -> Resolving -> Resolved.
func (w *Workspace) Resolve(ctx context.Context, opts ResolveOptions) error {
	if w.state != StateLoaded && w.state != StateResolved {
		return errors.Errorf("reconcile: Resolve called in state %s, want %s or %s", w.state, StateLoaded, StateResolved)
	}
	w.state = StateResolving

	root := gps.DeriveIdentity(w.root)
	rootDeps := make([]gps.PackageDependency, 0, len(w.manifest.Dependencies))
	for _, d := range w.manifest.Dependencies {
		req, err := d.ToRequirement()
		if err != nil {
			return err
		}
		identity := gps.DeriveIdentity(w.mirrors.Resolve(d.Location))
		rootDeps = append(rootDeps, gps.PackageDependency{Identity: identity, Requirement: req})
	}

	solver, err := gps.Prepare(gps.SolveParameters{
		Root:      root,
		RootDeps:  rootDeps,
		Container: w.container,
		Pins:      w.pins,
		ToChange:  opts.Change,
		ChangeAll: opts.ChangeAll,
		Downgrade: opts.Downgrade,
		Logger:    w.log.Logger,
	})
	if err != nil {
		return err
	}

	graph, err := solver.Solve(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return &gps.CancelledError{Stage: "resolve"}
		}
		return err
	}

	w.graph = graph
	w.state = StateResolved
	return nil
}

// Graph returns the last resolved dependency graph, if any.
func (w *Workspace) Graph() *gps.DependencyGraph { return w.graph }

// Apply writes the resolved pins and reconciles on-disk checkouts against
// them, transitioning Resolved -> Applied.
func (w *Workspace) Apply(ctx context.Context) error {
	if w.state != StateResolved {
		return errors.Errorf("reconcile: Apply called in state %s, want %s", w.state, StateResolved)
	}

	for _, atom := range w.graph.Atoms() {
		pin, err := w.pinFor(ctx, atom)
		if err != nil {
			return err
		}
		w.pins.Set(pin)
	}

	if err := w.pins.Save(); err != nil {
		return errors.Wrap(err, "saving pins")
	}

	if err := w.reconcileCheckouts(ctx); err != nil {
		return err
	}

	w.state = StateApplied
	return nil
}

// pinFor builds the Pin for a resolved atom. When the container can map a
// version back to its exact checked-out revision, the pin is recorded as a
// source-control pin with that revision attached - required by
// PinsStore.Save, which refuses to persist a source-control pin with no
// revision. Containers that can't supply one (e.g. a plain registry) yield
// a registry-kind pin instead, which carries no such requirement.
func (w *Workspace) pinFor(ctx context.Context, atom gps.Atom) (gps.Pin, error) {
	if rlc, ok := w.container.(gps.RevisionLookupContainer); ok {
		rev, err := rlc.RevisionOf(ctx, atom.Identity, atom.Version)
		if err != nil {
			return gps.Pin{}, errors.Wrapf(err, "resolving revision for %s@%s", atom.Identity, atom.Version)
		}
		ref := gps.NewRemoteSCMReference(string(atom.Identity))
		return gps.Pin{Reference: ref, Version: atom.Version, Revision: rev}, nil
	}

	ref := gps.NewRegistryReference(atom.Identity)
	return gps.Pin{Reference: ref, Version: atom.Version}, nil
}

// reconcileCheckouts walks the resolved graph and brings each on-disk
// checkout into agreement with it, following the reconciliation rules in
// spec §4.5.
func (w *Workspace) reconcileCheckouts(ctx context.Context) error {
	for _, atom := range w.graph.Atoms() {
		if !w.checkouts.Exists(atom.Identity) {
			w.log.Warnf("dependency %q is missing; cloning again", atom.Identity)
			if err := w.checkouts.Checkout(ctx, atom.Identity, atom); err != nil {
				return err
			}
			continue
		}

		if branch, revision, editing := w.checkouts.EditInfo(atom.Identity); editing {
			w.log.Warnf("dependency %q already exists at the edit destination; not checking-out branch/revision %q",
				atom.Identity, editRefString(branch, revision))
			continue
		}

		if w.checkouts.HasUncommittedChanges(atom.Identity) {
			return &gps.UncommittedChangesError{Identity: atom.Identity, Path: w.checkouts.Path(atom.Identity)}
		}
		if w.checkouts.HasUnpushedChanges(atom.Identity) {
			return &gps.UnpushedChangesError{Identity: atom.Identity, Path: w.checkouts.Path(atom.Identity)}
		}

		if err := w.checkouts.Checkout(ctx, atom.Identity, atom); err != nil {
			return err
		}
	}
	return nil
}

func editRefString(branch gps.Branch, revision gps.Revision) string {
	if branch != "" {
		return string(branch)
	}
	return string(revision)
}

// Pin directly records a persisted pin for identity, per spec's
// PinsStore.pin(ref, state) mutation - a standalone operation outside the
// resolve/apply flow, for recording a resolution the caller already knows
// (or trusts) without re-running the solver. Load must have been called
// first.
func (w *Workspace) Pin(identity gps.Identity, version gps.Version, branch gps.Branch, revision gps.Revision) error {
	if w.pins == nil {
		return errors.Errorf("reconcile: Pin called before Load")
	}

	var ref gps.PackageReference
	if revision != "" || branch != "" {
		ref = gps.NewRemoteSCMReference(string(identity))
	} else {
		ref = gps.NewRegistryReference(identity)
	}

	w.pins.Set(gps.Pin{Reference: ref, Version: version, Branch: branch, Revision: revision})
	return errors.Wrap(w.pins.Save(), "saving pins")
}

// Unpin removes identity's persisted pin, per spec's PinsStore.unpin
// mutation.
func (w *Workspace) Unpin(identity gps.Identity) error {
	if w.pins == nil {
		return errors.Errorf("reconcile: Unpin called before Load")
	}
	w.pins.Delete(identity)
	return errors.Wrap(w.pins.Save(), "saving pins")
}

// UnpinAll clears every persisted pin, per spec's PinsStore.unpinAll
// mutation.
func (w *Workspace) UnpinAll() error {
	if w.pins == nil {
		return errors.Errorf("reconcile: UnpinAll called before Load")
	}
	for _, p := range w.pins.All() {
		w.pins.Delete(p.Reference.Identity)
	}
	return errors.Wrap(w.pins.Save(), "saving pins")
}

// EnterEdit puts identity's checkout into edit mode on the given branch or
// revision (exactly one should be non-empty). It requires a clean working
// copy, a branch that doesn't already exist, and (for a revision) a
// revision that does.
func (w *Workspace) EnterEdit(ctx context.Context, identity gps.Identity, branch gps.Branch, revision gps.Revision) error {
	if w.checkouts.HasUncommittedChanges(identity) {
		return &gps.UncommittedChangesError{Identity: identity, Path: w.checkouts.Path(identity)}
	}

	revs, err := w.container.Revisions(ctx, identity)
	if err != nil {
		return err
	}

	if branch != "" {
		for _, r := range revs {
			if r == gps.Revision(branch) {
				return &gps.BranchAlreadyExistsError{Identity: identity, Branch: branch}
			}
		}
	}

	if revision != "" {
		found := false
		for _, r := range revs {
			if r == revision {
				found = true
				break
			}
		}
		if !found {
			return &gps.RevisionDoesNotExistError{Identity: identity, Revision: revision}
		}
	}

	if err := w.checkouts.EnterEdit(ctx, identity, branch, revision); err != nil {
		return err
	}
	w.editing[identity] = editEntry{Branch: branch, Revision: revision}
	return nil
}

// LeaveEdit takes identity out of edit mode; its checkout is put back on
// the pinned atom by the next Apply, not here. identity must currently be
// in edit mode.
func (w *Workspace) LeaveEdit(ctx context.Context, identity gps.Identity) error {
	if _, _, editing := w.checkouts.EditInfo(identity); !editing {
		return &gps.DependencyNotInEditModeError{Identity: identity}
	}
	if err := w.checkouts.LeaveEdit(ctx, identity); err != nil {
		return err
	}
	delete(w.editing, identity)
	return nil
}
