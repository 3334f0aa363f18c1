package gps

import "context"

// PackageDependency is one edge out of a package version: the identity it
// requires, plus the requirement constraining which versions are acceptable.
type PackageDependency struct {
	Identity    Identity
	Requirement Requirement
}

// PackageContainer is the resolver's sole window onto package data (spec
// §4.5): versions(), revisions(), dependencies() and
// isToolsVersionCompatible() form a capability set the solver is entirely
// polymorphic over, mirroring the role golang-dep's sourceGateway/source
// pairing plays behind SourceManager - except here a single small interface
// stands in for that whole coordinator, since quill has exactly one
// container implementation per identity kind (internal/vcs, internal/cache)
// rather than a pool of concurrent fetchers.
type PackageContainer interface {
	// Versions returns every known release version for identity, in no
	// particular order; the solver sorts as needed.
	Versions(ctx context.Context, identity Identity) ([]Version, error)

	// Revisions returns opaque source-control revisions/branches known for
	// identity (empty for registry-only containers).
	Revisions(ctx context.Context, identity Identity) ([]Revision, error)

	// Dependencies returns the dependency edges declared by identity at the
	// given version.
	Dependencies(ctx context.Context, identity Identity, v Version) ([]PackageDependency, error)

	// IsToolsVersionCompatible reports whether the package's declared
	// minimum tools-version at v is satisfiable by the running toolchain;
	// an incompatible version is treated as if it doesn't exist.
	IsToolsVersionCompatible(ctx context.Context, identity Identity, v Version) (bool, error)
}

// RevisionLookupContainer is implemented by containers that can map a
// resolved version back to the exact source-control revision it checks out
// to, so a pin recorded for that version can carry a revision (required by
// PinsStore.Save for any source-control-origin pin).
type RevisionLookupContainer interface {
	PackageContainer

	RevisionOf(ctx context.Context, identity Identity, v Version) (Revision, error)
}

// RevisionContainer is implemented by containers that can resolve a named
// branch or bare revision down to dependency data directly, without going
// through the registry version line (spec §3's Branch/Revision
// requirements).
type RevisionContainer interface {
	PackageContainer

	// DependenciesAt returns the dependency edges declared at a specific
	// revision or branch. Solver does not call it: branch and revision
	// requirements are only matched as opaque tokens, never resolved to a
	// checkout's dependency data.
	DependenciesAt(ctx context.Context, identity Identity, rev Revision) ([]PackageDependency, error)
}
