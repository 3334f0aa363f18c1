package gps

import (
	"context"
	"strings"
	"testing"

	"github.com/quillpkg/quill/internal/manifest"
)

// fakeContainer is an in-memory PackageContainer for solver scenarios,
// mirroring the bestiary fixtures' reliance on a wholly synthetic source of
// version/dependency data rather than a real repository.
type fakeContainer struct {
	versions map[Identity][]Version
	deps     map[Identity]map[string][]PackageDependency
}

func newFakeContainer() *fakeContainer {
	return &fakeContainer{
		versions: make(map[Identity][]Version),
		deps:     make(map[Identity]map[string][]PackageDependency),
	}
}

func (f *fakeContainer) addVersions(id Identity, vs ...string) {
	for _, v := range vs {
		f.versions[id] = append(f.versions[id], mustV(v))
	}
}

func (f *fakeContainer) dependsOn(id Identity, v string, dep Identity, constraint string) {
	if f.deps[id] == nil {
		f.deps[id] = make(map[string][]PackageDependency)
	}
	set, err := manifest.ParseVersionConstraint(constraint)
	if err != nil {
		panic(err)
	}
	f.deps[id][v] = append(f.deps[id][v], PackageDependency{Identity: dep, Requirement: NewRangeRequirement(set)})
}

func (f *fakeContainer) Versions(ctx context.Context, id Identity) ([]Version, error) {
	return f.versions[id], nil
}

func (f *fakeContainer) Revisions(ctx context.Context, id Identity) ([]Revision, error) {
	return nil, nil
}

func (f *fakeContainer) Dependencies(ctx context.Context, id Identity, v Version) ([]PackageDependency, error) {
	return f.deps[id][v.String()], nil
}

func (f *fakeContainer) IsToolsVersionCompatible(ctx context.Context, id Identity, v Version) (bool, error) {
	return true, nil
}

func mustV(s string) Version {
	v, err := ParseVersion(s)
	if err != nil {
		panic(err)
	}
	return v
}

func rootDep(id Identity, constraint string) PackageDependency {
	set, err := manifest.ParseVersionConstraint(constraint)
	if err != nil {
		panic(err)
	}
	return PackageDependency{Identity: id, Requirement: NewRangeRequirement(set)}
}

// S1: roots=[foo], container foo has versions {1.0.0, 1.0.2}; requirement
// ^1.0.0; no pins. Expected: resolved foo=1.0.2.
func TestSolveBasicPinRoundTrip(t *testing.T) {
	foo := Identity("foo")
	c := newFakeContainer()
	c.addVersions(foo, "1.0.0", "1.0.2")

	solver, err := Prepare(SolveParameters{
		Root:      Identity("root"),
		RootDeps:  []PackageDependency{rootDep(foo, "^1.0.0")},
		Container: c,
	})
	if err != nil {
		t.Fatal(err)
	}

	graph, err := solver.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}

	atom, ok := graph.Atom(foo)
	if !ok {
		t.Fatalf("expected %s in resolved graph", foo)
	}
	if atom.Version.String() != "1.0.2" {
		t.Fatalf("expected foo=1.0.2, got %s", atom.Version)
	}
}

// S4: roots require A ^1.0 and B ^1.0; A 1.0 depends on C ^1; B 1.0 depends
// on C ^2; container for C has only {1.0.0, 2.0.0}. Expected: UNSAT.
func TestSolveUnsatisfiableDivergentTransitive(t *testing.T) {
	a, b, cc := Identity("a"), Identity("b"), Identity("c")
	c := newFakeContainer()
	c.addVersions(a, "1.0.0")
	c.addVersions(b, "1.0.0")
	c.addVersions(cc, "1.0.0", "2.0.0")
	c.dependsOn(a, "1.0.0", cc, "^1.0.0")
	c.dependsOn(b, "1.0.0", cc, "^2.0.0")

	solver, err := Prepare(SolveParameters{
		Root:     Identity("root"),
		RootDeps: []PackageDependency{rootDep(a, "^1.0.0"), rootDep(b, "^1.0.0")},
		Container: c,
	})
	if err != nil {
		t.Fatal(err)
	}

	_, err = solver.Solve(context.Background())
	if err == nil {
		t.Fatal("expected an unsatisfiable solve to fail")
	}
	conflictErr, ok := err.(*ConflictError)
	if !ok {
		t.Fatalf("expected *ConflictError, got %T: %v", err, err)
	}
	msg := conflictErr.Incompatibility.String()
	if !strings.Contains(msg, string(a)) || !strings.Contains(msg, string(b)) {
		t.Fatalf("expected derivation chain to mention both a and b, got: %s", msg)
	}
}

// Picking the highest allowed version is the default; -downgrade (wired via
// ResolveOptions.Downgrade in the reconciler) prefers the lowest instead.
func TestSolveDowngradePrefersLowestAllowed(t *testing.T) {
	foo := Identity("foo")
	c := newFakeContainer()
	c.addVersions(foo, "1.0.0", "1.0.2", "1.1.0")

	solver, err := Prepare(SolveParameters{
		Root:      Identity("root"),
		RootDeps:  []PackageDependency{rootDep(foo, "^1.0.0")},
		Container: c,
		Downgrade: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	graph, err := solver.Solve(context.Background())
	if err != nil {
		t.Fatalf("Solve: %v", err)
	}
	atom, _ := graph.Atom(foo)
	if atom.Version.String() != "1.0.0" {
		t.Fatalf("expected the lowest allowed version 1.0.0, got %s", atom.Version)
	}
}

// A pin contradicted by root requirements is discarded silently and
// resolution proceeds with the highest version still satisfying them.
func TestSolveDiscardsContradictedPin(t *testing.T) {
	foo := Identity("foo")
	c := newFakeContainer()
	c.addVersions(foo, "1.0.0", "2.0.0")

	pins := NewPinsStore(t.TempDir()+"/quill.lock", NewMirrors(nil))
	if err := pins.Load(); err != nil {
		t.Fatal(err)
	}
	pins.Set(Pin{Reference: NewRegistryReference(foo), Version: mustV("2.0.0")})

	solver, err := Prepare(SolveParameters{
		Root:      Identity("root"),
		RootDeps:  []PackageDependency{rootDep(foo, "^1.0.0")},
		Container: c,
		Pins:      pins,
	})
	if err != nil {
		t.Fatal(err)
	}

	graph, err := solver.Solve(context.Background())
	if err != nil {
		t.Fatalf("expected the contradicted pin to be discarded, not fail: %v", err)
	}
	atom, _ := graph.Atom(foo)
	if atom.Version.String() != "1.0.0" {
		t.Fatalf("expected foo=1.0.0 once the 2.0.0 pin is discarded, got %s", atom.Version)
	}
}
