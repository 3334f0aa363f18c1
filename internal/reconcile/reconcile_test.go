package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/quillpkg/quill/internal/gps"
)

type fakeContainer struct {
	versions map[gps.Identity][]gps.Version
	deps     map[gps.Identity]map[string][]gps.PackageDependency
	revision gps.Revision
}

func (f *fakeContainer) Versions(ctx context.Context, id gps.Identity) ([]gps.Version, error) {
	return f.versions[id], nil
}

func (f *fakeContainer) Revisions(ctx context.Context, id gps.Identity) ([]gps.Revision, error) {
	return []gps.Revision{"main"}, nil
}

func (f *fakeContainer) Dependencies(ctx context.Context, id gps.Identity, v gps.Version) ([]gps.PackageDependency, error) {
	return f.deps[id][v.String()], nil
}

func (f *fakeContainer) IsToolsVersionCompatible(ctx context.Context, id gps.Identity, v gps.Version) (bool, error) {
	return true, nil
}

func (f *fakeContainer) RevisionOf(ctx context.Context, id gps.Identity, v gps.Version) (gps.Revision, error) {
	return f.revision, nil
}

type fakeCheckouts struct {
	exists  map[gps.Identity]bool
	checked map[gps.Identity]gps.Atom
}

func newFakeCheckouts() *fakeCheckouts {
	return &fakeCheckouts{exists: make(map[gps.Identity]bool), checked: make(map[gps.Identity]gps.Atom)}
}

func (c *fakeCheckouts) Exists(id gps.Identity) bool { return c.exists[id] }
func (c *fakeCheckouts) EditInfo(id gps.Identity) (gps.Branch, gps.Revision, bool) {
	return "", "", false
}
func (c *fakeCheckouts) HasUncommittedChanges(id gps.Identity) bool { return false }
func (c *fakeCheckouts) HasUnpushedChanges(id gps.Identity) bool    { return false }
func (c *fakeCheckouts) Path(id gps.Identity) string                { return string(id) }

func (c *fakeCheckouts) Checkout(ctx context.Context, id gps.Identity, atom gps.Atom) error {
	c.exists[id] = true
	c.checked[id] = atom
	return nil
}
func (c *fakeCheckouts) EnterEdit(ctx context.Context, id gps.Identity, branch gps.Branch, revision gps.Revision) error {
	return nil
}
func (c *fakeCheckouts) LeaveEdit(ctx context.Context, id gps.Identity) error { return nil }

func mustVersion(t *testing.T, s string) gps.Version {
	t.Helper()
	v, err := gps.ParseVersion(s)
	if err != nil {
		t.Fatalf("parsing version %q: %v", s, err)
	}
	return v
}

func writeManifest(t *testing.T, root, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(root, "quill.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWorkspaceLoadResolveApply(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[dependencies.\"example.com/foo\"]\nversion = \"^1.0.0\"\n")

	foo := gps.DeriveIdentity("example.com/foo")
	container := &fakeContainer{
		versions: map[gps.Identity][]gps.Version{
			foo: {mustVersion(t, "1.0.0"), mustVersion(t, "1.0.2")},
		},
		deps:     map[gps.Identity]map[string][]gps.PackageDependency{},
		revision: "deadbeef",
	}
	checkouts := newFakeCheckouts()

	ws := NewWorkspace(root, container, checkouts, nil)
	if ws.State() != StateIdle {
		t.Fatalf("expected initial state idle, got %s", ws.State())
	}

	if err := ws.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if ws.State() != StateLoaded {
		t.Fatalf("expected loaded, got %s", ws.State())
	}

	ctx := context.Background()
	if err := ws.Resolve(ctx, ResolveOptions{}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ws.State() != StateResolved {
		t.Fatalf("expected resolved, got %s", ws.State())
	}

	atom, ok := ws.Graph().Atom(foo)
	if !ok {
		t.Fatalf("expected %s in resolved graph", foo)
	}
	if atom.Version.String() != "1.0.2" {
		t.Fatalf("expected highest version 1.0.2, got %s", atom.Version)
	}

	if err := ws.Apply(ctx); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if ws.State() != StateApplied {
		t.Fatalf("expected applied, got %s", ws.State())
	}
	if !checkouts.exists[foo] {
		t.Fatalf("expected %s to be checked out after Apply", foo)
	}

	if _, err := os.Stat(filepath.Join(root, "quill.lock")); err != nil {
		t.Fatalf("expected a lockfile to be written: %v", err)
	}
}

func TestLeaveEditRequiresEditMode(t *testing.T) {
	root := t.TempDir()
	writeManifest(t, root, "[dependencies]\n")
	ws := NewWorkspace(root, &fakeContainer{}, newFakeCheckouts(), nil)

	err := ws.LeaveEdit(context.Background(), gps.Identity("example.com/foo"))
	var notInEdit *gps.DependencyNotInEditModeError
	if err == nil {
		t.Fatal("expected an error leaving edit mode when never entered")
	}
	if !asDependencyNotInEditMode(err, &notInEdit) {
		t.Fatalf("expected DependencyNotInEditModeError, got %T: %v", err, err)
	}
}

func asDependencyNotInEditMode(err error, target **gps.DependencyNotInEditModeError) bool {
	e, ok := err.(*gps.DependencyNotInEditModeError)
	if !ok {
		return false
	}
	*target = e
	return true
}
