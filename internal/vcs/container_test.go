package vcs

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quillpkg/quill/internal/gps"
)

func TestSanitizeKeepsOnlyLowercaseAlnum(t *testing.T) {
	cases := map[string]string{
		"github.com/foo/bar": "github_com_foo_bar",
		"example.com/a.b-c":  "example_com_a_b_c",
		"github.com/Foo/Bar": "github_com__oo__ar",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestReadManifestDepsMissingManifestIsNotAnError(t *testing.T) {
	c := New(t.TempDir())
	deps, err := c.readManifestDeps(t.TempDir())
	if err != nil {
		t.Fatalf("expected a missing manifest to be treated as zero dependencies: %v", err)
	}
	if len(deps) != 0 {
		t.Fatalf("expected no dependencies, got %d", len(deps))
	}
}

func TestReadManifestDepsParsesDeclaredDependencies(t *testing.T) {
	dir := t.TempDir()
	body := "[dependencies.\"example.com/bar\"]\nversion = \"^1.0.0\"\n"
	if err := os.WriteFile(filepath.Join(dir, "quill.toml"), []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	c := New(t.TempDir())
	deps, err := c.readManifestDeps(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(deps) != 1 || deps[0].Identity != gps.Identity("example.com/bar") {
		t.Fatalf("unexpected deps: %+v", deps)
	}
}

func TestCheckoutsExistsReflectsLocalPath(t *testing.T) {
	workspace := t.TempDir()
	container := New(workspace)
	checkouts := NewCheckouts(container)

	identity := gps.Identity("example.com/foo")
	if checkouts.Exists(identity) {
		t.Fatal("expected Exists to be false before any checkout")
	}

	if err := os.MkdirAll(checkouts.Path(identity), 0o755); err != nil {
		t.Fatal(err)
	}
	if !checkouts.Exists(identity) {
		t.Fatal("expected Exists to be true once the checkout directory exists")
	}
}

func TestCheckoutsEditInfoDefaultsToNotEditing(t *testing.T) {
	checkouts := NewCheckouts(New(t.TempDir()))
	branch, revision, editing := checkouts.EditInfo(gps.Identity("example.com/foo"))
	if editing || branch != "" || revision != "" {
		t.Fatalf("expected no edit state before EnterEdit, got branch=%q revision=%q editing=%v", branch, revision, editing)
	}
}
