package classifier

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/quillpkg/quill/internal/gps"
)

func mustVersion(t *testing.T, s string) gps.Version {
	t.Helper()
	v, err := gps.ParseVersion(s)
	if err != nil {
		t.Fatalf("parsing version %q: %v", s, err)
	}
	return v
}

func writeFile(t *testing.T, root, rel string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestClassifyDirectoryWithExtension(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "some/hello.swift")
	writeFile(t, root, "some.thing/hello.txt")

	target := Target{
		Name:         "Foo",
		Root:         root,
		ToolsVersion: mustVersion(t, "5.3.0"),
		Local:        true,
	}

	res, err := Classify(target)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	all := append(append(append([]string{}, res.Sources...), res.Resources...), res.Others...)
	got := map[string]bool{}
	for _, p := range all {
		got[p] = true
	}
	want := []string{"some.thing", "some/hello.swift"}
	for _, p := range want {
		if !got[p] {
			t.Errorf("expected %q in classification, got %v", p, all)
		}
	}
	if len(all) != len(want) {
		t.Errorf("expected exactly %v, got %v", want, all)
	}
}

func TestClassifyResourceConflict(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Resources/foo.txt")
	writeFile(t, root, "Resources/Sub/foo.txt")

	target := Target{
		Name: "Foo",
		Root: root,
		Resources: []ResourceDeclaration{
			{Rule: ResourceProcess, Path: "Resources"},
		},
		Local: true,
	}

	res, err := Classify(target)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var found bool
	var infos int
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityError && d.Message == "multiple resources named 'foo.txt' in target 'Foo'" {
			found = true
		}
		if d.Severity == SeverityInfo {
			infos++
		}
	}
	if !found {
		t.Fatalf("expected conflict diagnostic, got %+v", res.Diagnostics)
	}
	if infos != 2 {
		t.Fatalf("expected 2 info diagnostics naming offending paths, got %d", infos)
	}
	if len(res.Resources) != 0 {
		t.Fatalf("conflicting resource should not also appear in Resources, got %v", res.Resources)
	}
}

func TestClassifyExcludesAndBuckets(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.go")
	writeFile(t, root, "include/api.h")
	writeFile(t, root, "ignored/skip.go")
	writeFile(t, root, "README.md")

	target := Target{
		Name:              "Foo",
		Root:              root,
		Excludes:          []string{"ignored"},
		PublicHeadersPath: "include",
		Local:             true,
	}

	res, err := Classify(target)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	if len(res.Sources) != 1 || res.Sources[0] != "main.go" {
		t.Errorf("expected sources=[main.go], got %v", res.Sources)
	}
	if len(res.Headers) != 1 || res.Headers[0] != "include/api.h" {
		t.Errorf("expected headers=[include/api.h], got %v", res.Headers)
	}
	if len(res.Others) != 1 || res.Others[0] != "README.md" {
		t.Errorf("expected others=[README.md], got %v", res.Others)
	}
	for _, p := range append(append(res.Sources, res.Resources...), res.Others...) {
		if p == "ignored/skip.go" {
			t.Errorf("excluded path leaked into classification: %v", p)
		}
	}
}

func TestClassifyLocalizationSubdirectoryForbidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "en.lproj/Localizable.strings")
	writeFile(t, root, "en.lproj/nested/extra.strings")

	target := Target{
		Name:         "Foo",
		Root:         root,
		ToolsVersion: mustVersion(t, "5.3.0"),
		Local:        true,
	}

	res, err := Classify(target)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}

	var found bool
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected an error diagnostic for nested lproj directory, got %+v", res.Diagnostics)
	}
}

func TestClassifyInfoPlistForbidden(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "Info.plist")

	res, err := Classify(Target{Name: "Foo", Root: root, Local: true})
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	var found bool
	for _, d := range res.Diagnostics {
		if d.Severity == SeverityError {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected top-level Info.plist to be rejected, got %+v", res.Diagnostics)
	}
}
