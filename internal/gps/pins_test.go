package gps

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestPinsStoreSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	store := NewPinsStore(path, NewMirrors(nil))

	foo := Identity("foo")
	v, err := ParseVersion("1.0.2")
	if err != nil {
		t.Fatal(err)
	}
	store.Set(Pin{
		Reference: NewRemoteSCMReference("foo"),
		Version:   v,
		Revision:  "deadbeef",
	})
	if err := store.Save(); err != nil {
		t.Fatalf("Save: %v", err)
	}

	reloaded := NewPinsStore(path, NewMirrors(nil))
	if err := reloaded.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	pin, ok := reloaded.Get(foo)
	if !ok {
		t.Fatal("expected foo to round-trip")
	}
	if pin.Version.String() != "1.0.2" || pin.Revision != "deadbeef" {
		t.Fatalf("unexpected round-tripped pin: %+v", pin)
	}
	if len(reloaded.LoadWarnings()) != 0 {
		t.Fatalf("expected no load warnings for a fully-specified pin, got %v", reloaded.LoadWarnings())
	}
}

func TestPinsStoreEmptyStoreDeletesFileOnSave(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	store := NewPinsStore(path, NewMirrors(nil))
	store.Set(Pin{Reference: NewRegistryReference("foo"), Version: mustV("1.0.0")})
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected lockfile to exist after first save: %v", err)
	}

	store.Delete("foo")
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("expected lockfile to be deleted once empty, stat err = %v", err)
	}
}

func TestPinsStoreSaveRejectsSCMPinWithoutRevision(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	store := NewPinsStore(path, NewMirrors(nil))
	store.Set(Pin{Reference: NewRemoteSCMReference("foo"), Version: mustV("1.0.0")})
	if err := store.Save(); err == nil {
		t.Fatal("expected Save to reject a source-control pin with no revision")
	}
}

// S2 (schema v1 load): spec §8.
func TestPinsStoreLoadsLegacyV1Schema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	body := `{
  "version": 1,
  "object": {
    "pins": [
      { "package": "Clang_C", "repositoryURL": "https://example.com/Clang_C.git",
        "state": { "revision": "90a9c4f", "version": "1.0.2" } },
      { "package": "Commandant", "repositoryURL": "https://example.com/Commandant.git",
        "state": { "revision": "ab12cd3" } }
    ]
  }
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewPinsStore(path, NewMirrors(nil))
	if err := store.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}

	var identities []string
	for _, p := range store.All() {
		identities = append(identities, string(p.Reference.Identity))
	}
	want := []string{"clang_c", "commandant"}
	if len(identities) != len(want) || identities[0] != want[0] || identities[1] != want[1] {
		t.Fatalf("identities = %v, want %v", identities, want)
	}

	clang, ok := store.Get("clang_c")
	if !ok || clang.Version.String() != "1.0.2" || clang.Revision != "90a9c4f" {
		t.Fatalf("unexpected clang_c pin: %+v", clang)
	}
}

func TestPinsStoreV1ToV2Migration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	body := `{
  "version": 1,
  "object": {
    "pins": [
      { "package": "Foo", "repositoryURL": "https://example.com/foo.git",
        "state": { "revision": "abc123", "version": "1.0.0" } }
    ]
  }
}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	store := NewPinsStore(path, NewMirrors(nil))
	if err := store.Load(); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}

	var w wireV2
	if err := json.Unmarshal(data, &w); err != nil {
		t.Fatalf("expected saved file to parse as v2: %v", err)
	}
	if w.Version != pinsSchemaV2 {
		t.Fatalf("expected migrated save to use schema version 2, got %d", w.Version)
	}
	if len(w.Pins) != 1 || w.Pins[0].Identity != "foo" {
		t.Fatalf("expected migrated identity %q, got %+v", "foo", w.Pins)
	}
}

// S3 (mirror indirection): spec §8.
func TestPinsStoreMirrorIndirection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	mirrors := NewMirrors(map[string]string{
		"https://github.com/corporate/foo.git": "https://ghe/team/foo.git",
	})

	store := NewPinsStore(path, mirrors)
	store.Set(Pin{
		Reference: PackageReference{Kind: KindRemoteSCM, Identity: "foo", Location: "https://ghe/team/foo.git"},
		Location:  "https://ghe/team/foo.git",
		Version:   mustV("1.0.0"),
		Revision:  "deadbeef",
	})
	if err := store.Save(); err != nil {
		t.Fatal(err)
	}

	withoutMirrors := NewPinsStore(path, NewMirrors(nil))
	if err := withoutMirrors.Load(); err != nil {
		t.Fatal(err)
	}
	pin, ok := withoutMirrors.Get("foo")
	if !ok || pin.Location != "https://github.com/corporate/foo.git" {
		t.Fatalf("expected the unmirrored original location, got %+v", pin)
	}

	withMirrors := NewPinsStore(path, mirrors)
	if err := withMirrors.Load(); err != nil {
		t.Fatal(err)
	}
	pin, ok = withMirrors.Get("foo")
	if !ok || pin.Location != "https://ghe/team/foo.git" {
		t.Fatalf("expected the mirrored location, got %+v", pin)
	}
}

func TestPinsStoreLoadRejectsMissingVersionField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	if err := os.WriteFile(path, []byte(`{"pins":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewPinsStore(path, NewMirrors(nil))
	err := store.Load()
	if err == nil {
		t.Fatal("expected a missing version field to be rejected")
	}
	if _, ok := err.(*MalformedLockfileError); !ok {
		t.Fatalf("expected *MalformedLockfileError, got %T: %v", err, err)
	}
}

func TestPinsStoreLoadRejectsUnrecognizedVersion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	if err := os.WriteFile(path, []byte(`{"version":99,"pins":[]}`), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewPinsStore(path, NewMirrors(nil))
	if err := store.Load(); err == nil {
		t.Fatal("expected an unrecognized schema version to be rejected")
	}
}

func TestPinsStoreLoadWarnsOnRevisionlessSCMPin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "quill.lock")
	body := `{"version":2,"originHash":"x","pins":[
		{"identity":"foo","kind":"remoteSourceControl","location":"https://example.com/foo.git","state":{"version":"1.0.0"}}
	]}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	store := NewPinsStore(path, NewMirrors(nil))
	if err := store.Load(); err != nil {
		t.Fatalf("expected a revision-less SCM pin to be accepted on load: %v", err)
	}
	if len(store.LoadWarnings()) != 1 {
		t.Fatalf("expected exactly one load warning, got %v", store.LoadWarnings())
	}
}
