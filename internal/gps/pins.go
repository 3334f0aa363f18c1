package gps

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/fs"
)

func readFileBytes(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// Pin is one resolved package's persisted entry in the lockfile (spec §6):
// the exact version (or revision/branch) picked by the last successful
// resolve, plus the location it was fetched from.
type Pin struct {
	Reference PackageReference
	Version   Version
	Revision  Revision
	Branch    Branch
	// Location is the (possibly mirror-resolved) fetch location in effect
	// when this pin was produced; it is unresolved back to its original
	// form on Save.
	Location string
}

const (
	pinsSchemaV1 = 1
	pinsSchemaV2 = 2
)

// currentOriginHash identifies the tools version that produced a saved
// pins file. It is a forward-compat marker only (spec §4.2): Load never
// inspects it, and no correctness decision depends on its value.
const currentOriginHash = "quill/1"

// wireV2 is the canonical on-disk schema (v2, spec §6): identity-keyed,
// with an explicit kind and a nested state object.
type wireV2 struct {
	Version    int         `json:"version"`
	OriginHash string      `json:"originHash"`
	Pins       []wirePinV2 `json:"pins"`
}

type wirePinV2 struct {
	Identity string         `json:"identity"`
	Kind     string         `json:"kind"`
	Location string         `json:"location,omitempty"`
	State    wirePinStateV2 `json:"state"`
}

type wirePinStateV2 struct {
	Version  string `json:"version,omitempty"`
	Branch   string `json:"branch,omitempty"`
	Revision string `json:"revision,omitempty"`
}

// wireV1 is the legacy schema (spec §4.2): `{version:1, object:{pins:[...]}}`,
// with no "kind" field - legacy pins always name a source-control origin.
// PinsStore auto-upgrades this to v2 in memory the first time it's loaded,
// and always saves v2.
type wireV1 struct {
	Version int `json:"version"`
	Object  struct {
		Pins []wirePinV1 `json:"pins"`
	} `json:"object"`
}

type wirePinV1 struct {
	Package       string         `json:"package"`
	RepositoryURL string         `json:"repositoryURL"`
	State         wirePinStateV2 `json:"state"`
}

// v1Identity derives a pin's identity from its legacy "package" field: the
// lowercased basename (spec §4.2) - e.g. "Clang_C" -> "clang_c".
func v1Identity(pkg string) Identity {
	base := pkg
	if idx := strings.LastIndexByte(pkg, '/'); idx >= 0 {
		base = pkg[idx+1:]
	}
	return Identity(strings.ToLower(base))
}

// PinsStore is the persisted identity->Pin map backing the lockfile (spec
// §6): load, resolve mirrors, let the caller read/mutate, unresolve mirrors,
// write back atomically under a filesystem lock. Modeled on golang-dep's
// lock.go + txn_writer.go, generalized past project-only pins to also cover
// registry and local-SCM pins and a schema migration path.
type PinsStore struct {
	path    string
	mirrors *Mirrors
	pins    map[Identity]Pin

	// loadWarnings accumulates non-fatal Load findings - currently just
	// source-control pins accepted without a revision (spec §9's resolved
	// Open Question) - for a caller to surface to the user.
	loadWarnings []string
}

// NewPinsStore opens (without yet loading) a PinsStore at path.
func NewPinsStore(path string, mirrors *Mirrors) *PinsStore {
	return &PinsStore{path: path, mirrors: mirrors, pins: make(map[Identity]Pin)}
}

// Load reads the pins file at path, migrating v1 (legacy) content to the v2
// in-memory representation. A missing file is not an error: it loads as
// empty, matching "no lockfile yet" at first resolve. An unrecognized or
// absent "version" field, or a JSON parse failure, is a MalformedLockfileError
// (spec §4.2, §7): there is no silent fallback between schemas.
func (s *PinsStore) Load() error {
	exists, err := fs.IsRegular(s.path)
	if err != nil {
		return errors.Wrap(err, "checking pins file")
	}
	if !exists {
		s.pins = make(map[Identity]Pin)
		s.loadWarnings = nil
		return nil
	}

	data, err := readFileBytes(s.path)
	if err != nil {
		return errors.Wrap(err, "reading pins file")
	}

	var probe struct {
		Version *int `json:"version"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return &MalformedLockfileError{Path: s.path, Reason: "invalid JSON: " + err.Error()}
	}
	if probe.Version == nil {
		return &MalformedLockfileError{Path: s.path, Reason: `missing "version" field`}
	}

	var pins map[Identity]Pin
	var warnings []string

	switch *probe.Version {
	case pinsSchemaV2:
		var w wireV2
		if err := json.Unmarshal(data, &w); err != nil {
			return &MalformedLockfileError{Path: s.path, Reason: "parsing v2 pins: " + err.Error()}
		}
		pins = make(map[Identity]Pin, len(w.Pins))
		for _, wp := range w.Pins {
			pin, warning, err := wp.toPin()
			if err != nil {
				return &MalformedLockfileError{Path: s.path, Reason: err.Error()}
			}
			if warning != "" {
				warnings = append(warnings, warning)
			}
			pins[pin.Reference.Identity] = pin
		}

	case pinsSchemaV1:
		var legacy wireV1
		if err := json.Unmarshal(data, &legacy); err != nil {
			return &MalformedLockfileError{Path: s.path, Reason: "parsing v1 pins: " + err.Error()}
		}
		pins = make(map[Identity]Pin, len(legacy.Object.Pins))
		for _, wp := range legacy.Object.Pins {
			id := v1Identity(wp.Package)
			ref := PackageReference{Kind: KindRemoteSCM, Identity: id, Location: wp.RepositoryURL}
			pin := Pin{
				Reference: ref,
				Location:  wp.RepositoryURL,
				Branch:    Branch(wp.State.Branch),
				Revision:  Revision(wp.State.Revision),
			}
			if wp.State.Version != "" {
				v, err := ParseVersion(wp.State.Version)
				if err != nil {
					return &MalformedLockfileError{Path: s.path, Reason: fmt.Sprintf("pin %q has invalid version: %v", wp.Package, err)}
				}
				pin.Version = v
			}
			if pin.Revision == "" {
				warnings = append(warnings, fmt.Sprintf("pin %q is a source-control pin with no revision; it will be rejected on next save unless a revision is recorded", id))
			}
			pins[id] = pin
		}

	default:
		return &MalformedLockfileError{Path: s.path, Reason: fmt.Sprintf("unsupported schema version %d", *probe.Version)}
	}

	// Resolve mirror rewriting now that locations are loaded into memory.
	for id, p := range pins {
		p.Location = s.mirrors.Resolve(p.Location)
		p.Reference.Location = s.mirrors.Resolve(p.Reference.Location)
		pins[id] = p
	}

	s.pins = pins
	s.loadWarnings = warnings
	return nil
}

// LoadWarnings returns the non-fatal findings from the most recent Load - in
// particular, source-control pins accepted without a revision (spec §9's
// resolved Open Question: accepted on load, rejected on the next Save).
func (s *PinsStore) LoadWarnings() []string {
	return s.loadWarnings
}

// Get returns the pin for identity, if any.
func (s *PinsStore) Get(identity Identity) (Pin, bool) {
	p, ok := s.pins[identity]
	return p, ok
}

// Set records or replaces the pin for identity.
func (s *PinsStore) Set(p Pin) {
	s.pins[p.Reference.Identity] = p
}

// Delete removes the pin for identity, if present.
func (s *PinsStore) Delete(identity Identity) {
	delete(s.pins, identity)
}

// All returns every pin, sorted by identity for deterministic output.
func (s *PinsStore) All() []Pin {
	out := make([]Pin, 0, len(s.pins))
	for _, p := range s.pins {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Reference.Identity < out[j].Reference.Identity
	})
	return out
}

// Save writes the pins file atomically under a filesystem lock. If there are
// no pins at all, the file is deleted instead of writing an empty document,
// so an empty workspace doesn't carry a vestigial lockfile.
func (s *PinsStore) Save() error {
	lock := fs.NewLock(s.path)
	if err := lock.Acquire(10*time.Second, 50*time.Millisecond); err != nil {
		return errors.Wrap(err, "locking pins file for save")
	}
	defer lock.Release()

	if len(s.pins) == 0 {
		return removeIfExists(s.path)
	}

	w := wireV2{Version: pinsSchemaV2, OriginHash: currentOriginHash}
	for _, p := range s.All() {
		if (p.Reference.Kind == KindLocalSCM || p.Reference.Kind == KindRemoteSCM) && p.Revision == "" {
			return errors.Errorf("refusing to save pins file: %s is a source-control pin with no revision", p.Reference.Identity)
		}
		w.Pins = append(w.Pins, fromPin(p, s.mirrors))
	}

	data, err := json.MarshalIndent(w, "", "  ")
	if err != nil {
		return errors.Wrap(err, "marshaling pins file")
	}
	data = append(data, '\n')

	return fs.AtomicWriteFile(s.path, data, 0o644)
}

// toPin converts a v2 wire pin to its in-memory form. The returned warning
// is non-empty when a source-control-kind pin has no revision: accepted
// here per the resolved Open Question on missing-revision handling, but
// flagged so the caller can surface it, since the next Save rejects it.
func (wp wirePinV2) toPin() (Pin, string, error) {
	kind, ok := ParseReferenceKind(wp.Kind)
	if !ok {
		return Pin{}, "", errors.Errorf("pin %q has unknown reference kind %q", wp.Identity, wp.Kind)
	}
	ref := PackageReference{Kind: kind, Identity: Identity(wp.Identity), Location: wp.Location}

	p := Pin{Reference: ref, Location: wp.Location, Revision: Revision(wp.State.Revision), Branch: Branch(wp.State.Branch)}
	if wp.State.Version != "" {
		v, err := ParseVersion(wp.State.Version)
		if err != nil {
			return Pin{}, "", errors.Wrapf(err, "pin %q has invalid version", wp.Identity)
		}
		p.Version = v
	}

	var warning string
	if (kind == KindLocalSCM || kind == KindRemoteSCM) && p.Revision == "" {
		warning = fmt.Sprintf("pin %q is a source-control pin with no revision; it will be rejected on next save unless a revision is recorded", wp.Identity)
	}
	return p, warning, nil
}

func fromPin(p Pin, mirrors *Mirrors) wirePinV2 {
	return wirePinV2{
		Identity: string(p.Reference.Identity),
		Kind:     p.Reference.Kind.String(),
		Location: mirrors.Unresolve(p.Location),
		State: wirePinStateV2{
			Version:  versionStringOrEmpty(p.Version),
			Revision: string(p.Revision),
			Branch:   string(p.Branch),
		},
	}
}

func versionStringOrEmpty(v Version) string {
	if v.IsZero() {
		return ""
	}
	return v.String()
}
