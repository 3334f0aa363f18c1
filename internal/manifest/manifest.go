// Package manifest reads and writes the root project manifest: declared
// dependencies, mirrors and target sources rules, in TOML. Modeled on
// golang-dep's toml.go/manifest.go pairing (rawManifest + possibleProps),
// generalized from JSON to TOML (matching pelletier/go-toml, which is
// already in the dependency stack for the mirrors/registry tables) and
// extended with [mirrors] and [[target]].
package manifest

import (
	"io"
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/gps"
)

// FileName is the manifest's conventional on-disk name.
const FileName = "quill.toml"

// Dependency is one declared dependency entry: exactly one of Version,
// Branch, Revision, or Exact should be set, matching Requirement's variants
// (spec §3).
type Dependency struct {
	Location string
	Version  string
	Branch   string
	Revision string
	Exact    string
}

// ToRequirement converts a parsed Dependency into a gps.Requirement.
func (d Dependency) ToRequirement() (gps.Requirement, error) {
	switch {
	case d.Branch != "":
		return gps.NewBranchRequirement(gps.Branch(d.Branch)), nil
	case d.Revision != "":
		return gps.NewRevisionRequirement(gps.Revision(d.Revision)), nil
	case d.Exact != "":
		v, err := gps.ParseVersion(d.Exact)
		if err != nil {
			return gps.Requirement{}, errors.Wrapf(err, "dependency %q has invalid exact version", d.Location)
		}
		return gps.NewExactRequirement(v), nil
	case d.Version != "":
		set, err := ParseVersionConstraint(d.Version)
		if err != nil {
			return gps.Requirement{}, errors.Wrapf(err, "dependency %q has invalid version constraint", d.Location)
		}
		return gps.NewRangeRequirement(set), nil
	default:
		return gps.UnversionedRequirement(), nil
	}
}

// TargetRule is one `[[target]]` entry configuring the sources classifier
// for a single target directory (spec's target-sources classifier module).
type TargetRule struct {
	Name          string
	Path          string
	Excludes      []string
	ToolsVersion  string
}

// Manifest is the parsed root manifest.
type Manifest struct {
	Dependencies []Dependency
	Mirrors      map[string]string
	Targets      []TargetRule
}

type rawManifest struct {
	Dependencies map[string]rawDependency `toml:"dependencies"`
	Mirrors      map[string]string        `toml:"mirrors"`
	Target       []rawTarget              `toml:"target"`
}

type rawDependency struct {
	Version  string `toml:"version"`
	Branch   string `toml:"branch"`
	Revision string `toml:"revision"`
	Exact    string `toml:"exact"`
}

type rawTarget struct {
	Name         string   `toml:"name"`
	Path         string   `toml:"path"`
	Excludes     []string `toml:"excludes"`
	ToolsVersion string   `toml:"toolsVersion"`
}

// Read parses a manifest from r.
func Read(r io.Reader) (*Manifest, error) {
	tree, err := toml.LoadReader(r)
	if err != nil {
		return nil, errors.Wrap(err, "parsing manifest as TOML")
	}

	var raw rawManifest
	if err := tree.Unmarshal(&raw); err != nil {
		return nil, errors.Wrap(err, "mapping manifest TOML")
	}

	m := &Manifest{Mirrors: raw.Mirrors}
	for loc, rd := range raw.Dependencies {
		m.Dependencies = append(m.Dependencies, Dependency{
			Location: loc,
			Version:  rd.Version,
			Branch:   rd.Branch,
			Revision: rd.Revision,
			Exact:    rd.Exact,
		})
	}
	for _, rt := range raw.Target {
		m.Targets = append(m.Targets, TargetRule{
			Name:         rt.Name,
			Path:         rt.Path,
			Excludes:     rt.Excludes,
			ToolsVersion: rt.ToolsVersion,
		})
	}
	return m, nil
}

// ReadFile opens and parses the manifest at path.
func ReadFile(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest %s", path)
	}
	defer f.Close()
	return Read(f)
}

// Write serializes m back to TOML.
func (m *Manifest) Write(w io.Writer) error {
	raw := rawManifest{
		Dependencies: make(map[string]rawDependency, len(m.Dependencies)),
		Mirrors:      m.Mirrors,
	}
	for _, d := range m.Dependencies {
		raw.Dependencies[d.Location] = rawDependency{
			Version: d.Version, Branch: d.Branch, Revision: d.Revision, Exact: d.Exact,
		}
	}
	for _, t := range m.Targets {
		raw.Target = append(raw.Target, rawTarget{
			Name: t.Name, Path: t.Path, Excludes: t.Excludes, ToolsVersion: t.ToolsVersion,
		})
	}

	data, err := toml.Marshal(raw)
	if err != nil {
		return errors.Wrap(err, "marshaling manifest to TOML")
	}
	_, err = w.Write(data)
	return err
}
