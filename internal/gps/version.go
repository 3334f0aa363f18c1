package gps

import (
	"fmt"

	"github.com/Masterminds/semver/v3"
)

// Version is a parsed, strict SemVer 2.0.0 version: major, minor, patch,
// prerelease identifiers and build metadata. Comparison ignores build
// metadata; prerelease ordering is lexicographic over dot-separated
// identifiers, with numeric identifiers compared numerically, per the
// SemVer 2.0.0 spec.
type Version struct {
	sv *semver.Version
}

// ParseVersion parses s as strict SemVer 2.0.0. format(parse(s)) == s for
// every canonical SemVer string (spec §8 round-trip property).
func ParseVersion(s string) (Version, error) {
	sv, err := semver.StrictNewVersion(s)
	if err != nil {
		return Version{}, fmt.Errorf("invalid version %q: %s", s, err)
	}
	return Version{sv: sv}, nil
}

// String formats the version back to its canonical SemVer 2.0.0 string.
func (v Version) String() string {
	if v.sv == nil {
		return ""
	}
	return v.sv.String()
}

// Major, Minor, Patch expose the numeric SemVer components.
func (v Version) Major() uint64 { return v.sv.Major() }
func (v Version) Minor() uint64 { return v.sv.Minor() }
func (v Version) Patch() uint64 { return v.sv.Patch() }

// Prerelease returns the dot-separated prerelease identifier string, or ""
// if the version has none.
func (v Version) Prerelease() string { return v.sv.Prerelease() }

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// o, ignoring build metadata, per SemVer 2.0.0 ordering rules.
func (v Version) Compare(o Version) int {
	return v.sv.Compare(o.sv)
}

// Less reports v < o.
func (v Version) Less(o Version) bool { return v.Compare(o) < 0 }

// Equal reports v == o (ignoring build metadata, as SemVer mandates).
func (v Version) Equal(o Version) bool { return v.Compare(o) == 0 }

// IsZero reports whether v is the unparsed zero value.
func (v Version) IsZero() bool { return v.sv == nil }

// Revision is an opaque, byte-exact source-control revision identifier
// (e.g. a git commit hash). Revisions compare only for exact equality and
// never intersect with a version range, except the trivial empty case.
type Revision string

// Branch is an opaque, named source-control ref. Like Revision, branches
// are equality-only constraints with no intersection against ranges.
type Branch string
