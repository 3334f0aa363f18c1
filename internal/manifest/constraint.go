package manifest

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/gps"
)

// ParseVersionConstraint parses a manifest version-constraint string into a
// gps.VersionSetSpecifier.
//
// Grammar (spec §3's range-set syntax):
//
//	constraint := orClause ("||" orClause)*
//	orClause   := andTerm ("," andTerm)*
//	andTerm    := ("^"|"~"|">="|"<="|">"|"<"|"=")? version
//
// Each leaf version token is validated via gps.ParseVersion (strict SemVer,
// itself backed by Masterminds/semver/v3): the set algebra (union across
// "||", intersection across ",") is hand-built in gps.VersionSetSpecifier
// rather than delegated to Masterminds/semver's Constraint type, since that
// type only supports intersection - see the design note in SPEC_FULL.md §3.
func ParseVersionConstraint(s string) (gps.VersionSetSpecifier, error) {
	s = strings.TrimSpace(s)
	if s == "" || s == "*" {
		return gps.AnySet(), nil
	}

	out := gps.EmptySet()
	for i, orClause := range strings.Split(s, "||") {
		clause := gps.AnySet()
		for _, term := range strings.Split(orClause, ",") {
			term = strings.TrimSpace(term)
			if term == "" {
				continue
			}
			set, err := parseTerm(term)
			if err != nil {
				return gps.VersionSetSpecifier{}, err
			}
			clause = clause.Intersect(set)
		}
		if i == 0 {
			out = clause
		} else {
			out = out.Union(clause)
		}
	}
	return out, nil
}

func parseTerm(term string) (gps.VersionSetSpecifier, error) {
	switch {
	case strings.HasPrefix(term, "^"):
		return parseCaret(strings.TrimPrefix(term, "^"))
	case strings.HasPrefix(term, "~"):
		return parseTilde(strings.TrimPrefix(term, "~"))
	case strings.HasPrefix(term, ">="):
		v, err := gps.ParseVersion(strings.TrimSpace(strings.TrimPrefix(term, ">=")))
		if err != nil {
			return gps.VersionSetSpecifier{}, err
		}
		return gps.NewAtLeastSet(v), nil
	case strings.HasPrefix(term, "<="):
		v, err := gps.ParseVersion(strings.TrimSpace(strings.TrimPrefix(term, "<=")))
		if err != nil {
			return gps.VersionSetSpecifier{}, err
		}
		return gps.NewBelowSet(nextPatch(v)), nil
	case strings.HasPrefix(term, ">"):
		v, err := gps.ParseVersion(strings.TrimSpace(strings.TrimPrefix(term, ">")))
		if err != nil {
			return gps.VersionSetSpecifier{}, err
		}
		return gps.NewAtLeastSet(nextPatch(v)), nil
	case strings.HasPrefix(term, "<"):
		v, err := gps.ParseVersion(strings.TrimSpace(strings.TrimPrefix(term, "<")))
		if err != nil {
			return gps.VersionSetSpecifier{}, err
		}
		return gps.NewBelowSet(v), nil
	case strings.HasPrefix(term, "="):
		v, err := gps.ParseVersion(strings.TrimSpace(strings.TrimPrefix(term, "=")))
		if err != nil {
			return gps.VersionSetSpecifier{}, err
		}
		return gps.NewSingleVersionSet(v), nil
	default:
		v, err := gps.ParseVersion(strings.TrimSpace(term))
		if err != nil {
			return gps.VersionSetSpecifier{}, errors.Wrapf(err, "invalid version constraint term %q", term)
		}
		return gps.NewSingleVersionSet(v), nil
	}
}

// parseCaret implements "^x.y.z" as the standard SemVer-compatible caret
// range: allow changes that don't modify the leftmost non-zero component.
func parseCaret(body string) (gps.VersionSetSpecifier, error) {
	v, err := gps.ParseVersion(strings.TrimSpace(body))
	if err != nil {
		return gps.VersionSetSpecifier{}, err
	}
	var upper gps.Version
	switch {
	case v.Major() > 0:
		upper, err = gps.ParseVersion(bump(v.Major()+1, 0, 0))
	case v.Minor() > 0:
		upper, err = gps.ParseVersion(bump(0, v.Minor()+1, 0))
	default:
		upper, err = gps.ParseVersion(bump(0, 0, v.Patch()+1))
	}
	if err != nil {
		return gps.VersionSetSpecifier{}, err
	}
	return gps.NewRangeSet(v, upper), nil
}

// parseTilde implements "~x.y.z" as: allow patch-level changes only
// (bump minor).
func parseTilde(body string) (gps.VersionSetSpecifier, error) {
	v, err := gps.ParseVersion(strings.TrimSpace(body))
	if err != nil {
		return gps.VersionSetSpecifier{}, err
	}
	upper, err := gps.ParseVersion(bump(v.Major(), v.Minor()+1, 0))
	if err != nil {
		return gps.VersionSetSpecifier{}, err
	}
	return gps.NewRangeSet(v, upper), nil
}

func nextPatch(v gps.Version) gps.Version {
	n, err := gps.ParseVersion(bump(v.Major(), v.Minor(), v.Patch()+1))
	if err != nil {
		return v
	}
	return n
}

func bump(major, minor, patch uint64) string {
	return itoa(major) + "." + itoa(minor) + "." + itoa(patch)
}

func itoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}
