package gps

import "strings"

// versionRange is a half-open interval [Low, High) over the version line.
// A zero-value High (IsZero) means "unbounded above".
type versionRange struct {
	Low, High Version
	// noLow marks that Low is unbounded below (the zero Version sorts
	// below every real version, so this flag disambiguates that from an
	// actual 0.0.0 lower bound).
	noLow bool
	// noHigh marks that High is unbounded above.
	noHigh bool
}

func (r versionRange) contains(v Version) bool {
	if !r.noLow && v.Less(r.Low) {
		return false
	}
	if !r.noHigh && !v.Less(r.High) {
		return false
	}
	return true
}

func (r versionRange) isEmpty() bool {
	if r.noLow || r.noHigh {
		return false
	}
	return !r.Low.Less(r.High)
}

func (r versionRange) overlaps(o versionRange) bool {
	lowOK := r.noLow || o.noHigh || r.Low.Less(o.High)
	highOK := r.noHigh || o.noLow || o.Low.Less(r.High)
	return lowOK && highOK
}

func (r versionRange) String() string {
	var sb strings.Builder
	if r.noLow {
		sb.WriteString("(-inf, ")
	} else {
		sb.WriteString("[" + r.Low.String() + ", ")
	}
	if r.noHigh {
		sb.WriteString("+inf)")
	} else {
		sb.WriteString(r.High.String() + ")")
	}
	return sb.String()
}

// VersionSetSpecifier is a set of versions closed under union, intersection
// and complement: a disjunction of half-open ranges, plus optional exact
// pins for opaque branch/revision constraints. It is the concrete
// representation of the positive half of a PubGrub Term (spec §3, §4.4).
//
// The zero value is the empty set.
type VersionSetSpecifier struct {
	ranges []versionRange
	// single carries exact parsed-Version pins (RequirementExact). These
	// participate fully in range algebra (a singleton is a degenerate
	// range), but are kept as exact Versions rather than synthesized
	// [v, v+epsilon) ranges, since SemVer's version line isn't discrete.
	single []Version
	// exact carries opaque equality-only pins (branches, revisions) that
	// participate in this set but cannot meaningfully intersect with a
	// range, per spec §3 ("Requirement... Branches and revisions are
	// opaque equality-only constraints").
	exact map[string]struct{}
}

// EmptySet is the version set containing nothing.
func EmptySet() VersionSetSpecifier { return VersionSetSpecifier{} }

// AnySet is the version set containing every version.
func AnySet() VersionSetSpecifier {
	return VersionSetSpecifier{ranges: []versionRange{{noLow: true, noHigh: true}}}
}

// NewRangeSet builds a set from a single half-open range [lo, hi).
func NewRangeSet(lo, hi Version) VersionSetSpecifier {
	return VersionSetSpecifier{ranges: []versionRange{{Low: lo, High: hi}}}
}

// NewAtLeastSet builds [lo, +inf).
func NewAtLeastSet(lo Version) VersionSetSpecifier {
	return VersionSetSpecifier{ranges: []versionRange{{Low: lo, noHigh: true}}}
}

// NewBelowSet builds (-inf, hi).
func NewBelowSet(hi Version) VersionSetSpecifier {
	return VersionSetSpecifier{ranges: []versionRange{{High: hi, noLow: true}}}
}

// NewExactSet builds a set containing exactly one opaque value (a branch
// name or revision string).
func NewExactSet(token string) VersionSetSpecifier {
	return VersionSetSpecifier{exact: map[string]struct{}{token: {}}}
}

// NewSingleVersionSet builds a set containing exactly one parsed Version -
// the representation used by RequirementExact (spec §3).
func NewSingleVersionSet(v Version) VersionSetSpecifier {
	return VersionSetSpecifier{single: []Version{v}}
}

// IsEmpty reports whether the set contains no versions and no exact or
// single-version pins.
func (s VersionSetSpecifier) IsEmpty() bool {
	if len(s.single) > 0 {
		return false
	}
	for _, r := range s.ranges {
		if !r.isEmpty() {
			return false
		}
	}
	return len(s.exact) == 0
}

// ContainsVersion reports whether v lies in the set.
func (s VersionSetSpecifier) ContainsVersion(v Version) bool {
	for _, sv := range s.single {
		if sv.Equal(v) {
			return true
		}
	}
	for _, r := range s.ranges {
		if r.contains(v) {
			return true
		}
	}
	return false
}

// unionSingles merges two exact-version pin lists, deduplicating by value.
func unionSingles(a, b []Version) []Version {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(a)+len(b))
	var out []Version
	for _, v := range a {
		if _, ok := seen[v.String()]; !ok {
			seen[v.String()] = struct{}{}
			out = append(out, v)
		}
	}
	for _, v := range b {
		if _, ok := seen[v.String()]; !ok {
			seen[v.String()] = struct{}{}
			out = append(out, v)
		}
	}
	return out
}

func intersectSingleWithRanges(singles []Version, ranges []versionRange) []Version {
	var out []Version
	for _, v := range singles {
		for _, r := range ranges {
			if r.contains(v) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

func intersectSingles(a, b []Version) []Version {
	var out []Version
	for _, v := range a {
		for _, o := range b {
			if v.Equal(o) {
				out = append(out, v)
				break
			}
		}
	}
	return out
}

// ContainsExact reports whether the opaque token (branch/revision) is
// directly present in the set.
func (s VersionSetSpecifier) ContainsExact(token string) bool {
	_, ok := s.exact[token]
	return ok
}

// normalize sorts ranges and merges overlapping/adjacent ones, restoring
// the disjunction-of-ranges normal form invariant after a set operation.
func normalize(rs []versionRange) []versionRange {
	var clean []versionRange
	for _, r := range rs {
		if !r.isEmpty() {
			clean = append(clean, r)
		}
	}
	if len(clean) == 0 {
		return nil
	}

	// insertion sort by Low (noLow sorts first); ranges are few in
	// practice so this stays simple and deterministic.
	for i := 1; i < len(clean); i++ {
		for j := i; j > 0 && rangeLess(clean[j], clean[j-1]); j-- {
			clean[j], clean[j-1] = clean[j-1], clean[j]
		}
	}

	out := clean[:1]
	for _, r := range clean[1:] {
		last := &out[len(out)-1]
		if last.noHigh || (!r.noLow && !last.noHigh && r.Low.Less(last.High)) || (!r.noLow && last.High.Equal(r.Low)) {
			// overlapping or touching: extend.
			if r.noHigh || (!last.noHigh && last.High.Less(r.High)) {
				last.High = r.High
				last.noHigh = r.noHigh
			}
			continue
		}
		out = append(out, r)
	}
	return out
}

func rangeLess(a, b versionRange) bool {
	if a.noLow != b.noLow {
		return a.noLow
	}
	if !a.noLow && !a.Low.Equal(b.Low) {
		return a.Low.Less(b.Low)
	}
	return false
}

// Union returns the set of versions in s or o.
func (s VersionSetSpecifier) Union(o VersionSetSpecifier) VersionSetSpecifier {
	combined := append(append([]versionRange{}, s.ranges...), o.ranges...)
	out := VersionSetSpecifier{ranges: normalize(combined)}
	out.exact = unionExact(s.exact, o.exact)
	merged := unionSingles(s.single, o.single)
	for _, v := range merged {
		if !out.ContainsVersion(v) {
			out.single = append(out.single, v)
		}
	}
	return out
}

// Intersect returns the set of versions in both s and o.
func (s VersionSetSpecifier) Intersect(o VersionSetSpecifier) VersionSetSpecifier {
	var rs []versionRange
	for _, a := range s.ranges {
		for _, b := range o.ranges {
			if r, ok := intersectRange(a, b); ok {
				rs = append(rs, r)
			}
		}
	}
	out := VersionSetSpecifier{ranges: normalize(rs)}
	out.exact = intersectExact(s.exact, o.exact)

	out.single = unionSingles(
		intersectSingleWithRanges(s.single, o.ranges),
		intersectSingleWithRanges(o.single, s.ranges),
	)
	out.single = unionSingles(out.single, intersectSingles(s.single, o.single))
	return out
}

func intersectRange(a, b versionRange) (versionRange, bool) {
	r := versionRange{}

	switch {
	case a.noLow && b.noLow:
		r.noLow = true
	case a.noLow:
		r.Low = b.Low
	case b.noLow:
		r.Low = a.Low
	case a.Low.Less(b.Low):
		r.Low = b.Low
	default:
		r.Low = a.Low
	}

	switch {
	case a.noHigh && b.noHigh:
		r.noHigh = true
	case a.noHigh:
		r.High = b.High
	case b.noHigh:
		r.High = a.High
	case a.High.Less(b.High):
		r.High = a.High
	default:
		r.High = b.High
	}

	if r.isEmpty() {
		return r, false
	}
	return r, true
}

// Complement returns the set of all versions not in s. Exact (opaque) pins
// have no complement under range algebra - revisions/branches are excluded
// from range complements and simply dropped, matching spec §3's statement
// that they "cannot intersect with ranges except the trivial cases".
//
// Single exact-version pins (s.single) are likewise not punched out as
// isolated holes in the complement's ranges: the solver only ever needs
// Complement for range-typed terms derived from dependency constraints,
// never for a bare RequirementExact, so this keeps the range representation
// a plain disjunction of intervals instead of an interval tree with point
// exclusions.
func (s VersionSetSpecifier) Complement() VersionSetSpecifier {
	ranges := normalize(append([]versionRange{}, s.ranges...))
	if len(ranges) == 0 {
		return AnySet()
	}

	var out []versionRange

	// Gap below the first range.
	if !ranges[0].noLow {
		out = append(out, versionRange{noLow: true, High: ranges[0].Low})
	}

	// Gaps between consecutive ranges (normalize guarantees no overlap or
	// touching, so every boundary here is a genuine gap).
	for i := 0; i+1 < len(ranges); i++ {
		if ranges[i].noHigh {
			// Nothing above this range is uncovered; and since ranges are
			// sorted, nothing follows it either.
			break
		}
		out = append(out, versionRange{Low: ranges[i].High, High: ranges[i+1].Low})
	}

	// Gap above the last range.
	last := ranges[len(ranges)-1]
	if !last.noHigh {
		out = append(out, versionRange{Low: last.High, noHigh: true})
	}

	return VersionSetSpecifier{ranges: normalize(out)}
}

// Difference returns versions in s but not in o (s ∩ ¬o).
func (s VersionSetSpecifier) Difference(o VersionSetSpecifier) VersionSetSpecifier {
	out := s.Intersect(o.Complement())
	if len(out.single) == 0 {
		return out
	}
	var kept []Version
	for _, v := range out.single {
		if !o.ContainsVersion(v) {
			kept = append(kept, v)
		}
	}
	out.single = kept
	return out
}

// SetRelation describes how two version sets relate to one another, used by
// the term algebra's `relation` operation (spec §4.4).
type SetRelation int

const (
	// RelationDisjoint means the sets share no versions.
	RelationDisjoint SetRelation = iota
	// RelationOverlap means the sets share some, but not all, versions.
	RelationOverlap
	// RelationSubset means the receiver is entirely contained in the other.
	RelationSubset
)

// Relation classifies the relationship of s to o.
func (s VersionSetSpecifier) Relation(o VersionSetSpecifier) SetRelation {
	singlesOK := true
	for _, v := range s.single {
		if !o.ContainsVersion(v) {
			singlesOK = false
			break
		}
	}
	if s.Intersect(o).IsEmpty() {
		if s.IsEmpty() {
			return RelationSubset
		}
		return RelationDisjoint
	}
	if s.Difference(o).IsEmpty() && setExactSubset(s.exact, o.exact) && singlesOK {
		return RelationSubset
	}
	return RelationOverlap
}

func unionExact(a, b map[string]struct{}) map[string]struct{} {
	if len(a) == 0 && len(b) == 0 {
		return nil
	}
	out := make(map[string]struct{}, len(a)+len(b))
	for k := range a {
		out[k] = struct{}{}
	}
	for k := range b {
		out[k] = struct{}{}
	}
	return out
}

func intersectExact(a, b map[string]struct{}) map[string]struct{} {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	out := make(map[string]struct{})
	for k := range a {
		if _, ok := b[k]; ok {
			out[k] = struct{}{}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func setExactSubset(a, b map[string]struct{}) bool {
	for k := range a {
		if _, ok := b[k]; !ok {
			return false
		}
	}
	return true
}

func (s VersionSetSpecifier) String() string {
	if s.IsEmpty() {
		return "∅"
	}
	var parts []string
	for _, r := range s.ranges {
		parts = append(parts, r.String())
	}
	for _, v := range s.single {
		parts = append(parts, "{"+v.String()+"}")
	}
	for tok := range s.exact {
		parts = append(parts, "="+tok)
	}
	return strings.Join(parts, " ∪ ")
}
