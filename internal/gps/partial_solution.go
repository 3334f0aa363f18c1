package gps

import "errors"

// errNoAllowedVersions is returned internally when deriving a new term would
// leave a package's allowed set empty - the caller (solver.go) turns this
// into a conflict incompatibility rather than treating it as a hard error.
var errNoAllowedVersions = errors.New("gps: derivation leaves no allowed versions")

// assignment is one step recorded in the partial solution: either a decision
// (a concrete version was picked for a package) or a derivation (a term was
// inferred by unit propagation from some Incompatibility).
type assignment struct {
	term          Term
	decision      bool // true: a concrete version pick; false: a derived term
	decisionLevel int
	cause         *Incompatibility // nil for decisions
}

func (a *assignment) isDecision() bool { return a.decision }

// pkgAssignments tracks every assignment touching one package, plus the
// accumulated (intersected) term those assignments jointly imply.
type pkgAssignments struct {
	history []*assignment
	merged  Term
	hasAny  bool
}

// partialSolution is the PubGrub partial solution: an ordered log of
// decisions and derivations, indexed by package for fast term lookup
// (spec §4.4). It is the single source of truth the propagation and
// conflict-resolution loops in solver.go operate against.
type partialSolution struct {
	root Identity

	assignments []*assignment
	byPackage   map[Identity]*pkgAssignments
	// order records first-seen order of packages, so map iteration in
	// unsatisfiedPackage stays deterministic across runs (spec §8's
	// determinism property) instead of depending on Go's randomized map
	// iteration.
	order []Identity

	decisionLevel int
	decisions     map[Identity]Version // identity -> picked version, current level chain
}

func newPartialSolution(root Identity) *partialSolution {
	return &partialSolution{
		root:      root,
		byPackage: make(map[Identity]*pkgAssignments),
		decisions: make(map[Identity]Version),
	}
}

// allowedSet returns the version set currently permitted for identity, given
// every assignment recorded so far (AnySet if nothing constrains it yet).
func (ps *partialSolution) allowedSet(identity Identity) VersionSetSpecifier {
	pa, ok := ps.byPackage[identity]
	if !ok || !pa.hasAny {
		return AnySet()
	}
	return pa.merged.satisfiedSet()
}

func (ps *partialSolution) hasAssignments(identity Identity) bool {
	pa, ok := ps.byPackage[identity]
	return ok && pa.hasAny
}

// addDerivation records a new derived term for term.Identity, intersecting
// it with whatever is already known. Returns the new assignment (nil if the
// derivation was redundant - already implied), whether the allowed set
// changed, and errNoAllowedVersions if the intersection is empty.
func (ps *partialSolution) addDerivation(term Term, cause *Incompatibility) (*assignment, bool, error) {
	pa := ps.pkgEntry(term.Identity)

	merged := term
	if pa.hasAny {
		m, ok := pa.merged.Intersect(term)
		if !ok {
			return nil, false, nil
		}
		merged = m
	}

	if merged.satisfiedSet().IsEmpty() {
		return nil, false, errNoAllowedVersions
	}

	if pa.hasAny && relationEqual(pa.merged, merged) {
		// Redundant: already implied by existing assignments.
		return nil, false, nil
	}

	a := &assignment{term: term, decision: false, decisionLevel: ps.decisionLevel, cause: cause}
	pa.history = append(pa.history, a)
	pa.merged = merged
	pa.hasAny = true
	ps.assignments = append(ps.assignments, a)
	return a, true, nil
}

// decide records that identity was concretely picked at version v, bumping
// the decision level. Returns the resulting assignment.
func (ps *partialSolution) decide(identity Identity, v Version) *assignment {
	ps.decisionLevel++
	term := PositiveTerm(identity, NewSingleVersionSet(v))
	pa := ps.pkgEntry(identity)
	pa.merged = term
	pa.hasAny = true

	a := &assignment{term: term, decision: true, decisionLevel: ps.decisionLevel, cause: nil}
	pa.history = append(pa.history, a)
	ps.assignments = append(ps.assignments, a)
	ps.decisions[identity] = v
	return a
}

func (ps *partialSolution) pkgEntry(identity Identity) *pkgAssignments {
	pa, ok := ps.byPackage[identity]
	if !ok {
		pa = &pkgAssignments{}
		ps.byPackage[identity] = pa
		ps.order = append(ps.order, identity)
	}
	return pa
}

// relationEqual is a cheap structural equality check used only to detect
// obviously-redundant re-derivations; it is conservative (false negatives
// just mean we record a redundant assignment, which is harmless).
func relationEqual(a, b Term) bool {
	return a.Positive == b.Positive && a.Set.String() == b.Set.String()
}

// satisfier finds, for the given incompatibility, the earliest-in-sequence
// assignment after which every term in ic is satisfied by the accumulated
// state - i.e. the assignment "responsible" for the conflict. This is the
// classic PubGrub satisfier search: replay assignments in order, and as soon
// as every term is covered, the most recent contributing assignment is the
// satisfier.
func (ps *partialSolution) satisfier(ic *Incompatibility) *assignment {
	term, ok := relevantTermFor(ic, ps.root)
	_ = term
	_ = ok

	type acc struct {
		merged Term
		hasAny bool
	}
	state := make(map[Identity]*acc)

	satisfiedCount := 0
	need := len(ic.Terms)

	for _, a := range ps.assignments {
		id := a.term.Identity
		if _, relevant := ic.termFor(id); !relevant {
			continue
		}

		st, ok := state[id]
		if !ok {
			st = &acc{}
			state[id] = st
		}
		wasSatisfied := st.hasAny && termSatisfiesRequirement(st.merged, ic)

		merged := a.term
		if st.hasAny {
			if m, ok := st.merged.Intersect(a.term); ok {
				merged = m
			}
		}
		st.merged = merged
		st.hasAny = true

		nowSatisfied := termSatisfiesRequirement(st.merged, ic)
		if nowSatisfied && !wasSatisfied {
			satisfiedCount++
		}
		if nowSatisfied && wasSatisfied {
			continue
		}
		if satisfiedCount >= need {
			return a
		}
	}
	if satisfiedCount >= need {
		if len(ps.assignments) > 0 {
			return ps.assignments[len(ps.assignments)-1]
		}
	}
	return nil
}

// termSatisfiesRequirement reports whether the accumulated term for one
// package already makes ic's term for that package true (i.e. the
// accumulated allowed set is a subset of what ic's term there requires).
func termSatisfiesRequirement(accumulated Term, ic *Incompatibility) bool {
	t, ok := ic.termFor(accumulated.Identity)
	if !ok {
		return false
	}
	return accumulated.satisfiedSet().Relation(t.satisfiedSet()) == RelationSubset
}

func relevantTermFor(ic *Incompatibility, _ Identity) (Term, bool) {
	if len(ic.Terms) == 0 {
		return Term{}, false
	}
	return ic.Terms[0], true
}

// previousDecisionLevel returns the decision level to backjump to: the
// highest level, among assignments relevant to ic other than satisfier
// itself, that is strictly less than satisfier's level (or 0 if none).
func (ps *partialSolution) previousDecisionLevel(ic *Incompatibility, satisfier *assignment) int {
	level := 0
	for _, a := range ps.assignments {
		if a == satisfier {
			break
		}
		if _, relevant := ic.termFor(a.term.Identity); !relevant {
			continue
		}
		if a.decisionLevel < satisfier.decisionLevel && a.decisionLevel > level {
			level = a.decisionLevel
		}
	}
	return level
}

// backtrack discards every assignment made above targetLevel, restoring the
// partial solution to its state at the end of targetLevel.
func (ps *partialSolution) backtrack(targetLevel int) {
	var kept []*assignment
	ps.byPackage = make(map[Identity]*pkgAssignments)
	ps.order = nil
	for _, a := range ps.assignments {
		if a.decisionLevel > targetLevel {
			continue
		}
		kept = append(kept, a)
		pa := ps.pkgEntry(a.term.Identity)
		if pa.hasAny {
			if m, ok := pa.merged.Intersect(a.term); ok {
				pa.merged = m
			}
		} else {
			pa.merged = a.term
		}
		pa.hasAny = true
		pa.history = append(pa.history, a)
	}
	ps.assignments = kept
	ps.decisionLevel = targetLevel

	ps.decisions = make(map[Identity]Version)
	for _, a := range kept {
		if a.decision {
			if v, ok := singleVersionOf(a.term); ok {
				ps.decisions[a.term.Identity] = v
			}
		}
	}
}

func singleVersionOf(t Term) (Version, bool) {
	if !t.Positive || len(t.Set.single) != 1 {
		return Version{}, false
	}
	return t.Set.single[0], true
}

// decidedVersions returns the concrete version picked for every package
// currently decided, for handoff to the solution (spec §4.4's "selected"
// map).
func (ps *partialSolution) decidedVersions() map[Identity]Version {
	out := make(map[Identity]Version, len(ps.decisions))
	for k, v := range ps.decisions {
		out[k] = v
	}
	return out
}

// unsatisfiedPackage returns one package with a non-decided positive
// requirement still outstanding, for the solver's decision-making step
// (spec §4.4's "pick next undecided package"). ok is false once every
// constrained package has a decision.
func (ps *partialSolution) unsatisfiedPackage() (Identity, VersionSetSpecifier, bool) {
	for _, id := range ps.order {
		if _, decided := ps.decisions[id]; decided {
			continue
		}
		pa := ps.byPackage[id]
		if !pa.hasAny || !pa.merged.Positive {
			continue
		}
		allowed := pa.merged.satisfiedSet()
		if allowed.IsEmpty() {
			continue
		}
		return id, allowed, true
	}
	return "", VersionSetSpecifier{}, false
}
