package gps

import "strings"

// incompatibilityCause tags why an Incompatibility exists, mirroring the
// contriboss-pubgrub-go reference's cause bookkeeping used for readable
// no-solution error reporting.
type incompatibilityCause uint8

const (
	// causeRoot is the trivial incompatibility {not root} that seeds
	// solving: the root package is always "selected".
	causeRoot incompatibilityCause = iota
	// causeDependency says "if A is selected, B must be in its required set".
	causeDependency
	// causeNoVersions says no version of a package satisfies a term.
	causeNoVersions
	// causeConflict marks an incompatibility derived by resolving two others
	// during conflict analysis; Left/Right name its antecedents.
	causeConflict
)

// Incompatibility is a PubGrub incompatibility: a set of terms that cannot
// all be true simultaneously (spec §4.4). A unit clause over one package,
// once every other term is satisfied, drives unit propagation; a fully
// satisfied incompatibility is a conflict that conflict resolution must
// resolve by backjumping.
type Incompatibility struct {
	Terms []Term
	Cause incompatibilityCause
	Left  *Incompatibility // set when Cause == causeConflict
	Right *Incompatibility // set when Cause == causeConflict
}

// NewRootIncompatibility builds the seed incompatibility {not root}, i.e.
// {root ∉ any version} - "root is never NOT selected" - it forces the root
// package into every solution.
func NewRootIncompatibility(root Identity) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{NegativeTerm(root, AnySet())},
		Cause: causeRoot,
	}
}

// NewDependencyIncompatibility builds "{parent ∈ V, dep ∉ R}" for a single
// dependency edge: parent at version v requiring dep's requirement r. This
// reads as "parent@v and dep-outside-r cannot both hold" - i.e. selecting
// parent@v forces dep into r.
func NewDependencyIncompatibility(parent Identity, at Version, dep Identity, req Requirement) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{
			PositiveTerm(parent, NewSingleVersionSet(at)),
			NegativeTerm(dep, req.ToVersionSet()),
		},
		Cause: causeDependency,
	}
}

// NewNoVersionsIncompatibility builds the single-term incompatibility {term}:
// a direct statement that no version of identity can satisfy term - used
// when the package container reports an empty intersection of available
// versions and a required set.
func NewNoVersionsIncompatibility(term Term) *Incompatibility {
	return &Incompatibility{
		Terms: []Term{term},
		Cause: causeNoVersions,
	}
}

// NewConflictIncompatibility builds a derived incompatibility produced by
// resolving two others (see resolveConflict in solver.go), recording its
// antecedents for --trace style explanation output.
func NewConflictIncompatibility(terms []Term, left, right *Incompatibility) *Incompatibility {
	return &Incompatibility{Terms: terms, Cause: causeConflict, Left: left, Right: right}
}

// termFor returns the term in ic naming identity, if present.
func (ic *Incompatibility) termFor(identity Identity) (Term, bool) {
	for _, t := range ic.Terms {
		if t.Identity == identity {
			return t, true
		}
	}
	return Term{}, false
}

// isFailure reports whether ic is the trivial, unconditionally-true
// incompatibility (an empty term list) - conflict resolution reaching this
// state means the problem has no solution at all.
func (ic *Incompatibility) isFailure() bool {
	return len(ic.Terms) == 0
}

func (ic *Incompatibility) String() string {
	if ic.isFailure() {
		return "<no solution>"
	}
	parts := make([]string, 0, len(ic.Terms))
	for _, t := range ic.Terms {
		parts = append(parts, t.String())
	}
	return strings.Join(parts, ", ")
}
