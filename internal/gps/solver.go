package gps

import (
	"context"
	"sort"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// SolveParameters hold all arguments to a solver run, mirroring the shape of
// golang-dep's SolveParameters: a root identity plus its declared
// dependencies, a container to pull version/dependency data from, an
// optional prior lockfile to prefer versions from, and change/downgrade
// controls.
type SolveParameters struct {
	Root     Identity
	RootDeps []PackageDependency

	Container PackageContainer

	// Pins is the prior lockfile, if any; the solver prefers a pinned
	// version when it's still allowed, so unrelated upgrades don't churn
	// the whole graph on every resolve.
	Pins *PinsStore

	// ToChange lists identities whose pin should be ignored this run (an
	// explicit upgrade request for just those packages).
	ToChange []Identity
	// ChangeAll ignores every pin (a full re-resolve).
	ChangeAll bool

	// Downgrade picks the lowest allowed version instead of the highest,
	// for verifying a package still works against its stated minimums.
	Downgrade bool

	Logger *logrus.Logger
}

func (p SolveParameters) changeSet() map[Identity]bool {
	set := make(map[Identity]bool, len(p.ToChange))
	for _, id := range p.ToChange {
		set[id] = true
	}
	return set
}

// Solver runs one resolution attempt; construct with Prepare.
type Solver struct {
	params  SolveParameters
	log     *logrus.Entry
	attempts int
}

// Prepare validates params and returns a ready-to-run Solver.
func Prepare(params SolveParameters) (*Solver, error) {
	if params.Root == "" {
		return nil, errors.New("gps: SolveParameters.Root is required")
	}
	if params.Container == nil {
		return nil, errors.New("gps: SolveParameters.Container is required")
	}
	logger := params.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetLevel(logrus.WarnLevel)
	}
	return &Solver{params: params, log: logger.WithField("component", "solver")}, nil
}

// Solve runs the PubGrub-style CDCL loop to completion, returning the
// resolved dependency graph or a ConflictError describing why no solution
// exists (spec §4.4).
func (s *Solver) Solve(ctx context.Context) (*DependencyGraph, error) {
	ps := newPartialSolution(s.params.Root)
	incompat := newIncompatibilityIndex()

	incompat.add(NewRootIncompatibility(s.params.Root))
	if _, _, err := ps.addDerivation(PositiveTerm(s.params.Root, AnySet()), nil); err != nil {
		return nil, err
	}
	root := ps.decide(s.params.Root, Version{})
	_ = root

	for _, dep := range s.params.RootDeps {
		ic := &Incompatibility{
			Terms: []Term{
				NegativeTerm(dep.Identity, dep.Requirement.ToVersionSet()),
			},
			Cause: causeDependency,
		}
		incompat.add(ic)
		if _, _, err := ps.addDerivation(NegativeTerm(dep.Identity, dep.Requirement.ToVersionSet()).Negate(), ic); err != nil {
			return nil, err
		}
	}

	next := s.params.Root
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		conflict, err := s.propagate(ctx, ps, incompat, next)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			learned, pivot, rerr := s.resolveConflict(ps, incompat, conflict)
			if rerr != nil {
				return nil, rerr
			}
			incompat.add(learned)
			next = pivot
			continue
		}

		id, allowed, has := ps.unsatisfiedPackage()
		if !has {
			break
		}

		v, ok, err := s.pickVersion(ctx, id, allowed)
		if err != nil {
			return nil, err
		}
		if !ok {
			ic := NewNoVersionsIncompatibility(PositiveTerm(id, allowed))
			incompat.add(ic)
			if _, _, derr := ps.addDerivation(NegativeTerm(id, allowed), ic); derr != nil {
				if !errors.Is(derr, errNoAllowedVersions) {
					return nil, derr
				}
				learned, pivot, rerr := s.resolveConflict(ps, incompat, ic)
				if rerr != nil {
					return nil, rerr
				}
				incompat.add(learned)
				next = pivot
				continue
			}
			next = id
			continue
		}

		s.attempts++
		deps, err := s.params.Container.Dependencies(ctx, id, v)
		if err != nil {
			return nil, err
		}
		for _, dep := range deps {
			ic := NewDependencyIncompatibility(id, v, dep.Identity, dep.Requirement)
			incompat.add(ic)
		}
		ps.decide(id, v)
		next = id
	}

	return s.buildGraph(ps, incompat), nil
}

// propagate performs unit propagation starting from the given package,
// following the contriboss-pubgrub-go reference algorithm: dequeue a
// package, check every incompatibility mentioning it, and either report a
// conflict (every term satisfied) or derive a new term (all-but-one term
// satisfied).
func (s *Solver) propagate(ctx context.Context, ps *partialSolution, incompat *incompatibilityIndex, start Identity) (*Incompatibility, error) {
	queue := []Identity{start}
	queued := map[Identity]bool{start: true}

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		id := queue[0]
		queue = queue[1:]
		delete(queued, id)

		for _, ic := range incompat.forIdentity(id) {
			relation, unsatisfied := evaluateIncompatibility(ps, ic)
			switch relation {
			case relationSatisfied:
				return ic, nil
			case relationAlmostSatisfied:
				if unsatisfied == nil {
					continue
				}
				derived := unsatisfied.Negate()
				a, changed, err := ps.addDerivation(derived, ic)
				if errors.Is(err, errNoAllowedVersions) {
					return ic, nil
				}
				if err != nil {
					return nil, err
				}
				if changed && a != nil && !queued[a.term.Identity] {
					queue = append(queue, a.term.Identity)
					queued[a.term.Identity] = true
				}
			}
		}
	}
	return nil, nil
}

type incompatibilityRelation int

const (
	relationSatisfied incompatibilityRelation = iota
	relationAlmostSatisfied
	relationContradicted
	relationInconclusive
)

func evaluateIncompatibility(ps *partialSolution, ic *Incompatibility) (incompatibilityRelation, *Term) {
	var unsatisfied *Term
	for i := range ic.Terms {
		term := ic.Terms[i]
		allowed := ps.allowedSet(term.Identity)
		rel := relationForTerm(term, allowed)

		switch rel {
		case relationContradicted:
			return relationContradicted, nil
		case relationSatisfied:
			continue
		default:
			if unsatisfied != nil {
				return relationInconclusive, nil
			}
			t := term
			unsatisfied = &t
		}
	}
	if unsatisfied == nil {
		return relationSatisfied, nil
	}
	return relationAlmostSatisfied, unsatisfied
}

func relationForTerm(term Term, allowed VersionSetSpecifier) incompatibilityRelation {
	required := term.satisfiedSet()
	switch allowed.Relation(required) {
	case RelationDisjoint:
		return relationContradicted
	case RelationSubset:
		return relationSatisfied
	default:
		return relationInconclusive
	}
}

// resolveConflict performs the CDCL conflict-resolution / backjump loop,
// ported from the contriboss-pubgrub-go reference's resolveConflict.
func (s *Solver) resolveConflict(ps *partialSolution, incompat *incompatibilityIndex, conflict *Incompatibility) (*Incompatibility, Identity, error) {
	for {
		if conflict.isFailure() {
			return nil, "", &ConflictError{Incompatibility: conflict}
		}
		satisfier := ps.satisfier(conflict)
		if satisfier == nil {
			return nil, "", &ConflictError{Incompatibility: conflict}
		}

		prevLevel := ps.previousDecisionLevel(conflict, satisfier)

		if satisfier.decisionLevel == 0 && satisfier.isDecision() {
			return nil, "", &ConflictError{Incompatibility: conflict}
		}

		if satisfier.isDecision() && prevLevel < satisfier.decisionLevel {
			ps.backtrack(prevLevel)
			return conflict, satisfier.term.Identity, nil
		}

		if satisfier.cause == nil {
			return nil, "", errors.New("gps: derived assignment missing cause during conflict resolution")
		}

		conflict = resolveIncompatibility(conflict, satisfier.cause, satisfier.term.Identity)
	}
}

// resolveIncompatibility merges two incompatibilities that share a pivot
// package, eliminating that package's term from both and merging the rest -
// the clause-learning step of CDCL.
func resolveIncompatibility(conflict, cause *Incompatibility, pivot Identity) *Incompatibility {
	terms := make(map[Identity]Term)
	var order []Identity

	for _, t := range conflict.Terms {
		if t.Identity == pivot {
			continue
		}
		terms[t.Identity] = t
		order = append(order, t.Identity)
	}
	for _, t := range cause.Terms {
		if t.Identity == pivot {
			continue
		}
		if existing, ok := terms[t.Identity]; ok {
			if merged, ok := existing.Intersect(t); ok {
				terms[t.Identity] = merged
				continue
			}
		} else {
			order = append(order, t.Identity)
		}
		terms[t.Identity] = t
	}

	merged := make([]Term, 0, len(order))
	seen := make(map[Identity]bool, len(order))
	for _, id := range order {
		if seen[id] {
			continue
		}
		seen[id] = true
		merged = append(merged, terms[id])
	}

	return NewConflictIncompatibility(merged, conflict, cause)
}

// pickVersion selects the version to try for id: the prior pin if one
// exists, still allowed, and not marked for change; otherwise the
// highest (or, under Downgrade, lowest) available version within allowed
// whose tools version the container reports as compatible.
func (s *Solver) pickVersion(ctx context.Context, id Identity, allowed VersionSetSpecifier) (Version, bool, error) {
	if s.params.Pins != nil && !s.params.changeSet()[id] && !s.params.ChangeAll {
		if pin, ok := s.params.Pins.Get(id); ok && !pin.Version.IsZero() && allowed.ContainsVersion(pin.Version) {
			return pin.Version, true, nil
		}
	}

	versions, err := s.params.Container.Versions(ctx, id)
	if err != nil {
		return Version{}, false, err
	}

	var compatible []Version
	for _, v := range versions {
		ok, err := s.params.Container.IsToolsVersionCompatible(ctx, id, v)
		if err != nil {
			return Version{}, false, err
		}
		if ok {
			compatible = append(compatible, v)
		}
	}
	versions = compatible

	sort.Slice(versions, func(i, j int) bool { return versions[i].Less(versions[j]) })

	if s.params.Downgrade {
		for _, v := range versions {
			if allowed.ContainsVersion(v) {
				return v, true, nil
			}
		}
		return Version{}, false, nil
	}

	for i := len(versions) - 1; i >= 0; i-- {
		if allowed.ContainsVersion(versions[i]) {
			return versions[i], true, nil
		}
	}
	return Version{}, false, nil
}

func (s *Solver) buildGraph(ps *partialSolution, incompat *incompatibilityIndex) *DependencyGraph {
	g := NewDependencyGraph()
	decided := ps.decidedVersions()
	for id, v := range decided {
		if id == s.params.Root {
			continue
		}
		g.AddAtom(Atom{Identity: id, Version: v})
	}

	// Every causeDependency incompatibility is "{parent@v, dep ∉ req}"; for
	// each one whose parent atom actually made it into the final solution,
	// record the edge it justified so the graph can answer "who requires
	// whom, and with what".
	for _, ic := range incompat.all {
		if ic.Cause != causeDependency || len(ic.Terms) != 2 {
			continue
		}
		parent, dep := ic.Terms[0], ic.Terms[1]
		v, ok := decided[parent.Identity]
		if !ok || !parent.Positive || !parent.Set.ContainsVersion(v) {
			continue
		}
		if _, ok := decided[dep.Identity]; !ok && dep.Identity != s.params.Root {
			continue
		}
		// dep is built as NegativeTerm(dep, req): "dep ∉ req" paired with
		// "parent@v" reads as "parent@v forces dep into req" - dep.Set
		// already holds that required set directly.
		g.AddEdge(Edge{From: parent.Identity, To: dep.Identity, Allowed: dep.Set})
	}
	return g
}

// incompatibilityIndex indexes incompatibilities by every package they
// mention, so propagate only has to scan the incompatibilities relevant to
// one package at a time - mirroring solverState.incompatibilities in the
// contriboss-pubgrub-go reference.
type incompatibilityIndex struct {
	byIdentity map[Identity][]*Incompatibility
	all        []*Incompatibility
}

func newIncompatibilityIndex() *incompatibilityIndex {
	return &incompatibilityIndex{byIdentity: make(map[Identity][]*Incompatibility)}
}

func (idx *incompatibilityIndex) add(ic *Incompatibility) {
	idx.all = append(idx.all, ic)
	for _, t := range ic.Terms {
		idx.byIdentity[t.Identity] = append(idx.byIdentity[t.Identity], ic)
	}
}

func (idx *incompatibilityIndex) forIdentity(id Identity) []*Incompatibility {
	return idx.byIdentity[id]
}

func (s *Solver) trace(format string, args ...interface{}) {
	s.log.Debugf(format, args...)
}
