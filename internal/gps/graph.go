package gps

import (
	"sort"

	"github.com/armon/go-radix"
)

// Atom is one resolved graph node: a package identity pinned to a concrete
// version (spec §4.4's "atoms" are identity+version pairs the solver
// selects).
type Atom struct {
	Identity Identity
	Version  Version
}

// DependencyGraph is the resolved output of a successful solve: every
// selected atom, plus the edges (who requires whom, and with what
// requirement) that justified its selection. It also indexes identities by
// a radix tree for fast longest-prefix lookups, the same trick
// typed_radix.go applies to import-path deduction.
type DependencyGraph struct {
	atoms map[Identity]Atom
	edges map[Identity][]Edge

	trie *identityTrie
}

// Edge records that From requires To to lie in Allowed.
type Edge struct {
	From    Identity
	To      Identity
	Allowed VersionSetSpecifier
}

// NewDependencyGraph builds an empty graph.
func NewDependencyGraph() *DependencyGraph {
	return &DependencyGraph{
		atoms: make(map[Identity]Atom),
		edges: make(map[Identity][]Edge),
		trie:  newIdentityTrie(),
	}
}

// AddAtom records a selected atom in the graph.
func (g *DependencyGraph) AddAtom(a Atom) {
	g.atoms[a.Identity] = a
	g.trie.Insert(string(a.Identity), a)
}

// AddEdge records a dependency edge.
func (g *DependencyGraph) AddEdge(e Edge) {
	g.edges[e.From] = append(g.edges[e.From], e)
}

// Atom returns the selected atom for identity, if present.
func (g *DependencyGraph) Atom(identity Identity) (Atom, bool) {
	a, ok := g.atoms[identity]
	return a, ok
}

// AtomByPrefix finds the selected atom whose identity is the longest prefix
// of path - used to map an import path down to the package root that
// provides it, the same role golang-dep's deducerTrie plays for source
// deduction.
func (g *DependencyGraph) AtomByPrefix(path string) (Atom, bool) {
	return g.trie.LongestPrefix(path)
}

// Edges returns the dependency edges declared by identity.
func (g *DependencyGraph) Edges(identity Identity) []Edge {
	return g.edges[identity]
}

// Atoms returns every selected atom, sorted by identity for deterministic
// iteration (lockfile output, --trace output).
func (g *DependencyGraph) Atoms() []Atom {
	out := make([]Atom, 0, len(g.atoms))
	for _, a := range g.atoms {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

// identityTrie is a typed wrapper around armon/go-radix, following the
// typed_radix.go pattern of avoiding type assertions everywhere a radix tree
// is used.
type identityTrie struct {
	t *radix.Tree
}

func newIdentityTrie() *identityTrie {
	return &identityTrie{t: radix.New()}
}

func (t *identityTrie) Insert(s string, v Atom) {
	t.t.Insert(s, v)
}

func (t *identityTrie) LongestPrefix(s string) (Atom, bool) {
	_, v, ok := t.t.LongestPrefix(s)
	if !ok {
		return Atom{}, false
	}
	return v.(Atom), true
}
