package gps

import (
	"bytes"
	"io"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// Mirrors rewrites fetch URLs at the resolution boundary (spec §3): Resolve
// is applied when a manifest or lockfile location is read, Unresolve is
// applied before a location is persisted back to disk, so a lockfile stays
// portable across machines with different mirror configuration.
//
// Shaped after the [registry] table in golang-dep's registry_config.go, but
// generalized to an arbitrary table of original -> replacement URLs rather
// than one hardcoded registry endpoint. Entries match whole locations
// exactly; a location that merely starts with a table key is not rewritten.
type Mirrors struct {
	// forward maps an original location to its mirror.
	forward map[string]string
	// reverse is the inverse of forward, used by Unresolve.
	reverse map[string]string
}

type rawMirrorConfig struct {
	Mirrors map[string]string `toml:"mirrors"`
}

// ReadMirrors parses a `[mirrors]` TOML table (original = "replacement")
// from r.
func ReadMirrors(r io.Reader) (*Mirrors, error) {
	buf := &bytes.Buffer{}
	if _, err := buf.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "unable to read mirror config")
	}

	var raw rawMirrorConfig
	if err := toml.Unmarshal(buf.Bytes(), &raw); err != nil {
		return nil, errors.Wrap(err, "unable to parse mirror config as TOML")
	}

	return NewMirrors(raw.Mirrors), nil
}

// NewMirrors builds a Mirrors from an original->replacement map.
func NewMirrors(table map[string]string) *Mirrors {
	m := &Mirrors{
		forward: make(map[string]string, len(table)),
		reverse: make(map[string]string, len(table)),
	}
	for orig, mirror := range table {
		m.forward[orig] = mirror
		m.reverse[mirror] = orig
	}
	return m
}

// Resolve rewrites an original location to its configured mirror, if any.
// Call this when loading a manifest/lockfile location for actual use.
func (m *Mirrors) Resolve(location string) string {
	if m == nil {
		return location
	}
	if mirror, ok := m.forward[location]; ok {
		return mirror
	}
	return location
}

// Unresolve rewrites a mirrored location back to its original, if known.
// Call this before persisting a location to the lockfile, so the file
// remains meaningful on a machine without this mirror configured.
func (m *Mirrors) Unresolve(location string) string {
	if m == nil {
		return location
	}
	if orig, ok := m.reverse[location]; ok {
		return orig
	}
	return location
}

// Table returns the underlying original->mirror map, for serialization.
func (m *Mirrors) Table() map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m.forward))
	for k, v := range m.forward {
		out[k] = v
	}
	return out
}
