// Package classifier implements the target sources classifier: given a
// target's declared sources/resources/excludes and the files actually on
// disk, it sorts every surviving path into one of four disjoint buckets
// (sources, resources, headers, others). Rules are gated by the tools
// version the owning manifest declares, matching golang-dep's
// pkgtree.ListPackages walk-and-classify shape (internal/gps/pkgtree), but
// walking via github.com/karrick/godirwalk instead of pkgtree's hand-rolled
// breadth-first DirWalk, since godirwalk already gives an allocation-light,
// symlink-aware Walk with per-entry type information.
package classifier

import (
	"path/filepath"
	"sort"
	"strings"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/gps"
)

// ResourceRule describes how a declared resource should be processed.
type ResourceRule int

const (
	ResourceProcess ResourceRule = iota
	ResourceCopy
	ResourceEmbedInCode
)

// DefaultLocalization marks a resource declaration as supplying the default
// language for a localized resource family.
const DefaultLocalization = "default"

// ResourceDeclaration is one entry of a target's explicit `resources` list.
type ResourceDeclaration struct {
	Rule         ResourceRule
	Path         string // relative to target root; may name a directory
	Localization string // "", DefaultLocalization, or an explicit language tag
}

// Target describes everything the classifier needs about one build target.
type Target struct {
	Name              string
	Root              string // absolute filesystem path to the target directory
	Excludes          []string
	ExplicitSources   []string
	Resources         []ResourceDeclaration
	PublicHeadersPath string
	ToolsVersion      gps.Version
	Local             bool // false for a target belonging to a remote dependency
}

// Severity of a classifier diagnostic.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

// Diagnostic is one classifier-emitted note, warning or error.
type Diagnostic struct {
	Severity Severity
	Message  string
}

// Result is the classifier's disjoint output, each bucket sorted
// lexicographically by path relative to the target root.
type Result struct {
	Sources     []string
	Resources   []string
	Headers     []string
	Others      []string
	Diagnostics []Diagnostic
}

var tv53 = gps.Version{}
var tv56 = gps.Version{}

func init() {
	v, err := gps.ParseVersion("5.3.0")
	if err != nil {
		panic(err)
	}
	tv53 = v
	v, err = gps.ParseVersion("5.6.0")
	if err != nil {
		panic(err)
	}
	tv56 = v
}

// entry is one surviving filesystem node, relative to the target root.
type entry struct {
	rel   string
	isDir bool
}

// Classify walks target.Root and sorts its contents into sources, resources,
// headers and others, applying excludes, localization and
// directory-with-extension rules gated by target.ToolsVersion.
func Classify(target Target) (*Result, error) {
	entries, err := walkTarget(target.Root)
	if err != nil {
		return nil, errors.Wrapf(err, "walking target %q", target.Name)
	}

	res := &Result{}

	entries, err = applyExcludes(target, entries, res)
	if err != nil {
		return nil, err
	}

	entries, bundleDirs := collapseExtensionDirs(target, entries, res)

	lprojByDir, err := groupLocalizations(target, entries, res)
	if err != nil {
		return nil, err
	}

	outputs := make(map[string][]string) // case-folded output path -> source paths that produced it
	var order []string

	addOutput := func(rel string, sourcePath string) {
		key := foldOutputPath(rel)
		if _, ok := outputs[key]; !ok {
			order = append(order, key)
		}
		outputs[key] = append(outputs[key], sourcePath)
	}

	headerPrefix := ""
	if target.PublicHeadersPath != "" {
		headerPrefix = cleanRel(target.PublicHeadersPath)
	}

	explicitSources := toSet(target.ExplicitSources)
	resourceByPath := make(map[string]ResourceDeclaration)
	var resourceDirs []string
	isDir := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.isDir {
			isDir[e.rel] = true
		}
	}
	for _, r := range target.Resources {
		rel := cleanRel(r.Path)
		resourceByPath[rel] = r
		if isDir[rel] {
			resourceDirs = append(resourceDirs, rel)
		}
	}

	for _, e := range entries {
		if e.isDir {
			continue // directories themselves never appear unless already collapsed into an output above
		}
		if base := filepath.Base(e.rel); strings.EqualFold(base, "Info.plist") && !strings.Contains(e.rel, string(filepath.Separator)) {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityError,
				"top-level Info.plist is reserved and cannot be a target resource"})
			continue
		}

		if bundleDirs[e.rel] {
			// Both the 5.3-5.6 "single file resource" treatment and the
			// >=5.6 "opaque content bundle" treatment stop at the
			// directory boundary: the bundle is one resource, never
			// classified by the extension of whatever it contains.
			addOutput(e.rel, e.rel)
			continue
		}

		if _, ok := lprojByDir[dirOf(e.rel)]; ok {
			addOutput(e.rel, e.rel)
			continue
		}

		if dir := resourceDirForPath(e.rel, resourceDirs); dir != "" {
			// A directory-scoped "process" resource flattens its tree to
			// basenames at the output root, so two files sharing a
			// basename under that tree collide (spec S6).
			addOutput(filepath.Base(e.rel), e.rel)
			continue
		}

		switch {
		case explicitSources[e.rel]:
			res.Sources = append(res.Sources, e.rel)
		case headerPrefix != "" && within(headerPrefix, e.rel):
			res.Headers = append(res.Headers, e.rel)
		default:
			if _, ok := resourceByPath[e.rel]; ok {
				addOutput(e.rel, e.rel)
				continue
			}
			switch {
			case isKnownSourceExtension(e.rel):
				res.Sources = append(res.Sources, e.rel)
			case isKnownHeaderExtension(e.rel):
				res.Headers = append(res.Headers, e.rel)
			default:
				res.Others = append(res.Others, e.rel)
			}
		}
	}

	for _, key := range order {
		srcs := outputs[key]
		if len(srcs) > 1 {
			sort.Strings(srcs)
			msg := "multiple resources named '" + filepath.Base(srcs[0]) + "' in target '" + target.Name + "'"
			res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityError, msg})
			for _, s := range srcs {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityInfo, s})
			}
			continue
		}
		res.Resources = append(res.Resources, srcs[0])
	}

	sort.Strings(res.Sources)
	sort.Strings(res.Resources)
	sort.Strings(res.Headers)
	sort.Strings(res.Others)

	return res, nil
}

func walkTarget(root string) ([]entry, error) {
	var out []entry
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(osPathname string, de *godirwalk.Dirent) error {
			if osPathname == root {
				return nil
			}
			rel, err := filepath.Rel(root, osPathname)
			if err != nil {
				return err
			}
			out = append(out, entry{rel: filepath.ToSlash(rel), isDir: de.IsDir()})
			return nil
		},
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// applyExcludes drops every entry under a declared exclude path. An exclude
// that resolves outside the target root or that matches nothing on disk is
// a warning for a local package and silent for a dependency fetched
// remotely (spec's excludes rule).
func applyExcludes(target Target, entries []entry, res *Result) ([]entry, error) {
	excluded := make(map[string]bool)
	for _, raw := range target.Excludes {
		rel := cleanRel(raw)
		if strings.HasPrefix(rel, "..") {
			if target.Local {
				res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityWarning,
					"invalid exclude path " + raw + ": resolves outside target " + target.Name})
			}
			continue
		}
		found := false
		for _, e := range entries {
			if e.rel == rel || within(rel, e.rel) {
				excluded[e.rel] = true
				found = true
			}
		}
		if !found && target.Local {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityWarning,
				"exclude path " + raw + " does not match anything in target " + target.Name})
		}
	}

	var out []entry
	for _, e := range entries {
		if excluded[e.rel] {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

// collapseExtensionDirs applies the directory-with-extension rule: below
// tv 5.3 a directory with an extension in its name is just a normal
// directory and its contents are walked individually; from 5.3 up to (not
// including) 5.6 it becomes a single-entry resource; from 5.6 on it becomes
// an opaque content bundle. Both of the latter cases collapse the
// directory's subtree down to one entry standing for the directory itself.
func collapseExtensionDirs(target Target, entries []entry, res *Result) ([]entry, map[string]bool) {
	bundleDirs := make(map[string]bool)
	if target.ToolsVersion.IsZero() || target.ToolsVersion.Compare(tv53) < 0 {
		return entries, bundleDirs
	}

	opaque := target.ToolsVersion.Compare(tv56) >= 0

	var dirs []string
	for _, e := range entries {
		if e.isDir && hasExtension(e.rel) && !isLprojName(filepath.Base(e.rel)) {
			dirs = append(dirs, e.rel)
			bundleDirs[e.rel] = true
		}
	}
	if len(dirs) == 0 {
		return entries, bundleDirs
	}
	sort.Strings(dirs)
	if opaque {
		res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityInfo,
			"treating extension-qualified directories as opaque content bundles"})
	}

	var out []entry
	for _, e := range entries {
		covered := false
		for _, bd := range dirs {
			if e.rel == bd || within(bd, e.rel) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}
		out = append(out, e)
	}
	for _, bd := range dirs {
		out = append(out, entry{rel: bd, isDir: false})
	}
	return out, bundleDirs
}

// groupLocalizations finds <lang>.lproj directories (recognized only from
// tools version 5.3) and returns the set of such directories keyed by their
// relative path, after validating that none contain sub-directories.
func groupLocalizations(target Target, entries []entry, res *Result) (map[string]bool, error) {
	lproj := make(map[string]bool)
	if target.ToolsVersion.IsZero() || target.ToolsVersion.Compare(tv53) < 0 {
		return lproj, nil
	}

	for _, e := range entries {
		if e.isDir && isLprojName(filepath.Base(e.rel)) {
			lproj[e.rel] = true
		}
	}

	seenLangByParent := make(map[string]map[string]bool)
	for dir := range lproj {
		lang := strings.TrimSuffix(filepath.Base(dir), ".lproj")
		parent := filepath.Dir(dir)
		folded := strings.ToLower(lang)
		if seenLangByParent[parent] == nil {
			seenLangByParent[parent] = make(map[string]bool)
		}
		seenLangByParent[parent][folded] = true
	}

	for _, e := range entries {
		if !e.isDir {
			continue
		}
		parent := dirOf(e.rel)
		if lproj[parent] && e.isDir {
			res.Diagnostics = append(res.Diagnostics, Diagnostic{SeverityError,
				"localization directory " + parent + " may not contain a sub-directory (" + e.rel + ")"})
		}
	}

	return lproj, nil
}

// resourceDirForPath returns the longest declared resource directory that
// contains rel, or "" if none does.
func resourceDirForPath(rel string, resourceDirs []string) string {
	best := ""
	for _, dir := range resourceDirs {
		if within(dir, rel) && len(dir) > len(best) {
			best = dir
		}
	}
	return best
}

func toSet(paths []string) map[string]bool {
	out := make(map[string]bool, len(paths))
	for _, p := range paths {
		out[cleanRel(p)] = true
	}
	return out
}

func cleanRel(p string) string {
	return filepath.ToSlash(filepath.Clean(p))
}

func dirOf(rel string) string {
	d := filepath.Dir(rel)
	if d == "." {
		return ""
	}
	return filepath.ToSlash(d)
}

func within(prefixDir, rel string) bool {
	return strings.HasPrefix(rel, prefixDir+"/")
}

func hasExtension(rel string) bool {
	base := filepath.Base(rel)
	ext := filepath.Ext(base)
	return ext != "" && ext != base
}

func isLprojName(base string) bool {
	return strings.HasSuffix(strings.ToLower(base), ".lproj")
}

// foldOutputPath case-folds only the path's lproj segment, matching the
// classifier's collision rule: localization folder names collide
// case-insensitively, but every other path segment is compared verbatim.
func foldOutputPath(rel string) string {
	parts := strings.Split(rel, "/")
	for i, p := range parts {
		if isLprojName(p) {
			parts[i] = strings.ToLower(p)
		}
	}
	return strings.Join(parts, "/")
}

var knownSourceExtensions = map[string]bool{
	".go": true, ".swift": true, ".c": true, ".cc": true, ".cpp": true,
	".cxx": true, ".m": true, ".mm": true, ".s": true, ".asm": true,
}

func isKnownSourceExtension(rel string) bool {
	return knownSourceExtensions[strings.ToLower(filepath.Ext(rel))]
}

var knownHeaderExtensions = map[string]bool{
	".h": true, ".hpp": true, ".hh": true,
}

func isKnownHeaderExtension(rel string) bool {
	return knownHeaderExtensions[strings.ToLower(filepath.Ext(rel))]
}
