// Package cache provides a BoltDB-backed cache in front of a
// gps.PackageContainer, so repeated resolves don't re-fetch version lists
// and dependency manifests that haven't changed. Modeled on golang-dep's
// gps/source_cache_bolt.go, but flatter: two top-level buckets, "versions"
// keyed by identity and "deps" keyed by identity@version, each value a JSON
// entry stamped with its write time and treated as a miss once it is older
// than the cache's TTL.
package cache

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/gps"
)

var (
	bucketVersions = []byte("versions")
	bucketDeps     = []byte("deps")
)

// Cache wraps a bolt.DB file holding per-identity version lists and
// dependency edges, each entry stamped with the time it was written so
// entries older than a caller-chosen TTL can be treated as stale.
type Cache struct {
	db  *bolt.DB
	ttl time.Duration
}

// Open opens (creating if necessary) a BoltDB cache file at path.
func Open(path string, ttl time.Duration) (*Cache, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "creating cache directory %s", dir)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "opening bolt cache %s", path)
	}
	return &Cache{db: db, ttl: ttl}, nil
}

// Close releases the underlying BoltDB file.
func (c *Cache) Close() error {
	return c.db.Close()
}

type entry struct {
	StoredAt time.Time       `json:"storedAt"`
	Data     json.RawMessage `json:"data"`
}

// Versions returns the cached version list for identity, if present and
// not expired.
func (c *Cache) Versions(identity gps.Identity) ([]gps.Version, bool) {
	var out []string
	ok := c.get(bucketVersions, identity, &out)
	if !ok {
		return nil, false
	}
	versions := make([]gps.Version, 0, len(out))
	for _, s := range out {
		v, err := gps.ParseVersion(s)
		if err != nil {
			continue
		}
		versions = append(versions, v)
	}
	return versions, true
}

// StoreVersions caches identity's version list.
func (c *Cache) StoreVersions(identity gps.Identity, versions []gps.Version) error {
	strs := make([]string, len(versions))
	for i, v := range versions {
		strs[i] = v.String()
	}
	return c.put(bucketVersions, identity, strs)
}

// Dependencies returns the cached dependency edges for identity at v, if
// present and not expired. The cache key folds the version into the
// identity so different versions of the same package don't collide.
func (c *Cache) Dependencies(identity gps.Identity, v gps.Version) ([]gps.PackageDependency, bool) {
	var out []wireDependency
	ok := c.get(bucketDeps, versionedKey(identity, v), &out)
	if !ok {
		return nil, false
	}
	deps := make([]gps.PackageDependency, 0, len(out))
	for _, wd := range out {
		req, err := wd.toRequirement()
		if err != nil {
			// A single non-round-trippable edge (a range requirement) makes
			// the whole cached entry unusable: silently dropping just that
			// edge would hand the solver an incomplete dependency list for
			// this identity@v, not merely a stale one.
			return nil, false
		}
		deps = append(deps, gps.PackageDependency{Identity: gps.Identity(wd.Identity), Requirement: req})
	}
	return deps, true
}

// StoreDependencies caches identity@v's dependency edges.
func (c *Cache) StoreDependencies(identity gps.Identity, v gps.Version, deps []gps.PackageDependency) error {
	wire := make([]wireDependency, len(deps))
	for i, d := range deps {
		wire[i] = fromRequirement(d.Identity, d.Requirement)
	}
	return c.put(bucketDeps, versionedKey(identity, v), wire)
}

func versionedKey(identity gps.Identity, v gps.Version) gps.Identity {
	return gps.Identity(string(identity) + "@" + v.String())
}

type wireDependency struct {
	Identity string `json:"identity"`
	Kind     string `json:"kind"`
	Value    string `json:"value"`
}

func fromRequirement(id gps.Identity, r gps.Requirement) wireDependency {
	return wireDependency{Identity: string(id), Kind: kindOf(r), Value: r.String()}
}

func kindOf(r gps.Requirement) string {
	switch r.Kind {
	case gps.RequirementBranch:
		return "branch"
	case gps.RequirementRevision:
		return "revision"
	case gps.RequirementExact:
		return "exact"
	case gps.RequirementUnversioned:
		return "unversioned"
	default:
		return "range"
	}
}

func (wd wireDependency) toRequirement() (gps.Requirement, error) {
	switch wd.Kind {
	case "branch":
		return gps.NewBranchRequirement(gps.Branch(wd.Value)), nil
	case "revision":
		return gps.NewRevisionRequirement(gps.Revision(wd.Value)), nil
	case "exact":
		v, err := gps.ParseVersion(wd.Value)
		if err != nil {
			return gps.Requirement{}, err
		}
		return gps.NewExactRequirement(v), nil
	case "unversioned":
		return gps.UnversionedRequirement(), nil
	default:
		// Range requirements are cached pre-rendered as their String() form
		// only for diagnostic display; the cache never round-trips a full
		// VersionSetSpecifier, so a cache hit for a range dependency just
		// means "ask the container again" - treat it as a miss.
		return gps.Requirement{}, errors.New("cache: range requirement is not round-trippable")
	}
}

func (c *Cache) get(bucket []byte, key gps.Identity, out interface{}) bool {
	var raw []byte
	err := c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucket)
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v == nil {
			return nil
		}
		raw = append([]byte(nil), v...)
		return nil
	})
	if err != nil || raw == nil {
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		return false
	}
	if c.ttl > 0 && time.Since(e.StoredAt) > c.ttl {
		return false
	}
	return json.Unmarshal(e.Data, out) == nil
}

func (c *Cache) put(bucket []byte, key gps.Identity, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	e := entry{StoredAt: time.Now(), Data: payload}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}

	return c.db.Update(func(tx *bolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), raw)
	})
}
