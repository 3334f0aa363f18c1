package cache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/quillpkg/quill/internal/gps"
)

func mustVersion(t *testing.T, s string) gps.Version {
	t.Helper()
	v, err := gps.ParseVersion(s)
	if err != nil {
		t.Fatal(err)
	}
	return v
}

func openTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "cache.db"), ttl)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func TestCacheVersionsRoundTrip(t *testing.T) {
	c := openTestCache(t, time.Hour)
	foo := gps.Identity("foo")

	if _, ok := c.Versions(foo); ok {
		t.Fatal("expected a cache miss before any store")
	}

	versions := []gps.Version{mustVersion(t, "1.0.0"), mustVersion(t, "1.0.2")}
	if err := c.StoreVersions(foo, versions); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Versions(foo)
	if !ok {
		t.Fatal("expected a cache hit after store")
	}
	if len(got) != 2 || got[0].String() != "1.0.0" || got[1].String() != "1.0.2" {
		t.Fatalf("unexpected versions round-trip: %v", got)
	}
}

func TestCacheVersionsExpireAfterTTL(t *testing.T) {
	c := openTestCache(t, time.Millisecond)
	foo := gps.Identity("foo")

	if err := c.StoreVersions(foo, []gps.Version{mustVersion(t, "1.0.0")}); err != nil {
		t.Fatal(err)
	}
	time.Sleep(5 * time.Millisecond)

	if _, ok := c.Versions(foo); ok {
		t.Fatal("expected the entry to be treated as expired past its TTL")
	}
}

func TestCacheDependenciesRangeRequirementIsNotCached(t *testing.T) {
	c := openTestCache(t, time.Hour)
	foo := gps.Identity("foo")
	v := mustVersion(t, "1.0.0")

	set := gps.NewRangeSet(mustVersion(t, "1.0.0"), mustVersion(t, "2.0.0"))
	deps := []gps.PackageDependency{
		{Identity: gps.Identity("bar"), Requirement: gps.NewRangeRequirement(set)},
	}
	if err := c.StoreDependencies(foo, v, deps); err != nil {
		t.Fatal(err)
	}

	if _, ok := c.Dependencies(foo, v); ok {
		t.Fatal("expected a range-requirement dependency to never be served from cache")
	}
}

func TestCacheDependenciesRoundTripNonRangeKinds(t *testing.T) {
	c := openTestCache(t, time.Hour)
	foo := gps.Identity("foo")
	v := mustVersion(t, "1.0.0")

	deps := []gps.PackageDependency{
		{Identity: gps.Identity("bar"), Requirement: gps.NewBranchRequirement(gps.Branch("main"))},
		{Identity: gps.Identity("baz"), Requirement: gps.NewExactRequirement(mustVersion(t, "2.0.0"))},
	}
	if err := c.StoreDependencies(foo, v, deps); err != nil {
		t.Fatal(err)
	}

	got, ok := c.Dependencies(foo, v)
	if !ok {
		t.Fatal("expected a cache hit for branch/exact dependencies")
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 dependencies, got %d", len(got))
	}
}

func TestCachedContainerFallsBackToUnderlyingOnMiss(t *testing.T) {
	c := openTestCache(t, time.Hour)
	foo := gps.Identity("foo")

	underlying := &stubContainer{versions: map[gps.Identity][]gps.Version{
		foo: {mustVersion(t, "1.0.0")},
	}}
	cc := NewCachedContainer(underlying, c)

	got, err := cc.Versions(context.Background(), foo)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 {
		t.Fatalf("expected 1 version from underlying, got %d", len(got))
	}
	if underlying.versionCalls != 1 {
		t.Fatalf("expected exactly one call to the underlying container, got %d", underlying.versionCalls)
	}

	if _, err := cc.Versions(context.Background(), foo); err != nil {
		t.Fatal(err)
	}
	if underlying.versionCalls != 1 {
		t.Fatalf("expected the second Versions call to be served from cache, underlying called %d times", underlying.versionCalls)
	}
}

type stubContainer struct {
	versions     map[gps.Identity][]gps.Version
	versionCalls int
}

func (s *stubContainer) Versions(ctx context.Context, id gps.Identity) ([]gps.Version, error) {
	s.versionCalls++
	return s.versions[id], nil
}

func (s *stubContainer) Revisions(ctx context.Context, id gps.Identity) ([]gps.Revision, error) {
	return nil, nil
}

func (s *stubContainer) Dependencies(ctx context.Context, id gps.Identity, v gps.Version) ([]gps.PackageDependency, error) {
	return nil, nil
}

func (s *stubContainer) IsToolsVersionCompatible(ctx context.Context, id gps.Identity, v gps.Version) (bool, error) {
	return true, nil
}
