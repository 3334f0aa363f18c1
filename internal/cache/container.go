package cache

import (
	"context"

	"github.com/pkg/errors"

	"github.com/quillpkg/quill/internal/gps"
)

// CachedContainer wraps a gps.PackageContainer, serving Versions and
// Dependencies out of a Cache when possible and always writing results
// back through on a miss.
type CachedContainer struct {
	underlying gps.PackageContainer
	cache      *Cache
}

// NewCachedContainer wraps underlying with cache.
func NewCachedContainer(underlying gps.PackageContainer, cache *Cache) *CachedContainer {
	return &CachedContainer{underlying: underlying, cache: cache}
}

func (c *CachedContainer) Versions(ctx context.Context, identity gps.Identity) ([]gps.Version, error) {
	if versions, ok := c.cache.Versions(identity); ok {
		return versions, nil
	}
	versions, err := c.underlying.Versions(ctx, identity)
	if err != nil {
		return nil, err
	}
	_ = c.cache.StoreVersions(identity, versions)
	return versions, nil
}

func (c *CachedContainer) Revisions(ctx context.Context, identity gps.Identity) ([]gps.Revision, error) {
	return c.underlying.Revisions(ctx, identity)
}

func (c *CachedContainer) Dependencies(ctx context.Context, identity gps.Identity, v gps.Version) ([]gps.PackageDependency, error) {
	if deps, ok := c.cache.Dependencies(identity, v); ok {
		return deps, nil
	}
	deps, err := c.underlying.Dependencies(ctx, identity, v)
	if err != nil {
		return nil, err
	}
	_ = c.cache.StoreDependencies(identity, v, deps)
	return deps, nil
}

func (c *CachedContainer) IsToolsVersionCompatible(ctx context.Context, identity gps.Identity, v gps.Version) (bool, error) {
	return c.underlying.IsToolsVersionCompatible(ctx, identity, v)
}

// RevisionOf satisfies gps.RevisionLookupContainer by delegating to the
// wrapped container when it supports revision lookup; a cache entry never
// substitutes for this, since the reconciler needs it fresh at Apply time.
func (c *CachedContainer) RevisionOf(ctx context.Context, identity gps.Identity, v gps.Version) (gps.Revision, error) {
	rlc, ok := c.underlying.(gps.RevisionLookupContainer)
	if !ok {
		return "", errors.New("cache: underlying container does not support revision lookup")
	}
	return rlc.RevisionOf(ctx, identity, v)
}
