package manifestcache

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fileharbor/fileharbor/internal/fileops"
)

// CachingBackend wraps a fileops.Backend, serving Checksum/StatFile/Manifest
// digests from the cache when the underlying file's size and mtime haven't
// moved. A successful CommitUpload, Delete or Rename invalidates the paths
// it touched; Rmdir invalidates nothing, so entries for files under a
// removed directory stay cached and are checked against size and mtime like
// any other entry.
type CachingBackend struct {
	fileops.Backend
	cache     *Cache
	libraryID string
}

// Wrap decorates backend with digest caching scoped to libraryID.
func Wrap(backend fileops.Backend, cache *Cache, libraryID string) *CachingBackend {
	return &CachingBackend{Backend: backend, cache: cache, libraryID: libraryID}
}

func (c *CachingBackend) StatFile(ctx context.Context, path string) (*fileops.Stat, error) {
	size, modTime, err := c.Backend.LiteStat(ctx, path)
	if err != nil {
		return nil, err
	}
	if entry, ok := c.cache.Get(c.libraryID, path); ok && entry.Valid(size, modTime) {
		return &fileops.Stat{Size: size, Digest: entry.Digest, ModTime: modTime}, nil
	}

	stat, err := c.Backend.StatFile(ctx, path)
	if err != nil {
		return nil, err
	}
	c.rememberDigest(path, stat.Size, stat.ModTime, stat.Digest)
	return stat, nil
}

func (c *CachingBackend) Checksum(ctx context.Context, path string) (string, error) {
	if entry, ok := c.cache.Get(c.libraryID, path); ok {
		if size, modTime, statErr := c.Backend.LiteStat(ctx, path); statErr == nil && entry.Valid(size, modTime) {
			return entry.Digest, nil
		}
	}

	digest, err := c.Backend.Checksum(ctx, path)
	if err != nil {
		return "", err
	}
	if size, modTime, statErr := c.Backend.LiteStat(ctx, path); statErr == nil {
		c.rememberDigest(path, size, modTime, digest)
	}
	return digest, nil
}

// Manifest lists root via the undecorated List (no digest computed per
// entry) and consults the cache for each file's digest, only falling
// through to a per-file Checksum when the cached entry is stale or
// missing — unlike Backend.Manifest, which re-hashes every file on every
// call regardless of whether it changed.
func (c *CachingBackend) Manifest(ctx context.Context, root string) ([]fileops.Entry, error) {
	entries, err := c.Backend.List(ctx, root, true)
	if err != nil {
		return nil, err
	}

	for i, e := range entries {
		if e.Kind != fileops.KindFile {
			continue
		}
		full := filepath.Join(root, filepath.FromSlash(e.Path))
		if entry, ok := c.cache.Get(c.libraryID, full); ok && entry.Valid(e.Size, e.ModTime) {
			entries[i].Digest = entry.Digest
			continue
		}

		digest, err := c.Backend.Checksum(ctx, full)
		if err != nil {
			return nil, err
		}
		entries[i].Digest = digest
		c.rememberDigest(full, e.Size, e.ModTime, digest)
	}
	return entries, nil
}

func (c *CachingBackend) CommitUpload(ctx context.Context, path, expectedDigest string, mtime *time.Time) error {
	err := c.Backend.CommitUpload(ctx, path, expectedDigest, mtime)
	if err == nil {
		_ = c.cache.Invalidate(c.libraryID, path)
	}
	return err
}

func (c *CachingBackend) Delete(ctx context.Context, path string) error {
	err := c.Backend.Delete(ctx, path)
	if err == nil {
		_ = c.cache.Invalidate(c.libraryID, path)
	}
	return err
}

func (c *CachingBackend) Rename(ctx context.Context, from, to string) error {
	err := c.Backend.Rename(ctx, from, to)
	if err == nil {
		_ = c.cache.Invalidate(c.libraryID, from)
		_ = c.cache.Invalidate(c.libraryID, to)
	}
	return err
}

func (c *CachingBackend) rememberDigest(path string, size uint64, modTime time.Time, digest string) {
	_ = c.cache.Put(c.libraryID, path, Entry{Digest: digest, Size: size, ModTime: modTime})
}

var _ fileops.Backend = (*CachingBackend)(nil)
