package manifestcache

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fileharbor/fileharbor/internal/fileops/localfs"
)

func TestCachePutGetInvalidate(t *testing.T) {
	cache, err := Open(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	defer cache.Close()

	_, ok := cache.Get("lib1", "a.txt")
	assert.False(t, ok)

	entry := Entry{Digest: "abc123", Size: 10, ModTime: time.Now()}
	require.NoError(t, cache.Put("lib1", "a.txt", entry))

	got, ok := cache.Get("lib1", "a.txt")
	require.True(t, ok)
	assert.Equal(t, entry.Digest, got.Digest)

	require.NoError(t, cache.Invalidate("lib1", "a.txt"))
	_, ok = cache.Get("lib1", "a.txt")
	assert.False(t, ok)
}

func TestEntryValid(t *testing.T) {
	now := time.Now()
	e := &Entry{Digest: "x", Size: 5, ModTime: now}
	assert.True(t, e.Valid(5, now))
	assert.False(t, e.Valid(6, now))
	assert.False(t, (*Entry)(nil).Valid(5, now))
}

func TestCachingBackendServesChecksumFromCache(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	cache, err := Open(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	defer cache.Close()

	backend := Wrap(localfs.New(), cache, "lib1")
	ctx := context.Background()

	digest, err := backend.Checksum(ctx, target)
	require.NoError(t, err)

	_, ok := cache.Get("lib1", target)
	assert.True(t, ok, "checksum should populate the cache")

	digest2, err := backend.Checksum(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, digest, digest2)
}

func TestCachingBackendInvalidatesOnDelete(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))

	cache, err := Open(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	defer cache.Close()

	backend := Wrap(localfs.New(), cache, "lib1")
	ctx := context.Background()

	_, err = backend.Checksum(ctx, target)
	require.NoError(t, err)

	require.NoError(t, backend.Delete(ctx, target))

	_, ok := cache.Get("lib1", target)
	assert.False(t, ok)
}
