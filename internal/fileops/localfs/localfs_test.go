package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func digestOf(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func TestUploadResumeAndCommit(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "file.bin")
	b := New()
	ctx := context.Background()

	data := []byte("hello, file-transfer world")
	digest := digestOf(data)

	status, err := b.StartUpload(ctx, target, uint64(len(data)), digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(0), status.ResumeOffset)

	committed, err := b.WriteChunk(ctx, target, 0, data[:10])
	require.NoError(t, err)
	assert.Equal(t, uint64(10), committed)

	committed, err = b.WriteChunk(ctx, target, 10, data[10:])
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), committed)

	require.NoError(t, b.CommitUpload(ctx, target, digest, nil))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.NoFileExists(t, stagingPath(target))
}

func TestUploadResumesFromPartialStaging(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "resume.bin")
	b := New()
	ctx := context.Background()

	data := []byte("0123456789abcdef")
	digest := digestOf(data)

	_, err := b.StartUpload(ctx, target, uint64(len(data)), digest)
	require.NoError(t, err)
	_, err = b.WriteChunk(ctx, target, 0, data[:8])
	require.NoError(t, err)

	// Simulate a disconnect and reconnect: a fresh backend instance reopens
	// the same staging file on disk.
	b2 := New()
	status, err := b2.StartUpload(ctx, target, uint64(len(data)), digest)
	require.NoError(t, err)
	assert.Equal(t, uint64(8), status.ResumeOffset)

	_, err = b2.WriteChunk(ctx, target, 8, data[8:])
	require.NoError(t, err)
	require.NoError(t, b2.CommitUpload(ctx, target, digest, nil))

	got, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, data, got)
}

func TestWriteChunkRejectsGap(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gap.bin")
	b := New()
	ctx := context.Background()

	_, err := b.StartUpload(ctx, target, 100, "irrelevant")
	require.NoError(t, err)

	_, err = b.WriteChunk(ctx, target, 5, []byte("later"))
	require.Error(t, err)
}

func TestCommitUploadRejectsDigestMismatch(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "mismatch.bin")
	b := New()
	ctx := context.Background()

	data := []byte("some content")
	_, err := b.StartUpload(ctx, target, uint64(len(data)), "wrong-digest")
	require.NoError(t, err)
	_, err = b.WriteChunk(ctx, target, 0, data)
	require.NoError(t, err)

	err = b.CommitUpload(ctx, target, "wrong-digest-that-will-never-match", nil)
	require.Error(t, err)
	assert.NoFileExists(t, stagingPath(target))
	assert.NoFileExists(t, target)
}

func TestDownloadStartAndReadChunk(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "download.bin")
	data := []byte("downloadable payload")
	require.NoError(t, os.WriteFile(target, data, 0o644))

	b := New()
	ctx := context.Background()

	status, err := b.StartDownload(ctx, target, 0)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), status.Size)
	assert.Equal(t, digestOf(data), status.Digest)

	chunk, err := b.ReadChunk(ctx, target, 5, 4)
	require.NoError(t, err)
	assert.Equal(t, data[5:9], chunk)

	tail, err := b.ReadChunk(ctx, target, uint64(len(data)-3), 100)
	require.NoError(t, err)
	assert.Equal(t, data[len(data)-3:], tail)
}

func TestDeleteIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "gone.bin")
	b := New()
	ctx := context.Background()

	require.Error(t, b.Delete(ctx, target))

	require.NoError(t, os.WriteFile(target, []byte("x"), 0o644))
	require.NoError(t, b.Delete(ctx, target))
	assert.NoFileExists(t, target)
}

func TestRenameMovesFile(t *testing.T) {
	dir := t.TempDir()
	from := filepath.Join(dir, "a.txt")
	to := filepath.Join(dir, "b.txt")
	require.NoError(t, os.WriteFile(from, []byte("data"), 0o644))

	b := New()
	require.NoError(t, b.Rename(context.Background(), from, to))

	assert.NoFileExists(t, from)
	assert.FileExists(t, to)
}

func TestMkdirAndRmdir(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "a", "b", "c")
	b := New()
	ctx := context.Background()

	require.NoError(t, b.Mkdir(ctx, sub))
	assert.DirExists(t, sub)

	require.NoError(t, os.WriteFile(filepath.Join(sub, "file.txt"), []byte("x"), 0o644))

	err := b.Rmdir(ctx, sub, false)
	require.Error(t, err, "rmdir must fail on non-empty directory when not recursive")

	require.NoError(t, b.Rmdir(ctx, sub, true))
	assert.NoDirExists(t, sub)
}

func TestListAndManifest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "top.txt"), []byte("top"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "nested.txt"), []byte("nested"), 0o644))

	b := New()
	ctx := context.Background()

	flat, err := b.List(ctx, dir, false)
	require.NoError(t, err)
	assert.Len(t, flat, 2) // top.txt, sub

	manifest, err := b.Manifest(ctx, dir)
	require.NoError(t, err)
	assert.Len(t, manifest, 3) // top.txt, sub, sub/nested.txt

	var found bool
	for _, e := range manifest {
		if e.Path == filepath.ToSlash(filepath.Join("sub", "nested.txt")) {
			found = true
			assert.Equal(t, digestOf([]byte("nested")), e.Digest)
		}
	}
	assert.True(t, found)
}

func TestStatAndChecksumAndExists(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "f.txt")
	data := []byte("stat me")
	require.NoError(t, os.WriteFile(target, data, 0o644))

	b := New()
	ctx := context.Background()

	exists, err := b.Exists(ctx, target)
	require.NoError(t, err)
	assert.True(t, exists)

	missing, err := b.Exists(ctx, filepath.Join(dir, "nope.txt"))
	require.NoError(t, err)
	assert.False(t, missing)

	stat, err := b.StatFile(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, uint64(len(data)), stat.Size)
	assert.Equal(t, digestOf(data), stat.Digest)

	digest, err := b.Checksum(ctx, target)
	require.NoError(t, err)
	assert.Equal(t, digestOf(data), digest)
}
