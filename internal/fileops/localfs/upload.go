// Package localfs implements fileops.Backend against the local filesystem
// (spec §4.7), grounded on the filesystem content store's staging/FD-cache
// approach: content lives at its final path, partial uploads are staged
// alongside it, and writes to the same file reuse one cached descriptor
// instead of reopening per chunk.
package localfs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/fileops"
)

// classifyWriteErr distinguishes an out-of-space OS error (spec §7 Resource
// kind "disk-full") from any other write failure, grounded on the original
// server's file_operations.py, which checks errno 28 (ENOSPC) explicitly.
func classifyWriteErr(op string, err error) error {
	if errors.Is(err, syscall.ENOSPC) {
		return ferrors.DiskFull(op, err)
	}
	return ferrors.Internal(op, err)
}

const defaultFDCacheSize = 256

// Backend is the local-disk fileops.Backend.
type Backend struct {
	fds *fdCache
}

// New constructs a Backend ready for use.
func New() *Backend {
	return &Backend{fds: newFDCache(defaultFDCacheSize)}
}

var _ fileops.Backend = (*Backend)(nil)

// Close releases every cached file descriptor. Safe to call once at server
// shutdown; not required for correctness since OS file descriptors close on
// process exit, but it keeps long-running test processes tidy.
func (b *Backend) Close() error {
	return b.fds.closeAll()
}

func stagingPath(path string) string {
	return path + ".partial"
}

// StartUpload implements fileops.Backend.StartUpload. If a staging file from
// a previous, interrupted upload exists and is no longer than totalSize, its
// length is returned so the client can resume (spec §4.7 "start_upload").
func (b *Backend) StartUpload(ctx context.Context, path string, totalSize uint64, expectedDigest string) (*fileops.UploadStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, classifyWriteErr("create parent directory", err)
	}

	staging := stagingPath(path)

	// Drop any descriptor cached by an earlier attempt: the staging file it
	// refers to may since have been removed, and later writes must go to the
	// file opened below.
	_ = b.fds.remove(staging)

	var resumeOffset uint64
	if info, err := os.Stat(staging); err == nil {
		if uint64(info.Size()) <= totalSize {
			resumeOffset = uint64(info.Size())
		}
		// A staging file longer than totalSize is stale from a different
		// upload attempt; truncate it and start over rather than trust it.
	} else if !os.IsNotExist(err) {
		return nil, ferrors.Internal("stat staging file", err)
	}

	flags := os.O_RDWR | os.O_CREATE
	if resumeOffset == 0 {
		flags |= os.O_TRUNC
	}
	file, err := os.OpenFile(staging, flags, 0o644)
	if err != nil {
		return nil, classifyWriteErr("open staging file", err)
	}
	if err := file.Close(); err != nil {
		return nil, ferrors.Internal("close staging file", err)
	}

	return &fileops.UploadStatus{ResumeOffset: resumeOffset, StagingPath: staging}, nil
}

// WriteChunk implements fileops.Backend.WriteChunk. It rejects any offset
// that doesn't land exactly at the current end of the staging file, which
// is what spec §4.7 means by "rejects out-of-order writes that would leave
// a gap" — chunks must arrive contiguously.
func (b *Backend) WriteChunk(ctx context.Context, path string, offset uint64, data []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	staging := stagingPath(path)
	b.fds.lockPath(staging)
	defer b.fds.unlockPath(staging)

	file, cached := b.fds.get(staging)
	if !cached {
		var err error
		file, err = os.OpenFile(staging, os.O_RDWR, 0o644)
		if err != nil {
			if os.IsNotExist(err) {
				return 0, ferrors.InvalidArgument("no active upload for path")
			}
			return 0, ferrors.Internal("open staging file", err)
		}
		if err := b.fds.put(staging, file); err != nil {
			_ = file.Close()
			return 0, ferrors.Internal("cache staging descriptor", err)
		}
	}

	info, err := file.Stat()
	if err != nil {
		return 0, ferrors.Internal("stat staging file", err)
	}
	if uint64(info.Size()) != offset {
		return 0, ferrors.InvalidArgument(
			fmt.Sprintf("write at offset %d would leave a gap; expected %d", offset, info.Size()))
	}

	if _, err := file.WriteAt(data, int64(offset)); err != nil {
		return 0, classifyWriteErr("write chunk", err)
	}

	return offset + uint64(len(data)), nil
}

// CommitUpload implements fileops.Backend.CommitUpload (spec §4.7
// "commit_upload"): closes the staging file, verifies its digest, and
// atomically renames it into place. On a digest mismatch the staging file
// is removed and the upload must be retried from scratch — the spec is
// explicit that a mismatched file is never silently accepted.
func (b *Backend) CommitUpload(ctx context.Context, path, expectedDigest string, mtime *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	staging := stagingPath(path)
	_ = b.fds.remove(staging)

	digest, err := digestFile(staging)
	if err != nil {
		if os.IsNotExist(err) {
			return ferrors.InvalidArgument("no active upload for path")
		}
		return ferrors.Internal("digest staging file", err)
	}

	if digest != expectedDigest {
		_ = os.Remove(staging)
		return ferrors.ChecksumMismatch(fmt.Sprintf("expected digest %s, got %s", expectedDigest, digest))
	}

	if err := os.Rename(staging, path); err != nil {
		return classifyWriteErr("rename staging to final", err)
	}

	if mtime != nil {
		if err := os.Chtimes(path, *mtime, *mtime); err != nil {
			return ferrors.Internal("restore mtime", err)
		}
	}

	return nil
}

// AbortUpload implements fileops.Backend.AbortUpload: discards the staging
// file without touching the final path.
func (b *Backend) AbortUpload(ctx context.Context, path string) error {
	staging := stagingPath(path)
	_ = b.fds.remove(staging)

	if err := os.Remove(staging); err != nil && !os.IsNotExist(err) {
		return ferrors.Internal("remove staging file", err)
	}
	return nil
}

func digestFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
