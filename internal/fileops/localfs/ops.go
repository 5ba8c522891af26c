package localfs

import (
	"context"
	"os"

	"github.com/fileharbor/fileharbor/internal/ferrors"
)

// Delete implements fileops.Backend.Delete (spec §4.7 "delete"). The caller
// is responsible for checking no lock is held on path; this method only
// performs the removal.
func (b *Backend) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return ferrors.NotFound("file does not exist")
		}
		return ferrors.Internal("delete file", err)
	}
	return nil
}

// Rename implements fileops.Backend.Rename (spec §4.7 "rename"). Both paths
// must already have been resolved inside the same library by the caller;
// os.Rename is atomic on POSIX filesystems when both paths share a volume.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := os.Stat(from); err != nil {
		if os.IsNotExist(err) {
			return ferrors.NotFound("source does not exist")
		}
		return ferrors.Internal("stat rename source", err)
	}
	if err := os.Rename(from, to); err != nil {
		return ferrors.Internal("rename", err)
	}
	return nil
}

// Mkdir implements fileops.Backend.Mkdir (spec §4.7 "mkdir"): creates path
// and any missing parents.
func (b *Backend) Mkdir(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return ferrors.Internal("mkdir", err)
	}
	return nil
}

// Rmdir implements fileops.Backend.Rmdir (spec §4.7 "rmdir"). With
// recursive=false it fails on a non-empty directory rather than silently
// removing its contents.
func (b *Backend) Rmdir(ctx context.Context, path string, recursive bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return ferrors.NotFound("directory does not exist")
		}
		return ferrors.Internal("stat directory", err)
	}
	if !info.IsDir() {
		return ferrors.InvalidArgument("path is not a directory")
	}

	if recursive {
		if err := os.RemoveAll(path); err != nil {
			return ferrors.Internal("remove directory tree", err)
		}
		return nil
	}

	if err := os.Remove(path); err != nil {
		if os.IsExist(err) || isDirNotEmpty(err) {
			return ferrors.InvalidArgument("directory is not empty")
		}
		return ferrors.Internal("remove directory", err)
	}
	return nil
}

// Exists implements fileops.Backend.Exists (spec §4.7 "exists").
func (b *Backend) Exists(ctx context.Context, path string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, ferrors.Internal("stat file", err)
}

// Checksum implements fileops.Backend.Checksum (spec §4.7 "checksum"):
// streams the full file through SHA-256 rather than loading it into memory.
func (b *Backend) Checksum(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	digest, err := digestFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", ferrors.NotFound("file does not exist")
		}
		return "", ferrors.Internal("checksum file", err)
	}
	return digest, nil
}
