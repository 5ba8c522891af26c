package localfs

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/fileops"
)

// List implements fileops.Backend.List (spec §4.7 "list"): yields entries
// relative to path, without computing digests.
func (b *Backend) List(ctx context.Context, path string, recursive bool) ([]fileops.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound("directory does not exist")
		}
		return nil, ferrors.Internal("stat directory", err)
	}
	if !info.IsDir() {
		return nil, ferrors.InvalidArgument("path is not a directory")
	}

	if !recursive {
		return listOneLevel(path)
	}
	return walkEntries(ctx, path, false)
}

// Manifest implements fileops.Backend.Manifest (spec §4.7 "manifest"): the
// same walk as List(recursive=true) but with a digest computed per file.
func (b *Backend) Manifest(ctx context.Context, root string) ([]fileops.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound("directory does not exist")
		}
		return nil, ferrors.Internal("stat directory", err)
	}
	if !info.IsDir() {
		return nil, ferrors.InvalidArgument("path is not a directory")
	}

	return walkEntries(ctx, root, true)
}

func listOneLevel(dir string) ([]fileops.Entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, ferrors.Internal("read directory", err)
	}

	entries := make([]fileops.Entry, 0, len(des))
	for _, de := range des {
		info, err := de.Info()
		if err != nil {
			return nil, ferrors.Internal("stat directory entry", err)
		}
		entries = append(entries, toEntry(de.Name(), info))
	}
	return entries, nil
}

func walkEntries(ctx context.Context, root string, withDigest bool) ([]fileops.Entry, error) {
	var entries []fileops.Entry

	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if p == root {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		rel, relErr := filepath.Rel(root, p)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		info, err := d.Info()
		if err != nil {
			return err
		}

		e := toEntry(rel, info)
		if withDigest && e.Kind == fileops.KindFile {
			digest, err := digestFile(p)
			if err != nil {
				return err
			}
			e.Digest = digest
		}

		entries = append(entries, e)
		return nil
	})
	if err != nil {
		if strings.Contains(err.Error(), "context canceled") {
			return nil, err
		}
		return nil, ferrors.Internal("walk directory", err)
	}

	return entries, nil
}

func toEntry(relPath string, info os.FileInfo) fileops.Entry {
	kind := fileops.KindFile
	if info.IsDir() {
		kind = fileops.KindDirectory
	}
	return fileops.Entry{
		Path:    relPath,
		Kind:    kind,
		Size:    uint64(info.Size()),
		ModTime: info.ModTime(),
	}
}
