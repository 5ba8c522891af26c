package localfs

import (
	"context"
	"errors"
	"os"
	"syscall"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/fileops"
)

// StatFile implements fileops.Backend.StatFile (spec §4.7 "stat").
func (b *Backend) StatFile(ctx context.Context, path string) (*fileops.Stat, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound("file does not exist")
		}
		return nil, ferrors.Internal("stat file", err)
	}

	digest, err := digestFile(path)
	if err != nil {
		return nil, ferrors.Internal("digest file", err)
	}

	return &fileops.Stat{
		Size:    uint64(info.Size()),
		Digest:  digest,
		ModTime: info.ModTime(),
	}, nil
}

// LiteStat implements fileops.Backend.LiteStat: an os.Stat with no digest
// computation, so manifestcache can validate a cached digest cheaply.
func (b *Backend) LiteStat(ctx context.Context, path string) (uint64, time.Time, error) {
	if err := ctx.Err(); err != nil {
		return 0, time.Time{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, time.Time{}, ferrors.NotFound("file does not exist")
		}
		return 0, time.Time{}, ferrors.Internal("stat file", err)
	}
	return uint64(info.Size()), info.ModTime(), nil
}

func isDirNotEmpty(err error) bool {
	return errors.Is(err, syscall.ENOTEMPTY)
}
