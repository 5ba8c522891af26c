package localfs

import (
	"context"
	"io"
	"os"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/fileops"
)

// StartDownload implements fileops.Backend.StartDownload (spec §4.7
// "start_download"): stats the file and reports its size and digest so the
// client can decide whether its local partial copy is still valid.
func (b *Backend) StartDownload(ctx context.Context, path string, offset uint64) (*fileops.DownloadStatus, error) {
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
	if offset > uint64(info.Size()) {
		return nil, ferrors.InvalidArgument("resume offset past end of file")
	}

	digest, err := digestFile(path)
	if err != nil {
		return nil, ferrors.Internal("digest file", err)
	}

	return &fileops.DownloadStatus{Size: uint64(info.Size()), Digest: digest}, nil
}

// ReadChunk implements fileops.Backend.ReadChunk (spec §4.7 "read_chunk"):
// returns up to max bytes starting at offset. Fewer than max bytes at
// end-of-file is a normal, successful result, not an error.
func (b *Backend) ReadChunk(ctx context.Context, path string, offset uint64, max uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ferrors.NotFound("file does not exist")
		}
		return nil, ferrors.Internal("open file", err)
	}
	defer file.Close()

	buf := make([]byte, max)
	n, err := file.ReadAt(buf, int64(offset))
	if err != nil && err != io.EOF {
		return nil, ferrors.Internal("read chunk", err)
	}
	return buf[:n], nil
}
