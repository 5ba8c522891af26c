package client

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/internal/wire"
)

// UploadOptions configures one Upload call.
type UploadOptions struct {
	// LocalPath is the source file on the client's filesystem.
	LocalPath string
	// RemotePath is the destination path inside the bound library.
	RemotePath string
	// Progress, if set, receives Events during the transfer.
	Progress ProgressFunc
}

// Upload computes the local file's digest, opens PUT_START (honoring any
// resume offset the server reports), streams the remainder in chunk-sized
// PUT_CHUNK frames, and finishes with PUT_COMMIT (spec §4.9 "Upload").
//
// A *ferrors.Error with Code == CodeChecksumMismatch means the server
// rejected the committed content; per spec §4.9 the caller must not retry
// with the same bytes — Upload does not retry internally on that error.
func (c *Client) Upload(ctx context.Context, opts UploadOptions) error {
	f, err := os.Open(opts.LocalPath)
	if err != nil {
		return ferrors.Wrap(ferrors.KindInput, ferrors.CodeInvalidArgument, "open local file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return ferrors.Wrap(ferrors.KindInput, ferrors.CodeInvalidArgument, "stat local file", err)
	}
	totalSize := uint64(info.Size())

	digest, err := digestReader(f)
	if err != nil {
		return ferrors.Internal("digest local file", err)
	}

	startReq := wire.PutStartRequest{
		Path:           opts.RemotePath,
		TotalSize:      totalSize,
		ExpectedDigest: digest,
	}
	startFrame, err := c.roundTrip(ctx, wire.CmdPutStart, startReq, nil)
	if err != nil {
		return err
	}
	var startResp wire.PutStartResponse
	if err := startFrame.DecodePayload(&startResp); err != nil {
		return err
	}

	resumeOffset := startResp.ResumeOffset
	logger.Debug("upload %s -> %s: resuming at offset %d of %d", opts.LocalPath, opts.RemotePath, resumeOffset, totalSize)

	if _, err := f.Seek(int64(resumeOffset), io.SeekStart); err != nil {
		return ferrors.Internal("seek local file", err)
	}

	progress := newProgressEmitter(opts.Progress, OpUpload, opts.RemotePath, totalSize)
	progress.report(resumeOffset)

	chunkSize := c.ChunkSize()
	if chunkSize == 0 {
		chunkSize = 256 * 1024
	}
	buf := make([]byte, chunkSize)
	offset := resumeOffset

	for offset < totalSize {
		n, readErr := io.ReadFull(f, buf)
		if readErr != nil && readErr != io.ErrUnexpectedEOF && readErr != io.EOF {
			return ferrors.Internal("read local file", readErr)
		}
		if n == 0 {
			break
		}

		chunkReq := wire.PutChunkRequest{Path: opts.RemotePath, Offset: offset}
		chunkFrame, err := c.roundTrip(ctx, wire.CmdPutChunk, chunkReq, buf[:n])
		if err != nil {
			return err
		}
		var chunkResp wire.PutChunkResponse
		if err := chunkFrame.DecodePayload(&chunkResp); err != nil {
			return err
		}

		offset = chunkResp.BytesCommitted
		progress.report(offset)
	}

	commitFrame, err := c.roundTrip(ctx, wire.CmdPutCommit, wire.PutCommitRequest{Path: opts.RemotePath}, nil)
	if err != nil {
		return err
	}
	_ = commitFrame

	progress.report(totalSize)
	logger.Debug("upload %s -> %s: committed", opts.LocalPath, opts.RemotePath)
	return nil
}

func digestReader(r io.ReadSeeker) (string, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	h := sha256.New()
	if _, err := io.Copy(h, r); err != nil {
		return "", err
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
