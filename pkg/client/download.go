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

// DownloadOptions configures one Download call.
type DownloadOptions struct {
	// RemotePath is the source path inside the bound library.
	RemotePath string
	// LocalPath is the destination file on the client's filesystem.
	LocalPath string
	// Progress, if set, receives Events during the transfer.
	Progress ProgressFunc
}

// Download resumes from any local partial file shorter than the server's
// advertised size, streams GET_CHUNK frames to end-of-stream, then verifies
// the assembled file's digest against the one GET_START reported (spec
// §4.9 "Download"). On a digest mismatch the local file is deleted and a
// *ferrors.Error with Code == CodeChecksumMismatch is returned.
func (c *Client) Download(ctx context.Context, opts DownloadOptions) error {
	resumeOffset, err := localResumeOffset(opts.LocalPath)
	if err != nil {
		return ferrors.Internal("stat local partial file", err)
	}

	startFrame, err := c.roundTrip(ctx, wire.CmdGetStart, wire.GetStartRequest{
		Path:   opts.RemotePath,
		Offset: resumeOffset,
	}, nil)
	if err != nil {
		return err
	}
	var startResp wire.GetStartResponse
	if err := startFrame.DecodePayload(&startResp); err != nil {
		return err
	}

	// The server may not honor a resume offset past its own idea of the
	// file's size (e.g. the remote file shrank since the last attempt);
	// treat the advertised size as authoritative and restart if our local
	// partial is now inconsistent with it.
	if resumeOffset > startResp.Size {
		resumeOffset = 0
	}

	flags := os.O_WRONLY | os.O_CREATE
	if resumeOffset == 0 {
		flags |= os.O_TRUNC
	}
	out, err := os.OpenFile(opts.LocalPath, flags, 0o644)
	if err != nil {
		return ferrors.Internal("open local destination", err)
	}
	defer out.Close()

	logger.Debug("download %s -> %s: resuming at offset %d of %d", opts.RemotePath, opts.LocalPath, resumeOffset, startResp.Size)

	progress := newProgressEmitter(opts.Progress, OpDownload, opts.RemotePath, startResp.Size)
	progress.report(resumeOffset)

	chunkSize := c.ChunkSize()
	if chunkSize == 0 {
		chunkSize = 256 * 1024
	}

	offset := resumeOffset
	for offset < startResp.Size {
		req := wire.GetChunkRequest{Path: opts.RemotePath, Offset: offset, Max: chunkSize}
		frame, err := c.roundTrip(ctx, wire.CmdGetChunk, req, nil)
		if err != nil {
			return err
		}
		if len(frame.Body) == 0 {
			break
		}
		if _, err := out.WriteAt(frame.Body, int64(offset)); err != nil {
			return ferrors.Internal("write local destination", err)
		}
		offset += uint64(len(frame.Body))
		progress.report(offset)
	}

	if err := out.Close(); err != nil {
		return ferrors.Internal("close local destination", err)
	}

	digest, err := digestFile(opts.LocalPath)
	if err != nil {
		return ferrors.Internal("digest local destination", err)
	}
	if digest != startResp.Digest {
		_ = os.Remove(opts.LocalPath)
		return ferrors.ChecksumMismatch("downloaded content does not match the server-advertised digest")
	}

	progress.report(startResp.Size)
	logger.Debug("download %s -> %s: verified", opts.RemotePath, opts.LocalPath)
	return nil
}

// localResumeOffset reports the length of an existing partial file at path,
// or 0 if none exists (spec §4.9 "if a local partial file exists ... pass
// its length as the resume offset; otherwise 0").
func localResumeOffset(path string) (uint64, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, err
	}
	return uint64(info.Size()), nil
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
