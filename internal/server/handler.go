package server

import (
	"context"
	"fmt"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/fileops"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/internal/session"
	"github.com/fileharbor/fileharbor/internal/wire"
)

// dispatch is the single function over the command variant (spec Design
// Note: "Dynamic dispatch over commands ... model the command set as a
// tagged variant and dispatch with one function over that variant, not a
// polymorphic command-object registry"). Every branch resolves the path,
// acquires whatever lock it needs, calls the library's backend, and
// converts the result or error into a response frame.
func (c *conn) dispatch(ctx context.Context, frame *wire.Frame) *wire.Frame {
	start := time.Now()
	lib, err := c.server.libraries.Lookup(c.sess.LibraryID)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	backend, ok := c.server.backends[lib.ID]
	if !ok {
		return c.errorFrame(frame, ferrors.Internal("no backend configured for library", nil))
	}

	var resp *wire.Frame
	switch frame.Command {
	case wire.CmdPing:
		resp = mustFrame(wire.KindResponse, wire.CmdPing, wire.StatusSuccess, nil, nil)
	case wire.CmdPutStart:
		resp = c.handlePutStart(ctx, frame, lib, backend)
	case wire.CmdPutChunk:
		resp = c.handlePutChunk(ctx, frame, lib, backend)
	case wire.CmdPutCommit:
		resp = c.handlePutCommit(ctx, frame, lib, backend)
	case wire.CmdGetStart:
		resp = c.handleGetStart(ctx, frame, lib, backend)
	case wire.CmdGetChunk:
		resp = c.handleGetChunk(ctx, frame, lib, backend)
	case wire.CmdDelete:
		resp = c.handleDelete(ctx, frame, lib, backend)
	case wire.CmdRename:
		resp = c.handleRename(ctx, frame, lib, backend)
	case wire.CmdMkdir:
		resp = c.handleMkdir(ctx, frame, lib, backend)
	case wire.CmdRmdir:
		resp = c.handleRmdir(ctx, frame, lib, backend)
	case wire.CmdList:
		resp = c.handleList(ctx, frame, backend)
	case wire.CmdManifest:
		resp = c.handleManifest(ctx, frame, backend)
	case wire.CmdChecksum:
		resp = c.handleChecksum(ctx, frame, backend)
	case wire.CmdStat:
		resp = c.handleStat(ctx, frame, backend)
	case wire.CmdExists:
		resp = c.handleExists(ctx, frame, backend)
	default:
		resp = c.errorFrame(frame, ferrors.BadRequest("unknown command"))
	}

	c.server.metrics.RecordCommand(frame.Command.String(), lib.ID, resp.Status.String(), time.Since(start))
	return resp
}

func (c *conn) errorFrame(req *wire.Frame, err error) *wire.Frame {
	var cmd wire.Command
	if req != nil {
		cmd = req.Command
	}
	return mustFrame(wire.KindResponse, cmd, wire.StatusForError(err), errorPayload(err), nil)
}

func (c *conn) ok(cmd wire.Command, payload any, body []byte) *wire.Frame {
	return mustFrame(wire.KindResponse, cmd, wire.StatusSuccess, payload, body)
}

// resolvePath validates rel against lib's root without requiring the path
// to already exist (spec §4.2 steps 1-2; used for operations that may
// create a new path, such as PUT_START and MKDIR).
func resolvePath(lib libraryResolver, rel string) (string, error) {
	return lib.Resolve(rel)
}

// libraryResolver narrows *library.Library to the two path operations the
// handlers need, so tests can supply a fake without a real filesystem root.
type libraryResolver interface {
	Resolve(rel string) (string, error)
	ResolveExisting(rel string) (string, error)
}

func (c *conn) handlePutStart(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.PutStartRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := resolvePath(lib, req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	if err := c.server.sessions.AcquireLock(c.sess, req.Path, session.LockExclusive); err != nil {
		return c.errorFrame(frame, err)
	}

	status, err := backend.StartUpload(ctx, abs, req.TotalSize, req.ExpectedDigest)
	if err != nil {
		c.server.sessions.ReleaseLock(c.sess, req.Path)
		return c.errorFrame(frame, err)
	}

	c.sess.StartTransfer(req.Path, session.DirectionUpload, &session.TransferState{
		Direction:      session.DirectionUpload,
		Path:           req.Path,
		TotalSize:      req.TotalSize,
		BytesCommitted: status.ResumeOffset,
		ExpectedDigest: req.ExpectedDigest,
		StagingPath:    status.StagingPath,
		StartedAt:      time.Now(),
	})

	return c.ok(wire.CmdPutStart, wire.PutStartResponse{ResumeOffset: status.ResumeOffset}, nil)
}

func (c *conn) handlePutChunk(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.PutChunkRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	transfer, ok := c.sess.Transfer(req.Path, session.DirectionUpload)
	if !ok {
		return c.errorFrame(frame, ferrors.BadRequest("no active upload for path; call PUT_START first"))
	}
	if req.Offset+uint64(len(frame.Body)) > transfer.TotalSize {
		return c.errorFrame(frame, ferrors.SizeTooLarge(
			fmt.Sprintf("chunk at offset %d would commit %d bytes, exceeding the declared total size %d",
				req.Offset, req.Offset+uint64(len(frame.Body)), transfer.TotalSize)))
	}
	abs, err := resolvePath(lib, req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	limiter := c.server.limiters.Get(c.sess.ClientID, c.sess.LibraryID)
	if err := limiter.Consume(ctx, uint64(len(frame.Body))); err != nil {
		return c.errorFrame(frame, ferrors.Wrap(ferrors.KindTransport, ferrors.CodeInternalError, "rate limit wait cancelled", err))
	}

	committed, err := backend.WriteChunk(ctx, abs, req.Offset, frame.Body)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	c.sess.SetBytesCommitted(req.Path, session.DirectionUpload, committed)
	c.server.metrics.RecordBytesTransferred("upload", c.sess.LibraryID, uint64(len(frame.Body)))

	return c.ok(wire.CmdPutChunk, wire.PutChunkResponse{BytesCommitted: committed}, nil)
}

func (c *conn) handlePutCommit(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.PutCommitRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	transfer, ok := c.sess.Transfer(req.Path, session.DirectionUpload)
	if !ok {
		return c.errorFrame(frame, ferrors.BadRequest("no active upload for path"))
	}
	abs, err := resolvePath(lib, req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	err = backend.CommitUpload(ctx, abs, transfer.ExpectedDigest, req.Mtime)
	if abortErr := c.server.sessions.AbortUpload(c.sess, req.Path); abortErr != nil {
		logger.Warn("session teardown after PUT_COMMIT: %v", abortErr)
	}
	if err != nil {
		return c.errorFrame(frame, err)
	}

	return c.ok(wire.CmdPutCommit, wire.PutCommitResponse{}, nil)
}

func (c *conn) handleGetStart(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.GetStartRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	if err := c.server.sessions.AcquireLock(c.sess, req.Path, session.LockShared); err != nil {
		return c.errorFrame(frame, err)
	}

	status, err := backend.StartDownload(ctx, abs, req.Offset)
	if err != nil {
		c.server.sessions.ReleaseLock(c.sess, req.Path)
		return c.errorFrame(frame, err)
	}

	c.sess.StartTransfer(req.Path, session.DirectionDownload, &session.TransferState{
		Direction:      session.DirectionDownload,
		Path:           req.Path,
		TotalSize:      status.Size,
		BytesCommitted: req.Offset,
		ExpectedDigest: status.Digest,
		StartedAt:      time.Now(),
	})

	return c.ok(wire.CmdGetStart, wire.GetStartResponse{Size: status.Size, Digest: status.Digest}, nil)
}

func (c *conn) handleGetChunk(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.GetChunkRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	if _, ok := c.sess.Transfer(req.Path, session.DirectionDownload); !ok {
		return c.errorFrame(frame, ferrors.BadRequest("no active download for path; call GET_START first"))
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	limiter := c.server.limiters.Get(c.sess.ClientID, c.sess.LibraryID)
	if err := limiter.Consume(ctx, uint64(req.Max)); err != nil {
		return c.errorFrame(frame, ferrors.Wrap(ferrors.KindTransport, ferrors.CodeInternalError, "rate limit wait cancelled", err))
	}

	data, err := backend.ReadChunk(ctx, abs, req.Offset, req.Max)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	c.sess.SetBytesCommitted(req.Path, session.DirectionDownload, req.Offset+uint64(len(data)))
	c.server.metrics.RecordBytesTransferred("download", c.sess.LibraryID, uint64(len(data)))

	if len(data) == 0 {
		c.sess.EndTransfer(req.Path, session.DirectionDownload)
		c.server.sessions.ReleaseLock(c.sess, req.Path)
	}

	return c.ok(wire.CmdGetChunk, nil, data)
}

func (c *conn) handleDelete(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.DeleteRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	if err := c.server.sessions.AcquireLock(c.sess, req.Path, session.LockExclusive); err != nil {
		return c.errorFrame(frame, err)
	}
	defer c.server.sessions.ReleaseLock(c.sess, req.Path)

	if err := backend.Delete(ctx, abs); err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdDelete, nil, nil)
}

func (c *conn) handleRename(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.RenameRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	fromAbs, err := lib.ResolveExisting(req.From)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	toAbs, err := lib.Resolve(req.To)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	if err := c.server.sessions.AcquireLock(c.sess, req.From, session.LockExclusive); err != nil {
		return c.errorFrame(frame, err)
	}
	defer c.server.sessions.ReleaseLock(c.sess, req.From)
	if err := c.server.sessions.AcquireLock(c.sess, req.To, session.LockExclusive); err != nil {
		return c.errorFrame(frame, err)
	}
	defer c.server.sessions.ReleaseLock(c.sess, req.To)

	if err := backend.Rename(ctx, fromAbs, toAbs); err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdRename, nil, nil)
}

func (c *conn) handleMkdir(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.MkdirRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.Resolve(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	if err := backend.Mkdir(ctx, abs); err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdMkdir, nil, nil)
}

func (c *conn) handleRmdir(ctx context.Context, frame *wire.Frame, lib libraryResolver, backend fileops.Backend) *wire.Frame {
	var req wire.RmdirRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	if err := c.server.sessions.AcquireLock(c.sess, req.Path, session.LockExclusive); err != nil {
		return c.errorFrame(frame, err)
	}
	defer c.server.sessions.ReleaseLock(c.sess, req.Path)

	if err := backend.Rmdir(ctx, abs, req.Recursive); err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdRmdir, nil, nil)
}

func (c *conn) handleList(ctx context.Context, frame *wire.Frame, backend fileops.Backend) *wire.Frame {
	var req wire.ListRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	lib, err := c.server.libraries.Lookup(c.sess.LibraryID)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	entries, err := backend.List(ctx, abs, req.Recursive)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdList, wire.ListResponse{Entries: toEntryDTOs(entries)}, nil)
}

func (c *conn) handleManifest(ctx context.Context, frame *wire.Frame, backend fileops.Backend) *wire.Frame {
	var req wire.ManifestRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	lib, err := c.server.libraries.Lookup(c.sess.LibraryID)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Root)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	entries, err := backend.Manifest(ctx, abs)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdManifest, wire.ManifestResponse{Entries: toEntryDTOs(entries)}, nil)
}

func (c *conn) handleChecksum(ctx context.Context, frame *wire.Frame, backend fileops.Backend) *wire.Frame {
	var req wire.ChecksumRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	lib, err := c.server.libraries.Lookup(c.sess.LibraryID)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	digest, err := backend.Checksum(ctx, abs)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdChecksum, wire.ChecksumResponse{Digest: digest}, nil)
}

func (c *conn) handleStat(ctx context.Context, frame *wire.Frame, backend fileops.Backend) *wire.Frame {
	var req wire.StatRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	lib, err := c.server.libraries.Lookup(c.sess.LibraryID)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.ResolveExisting(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	st, err := backend.StatFile(ctx, abs)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdStat, wire.StatResponse{Size: st.Size, Digest: st.Digest, ModTime: st.ModTime}, nil)
}

func (c *conn) handleExists(ctx context.Context, frame *wire.Frame, backend fileops.Backend) *wire.Frame {
	var req wire.ExistsRequest
	if err := frame.DecodePayload(&req); err != nil {
		return c.errorFrame(frame, err)
	}
	lib, err := c.server.libraries.Lookup(c.sess.LibraryID)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	abs, err := lib.Resolve(req.Path)
	if err != nil {
		return c.errorFrame(frame, err)
	}

	exists, err := backend.Exists(ctx, abs)
	if err != nil {
		return c.errorFrame(frame, err)
	}
	return c.ok(wire.CmdExists, wire.ExistsResponse{Exists: exists}, nil)
}

func toEntryDTOs(entries []fileops.Entry) []wire.EntryDTO {
	out := make([]wire.EntryDTO, 0, len(entries))
	for _, e := range entries {
		kind := "file"
		if e.Kind == fileops.KindDirectory {
			kind = "directory"
		}
		out = append(out, wire.EntryDTO{
			Path:    e.Path,
			Kind:    kind,
			Size:    e.Size,
			ModTime: e.ModTime,
			Digest:  e.Digest,
		})
	}
	return out
}
