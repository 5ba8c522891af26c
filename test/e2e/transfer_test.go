package e2e

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/wire"
)

// TestPutChunkExceedingTotalSizeRejected mirrors spec §3's invariant
// "bytes_committed ≤ total_size": a chunk that would commit past the
// size PUT_START declared is rejected before it ever reaches the backend.
func TestPutChunkExceedingTotalSizeRejected(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "media", AuthorizedIDs: []string{"alice"}}},
		[]ClientSpec{{Name: "alice"}},
	)

	const totalSize = 16
	payload := make([]byte, totalSize)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	conn := dialRaw(t, h, "alice", "media")
	defer conn.Close()

	sendRaw(t, conn, wire.CmdPutStart, wire.PutStartRequest{
		Path:           "oversize.bin",
		TotalSize:      totalSize,
		ExpectedDigest: sha256Hex(payload),
	}, nil)
	startResp := recvRaw(t, conn)
	require.Equal(t, wire.StatusSuccess, startResp.Status)

	oversized := make([]byte, totalSize+8)
	copy(oversized, payload)
	sendRaw(t, conn, wire.CmdPutChunk, wire.PutChunkRequest{Path: "oversize.bin", Offset: 0}, oversized)
	chunkResp := recvRaw(t, conn)

	require.Equal(t, wire.StatusBadRequest, chunkResp.Status)
	var errPayload wire.ErrorPayload
	require.NoError(t, chunkResp.DecodePayload(&errPayload))
	require.Equal(t, string(ferrors.CodeSizeTooLarge), errPayload.Code)
}

// TestChecksumMismatchAllowsRetry mirrors spec §7's integrity handling: a
// PUT_COMMIT with a digest that doesn't match the staged bytes is rejected
// and the upload's path lock is released (not left dangling), so the same
// client can immediately retry the transfer from scratch.
func TestChecksumMismatchAllowsRetry(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "media", AuthorizedIDs: []string{"alice"}}},
		[]ClientSpec{{Name: "alice"}},
	)

	payload := make([]byte, 64)
	_, err := rand.Read(payload)
	require.NoError(t, err)
	wrongDigest := sha256Hex(append([]byte("not-the-payload"), payload...))

	conn := dialRaw(t, h, "alice", "media")
	defer conn.Close()

	sendRaw(t, conn, wire.CmdPutStart, wire.PutStartRequest{
		Path:           "mismatch.bin",
		TotalSize:      uint64(len(payload)),
		ExpectedDigest: wrongDigest,
	}, nil)
	require.Equal(t, wire.StatusSuccess, recvRaw(t, conn).Status)

	sendRaw(t, conn, wire.CmdPutChunk, wire.PutChunkRequest{Path: "mismatch.bin", Offset: 0}, payload)
	require.Equal(t, wire.StatusSuccess, recvRaw(t, conn).Status)

	sendRaw(t, conn, wire.CmdPutCommit, wire.PutCommitRequest{Path: "mismatch.bin"}, nil)
	commitResp := recvRaw(t, conn)
	require.Equal(t, wire.StatusChecksumMismatch, commitResp.Status)

	// The failed commit must have released the lock and cleared the
	// transfer: retrying PUT_START for the same path succeeds immediately.
	sendRaw(t, conn, wire.CmdPutStart, wire.PutStartRequest{
		Path:           "mismatch.bin",
		TotalSize:      uint64(len(payload)),
		ExpectedDigest: sha256Hex(payload),
	}, nil)
	retryResp := recvRaw(t, conn)
	require.Equal(t, wire.StatusSuccess, retryResp.Status)
	var retryStart wire.PutStartResponse
	require.NoError(t, retryResp.DecodePayload(&retryStart))
	require.Equal(t, uint64(0), retryStart.ResumeOffset)

	sendRaw(t, conn, wire.CmdPutChunk, wire.PutChunkRequest{Path: "mismatch.bin", Offset: 0}, payload)
	require.Equal(t, wire.StatusSuccess, recvRaw(t, conn).Status)

	sendRaw(t, conn, wire.CmdPutCommit, wire.PutCommitRequest{Path: "mismatch.bin"}, nil)
	require.Equal(t, wire.StatusSuccess, recvRaw(t, conn).Status)
}
