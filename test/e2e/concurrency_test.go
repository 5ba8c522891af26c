package e2e

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/wire"
)

// TestConcurrentWritersLocked mirrors spec §8 scenario 6: two sessions
// racing PUT_START on the same path. One wins and holds the exclusive
// lock; the other is rejected with a conflict until the winner finishes.
func TestConcurrentWritersLocked(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "docs", AuthorizedIDs: []string{"alice", "bob"}}},
		[]ClientSpec{{Name: "alice"}, {Name: "bob"}},
	)

	connA := dialRaw(t, h, "alice", "docs")
	defer connA.Close()
	connB := dialRaw(t, h, "bob", "docs")
	defer connB.Close()

	sendRaw(t, connA, wire.CmdPutStart, wire.PutStartRequest{
		Path: "shared.txt", TotalSize: 4, ExpectedDigest: sha256Hex([]byte("data")),
	}, nil)
	aResp := recvRaw(t, connA)
	require.Equal(t, wire.StatusSuccess, aResp.Status)

	sendRaw(t, connB, wire.CmdPutStart, wire.PutStartRequest{
		Path: "shared.txt", TotalSize: 4, ExpectedDigest: sha256Hex([]byte("data")),
	}, nil)
	bResp := recvRaw(t, connB)
	require.NotEqual(t, wire.StatusSuccess, bResp.Status, "second PUT_START on the same path must be rejected while the first is open")

	var errPayload wire.ErrorPayload
	require.NoError(t, bResp.DecodePayload(&errPayload))
	require.Equal(t, ferrors.KindResource.String(), errPayload.Kind)

	// Alice finishes her upload; the lock is released on commit.
	sendRaw(t, connA, wire.CmdPutChunk, wire.PutChunkRequest{Path: "shared.txt", Offset: 0}, []byte("data"))
	chunkResp := recvRaw(t, connA)
	require.Equal(t, wire.StatusSuccess, chunkResp.Status)

	sendRaw(t, connA, wire.CmdPutCommit, wire.PutCommitRequest{Path: "shared.txt"}, nil)
	commitResp := recvRaw(t, connA)
	require.Equal(t, wire.StatusSuccess, commitResp.Status)

	// Now Bob can acquire the lock and write his own version.
	sendRaw(t, connB, wire.CmdPutStart, wire.PutStartRequest{
		Path: "shared.txt", TotalSize: 5, ExpectedDigest: sha256Hex([]byte("data2")),
	}, nil)
	bResp2 := recvRaw(t, connB)
	require.Equal(t, wire.StatusSuccess, bResp2.Status)
}

// TestSerializedWritesBlockAcrossLibrary covers a library configured with
// SerializeWrites: concurrent PUT_STARTs to different paths within the
// same library still serialize on the library-wide write mutex (spec
// §4.5 "Library mutex", §9 Open Question: "default on").
func TestSerializedWritesBlockAcrossLibrary(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "strict", AuthorizedIDs: []string{"alice", "bob"}, SerializeWrites: true}},
		[]ClientSpec{{Name: "alice"}, {Name: "bob"}},
	)

	connA := dialRaw(t, h, "alice", "strict")
	defer connA.Close()
	connB := dialRaw(t, h, "bob", "strict")
	defer connB.Close()

	sendRaw(t, connA, wire.CmdPutStart, wire.PutStartRequest{
		Path: "a.txt", TotalSize: 1, ExpectedDigest: sha256Hex([]byte("x")),
	}, nil)
	aResp := recvRaw(t, connA)
	require.Equal(t, wire.StatusSuccess, aResp.Status)

	sendRaw(t, connB, wire.CmdPutStart, wire.PutStartRequest{
		Path: "b.txt", TotalSize: 1, ExpectedDigest: sha256Hex([]byte("y")),
	}, nil)
	bResp := recvRaw(t, connB)
	require.NotEqual(t, wire.StatusSuccess, bResp.Status,
		"a different path in a SerializeWrites library must still be blocked by the library-wide write mutex")
}
