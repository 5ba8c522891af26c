package e2e

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/pkg/client"
)

// TestUnauthorizedLibraryRejected mirrors spec §8 scenario 3: a client
// holding a valid, unrevoked certificate that is simply not on a
// library's authorized list fails HANDSHAKE with the same "unauthorized"
// status as an unknown library (spec §8 scenario 3 literal expected
// response; see TestUnknownLibraryRejected), never reaching a session.
func TestUnauthorizedLibraryRejected(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "secrets", AuthorizedIDs: []string{"bob"}}},
		[]ClientSpec{{Name: "alice"}, {Name: "bob"}},
	)
	cfg := h.ClientConfig("alice", "secrets")

	_, err := client.Dial(context.Background(), cfg)
	require.Error(t, err)

	ferr, ok := ferrors.As(err)
	require.True(t, ok, "expected a *ferrors.Error, got %T: %v", err, err)
	require.Equal(t, ferrors.KindAuthentication, ferr.Kind)
	require.Equal(t, ferrors.CodeUnauthorized, ferr.Code)
}

// TestRevokedCertificateRejected mirrors spec §8 scenario 4: a client
// presenting a certificate for a revoked client record fails
// authentication before a session is ever created.
func TestRevokedCertificateRejected(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "docs", AuthorizedIDs: []string{"carol"}}},
		[]ClientSpec{{Name: "carol", Revoked: true}},
	)
	cfg := h.ClientConfig("carol", "docs")

	_, err := client.Dial(context.Background(), cfg)
	require.Error(t, err)

	ferr, ok := ferrors.As(err)
	require.True(t, ok, "expected a *ferrors.Error, got %T: %v", err, err)
	require.Equal(t, ferrors.KindAuthentication, ferr.Kind)
}

// TestUnknownLibraryRejected covers the companion case in spec §4.8: a
// handshake naming a library id that does not exist at all fails the
// same way as an unauthorized one (identical kind and code — see
// TestUnauthorizedLibraryRejected), without leaking which libraries exist.
func TestUnknownLibraryRejected(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "docs", AuthorizedIDs: []string{"alice"}}},
		[]ClientSpec{{Name: "alice"}},
	)
	cfg := h.ClientConfig("alice", "does-not-exist")

	_, err := client.Dial(context.Background(), cfg)
	require.Error(t, err)

	ferr, ok := ferrors.As(err)
	require.True(t, ok, "expected a *ferrors.Error, got %T: %v", err, err)
	require.Equal(t, ferrors.KindAuthentication, ferr.Kind)
	require.Equal(t, ferrors.CodeUnauthorized, ferr.Code)
}

// TestPathTraversalRejected mirrors spec §8 scenario 5: an upload whose
// remote path attempts to escape the library root is rejected before any
// file is created anywhere on disk, inside or outside the library.
func TestPathTraversalRejected(t *testing.T) {
	libRoot := t.TempDir()
	h := NewHarness(t,
		[]LibrarySpec{{ID: "docs", Root: libRoot, AuthorizedIDs: []string{"alice"}}},
		[]ClientSpec{{Name: "alice"}},
	)
	cfg := h.ClientConfig("alice", "docs")

	dir := t.TempDir()
	src := filepath.Join(dir, "payload.txt")
	require.NoError(t, os.WriteFile(src, []byte("attack"), 0o644))

	ctx := context.Background()

	for _, remote := range []string{
		"../etc/passwd",
		"../../outside.txt",
		"a/../../escape.txt",
	} {
		err := client.RetryUpload(ctx, cfg, client.UploadOptions{LocalPath: src, RemotePath: remote})
		require.Error(t, err, "remote path %q should be rejected", remote)

		ferr, ok := ferrors.As(err)
		require.True(t, ok, "expected a *ferrors.Error, got %T: %v", err, err)
		require.Equal(t, ferrors.KindInput, ferr.Kind)
	}

	// Nothing escaped the library root, and nothing was left inside it.
	parent := filepath.Dir(libRoot)
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	for _, e := range entries {
		require.NotEqual(t, "etc", e.Name())
		require.NotEqual(t, "outside.txt", e.Name())
		require.NotEqual(t, "escape.txt", e.Name())
	}

	inside, err := os.ReadDir(libRoot)
	require.NoError(t, err)
	require.Empty(t, inside)
}
