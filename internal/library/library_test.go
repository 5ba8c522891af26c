package library

import (
	"testing"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewManagerRejectsMissingRoot(t *testing.T) {
	_, err := NewManager([]*Library{
		{ID: "lib1", Root: "/does/not/exist/anywhere"},
	})
	require.Error(t, err)
}

func TestNewManagerRejectsDuplicateID(t *testing.T) {
	root := t.TempDir()
	_, err := NewManager([]*Library{
		{ID: "lib1", Root: root},
		{ID: "lib1", Root: root},
	})
	require.Error(t, err)
}

func TestManagerLookupAndAuthorization(t *testing.T) {
	root := t.TempDir()
	mgr, err := NewManager([]*Library{
		{ID: "lib1", Root: root, AuthorizedIDs: map[string]bool{"client-a": true}},
	})
	require.NoError(t, err)

	lib, err := mgr.Lookup("lib1")
	require.NoError(t, err)
	assert.Equal(t, root, lib.Root)

	assert.True(t, mgr.IsAuthorized("lib1", "client-a"))
	assert.False(t, mgr.IsAuthorized("lib1", "client-b"))
	assert.False(t, mgr.IsAuthorized("unknown-lib", "client-a"))
}

func TestManagerLookupUnknownLibrary(t *testing.T) {
	mgr, err := NewManager(nil)
	require.NoError(t, err)

	_, err = mgr.Lookup("missing")
	require.Error(t, err)
	assert.True(t, ferrors.IsKind(err, ferrors.KindResource))
}
