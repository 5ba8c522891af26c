package pathresolver

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveAcceptsOrdinaryRelativePath(t *testing.T) {
	root := t.TempDir()
	got, err := Resolve(root, "docs/report.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(got, root))
	assert.Equal(t, filepath.Join(root, "docs", "report.pdf"), got)
}

func TestResolveRejectsDotDot(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "../etc/passwd")
	require.Error(t, err)
	assert.True(t, ferrors.IsKind(err, ferrors.KindInput))
}

func TestResolveRejectsAbsolutePath(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "/etc/passwd")
	require.Error(t, err)
}

func TestResolveRejectsEmbeddedNUL(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "foo\x00bar")
	require.Error(t, err)
}

func TestResolveRejectsWindowsDriveAbsolutePath(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, `C:\Windows\System32`)
	require.Error(t, err)
}

func TestResolveRejectsDeepDotDotDisguisedAsSubpath(t *testing.T) {
	root := t.TempDir()
	_, err := Resolve(root, "a/b/../../../secret")
	require.Error(t, err)
}

func TestResolveExistingFollowsSymlinkEscape(t *testing.T) {
	root := t.TempDir()
	outside := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(outside, "secret.txt"), []byte("x"), 0o644))
	require.NoError(t, os.Symlink(outside, filepath.Join(root, "escape")))

	_, err := ResolveExisting(root, "escape/secret.txt")
	require.Error(t, err)
	assert.True(t, ferrors.IsKind(err, ferrors.KindInput))
}

func TestResolveExistingAllowsNonExistentTarget(t *testing.T) {
	root := t.TempDir()
	got, err := ResolveExisting(root, "new/file.txt")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "new", "file.txt"), got)
}
