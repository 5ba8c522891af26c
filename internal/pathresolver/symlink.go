package pathresolver

import (
	"os"
	"path/filepath"

	"github.com/fileharbor/fileharbor/internal/ferrors"
)

// ResolveExisting resolves rel beneath root the same way Resolve does, then
// additionally verifies that if the target already exists on disk, its
// symlink-evaluated form is still a descendant of root (spec §4.2 step 3:
// "including symlink resolution when the target exists"). Use this for
// operations that touch an existing path (read, delete, rename-from, stat);
// use plain Resolve for operations that create a new path (write staging,
// mkdir), where no target exists yet to resolve symlinks against.
func ResolveExisting(root, rel string) (string, error) {
	resolved, err := Resolve(root, rel)
	if err != nil {
		return "", err
	}

	real, err := filepath.EvalSymlinks(resolved)
	if err != nil {
		if os.IsNotExist(err) {
			// Nothing on disk yet; the pre-symlink resolution already
			// proved it stays inside root.
			return resolved, nil
		}
		return "", ferrors.Internal("evaluate symlinks", err)
	}

	cleanRoot, err := filepath.EvalSymlinks(root)
	if err != nil {
		cleanRoot = filepath.Clean(root)
	}

	if !isDescendant(cleanRoot, real) {
		return "", ferrors.PathTraversal("resolved path escapes the library root via a symlink")
	}

	return resolved, nil
}
