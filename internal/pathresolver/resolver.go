// Package pathresolver implements the single code path (spec §4.2) that
// maps a client-supplied relative path onto an absolute path beneath a
// library root, rejecting any attempt to escape that root. Every file
// operation entry point goes through Resolve; there is no second way in.
package pathresolver

import (
	"path/filepath"
	"strings"

	"github.com/fileharbor/fileharbor/internal/ferrors"
)

// MaxPathLength bounds the length of a client-supplied relative path.
const MaxPathLength = 4096

// MaxPathDepth bounds the number of path components.
const MaxPathDepth = 128

// reservedNames are rejected regardless of case on the platforms where they
// are meaningful (Windows device names); rejecting them everywhere keeps
// the rule platform-independent rather than conditionally compiled.
var reservedNames = map[string]bool{
	"CON": true, "PRN": true, "AUX": true, "NUL": true,
	"COM1": true, "COM2": true, "COM3": true, "COM4": true,
	"LPT1": true, "LPT2": true, "LPT3": true, "LPT4": true,
}

// Resolve validates rel against the traversal rules of spec §4.2 and
// returns the absolute path beneath root. It never follows symlinks itself;
// callers that need to know whether the resolved path crosses a symlink
// boundary should stat it after resolution (step 3 of §4.2 is enforced by
// ResolveExisting in symlink.go, which composes Resolve with EvalSymlinks).
func Resolve(root, rel string) (string, error) {
	if len(rel) > MaxPathLength {
		return "", ferrors.PathTraversal("path exceeds maximum length")
	}
	if strings.IndexByte(rel, 0) >= 0 {
		return "", ferrors.PathTraversal("path contains a NUL byte")
	}
	if filepath.IsAbs(rel) || isWindowsAbs(rel) {
		return "", ferrors.PathTraversal("path must be relative")
	}

	components := strings.Split(filepath.ToSlash(rel), "/")
	if len(components) > MaxPathDepth {
		return "", ferrors.PathTraversal("path exceeds maximum depth")
	}

	for _, c := range components {
		if c == ".." {
			return "", ferrors.PathTraversal("path contains a '..' component")
		}
		base := strings.ToUpper(strings.TrimSuffix(c, filepath.Ext(c)))
		if reservedNames[base] {
			return "", ferrors.PathTraversal("path contains a reserved component name")
		}
	}

	cleaned := filepath.Clean(filepath.Join(root, rel))

	cleanRoot := filepath.Clean(root)
	if !isDescendant(cleanRoot, cleaned) {
		return "", ferrors.PathTraversal("resolved path escapes the library root")
	}

	return cleaned, nil
}

// isDescendant reports whether path is root itself or lies beneath it,
// compared as strings on the normalized (Clean'd) absolute paths per
// spec §4.2 step 3 and the invariant in spec §8.
func isDescendant(root, path string) bool {
	if path == root {
		return true
	}
	sep := string(filepath.Separator)
	return strings.HasPrefix(path, strings.TrimSuffix(root, sep)+sep)
}

// isWindowsAbs catches Windows-style absolute/drive paths (e.g. "C:\foo",
// "\\server\share") even when running on a POSIX build, since a malicious
// client can send either form regardless of server platform.
func isWindowsAbs(p string) bool {
	if strings.HasPrefix(p, `\\`) {
		return true
	}
	if len(p) >= 2 && p[1] == ':' {
		c := p[0]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') {
			return true
		}
	}
	return false
}
