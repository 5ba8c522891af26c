// Package library implements the library manager (spec §4.4): the
// read-only, lock-free-after-startup set of named, path-rooted storage
// areas clients authenticate into.
package library

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/pathresolver"
)

// Library is one named, path-rooted storage area (spec §3 "Library").
type Library struct {
	ID              string
	Name            string
	Root            string
	AuthorizedIDs   map[string]bool
	RateCapBytes    uint64 // 0 = unbounded
	IdleTimeout     time.Duration
	SerializeWrites bool // per-library write mutex (spec §9 Open Question: default on)
}

// IsAuthorized reports whether clientID may access this library.
func (l *Library) IsAuthorized(clientID string) bool {
	return l.AuthorizedIDs[clientID]
}

// Resolve maps a client-supplied relative path onto an absolute path inside
// this library's root, rejecting escapes (spec §4.2).
func (l *Library) Resolve(rel string) (string, error) {
	return pathresolver.Resolve(l.Root, rel)
}

// ResolveExisting is Resolve plus symlink-aware verification for paths that
// may already exist on disk (spec §4.2 step 3).
func (l *Library) ResolveExisting(rel string) (string, error) {
	return pathresolver.ResolveExisting(l.Root, rel)
}

// Manager holds the library set for the server's lifetime. It is built once
// at startup and never mutated afterward (spec §5: "The library set ... [is]
// immutable after startup — lock-free reads"), so no mutex guards the map.
type Manager struct {
	libraries map[string]*Library
}

// NewManager validates and constructs a Manager from a set of libraries.
// Startup validation (spec §4.4): every root must exist and be a directory,
// and every id must be unique; a duplicate id is rejected here (pkg/config
// validation rejects duplicates as well).
func NewManager(libraries []*Library) (*Manager, error) {
	m := &Manager{libraries: make(map[string]*Library, len(libraries))}

	for _, lib := range libraries {
		if lib.ID == "" {
			return nil, fmt.Errorf("library has empty id")
		}
		if _, dup := m.libraries[lib.ID]; dup {
			return nil, fmt.Errorf("duplicate library id %q", lib.ID)
		}

		absRoot, err := filepath.Abs(lib.Root)
		if err != nil {
			return nil, fmt.Errorf("library %q: resolve absolute root: %w", lib.ID, err)
		}
		lib.Root = absRoot

		info, err := os.Stat(lib.Root)
		if err != nil {
			return nil, fmt.Errorf("library %q: root %q: %w", lib.ID, lib.Root, err)
		}
		if !info.IsDir() {
			return nil, fmt.Errorf("library %q: root %q is not a directory", lib.ID, lib.Root)
		}

		m.libraries[lib.ID] = lib
	}

	return m, nil
}

// Lookup returns the library with the given id, or a not-found error.
func (m *Manager) Lookup(libraryID string) (*Library, error) {
	lib, ok := m.libraries[libraryID]
	if !ok {
		return nil, ferrors.NotFound(fmt.Sprintf("library %q does not exist", libraryID))
	}
	return lib, nil
}

// IsAuthorized reports whether clientID may access libraryID. Returns false
// (never an error) for an unknown library; callers distinguish "library
// doesn't exist" from "not authorized" via a separate Lookup call, matching
// spec §4.8's two-step handshake check (library exists, then authorized).
func (m *Manager) IsAuthorized(libraryID, clientID string) bool {
	lib, ok := m.libraries[libraryID]
	if !ok {
		return false
	}
	return lib.IsAuthorized(clientID)
}

// All returns every configured library, for startup logging and admin
// surfaces only — never on a hot path.
func (m *Manager) All() []*Library {
	out := make([]*Library, 0, len(m.libraries))
	for _, lib := range m.libraries {
		out = append(out, lib)
	}
	return out
}
