// Package session implements the session registry (spec §4.5): session
// lifecycle, the file lock table, the idle reaper, and clean shutdown.
package session

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/library"
	"github.com/fileharbor/fileharbor/internal/logger"
)

// TerminationReason records why a session ended, for audit logging.
type TerminationReason string

const (
	ReasonDisconnect   TerminationReason = "disconnect"
	ReasonIdleTimeout  TerminationReason = "idle-timeout"
	ReasonServerStop   TerminationReason = "server-shutdown"
	ReasonProtocolFail TerminationReason = "protocol-error"
)

// Registry is the server's sole mutable, shared module (spec Design Note:
// "Global mutable state: ... The session registry is the sole mutable,
// shared module"). It tracks live sessions, owns the lock table, and runs
// the idle reaper.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	libraries *library.Manager
	locks     *LockTable

	reaperStop chan struct{}
	reaperDone chan struct{}
}

// NewRegistry constructs an empty registry bound to a library manager.
func NewRegistry(libraries *library.Manager) *Registry {
	return &Registry{
		sessions:   make(map[string]*Session),
		libraries:  libraries,
		locks:      NewLockTable(),
		reaperStop: make(chan struct{}),
		reaperDone: make(chan struct{}),
	}
}

// Create inserts a new session bound to libraryID for clientID (spec §4.5
// "Creation at handshake success; insertion MUST be race-free"). Returns the
// session and a context that is cancelled when the session is terminated,
// so the connection loop serving it can stop once it ends.
func (r *Registry) Create(clientID, libraryID, peerAddr string) (*Session, context.Context) {
	ctx, cancel := context.WithCancel(context.Background())
	id := uuid.NewString()
	sess := newSession(id, clientID, libraryID, peerAddr, cancel)

	r.mu.Lock()
	r.sessions[id] = sess
	r.mu.Unlock()

	return sess, ctx
}

// Get returns the live session for id, if any.
func (r *Registry) Get(id string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[id]
	return s, ok
}

// Count returns the number of live sessions, for metrics.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// AcquireLock acquires mode on path within sess's bound library, honoring
// the per-library write mutex when the library enables it (spec §4.5
// "Library mutex"). On success the lock is recorded against the session so
// Terminate can release it.
func (r *Registry) AcquireLock(sess *Session, path string, mode LockMode) error {
	lib, err := r.libraries.Lookup(sess.LibraryID)
	if err != nil {
		return err
	}

	if mode == LockExclusive && lib.SerializeWrites {
		if err := r.locks.AcquireLibraryWrite(lib.ID, sess.ID); err != nil {
			return err
		}
		sess.mu.Lock()
		sess.heldLibraryLock = true
		sess.mu.Unlock()
	}

	if err := r.locks.TryAcquire(lib.ID, path, mode, sess.ID); err != nil {
		if mode == LockExclusive && lib.SerializeWrites {
			r.locks.ReleaseLibraryWrite(lib.ID, sess.ID)
			sess.mu.Lock()
			sess.heldLibraryLock = false
			sess.mu.Unlock()
		}
		return err
	}

	sess.recordLock(LockKeyInfo{LibraryID: lib.ID, Path: path})
	return nil
}

// ReleaseLock releases a previously acquired lock on path. Once the session
// holds no path lock, the library write token it took is released too.
func (r *Registry) ReleaseLock(sess *Session, path string) {
	r.locks.Release(sess.LibraryID, path, sess.ID)
	sess.forgetLock(LockKeyInfo{LibraryID: sess.LibraryID, Path: path})

	sess.mu.Lock()
	defer sess.mu.Unlock()
	if sess.heldLibraryLock && len(sess.heldLocks) == 0 {
		r.locks.ReleaseLibraryWrite(sess.LibraryID, sess.ID)
		sess.heldLibraryLock = false
	}
}

// Terminate ends a session: releases its locks, deletes its upload staging
// files, cancels its context, and removes it from the registry (spec §4.5,
// §4.8 "CLOSING"). It is idempotent; terminating an already-gone session id
// is a no-op.
func (r *Registry) Terminate(id string, reason TerminationReason) {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return
	}

	r.teardown(sess, reason)
}

func (r *Registry) teardown(sess *Session, reason TerminationReason) {
	for _, path := range sess.activeUploadStagingPaths() {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			logger.Warn("failed to remove staging file %s for session %s: %v", path, sess.ID, err)
		}
	}

	for _, k := range sess.lockSnapshot() {
		r.locks.Release(k.LibraryID, k.Path, sess.ID)
	}
	sess.mu.Lock()
	if sess.heldLibraryLock {
		r.locks.ReleaseLibraryWrite(sess.LibraryID, sess.ID)
		sess.heldLibraryLock = false
	}
	sess.mu.Unlock()

	sess.cancel()

	logger.Audit("SESSION_END", map[string]any{
		"session_id": sess.ID,
		"client_id":  sess.ClientID,
		"library_id": sess.LibraryID,
		"reason":     string(reason),
	})
}

// StartIdleReaper launches the background idle-session scanner (spec §4.5
// "Idle reaper"). It runs until Shutdown is called or ctx is cancelled.
func (r *Registry) StartIdleReaper(ctx context.Context, interval time.Duration) {
	go func() {
		defer close(r.reaperDone)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-r.reaperStop:
				return
			case <-ticker.C:
				r.sweep()
			}
		}
	}()
}

// sweep terminates every session whose last activity exceeds its library's
// idle timeout, concurrently (spec §8 invariant: "within one reaper
// interval, the session is absent from the registry, its staging files are
// removed, and its locks released").
func (r *Registry) sweep() {
	now := time.Now()

	r.mu.RLock()
	candidates := make([]*Session, 0, len(r.sessions))
	for _, sess := range r.sessions {
		lib, err := r.libraries.Lookup(sess.LibraryID)
		if err != nil {
			continue
		}
		if lib.IdleTimeout > 0 && sess.IdleSince(now) > lib.IdleTimeout {
			candidates = append(candidates, sess)
		}
	}
	r.mu.RUnlock()

	if len(candidates) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(8)
	for _, sess := range candidates {
		sess := sess
		p.Go(func() {
			r.Terminate(sess.ID, ReasonIdleTimeout)
		})
	}
	p.Wait()
}

// Shutdown terminates every live session (spec §4.5 "Shutdown: on server
// stop, the registry terminates all sessions cleanly before the acceptor
// exits") and stops the idle reaper.
func (r *Registry) Shutdown() {
	close(r.reaperStop)
	select {
	case <-r.reaperDone:
	case <-time.After(5 * time.Second):
	}

	r.mu.RLock()
	ids := make([]string, 0, len(r.sessions))
	for id := range r.sessions {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	p := pool.New().WithMaxGoroutines(8)
	for _, id := range ids {
		id := id
		p.Go(func() {
			r.Terminate(id, ReasonServerStop)
		})
	}
	p.Wait()
}

// AbortUpload tears down an in-flight upload's session-side state: clears
// its transfer and releases its path lock, without terminating the
// session. It also removes the staging file as a best-effort cleanup for
// backends that leave one behind; a backend whose CommitUpload already
// removed it on a checksum mismatch just gets a no-op os.Remove here.
// Called unconditionally at the end of PUT_COMMIT (spec has no standalone
// ABORT command), so it covers both the success and failure paths.
func (r *Registry) AbortUpload(sess *Session, path string) error {
	t, ok := sess.Transfer(path, DirectionUpload)
	if !ok {
		return ferrors.NotFound("no active upload for path")
	}

	if t.StagingPath != "" {
		if err := os.Remove(t.StagingPath); err != nil && !os.IsNotExist(err) {
			return ferrors.Internal("remove staging file", err)
		}
	}

	sess.EndTransfer(path, DirectionUpload)
	r.ReleaseLock(sess, path)
	return nil
}
