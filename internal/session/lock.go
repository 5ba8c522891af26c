package session

import (
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/fileharbor/fileharbor/internal/ferrors"
)

// LockMode is exclusive-write or shared-read (spec §3 "File lock").
type LockMode int

const (
	LockShared LockMode = iota
	LockExclusive
)

// lockKey identifies a lockable resource: either a specific file path within
// a library, or — when Path is the sentinel libraryWriteSentinel — the whole
// library's write serialization token (spec §4.5 "Library mutex").
type lockKey struct {
	LibraryID string
	Path      string
}

const libraryWriteSentinel = "\x00library-write\x00"

type fileLock struct {
	mode    LockMode
	holders map[string]int // sessionID -> shared-read count (exclusive: single entry with count 1)
}

// numShards is chosen to give reasonable concurrency for a single-process
// server without per-path allocation churn; it need not be prime since keys
// are already well distributed by xxhash.
const numShards = 64

type shard struct {
	mu    sync.Mutex
	locks map[lockKey]*fileLock
}

// LockTable is the single owner of lock records (spec Design Note:
// "the lock table is the single owner of lock records; looking up from lock
// to session is via the stored session id, not a pointer cycle"). It is
// sharded by path hash to avoid a single global mutex serializing unrelated
// libraries and paths.
type LockTable struct {
	shards [numShards]*shard
}

// NewLockTable constructs an empty, ready-to-use lock table.
func NewLockTable() *LockTable {
	lt := &LockTable{}
	for i := range lt.shards {
		lt.shards[i] = &shard{locks: make(map[lockKey]*fileLock)}
	}
	return lt
}

func (lt *LockTable) shardFor(key lockKey) *shard {
	h := xxhash.Sum64String(key.LibraryID + "\x00" + key.Path)
	return lt.shards[h%numShards]
}

// TryAcquire attempts to acquire mode on (libraryID, path) for sessionID.
// It never blocks: spec §4.5 permits either blocking with a bounded timeout
// or returning a distinct, retryable locked error; this implementation
// chooses the latter, which keeps the connection handler's per-session
// command loop strictly synchronous (spec §5 "Ordering guarantees").
func (lt *LockTable) TryAcquire(libraryID, path string, mode LockMode, sessionID string) error {
	key := lockKey{LibraryID: libraryID, Path: path}
	s := lt.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.locks[key]
	if !ok {
		s.locks[key] = &fileLock{mode: mode, holders: map[string]int{sessionID: 1}}
		return nil
	}

	if existing.mode == LockShared && mode == LockShared {
		existing.holders[sessionID]++
		return nil
	}

	// Re-entrant exclusive acquisition by the same session that already
	// holds it (e.g. a resumed upload re-acquiring after a retried
	// PUT_START) is allowed; anything else with an incompatible mode is not.
	if existing.mode == LockExclusive && mode == LockExclusive {
		if _, already := existing.holders[sessionID]; already && len(existing.holders) == 1 {
			return nil
		}
	}

	return ferrors.Locked("path is locked by another session")
}

// Release drops sessionID's hold on (libraryID, path). Releasing a lock the
// session doesn't hold is a no-op (idempotent, since session cleanup may
// call it speculatively).
func (lt *LockTable) Release(libraryID, path, sessionID string) {
	key := lockKey{LibraryID: libraryID, Path: path}
	s := lt.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[key]
	if !ok {
		return
	}

	if _, held := lock.holders[sessionID]; !held {
		return
	}

	if lock.mode == LockShared {
		lock.holders[sessionID]--
		if lock.holders[sessionID] <= 0 {
			delete(lock.holders, sessionID)
		}
	} else {
		delete(lock.holders, sessionID)
	}

	if len(lock.holders) == 0 {
		delete(s.locks, key)
	}
}

// ReleaseAll drops every lock sessionID holds across the given keys, used on
// session termination (spec §4.5 "Locks are released on ... session end").
func (lt *LockTable) ReleaseAll(sessionID string, keys []LockKeyInfo) {
	for _, k := range keys {
		lt.Release(k.LibraryID, k.Path, sessionID)
	}
}

// LockKeyInfo is the exported view of a held lock, used by Session to track
// what it must release on teardown without exposing the internal lockKey
// type outside the package.
type LockKeyInfo struct {
	LibraryID string
	Path      string
}

// AcquireLibraryWrite acquires the whole-library write serialization token
// (spec §4.5 "Library mutex"), implemented as an ordinary exclusive lock on
// a reserved path sentinel so it reuses the same data structure and
// contention semantics as per-path locks.
func (lt *LockTable) AcquireLibraryWrite(libraryID, sessionID string) error {
	return lt.TryAcquire(libraryID, libraryWriteSentinel, LockExclusive, sessionID)
}

// ReleaseLibraryWrite releases the token acquired by AcquireLibraryWrite.
func (lt *LockTable) ReleaseLibraryWrite(libraryID, sessionID string) {
	lt.Release(libraryID, libraryWriteSentinel, sessionID)
}
