package session

import (
	"context"
	"sync"
	"time"
)

// Direction distinguishes an upload in progress from a download in progress.
type Direction int

const (
	DirectionUpload Direction = iota
	DirectionDownload
)

// TransferState tracks one in-flight upload or download (spec §3 "Transfer
// state"), keyed by (session, relative path, direction) in Session.transfers.
type TransferState struct {
	Direction      Direction
	Path           string
	TotalSize      uint64
	BytesCommitted uint64
	ExpectedDigest string
	StagingPath    string // uploads only
	StartedAt      time.Time
}

type transferKey struct {
	Path      string
	Direction Direction
}

// Session is the authenticated association between one client connection
// and one library, for the connection's lifetime (spec §3 "Session").
type Session struct {
	ID         string
	ClientID   string
	LibraryID  string
	PeerAddr   string
	CreatedAt  time.Time

	mu             sync.Mutex
	lastActivity   time.Time
	heldLocks      []LockKeyInfo
	heldLibraryLock bool
	transfers      map[transferKey]*TransferState

	cancel context.CancelFunc
}

func newSession(id, clientID, libraryID, peerAddr string, cancel context.CancelFunc) *Session {
	now := time.Now()
	return &Session{
		ID:        id,
		ClientID:  clientID,
		LibraryID: libraryID,
		PeerAddr:  peerAddr,
		CreatedAt: now,

		lastActivity: now,
		transfers:    make(map[transferKey]*TransferState),
		cancel:       cancel,
	}
}

// Touch updates the session's last-activity timestamp (spec §4.5 "Activity
// touch on every processed command").
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// LastActivity returns the last-touched time.
func (s *Session) LastActivity() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActivity
}

// IdleSince reports how long the session has been idle as of now.
func (s *Session) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastActivity())
}

func (s *Session) recordLock(info LockKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.heldLocks = append(s.heldLocks, info)
}

func (s *Session) forgetLock(info LockKeyInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, k := range s.heldLocks {
		if k == info {
			s.heldLocks = append(s.heldLocks[:i], s.heldLocks[i+1:]...)
			return
		}
	}
}

func (s *Session) lockSnapshot() []LockKeyInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LockKeyInfo, len(s.heldLocks))
	copy(out, s.heldLocks)
	return out
}

// StartTransfer registers a new in-flight transfer for (path, direction).
func (s *Session) StartTransfer(path string, direction Direction, state *TransferState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.transfers[transferKey{Path: path, Direction: direction}] = state
}

// Transfer returns the in-flight transfer state for (path, direction), if any.
func (s *Session) Transfer(path string, direction Direction) (*TransferState, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transfers[transferKey{Path: path, Direction: direction}]
	return t, ok
}

// SetBytesCommitted updates the running byte count for (path, direction),
// called after each successfully written or read chunk so TransferState
// stays accurate for the lifetime of the transfer rather than only
// reflecting PUT_START's resume offset.
func (s *Session) SetBytesCommitted(path string, direction Direction, committed uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.transfers[transferKey{Path: path, Direction: direction}]; ok {
		t.BytesCommitted = committed
	}
}

// EndTransfer removes the transfer state for (path, direction), on commit,
// abort, or completion.
func (s *Session) EndTransfer(path string, direction Direction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.transfers, transferKey{Path: path, Direction: direction})
}

// activeUploadStagingPaths returns the staging paths of every in-flight upload,
// for cleanup on session termination.
func (s *Session) activeUploadStagingPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for k, t := range s.transfers {
		if k.Direction == DirectionUpload && t.StagingPath != "" {
			out = append(out, t.StagingPath)
		}
	}
	return out
}
