// Package fileops implements the file operations contract (spec §4.7): the
// set of primitives the connection handler dispatches to once a path has
// already been resolved and locked by the caller. Every operation here
// receives an already-resolved absolute path; none of them re-validate
// containment within a library root.
package fileops

import (
	"context"
	"time"
)

// EntryKind distinguishes regular files from directories in listings.
type EntryKind int

const (
	KindFile EntryKind = iota
	KindDirectory
)

// Entry describes one file or directory, as returned by List and Manifest
// (spec §4.7 "list"/"manifest").
type Entry struct {
	Path    string // relative to the operation's root
	Kind    EntryKind
	Size    uint64
	ModTime time.Time
	Digest  string // only populated by Manifest; empty for directories
}

// UploadStatus is returned by StartUpload so the caller can report a resume
// offset to the client (spec §4.7 "start_upload ... returns already
// committed length for resume").
type UploadStatus struct {
	ResumeOffset uint64
	StagingPath  string
}

// DownloadStatus is returned by StartDownload (spec §4.7 "start_download").
type DownloadStatus struct {
	Size   uint64
	Digest string
}

// Stat is returned by StatFile (spec §4.7 "stat").
type Stat struct {
	Size    uint64
	Digest  string
	ModTime time.Time
}

// Backend is the file operations surface a connection handler dispatches
// to. It is implemented by localfs.Backend and s3backend.Backend, and
// decorated by manifestcache.CachingBackend; as an interface it keeps the
// connection handler and its tests independent of the filesystem and lets
// each library choose its backend.
type Backend interface {
	StartUpload(ctx context.Context, path string, totalSize uint64, expectedDigest string) (*UploadStatus, error)
	WriteChunk(ctx context.Context, path string, offset uint64, data []byte) (committed uint64, err error)
	CommitUpload(ctx context.Context, path string, expectedDigest string, mtime *time.Time) error
	AbortUpload(ctx context.Context, path string) error

	StartDownload(ctx context.Context, path string, offset uint64) (*DownloadStatus, error)
	ReadChunk(ctx context.Context, path string, offset uint64, max uint32) ([]byte, error)

	Delete(ctx context.Context, path string) error
	Rename(ctx context.Context, from, to string) error
	Mkdir(ctx context.Context, path string) error
	Rmdir(ctx context.Context, path string, recursive bool) error

	List(ctx context.Context, path string, recursive bool) ([]Entry, error)
	Manifest(ctx context.Context, root string) ([]Entry, error)
	StatFile(ctx context.Context, path string) (*Stat, error)
	Checksum(ctx context.Context, path string) (string, error)
	Exists(ctx context.Context, path string) (bool, error)

	// LiteStat reports size and modification time without computing a
	// digest, the cheap half of StatFile. manifestcache uses it to validate
	// a cached digest without paying for a re-hash of unchanged files.
	LiteStat(ctx context.Context, path string) (size uint64, modTime time.Time, err error)
}
