package wire

import "time"

// Request/response payload shapes for every command in spec §6. Both the
// server (internal/server) and the client (pkg/client) decode/encode these
// through DecodePayload/NewFrame; there is no separate wire-schema package
// because the JSON shape and the Go type are the same thing.

// HandshakeRequest is the payload of the first frame a connection must send
// (spec §4.8 AWAITING_HANDSHAKE).
type HandshakeRequest struct {
	LibraryID             string `json:"library_id"`
	ClientProtocolVersion uint8  `json:"client_protocol_version"`
}

// HandshakeResponse is returned on successful handshake.
type HandshakeResponse struct {
	SessionID             string `json:"session_id"`
	ServerProtocolVersion uint8  `json:"server_protocol_version"`
	ChunkSizeHint         uint32 `json:"chunk_size_hint"`
}

// PutStartRequest begins an upload (spec §4.7 "start_upload").
type PutStartRequest struct {
	Path           string `json:"path"`
	TotalSize      uint64 `json:"total_size"`
	ExpectedDigest string `json:"expected_digest"`
}

// PutStartResponse reports the resume offset (spec §4.7).
type PutStartResponse struct {
	ResumeOffset uint64 `json:"resume_offset"`
}

// PutChunkRequest carries a chunk's offset; the bytes themselves travel in
// the frame's binary body (spec §4.9 "PUT_CHUNK frames carrying {offset}
// and the binary body").
type PutChunkRequest struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
}

// PutChunkResponse reports the new committed length.
type PutChunkResponse struct {
	BytesCommitted uint64 `json:"bytes_committed"`
}

// PutCommitRequest finalizes an upload (spec §4.7 "commit_upload").
type PutCommitRequest struct {
	Path  string     `json:"path"`
	Mtime *time.Time `json:"mtime,omitempty"`
}

// PutCommitResponse carries no fields; success is the status code.
type PutCommitResponse struct{}

// GetStartRequest begins a download (spec §4.7 "start_download").
type GetStartRequest struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
}

// GetStartResponse reports the file's size and digest.
type GetStartResponse struct {
	Size   uint64 `json:"size"`
	Digest string `json:"digest"`
}

// GetChunkRequest requests up to Max bytes at Offset (spec §4.7
// "read_chunk").
type GetChunkRequest struct {
	Path   string `json:"path"`
	Offset uint64 `json:"offset"`
	Max    uint32 `json:"max"`
}

// DeleteRequest removes a file (spec §4.7 "delete").
type DeleteRequest struct {
	Path string `json:"path"`
}

// RenameRequest renames a file within the same library (spec §4.7
// "rename").
type RenameRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// MkdirRequest creates a directory (spec §4.7 "mkdir").
type MkdirRequest struct {
	Path string `json:"path"`
}

// RmdirRequest removes a directory (spec §4.7 "rmdir").
type RmdirRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// ListRequest lists directory entries (spec §4.7 "list").
type ListRequest struct {
	Path      string `json:"path"`
	Recursive bool   `json:"recursive"`
}

// EntryDTO is the wire representation of fileops.Entry.
type EntryDTO struct {
	Path    string    `json:"path"`
	Kind    string    `json:"kind"` // "file" or "directory"
	Size    uint64    `json:"size"`
	ModTime time.Time `json:"mod_time"`
	Digest  string    `json:"digest,omitempty"`
}

// ListResponse/ManifestResponse carry the same shape; kept as distinct
// types so the wire schema documents each command's result independently.
type ListResponse struct {
	Entries []EntryDTO `json:"entries"`
}

// ManifestRequest requests a recursive listing with digests (spec §4.7
// "manifest").
type ManifestRequest struct {
	Root string `json:"root"`
}

type ManifestResponse struct {
	Entries []EntryDTO `json:"entries"`
}

// ChecksumRequest requests a file's full digest (spec §4.7 "checksum").
type ChecksumRequest struct {
	Path string `json:"path"`
}

type ChecksumResponse struct {
	Digest string `json:"digest"`
}

// StatRequest requests size/digest/mtime (spec §4.7 "stat").
type StatRequest struct {
	Path string `json:"path"`
}

type StatResponse struct {
	Size    uint64    `json:"size"`
	Digest  string    `json:"digest"`
	ModTime time.Time `json:"mod_time"`
}

// ExistsRequest checks for a path's presence (spec §4.7 "exists").
type ExistsRequest struct {
	Path string `json:"path"`
}

type ExistsResponse struct {
	Exists bool `json:"exists"`
}

// ErrorPayload is the response payload on a non-success status (spec §6
// "response payloads carry the documented result or an error object").
type ErrorPayload struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
