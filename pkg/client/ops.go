package client

import (
	"context"
	"time"

	"github.com/fileharbor/fileharbor/internal/wire"
)

// EntryInfo mirrors wire.EntryDTO for callers outside the wire package.
type EntryInfo struct {
	Path    string
	IsDir   bool
	Size    uint64
	ModTime time.Time
	Digest  string
}

func fromEntryDTOs(dtos []wire.EntryDTO) []EntryInfo {
	out := make([]EntryInfo, 0, len(dtos))
	for _, d := range dtos {
		out = append(out, EntryInfo{
			Path:    d.Path,
			IsDir:   d.Kind == "directory",
			Size:    d.Size,
			ModTime: d.ModTime,
			Digest:  d.Digest,
		})
	}
	return out
}

// List enumerates entries under path (spec §4.7 "list").
func (c *Client) List(ctx context.Context, path string, recursive bool) ([]EntryInfo, error) {
	frame, err := c.roundTrip(ctx, wire.CmdList, wire.ListRequest{Path: path, Recursive: recursive}, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.ListResponse
	if err := frame.DecodePayload(&resp); err != nil {
		return nil, err
	}
	return fromEntryDTOs(resp.Entries), nil
}

// Manifest enumerates every file under root recursively, with digests
// (spec §4.7 "manifest").
func (c *Client) Manifest(ctx context.Context, root string) ([]EntryInfo, error) {
	frame, err := c.roundTrip(ctx, wire.CmdManifest, wire.ManifestRequest{Root: root}, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.ManifestResponse
	if err := frame.DecodePayload(&resp); err != nil {
		return nil, err
	}
	return fromEntryDTOs(resp.Entries), nil
}

// Delete removes a file (spec §4.7 "delete").
func (c *Client) Delete(ctx context.Context, path string) error {
	_, err := c.roundTrip(ctx, wire.CmdDelete, wire.DeleteRequest{Path: path}, nil)
	return err
}

// Rename renames a file within the bound library (spec §4.7 "rename").
func (c *Client) Rename(ctx context.Context, from, to string) error {
	_, err := c.roundTrip(ctx, wire.CmdRename, wire.RenameRequest{From: from, To: to}, nil)
	return err
}

// Mkdir creates a directory and any missing parents (spec §4.7 "mkdir").
func (c *Client) Mkdir(ctx context.Context, path string) error {
	_, err := c.roundTrip(ctx, wire.CmdMkdir, wire.MkdirRequest{Path: path}, nil)
	return err
}

// Rmdir removes a directory (spec §4.7 "rmdir").
func (c *Client) Rmdir(ctx context.Context, path string, recursive bool) error {
	_, err := c.roundTrip(ctx, wire.CmdRmdir, wire.RmdirRequest{Path: path, Recursive: recursive}, nil)
	return err
}

// FileInfo mirrors wire.StatResponse for callers outside the wire package.
type FileInfo struct {
	Size    uint64
	Digest  string
	ModTime time.Time
}

// Stat returns size, digest, and mtime for path (spec §4.7 "stat").
func (c *Client) Stat(ctx context.Context, path string) (*FileInfo, error) {
	frame, err := c.roundTrip(ctx, wire.CmdStat, wire.StatRequest{Path: path}, nil)
	if err != nil {
		return nil, err
	}
	var resp wire.StatResponse
	if err := frame.DecodePayload(&resp); err != nil {
		return nil, err
	}
	return &FileInfo{Size: resp.Size, Digest: resp.Digest, ModTime: resp.ModTime}, nil
}

// Checksum returns the full-file digest of path (spec §4.7 "checksum").
func (c *Client) Checksum(ctx context.Context, path string) (string, error) {
	frame, err := c.roundTrip(ctx, wire.CmdChecksum, wire.ChecksumRequest{Path: path}, nil)
	if err != nil {
		return "", err
	}
	var resp wire.ChecksumResponse
	if err := frame.DecodePayload(&resp); err != nil {
		return "", err
	}
	return resp.Digest, nil
}

// Exists reports whether path is present (spec §4.7 "exists").
func (c *Client) Exists(ctx context.Context, path string) (bool, error) {
	frame, err := c.roundTrip(ctx, wire.CmdExists, wire.ExistsRequest{Path: path}, nil)
	if err != nil {
		return false, err
	}
	var resp wire.ExistsResponse
	if err := frame.DecodePayload(&resp); err != nil {
		return false, err
	}
	return resp.Exists, nil
}
