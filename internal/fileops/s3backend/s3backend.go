// Package s3backend implements fileops.Backend against Amazon S3 or an
// S3-compatible endpoint (spec §11 domain stack), grounded on the content
// store's S3 implementation: a path-based key design (the relative path
// within a library becomes the object key), in-memory accumulation of
// sequential chunk writes instead of read-modify-write, and byte-range
// GETs for chunked downloads.
package s3backend

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	smithy "github.com/aws/smithy-go"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/fileops"
)

// Config selects the client, bucket and optional key prefix a Backend talks
// to (spec §11: S3BackendConfig); region and endpoint are set on the
// s3.Client itself.
type Config struct {
	Client    *s3.Client
	Bucket    string
	KeyPrefix string
}

// stagingUpload accumulates chunk writes in memory until commit, mirroring
// the content store's sequential-append write buffer: S3 PutObject replaces
// the whole object, so partial chunks cannot be flushed incrementally
// without multipart uploads, which this backend's chunk sizes (≤16MiB per
// spec §4.1) don't warrant.
type stagingUpload struct {
	mu             sync.Mutex
	data           []byte
	totalSize      uint64
	expectedDigest string
}

// Backend is the S3-backed fileops.Backend. One Backend instance is shared
// by every session using a given library; in-flight uploads are tracked by
// object key, not by session, so a resumed upload from a different
// connection after a disconnect still finds its buffered bytes as long as
// the backend process hasn't restarted (spec §4.7 resume is best-effort
// across reconnects, not durable across process restarts, for this
// backend — unlike localfs, which stages to disk).
type Backend struct {
	client    *s3.Client
	bucket    string
	keyPrefix string

	mu       sync.Mutex
	uploads  map[string]*stagingUpload
}

// New constructs a Backend for the given bucket.
func New(cfg Config) *Backend {
	return &Backend{
		client:    cfg.Client,
		bucket:    cfg.Bucket,
		keyPrefix: strings.Trim(cfg.KeyPrefix, "/"),
		uploads:   make(map[string]*stagingUpload),
	}
}

var _ fileops.Backend = (*Backend)(nil)

func (b *Backend) key(relPath string) string {
	clean := strings.TrimPrefix(path.Clean("/"+filepathToSlash(relPath)), "/")
	if b.keyPrefix == "" {
		return clean
	}
	return b.keyPrefix + "/" + clean
}

func filepathToSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}

func isNoSuchKey(err error) bool {
	var nsk *types.NoSuchKey
	var notFound *types.NotFound
	return errors.As(err, &nsk) || errors.As(err, &notFound)
}

// StartUpload begins buffering an upload for path. S3 objects have no
// notion of a partial write, so resume support is limited to what this
// process has buffered in memory since the upload began (spec §9 Open
// Question, resolved for S3: resume is best-effort, not guaranteed durable
// the way the local backend's on-disk staging file is).
func (b *Backend) StartUpload(ctx context.Context, relPath string, totalSize uint64, expectedDigest string) (*fileops.UploadStatus, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	key := b.key(relPath)

	b.mu.Lock()
	up, ok := b.uploads[key]
	if !ok {
		up = &stagingUpload{totalSize: totalSize, expectedDigest: expectedDigest}
		b.uploads[key] = up
	}
	b.mu.Unlock()

	up.mu.Lock()
	defer up.mu.Unlock()
	return &fileops.UploadStatus{ResumeOffset: uint64(len(up.data)), StagingPath: key}, nil
}

// WriteChunk appends data to the in-memory staging buffer at offset,
// rejecting gaps exactly as the local backend does (spec §4.7).
func (b *Backend) WriteChunk(ctx context.Context, relPath string, offset uint64, data []byte) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	key := b.key(relPath)
	b.mu.Lock()
	up, ok := b.uploads[key]
	b.mu.Unlock()
	if !ok {
		return 0, ferrors.InvalidArgument("no active upload for path")
	}

	up.mu.Lock()
	defer up.mu.Unlock()
	if uint64(len(up.data)) != offset {
		return 0, ferrors.InvalidArgument(
			fmt.Sprintf("write at offset %d would leave a gap; expected %d", offset, len(up.data)))
	}
	up.data = append(up.data, data...)
	return uint64(len(up.data)), nil
}

// CommitUpload verifies the accumulated buffer's digest and uploads it to
// S3 with a single PutObject (spec §4.7 "commit_upload").
func (b *Backend) CommitUpload(ctx context.Context, relPath, expectedDigest string, mtime *time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	key := b.key(relPath)
	b.mu.Lock()
	up, ok := b.uploads[key]
	if ok {
		delete(b.uploads, key)
	}
	b.mu.Unlock()
	if !ok {
		return ferrors.InvalidArgument("no active upload for path")
	}

	up.mu.Lock()
	digest := sha256.Sum256(up.data)
	data := up.data
	up.mu.Unlock()

	got := hex.EncodeToString(digest[:])
	if got != expectedDigest {
		return ferrors.ChecksumMismatch(fmt.Sprintf("expected digest %s, got %s", expectedDigest, got))
	}

	_, err := b.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(data),
	})
	if err != nil {
		return ferrors.Internal("put object", err)
	}
	return nil
}

// AbortUpload discards the buffered upload without writing to S3.
func (b *Backend) AbortUpload(ctx context.Context, relPath string) error {
	key := b.key(relPath)
	b.mu.Lock()
	delete(b.uploads, key)
	b.mu.Unlock()
	return nil
}

// StartDownload reports the object's size and digest (spec §4.7
// "start_download"). The digest is computed by a full read since S3 does
// not expose a content-addressed checksum compatible with spec §4.1's
// SHA-256 framing by default.
func (b *Backend) StartDownload(ctx context.Context, relPath string, offset uint64) (*fileops.DownloadStatus, error) {
	digest, err := b.Checksum(ctx, relPath)
	if err != nil {
		return nil, err
	}
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(b.key(relPath))})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ferrors.NotFound(fmt.Sprintf("path %q does not exist", relPath))
		}
		return nil, ferrors.Internal("head object", err)
	}
	return &fileops.DownloadStatus{Size: uint64(aws.ToInt64(head.ContentLength)), Digest: digest}, nil
}

// ReadChunk reads up to max bytes at offset via an S3 byte-range GET.
func (b *Backend) ReadChunk(ctx context.Context, relPath string, offset uint64, max uint32) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if max == 0 {
		return nil, nil
	}

	rangeStr := fmt.Sprintf("bytes=%d-%d", offset, offset+uint64(max)-1)
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.bucket),
		Key:    aws.String(b.key(relPath)),
		Range:  aws.String(rangeStr),
	})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ferrors.NotFound(fmt.Sprintf("path %q does not exist", relPath))
		}
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && apiErr.ErrorCode() == "InvalidRange" {
			return nil, nil // offset at or beyond end of object
		}
		return nil, ferrors.Internal("get object", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, ferrors.Internal("read object body", err)
	}
	return data, nil
}

// Delete removes the object at path.
func (b *Backend) Delete(ctx context.Context, relPath string) error {
	_, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(b.key(relPath))})
	if err != nil {
		return ferrors.Internal("delete object", err)
	}
	return nil
}

// Rename copies the object to the new key and deletes the original; S3 has
// no atomic rename primitive.
func (b *Backend) Rename(ctx context.Context, from, to string) error {
	fromKey := b.key(from)
	toKey := b.key(to)
	source := fmt.Sprintf("%s/%s", b.bucket, fromKey)

	if _, err := b.client.CopyObject(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(b.bucket),
		Key:        aws.String(toKey),
		CopySource: aws.String(source),
	}); err != nil {
		if isNoSuchKey(err) {
			return ferrors.NotFound(fmt.Sprintf("path %q does not exist", from))
		}
		return ferrors.Internal("copy object", err)
	}
	return b.Delete(ctx, from)
}

// Mkdir is a no-op: S3 has no directories, only key prefixes, and listing
// synthesizes them (spec §4.7 "mkdir" is vacuously satisfied on S3-backed
// libraries).
func (b *Backend) Mkdir(ctx context.Context, relPath string) error {
	return nil
}

// Rmdir deletes every object under the prefix relPath.
func (b *Backend) Rmdir(ctx context.Context, relPath string, recursive bool) error {
	prefix := b.key(relPath)
	if prefix != "" {
		prefix += "/"
	}

	var keys []string
	var token *string
	for {
		out, err := b.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(b.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: token,
		})
		if err != nil {
			return ferrors.Internal("list objects", err)
		}
		for _, obj := range out.Contents {
			keys = append(keys, aws.ToString(obj.Key))
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}

	if len(keys) == 0 {
		return ferrors.NotFound(fmt.Sprintf("path %q does not exist", relPath))
	}
	if len(keys) > 1 && !recursive {
		return ferrors.New(ferrors.KindResource, ferrors.CodeConflict, "directory is not empty")
	}

	for _, k := range keys {
		if _, err := b.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(k)}); err != nil {
			return ferrors.Internal("delete object", err)
		}
	}
	return nil
}

// List returns entries directly under path (recursive=false) or every
// object beneath it (recursive=true), synthesizing directory entries from
// shared key prefixes since S3 has none of its own (spec §4.7 "list").
func (b *Backend) List(ctx context.Context, relPath string, recursive bool) ([]fileops.Entry, error) {
	prefix := b.key(relPath)
	if prefix != "" {
		prefix += "/"
	}

	input := &s3.ListObjectsV2Input{Bucket: aws.String(b.bucket), Prefix: aws.String(prefix)}
	if !recursive {
		input.Delimiter = aws.String("/")
	}

	var entries []fileops.Entry
	var token *string
	for {
		input.ContinuationToken = token
		out, err := b.client.ListObjectsV2(ctx, input)
		if err != nil {
			return nil, ferrors.Internal("list objects", err)
		}
		for _, obj := range out.Contents {
			rel := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			if rel == "" {
				continue
			}
			entries = append(entries, fileops.Entry{
				Path:    rel,
				Kind:    fileops.KindFile,
				Size:    uint64(aws.ToInt64(obj.Size)),
				ModTime: aws.ToTime(obj.LastModified),
			})
		}
		for _, p := range out.CommonPrefixes {
			rel := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(p.Prefix), prefix), "/")
			if rel == "" {
				continue
			}
			entries = append(entries, fileops.Entry{Path: rel, Kind: fileops.KindDirectory})
		}
		if !aws.ToBool(out.IsTruncated) {
			break
		}
		token = out.NextContinuationToken
	}
	return entries, nil
}

// Manifest returns every file beneath root with its digest (spec §4.7
// "manifest").
func (b *Backend) Manifest(ctx context.Context, root string) ([]fileops.Entry, error) {
	entries, err := b.List(ctx, root, true)
	if err != nil {
		return nil, err
	}
	out := make([]fileops.Entry, 0, len(entries))
	for _, e := range entries {
		if e.Kind == fileops.KindDirectory {
			continue
		}
		digest, err := b.Checksum(ctx, path.Join(root, e.Path))
		if err != nil {
			return nil, err
		}
		e.Digest = digest
		out = append(out, e)
	}
	return out, nil
}

// StatFile reports size, digest, and modification time for path.
func (b *Backend) StatFile(ctx context.Context, relPath string) (*fileops.Stat, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(b.key(relPath))})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ferrors.NotFound(fmt.Sprintf("path %q does not exist", relPath))
		}
		return nil, ferrors.Internal("head object", err)
	}
	digest, err := b.Checksum(ctx, relPath)
	if err != nil {
		return nil, err
	}
	return &fileops.Stat{
		Size:    uint64(aws.ToInt64(head.ContentLength)),
		Digest:  digest,
		ModTime: aws.ToTime(head.LastModified),
	}, nil
}

// LiteStat implements fileops.Backend.LiteStat: a HeadObject with no
// accompanying GetObject-and-hash, so manifestcache can validate a cached
// digest without downloading the object.
func (b *Backend) LiteStat(ctx context.Context, relPath string) (uint64, time.Time, error) {
	head, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(b.key(relPath))})
	if err != nil {
		if isNoSuchKey(err) {
			return 0, time.Time{}, ferrors.NotFound(fmt.Sprintf("path %q does not exist", relPath))
		}
		return 0, time.Time{}, ferrors.Internal("head object", err)
	}
	return uint64(aws.ToInt64(head.ContentLength)), aws.ToTime(head.LastModified), nil
}

// Checksum computes a SHA-256 digest over the full object contents.
func (b *Backend) Checksum(ctx context.Context, relPath string) (string, error) {
	out, err := b.client.GetObject(ctx, &s3.GetObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(b.key(relPath))})
	if err != nil {
		if isNoSuchKey(err) {
			return "", ferrors.NotFound(fmt.Sprintf("path %q does not exist", relPath))
		}
		return "", ferrors.Internal("get object", err)
	}
	defer out.Body.Close()

	h := sha256.New()
	if _, err := io.Copy(h, out.Body); err != nil {
		return "", ferrors.Internal("read object body", err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Exists reports whether an object exists at path.
func (b *Backend) Exists(ctx context.Context, relPath string) (bool, error) {
	_, err := b.client.HeadObject(ctx, &s3.HeadObjectInput{Bucket: aws.String(b.bucket), Key: aws.String(b.key(relPath))})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, ferrors.Internal("head object", err)
	}
	return true, nil
}
