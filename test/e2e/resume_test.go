package e2e

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fileharbor/fileharbor/internal/wire"
	"github.com/fileharbor/fileharbor/pkg/client"
)

func sha256Hex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// dialRaw opens a bare mTLS connection and performs HANDSHAKE without
// going through pkg/client, so a test can drive PUT_START/PUT_CHUNK by
// hand and then vanish mid-transfer without ever sending PUT_COMMIT —
// exactly what a crashed client looks like on the wire.
func dialRaw(t *testing.T, h *Harness, clientName, libraryID string) *tls.Conn {
	t.Helper()
	cfg := h.ClientConfig(clientName, libraryID)

	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	require.NoError(t, err)

	caPEM, err := os.ReadFile(cfg.CACertPath)
	require.NoError(t, err)
	pool := x509.NewCertPool()
	require.True(t, pool.AppendCertsFromPEM(caPEM))

	conn, err := tls.Dial("tcp", fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort), &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	})
	require.NoError(t, err)

	sendRaw(t, conn, wire.CmdHandshake, wire.HandshakeRequest{
		LibraryID: libraryID, ClientProtocolVersion: wire.ProtocolVersion,
	}, nil)
	_ = recvRaw(t, conn)
	return conn
}

func sendRaw(t *testing.T, conn *tls.Conn, cmd wire.Command, payload any, body []byte) {
	t.Helper()
	frame, err := wire.NewFrame(wire.KindRequest, cmd, wire.StatusSuccess, payload, body)
	require.NoError(t, err)
	encoded, err := frame.Encode()
	require.NoError(t, err)
	_, err = conn.Write(encoded)
	require.NoError(t, err)
}

func recvRaw(t *testing.T, conn *tls.Conn) *wire.Frame {
	t.Helper()
	frame, err := wire.ReadFrame(conn)
	require.NoError(t, err)
	return frame
}

// TestResumeUpload mirrors spec §8 scenario 2: a client uploads roughly
// half of a 1MiB file, then disconnects without committing. A second
// client resumes the same remote path and finishes; the result is
// byte-identical to the original and the server never reports more bytes
// committed than were actually staged.
func TestResumeUpload(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "media", AuthorizedIDs: []string{"alice"}}},
		[]ClientSpec{{Name: "alice"}},
	)
	cfg := h.ClientConfig("alice", "media")
	cfg.ChunkSize = 64 * 1024

	const totalSize = 1 << 20 // 1MiB
	const chunkSize = 64 * 1024
	payload := make([]byte, totalSize)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "movie.bin")
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	conn := dialRaw(t, h, "alice", "media")

	sendRaw(t, conn, wire.CmdPutStart, wire.PutStartRequest{
		Path:           "movie.bin",
		TotalSize:      totalSize,
		ExpectedDigest: sha256Hex(payload),
	}, nil)
	startResp := recvRaw(t, conn)
	require.Equal(t, wire.StatusSuccess, startResp.Status)

	var committed uint64
	for committed < totalSize/2 {
		end := committed + chunkSize
		if end > totalSize {
			end = totalSize
		}
		sendRaw(t, conn, wire.CmdPutChunk, wire.PutChunkRequest{Path: "movie.bin", Offset: committed}, payload[committed:end])
		resp := recvRaw(t, conn)
		require.Equal(t, wire.StatusSuccess, resp.Status)
		var chunkResp wire.PutChunkResponse
		require.NoError(t, resp.DecodePayload(&chunkResp))
		committed = chunkResp.BytesCommitted
	}
	require.NoError(t, conn.Close()) // vanish without PUT_COMMIT

	ctx := context.Background()
	require.NoError(t, client.RetryUpload(ctx, cfg, client.UploadOptions{
		LocalPath: src, RemotePath: "movie.bin",
	}))

	c, err := client.Dial(ctx, cfg)
	require.NoError(t, err)
	defer c.Close()

	info, err := c.Stat(ctx, "movie.bin")
	require.NoError(t, err)
	require.Equal(t, uint64(totalSize), info.Size)

	downPath := filepath.Join(dir, "movie-downloaded.bin")
	require.NoError(t, client.RetryDownload(ctx, cfg, client.DownloadOptions{
		RemotePath: "movie.bin", LocalPath: downPath,
	}))
	got, err := os.ReadFile(downPath)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}

// TestResumeDownloadInterrupted covers spec §8's download side of resume:
// a partially-written local file is completed by a second download call
// rather than being restarted from byte zero.
func TestResumeDownloadInterrupted(t *testing.T) {
	h := NewHarness(t,
		[]LibrarySpec{{ID: "media", AuthorizedIDs: []string{"alice"}}},
		[]ClientSpec{{Name: "alice"}},
	)
	cfg := h.ClientConfig("alice", "media")
	cfg.ChunkSize = 32 * 1024

	const totalSize = 256 * 1024
	payload := make([]byte, totalSize)
	_, err := rand.Read(payload)
	require.NoError(t, err)

	dir := t.TempDir()
	src := filepath.Join(dir, "archive.bin")
	require.NoError(t, os.WriteFile(src, payload, 0o644))

	ctx := context.Background()
	require.NoError(t, client.RetryUpload(ctx, cfg, client.UploadOptions{
		LocalPath: src, RemotePath: "archive.bin",
	}))

	downPath := filepath.Join(dir, "archive-local.bin")
	require.NoError(t, os.WriteFile(downPath, payload[:totalSize/2], 0o644))

	require.NoError(t, client.RetryDownload(ctx, cfg, client.DownloadOptions{
		RemotePath: "archive.bin", LocalPath: downPath,
	}))

	got, err := os.ReadFile(downPath)
	require.NoError(t, err)
	require.Equal(t, payload, got)
}
