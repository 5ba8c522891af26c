// Package client implements the FileHarbor client transfer engine (spec
// §4.9): connection bring-up over mutual TLS, handshake, and upload/download
// drivers with resume, progress, and retry. It is the client-side mirror of
// internal/server: the same frame codec (internal/wire), the same error
// kinds (internal/ferrors), a single blocking engine that both the blocking
// CLI (cmd/fileharbor) and the cooperative front-end (Async) drive (spec
// Design Note "Coroutine/async control flow": "the client ships both a
// blocking and a cooperative front-end but a single engine").
package client

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/internal/wire"
	"github.com/fileharbor/fileharbor/pkg/config"
)

// Client is one mTLS connection to a FileHarbor server, bound to the
// library named in its handshake (spec §3 "Session": "a session is bound
// to exactly one library for its lifetime").
type Client struct {
	cfg  *config.ClientTransferConfig
	conn *tls.Conn

	mu            sync.Mutex
	sessionID     string
	chunkSizeHint uint32
}

// Dial opens a mutually authenticated TLS connection to cfg's server and
// performs the HANDSHAKE command (spec §4.9 "Bring-up"). The returned
// Client is bound to cfg.LibraryID for its lifetime.
func Dial(ctx context.Context, cfg *config.ClientTransferConfig) (*Client, error) {
	tlsConfig, err := buildTLSConfig(cfg)
	if err != nil {
		return nil, err
	}

	addr := fmt.Sprintf("%s:%d", cfg.ServerHost, cfg.ServerPort)
	dialer := &tls.Dialer{Config: tlsConfig}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	rawConn, err := dialer.DialContext(dialCtx, "tcp", addr)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindTransport, ferrors.CodeInternalError, "dial server", err)
	}
	conn := rawConn.(*tls.Conn)

	c := &Client{cfg: cfg, conn: conn}
	if err := c.handshake(ctx); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return c, nil
}

// buildTLSConfig constructs the client half of the mTLS pair: the client's
// own certificate (presented to the server) and a pool trusting only the
// configured server CA (spec §4.9 "client certificate and private key, CA
// certificate"). Mirrors internal/server.BuildTLSConfig's structure.
func buildTLSConfig(cfg *config.ClientTransferConfig) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(cfg.ClientCertPath, cfg.ClientKeyPath)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}

	caPEM, err := os.ReadFile(cfg.CACertPath)
	if err != nil {
		return nil, fmt.Errorf("read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return nil, fmt.Errorf("no valid certificates found in %s", cfg.CACertPath)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

func (c *Client) handshake(ctx context.Context) error {
	req := wire.HandshakeRequest{
		LibraryID:             c.cfg.LibraryID,
		ClientProtocolVersion: wire.ProtocolVersion,
	}
	frame, err := c.roundTrip(ctx, wire.CmdHandshake, req, nil)
	if err != nil {
		return err
	}

	var resp wire.HandshakeResponse
	if err := frame.DecodePayload(&resp); err != nil {
		return err
	}

	c.mu.Lock()
	c.sessionID = resp.SessionID
	c.chunkSizeHint = resp.ChunkSizeHint
	c.mu.Unlock()

	logger.Debug("handshake complete: session=%s server_protocol=%d chunk_hint=%d",
		resp.SessionID, resp.ServerProtocolVersion, resp.ChunkSizeHint)
	return nil
}

// SessionID returns the session id assigned at handshake.
func (c *Client) SessionID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionID
}

// ChunkSize returns the chunk size this client uses for transfers: the
// configured size, falling back to the server's hint if unset.
func (c *Client) ChunkSize() uint32 {
	if c.cfg.ChunkSize > 0 {
		return c.cfg.ChunkSize
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.chunkSizeHint
}

// Ping sends a PING command, verifying the connection is alive.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.roundTrip(ctx, wire.CmdPing, nil, nil)
	return err
}

// Disconnect sends DISCONNECT and closes the underlying connection (spec
// §6 "DISCONNECT command ⇒ CLOSING").
func (c *Client) Disconnect(ctx context.Context) error {
	frame, err := wire.NewFrame(wire.KindRequest, wire.CmdDisconnect, wire.StatusSuccess, nil, nil)
	if err == nil {
		_ = c.writeFrame(frame)
	}
	return c.Close()
}

// Close closes the underlying TLS connection without sending DISCONNECT.
func (c *Client) Close() error {
	return c.conn.Close()
}

// roundTrip sends one request frame and reads the matching response,
// honoring ctx's deadline. Every request/response command goes through this
// helper, including each PUT_CHUNK and GET_CHUNK of a chunked transfer.
func (c *Client) roundTrip(ctx context.Context, cmd wire.Command, payload any, body []byte) (*wire.Frame, error) {
	req, err := wire.NewFrame(wire.KindRequest, cmd, wire.StatusSuccess, payload, body)
	if err != nil {
		return nil, err
	}
	if err := c.writeFrame(req); err != nil {
		return nil, err
	}
	return c.readFrame(ctx)
}

func (c *Client) writeFrame(f *wire.Frame) error {
	encoded, err := f.Encode()
	if err != nil {
		return err
	}
	if _, err := c.conn.Write(encoded); err != nil {
		return ferrors.Wrap(ferrors.KindTransport, ferrors.CodeInternalError, "write frame", err)
	}
	return nil
}

func (c *Client) readFrame(ctx context.Context) (*wire.Frame, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetReadDeadline(deadline)
	} else {
		_ = c.conn.SetReadDeadline(time.Time{})
	}

	frame, err := wire.ReadFrame(c.conn)
	if err != nil {
		return nil, ferrors.Wrap(ferrors.KindTransport, ferrors.CodeInternalError, "read frame", err)
	}
	if frame.Status != wire.StatusSuccess {
		return frame, errorFromFrame(frame)
	}
	return frame, nil
}

// errorFromFrame reconstructs a *ferrors.Error from an error response
// frame's payload, so callers above this package can branch on Kind/Code
// exactly as the server did (spec §7 "Client policy").
func errorFromFrame(frame *wire.Frame) error {
	var payload wire.ErrorPayload
	if err := frame.DecodePayload(&payload); err != nil {
		return ferrors.Internal("malformed error response", err)
	}
	return &ferrors.Error{
		Kind:    kindFromString(payload.Kind),
		Code:    ferrors.Code(payload.Code),
		Message: payload.Message,
	}
}

func kindFromString(s string) ferrors.Kind {
	switch s {
	case "transport":
		return ferrors.KindTransport
	case "protocol":
		return ferrors.KindProtocol
	case "authentication":
		return ferrors.KindAuthentication
	case "authorization":
		return ferrors.KindAuthorization
	case "resource":
		return ferrors.KindResource
	case "integrity":
		return ferrors.KindIntegrity
	case "input":
		return ferrors.KindInput
	default:
		return ferrors.KindInternal
	}
}
