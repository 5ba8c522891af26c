package server

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/fileharbor/fileharbor/internal/ferrors"
	"github.com/fileharbor/fileharbor/internal/logger"
	"github.com/fileharbor/fileharbor/internal/session"
	"github.com/fileharbor/fileharbor/internal/wire"
)

// connState is the per-connection state machine (spec §4.8): a frame
// arriving out of the expected state is a protocol error that closes the
// connection, modeled as straight-line code over a blocking I/O
// abstraction rather than a state-object hierarchy (spec Design Note
// "Coroutine/async control flow").
type connState int

const (
	stateAwaitingHandshake connState = iota
	stateAuthenticated
	stateClosing
)

type conn struct {
	server *Server
	tls    *tls.Conn
	state  connState

	sess   *session.Session
	sessCtx context.Context
}

func (s *Server) newConn(tlsConn *tls.Conn) *conn {
	return &conn{server: s, tls: tlsConn, state: stateAwaitingHandshake}
}

// serve drives one connection end to end: TLS handshake, protocol
// handshake, then the command loop, until a transport error, a fatal
// protocol error, or DISCONNECT (spec §4.8).
func (c *conn) serve(ctx context.Context) {
	defer c.tls.Close()

	handshakeCtx, cancel := context.WithTimeout(ctx, c.server.readTimeout)
	err := c.tls.HandshakeContext(handshakeCtx)
	cancel()
	if err != nil {
		logger.Warn("TLS handshake failed from %s: %v", c.tls.RemoteAddr(), err)
		return
	}

	peerAddr := c.tls.RemoteAddr().String()
	logger.Debug("connection established from %s", peerAddr)

	frame, err := c.readFrameWithDeadline(ctx)
	if err != nil {
		logger.Debug("handshake frame read failed from %s: %v", peerAddr, err)
		return
	}
	if frame.Kind != wire.KindRequest || frame.Command != wire.CmdHandshake {
		c.writeError(frame, ferrors.New(ferrors.KindProtocol, ferrors.CodeBadRequest,
			"first frame must be HANDSHAKE"))
		return
	}

	if !c.handleHandshake(frame, peerAddr) {
		return
	}
	c.state = stateAuthenticated

	defer func() {
		if c.sess != nil {
			c.server.sessions.Terminate(c.sess.ID, session.ReasonDisconnect)
		}
	}()

	for c.state == stateAuthenticated {
		select {
		case <-ctx.Done():
			return
		case <-c.sessCtx.Done():
			return
		default:
		}

		frame, err := c.readFrameWithDeadline(ctx)
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug("connection %s: read error: %v", peerAddr, err)
			}
			return
		}

		if frame.Command == wire.CmdDisconnect {
			c.writeFrame(mustFrame(wire.KindResponse, wire.CmdDisconnect, wire.StatusSuccess, nil, nil))
			return
		}

		resp := c.dispatch(ctx, frame)
		if err := c.writeFrame(resp); err != nil {
			logger.Debug("connection %s: write error: %v", peerAddr, err)
			return
		}

		c.sess.Touch()
	}
}

func (c *conn) readFrameWithDeadline(ctx context.Context) (*wire.Frame, error) {
	if c.server.readTimeout > 0 {
		_ = c.tls.SetReadDeadline(time.Now().Add(c.server.readTimeout))
	}
	return wire.ReadFrame(c.tls)
}

func (c *conn) writeFrame(f *wire.Frame) error {
	encoded, err := f.Encode()
	if err != nil {
		return err
	}
	_, err = c.tls.Write(encoded)
	return err
}

func mustFrame(kind wire.MessageKind, cmd wire.Command, status wire.StatusCode, payload any, body []byte) *wire.Frame {
	f, err := wire.NewFrame(kind, cmd, status, payload, body)
	if err != nil {
		// Only hand-constructed payloads reach this path; a marshal
		// failure here is a programming error, not a peer's fault.
		f = &wire.Frame{Version: wire.ProtocolVersion, Kind: kind, Command: cmd, Status: wire.StatusInternalError}
	}
	return f
}

// writeError sends an error response for a request frame, best-effort
// (spec §7 "a best-effort error response for protocol errors").
func (c *conn) writeError(req *wire.Frame, err error) {
	var cmd wire.Command
	if req != nil {
		cmd = req.Command
	}
	status := wire.StatusForError(err)
	payload := errorPayload(err)
	resp := mustFrame(wire.KindResponse, cmd, status, payload, nil)
	_ = c.writeFrame(resp)
}

func errorPayload(err error) wire.ErrorPayload {
	fe, ok := ferrors.As(err)
	if !ok {
		return wire.ErrorPayload{Kind: "internal", Code: string(ferrors.CodeInternalError), Message: err.Error()}
	}
	return wire.ErrorPayload{Kind: fe.Kind.String(), Code: string(fe.Code), Message: fe.Message}
}

// peerCertificate returns the verified leaf certificate from the completed
// TLS handshake, or nil if none was presented (shouldn't happen given
// RequireAndVerifyClientCert, defended against anyway per spec §4.3).
func (c *conn) peerCertificate() *x509.Certificate {
	state := c.tls.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil
	}
	return state.PeerCertificates[0]
}

// handleHandshake authenticates the peer certificate, resolves and
// authorizes the requested library, and creates the session (spec §4.8
// AWAITING_HANDSHAKE -> AUTHENTICATED). Any failure writes a best-effort
// error response and returns false so serve tears the connection down.
func (c *conn) handleHandshake(frame *wire.Frame, peerAddr string) bool {
	var req wire.HandshakeRequest
	if err := frame.DecodePayload(&req); err != nil {
		c.writeError(frame, ferrors.New(ferrors.KindProtocol, ferrors.CodeBadRequest, "malformed handshake payload"))
		return false
	}

	if req.ClientProtocolVersion != wire.ProtocolVersion {
		c.writeError(frame, ferrors.ProtocolVersionMismatch(
			fmt.Sprintf("server speaks protocol version %d", wire.ProtocolVersion)))
		return false
	}

	leaf := c.peerCertificate()
	if leaf == nil {
		c.writeError(frame, ferrors.Unauthorized("no client certificate presented"))
		return false
	}

	clientID, err := c.server.authenticator.Authenticate(leaf)
	if err != nil {
		c.writeError(frame, err)
		return false
	}

	// Library-not-found and not-authorized are deliberately indistinguishable
	// to the client (spec §8 scenario 3: both respond "unauthorized"), matching
	// the original server's check_library_access, which raises the same
	// LibraryAccessDeniedError for either case and is caught alongside
	// AuthenticationError to produce a single STATUS_UNAUTHORIZED.
	lib, err := c.server.libraries.Lookup(req.LibraryID)
	if err != nil {
		c.writeError(frame, ferrors.Unauthorized(
			fmt.Sprintf("client %s is not authorized for library %s", clientID, req.LibraryID)))
		return false
	}
	if !lib.IsAuthorized(clientID) {
		c.writeError(frame, ferrors.Unauthorized(
			fmt.Sprintf("client %s is not authorized for library %s", clientID, lib.ID)))
		return false
	}

	sess, sessCtx := c.server.sessions.Create(clientID, lib.ID, peerAddr)
	c.sess = sess
	c.sessCtx = sessCtx

	logger.Audit("SESSION_START", map[string]any{
		"session_id": sess.ID,
		"client_id":  clientID,
		"library_id": lib.ID,
		"peer_addr":  peerAddr,
	})

	resp := wire.HandshakeResponse{
		SessionID:             sess.ID,
		ServerProtocolVersion: wire.ProtocolVersion,
		ChunkSizeHint:         c.server.chunkSizeHint,
	}
	return c.writeFrame(mustFrame(wire.KindResponse, wire.CmdHandshake, wire.StatusSuccess, resp, nil)) == nil
}
