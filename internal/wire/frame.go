// Package wire implements the FileHarbor frame codec (spec §4.1): a
// fixed-width binary header followed by a JSON payload and an optional
// binary body, integrity-protected by a SHA-256 digest over
// payload||body. Every reader on the wire — server and client alike —
// goes through this package; there is no second framing code path.
package wire

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"

	"github.com/fileharbor/fileharbor/internal/ferrors"
)

// ProtocolVersion is the wire protocol version this build speaks.
// A handshake whose client_protocol_version does not match is a fatal
// protocol-version-mismatch error (spec §6).
const ProtocolVersion uint8 = 1

// MaxPayloadSize bounds the JSON payload (spec §4.1: "payload 64 KiB").
const MaxPayloadSize = 64 * 1024

// MaxBodySize bounds the binary body to one chunk (spec §4.1: "body up to
// one chunk, ≤ 16 MiB").
const MaxBodySize = 16 * 1024 * 1024

// MessageKind distinguishes request, response, and streaming data frames.
type MessageKind uint8

const (
	KindRequest  MessageKind = 1
	KindResponse MessageKind = 2
	KindData     MessageKind = 3
)

// headerSize is the fixed width of the on-wire header, in bytes:
//
//	version(1) + kind(1) + command(2) + status(2) + reserved(2) +
//	payloadLen(4) + bodyLen(4) + digest(32) = 48
const headerSize = 48

// digestSize is the width of the SHA-256 digest field.
const digestSize = sha256.Size

// Frame is the atomic protocol unit (spec §3 "Frame").
type Frame struct {
	Version  uint8
	Kind     MessageKind
	Command  Command
	Status   StatusCode
	Payload  []byte // raw JSON bytes
	Body     []byte // optional binary body
}

// Encode renders f onto the wire: header || payload || body.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Payload) > MaxPayloadSize {
		return nil, ferrors.New(ferrors.KindProtocol, ferrors.CodeBadRequest,
			fmt.Sprintf("payload too large: %d bytes", len(f.Payload)))
	}
	if len(f.Body) > MaxBodySize {
		return nil, ferrors.SizeTooLarge(fmt.Sprintf("body too large: %d bytes", len(f.Body)))
	}

	header := make([]byte, headerSize)
	header[0] = f.Version
	header[1] = byte(f.Kind)
	binary.BigEndian.PutUint16(header[2:4], uint16(f.Command))
	binary.BigEndian.PutUint16(header[4:6], uint16(f.Status))
	// header[6:8] reserved, left zero
	binary.BigEndian.PutUint32(header[8:12], uint32(len(f.Payload)))
	binary.BigEndian.PutUint32(header[12:16], uint32(len(f.Body)))

	digest := computeDigest(f.Payload, f.Body)
	copy(header[16:16+digestSize], digest)

	out := make([]byte, 0, headerSize+len(f.Payload)+len(f.Body))
	out = append(out, header...)
	out = append(out, f.Payload...)
	out = append(out, f.Body...)
	return out, nil
}

// ReadFrame reads exactly one frame from r: headerSize bytes, then L bytes
// of payload, then B bytes of body, with no framing ambiguity (spec §4.1).
func ReadFrame(r io.Reader) (*Frame, error) {
	header := make([]byte, headerSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err // EOF / transport error propagates verbatim
	}

	f := &Frame{
		Version: header[0],
		Kind:    MessageKind(header[1]),
		Command: Command(binary.BigEndian.Uint16(header[2:4])),
		Status:  StatusCode(binary.BigEndian.Uint16(header[4:6])),
	}

	payloadLen := binary.BigEndian.Uint32(header[8:12])
	bodyLen := binary.BigEndian.Uint32(header[12:16])
	wantDigest := header[16 : 16+digestSize]

	if payloadLen > MaxPayloadSize {
		return nil, ferrors.New(ferrors.KindProtocol, ferrors.CodeBadRequest,
			fmt.Sprintf("oversize payload length: %d", payloadLen))
	}
	if bodyLen > MaxBodySize {
		return nil, ferrors.SizeTooLarge(fmt.Sprintf("oversize body length: %d", bodyLen))
	}

	f.Payload = make([]byte, payloadLen)
	if _, err := io.ReadFull(r, f.Payload); err != nil {
		return nil, fmt.Errorf("read payload: %w", err)
	}

	f.Body = make([]byte, bodyLen)
	if _, err := io.ReadFull(r, f.Body); err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	gotDigest := computeDigest(f.Payload, f.Body)
	if !digestsEqual(gotDigest, wantDigest) {
		return nil, ferrors.New(ferrors.KindProtocol, ferrors.CodeBadRequest,
			"frame digest mismatch")
	}

	return f, nil
}

func computeDigest(payload, body []byte) []byte {
	h := sha256.New()
	h.Write(payload)
	h.Write(body)
	return h.Sum(nil)
}

func digestsEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// DecodePayload unmarshals f.Payload into v.
func DecodePayload(f *Frame, v any) error {
	if len(f.Payload) == 0 {
		return nil
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return ferrors.Wrap(ferrors.KindProtocol, ferrors.CodeBadRequest, "malformed JSON payload", err)
	}
	return nil
}

// DecodePayload unmarshals the frame's payload into v. Method form of the
// package-level function, used by every command handler on both ends.
func (f *Frame) DecodePayload(v any) error {
	return DecodePayload(f, v)
}

// NewFrame builds a Frame from a JSON-encodable payload and optional body.
func NewFrame(kind MessageKind, command Command, status StatusCode, payload any, body []byte) (*Frame, error) {
	var raw []byte
	var err error
	if payload != nil {
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, ferrors.Internal("encode payload", err)
		}
	}
	return &Frame{
		Version: ProtocolVersion,
		Kind:    kind,
		Command: command,
		Status:  status,
		Payload: raw,
		Body:    body,
	}, nil
}
