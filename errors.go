package rtmp

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

var ErrNilWriter = errors.New("rtmp: expected a non-nil writer")
var ErrNilReader = errors.New("rtmp: expected a non-nil reader")

// Protocol violations. The connection that produced one is closed.
var (
	ErrNoPreviousHeader     = errors.New("rtmp: chunk header inherits from a chunk stream with no previous header")
	ErrUnexpectedHeader     = errors.New("rtmp: new message header in the middle of a message")
	ErrUnknownMessageType   = errors.New("rtmp: unknown message type")
	ErrInvalidChunkSize     = errors.New("rtmp: invalid chunk size")
	ErrInvalidChunkStreamID = errors.New("rtmp: chunk stream id out of range")
	ErrMalformedMessage     = errors.New("rtmp: malformed message body")
)

// ErrConnClosed is returned to callers of a connection that has shut down.
var ErrConnClosed = errors.New("rtmp: connection closed")

// ProtocolMismatchError is returned by the handshake when the peer speaks another version
// or does not echo our random payload.
type ProtocolMismatchError struct {
	// Stage names the packet that failed: "S0" or "S2" for a client, "C0" or "C2" for a
	// server.
	Stage string
	// Offset is the first byte that differs, counted from the start of the packet.
	Offset int
	Want   byte
	Got    byte
}

func (e *ProtocolMismatchError) Error() string {
	if e.Stage == "S0" || e.Stage == "C0" {
		return fmt.Sprintf("rtmp: handshake: unsupported version %d, want %d", e.Got, e.Want)
	}
	return fmt.Sprintf("rtmp: handshake: %s differs at offset %d: got 0x%02x, want 0x%02x", e.Stage, e.Offset, e.Got, e.Want)
}

// IsProtocolError reports whether err is, or wraps, a violation of the RTMP or AMF wire
// protocol as opposed to an I/O failure.
func IsProtocolError(err error) bool {
	var pm *ProtocolMismatchError
	if errors.As(err, &pm) {
		return true
	}
	for _, target := range []error{
		ErrNoPreviousHeader, ErrUnexpectedHeader, ErrUnknownMessageType,
		ErrInvalidChunkSize, ErrInvalidChunkStreamID, ErrMalformedMessage,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return amf.IsProtocolError(err)
}
