package rtmp

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// Chunk sizes a SetChunkSize message may carry. The top bit of the field must be zero.
const (
	DefaultChunkSize uint32 = 128
	MinChunkSize     uint32 = 1
	MaxChunkSize     uint32 = 0x7FFFFFFF
)

// Limit types of a SetPeerBandwidth message.
//  0 - Hard: the peer should limit its output bandwidth to the indicated window size.
//  1 - Soft: the peer should limit its output bandwidth to the window indicated in this message or the limit already
//      in effect, whichever is smaller.
//  2 - Dynamic: if the previous limit type was Hard, treat this message as though it was marked Hard, otherwise ignore it.
const (
	LimitHard uint8 = iota
	LimitSoft
	LimitDynamic
)

// UserControlEvent is the 2-byte event type at the start of a user control message body.
type UserControlEvent uint16

const (
	StreamBegin UserControlEvent = iota
	StreamEOF
	StreamDry
	SetBufferLength
	StreamIsRecorded
	_
	PingRequest
	PingResponse
)

// UserControl is the body of a user control message. Data holds the event data: a stream
// id for the stream events, a timestamp for pings. SetBufferLength also carries
// BufferLength in milliseconds.
type UserControl struct {
	Event        UserControlEvent
	Data         uint32
	BufferLength uint32
}

// PeerBandwidth is the body of a SetPeerBandwidth message.
type PeerBandwidth struct {
	Size  uint32
	Limit uint8
}

// NewSetChunkSize returns a control message announcing the chunk size this side will use.
func NewSetChunkSize(size uint32) (*Message, error) {
	if size < MinChunkSize || size > MaxChunkSize {
		return nil, errors.Wrapf(ErrInvalidChunkSize, "%d", size)
	}
	return controlMessage(SetChunkSize, uint32Body(size)), nil
}

// NewAbort returns a control message telling the peer to drop the partial message on csid.
func NewAbort(csid uint32) *Message {
	return controlMessage(AbortMessage, uint32Body(csid))
}

// NewAcknowledgement returns a control message acknowledging sequence bytes received so far.
func NewAcknowledgement(sequence uint32) *Message {
	return controlMessage(Acknowledgement, uint32Body(sequence))
}

func NewWindowAckSize(size uint32) *Message {
	return controlMessage(WindowAcknowledgementSize, uint32Body(size))
}

func NewSetPeerBandwidth(size uint32, limit uint8) *Message {
	body := make([]byte, 5)
	binary.BigEndian.PutUint32(body, size)
	body[4] = limit
	return controlMessage(SetPeerBandwidth, body)
}

// NewUserControl returns a user control message for event. SetBufferLength is the only
// event with an 8-byte data part.
func NewUserControl(uc UserControl) *Message {
	body := make([]byte, 6, 10)
	binary.BigEndian.PutUint16(body, uint16(uc.Event))
	binary.BigEndian.PutUint32(body[2:], uc.Data)
	if uc.Event == SetBufferLength {
		body = binary.BigEndian.AppendUint32(body, uc.BufferLength)
	}
	return &Message{Type: UserControlMessage, ChunkStreamID: ProtocolChannel, Payload: body}
}

// ParseChunkSize reads the body of a SetChunkSize message.
func ParseChunkSize(m *Message) (uint32, error) {
	v, err := parseUint32(m, SetChunkSize)
	if err != nil {
		return 0, err
	}
	if v < MinChunkSize || v > MaxChunkSize {
		return 0, errors.Wrapf(ErrInvalidChunkSize, "%d", v)
	}
	return v, nil
}

// ParseAbort returns the chunk stream id named by an Abort message.
func ParseAbort(m *Message) (uint32, error) {
	return parseUint32(m, AbortMessage)
}

func ParseAcknowledgement(m *Message) (uint32, error) {
	return parseUint32(m, Acknowledgement)
}

func ParseWindowAckSize(m *Message) (uint32, error) {
	return parseUint32(m, WindowAcknowledgementSize)
}

func ParseSetPeerBandwidth(m *Message) (PeerBandwidth, error) {
	if m.Type != SetPeerBandwidth || len(m.Payload) < 5 {
		return PeerBandwidth{}, malformed(m)
	}
	return PeerBandwidth{Size: binary.BigEndian.Uint32(m.Payload), Limit: m.Payload[4]}, nil
}

func ParseUserControl(m *Message) (UserControl, error) {
	if m.Type != UserControlMessage || len(m.Payload) < 6 {
		return UserControl{}, malformed(m)
	}
	uc := UserControl{
		Event: UserControlEvent(binary.BigEndian.Uint16(m.Payload)),
		Data:  binary.BigEndian.Uint32(m.Payload[2:]),
	}
	if uc.Event == SetBufferLength {
		if len(m.Payload) < 10 {
			return UserControl{}, malformed(m)
		}
		uc.BufferLength = binary.BigEndian.Uint32(m.Payload[6:])
	}
	return uc, nil
}

func controlMessage(t MessageType, body []byte) *Message {
	return &Message{Type: t, ChunkStreamID: ProtocolChannel, Payload: body}
}

func uint32Body(v uint32) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, v)
	return b
}

func parseUint32(m *Message, t MessageType) (uint32, error) {
	if m.Type != t || len(m.Payload) < 4 {
		return 0, malformed(m)
	}
	return binary.BigEndian.Uint32(m.Payload), nil
}

func malformed(m *Message) error {
	return errors.Wrapf(ErrMalformedMessage, "%s with %d byte body", m.Type, len(m.Payload))
}
