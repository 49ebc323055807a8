package rtmp

import (
	"bytes"
	"testing"

	"github.com/pkg/errors"
)

func TestControlMessages(t *testing.T) {
	set, err := NewSetChunkSize(4096)
	if err != nil {
		t.Fatalf("expected no error, but got %v", err)
	}
	tests := []struct {
		name  string
		msg   *Message
		typ   MessageType
		body  []byte
		parse func(*Message) (uint32, error)
		want  uint32
	}{
		{"set chunk size", set, SetChunkSize, []byte{0, 0, 0x10, 0}, ParseChunkSize, 4096},
		{"abort", NewAbort(5), AbortMessage, []byte{0, 0, 0, 5}, ParseAbort, 5},
		{"acknowledgement", NewAcknowledgement(2500000), Acknowledgement, []byte{0x00, 0x26, 0x25, 0xA0}, ParseAcknowledgement, 2500000},
		{"window ack size", NewWindowAckSize(2500000), WindowAcknowledgementSize, []byte{0x00, 0x26, 0x25, 0xA0}, ParseWindowAckSize, 2500000},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.msg.Type != tt.typ {
				t.Errorf("expected message type to be %s, but got %s", tt.typ, tt.msg.Type)
			}
			if tt.msg.ChunkStreamID != ProtocolChannel {
				t.Errorf("expected chunk stream id to be %d, but got %d", ProtocolChannel, tt.msg.ChunkStreamID)
			}
			if !tt.msg.Type.IsControl() {
				t.Errorf("expected %s to be a control message", tt.msg.Type)
			}
			if !bytes.Equal(tt.msg.Payload, tt.body) {
				t.Errorf("expected body % x, but got % x", tt.body, tt.msg.Payload)
			}
			got, err := tt.parse(tt.msg)
			if err != nil {
				t.Fatalf("expected no error, but got %v", err)
			}
			if got != tt.want {
				t.Errorf("expected %d, but got %d", tt.want, got)
			}
		})
	}
}

func TestSetPeerBandwidth(t *testing.T) {
	m := NewSetPeerBandwidth(2500000, LimitDynamic)
	if !bytes.Equal(m.Payload, []byte{0x00, 0x26, 0x25, 0xA0, 0x02}) {
		t.Errorf("expected body 00 26 25 a0 02, but got % x", m.Payload)
	}
	pb, err := ParseSetPeerBandwidth(m)
	if err != nil {
		t.Fatalf("expected no error, but got %v", err)
	}
	if pb != (PeerBandwidth{Size: 2500000, Limit: LimitDynamic}) {
		t.Errorf("expected size 2500000 with a dynamic limit, but got %+v", pb)
	}
}

func TestUserControl(t *testing.T) {
	tests := []struct {
		name string
		in   UserControl
		body []byte
	}{
		{"stream begin", UserControl{Event: StreamBegin, Data: 1}, []byte{0, 0, 0, 0, 0, 1}},
		{"ping request", UserControl{Event: PingRequest, Data: 0x0A0B0C0D}, []byte{0, 6, 0x0A, 0x0B, 0x0C, 0x0D}},
		{"ping response", UserControl{Event: PingResponse, Data: 42}, []byte{0, 7, 0, 0, 0, 42}},
		{"set buffer length", UserControl{Event: SetBufferLength, Data: 1, BufferLength: 3000}, []byte{0, 3, 0, 0, 0, 1, 0, 0, 0x0B, 0xB8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := NewUserControl(tt.in)
			if !bytes.Equal(m.Payload, tt.body) {
				t.Errorf("expected body % x, but got % x", tt.body, m.Payload)
			}
			got, err := ParseUserControl(m)
			if err != nil {
				t.Fatalf("expected no error, but got %v", err)
			}
			if got != tt.in {
				t.Errorf("expected %+v, but got %+v", tt.in, got)
			}
		})
	}
}

func TestControlMalformed(t *testing.T) {
	short := func(typ MessageType, n int) *Message {
		return &Message{Type: typ, Payload: make([]byte, n)}
	}
	tests := []struct {
		name  string
		parse func() error
		want  error
	}{
		{"short chunk size", func() error { _, err := ParseChunkSize(short(SetChunkSize, 3)); return err }, ErrMalformedMessage},
		{"zero chunk size", func() error { _, err := ParseChunkSize(short(SetChunkSize, 4)); return err }, ErrInvalidChunkSize},
		{"chunk size with the top bit set", func() error {
			_, err := ParseChunkSize(&Message{Type: SetChunkSize, Payload: []byte{0x80, 0, 0, 1}})
			return err
		}, ErrInvalidChunkSize},
		{"wrong type", func() error { _, err := ParseAbort(short(Acknowledgement, 4)); return err }, ErrMalformedMessage},
		{"short peer bandwidth", func() error { _, err := ParseSetPeerBandwidth(short(SetPeerBandwidth, 4)); return err }, ErrMalformedMessage},
		{"short user control", func() error { _, err := ParseUserControl(short(UserControlMessage, 5)); return err }, ErrMalformedMessage},
		{"short buffer length", func() error {
			_, err := ParseUserControl(&Message{Type: UserControlMessage, Payload: []byte{0, 3, 0, 0, 0, 1, 0}})
			return err
		}, ErrMalformedMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.parse()
			if !errors.Is(err, tt.want) {
				t.Errorf("expected %v, but got %v", tt.want, err)
			}
			if !IsProtocolError(err) {
				t.Errorf("expected %v to be a protocol error", err)
			}
		})
	}

	if _, err := NewSetChunkSize(0); !errors.Is(err, ErrInvalidChunkSize) {
		t.Errorf("expected ErrInvalidChunkSize, but got %v", err)
	}
}
