package rtmp

import (
	"bytes"
	"io"
	"testing"

	"github.com/pkg/errors"
)

func TestReadChunkHeader(t *testing.T) {
	prior := &ChunkHeader{
		Format:          ChunkType0,
		ChunkStreamID:   3,
		Timestamp:       1000,
		MessageLength:   10,
		MessageType:     CommandMessageAMF0,
		MessageStreamID: 1,
	}
	extendedPrior := &ChunkHeader{ChunkStreamID: 3, Timestamp: 0x01000000, MessageLength: 10, MessageType: AudioMessage, Extended: true}

	tests := []struct {
		name  string
		in    []byte
		prior *ChunkHeader
		want  ChunkHeader
		rest  int
	}{
		{
			name: "format 0",
			in:   []byte{0x03, 0x00, 0x00, 0x64, 0x00, 0x00, 0x0A, 0x14, 0x01, 0x00, 0x00, 0x00},
			want: ChunkHeader{Format: ChunkType0, ChunkStreamID: 3, Timestamp: 100, MessageLength: 10, MessageType: CommandMessageAMF0, MessageStreamID: 1},
		},
		{
			name: "two byte basic header",
			in:   []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x01, 0x08, 0x00, 0x00, 0x00, 0x00},
			want: ChunkHeader{Format: ChunkType0, ChunkStreamID: 64, Timestamp: 1, MessageLength: 1, MessageType: AudioMessage},
		},
		{
			name: "three byte basic header is little endian",
			in:   []byte{0x01, 0x2C, 0x01, 0x00, 0x00, 0x00, 0x00, 0x00, 0x01, 0x08, 0x00, 0x00, 0x00, 0x00},
			want: ChunkHeader{Format: ChunkType0, ChunkStreamID: 0x012C + 64, MessageLength: 1, MessageType: AudioMessage},
		},
		{
			name: "extended timestamp",
			in:   []byte{0x03, 0xFF, 0xFF, 0xFF, 0x00, 0x00, 0x0A, 0x08, 0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00},
			want: ChunkHeader{Format: ChunkType0, ChunkStreamID: 3, Timestamp: 0x01000000, MessageLength: 10, MessageType: AudioMessage, Extended: true},
		},
		{
			name:  "format 1 keeps the stream id",
			in:    []byte{0x43, 0x00, 0x00, 0x10, 0x00, 0x00, 0x05, 0x08},
			prior: prior,
			want:  ChunkHeader{Format: ChunkType1, ChunkStreamID: 3, Timestamp: 1016, TimestampDelta: 16, MessageLength: 5, MessageType: AudioMessage, MessageStreamID: 1},
		},
		{
			name:  "format 2 keeps length and type",
			in:    []byte{0x83, 0x00, 0x00, 0x20},
			prior: prior,
			want:  ChunkHeader{Format: ChunkType2, ChunkStreamID: 3, Timestamp: 1032, TimestampDelta: 32, MessageLength: 10, MessageType: CommandMessageAMF0, MessageStreamID: 1},
		},
		{
			name:  "format 3 keeps everything",
			in:    []byte{0xC3, 0xAA},
			prior: prior,
			want:  ChunkHeader{Format: ChunkType3, ChunkStreamID: 3, Timestamp: 1000, MessageLength: 10, MessageType: CommandMessageAMF0, MessageStreamID: 1},
			rest:  1,
		},
		{
			name:  "format 3 repeats the extended timestamp",
			in:    []byte{0xC3, 0x01, 0x00, 0x00, 0x00, 0xAA},
			prior: extendedPrior,
			want:  ChunkHeader{Format: ChunkType3, ChunkStreamID: 3, Timestamp: 0x01000000, MessageLength: 10, MessageType: AudioMessage, Extended: true},
			rest:  1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := bytes.NewReader(tt.in)
			got, err := ReadChunkHeader(r, func(uint32) *ChunkHeader { return tt.prior })
			if err != nil {
				t.Fatalf("expected no error, but got %v", err)
			}
			if *got != tt.want {
				t.Errorf("expected header to be %+v, but got %+v", tt.want, *got)
			}
			if r.Len() != tt.rest {
				t.Errorf("expected %d unread bytes, but got %d", tt.rest, r.Len())
			}
		})
	}
}

func TestReadChunkHeaderErrors(t *testing.T) {
	none := func(uint32) *ChunkHeader { return nil }
	tests := []struct {
		name string
		in   []byte
		want error
	}{
		{"empty", nil, io.EOF},
		{"format 1 without a previous header", []byte{0x43, 0, 0, 0, 0, 0, 1, 8}, ErrNoPreviousHeader},
		{"format 3 without a previous header", []byte{0xC5}, ErrNoPreviousHeader},
		{"truncated basic header", []byte{0x01, 0x2C}, io.ErrUnexpectedEOF},
		{"truncated message header", []byte{0x03, 0, 0}, io.ErrUnexpectedEOF},
		{"truncated extended timestamp", []byte{0x03, 0xFF, 0xFF, 0xFF, 0, 0, 1, 8, 0, 0, 0, 0, 0x01}, io.ErrUnexpectedEOF},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadChunkHeader(bytes.NewReader(tt.in), none)
			if !errors.Is(err, tt.want) {
				t.Errorf("expected error %v, but got %v", tt.want, err)
			}
		})
	}
	_, err := ReadChunkHeader(bytes.NewReader([]byte{0xC5}), none)
	if !IsProtocolError(err) {
		t.Errorf("expected a missing previous header to be a protocol error")
	}
}

func TestWriteChunkHeader(t *testing.T) {
	tests := []struct {
		name string
		in   ChunkHeader
		want []byte
	}{
		{
			"format 0",
			ChunkHeader{Format: ChunkType0, ChunkStreamID: 3, Timestamp: 100, MessageLength: 10, MessageType: CommandMessageAMF0, MessageStreamID: 1},
			[]byte{0x03, 0x00, 0x00, 0x64, 0x00, 0x00, 0x0A, 0x14, 0x01, 0x00, 0x00, 0x00},
		},
		{"csid 63", ChunkHeader{Format: ChunkType3, ChunkStreamID: 63}, []byte{0xFF}},
		{"csid 64", ChunkHeader{Format: ChunkType3, ChunkStreamID: 64}, []byte{0xC0, 0x00}},
		{"csid 319", ChunkHeader{Format: ChunkType3, ChunkStreamID: 319}, []byte{0xC0, 0xFF}},
		{"csid 320", ChunkHeader{Format: ChunkType3, ChunkStreamID: 320}, []byte{0xC1, 0x00, 0x01}},
		{"csid 65599", ChunkHeader{Format: ChunkType3, ChunkStreamID: 65599}, []byte{0xC1, 0xFF, 0xFF}},
		{"format 2", ChunkHeader{Format: ChunkType2, ChunkStreamID: 4, TimestampDelta: 33}, []byte{0x84, 0x00, 0x00, 0x21}},
		{
			"extended delta",
			ChunkHeader{Format: ChunkType2, ChunkStreamID: 4, TimestampDelta: 0x01000000},
			[]byte{0x84, 0xFF, 0xFF, 0xFF, 0x01, 0x00, 0x00, 0x00},
		},
		{
			"format 3 repeats the extended timestamp",
			ChunkHeader{Format: ChunkType3, ChunkStreamID: 4, Timestamp: 0x01000000, Extended: true},
			[]byte{0xC4, 0x01, 0x00, 0x00, 0x00},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if err := WriteChunkHeader(&buf, &tt.in); err != nil {
				t.Fatalf("expected no error, but got %v", err)
			}
			if !bytes.Equal(buf.Bytes(), tt.want) {
				t.Errorf("expected % x, but got % x", tt.want, buf.Bytes())
			}
		})
	}
}

func TestChunkHeaderRoundTrip(t *testing.T) {
	for _, csid := range []uint32{2, 3, 63, 64, 100, 319, 320, 1000, 65599} {
		in := &ChunkHeader{Format: ChunkType0, ChunkStreamID: csid, Timestamp: 0xFFFFFF + 5, MessageLength: 0xABCDEF, MessageType: VideoMessage, MessageStreamID: 0x01020304, Extended: true}
		b, err := AppendChunkHeader(nil, in)
		if err != nil {
			t.Fatalf("csid %d: expected no error, but got %v", csid, err)
		}
		got, err := ReadChunkHeader(bytes.NewReader(b), func(uint32) *ChunkHeader { return nil })
		if err != nil {
			t.Fatalf("csid %d: expected no error, but got %v", csid, err)
		}
		if *got != *in {
			t.Errorf("csid %d: expected %+v, but got %+v", csid, *in, *got)
		}
	}
}

func TestWriteChunkHeaderInvalidStreamID(t *testing.T) {
	for _, csid := range []uint32{0, 1, 65600} {
		err := WriteChunkHeader(io.Discard, &ChunkHeader{ChunkStreamID: csid})
		if !errors.Is(err, ErrInvalidChunkStreamID) {
			t.Errorf("csid %d: expected ErrInvalidChunkStreamID, but got %v", csid, err)
		}
	}
}
