package rtmp

import (
	"encoding/binary"
	"io"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/internal/binary24"
)

type ChunkType uint8

const (
	ChunkType0 ChunkType = iota
	ChunkType1
	ChunkType2
	ChunkType3
)

const (
	chunkType0MessageHeaderLength = 11
	chunkType1MessageHeaderLength = 7
	chunkType2MessageHeaderLength = 3
)

// Chunk stream ids. 0 and 1 are escapes in the basic header, so the lowest usable id is 2,
// which is reserved for protocol control messages.
const (
	ProtocolChannel  uint32 = 2
	CommandChannel   uint32 = 3
	MinChunkStreamID uint32 = 2
	MaxChunkStreamID uint32 = 65599
)

// A 24-bit timestamp field holding this value means the real one follows in 4 bytes.
const extendedTimestamp = binary24.MaxUint24

// ChunkHeader contains the information used in order to interpret a chunk correctly.
// Fields a format does not carry are inherited from the previous header on the same chunk
// stream.
type ChunkHeader struct {
	Format        ChunkType
	ChunkStreamID uint32
	// Timestamp is the absolute timestamp of the message the chunk belongs to.
	Timestamp uint32
	// TimestampDelta is the delta carried by format 1 and 2 headers. Format 0 sets it to 0.
	TimestampDelta  uint32
	MessageLength   uint32
	MessageType     MessageType
	MessageStreamID uint32
	// Extended is set when the timestamp field held 0xFFFFFF and the real value followed
	// in 4 extra bytes. Format 3 headers inherit it and repeat those 4 bytes.
	Extended bool
}

// ReadChunkHeader reads one chunk header. prior returns the last header seen on a chunk
// stream, or nil if there was none; a format other than 0 on such a stream fails with
// ErrNoPreviousHeader.
func ReadChunkHeader(r ByteReader, prior func(csid uint32) *ChunkHeader) (*ChunkHeader, error) {
	format, csid, err := readBasicHeader(r)
	if err != nil {
		return nil, err
	}
	h := &ChunkHeader{Format: format, ChunkStreamID: csid}
	if format == ChunkType0 {
		if err := readMessageHeader(r, h, nil); err != nil {
			return nil, err
		}
		return h, nil
	}
	prev := prior(csid)
	if prev == nil {
		return nil, errors.Wrapf(ErrNoPreviousHeader, "format %d on chunk stream %d", format, csid)
	}
	if err := readMessageHeader(r, h, prev); err != nil {
		return nil, err
	}
	return h, nil
}

//  0 1 2 3 4 5 6 7
// +-+-+-+-+-+-+-+-+
// |fmt|   cs id   |
// +-+-+-+-+-+-+-+-+
//
// cs id 0 means the id is the next byte + 64, cs id 1 means the next two bytes, little
// endian, + 64.
func readBasicHeader(r ByteReader) (ChunkType, uint32, error) {
	b, err := r.ReadByte()
	if err != nil {
		return 0, 0, err
	}
	// The 2 highest bits store the format, the lowest 6 the chunk stream id
	format := ChunkType(b >> 6)
	switch csid := uint32(b & 0x3F); csid {
	case 0:
		id, err := r.ReadByte()
		if err != nil {
			return 0, 0, unexpected(err)
		}
		return format, uint32(id) + 64, nil
	case 1:
		var id [2]byte
		if _, err := io.ReadFull(r, id[:]); err != nil {
			return 0, 0, unexpected(err)
		}
		return format, uint32(binary.LittleEndian.Uint16(id[:])) + 64, nil
	default:
		return format, csid, nil
	}
}

func readMessageHeader(r ByteReader, h *ChunkHeader, prev *ChunkHeader) error {
	var buf [chunkType0MessageHeaderLength]byte
	switch h.Format {
	// 0                   1                   2                   3
	// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//|                   timestamp                   |message length |
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//|     message length (cont)     |message type id| msg stream id |
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//|           message stream id (cont)            |
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//
	//	Chunk Message Header - Type 0
	case ChunkType0:
		if _, err := io.ReadFull(r, buf[:chunkType0MessageHeaderLength]); err != nil {
			return unexpected(err)
		}
		h.Timestamp = binary24.BigEndian.Uint24(buf[0:3])
		h.MessageLength = binary24.BigEndian.Uint24(buf[3:6])
		h.MessageType = MessageType(buf[6])
		// NOTE: message stream ID is stored in little endian format
		h.MessageStreamID = binary.LittleEndian.Uint32(buf[7:11])
		if h.Timestamp == extendedTimestamp {
			ts, err := readExtendedTimestamp(r)
			if err != nil {
				return err
			}
			h.Timestamp, h.Extended = ts, true
		}
		return nil
	// 0                   1                   2                   3
	// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//|                timestamp delta                |message length |
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//|     message length (cont)     |message type id|
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//
	//	Chunk Message Header - Type 1
	case ChunkType1:
		if _, err := io.ReadFull(r, buf[:chunkType1MessageHeaderLength]); err != nil {
			return unexpected(err)
		}
		h.TimestampDelta = binary24.BigEndian.Uint24(buf[0:3])
		h.MessageLength = binary24.BigEndian.Uint24(buf[3:6])
		h.MessageType = MessageType(buf[6])
		// Type 1 headers don't carry a message stream ID, it stays the same as the previous chunk's
		h.MessageStreamID = prev.MessageStreamID
	// 0                   1                   2
	// 0 1 2 3 4 5 6 7 8 9 0 1 2 3 4 5 6 7 8 9 0 1 2 3
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//|                timestamp delta                |
	//+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+-+
	//
	//	Chunk Message Header - Type 2
	case ChunkType2:
		if _, err := io.ReadFull(r, buf[:chunkType2MessageHeaderLength]); err != nil {
			return unexpected(err)
		}
		h.TimestampDelta = binary24.BigEndian.Uint24(buf[0:3])
		h.MessageLength = prev.MessageLength
		h.MessageType = prev.MessageType
		h.MessageStreamID = prev.MessageStreamID
	// Chunk type 3 message headers don't have any data. All values are taken from the
	// previous header, including whether an extended timestamp follows.
	case ChunkType3:
		h.Timestamp = prev.Timestamp
		h.TimestampDelta = prev.TimestampDelta
		h.MessageLength = prev.MessageLength
		h.MessageType = prev.MessageType
		h.MessageStreamID = prev.MessageStreamID
		h.Extended = prev.Extended
		if h.Extended {
			if _, err := readExtendedTimestamp(r); err != nil {
				return err
			}
		}
		return nil
	}

	// Formats 1 and 2 carry a delta, possibly extended
	if h.TimestampDelta == extendedTimestamp {
		delta, err := readExtendedTimestamp(r)
		if err != nil {
			return err
		}
		h.TimestampDelta, h.Extended = delta, true
	}
	h.Timestamp = prev.Timestamp + h.TimestampDelta
	return nil
}

func readExtendedTimestamp(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, unexpected(err)
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

// WriteChunkHeader writes h in its format. Format 0 writes Timestamp, formats 1 and 2
// write TimestampDelta, and format 3 writes only the basic header plus, when Extended is
// set, Timestamp as the repeated extended timestamp.
func WriteChunkHeader(w io.Writer, h *ChunkHeader) error {
	b, err := AppendChunkHeader(nil, h)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// AppendChunkHeader appends the encoding of h to b.
func AppendChunkHeader(b []byte, h *ChunkHeader) ([]byte, error) {
	b, err := appendBasicHeader(b, h.Format, h.ChunkStreamID)
	if err != nil {
		return b, err
	}
	switch h.Format {
	case ChunkType0:
		b = binary24.BigEndian.AppendUint24(b, binary24.Clamp(h.Timestamp))
		b = binary24.BigEndian.AppendUint24(b, h.MessageLength)
		b = append(b, byte(h.MessageType))
		b = binary.LittleEndian.AppendUint32(b, h.MessageStreamID)
		if h.Timestamp >= extendedTimestamp {
			b = binary.BigEndian.AppendUint32(b, h.Timestamp)
		}
	case ChunkType1:
		b = binary24.BigEndian.AppendUint24(b, binary24.Clamp(h.TimestampDelta))
		b = binary24.BigEndian.AppendUint24(b, h.MessageLength)
		b = append(b, byte(h.MessageType))
		if h.TimestampDelta >= extendedTimestamp {
			b = binary.BigEndian.AppendUint32(b, h.TimestampDelta)
		}
	case ChunkType2:
		b = binary24.BigEndian.AppendUint24(b, binary24.Clamp(h.TimestampDelta))
		if h.TimestampDelta >= extendedTimestamp {
			b = binary.BigEndian.AppendUint32(b, h.TimestampDelta)
		}
	case ChunkType3:
		if h.Extended {
			b = binary.BigEndian.AppendUint32(b, h.Timestamp)
		}
	default:
		return b, errors.Errorf("rtmp: invalid chunk format %d", h.Format)
	}
	return b, nil
}

func appendBasicHeader(b []byte, format ChunkType, csid uint32) ([]byte, error) {
	fmtBits := byte(format) << 6
	switch {
	case csid < MinChunkStreamID || csid > MaxChunkStreamID:
		return b, errors.Wrapf(ErrInvalidChunkStreamID, "%d", csid)
	case csid < 64:
		return append(b, fmtBits|byte(csid)), nil
	case csid < 64+256:
		return append(b, fmtBits, byte(csid-64)), nil
	default:
		id := csid - 64
		return append(b, fmtBits|1, byte(id), byte(id>>8)), nil
	}
}

// unexpected turns a clean EOF in the middle of a header or body into io.ErrUnexpectedEOF.
func unexpected(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
