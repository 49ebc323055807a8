package rtmp

import (
	"io"

	"github.com/pkg/errors"
)

// Messages larger than this grow their buffer as chunks arrive instead of allocating the
// declared length up front.
const maxPrealloc = 64 * 1024

// ChunkReader reassembles messages from the chunks of several interleaved chunk streams.
// It is not safe for concurrent use; a connection has exactly one reading goroutine.
type ChunkReader struct {
	r         ByteReader
	chunkSize uint32
	// The key is the chunk stream ID, and the value is the last header seen on it
	headers map[uint32]*ChunkHeader
	// Partially received messages, by chunk stream ID
	inflight map[uint32]*partial
}

type partial struct {
	header *ChunkHeader
	body   []byte
}

func NewChunkReader(r ByteReader) *ChunkReader {
	return &ChunkReader{
		r:         r,
		chunkSize: DefaultChunkSize,
		headers:   make(map[uint32]*ChunkHeader),
		inflight:  make(map[uint32]*partial),
	}
}

// ChunkSize returns the size the peer's chunks are read at.
func (cr *ChunkReader) ChunkSize() uint32 {
	return cr.chunkSize
}

// SetChunkSize changes the size the peer's chunks are read at. ReadMessage calls it when
// a SetChunkSize message arrives.
func (cr *ChunkReader) SetChunkSize(size uint32) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return errors.Wrapf(ErrInvalidChunkSize, "%d", size)
	}
	cr.chunkSize = size
	return nil
}

// Abort discards the partial message on csid, if any.
func (cr *ChunkReader) Abort(csid uint32) {
	delete(cr.inflight, csid)
}

// ReadMessage blocks until one message is complete and returns it. SetChunkSize and Abort
// messages are applied to the reader before they are returned.
//
// A clean end of stream between chunks returns io.EOF; one inside a chunk returns
// io.ErrUnexpectedEOF.
func (cr *ChunkReader) ReadMessage() (*Message, error) {
	for {
		h, err := ReadChunkHeader(cr.r, cr.prior)
		if err != nil {
			return nil, err
		}
		csid := h.ChunkStreamID

		p := cr.inflight[csid]
		if p != nil && h.Format != ChunkType3 {
			return nil, errors.Wrapf(ErrUnexpectedHeader, "format %d on chunk stream %d with %d of %d bytes read",
				h.Format, csid, len(p.body), p.header.MessageLength)
		}
		if p == nil {
			if h.Format == ChunkType3 {
				// A format 3 chunk starting a new message repeats the previous delta
				h.Timestamp += h.TimestampDelta
			}
			p = &partial{header: h, body: make([]byte, 0, minUint32(h.MessageLength, maxPrealloc))}
			cr.inflight[csid] = p
		}
		cr.headers[csid] = h

		n := minUint32(p.header.MessageLength-uint32(len(p.body)), cr.chunkSize)
		if err := cr.readBody(p, n); err != nil {
			return nil, err
		}
		if uint32(len(p.body)) < p.header.MessageLength {
			continue
		}

		delete(cr.inflight, csid)
		msg := &Message{
			Type:          p.header.MessageType,
			ChunkStreamID: csid,
			StreamID:      p.header.MessageStreamID,
			Timestamp:     p.header.Timestamp,
			Payload:       p.body,
		}
		if err := cr.apply(msg); err != nil {
			return nil, err
		}
		return msg, nil
	}
}

func (cr *ChunkReader) prior(csid uint32) *ChunkHeader {
	return cr.headers[csid]
}

func (cr *ChunkReader) readBody(p *partial, n uint32) error {
	start := len(p.body)
	end := start + int(n)
	if end > cap(p.body) {
		grown := make([]byte, start, minUint32(uint32(2*cap(p.body)+int(n)), p.header.MessageLength))
		copy(grown, p.body)
		p.body = grown
	}
	p.body = p.body[:end]
	if _, err := io.ReadFull(cr.r, p.body[start:end]); err != nil {
		return unexpected(err)
	}
	return nil
}

func (cr *ChunkReader) apply(msg *Message) error {
	switch msg.Type {
	case SetChunkSize:
		size, err := ParseChunkSize(msg)
		if err != nil {
			return err
		}
		return cr.SetChunkSize(size)
	case AbortMessage:
		csid, err := ParseAbort(msg)
		if err != nil {
			return err
		}
		cr.Abort(csid)
	}
	return nil
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
