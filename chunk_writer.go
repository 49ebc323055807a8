package rtmp

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/internal/binary24"
)

// ChunkWriter splits messages into chunks. Each WriteMessage call writes its chunks back to
// back and, when the destination is a Flusher, flushes them together, so messages from
// concurrent callers never interleave.
type ChunkWriter struct {
	mu        sync.Mutex
	w         io.Writer
	chunkSize uint32
	buf       []byte
}

func NewChunkWriter(w io.Writer) *ChunkWriter {
	return &ChunkWriter{w: w, chunkSize: DefaultChunkSize}
}

// ChunkSize returns the size outgoing messages are split at.
func (cw *ChunkWriter) ChunkSize() uint32 {
	cw.mu.Lock()
	defer cw.mu.Unlock()
	return cw.chunkSize
}

// SetChunkSize changes the size outgoing messages are split at without telling the peer.
// Writing a SetChunkSize message does both.
func (cw *ChunkWriter) SetChunkSize(size uint32) error {
	if size < MinChunkSize || size > MaxChunkSize {
		return errors.Wrapf(ErrInvalidChunkSize, "%d", size)
	}
	cw.mu.Lock()
	cw.chunkSize = size
	cw.mu.Unlock()
	return nil
}

// WriteMessage writes msg on chunk stream csid and message stream msid: a format 0 chunk
// followed by as many format 3 chunks as the current chunk size requires. msg.Timestamp is
// written as an absolute timestamp.
func (cw *ChunkWriter) WriteMessage(msg *Message, csid, msid uint32) error {
	if len(msg.Payload) > binary24.MaxUint24 {
		return errors.Errorf("rtmp: %s message of %d bytes does not fit a chunk header", msg.Type, len(msg.Payload))
	}
	var newSize uint32
	if msg.Type == SetChunkSize {
		size, err := ParseChunkSize(msg)
		if err != nil {
			return err
		}
		newSize = size
	}

	cw.mu.Lock()
	defer cw.mu.Unlock()

	h := &ChunkHeader{
		Format:          ChunkType0,
		ChunkStreamID:   csid,
		Timestamp:       msg.Timestamp,
		MessageLength:   uint32(len(msg.Payload)),
		MessageType:     msg.Type,
		MessageStreamID: msid,
		Extended:        msg.Timestamp >= extendedTimestamp,
	}
	b, err := AppendChunkHeader(cw.buf[:0], h)
	if err != nil {
		return err
	}
	payload := msg.Payload
	n := minUint32(uint32(len(payload)), cw.chunkSize)
	b = append(b, payload[:n]...)
	payload = payload[n:]

	cont := &ChunkHeader{Format: ChunkType3, ChunkStreamID: csid, Timestamp: h.Timestamp, Extended: h.Extended}
	for len(payload) > 0 {
		if b, err = AppendChunkHeader(b, cont); err != nil {
			return err
		}
		n = minUint32(uint32(len(payload)), cw.chunkSize)
		b = append(b, payload[:n]...)
		payload = payload[n:]
	}
	cw.buf = b

	if _, err := cw.w.Write(b); err != nil {
		return err
	}
	if f, ok := cw.w.(Flusher); ok {
		if err := f.Flush(); err != nil {
			return err
		}
	}
	if newSize != 0 {
		cw.chunkSize = newSize
	}
	return nil
}
