package rtmp

import (
	"bufio"
	"io"
	"sync/atomic"
)

// ByteReader is what the chunk layer reads from.
type ByteReader interface {
	io.Reader
	io.ByteReader
}

// ByteCounter reports how many bytes went through a Reader or Writer. It matches the
// source interface of the kxps rate samplers.
type ByteCounter interface {
	TotalBytes() uint64
}

// Reader counts the bytes read from an underlying bufio.Reader.
type Reader struct {
	reader *bufio.Reader
	n      uint64
}

func NewReader(reader *bufio.Reader) (*Reader, error) {
	if reader == nil {
		return nil, ErrNilReader
	}
	return &Reader{reader: reader}, nil
}

// Read reads exactly len(p) bytes from the underlying bufio.Reader into p.
// The error is EOF only if no bytes were read. If an EOF happens after reading some but
// not all the bytes, Read returns ErrUnexpectedEOF.
func (r *Reader) Read(p []byte) (n int, err error) {
	n, err = io.ReadFull(r.reader, p)
	atomic.AddUint64(&r.n, uint64(n))
	return n, err
}

// ReadByte reads and returns a single byte from the underlying bufio.Reader.
func (r *Reader) ReadByte() (byte, error) {
	b, err := r.reader.ReadByte()
	if err == nil {
		atomic.AddUint64(&r.n, 1)
	}
	return b, err
}

// TotalBytes returns the number of bytes read since the Reader was created.
func (r *Reader) TotalBytes() uint64 {
	return atomic.LoadUint64(&r.n)
}
