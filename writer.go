package rtmp

import (
	"bufio"
	"io"
	"sync/atomic"
)

type WriteFlusher interface {
	io.Writer
	Flusher
}

type Flusher interface {
	Flush() error
}

// Writer counts the bytes written to an underlying bufio.Writer.
type Writer struct {
	writer *bufio.Writer
	n      uint64
}

func NewWriter(writer *bufio.Writer) (*Writer, error) {
	if writer == nil {
		return nil, ErrNilWriter
	}
	return &Writer{writer: writer}, nil
}

// Write writes the contents of p into the underlying bufio.Writer.
// If n < len(p), it also returns an error explaining why the write is short.
func (w *Writer) Write(p []byte) (n int, err error) {
	n, err = w.writer.Write(p)
	atomic.AddUint64(&w.n, uint64(n))
	return n, err
}

// Flush writes any buffered data in the underlying bufio.Writer.
func (w *Writer) Flush() error {
	return w.writer.Flush()
}

// TotalBytes returns the number of bytes written since the Writer was created. Bytes
// still sitting in the buffer are included.
func (w *Writer) TotalBytes() uint64 {
	return atomic.LoadUint64(&w.n)
}
