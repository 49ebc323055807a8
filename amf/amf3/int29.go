package amf3

import (
	"io"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

// AppendInt29 appends the U29 form of i to b. Values outside [MinInt29, MaxInt29] are
// rejected with amf.ErrInt29Range.
func AppendInt29(b []byte, i int32) ([]byte, error) {
	if i < amf.MinInt29 || i > amf.MaxInt29 {
		return b, errors.Wrapf(amf.ErrInt29Range, "%d", i)
	}
	return appendU29(b, uint32(i)&0x1FFFFFFF), nil
}

// EncodeInt29 returns the U29 form of i.
func EncodeInt29(i int32) ([]byte, error) {
	return AppendInt29(make([]byte, 0, 4), i)
}

// DecodeInt29 decodes a U29 from the start of b and returns the value and the number of
// bytes consumed. Bit 28 of the 29-bit result is the sign.
func DecodeInt29(b []byte) (int32, int, error) {
	var u uint32
	for n := 0; n < 4; n++ {
		if n >= len(b) {
			return 0, n, io.ErrUnexpectedEOF
		}
		c := b[n]
		if n == 3 {
			u = u<<8 | uint32(c)
			return signExtend(u), 4, nil
		}
		u = u<<7 | uint32(c&0x7F)
		if c&0x80 == 0 {
			return signExtend(u), n + 1, nil
		}
	}
	panic("unreachable")
}

// WriteInt29 writes the U29 form of i to w.
func WriteInt29(w io.Writer, i int32) error {
	var buf [4]byte
	b, err := AppendInt29(buf[:0], i)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// ReadInt29 reads a signed 29-bit integer from r.
func ReadInt29(r io.ByteReader) (int32, error) {
	u, err := readU29(r)
	if err != nil {
		return 0, err
	}
	return signExtend(u), nil
}

func signExtend(u uint32) int32 {
	if u&0x10000000 != 0 {
		return int32(u | 0xE0000000)
	}
	return int32(u)
}

// appendU29 writes an unsigned 29-bit quantity. The first three bytes carry 7 bits each
// with the high bit flagging a continuation, the fourth byte carries a full 8 bits.
func appendU29(b []byte, u uint32) []byte {
	u &= 0x1FFFFFFF
	switch {
	case u < 0x80:
		return append(b, byte(u))
	case u < 0x4000:
		return append(b, byte(u>>7)|0x80, byte(u&0x7F))
	case u < 0x200000:
		return append(b, byte(u>>14)|0x80, byte(u>>7)|0x80, byte(u&0x7F))
	default:
		return append(b, byte(u>>22)|0x80, byte(u>>15)|0x80, byte(u>>8)|0x80, byte(u))
	}
}

func readU29(r io.ByteReader) (uint32, error) {
	var u uint32
	for n := 0; n < 3; n++ {
		c, err := r.ReadByte()
		if err != nil {
			return 0, eof(err)
		}
		u = u<<7 | uint32(c&0x7F)
		if c&0x80 == 0 {
			return u, nil
		}
	}
	c, err := r.ReadByte()
	if err != nil {
		return 0, eof(err)
	}
	return u<<8 | uint32(c), nil
}

// eof turns a clean EOF in the middle of a value into io.ErrUnexpectedEOF.
func eof(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
