// Package binary24 reads and writes the 24-bit integers of RTMP chunk headers.
package binary24

// MaxUint24 is the largest value a 24-bit field holds. RTMP uses it as the extended
// timestamp escape.
const MaxUint24 = 1<<24 - 1

var BigEndian bigEndian

var LittleEndian littleEndian

type bigEndian struct{}

func (bigEndian) Uint24(b []byte) uint32 {
	return uint32(b[2]) | uint32(b[1])<<8 | uint32(b[0])<<16
}

func (bigEndian) PutUint24(b []byte, v uint32) {
	_ = b[2] // early bounds check to guarantee safety of writes below
	b[0] = byte(v >> 16)
	b[1] = byte(v >> 8)
	b[2] = byte(v)
}

// AppendUint24 appends the low 24 bits of v to b.
func (bigEndian) AppendUint24(b []byte, v uint32) []byte {
	return append(b, byte(v>>16), byte(v>>8), byte(v))
}

type littleEndian struct{}

func (littleEndian) Uint24(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
}

func (littleEndian) PutUint24(b []byte, v uint32) {
	_ = b[2] // early bounds check to guarantee safety of writes below
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
}

func (littleEndian) AppendUint24(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16))
}

// Clamp returns v, or MaxUint24 when v does not fit in 24 bits.
func Clamp(v uint32) uint32 {
	if v >= MaxUint24 {
		return MaxUint24
	}
	return v
}
