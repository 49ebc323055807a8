// Package amf holds the value model shared by the AMF0 and AMF3 codecs: the set of values
// AMF can carry, trait definitions, class schemas and the registry that maps wire class
// names to Go types.
package amf

import "io"

// Object encodings, as carried in the RTMP connect command's objectEncoding field.
const (
	Version0 uint8 = 0
	Version3 uint8 = 3
)

// Reader is what the decoders read from. Both *bytes.Reader and *bufio.Reader satisfy it.
type Reader interface {
	io.Reader
	io.ByteReader
}

// Input is handed to Externalizable.ReadExternal. ReadValue decodes one AMF3 value using
// the decoder's live reference tables.
type Input interface {
	Reader
	ReadValue() (Value, error)
}

// Output is handed to Externalizable.WriteExternal. WriteValue encodes one AMF3 value using
// the encoder's live reference tables.
type Output interface {
	io.Writer
	io.ByteWriter
	WriteValue(v Value) error
}
