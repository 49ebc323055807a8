// Package amf0 implements the AMF0 encoding used by RTMP command and data messages.
// Values AMF0 cannot express are written through the AVM+ marker in AMF3.
package amf0

// Type markers.
const (
	TypeNumber      byte = 0x00
	TypeBoolean     byte = 0x01
	TypeString      byte = 0x02
	TypeObject      byte = 0x03
	TypeMovieClip   byte = 0x04 // reserved, not supported
	TypeNull        byte = 0x05
	TypeUndefined   byte = 0x06
	TypeReference   byte = 0x07
	TypeECMAArray   byte = 0x08
	TypeObjectEnd   byte = 0x09
	TypeStrictArray byte = 0x0A
	TypeDate        byte = 0x0B
	TypeLongString  byte = 0x0C
	TypeUnsupported byte = 0x0D
	TypeRecordSet   byte = 0x0E // reserved, not supported
	TypeXMLDocument byte = 0x0F
	TypeTypedObject byte = 0x10
	TypeAVMPlus     byte = 0x11
)

// Strings of this length or longer are written as long strings.
const longStringThreshold = 0xFFFF

// objectEnd terminates the property list of objects and ECMA arrays.
var objectEnd = []byte{0x00, 0x00, TypeObjectEnd}
