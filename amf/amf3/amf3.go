// Package amf3 implements the AMF3 encoding: variable-length 29-bit integers, and string,
// object and trait reference tables that live as long as the encoder or decoder.
package amf3

// Type markers.
const (
	TypeUndefined    byte = 0x00
	TypeNull         byte = 0x01
	TypeFalse        byte = 0x02
	TypeTrue         byte = 0x03
	TypeInteger      byte = 0x04
	TypeDouble       byte = 0x05
	TypeString       byte = 0x06
	TypeXMLDoc       byte = 0x07
	TypeDate         byte = 0x08
	TypeArray        byte = 0x09
	TypeObject       byte = 0x0A
	TypeXML          byte = 0x0B
	TypeByteArray    byte = 0x0C
	TypeVectorInt    byte = 0x0D
	TypeVectorUint   byte = 0x0E
	TypeVectorDouble byte = 0x0F
	TypeVectorObject byte = 0x10
	TypeDictionary   byte = 0x11
)

// UTF8Empty is the inline header of the empty string. The empty string is never
// referenced.
const UTF8Empty byte = 0x01

// Bits of the U29O-traits header, after the inline-object bit has been shifted out.
const (
	traitInline         = 0x01
	traitExternalizable = 0x02
	traitDynamic        = 0x04
)

// UntypedVector is the type name written for Vector.<*> and Vector.<Object>.
const UntypedVector = "*"
