package amf0

import (
	"encoding/binary"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/amf3"
)

// Encoder writes AMF0 values. AMF0 references are never written; a value reached twice is
// written twice, and a cycle is an error.
type Encoder struct {
	amf3 *amf3.Encoder
}

// NewEncoder returns an encoder that hands values with no AMF0 form to enc3. When enc3 is
// nil those values are written with fresh AMF3 tables each time.
func NewEncoder(enc3 *amf3.Encoder) *Encoder {
	return &Encoder{amf3: enc3}
}

// Encode writes v to w.
func (e *Encoder) Encode(w io.Writer, v amf.Value) error {
	b, err := e.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}

// Marshal returns the encoding of v.
func (e *Encoder) Marshal(v amf.Value) ([]byte, error) {
	return e.AppendValue(nil, v)
}

// AppendValue appends the encoding of v to b.
func (e *Encoder) AppendValue(b []byte, v amf.Value) ([]byte, error) {
	out, err := e.appendValue(b, v, make(map[amf.Value]bool))
	if err != nil {
		return b, err
	}
	return out, nil
}

// Marshal encodes v on its own.
func Marshal(v amf.Value) ([]byte, error) {
	return NewEncoder(nil).Marshal(v)
}

func (e *Encoder) appendValue(b []byte, v amf.Value, parents map[amf.Value]bool) ([]byte, error) {
	switch t := v.(type) {
	case nil, amf.Null:
		return append(b, TypeNull), nil
	case amf.Undefined:
		return append(b, TypeUndefined), nil
	case amf.Bool:
		if t {
			return append(b, TypeBoolean, 1), nil
		}
		return append(b, TypeBoolean, 0), nil
	case amf.Integer:
		// AMF0 has no integer type
		return appendNumber(b, float64(t)), nil
	case amf.Number:
		return appendNumber(b, float64(t)), nil
	case amf.String:
		if len(t) >= longStringThreshold {
			b = append(b, TypeLongString)
			b = binary.BigEndian.AppendUint32(b, uint32(len(t)))
			return append(b, t...), nil
		}
		b = append(b, TypeString)
		return appendUTF8(b, string(t)), nil
	case amf.XMLDocument:
		b = append(b, TypeXMLDocument)
		b = binary.BigEndian.AppendUint32(b, uint32(len(t)))
		return append(b, t...), nil
	case amf.Date:
		b = append(b, TypeDate)
		b = binary.BigEndian.AppendUint64(b, math.Float64bits(float64(t.Time.UnixMilli())))
		// Time zone, always zero
		return append(b, 0x00, 0x00), nil
	case *amf.Object:
		if t.Trait != nil && t.Trait.Externalizable {
			return e.appendAVMPlus(b, v)
		}
		if parents[v] {
			return b, errors.New("amf0: cyclic object")
		}
		parents[v] = true
		defer delete(parents, v)
		if t.Trait.IsAnonymous() {
			b = append(b, TypeObject)
		} else {
			b = append(b, TypeTypedObject)
			b = appendUTF8(b, t.ClassName())
		}
		return e.appendProperties(b, t.Properties(), parents)
	case *amf.ECMAArray:
		if parents[v] {
			return b, errors.New("amf0: cyclic ECMA array")
		}
		parents[v] = true
		defer delete(parents, v)
		b = append(b, TypeECMAArray)
		b = binary.BigEndian.AppendUint32(b, uint32(len(t.Props)))
		return e.appendProperties(b, t.Props, parents)
	case *amf.Array:
		if parents[v] {
			return b, errors.New("amf0: cyclic array")
		}
		parents[v] = true
		defer delete(parents, v)
		if len(t.Assoc) == 0 {
			b = append(b, TypeStrictArray)
			b = binary.BigEndian.AppendUint32(b, uint32(len(t.Dense)))
			var err error
			for i, item := range t.Dense {
				if b, err = e.appendValue(b, item, parents); err != nil {
					return b, errors.Wrapf(err, "array index %d", i)
				}
			}
			return b, nil
		}
		// A mixed array becomes an ECMA array keyed by index, then by name
		props := make([]amf.Property, 0, len(t.Dense)+len(t.Assoc))
		for i, item := range t.Dense {
			props = append(props, amf.Property{Name: strconv.Itoa(i), Value: item})
		}
		props = append(props, t.Assoc...)
		b = append(b, TypeECMAArray)
		b = binary.BigEndian.AppendUint32(b, uint32(len(props)))
		return e.appendProperties(b, props, parents)
	case amf.XML, amf.ByteArray, amf.VectorInt, amf.VectorUint, amf.VectorDouble,
		*amf.VectorObject, *amf.Dictionary, amf.Externalizable:
		return e.appendAVMPlus(b, v)
	default:
		return b, errors.Wrapf(amf.ErrUnsupportedValue, "%T", v)
	}
}

// appendAVMPlus switches to AMF3 for a single value.
func (e *Encoder) appendAVMPlus(b []byte, v amf.Value) ([]byte, error) {
	enc := e.amf3
	if enc == nil {
		enc = amf3.NewEncoder(nil)
	}
	return enc.AppendValue(append(b, TypeAVMPlus), v)
}

func (e *Encoder) appendProperties(b []byte, props []amf.Property, parents map[amf.Value]bool) ([]byte, error) {
	var err error
	for _, p := range props {
		if p.Name == "" {
			return b, errors.New("amf0: property name must not be empty")
		}
		if len(p.Name) > math.MaxUint16 {
			return b, errors.Errorf("amf0: property name of %d bytes", len(p.Name))
		}
		b = appendUTF8(b, p.Name)
		if b, err = e.appendValue(b, p.Value, parents); err != nil {
			return b, errors.Wrapf(err, "property %q", p.Name)
		}
	}
	return append(b, objectEnd...), nil
}

func appendNumber(b []byte, f float64) []byte {
	b = append(b, TypeNumber)
	return binary.BigEndian.AppendUint64(b, math.Float64bits(f))
}

// appendUTF8 writes a string with a 16 bit length prefix and no marker, as used for
// property names and class names.
func appendUTF8(b []byte, s string) []byte {
	b = binary.BigEndian.AppendUint16(b, uint16(len(s)))
	return append(b, s...)
}
