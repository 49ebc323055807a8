package amf0

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
	"github.com/torresjeff/pvprtmp/amf/amf3"
)

// Decoder reads AMF0 values. Its reference table holds the objects, ECMA arrays and strict
// arrays read so far; create one Decoder per message. Values behind the AVM+ marker go to
// the AMF3 decoder it was given, which normally lives as long as the connection.
type Decoder struct {
	reg     *amf.Registry
	amf3    *amf3.Decoder
	refs    []amf.Value
	bindErr error
}

// NewDecoder returns a decoder. reg and dec3 may be nil; without dec3 every AVM+ value
// is read with fresh AMF3 tables.
func NewDecoder(reg *amf.Registry, dec3 *amf3.Decoder) *Decoder {
	return &Decoder{reg: reg, amf3: dec3}
}

// Decode reads one value from r. io.EOF is returned only when r is exhausted before the
// type marker. A registered class rejecting its members yields the value together with
// the *amf.FieldError.
func (d *Decoder) Decode(r amf.Reader) (amf.Value, error) {
	d.bindErr = nil
	marker, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	v, err := d.readValue(r, marker)
	if err != nil {
		return nil, err
	}
	return v, d.bindErr
}

// DecodeAll reads values until r is exhausted.
func (d *Decoder) DecodeAll(r amf.Reader) ([]amf.Value, error) {
	var values []amf.Value
	var firstErr error
	for {
		v, err := d.Decode(r)
		if err == io.EOF {
			return values, firstErr
		}
		if v == nil {
			return values, err
		}
		if err != nil && firstErr == nil {
			firstErr = err
		}
		values = append(values, v)
	}
}

// Unmarshal decodes the single value in b.
func Unmarshal(b []byte) (amf.Value, error) {
	return NewDecoder(nil, nil).Decode(bytes.NewReader(b))
}

func (d *Decoder) readValue(r amf.Reader, marker byte) (amf.Value, error) {
	switch marker {
	case TypeNumber:
		f, err := readDouble(r)
		if err != nil {
			return nil, err
		}
		return amf.Number(f), nil
	case TypeBoolean:
		b, err := r.ReadByte()
		if err != nil {
			return nil, eof(err)
		}
		return amf.Bool(b != 0), nil
	case TypeString:
		s, err := readUTF8(r)
		if err != nil {
			return nil, err
		}
		return amf.String(s), nil
	case TypeLongString:
		s, err := readLongUTF8(r)
		if err != nil {
			return nil, err
		}
		return amf.String(s), nil
	case TypeXMLDocument:
		s, err := readLongUTF8(r)
		if err != nil {
			return nil, err
		}
		return amf.XMLDocument(s), nil
	case TypeNull:
		return amf.Null{}, nil
	case TypeUndefined, TypeUnsupported:
		return amf.Undefined{}, nil
	case TypeReference:
		var b [2]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, eof(err)
		}
		i := int(binary.BigEndian.Uint16(b[:]))
		if i >= len(d.refs) {
			return nil, errors.Wrapf(amf.ErrBadReference, "amf0 reference %d of %d", i, len(d.refs))
		}
		return d.refs[i], nil
	case TypeObject:
		obj := amf.NewObject()
		d.refs = append(d.refs, obj)
		if err := d.readProperties(r, func(p amf.Property) { obj.Dynamic = append(obj.Dynamic, p) }); err != nil {
			return nil, err
		}
		return obj, nil
	case TypeTypedObject:
		return d.readTypedObject(r)
	case TypeECMAArray:
		// The count is only a hint; the terminator ends the array
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, eof(err)
		}
		arr := &amf.ECMAArray{}
		d.refs = append(d.refs, arr)
		if err := d.readProperties(r, func(p amf.Property) { arr.Props = append(arr.Props, p) }); err != nil {
			return nil, err
		}
		return arr, nil
	case TypeStrictArray:
		var b [4]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return nil, eof(err)
		}
		n := binary.BigEndian.Uint32(b[:])
		arr := &amf.Array{Dense: make([]amf.Value, 0, capHint(n))}
		d.refs = append(d.refs, arr)
		for i := uint32(0); i < n; i++ {
			v, err := d.readNested(r)
			if err != nil {
				return nil, errors.Wrapf(err, "array index %d", i)
			}
			arr.Dense = append(arr.Dense, v)
		}
		return arr, nil
	case TypeDate:
		ms, err := readDouble(r)
		if err != nil {
			return nil, err
		}
		// Time zone, ignored
		var tz [2]byte
		if _, err := io.ReadFull(r, tz[:]); err != nil {
			return nil, eof(err)
		}
		return amf.NewDate(time.UnixMilli(int64(ms))), nil
	case TypeAVMPlus:
		return d.readAVMPlus(r)
	case TypeObjectEnd:
		return nil, errors.Wrap(amf.ErrUnknownMarker, "amf0: object end outside of an object")
	default:
		return nil, errors.Wrapf(amf.ErrUnknownMarker, "amf0 marker 0x%02x", marker)
	}
}

func (d *Decoder) readTypedObject(r amf.Reader) (amf.Value, error) {
	name, err := readUTF8(r)
	if err != nil {
		return nil, err
	}
	var obj *amf.Object
	if s, ok := d.reg.Schema(name); ok {
		obj = s.NewObject()
	} else {
		obj = amf.NewTypedObject(&amf.TraitDefinition{Name: name, Dynamic: true})
	}
	d.refs = append(d.refs, obj)
	if err := d.readProperties(r, func(p amf.Property) { obj.Set(p.Name, p.Value) }); err != nil {
		return nil, err
	}
	if err := d.reg.Bind(obj); err != nil && d.bindErr == nil {
		d.bindErr = err
	}
	return obj, nil
}

func (d *Decoder) readAVMPlus(r amf.Reader) (amf.Value, error) {
	dec := d.amf3
	if dec == nil {
		dec = amf3.NewDecoder(d.reg)
	}
	v, err := dec.Decode(r)
	if v == nil {
		return nil, eof(err)
	}
	if err != nil && d.bindErr == nil {
		d.bindErr = err
	}
	return v, nil
}

// readProperties reads name/value pairs up to the object end marker.
func (d *Decoder) readProperties(r amf.Reader, add func(amf.Property)) error {
	for {
		name, err := readUTF8(r)
		if err != nil {
			return err
		}
		if name == "" {
			end, err := r.ReadByte()
			if err != nil {
				return eof(err)
			}
			if end != TypeObjectEnd {
				return errors.Wrapf(amf.ErrUnknownMarker, "amf0: expected object end, got 0x%02x", end)
			}
			return nil
		}
		v, err := d.readNested(r)
		if err != nil {
			return errors.Wrapf(err, "property %q", name)
		}
		add(amf.Property{Name: name, Value: v})
	}
}

func (d *Decoder) readNested(r amf.Reader) (amf.Value, error) {
	marker, err := r.ReadByte()
	if err != nil {
		return nil, eof(err)
	}
	return d.readValue(r, marker)
}

func readDouble(r io.Reader) (float64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, eof(err)
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b[:])), nil
}

func readUTF8(r io.Reader) (string, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", eof(err)
	}
	return readN(r, int64(binary.BigEndian.Uint16(b[:])))
}

func readLongUTF8(r io.Reader) (string, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return "", eof(err)
	}
	return readN(r, int64(binary.BigEndian.Uint32(b[:])))
}

func readN(r io.Reader, n int64) (string, error) {
	if n == 0 {
		return "", nil
	}
	var sb bytes.Buffer
	if _, err := io.CopyN(&sb, r, n); err != nil {
		return "", eof(err)
	}
	return sb.String(), nil
}

func capHint(n uint32) int {
	if n > 1024 {
		return 1024
	}
	return int(n)
}

func eof(err error) error {
	if err == io.EOF {
		return io.ErrUnexpectedEOF
	}
	return err
}
