package amf3

import (
	"bytes"
	"encoding/binary"
	"io"
	"math"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

// Decoder reads AMF3 values. Like the Encoder, its reference tables persist across calls
// and must track exactly one stream. It is safe for concurrent use.
type Decoder struct {
	mu      sync.Mutex
	reg     *amf.Registry
	strings []string
	objects []amf.Value
	traits  []*amf.TraitDefinition

	// bindErr is the first error from a registered class while decoding the current
	// top-level value.
	bindErr error
}

// NewDecoder returns a decoder with empty tables. reg may be nil.
func NewDecoder(reg *amf.Registry) *Decoder {
	return &Decoder{reg: reg}
}

// Decode reads one value from r. io.EOF is returned only when r is exhausted before the
// type marker.
//
// When a registered class rejects its members the value is still fully read, so the
// stream stays usable, and the *amf.FieldError is returned with it.
func (d *Decoder) Decode(r amf.Reader) (amf.Value, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
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

// Unmarshal decodes the single value in b.
func (d *Decoder) Unmarshal(b []byte) (amf.Value, error) {
	return d.Decode(bytes.NewReader(b))
}

// Unmarshal decodes the single value in b with fresh tables.
func Unmarshal(b []byte) (amf.Value, error) {
	return NewDecoder(nil).Unmarshal(b)
}

// input is the amf.Input handed to externalizable classes.
type input struct {
	amf.Reader
	dec *Decoder
}

func (in *input) ReadValue() (amf.Value, error) {
	marker, err := in.ReadByte()
	if err != nil {
		return nil, eof(err)
	}
	return in.dec.readValue(in.Reader, marker)
}

func (d *Decoder) readValue(r amf.Reader, marker byte) (amf.Value, error) {
	switch marker {
	case TypeUndefined:
		return amf.Undefined{}, nil
	case TypeNull:
		return amf.Null{}, nil
	case TypeFalse:
		return amf.Bool(false), nil
	case TypeTrue:
		return amf.Bool(true), nil
	case TypeInteger:
		i, err := ReadInt29(r)
		if err != nil {
			return nil, err
		}
		return amf.Integer(i), nil
	case TypeDouble:
		f, err := readDouble(r)
		if err != nil {
			return nil, err
		}
		return amf.Number(f), nil
	case TypeString:
		s, err := d.readString(r)
		if err != nil {
			return nil, err
		}
		return amf.String(s), nil
	case TypeXMLDoc, TypeXML:
		return d.readText(r, marker)
	case TypeDate:
		return d.readDate(r)
	case TypeArray:
		return d.readArray(r)
	case TypeObject:
		return d.readObject(r)
	case TypeByteArray:
		return d.readByteArray(r)
	case TypeVectorInt, TypeVectorUint, TypeVectorDouble:
		return d.readVector(r, marker)
	case TypeVectorObject:
		return d.readVectorObject(r)
	case TypeDictionary:
		return d.readDictionary(r)
	default:
		return nil, errors.Wrapf(amf.ErrUnknownMarker, "amf3 marker 0x%02x", marker)
	}
}

// readHeader reads a U29 ref-or-inline header. For a reference it returns the referenced
// object; for an inline value it returns the length with the flag bit removed.
func (d *Decoder) readHeader(r amf.Reader) (amf.Value, int, error) {
	h, err := readU29(r)
	if err != nil {
		return nil, 0, err
	}
	if h&1 == 0 {
		v, err := d.objectRef(int(h >> 1))
		return v, 0, err
	}
	return nil, int(h >> 1), nil
}

func (d *Decoder) objectRef(i int) (amf.Value, error) {
	if i >= len(d.objects) {
		return nil, errors.Wrapf(amf.ErrBadReference, "object %d of %d", i, len(d.objects))
	}
	return d.objects[i], nil
}

func (d *Decoder) readString(r amf.Reader) (string, error) {
	h, err := readU29(r)
	if err != nil {
		return "", err
	}
	if h&1 == 0 {
		i := int(h >> 1)
		if i >= len(d.strings) {
			return "", errors.Wrapf(amf.ErrBadReference, "string %d of %d", i, len(d.strings))
		}
		return d.strings[i], nil
	}
	n := int(h >> 1)
	if n == 0 {
		return "", nil
	}
	b, err := readBytes(r, n)
	if err != nil {
		return "", err
	}
	s := string(b)
	d.strings = append(d.strings, s)
	return s, nil
}

func (d *Decoder) readText(r amf.Reader, marker byte) (amf.Value, error) {
	ref, n, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	b, err := readBytes(r, n)
	if err != nil {
		return nil, err
	}
	var v amf.Value = amf.XML(b)
	if marker == TypeXMLDoc {
		v = amf.XMLDocument(b)
	}
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readDate(r amf.Reader) (amf.Value, error) {
	ref, _, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	ms, err := readDouble(r)
	if err != nil {
		return nil, err
	}
	v := amf.NewDate(time.UnixMilli(int64(ms)))
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readByteArray(r amf.Reader) (amf.Value, error) {
	ref, n, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	b, err := readBytes(r, n)
	if err != nil {
		return nil, err
	}
	v := amf.ByteArray(b)
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readArray(r amf.Reader) (amf.Value, error) {
	ref, n, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	arr := &amf.Array{Dense: make([]amf.Value, 0, capHint(n))}
	// Registered before its members so they can refer back to it
	d.objects = append(d.objects, arr)
	for {
		key, err := d.readString(r)
		if err != nil {
			return nil, err
		}
		if key == "" {
			break
		}
		v, err := d.readNested(r)
		if err != nil {
			return nil, err
		}
		arr.Assoc = append(arr.Assoc, amf.Property{Name: key, Value: v})
	}
	for i := 0; i < n; i++ {
		v, err := d.readNested(r)
		if err != nil {
			return nil, err
		}
		arr.Dense = append(arr.Dense, v)
	}
	return arr, nil
}

func (d *Decoder) readTrait(r amf.Reader, h uint32) (*amf.TraitDefinition, error) {
	if h&traitInline == 0 {
		i := int(h >> 1)
		if i >= len(d.traits) {
			return nil, errors.Wrapf(amf.ErrBadReference, "trait %d of %d", i, len(d.traits))
		}
		return d.traits[i], nil
	}
	t := &amf.TraitDefinition{
		Externalizable: h&traitExternalizable != 0,
		Dynamic:        h&traitDynamic != 0,
	}
	count := int(h >> 3)
	name, err := d.readString(r)
	if err != nil {
		return nil, err
	}
	t.Name = name
	if count > 0 {
		t.Static = make([]string, 0, capHint(count))
	}
	for i := 0; i < count; i++ {
		s, err := d.readString(r)
		if err != nil {
			return nil, err
		}
		t.Static = append(t.Static, s)
	}
	d.traits = append(d.traits, t)
	return t, nil
}

func (d *Decoder) readObject(r amf.Reader) (amf.Value, error) {
	h, err := readU29(r)
	if err != nil {
		return nil, err
	}
	if h&1 == 0 {
		return d.objectRef(int(h >> 1))
	}
	t, err := d.readTrait(r, h>>1)
	if err != nil {
		return nil, err
	}

	if t.Externalizable {
		ext, ok := d.reg.NewExternal(t.Name)
		if !ok {
			return nil, errors.Wrapf(amf.ErrUnknownExternal, "%q", t.Name)
		}
		d.objects = append(d.objects, ext)
		if err := ext.ReadExternal(&input{Reader: r, dec: d}); err != nil {
			return nil, errors.Wrapf(err, "read external %s", t.Name)
		}
		return ext, nil
	}

	obj := &amf.Object{Trait: t}
	if t.IsAnonymous() {
		obj.Trait = nil
	}
	d.objects = append(d.objects, obj)
	if len(t.Static) > 0 {
		obj.Sealed = make([]amf.Value, len(t.Static))
	}
	for i := range t.Static {
		v, err := d.readNested(r)
		if err != nil {
			return nil, err
		}
		obj.Sealed[i] = v
	}
	if t.Dynamic {
		for {
			name, err := d.readString(r)
			if err != nil {
				return nil, err
			}
			if name == "" {
				break
			}
			v, err := d.readNested(r)
			if err != nil {
				return nil, err
			}
			obj.Dynamic = append(obj.Dynamic, amf.Property{Name: name, Value: v})
		}
	}
	if err := d.reg.Bind(obj); err != nil && d.bindErr == nil {
		d.bindErr = err
	}
	return obj, nil
}

func (d *Decoder) readVector(r amf.Reader, marker byte) (amf.Value, error) {
	ref, n, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	fixed, err := r.ReadByte()
	if err != nil {
		return nil, eof(err)
	}
	size := 4
	if marker == TypeVectorDouble {
		size = 8
	}
	b, err := readBytes(r, n*size)
	if err != nil {
		return nil, err
	}
	var v amf.Value
	switch marker {
	case TypeVectorInt:
		vec := amf.VectorInt{Fixed: fixed != 0, Items: make([]int32, n)}
		for i := range vec.Items {
			vec.Items[i] = int32(binary.BigEndian.Uint32(b[i*4:]))
		}
		v = vec
	case TypeVectorUint:
		vec := amf.VectorUint{Fixed: fixed != 0, Items: make([]uint32, n)}
		for i := range vec.Items {
			vec.Items[i] = binary.BigEndian.Uint32(b[i*4:])
		}
		v = vec
	default:
		vec := amf.VectorDouble{Fixed: fixed != 0, Items: make([]float64, n)}
		for i := range vec.Items {
			vec.Items[i] = math.Float64frombits(binary.BigEndian.Uint64(b[i*8:]))
		}
		v = vec
	}
	d.objects = append(d.objects, v)
	return v, nil
}

func (d *Decoder) readVectorObject(r amf.Reader) (amf.Value, error) {
	ref, n, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	fixed, err := r.ReadByte()
	if err != nil {
		return nil, eof(err)
	}
	name, err := d.readString(r)
	if err != nil {
		return nil, err
	}
	vec := &amf.VectorObject{TypeName: name, Fixed: fixed != 0, Items: make([]amf.Value, 0, capHint(n))}
	d.objects = append(d.objects, vec)
	for i := 0; i < n; i++ {
		v, err := d.readNested(r)
		if err != nil {
			return nil, err
		}
		vec.Items = append(vec.Items, v)
	}
	return vec, nil
}

func (d *Decoder) readDictionary(r amf.Reader) (amf.Value, error) {
	ref, n, err := d.readHeader(r)
	if err != nil || ref != nil {
		return ref, err
	}
	weak, err := r.ReadByte()
	if err != nil {
		return nil, eof(err)
	}
	dict := &amf.Dictionary{WeakKeys: weak != 0, Entries: make([]amf.DictionaryEntry, 0, capHint(n))}
	d.objects = append(d.objects, dict)
	for i := 0; i < n; i++ {
		k, err := d.readNested(r)
		if err != nil {
			return nil, err
		}
		v, err := d.readNested(r)
		if err != nil {
			return nil, err
		}
		dict.Entries = append(dict.Entries, amf.DictionaryEntry{Key: k, Value: v})
	}
	return dict, nil
}

// readNested reads a value inside another one, where running out of input is always
// an error.
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

// readBytes reads n bytes without trusting n for the allocation size.
func readBytes(r io.Reader, n int) ([]byte, error) {
	if n <= 64*1024 {
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return nil, eof(err)
		}
		return b, nil
	}
	var buf bytes.Buffer
	if _, err := io.CopyN(&buf, r, int64(n)); err != nil {
		return nil, eof(err)
	}
	return buf.Bytes(), nil
}

// capHint bounds preallocation driven by a length read off the wire.
func capHint(n int) int {
	if n > 1024 {
		return 1024
	}
	return n
}
