package amf3

import (
	"encoding/binary"
	"io"
	"math"
	"reflect"
	"sync"

	"github.com/pkg/errors"
	"github.com/torresjeff/pvprtmp/amf"
)

// maxU28 is the largest length or index that fits in a U29 header next to its flag bit.
const maxU28 = 1<<28 - 1

// Encoder writes AMF3 values. Its string, object and trait tables persist across calls,
// so one Encoder must be used for exactly one stream, in order. It is safe for concurrent
// use; each Encode is atomic with respect to the tables.
type Encoder struct {
	mu      sync.Mutex
	reg     *amf.Registry
	strings *amf.RefTable[string]
	objects *amf.RefTable[interface{}]
	traits  *amf.RefTable[string]
}

// NewEncoder returns an encoder with empty tables. reg may be nil.
func NewEncoder(reg *amf.Registry) *Encoder {
	return &Encoder{
		reg:     reg,
		strings: amf.NewRefTable[string](),
		objects: amf.NewRefTable[interface{}](),
		traits:  amf.NewRefTable[string](),
	}
}

// Encode writes v to w. If v cannot be encoded nothing is written and the tables are left
// as they were.
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
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marshal(nil, v)
}

// AppendValue appends the encoding of v to b.
func (e *Encoder) AppendValue(b []byte, v amf.Value) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.marshal(b, v)
}

func (e *Encoder) marshal(b []byte, v amf.Value) ([]byte, error) {
	ns, no, nt := e.strings.Len(), e.objects.Len(), e.traits.Len()
	out := &output{enc: e, buf: b}
	if err := out.writeValue(v); err != nil {
		e.strings.Truncate(ns)
		e.objects.Truncate(no)
		e.traits.Truncate(nt)
		return b, err
	}
	return out.buf, nil
}

// Mark is a position in an encoder's tables.
type Mark struct {
	strings, objects, traits int
}

// Mark returns the current position of the tables. A caller building one message from
// several values uses it with Rollback to drop every entry of a message it will not send.
func (e *Encoder) Mark() Mark {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Mark{strings: e.strings.Len(), objects: e.objects.Len(), traits: e.traits.Len()}
}

// Rollback forgets every table entry added after m was taken.
func (e *Encoder) Rollback(m Mark) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.strings.Truncate(m.strings)
	e.objects.Truncate(m.objects)
	e.traits.Truncate(m.traits)
}

// Marshal encodes v with fresh tables.
func Marshal(v amf.Value) ([]byte, error) {
	return NewEncoder(nil).Marshal(v)
}

// output accumulates one value. It is the amf.Output handed to externalizable classes.
type output struct {
	enc *Encoder
	buf []byte
}

func (o *output) Write(p []byte) (int, error) {
	o.buf = append(o.buf, p...)
	return len(p), nil
}

func (o *output) WriteByte(c byte) error {
	o.buf = append(o.buf, c)
	return nil
}

func (o *output) WriteValue(v amf.Value) error {
	return o.writeValue(v)
}

func (o *output) writeValue(v amf.Value) error {
	switch t := v.(type) {
	case nil, amf.Null:
		o.buf = append(o.buf, TypeNull)
	case amf.Undefined:
		o.buf = append(o.buf, TypeUndefined)
	case amf.Bool:
		if t {
			o.buf = append(o.buf, TypeTrue)
		} else {
			o.buf = append(o.buf, TypeFalse)
		}
	case amf.Integer:
		if t < amf.MinInt29 || t > amf.MaxInt29 {
			// Out of range integers travel as doubles
			o.writeDouble(float64(t))
			return nil
		}
		o.buf = append(o.buf, TypeInteger)
		o.buf, _ = AppendInt29(o.buf, int32(t))
	case amf.Number:
		o.writeDouble(float64(t))
	case amf.String:
		o.buf = append(o.buf, TypeString)
		return o.writeString(string(t))
	case amf.XMLDocument:
		return o.writeText(TypeXMLDoc, string(t))
	case amf.XML:
		return o.writeText(TypeXML, string(t))
	case amf.Date:
		o.buf = append(o.buf, TypeDate)
		o.enc.objects.Reserve()
		o.buf = appendU29(o.buf, 1)
		o.buf = binary.BigEndian.AppendUint64(o.buf, math.Float64bits(float64(t.Time.UnixMilli())))
	case amf.ByteArray:
		o.buf = append(o.buf, TypeByteArray)
		o.enc.objects.Reserve()
		if err := o.writeInline(len(t)); err != nil {
			return err
		}
		o.buf = append(o.buf, t...)
	case amf.VectorInt:
		o.buf = append(o.buf, TypeVectorInt)
		o.enc.objects.Reserve()
		if err := o.writeVectorHeader(len(t.Items), t.Fixed); err != nil {
			return err
		}
		for _, i := range t.Items {
			o.buf = binary.BigEndian.AppendUint32(o.buf, uint32(i))
		}
	case amf.VectorUint:
		o.buf = append(o.buf, TypeVectorUint)
		o.enc.objects.Reserve()
		if err := o.writeVectorHeader(len(t.Items), t.Fixed); err != nil {
			return err
		}
		for _, u := range t.Items {
			o.buf = binary.BigEndian.AppendUint32(o.buf, u)
		}
	case amf.VectorDouble:
		o.buf = append(o.buf, TypeVectorDouble)
		o.enc.objects.Reserve()
		if err := o.writeVectorHeader(len(t.Items), t.Fixed); err != nil {
			return err
		}
		for _, f := range t.Items {
			o.buf = binary.BigEndian.AppendUint64(o.buf, math.Float64bits(f))
		}
	case *amf.VectorObject:
		o.buf = append(o.buf, TypeVectorObject)
		if o.writeRef(t) {
			return nil
		}
		if err := o.writeVectorHeader(len(t.Items), t.Fixed); err != nil {
			return err
		}
		name := t.TypeName
		if name == "" {
			name = UntypedVector
		}
		if err := o.writeString(name); err != nil {
			return err
		}
		for i, item := range t.Items {
			if err := o.writeValue(item); err != nil {
				return errors.Wrapf(err, "vector index %d", i)
			}
		}
	case *amf.Array:
		o.buf = append(o.buf, TypeArray)
		if o.writeRef(t) {
			return nil
		}
		return o.writeArray(t.Dense, t.Assoc)
	case *amf.ECMAArray:
		// AMF3 has no ECMA array; its members become the associative part of an Array
		o.buf = append(o.buf, TypeArray)
		if o.writeRef(t) {
			return nil
		}
		return o.writeArray(nil, t.Props)
	case *amf.Dictionary:
		o.buf = append(o.buf, TypeDictionary)
		if o.writeRef(t) {
			return nil
		}
		if err := o.writeInline(len(t.Entries)); err != nil {
			return err
		}
		if t.WeakKeys {
			o.buf = append(o.buf, 1)
		} else {
			o.buf = append(o.buf, 0)
		}
		for _, entry := range t.Entries {
			if err := o.writeValue(entry.Key); err != nil {
				return err
			}
			if err := o.writeValue(entry.Value); err != nil {
				return err
			}
		}
	case *amf.Object:
		o.buf = append(o.buf, TypeObject)
		if o.writeRef(t) {
			return nil
		}
		return o.writeObject(t)
	case amf.Externalizable:
		o.buf = append(o.buf, TypeObject)
		if reflect.ValueOf(t).Kind() == reflect.Ptr {
			if o.writeRef(t) {
				return nil
			}
		} else {
			o.enc.objects.Reserve()
		}
		trait := &amf.TraitDefinition{Name: t.ClassName(), Externalizable: true}
		if err := o.writeTrait(trait); err != nil {
			return err
		}
		return errors.Wrapf(t.WriteExternal(o), "write external %s", trait.Name)
	default:
		return errors.Wrapf(amf.ErrUnsupportedValue, "%T", v)
	}
	return nil
}

func (o *output) writeDouble(f float64) {
	o.buf = append(o.buf, TypeDouble)
	o.buf = binary.BigEndian.AppendUint64(o.buf, math.Float64bits(f))
}

// writeInline writes a U29 header for an inline value of length n.
func (o *output) writeInline(n int) error {
	if n > maxU28 {
		return errors.Wrapf(amf.ErrInt29Range, "length %d", n)
	}
	o.buf = appendU29(o.buf, uint32(n)<<1|1)
	return nil
}

func (o *output) writeVectorHeader(n int, fixed bool) error {
	if err := o.writeInline(n); err != nil {
		return err
	}
	if fixed {
		o.buf = append(o.buf, 1)
	} else {
		o.buf = append(o.buf, 0)
	}
	return nil
}

// writeRef writes a reference header if key was sent before and reports whether it did.
// Otherwise key is added to the object table.
func (o *output) writeRef(key interface{}) bool {
	if i, ok := o.enc.objects.Lookup(key); ok {
		o.buf = appendU29(o.buf, uint32(i)<<1)
		return true
	}
	o.enc.objects.Add(key)
	return false
}

func (o *output) writeText(marker byte, s string) error {
	o.buf = append(o.buf, marker)
	o.enc.objects.Reserve()
	if err := o.writeInline(len(s)); err != nil {
		return err
	}
	o.buf = append(o.buf, s...)
	return nil
}

// writeString writes a string without marker, by reference when it was sent before.
func (o *output) writeString(s string) error {
	if s == "" {
		o.buf = append(o.buf, UTF8Empty)
		return nil
	}
	if i, ok := o.enc.strings.Lookup(s); ok {
		o.buf = appendU29(o.buf, uint32(i)<<1)
		return nil
	}
	if err := o.writeInline(len(s)); err != nil {
		return err
	}
	o.enc.strings.Add(s)
	o.buf = append(o.buf, s...)
	return nil
}

func (o *output) writeArray(dense []amf.Value, assoc []amf.Property) error {
	if err := o.writeInline(len(dense)); err != nil {
		return err
	}
	for _, p := range assoc {
		if p.Name == "" {
			return errors.New("amf3: array key must not be empty")
		}
		if err := o.writeString(p.Name); err != nil {
			return err
		}
		if err := o.writeValue(p.Value); err != nil {
			return errors.Wrapf(err, "array key %q", p.Name)
		}
	}
	o.buf = append(o.buf, UTF8Empty)
	for i, v := range dense {
		if err := o.writeValue(v); err != nil {
			return errors.Wrapf(err, "array index %d", i)
		}
	}
	return nil
}

// writeTrait writes the U29O-traits header: a reference to a trait sent before, or the
// inline trait with its class name and sealed member names.
func (o *output) writeTrait(t *amf.TraitDefinition) error {
	key := t.Key()
	if i, ok := o.enc.traits.Lookup(key); ok {
		o.buf = appendU29(o.buf, uint32(i)<<2|1)
		return nil
	}
	if len(t.Static) > maxU28>>3 {
		return errors.Wrapf(amf.ErrInt29Range, "%d sealed members", len(t.Static))
	}
	o.enc.traits.Add(key)
	header := uint32(len(t.Static))<<4 | 0x03
	if t.Externalizable {
		header |= 0x04
	}
	if t.Dynamic {
		header |= 0x08
	}
	o.buf = appendU29(o.buf, header)
	if err := o.writeString(t.Name); err != nil {
		return err
	}
	for _, name := range t.Static {
		if err := o.writeString(name); err != nil {
			return err
		}
	}
	return nil
}

func (o *output) writeObject(obj *amf.Object) error {
	t := obj.Trait
	if t == nil {
		t = amf.AnonymousTrait
	}
	if t.Externalizable {
		return errors.Errorf("amf3: class %q is externalizable but was given as a plain object", t.Name)
	}
	if !t.Dynamic && len(obj.Dynamic) > 0 {
		return errors.Errorf("amf3: class %q is sealed but has %d dynamic members", t.Name, len(obj.Dynamic))
	}
	if err := o.writeTrait(t); err != nil {
		return err
	}
	for i, name := range t.Static {
		var v amf.Value = amf.Null{}
		if i < len(obj.Sealed) {
			v = obj.Sealed[i]
		}
		if err := o.writeValue(v); err != nil {
			return errors.Wrapf(err, "%s.%s", t.Name, name)
		}
	}
	if !t.Dynamic {
		return nil
	}
	for _, p := range obj.Dynamic {
		if p.Name == "" {
			return errors.New("amf3: dynamic member name must not be empty")
		}
		if err := o.writeString(p.Name); err != nil {
			return err
		}
		if err := o.writeValue(p.Value); err != nil {
			return errors.Wrapf(err, "%s.%s", t.Name, p.Name)
		}
	}
	o.buf = append(o.buf, UTF8Empty)
	return nil
}
