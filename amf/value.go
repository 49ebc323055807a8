package amf

import (
	"time"
)

// Value is one of the values AMF can carry. The set is closed: only the types in this
// package implement it, plus Externalizable classes embedding External.
type Value interface {
	amfValue()
}

type (
	// Undefined is the AMF undefined value.
	Undefined struct{}
	// Null is the AMF null value.
	Null struct{}
	// Bool is an AMF boolean.
	Bool bool
	// Integer is an AMF3 integer. AMF0 has no integer type and writes it as a Number.
	Integer int32
	// Number is an IEEE-754 double.
	Number float64
	// String is a UTF-8 string.
	String string
	// XMLDocument is a legacy flash.xml.XMLDocument payload.
	XMLDocument string
	// XML is an E4X XML payload (AMF3 only).
	XML string
	// ByteArray is a flash.utils.ByteArray.
	ByteArray []byte
	// VectorInt is a Vector.<int>.
	VectorInt struct {
		Fixed bool
		Items []int32
	}
	// VectorUint is a Vector.<uint>.
	VectorUint struct {
		Fixed bool
		Items []uint32
	}
	// VectorDouble is a Vector.<Number>.
	VectorDouble struct {
		Fixed bool
		Items []float64
	}
)

// Date is a point in time with millisecond precision.
type Date struct {
	Time time.Time
}

// NewDate truncates t to milliseconds, the precision AMF keeps on the wire.
func NewDate(t time.Time) Date {
	return Date{Time: time.UnixMilli(t.UnixMilli()).UTC()}
}

// Property is a named member of an object or the associative part of an array.
type Property struct {
	Name  string
	Value Value
}

// Array is an ActionScript Array: a dense, index-addressed part and an associative part.
type Array struct {
	Dense []Value
	Assoc []Property
}

// ECMAArray is an AMF0 associative array. Keys keep their wire order.
type ECMAArray struct {
	Props []Property
}

// Get returns the value stored under key.
func (a *ECMAArray) Get(key string) (Value, bool) {
	for _, p := range a.Props {
		if p.Name == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Set replaces the value under key or appends it.
func (a *ECMAArray) Set(key string, v Value) {
	for i := range a.Props {
		if a.Props[i].Name == key {
			a.Props[i].Value = v
			return
		}
	}
	a.Props = append(a.Props, Property{Name: key, Value: v})
}

// VectorObject is a Vector.<T> of non-primitive elements. TypeName is "*" when untyped.
type VectorObject struct {
	TypeName string
	Fixed    bool
	Items    []Value
}

// DictionaryEntry is one key/value pair of a Dictionary. Keys may be any value.
type DictionaryEntry struct {
	Key   Value
	Value Value
}

// Dictionary is a flash.utils.Dictionary.
type Dictionary struct {
	WeakKeys bool
	Entries  []DictionaryEntry
}

func (Undefined) amfValue()     {}
func (Null) amfValue()          {}
func (Bool) amfValue()          {}
func (Integer) amfValue()       {}
func (Number) amfValue()        {}
func (String) amfValue()        {}
func (XMLDocument) amfValue()   {}
func (XML) amfValue()           {}
func (ByteArray) amfValue()     {}
func (Date) amfValue()          {}
func (VectorInt) amfValue()     {}
func (VectorUint) amfValue()    {}
func (VectorDouble) amfValue()  {}
func (*Array) amfValue()        {}
func (*ECMAArray) amfValue()    {}
func (*Object) amfValue()       {}
func (*VectorObject) amfValue() {}
func (*Dictionary) amfValue()   {}

// External is embedded by Externalizable implementations to make them a Value.
type External struct{}

func (External) amfValue() {}

// Externalizable classes write and read their own byte layout instead of having their
// fields enumerated by the codec.
type Externalizable interface {
	Value
	ClassName() string
	WriteExternal(out Output) error
	ReadExternal(in Input) error
}
