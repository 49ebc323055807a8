package amf

import (
	"math"
	"time"
)

// Object is an anonymous or typed ActionScript object. Sealed holds the values of
// Trait.Static in order; Dynamic holds the members that follow them on the wire.
type Object struct {
	Trait   *TraitDefinition
	Sealed  []Value
	Dynamic []Property

	// Instance is set by the decoders when the class is registered with a factory.
	Instance Unmarshaler
}

// NewObject returns an empty anonymous object.
func NewObject() *Object {
	return &Object{}
}

// NewTypedObject returns an object of the given shape with every sealed member null.
func NewTypedObject(t *TraitDefinition) *Object {
	o := &Object{Trait: t}
	if t != nil {
		o.Sealed = make([]Value, len(t.Static))
		for i := range o.Sealed {
			o.Sealed[i] = Null{}
		}
	}
	return o
}

// ClassName returns the wire class name, empty for anonymous objects.
func (o *Object) ClassName() string {
	if o.Trait == nil {
		return ""
	}
	return o.Trait.Name
}

// Get looks a member up among the sealed and then the dynamic members.
func (o *Object) Get(name string) (Value, bool) {
	if i := o.Trait.staticIndex(name); i >= 0 && i < len(o.Sealed) {
		return o.Sealed[i], true
	}
	for _, p := range o.Dynamic {
		if p.Name == name {
			return p.Value, true
		}
	}
	return nil, false
}

// Set stores v in the sealed slot for name, or among the dynamic members otherwise.
func (o *Object) Set(name string, v Value) *Object {
	if v == nil {
		v = Null{}
	}
	if i := o.Trait.staticIndex(name); i >= 0 {
		for len(o.Sealed) <= i {
			o.Sealed = append(o.Sealed, Null{})
		}
		o.Sealed[i] = v
		return o
	}
	for i := range o.Dynamic {
		if o.Dynamic[i].Name == name {
			o.Dynamic[i].Value = v
			return o
		}
	}
	o.Dynamic = append(o.Dynamic, Property{Name: name, Value: v})
	return o
}

// Properties returns sealed members followed by dynamic ones.
func (o *Object) Properties() []Property {
	props := make([]Property, 0, len(o.Sealed)+len(o.Dynamic))
	if o.Trait != nil {
		for i, name := range o.Trait.Static {
			var v Value = Null{}
			if i < len(o.Sealed) {
				v = o.Sealed[i]
			}
			props = append(props, Property{Name: name, Value: v})
		}
	}
	return append(props, o.Dynamic...)
}

func (o *Object) field(name string) (Value, bool) {
	v, ok := o.Get(name)
	if !ok {
		return nil, false
	}
	switch v.(type) {
	case Null, Undefined:
		return nil, false
	}
	return v, true
}

func (o *Object) mismatch(name, want string, got Value) error {
	return &FieldError{Class: o.ClassName(), Field: name, Want: want, Got: got}
}

// String reads a string member. Missing and null members read as "".
func (o *Object) String(name string) (string, error) {
	v, ok := o.field(name)
	if !ok {
		return "", nil
	}
	switch s := v.(type) {
	case String:
		return string(s), nil
	case XMLDocument:
		return string(s), nil
	case XML:
		return string(s), nil
	}
	return "", o.mismatch(name, "string", v)
}

// Bool reads a boolean member.
func (o *Object) Bool(name string) (bool, error) {
	v, ok := o.field(name)
	if !ok {
		return false, nil
	}
	if b, ok := v.(Bool); ok {
		return bool(b), nil
	}
	return false, o.mismatch(name, "bool", v)
}

// Float64 reads a numeric member.
func (o *Object) Float64(name string) (float64, error) {
	v, ok := o.field(name)
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case Number:
		return float64(n), nil
	case Integer:
		return float64(n), nil
	}
	return 0, o.mismatch(name, "number", v)
}

// Int64 reads a numeric member that must hold an integral value.
func (o *Object) Int64(name string) (int64, error) {
	v, ok := o.field(name)
	if !ok {
		return 0, nil
	}
	switch n := v.(type) {
	case Integer:
		return int64(n), nil
	case Number:
		f := float64(n)
		if f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
			return 0, o.mismatch(name, "int64", v)
		}
		return int64(f), nil
	}
	return 0, o.mismatch(name, "int64", v)
}

// Int32 reads a numeric member that must narrow cleanly to int32.
func (o *Object) Int32(name string) (int32, error) {
	i, err := o.Int64(name)
	if err != nil {
		if fe, ok := err.(*FieldError); ok {
			fe.Want = "int32"
		}
		return 0, err
	}
	if i < math.MinInt32 || i > math.MaxInt32 {
		v, _ := o.Get(name)
		return 0, o.mismatch(name, "int32", v)
	}
	return int32(i), nil
}

// Time reads a date member.
func (o *Object) Time(name string) (time.Time, error) {
	v, ok := o.field(name)
	if !ok {
		return time.Time{}, nil
	}
	if d, ok := v.(Date); ok {
		return d.Time, nil
	}
	return time.Time{}, o.mismatch(name, "date", v)
}

// Object reads a nested object member.
func (o *Object) Object(name string) (*Object, error) {
	v, ok := o.field(name)
	if !ok {
		return nil, nil
	}
	if obj, ok := v.(*Object); ok {
		return obj, nil
	}
	return nil, o.mismatch(name, "object", v)
}
