package amf

import "sync"

// Category classifies a declared field.
type Category uint8

const (
	// Static fields are always written, in declaration order.
	Static Category = iota
	// Dynamic fields are written as name/value pairs after the static ones, and only
	// when the schema is dynamic.
	Dynamic
)

// Field declares one serializable member of a class.
type Field struct {
	Name     string
	WireName string
	Exclude  bool
	Category Category
}

func (f Field) wireName() string {
	if f.WireName != "" {
		return f.WireName
	}
	return f.Name
}

// Schema declares how a Go type maps onto an AMF class. Parent lists the fields inherited
// from the super class.
type Schema struct {
	Name    string
	Dynamic bool
	Fields  []Field
	Parent  *Schema

	once  sync.Once
	trait *TraitDefinition
}

// Trait returns the class's trait definition. It is computed on first use and cached.
func (s *Schema) Trait() *TraitDefinition {
	s.once.Do(s.compute)
	return s.trait
}

// DynamicFields returns the wire names of fields declared dynamic on a dynamic schema.
func (s *Schema) DynamicFields() []string {
	return s.Trait().DynamicFields
}

// NewObject returns an object of this class with every static member null, followed by
// the declared dynamic members, also null.
func (s *Schema) NewObject() *Object {
	t := s.Trait()
	o := NewTypedObject(t)
	for _, name := range t.DynamicFields {
		o.Dynamic = append(o.Dynamic, Property{Name: name, Value: Null{}})
	}
	return o
}

func (s *Schema) compute() {
	t := &TraitDefinition{Name: s.Name, Dynamic: s.Dynamic}
	seen := make(map[string]bool)
	for c := s; c != nil; c = c.Parent {
		for _, f := range c.Fields {
			name := f.wireName()
			if f.Exclude || seen[name] {
				continue
			}
			seen[name] = true
			switch f.Category {
			case Static:
				t.Static = append(t.Static, name)
			case Dynamic:
				if s.Dynamic {
					t.DynamicFields = append(t.DynamicFields, name)
				}
			}
		}
	}
	s.trait = t
}

// Marshaler is implemented by Go types that produce their own AMF value, usually an
// object built with Schema.NewObject.
type Marshaler interface {
	MarshalAMF() (Value, error)
}

// Unmarshaler is implemented by Go types registered with a Registry. The decoders call
// UnmarshalAMF with the fully decoded object.
type Unmarshaler interface {
	UnmarshalAMF(o *Object) error
}
