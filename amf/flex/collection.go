package flex

import "github.com/torresjeff/pvprtmp/amf"

// ArrayCollection wraps the array it exposes. Source is normally an *amf.Array.
type ArrayCollection struct {
	amf.External
	Source amf.Value
}

// NewArrayCollection wraps items in a collection.
func NewArrayCollection(items ...amf.Value) *ArrayCollection {
	return &ArrayCollection{Source: &amf.Array{Dense: items}}
}

func (*ArrayCollection) ClassName() string { return ArrayCollectionClass }

// Items returns the dense elements of the wrapped array.
func (c *ArrayCollection) Items() []amf.Value {
	if arr, ok := c.Source.(*amf.Array); ok {
		return arr.Dense
	}
	return nil
}

func (c *ArrayCollection) WriteExternal(out amf.Output) error {
	if c.Source == nil {
		return out.WriteValue(&amf.Array{})
	}
	return out.WriteValue(c.Source)
}

func (c *ArrayCollection) ReadExternal(in amf.Input) (err error) {
	c.Source, err = in.ReadValue()
	return err
}

// ObjectProxy wraps a single anonymous object.
type ObjectProxy struct {
	amf.External
	Object amf.Value
}

func (*ObjectProxy) ClassName() string { return ObjectProxyClass }

func (p *ObjectProxy) WriteExternal(out amf.Output) error {
	return out.WriteValue(p.Object)
}

func (p *ObjectProxy) ReadExternal(in amf.Input) (err error) {
	p.Object, err = in.ReadValue()
	return err
}
