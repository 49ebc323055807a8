package amf

import (
	"sync"

	"github.com/pkg/errors"
)

type class struct {
	schema  *Schema
	factory func() Unmarshaler
}

// Registry maps wire class names to schemas and Go factories. One registry is created per
// connection and handed to that connection's encoders and decoders. A nil *Registry
// knows no classes: lookups report nothing found and registrations return an error.
type Registry struct {
	mu        sync.RWMutex
	classes   map[string]class
	externals map[string]func() Externalizable
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		classes:   make(map[string]class),
		externals: make(map[string]func() Externalizable),
	}
}

// Register binds a schema to a factory. factory may be nil, in which case objects of the
// class decode into plain *Object values.
func (r *Registry) Register(s *Schema, factory func() Unmarshaler) error {
	if r == nil {
		return errors.New("amf: register: nil registry")
	}
	if s == nil || s.Name == "" {
		return errors.New("amf: register: schema needs a class name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.classes[s.Name]; ok {
		return errors.Errorf("amf: register: class %q already registered", s.Name)
	}
	r.classes[s.Name] = class{schema: s, factory: factory}
	return nil
}

// RegisterExternal binds an externalizable class name to a factory.
func (r *Registry) RegisterExternal(name string, factory func() Externalizable) error {
	if r == nil {
		return errors.New("amf: register external: nil registry")
	}
	if name == "" || factory == nil {
		return errors.New("amf: register external: name and factory are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.externals[name]; ok {
		return errors.Errorf("amf: register external: class %q already registered", name)
	}
	r.externals[name] = factory
	return nil
}

// Schema returns the schema registered for name.
func (r *Registry) Schema(name string) (*Schema, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.classes[name]
	return c.schema, ok
}

// Trait returns the cached trait definition of a registered class.
func (r *Registry) Trait(name string) (*TraitDefinition, bool) {
	s, ok := r.Schema(name)
	if !ok {
		return nil, false
	}
	return s.Trait(), true
}

// NewInstance returns a fresh Go value for the class, if one was registered.
func (r *Registry) NewInstance(name string) (Unmarshaler, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	c, ok := r.classes[name]
	r.mu.RUnlock()
	if !ok || c.factory == nil {
		return nil, false
	}
	return c.factory(), true
}

// NewExternal returns a fresh externalizable value for the class.
func (r *Registry) NewExternal(name string) (Externalizable, bool) {
	if r == nil {
		return nil, false
	}
	r.mu.RLock()
	f, ok := r.externals[name]
	r.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return f(), true
}

// Bind fills o.Instance when o's class is registered with a factory. Errors from
// UnmarshalAMF are returned as they are; they are local to o.
func (r *Registry) Bind(o *Object) error {
	inst, ok := r.NewInstance(o.ClassName())
	if !ok {
		return nil
	}
	if err := inst.UnmarshalAMF(o); err != nil {
		return err
	}
	o.Instance = inst
	return nil
}
