package classes

import (
	"fmt"
	"sort"
	"sync"
)

// Native is an object of the host editor that can be described by a Class.
type Native interface {
	Class() *Class
	Name() string
}

// Asset natives live outside of levels and are addressed by path.
type Asset interface {
	Native
	Path() string
}

// Notifiable natives are told after the server changed one of their fields.
type Notifiable interface {
	PostEditChange(f *Field)
}

type Class struct {
	Name   string
	Parent *Class
	// Default is the class template. Fields equal to the template value are
	// default and are not synced. Nil means every field defaults to the
	// zero value of its type.
	Default Native
	// New makes an instance; nil for classes that cannot be created.
	New func(name string) Native

	fields Fields
	byName map[string]*Field
}

func NewClass(name string, parent *Class, fields ...*Field) *Class {
	c := &Class{Name: name, Parent: parent, byName: make(map[string]*Field)}
	for _, f := range fields {
		if !f.Valid() {
			panic(fmt.Sprintf("class %s: invalid field %q", name, f.Name))
		}
		if _, dup := c.byName[f.Name]; dup {
			panic(fmt.Sprintf("class %s: duplicate field %q", name, f.Name))
		}
		f.owner = c
		c.fields = append(c.fields, f)
		c.byName[f.Name] = f
	}
	return c
}

// Fields lists inherited fields first.
func (c *Class) Fields() Fields {
	if c.Parent == nil {
		return c.fields
	}
	return append(append(Fields{}, c.Parent.Fields()...), c.fields...)
}

func (c *Class) Field(name string) *Field {
	for k := c; k != nil; k = k.Parent {
		if f, ok := k.byName[name]; ok {
			return f
		}
	}
	return nil
}

// IsA is true if c is the named class or inherits from it.
func (c *Class) IsA(name string) bool {
	for k := c; k != nil; k = k.Parent {
		if k.Name == name {
			return true
		}
	}
	return false
}

// Lineage is the class name followed by its ancestors' names.
func (c *Class) Lineage() (names []string) {
	for k := c; k != nil; k = k.Parent {
		names = append(names, k.Name)
	}
	return
}

// DefaultValue is the template value of f for this class.
func (c *Class) DefaultValue(f *Field) any {
	for k := c; k != nil; k = k.Parent {
		if k.Default != nil {
			return f.Get(k.Default)
		}
	}
	return f.Type.Zero()
}

// IsTemplate is true for class default objects.
func IsTemplate(n Native) bool {
	return n != nil && n.Class() != nil && n.Class().Default == n
}

// IsDefault is true if the field holds its class default value.
func IsDefault(n Native, f *Field) bool {
	return f.Type.Equal(f.Get(n), n.Class().DefaultValue(f))
}

// ResetField sets f back to the class default.
func ResetField(n Native, f *Field) bool {
	def := n.Class().DefaultValue(f)
	if f.Type.Equal(f.Get(n), def) {
		return false
	}
	f.Set(n, f.Type.Copy(def))
	return true
}

type Registry struct {
	mu      sync.RWMutex
	classes map[string]*Class
}

func NewRegistry() *Registry {
	return &Registry{classes: make(map[string]*Class)}
}

func (r *Registry) Register(classes ...*Class) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range classes {
		r.classes[c.Name] = c
	}
}

// Get returns nil for unknown classes.
func (r *Registry) Get(name string) *Class {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.classes[name]
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.classes))
	for n := range r.classes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
