package props

import (
	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
)

// ObjectMap links natives to the objects that sync them. The link is weak:
// removing either side never deletes the other.
type ObjectMap struct {
	objects map[classes.Native]*graph.Object
	natives map[*graph.Object]classes.Native
}

func NewObjectMap() *ObjectMap {
	return &ObjectMap{
		objects: make(map[classes.Native]*graph.Object),
		natives: make(map[*graph.Object]classes.Native),
	}
}

func (m *ObjectMap) Add(n classes.Native, o *graph.Object) {
	if old, ok := m.objects[n]; ok && old != o {
		delete(m.natives, old)
	}
	if old, ok := m.natives[o]; ok && old != n {
		delete(m.objects, old)
	}
	m.objects[n] = o
	m.natives[o] = n
}

func (m *ObjectMap) Object(n classes.Native) *graph.Object {
	if classes.IsNil(n) {
		return nil
	}
	return m.objects[n]
}

func (m *ObjectMap) Native(o *graph.Object) classes.Native {
	if o == nil {
		return nil
	}
	return m.natives[o]
}

func (m *ObjectMap) Contains(n classes.Native) bool {
	_, ok := m.objects[n]
	return ok
}

// Remove unlinks n and returns the object it was linked to.
func (m *ObjectMap) Remove(n classes.Native) *graph.Object {
	o, ok := m.objects[n]
	if ok {
		delete(m.objects, n)
		delete(m.natives, o)
	}
	return o
}

// RemoveObject unlinks o and returns the native it was linked to.
func (m *ObjectMap) RemoveObject(o *graph.Object) classes.Native {
	n, ok := m.natives[o]
	if ok {
		delete(m.natives, o)
		delete(m.objects, n)
	}
	return n
}

func (m *ObjectMap) Len() int { return len(m.objects) }

// Range calls fn for every pair until fn returns false.
func (m *ObjectMap) Range(fn func(n classes.Native, o *graph.Object) bool) {
	for n, o := range m.objects {
		if !fn(n, o) {
			return
		}
	}
}

func (m *ObjectMap) Clear() {
	m.objects = make(map[classes.Native]*graph.Object)
	m.natives = make(map[*graph.Object]classes.Native)
}
