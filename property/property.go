/*
Package property implements the variant value tree every synced object carries.

A tree is built from five node kinds:

  - Value: a typed scalar or array (int, float, string, bool, uint, byte, long)
  - Dictionary: string keys to child nodes, unordered
  - List: dense ordered children
  - Reference: the id of another synced object
  - Null: explicit absence

Each node has at most one parent. Putting a node into a dictionary or a list
moves it: it is first removed from wherever it was before. The root of a tree
may be attached to a Container (the synced object that owns it); local edits
anywhere in the tree are reported to that container so they can be sent to
the server.

Index errors and wrong-kind casts are programmer errors and panic.
*/
package property

import "fmt"

type Type uint8

const (
	ValueType      Type = 0
	DictionaryType Type = 1
	ListType       Type = 2
	NullType       Type = 3
	ReferenceType  Type = 4
)

func (t Type) String() string {
	switch t {
	case ValueType:
		return "value"
	case DictionaryType:
		return "dictionary"
	case ListType:
		return "list"
	case NullType:
		return "null"
	case ReferenceType:
		return "reference"
	}
	return fmt.Sprintf("type(%d)", uint8(t))
}

type ChangeKind uint8

const (
	ChangeSet ChangeKind = iota
	ChangeRemove
	ChangeListAdd
	ChangeListRemove
)

// Change describes one local edit. For ChangeSet Property is the node that
// was set or modified in place; for the rest it is the container node.
type Change struct {
	Kind     ChangeKind
	Property Property
	Key      string
	Index    int
	Count    int
}

// Container is the synced object a property tree belongs to.
type Container interface {
	CanEdit() bool
	OnLocalChange(c Change)
}

type Property interface {
	Type() Type
	Parent() Property
	Container() Container
	// Key is the dictionary key of this node, or "" if the parent is not a
	// dictionary.
	Key() string
	// Index is the position in the parent list, or -1.
	Index() int
	Depth() int
	Path() string
	CanEdit() bool
	Clone() Property
	Equals(other Property) bool
	String() string

	base() *node
}

type node struct {
	self      Property
	parent    Property
	key       string
	container Container
}

func (n *node) base() *node { return n }

func (n *node) Parent() Property { return n.parent }

func (n *node) Key() string {
	if n.parent != nil && n.parent.Type() == DictionaryType {
		return n.key
	}
	return ""
}

func (n *node) Index() int {
	l, ok := n.parent.(*List)
	if !ok {
		return -1
	}
	for i, e := range l.items {
		if e == n.self {
			return i
		}
	}
	return -1
}

func (n *node) Depth() (d int) {
	for p := n.parent; p != nil; p = p.Parent() {
		d++
	}
	return
}

func (n *node) root() *node {
	r := n
	for r.parent != nil {
		r = r.parent.base()
	}
	return r
}

func (n *node) Container() Container {
	return n.root().container
}

// CanEdit is true for detached trees and for trees whose container allows
// local edits.
func (n *node) CanEdit() bool {
	c := n.Container()
	return c == nil || c.CanEdit()
}

// Path is the location of n below its root: dictionary keys joined with
// dots, list indexes as "[i]" suffixes, e.g. points[1].x.
func (n *node) Path() string {
	path := ""
	index := false // path starts with a list index
	for p := n.self; p != nil && p.Parent() != nil; p = p.Parent() {
		switch {
		case p.Parent().Type() == ListType:
			path = fmt.Sprintf("[%d]", p.Index()) + path
			index = true
			continue
		case path == "" || index:
			path = p.base().key + path
		default:
			path = p.base().key + "." + path
		}
		index = false
	}
	return path
}

func (n *node) report(c Change) {
	if ct := n.Container(); ct != nil {
		ct.OnLocalChange(c)
	}
}

// adopt moves child under parent, detaching it from its previous parent.
func adopt(parent Property, child Property, key string) {
	b := child.base()
	if b.parent != nil {
		detach(child)
	}
	b.parent = parent
	b.key = key
	b.container = nil
}

func detach(child Property) {
	b := child.base()
	switch p := b.parent.(type) {
	case *Dictionary:
		p.Remove(b.key)
	case *List:
		if i := child.Index(); i >= 0 {
			p.Remove(i)
		}
	}
	b.parent = nil
	b.key = ""
}

func orphan(p Property) {
	if p == nil {
		return
	}
	b := p.base()
	b.parent = nil
	b.key = ""
}

// SetContainer attaches the root of a tree to the object that owns it.
// Passing nil detaches it.
func SetContainer(root Property, c Container) {
	root.base().container = c
}

// Detach removes p from its parent, if any.
func Detach(p Property) {
	if p.Parent() != nil {
		detach(p)
	}
}

// Root returns the topmost ancestor of p.
func Root(p Property) Property {
	for p.Parent() != nil {
		p = p.Parent()
	}
	return p
}

func castPanic(p Property, want Type) {
	got := "nil"
	if p != nil {
		got = p.Type().String()
	}
	panic(fmt.Sprintf("property: cannot use %s as %s", got, want))
}

func AsValue(p Property) *Value {
	v, ok := p.(*Value)
	if !ok {
		castPanic(p, ValueType)
	}
	return v
}

func AsDict(p Property) *Dictionary {
	d, ok := p.(*Dictionary)
	if !ok {
		castPanic(p, DictionaryType)
	}
	return d
}

func AsList(p Property) *List {
	l, ok := p.(*List)
	if !ok {
		castPanic(p, ListType)
	}
	return l
}

func AsReference(p Property) *Reference {
	r, ok := p.(*Reference)
	if !ok {
		castPanic(p, ReferenceType)
	}
	return r
}

// Walk visits p and its descendants in pre-order. Returning false from fn
// skips the children of the node just visited.
func Walk(p Property, fn func(p Property) bool) {
	if p == nil || !fn(p) {
		return
	}
	switch t := p.(type) {
	case *Dictionary:
		for _, k := range t.Keys() {
			Walk(t.items[k], fn)
		}
	case *List:
		for _, e := range t.items {
			Walk(e, fn)
		}
	}
}

// Equal compares two possibly nil properties.
func Equal(a, b Property) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return a.Equals(b)
}
