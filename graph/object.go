package graph

import (
	"fmt"

	"github.com/drpcorg/scenesync/property"
)

type Flags uint8

const (
	NoFlags Flags = 0
	// OptionalChildren objects only send their children to users who
	// subscribed with Session.SubscribeToChildren.
	OptionalChildren Flags = 1 << 1
	// Transient objects are deleted when their creator leaves.
	Transient Flags = 1 << 2
)

type syncState uint8

const (
	unsynced syncState = iota
	createPending
	created
	deleted
)

// Object is one synced node of the shared hierarchy.
type Object struct {
	id       uint32
	typ      string
	flags    Flags
	prop     *property.Dictionary
	parent   *Object
	children []*Object
	session  *Session

	state         syncState
	deletePending bool
	// unsubscribePending is set between UnsubscribeFromChildren and its ack
	unsubscribePending bool

	owner       *User // direct lock owner
	lockPending bool
}

// NewObject makes an unsynced object. A nil prop gets an empty dictionary.
func NewObject(typ string, prop *property.Dictionary, flags Flags) *Object {
	o := &Object{typ: typ, flags: flags}
	if prop == nil {
		prop = property.NewDictionary()
	}
	o.setProperty(prop)
	return o
}

func (o *Object) setProperty(prop *property.Dictionary) {
	if o.prop != nil {
		property.SetContainer(o.prop, nil)
	}
	property.Detach(prop)
	o.prop = prop
	property.SetContainer(prop, o)
}

// Id is 0 until the server acknowledged the create.
func (o *Object) Id() uint32 { return o.id }

func (o *Object) Type() string { return o.typ }

func (o *Object) Flags() Flags { return o.flags }

func (o *Object) Property() *property.Dictionary { return o.prop }

// SetProperty replaces the property root of an object that is not syncing.
func (o *Object) SetProperty(prop *property.Dictionary) bool {
	if o.IsSyncing() || prop == nil {
		return false
	}
	o.setProperty(prop)
	return true
}

func (o *Object) Session() *Session { return o.session }

func (o *Object) String() string {
	return fmt.Sprintf("%s#%d", o.typ, o.id)
}

// IsSyncing is true from Create until Delete.
func (o *Object) IsSyncing() bool {
	return (o.state == createPending || o.state == created) && !o.deletePending
}

// IsCreated is true from the create ack until the delete ack.
func (o *Object) IsCreated() bool { return o.state == created }

func (o *Object) IsCreatePending() bool { return o.state == createPending }

func (o *Object) IsDeletePending() bool { return o.deletePending }

func (o *Object) IsUnsubscriptionPending() bool { return o.unsubscribePending }

// LockOwner is the user holding a direct lock on o or its nearest locked
// ancestor.
func (o *Object) LockOwner() *User {
	for a := o; a != nil; a = a.parent {
		if a.owner != nil {
			return a.owner
		}
	}
	return nil
}

func lockedByOther(o *Object) bool {
	return o.owner != nil && !o.owner.isLocal
}

// IsLockedDirectly is true if another user locked o itself.
func (o *Object) IsLockedDirectly() bool { return lockedByOther(o) }

// IsFullyLocked is true if another user locked o or one of its ancestors.
func (o *Object) IsFullyLocked() bool {
	for a := o; a != nil; a = a.parent {
		if lockedByOther(a) {
			return true
		}
	}
	return false
}

// IsPartiallyLocked is true if o is not fully locked but another user
// holds a direct lock on one of its descendants.
func (o *Object) IsPartiallyLocked() bool {
	if o.IsFullyLocked() {
		return false
	}
	return o.descendantLocked()
}

func (o *Object) descendantLocked() bool {
	for _, c := range o.children {
		if lockedByOther(c) || c.descendantLocked() {
			return true
		}
	}
	return false
}

// IsLocked is true if o is fully or partially locked by another user.
func (o *Object) IsLocked() bool {
	return o.IsFullyLocked() || o.IsPartiallyLocked()
}

func (o *Object) IsLockPending() bool { return o.lockPending }

func (o *Object) editsDisabled() bool {
	return o.session != nil && o.session.EditsDisabled()
}

// CanEdit reports whether local edits of o's own properties are allowed.
// Partially locked objects keep their own properties editable.
func (o *Object) CanEdit() bool {
	return !o.deletePending && !o.editsDisabled() && !o.IsFullyLocked()
}

// CanEditChildren reports whether children may be added, removed or
// reordered locally.
func (o *Object) CanEditChildren() bool {
	return !o.deletePending && !o.editsDisabled() && !o.IsLocked()
}

// RequestLock asks for a direct lock. On an object that is not syncing yet
// the lock is requested together with the create.
func (o *Object) RequestLock() {
	if o.lockPending || (o.owner != nil && o.owner.isLocal) {
		return
	}
	o.lockPending = true
	if o.session != nil && o.IsSyncing() {
		o.session.send(&Message{Kind: MsgLock, obj: o})
	}
}

// ReleaseLock drops a lock we own or cancels a pending request.
func (o *Object) ReleaseLock() {
	switch {
	case o.lockPending:
		o.lockPending = false
	case o.owner != nil && o.owner.isLocal:
	default:
		return
	}
	if o.session == nil || !o.IsSyncing() {
		return
	}
	o.session.send(&Message{Kind: MsgUnlock, obj: o})
	if o.owner != nil && o.owner.isLocal {
		o.session.setLockOwner(o, nil)
	}
}

func (o *Object) Parent() *Object { return o.parent }

// Children returns a copy of the child list.
func (o *Object) Children() []*Object {
	return append([]*Object{}, o.children...)
}

func (o *Object) Child(index int) *Object { return o.children[index] }

func (o *Object) NumChildren() int { return len(o.children) }

// ChildIndex is the position in the parent's child list, or in the session
// root list, or -1.
func (o *Object) ChildIndex() int {
	siblings := o.siblings()
	for i, c := range siblings {
		if c == o {
			return i
		}
	}
	return -1
}

func (o *Object) siblings() []*Object {
	if o.parent != nil {
		return o.parent.children
	}
	if o.session != nil {
		return o.session.roots
	}
	return nil
}

// Ancestor returns the closest ancestor of the given type.
func (o *Object) Ancestor(typ string) *Object {
	for a := o.parent; a != nil; a = a.parent {
		if a.typ == typ {
			return a
		}
	}
	return nil
}

// Walk visits o and its descendants in pre-order. Returning false skips
// the children of the object just visited.
func (o *Object) Walk(fn func(*Object) bool) {
	if !fn(o) {
		return
	}
	for _, c := range o.Children() {
		c.Walk(fn)
	}
}

func (o *Object) AddChild(child *Object) bool {
	return o.InsertChild(child, len(o.children))
}

// InsertChild moves child under o at index. For synced objects the change
// is sent to the server, which may revert it.
func (o *Object) InsertChild(child *Object, index int) bool {
	if child == nil || child == o || child.isAncestorOf(o) {
		return false
	}
	if index < 0 || index > len(o.children) {
		return false
	}
	if o.IsSyncing() && !o.CanEditChildren() {
		return false
	}
	if child.IsSyncing() && child.IsLocked() {
		return false
	}
	if child.parent != nil && child.parent.IsSyncing() && !child.parent.CanEditChildren() {
		return false
	}
	if child.parent == o && child.ChildIndex() < index {
		index--
	}
	child.detach()
	o.children = insertAt(o.children, index, child)
	child.parent = o
	if child.IsSyncing() && o.IsSyncing() && o.session != nil {
		o.session.send(&Message{Kind: MsgParent, obj: child, parent: o, ChildIndex: index})
	}
	return true
}

// RemoveChild makes child a root. A synced child becomes a session root.
func (o *Object) RemoveChild(child *Object) bool {
	if child == nil || child.parent != o {
		return false
	}
	if o.IsSyncing() && !o.CanEditChildren() {
		return false
	}
	if child.IsSyncing() && child.IsLocked() {
		return false
	}
	child.detach()
	if child.IsSyncing() && child.session != nil {
		s := child.session
		s.roots = append(s.roots, child)
		s.send(&Message{Kind: MsgParent, obj: child, ChildIndex: len(s.roots) - 1})
	}
	return true
}

// MoveChild moves the child at from to to.
func (o *Object) MoveChild(from, to int) bool {
	if from < 0 || from >= len(o.children) {
		return false
	}
	return o.children[from].SetChildIndex(to)
}

// SetChildIndex reorders o among its siblings. It returns false if o has no
// parent, is locked, index is out of range, or o is already at index. The
// move is optimistic: the server may revert it if another user got a lock
// that forbids it first.
func (o *Object) SetChildIndex(index int) bool {
	if o.parent == nil || o.IsLocked() {
		return false
	}
	siblings := o.parent.children
	if index < 0 || index >= len(siblings) {
		return false
	}
	cur := o.ChildIndex()
	if cur == index {
		return false
	}
	o.parent.children = insertAt(removeAt(siblings, cur), index, o)
	if o.IsSyncing() && o.session != nil {
		o.session.send(&Message{Kind: MsgParent, obj: o, parent: o.parent, ChildIndex: index})
	}
	return true
}

func (o *Object) isAncestorOf(d *Object) bool {
	for a := d.parent; a != nil; a = a.parent {
		if a == o {
			return true
		}
	}
	return false
}

// detach unlinks o from its parent or from the session roots.
func (o *Object) detach() {
	if o.parent != nil {
		if i := o.ChildIndex(); i >= 0 {
			o.parent.children = removeAt(o.parent.children, i)
		}
		o.parent = nil
		return
	}
	if o.session != nil {
		if i := o.ChildIndex(); i >= 0 {
			o.session.roots = removeAt(o.session.roots, i)
		}
	}
}

// OnLocalChange forwards local property edits to the session.
func (o *Object) OnLocalChange(c property.Change) {
	if o.session != nil {
		o.session.onLocalChange(o, c)
	}
}

func insertAt(s []*Object, i int, o *Object) []*Object {
	if i > len(s) {
		i = len(s)
	}
	s = append(s, nil)
	copy(s[i+1:], s[i:])
	s[i] = o
	return s
}

func removeAt(s []*Object, i int) []*Object {
	return append(s[:i], s[i+1:]...)
}
