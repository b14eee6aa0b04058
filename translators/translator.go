// Package translators turns native objects into synced objects and back.
// Each object type is handled by one Translator; the Dispatcher routes
// session events to the translator registered for the object's type.
package translators

import (
	"strings"
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/props"
)

// Translator is the full set of hooks a translator may implement. Embed
// BaseTranslator and override what the object type needs.
type Translator interface {
	// Initialize runs when the session starts, CleanUp when it ends.
	Initialize()
	CleanUp()

	// Create makes an object for n. handled is false if n is not something
	// this translator syncs; o may be nil even when handled.
	Create(n classes.Native) (o *graph.Object, handled bool)
	// OnCreate materializes a native for an object another user created.
	OnCreate(o *graph.Object, childIndex int)
	OnDelete(o *graph.Object)
	OnConfirmDelete(o *graph.Object, unsubscribed bool)
	OnCreateFailed(o *graph.Object)

	OnLock(o *graph.Object)
	OnUnlock(o *graph.Object)
	OnLockOwnerChange(o *graph.Object)
	OnDirectLockChange(o *graph.Object)
	OnParentChange(o *graph.Object, childIndex int)

	// OnPropertyChange applies a server change; true if handled.
	OnPropertyChange(p property.Property) bool
	OnRemoveField(d *property.Dictionary, key string)
	OnListAdd(l *property.List, index, count int)
	OnListRemove(l *property.List, index, count int)

	// OnUPropertyChange may sync a changed native field itself; true if it
	// did and the default handling is skipped.
	OnUPropertyChange(o *graph.Object, n classes.Native, f *classes.Field) bool
	// OnUndoRedo reconciles n after an undo or redo. o is nil for natives
	// that are not syncing. True if handled.
	OnUndoRedo(o *graph.Object, n classes.Native) bool

	Update(dt time.Duration)
}

// BaseTranslator implements every hook as a no-op.
type BaseTranslator struct{}

func (BaseTranslator) Initialize() {}

func (BaseTranslator) CleanUp() {}

func (BaseTranslator) Create(classes.Native) (*graph.Object, bool) { return nil, false }

func (BaseTranslator) OnCreate(*graph.Object, int) {}

func (BaseTranslator) OnDelete(*graph.Object) {}

func (BaseTranslator) OnConfirmDelete(*graph.Object, bool) {}

func (BaseTranslator) OnCreateFailed(*graph.Object) {}

func (BaseTranslator) OnLock(*graph.Object) {}

func (BaseTranslator) OnUnlock(*graph.Object) {}

func (BaseTranslator) OnLockOwnerChange(*graph.Object) {}

func (BaseTranslator) OnDirectLockChange(*graph.Object) {}

func (BaseTranslator) OnParentChange(*graph.Object, int) {}

func (BaseTranslator) OnPropertyChange(property.Property) bool { return false }

func (BaseTranslator) OnRemoveField(*property.Dictionary, string) {}

func (BaseTranslator) OnListAdd(*property.List, int, int) {}

func (BaseTranslator) OnListRemove(*property.List, int, int) {}

func (BaseTranslator) OnUPropertyChange(*graph.Object, classes.Native, *classes.Field) bool {
	return false
}

func (BaseTranslator) OnUndoRedo(*graph.Object, classes.Native) bool { return false }

func (BaseTranslator) Update(time.Duration) {}

// PropertyHandler takes over a server change of one top level key. p is
// nil when the key was removed. Returns true if handled.
type PropertyHandler func(n classes.Native, p property.Property) bool

// NativeTranslator applies server property changes to the mapped native
// through the property manager.
type NativeTranslator struct {
	BaseTranslator
	m        *props.Manager
	handlers map[string]PropertyHandler
}

func NewNativeTranslator(m *props.Manager) *NativeTranslator {
	return &NativeTranslator{m: m, handlers: make(map[string]PropertyHandler)}
}

// RegisterPropertyHandler sets the handler for a top level key.
func (t *NativeTranslator) RegisterPropertyHandler(key string, h PropertyHandler) {
	t.handlers[key] = h
}

func (t *NativeTranslator) native(p property.Property) classes.Native {
	o := containerObject(p)
	if o == nil {
		return nil
	}
	return t.m.Objects().Native(o)
}

// callHandler runs the handler of the top level key p belongs to.
func (t *NativeTranslator) callHandler(n classes.Native, p property.Property) bool {
	top := topLevel(p)
	if top == nil {
		return false
	}
	h, ok := t.handlers[top.Key()]
	return ok && h(n, top)
}

func (t *NativeTranslator) OnPropertyChange(p property.Property) bool {
	n := t.native(p)
	if n == nil {
		return false
	}
	if t.callHandler(n, p) {
		return true
	}
	if top := topLevel(p); top == nil || strings.HasPrefix(top.Key(), "#") {
		return false
	}
	return t.m.ApplyProperty(p)
}

func (t *NativeTranslator) OnRemoveField(d *property.Dictionary, key string) {
	n := t.native(d)
	if n == nil {
		return
	}
	if d.Depth() != 0 {
		// a struct member went back to its default
		if !t.callHandler(n, d) {
			t.m.ApplyProperty(d)
		}
		return
	}
	if h, ok := t.handlers[key]; ok && h(n, nil) {
		return
	}
	t.m.ResetProperty(containerObject(d), key)
}

func (t *NativeTranslator) OnListAdd(l *property.List, index, count int) {
	t.OnPropertyChange(l)
}

func (t *NativeTranslator) OnListRemove(l *property.List, index, count int) {
	t.OnPropertyChange(l)
}

// syncFrom makes n match o: an object locked by another user (directly or
// through an ancestor) takes the server values, otherwise the local values
// are sent. A locked descendant does not stop edits to o.
func (t *NativeTranslator) syncFrom(o *graph.Object, n classes.Native, exclude ...string) {
	if o.IsFullyLocked() {
		t.m.ApplyProperties(n, o.Property(), exclude...)
	} else {
		t.m.SendPropertyChanges(n, o.Property(), exclude...)
	}
}

func containerObject(p property.Property) *graph.Object {
	if p == nil {
		return nil
	}
	o, _ := p.Container().(*graph.Object)
	return o
}

// topLevel is the ancestor of p stored directly in the object's root
// dictionary.
func topLevel(p property.Property) property.Property {
	for p != nil && p.Depth() > 1 {
		p = p.Parent()
	}
	if p == nil || p.Depth() != 1 {
		return nil
	}
	return p
}
