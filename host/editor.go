package host

import (
	"fmt"
	"sort"

	"github.com/drpcorg/scenesync/classes"
)

type changeKind uint8

const (
	fieldChange changeKind = iota
	spawnChange
	destroyChange
	attachChange
)

type change struct {
	kind   changeKind
	native classes.Native
	field  *classes.Field
	old    any
	new    any
	// attach: previous and next parent, nil for a root actor.
	from, to *Actor
}

// Transaction groups edits undone and redone together.
type Transaction struct {
	Title   string
	changes []change
}

// Objects lists every native the transaction touches, in first-touch order.
func (t *Transaction) Objects() (ret []classes.Native) {
	seen := make(map[classes.Native]bool)
	for _, c := range t.changes {
		if !seen[c.native] {
			seen[c.native] = true
			ret = append(ret, c.native)
		}
	}
	return
}

// Destroys lists the actors the transaction destroyed.
func (t *Transaction) Destroys() (ret []*Actor) {
	for _, c := range t.changes {
		if c.kind == destroyChange {
			ret = append(ret, c.native.(*Actor))
		}
	}
	return
}

func (t *Transaction) Empty() bool { return len(t.changes) == 0 }

// Editor holds the scene. All methods run on the update thread.
type Editor struct {
	Classes *classes.Registry

	levels []*Level
	assets map[string]*Asset
	serial int

	current    *Transaction
	undo, redo []*Transaction
	replaying  bool

	// OnPropertyChanged fires after a user edit of a field.
	OnPropertyChanged func(n classes.Native, f *classes.Field)
	OnActorAdded      func(a *Actor)
	OnActorDeleted    func(a *Actor)
	// OnAttach fires when an actor's parent or position among siblings changed.
	OnAttach       func(a *Actor)
	OnAssetCreated func(a *Asset)
	OnAssetDeleted func(a *Asset)
	OnSelect       func(a *Actor)
	OnDeselect     func(a *Actor)
	// OnBeforeUndoRedo fires before a transaction is reverted or replayed,
	// OnUndoRedo after.
	OnBeforeUndoRedo func(t *Transaction)
	OnUndoRedo       func(t *Transaction)
}

func NewEditor() *Editor {
	return &Editor{
		Classes: NewClasses(),
		assets:  make(map[string]*Asset),
	}
}

func (e *Editor) AddLevel(name string) *Level {
	l := &Level{object: object{class: e.Classes.Get("Level"), name: name}}
	e.levels = append(e.levels, l)
	return l
}

func (e *Editor) Level(name string) *Level {
	for _, l := range e.levels {
		if l.name == name {
			return l
		}
	}
	return nil
}

func (e *Editor) Levels() []*Level { return append([]*Level{}, e.levels...) }

// SpawnActor creates an actor in the level. An empty name is generated from
// the class name.
func (e *Editor) SpawnActor(l *Level, className, name string) *Actor {
	class := e.Classes.Get(className)
	if class == nil || class.New == nil || !class.IsA("Actor") {
		return nil
	}
	if name == "" || l.Actor(name) != nil {
		e.serial++
		name = fmt.Sprintf("%s_%d", className, e.serial)
	}
	a := class.New(name).(*Actor)
	a.level = l
	l.actors = append(l.actors, a)
	e.record(change{kind: spawnChange, native: a})
	if e.OnActorAdded != nil {
		e.OnActorAdded(a)
	}
	return a
}

// AddComponent adds a component to an actor.
func (e *Editor) AddComponent(a *Actor, className, name string) *Component {
	class := e.Classes.Get(className)
	if class == nil || class.New == nil || !class.IsA("Component") {
		return nil
	}
	if name == "" || a.Component(name) != nil {
		e.serial++
		name = fmt.Sprintf("%s_%d", className, e.serial)
	}
	c := class.New(name).(*Component)
	c.owner = a
	a.components = append(a.components, c)
	return c
}

// DestroyActor destroys the actor and the actors attached to it.
func (e *Editor) DestroyActor(a *Actor) bool {
	if a == nil || a.deleted {
		return false
	}
	for _, child := range a.Children() {
		e.DestroyActor(child)
	}
	e.record(change{kind: destroyChange, native: a, from: a.parent})
	e.unlink(a)
	a.deleted = true
	if e.OnActorDeleted != nil {
		e.OnActorDeleted(a)
	}
	return true
}

func (e *Editor) unlink(a *Actor) {
	if a.parent != nil {
		a.parent.children = without(a.parent.children, a)
	}
	if a.level != nil {
		a.level.actors = without(a.level.actors, a)
	}
}

func (e *Editor) resurrect(a *Actor, parent *Actor) {
	a.deleted = false
	a.level.actors = append(a.level.actors, a)
	a.parent = nil
	if parent != nil && !parent.deleted {
		a.parent = parent
		parent.children = append(parent.children, a)
	}
	if e.OnActorAdded != nil {
		e.OnActorAdded(a)
	}
}

// AttachActor attaches a to parent at index; a nil parent detaches it.
// Index -1 appends.
func (e *Editor) AttachActor(a, parent *Actor, index int) bool {
	for p := parent; p != nil; p = p.parent {
		if p == a {
			return false
		}
	}
	if parent != nil && parent.level != a.level {
		return false
	}
	from := a.parent
	if from != nil {
		from.children = without(from.children, a)
	}
	a.parent = parent
	if parent != nil {
		if index < 0 || index > len(parent.children) {
			index = len(parent.children)
		}
		parent.children = append(parent.children, nil)
		copy(parent.children[index+1:], parent.children[index:])
		parent.children[index] = a
	}
	e.record(change{kind: attachChange, native: a, from: from, to: parent})
	if e.OnAttach != nil {
		e.OnAttach(a)
	}
	return true
}

// Set is a user edit of a field. The old value is recorded for undo.
func (e *Editor) Set(n classes.Native, field string, v any) bool {
	f := n.Class().Field(field)
	if f == nil {
		return false
	}
	old := f.Type.Copy(f.Get(n))
	f.Set(n, v)
	e.record(change{kind: fieldChange, native: n, field: f, old: old, new: f.Type.Copy(v)})
	if e.OnPropertyChanged != nil {
		e.OnPropertyChanged(n, f)
	}
	return true
}

// Get returns nil for unknown fields.
func (e *Editor) Get(n classes.Native, field string) any {
	if f := n.Class().Field(field); f != nil {
		return f.Get(n)
	}
	return nil
}

// CreateAsset makes a new asset of a creatable class and registers it.
func (e *Editor) CreateAsset(className, path string) *Asset {
	class := e.Classes.Get(className)
	if class == nil || class.New == nil || !class.IsA("Asset") {
		return nil
	}
	a := class.New(path).(*Asset)
	e.AddAsset(a)
	if e.OnAssetCreated != nil {
		e.OnAssetCreated(a)
	}
	return a
}

// AddAsset registers an asset made elsewhere, replacing any asset at its
// path.
func (e *Editor) AddAsset(a classes.Asset) {
	if x, ok := a.(*Asset); ok {
		e.assets[x.path] = x
	}
}

// FindAsset returns nil if no asset lives at path.
func (e *Editor) FindAsset(path string) classes.Asset {
	if a, ok := e.assets[path]; ok {
		return a
	}
	return nil
}

func (e *Editor) RemoveAsset(path string) bool {
	a, ok := e.assets[path]
	if !ok {
		return false
	}
	a.deleted = true
	delete(e.assets, path)
	if e.OnAssetDeleted != nil {
		e.OnAssetDeleted(a)
	}
	return true
}

// NewStandIn makes a transient placeholder asset of the class. It is not
// registered.
func (e *Editor) NewStandIn(class *classes.Class, name string) classes.Asset {
	a := &Asset{object: object{class: class, name: name}, path: TransientPackage + "." + name, Transient: true}
	fromTemplate(a)
	return a
}

// Assets are sorted by path.
func (e *Editor) Assets() []*Asset {
	ret := make([]*Asset, 0, len(e.assets))
	for _, a := range e.assets {
		ret = append(ret, a)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].path < ret[j].path })
	return ret
}

func (e *Editor) Select(a *Actor) {
	if a.Selected {
		return
	}
	a.Selected = true
	if e.OnSelect != nil {
		e.OnSelect(a)
	}
}

func (e *Editor) Deselect(a *Actor) {
	if !a.Selected {
		return
	}
	a.Selected = false
	if e.OnDeselect != nil {
		e.OnDeselect(a)
	}
}

// BeginTransaction starts recording edits. Nested calls join the open
// transaction.
func (e *Editor) BeginTransaction(title string) {
	if e.current == nil {
		e.current = &Transaction{Title: title}
	}
}

func (e *Editor) EndTransaction() *Transaction {
	t := e.current
	e.current = nil
	if t != nil && !t.Empty() {
		e.undo = append(e.undo, t)
		e.redo = nil
	}
	return t
}

func (e *Editor) record(c change) {
	if e.current != nil && !e.replaying {
		e.current.changes = append(e.current.changes, c)
	}
}

// InHistory is the set of natives an undo or redo can still touch,
// including those of the open transaction.
func (e *Editor) InHistory() map[classes.Native]bool {
	ret := make(map[classes.Native]bool)
	open := []*Transaction{}
	if e.current != nil {
		open = append(open, e.current)
	}
	for _, list := range [][]*Transaction{e.undo, e.redo, open} {
		for _, t := range list {
			for _, c := range t.changes {
				ret[c.native] = true
			}
		}
	}
	return ret
}

func (e *Editor) CanUndo() bool { return len(e.undo) > 0 }

func (e *Editor) CanRedo() bool { return len(e.redo) > 0 }

// Undo reverts the last transaction. Destroyed actors come back to life.
func (e *Editor) Undo() *Transaction {
	if len(e.undo) == 0 {
		return nil
	}
	t := e.undo[len(e.undo)-1]
	e.undo = e.undo[:len(e.undo)-1]
	e.replay(t, true)
	e.redo = append(e.redo, t)
	return t
}

func (e *Editor) Redo() *Transaction {
	if len(e.redo) == 0 {
		return nil
	}
	t := e.redo[len(e.redo)-1]
	e.redo = e.redo[:len(e.redo)-1]
	e.replay(t, false)
	e.undo = append(e.undo, t)
	return t
}

func (e *Editor) replay(t *Transaction, backwards bool) {
	if e.OnBeforeUndoRedo != nil {
		e.OnBeforeUndoRedo(t)
	}
	e.replaying = true
	n := len(t.changes)
	for i := 0; i < n; i++ {
		c := t.changes[i]
		if backwards {
			c = t.changes[n-1-i]
		}
		switch c.kind {
		case fieldChange:
			v := c.new
			if backwards {
				v = c.old
			}
			c.field.Set(c.native, c.field.Type.Copy(v))
		case spawnChange, destroyChange:
			a := c.native.(*Actor)
			if (c.kind == spawnChange) == backwards {
				if !a.deleted {
					e.unlink(a)
					a.deleted = true
				}
			} else if a.deleted {
				e.resurrect(a, c.from)
			}
		case attachChange:
			a := c.native.(*Actor)
			to := c.to
			if backwards {
				to = c.from
			}
			if a.parent != nil {
				a.parent.children = without(a.parent.children, a)
			}
			a.parent = to
			if to != nil {
				to.children = append(to.children, a)
			}
		}
	}
	e.replaying = false
	if e.OnUndoRedo != nil {
		e.OnUndoRedo(t)
	}
}

func without(list []*Actor, a *Actor) []*Actor {
	for i, x := range list {
		if x == a {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}
