package translators

import (
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/loader"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/utils"
)

const (
	TypeLevel     = "Level"
	TypeActor     = "Actor"
	TypeComponent = "Component"
)

const keyName = "#name"

// ActorTranslator syncs levels, the actors in them and their components.
// Levels are matched by name. Actor objects are nested under the object of
// their parent actor, or of their level for root actors; component objects
// are children of their actor's object.
type ActorTranslator struct {
	*NativeTranslator
	d   *Dispatcher
	e   *host.Editor
	ld  *loader.Loader
	log utils.Logger

	// quiet > 0 while the translator edits the scene itself
	quiet int

	uploads  []*host.Actor
	queued   map[*host.Actor]bool
	reparent []*host.Actor
	recreate []*graph.Object
}

func NewActorTranslator(d *Dispatcher, e *host.Editor, ld *loader.Loader) *ActorTranslator {
	return &ActorTranslator{
		NativeTranslator: NewNativeTranslator(d.Manager()),
		d:                d,
		e:                e,
		ld:               ld,
		log:              d.Manager().Logger(),
		queued:           make(map[*host.Actor]bool),
	}
}

// Register makes t handle levels, actors and components.
func (t *ActorTranslator) Register() {
	t.d.Register(TypeLevel, t, false)
	t.d.Register(TypeActor, t, false)
	t.d.Register(TypeComponent, t, false)
}

func (t *ActorTranslator) Initialize() {
	t.e.OnActorAdded = t.onActorAdded
	t.e.OnActorDeleted = t.onActorDeleted
	t.e.OnAttach = t.onAttach
	t.e.OnSelect = t.onSelect
	t.e.OnDeselect = t.onDeselect
}

func (t *ActorTranslator) CleanUp() {
	t.e.OnActorAdded = nil
	t.e.OnActorDeleted = nil
	t.e.OnAttach = nil
	t.e.OnSelect = nil
	t.e.OnDeselect = nil
	t.uploads = nil
	t.queued = make(map[*host.Actor]bool)
	t.reparent = nil
	t.recreate = nil
}

func (t *ActorTranslator) quietly(fn func()) {
	t.quiet++
	defer func() { t.quiet-- }()
	fn()
}

func (t *ActorTranslator) queueUpload(a *host.Actor) {
	if t.queued[a] {
		return
	}
	t.queued[a] = true
	t.uploads = append(t.uploads, a)
}

// IsUploadQueued is true for actors waiting to be uploaded.
func (t *ActorTranslator) IsUploadQueued(a *host.Actor) bool { return t.queued[a] }

func (t *ActorTranslator) Create(n classes.Native) (*graph.Object, bool) {
	switch x := n.(type) {
	case *host.Level:
		return t.createLevel(x), true
	case *host.Actor:
		if o := t.m.Objects().Object(x); o != nil {
			return o, true
		}
		if x.IsDeleted() {
			return nil, true
		}
		// an empty placeholder so references resolve once it is uploaded
		o := graph.NewObject(TypeActor, nil, graph.NoFlags)
		t.m.Objects().Add(x, o)
		t.queueUpload(x)
		return o, true
	case *host.Component:
		if x.Owner() != nil {
			t.Create(x.Owner())
		}
		return t.m.Objects().Object(x), true
	}
	return nil, false
}

func (t *ActorTranslator) createLevel(l *host.Level) *graph.Object {
	if o := t.m.Objects().Object(l); o != nil {
		return o
	}
	dict := property.NewDictionary()
	dict.Set(keyName, t.m.FromString(l.Name()))
	o := graph.NewObject(TypeLevel, dict, graph.NoFlags)
	t.m.Objects().Add(l, o)
	if !t.m.Session().Create(o) {
		t.log.Warn("unable to upload level", "level", l.Name())
		t.m.Objects().Remove(l)
		return nil
	}
	t.log.Info("uploading level", "level", l.Name())
	for _, a := range l.RootActors() {
		t.queueUpload(a)
	}
	return o
}

// newObject returns the object mapped to n if it is an unsynced
// placeholder, or a new object mapped to n.
func (t *ActorTranslator) newObject(typ string, n classes.Native) *graph.Object {
	o := t.m.Objects().Object(n)
	if o == nil || o.IsSyncing() || o.IsDeletePending() || o.Type() != typ {
		o = graph.NewObject(typ, nil, graph.NoFlags)
		t.m.Objects().Add(n, o)
		return o
	}
	for _, c := range o.Children() {
		o.RemoveChild(c)
	}
	o.SetProperty(property.NewDictionary())
	return o
}

// createObject builds the object tree of a and its components and of the
// child actors that are not syncing yet.
func (t *ActorTranslator) createObject(a *host.Actor) *graph.Object {
	o := t.newObject(TypeActor, a)
	dict := o.Property()
	dict.Set(keyName, t.m.FromString(a.Name()))
	dict.Set(keyClass, t.m.FromString(a.Class().Name))
	t.m.CreateProperties(a, dict)
	for _, c := range a.Components() {
		co := t.newObject(TypeComponent, c)
		cd := co.Property()
		cd.Set(keyName, t.m.FromString(c.Name()))
		cd.Set(keyClass, t.m.FromString(c.Class().Name))
		t.m.CreateProperties(c, cd)
		o.AddChild(co)
	}
	for _, child := range a.Children() {
		if co := t.m.Objects().Object(child); co != nil && co.IsSyncing() {
			continue
		}
		o.AddChild(t.createObject(child))
	}
	if a.Selected {
		o.RequestLock()
	}
	return o
}

func (t *ActorTranslator) Update(dt time.Duration) {
	for _, l := range t.e.Levels() {
		if !t.m.Objects().Contains(l) {
			t.createLevel(l)
		}
	}

	pending := t.uploads
	t.uploads = nil
	t.queued = make(map[*host.Actor]bool)
	for _, a := range pending {
		if !a.IsDeleted() && !t.upload(a) {
			t.queueUpload(a)
		}
	}

	moved := t.reparent
	t.reparent = nil
	for _, a := range moved {
		t.syncParent(a)
	}

	recreate := t.recreate
	t.recreate = nil
	for _, o := range recreate {
		if o.IsCreated() && !o.IsDeletePending() {
			t.d.withoutModify(func() { t.OnCreate(o, o.ChildIndex()) })
			ActorsRecreated.Inc()
		}
	}
}

// upload sends a to the server. It returns false to retry on the next
// update.
func (t *ActorTranslator) upload(a *host.Actor) bool {
	o := t.m.Objects().Object(a)
	if o != nil && o.IsDeletePending() {
		return false
	}
	if o != nil && o.IsSyncing() {
		return true
	}
	parent := t.m.Objects().Object(a.Level())
	if parent == nil || !parent.IsSyncing() {
		return false
	}
	if pa := a.Parent(); pa != nil {
		po := t.m.Objects().Object(pa)
		if po == nil || !po.IsSyncing() {
			// uploaded together with its parent
			t.queueUpload(pa)
			return true
		}
		if po.CanEditChildren() {
			parent = po
		} else {
			t.log.Warn("parent is locked, detaching actor", "actor", a.Name(), "parent", pa.Name())
			t.quietly(func() { t.e.AttachActor(a, nil, -1) })
		}
	}
	if !parent.CanEditChildren() {
		return false
	}
	o = t.createObject(a)
	if !t.m.Session().CreateChild(o, parent, objectIndex(parent, nil, actorPos(a))) {
		return false
	}
	ActorsUploaded.Inc()
	t.log.Debug("uploading actor", "actor", a.Name())
	for i, child := range a.Children() {
		if co := t.m.Objects().Object(child); co != nil && co.IsSyncing() && co.Parent() != o {
			o.InsertChild(co, objectIndex(o, co, i))
		}
	}
	return true
}

// actorPos is the position of a among the actors sharing its parent.
func actorPos(a *host.Actor) int {
	var siblings []*host.Actor
	if a.Parent() != nil {
		siblings = a.Parent().Children()
	} else if a.Level() != nil {
		siblings = a.Level().RootActors()
	}
	for i, s := range siblings {
		if s == a {
			return i
		}
	}
	return -1
}

// objectIndex is the child index of parent at which the actor at position
// pos goes, not counting skip.
func objectIndex(parent, skip *graph.Object, pos int) int {
	i, k := 0, 0
	for _, c := range parent.Children() {
		if c == skip {
			continue
		}
		if c.Type() == TypeActor {
			if k == pos {
				return i
			}
			k++
		}
		i++
	}
	return i
}

// actorIndex is the position of o among the actor children of its parent.
func actorIndex(o *graph.Object) int {
	p := o.Parent()
	if p == nil {
		return -1
	}
	k := 0
	for _, c := range p.Children() {
		if c == o {
			return k
		}
		if c.Type() == TypeActor {
			k++
		}
	}
	return -1
}

func (t *ActorTranslator) OnCreate(o *graph.Object, childIndex int) {
	switch o.Type() {
	case TypeLevel:
		t.onCreateLevel(o)
	case TypeActor:
		t.onCreateActor(o)
	case TypeComponent:
		if a, ok := t.m.Objects().Native(o.Parent()).(*host.Actor); ok {
			t.materializeComponent(o, a)
		}
	}
}

func (t *ActorTranslator) onCreateLevel(o *graph.Object) {
	name := t.m.ToString(o.Property().Get(keyName))
	l := t.e.Level(name)
	if l == nil {
		l = t.e.AddLevel(name)
	}
	if cur := t.m.Objects().Object(l); cur != nil && cur != o {
		t.log.Warn("level uploaded by multiple users", "level", name)
		if cur.IsCreated() && cur.Id() < o.Id() {
			t.m.Session().Delete(o)
			return
		}
		// our upload lost, send the actors again under the winning object
		t.unmapTree(cur)
		t.m.Session().Delete(cur)
		t.m.Objects().Add(l, o)
		for _, a := range l.RootActors() {
			t.queueUpload(a)
		}
	} else {
		for _, a := range l.Actors() {
			if !t.m.Objects().Contains(a) && !a.IsDeleted() {
				t.log.Debug("removing unsynced actor", "actor", a.Name(), "level", name)
				t.quietly(func() { t.e.DestroyActor(a) })
			}
		}
		t.m.Objects().Add(l, o)
	}
	t.m.ApplyProperties(l, o.Property())
	for _, c := range o.Children() {
		if c.Type() == TypeActor {
			t.d.QueueCreate(c)
		}
	}
}

func (t *ActorTranslator) onCreateActor(o *graph.Object) {
	l, ok := t.m.Objects().Native(o.Ancestor(TypeLevel)).(*host.Level)
	if !ok {
		return
	}
	var pa *host.Actor
	if p := o.Parent(); p != nil && p.Type() == TypeActor {
		if pa, ok = t.m.Objects().Native(p).(*host.Actor); !ok {
			// materialized with its parent
			return
		}
	}
	t.materialize(o, l, pa)
}

func (t *ActorTranslator) materialize(o *graph.Object, l *host.Level, pa *host.Actor) {
	a, _ := t.m.Objects().Native(o).(*host.Actor)
	if a == nil {
		class := t.m.ToString(o.Property().Get(keyClass))
		name := t.m.ToString(o.Property().Get(keyName))
		t.quietly(func() { a = t.e.SpawnActor(l, class, name) })
		if a == nil {
			t.log.Warn("unable to spawn actor", "class", class, "name", name)
			return
		}
		t.m.Objects().Add(a, o)
		t.m.ApplyProperties(a, o.Property())
		if pa != nil {
			t.quietly(func() { t.e.AttachActor(a, pa, actorIndex(o)) })
		}
		t.m.SetReferences(o, t.m.Session().GetReferences(o))
	}
	for _, c := range o.Children() {
		switch c.Type() {
		case TypeComponent:
			t.materializeComponent(c, a)
		case TypeActor:
			t.materialize(c, l, a)
		}
	}
	t.updateLockedBy(o)
}

func (t *ActorTranslator) materializeComponent(o *graph.Object, a *host.Actor) {
	if t.m.Objects().Native(o) != nil {
		return
	}
	name := t.m.ToString(o.Property().Get(keyName))
	class := t.m.ToString(o.Property().Get(keyClass))
	c := a.Component(name)
	if c == nil {
		c = t.e.AddComponent(a, class, name)
	}
	if c == nil {
		t.log.Warn("unable to add component", "class", class, "name", name, "actor", a.Name())
		return
	}
	t.m.Objects().Add(c, o)
	t.m.ApplyProperties(c, o.Property())
	t.m.SetReferences(o, t.m.Session().GetReferences(o))
}

func (t *ActorTranslator) unmapTree(o *graph.Object) {
	o.Walk(func(d *graph.Object) bool {
		t.m.Objects().RemoveObject(d)
		return true
	})
}

func (t *ActorTranslator) OnDelete(o *graph.Object) {
	switch n := t.m.Objects().Native(o).(type) {
	case *host.Actor:
		t.quietly(func() { t.e.DestroyActor(n) })
	case *host.Level:
		for _, a := range n.RootActors() {
			t.quietly(func() { t.e.DestroyActor(a) })
		}
	}
	t.unmapTree(o)
}

func (t *ActorTranslator) OnConfirmDelete(o *graph.Object, _ bool) { t.unmapTree(o) }

func (t *ActorTranslator) OnCreateFailed(o *graph.Object) {
	if a, ok := t.m.Objects().Native(o).(*host.Actor); ok && !a.IsDeleted() {
		t.log.Warn("actor upload failed", "actor", a.Name())
	}
}

func (t *ActorTranslator) OnLock(o *graph.Object) { t.updateLockedBy(o) }

func (t *ActorTranslator) OnUnlock(o *graph.Object) { t.updateLockedBy(o) }

func (t *ActorTranslator) OnLockOwnerChange(o *graph.Object) { t.updateLockedBy(o) }

// updateLockedBy shows who locked the actors of the subtree.
func (t *ActorTranslator) updateLockedBy(o *graph.Object) {
	o.Walk(func(d *graph.Object) bool {
		if a, ok := t.m.Objects().Native(d).(*host.Actor); ok {
			a.LockedBy = ""
			if u := d.LockOwner(); u != nil && !u.IsLocal() {
				a.LockedBy = u.Name()
			}
		}
		return true
	})
}

func (t *ActorTranslator) OnParentChange(o *graph.Object, childIndex int) {
	a, ok := t.m.Objects().Native(o).(*host.Actor)
	if !ok {
		return
	}
	t.quietly(func() { t.attachToObjectParent(a, o) })
}

func (t *ActorTranslator) attachToObjectParent(a *host.Actor, o *graph.Object) {
	p := o.Parent()
	if p == nil || p.Type() != TypeActor {
		if a.Parent() != nil {
			t.e.AttachActor(a, nil, -1)
		}
		return
	}
	pa, ok := t.m.Objects().Native(p).(*host.Actor)
	if !ok {
		return
	}
	t.e.AttachActor(a, pa, actorIndex(o))
}

func (t *ActorTranslator) onActorAdded(a *host.Actor) {
	if t.quiet > 0 {
		return
	}
	t.queueUpload(a)
}

func (t *ActorTranslator) onActorDeleted(a *host.Actor) {
	if t.quiet > 0 {
		return
	}
	t.deleteActor(a)
}

// deleteActor deletes the object of a locally destroyed actor. Locked
// actors cannot be deleted and are restored from the server.
func (t *ActorTranslator) deleteActor(a *host.Actor) {
	delete(t.queued, a)
	o := t.m.Objects().Object(a)
	if o == nil || o.IsDeletePending() {
		return
	}
	if !o.IsSyncing() {
		t.m.Objects().Remove(a)
		return
	}
	if o.Parent() != nil && o.Parent().IsDeletePending() {
		return
	}
	if o.IsLocked() || !t.m.Session().Delete(o) {
		t.log.Info("actor is locked, restoring it", "actor", a.Name())
		t.unmapTree(o)
		t.recreate = append(t.recreate, o)
	}
}

func (t *ActorTranslator) onAttach(a *host.Actor) {
	if t.quiet > 0 {
		return
	}
	t.queueReparent(a)
}

func (t *ActorTranslator) queueReparent(a *host.Actor) {
	for _, x := range t.reparent {
		if x == a {
			return
		}
	}
	t.reparent = append(t.reparent, a)
}

// syncParent sends the local parent and sibling position of a, or reverts
// them if the objects involved are locked.
func (t *ActorTranslator) syncParent(a *host.Actor) {
	o := t.m.Objects().Object(a)
	if o == nil || !o.IsSyncing() || o.IsDeletePending() || a.IsDeleted() {
		return
	}
	var np *graph.Object
	if pa := a.Parent(); pa != nil {
		np = t.m.Objects().Object(pa)
		if np == nil || !np.IsSyncing() {
			// attached when the parent is uploaded
			t.queueUpload(pa)
			return
		}
	} else {
		np = t.m.Objects().Object(a.Level())
	}
	if np == nil {
		return
	}
	idx := objectIndex(np, o, actorPos(a))
	ok := false
	switch {
	case o.IsLocked() || np.IsFullyLocked():
	case o.Parent() != np:
		ok = np.InsertChild(o, idx)
	case o.ChildIndex() == idx:
		ok = true
	default:
		ok = o.SetChildIndex(min(idx, np.NumChildren()-1))
	}
	if !ok {
		t.log.Info("actor is locked, reverting attach", "actor", a.Name())
		t.quietly(func() { t.attachToObjectParent(a, o) })
	}
}

func (t *ActorTranslator) onSelect(a *host.Actor) {
	o := t.m.Objects().Object(a)
	if o == nil || !o.IsSyncing() {
		return
	}
	o.RequestLock()
	t.ld.LoadAssetsFor(o)
}

func (t *ActorTranslator) onDeselect(a *host.Actor) {
	if o := t.m.Objects().Object(a); o != nil {
		o.ReleaseLock()
	}
}

func (t *ActorTranslator) OnUndoRedo(o *graph.Object, n classes.Native) bool {
	switch x := n.(type) {
	case *host.Level:
		return true
	case *host.Component:
		if o != nil {
			t.syncFrom(o, x)
		}
		return true
	case *host.Actor:
		if x.IsDeleted() {
			t.deleteActor(x)
			return true
		}
		if o == nil {
			x.LockedBy = ""
			t.queueUpload(x)
			return true
		}
		t.syncFrom(o, x)
		t.queueReparent(x)
		return true
	}
	return false
}

// DestroyNative destroys an actor without deleting its object.
func (t *ActorTranslator) DestroyNative(n classes.Native) bool {
	a, ok := n.(*host.Actor)
	if !ok {
		return false
	}
	var done bool
	t.quietly(func() { done = t.e.DestroyActor(a) })
	return done
}
