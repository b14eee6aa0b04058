package translators

import (
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/utils"
)

type Options struct {
	// MaxCreateTime bounds how long ProcessCreateQueue runs per call. At
	// least one queued object is processed per call.
	MaxCreateTime time.Duration
}

func (o *Options) SetDefaults() {
	if o.MaxCreateTime == 0 {
		o.MaxCreateTime = 40 * time.Millisecond
	}
}

// Dispatcher routes session events to translators by object type. It also
// implements props.Dispatcher.
type Dispatcher struct {
	opts Options
	m    *props.Manager
	log  utils.Logger

	byType      map[string]Translator
	translators []Translator
	fallbacks   int

	active bool
	detach []func()

	queue  []*graph.Object
	queued map[*graph.Object]bool

	modifyDisabled int
}

var _ props.Dispatcher = (*Dispatcher)(nil)

func NewDispatcher(opts Options, m *props.Manager, log utils.Logger) *Dispatcher {
	opts.SetDefaults()
	return &Dispatcher{
		opts:   opts,
		m:      m,
		log:    log,
		byType: make(map[string]Translator),
		queued: make(map[*graph.Object]bool),
	}
}

func (d *Dispatcher) Manager() *props.Manager { return d.m }

// Register makes t handle objects of type typ. One translator may serve
// several types. Fallback translators are asked to Create natives after
// all the others and also get the objects of unregistered types.
func (d *Dispatcher) Register(typ string, t Translator, isFallback bool) {
	d.byType[typ] = t
	for _, x := range d.translators {
		if x == t {
			return
		}
	}
	if isFallback {
		d.translators = append(d.translators, t)
		d.fallbacks++
		return
	}
	at := len(d.translators) - d.fallbacks
	d.translators = append(d.translators, nil)
	copy(d.translators[at+1:], d.translators[at:])
	d.translators[at] = t
}

// Translator returns the translator of an object type. Types nobody
// registered go to the first fallback translator.
func (d *Dispatcher) Translator(typ string) Translator {
	if t, ok := d.byType[typ]; ok {
		return t
	}
	if d.fallbacks > 0 {
		return d.translators[len(d.translators)-d.fallbacks]
	}
	d.log.Error("unknown object type", "type", typ)
	return nil
}

func (d *Dispatcher) translator(o *graph.Object) Translator {
	if o == nil {
		return nil
	}
	return d.Translator(o.Type())
}

func on[T any](d *Dispatcher, e *graph.Event[T], fn func(T)) {
	id := e.Add(fn)
	d.detach = append(d.detach, func() { e.Remove(id) })
}

// Initialize subscribes to the session events and initializes every
// translator.
func (d *Dispatcher) Initialize() {
	if d.active {
		return
	}
	d.active = true
	ev := &d.m.Session().Events
	on(d, &ev.Create, func(e graph.ChildEvent) {
		if t := d.translator(e.Object); t != nil {
			d.withoutModify(func() { t.OnCreate(e.Object, e.ChildIndex) })
		}
	})
	on(d, &ev.CreateFailed, func(o *graph.Object) {
		if t := d.translator(o); t != nil {
			t.OnCreateFailed(o)
		}
	})
	on(d, &ev.Delete, func(o *graph.Object) {
		if t := d.translator(o); t != nil {
			d.withoutModify(func() { t.OnDelete(o) })
		}
	})
	on(d, &ev.ConfirmDelete, func(e graph.ConfirmDeleteEvent) {
		if t := d.translator(e.Object); t != nil {
			t.OnConfirmDelete(e.Object, e.Unsubscribed)
		}
	})
	on(d, &ev.Lock, func(o *graph.Object) {
		if t := d.translator(o); t != nil {
			t.OnLock(o)
		}
	})
	on(d, &ev.Unlock, func(o *graph.Object) {
		if t := d.translator(o); t != nil {
			t.OnUnlock(o)
		}
	})
	on(d, &ev.LockOwnerChange, func(o *graph.Object) {
		if t := d.translator(o); t != nil {
			t.OnLockOwnerChange(o)
		}
	})
	on(d, &ev.DirectLockChange, func(o *graph.Object) {
		if t := d.translator(o); t != nil {
			t.OnDirectLockChange(o)
		}
	})
	on(d, &ev.ParentChange, func(e graph.ChildEvent) {
		if t := d.translator(e.Object); t != nil {
			d.withoutModify(func() { t.OnParentChange(e.Object, e.ChildIndex) })
		}
	})
	on(d, &ev.PropertyChange, func(p property.Property) { d.OnPropertyChange(p) })
	on(d, &ev.DictionaryRemove, func(e graph.DictionaryRemoveEvent) {
		if t := d.translator(containerObject(e.Dictionary)); t != nil {
			t.OnRemoveField(e.Dictionary, e.Key)
		}
	})
	on(d, &ev.ListAdd, func(e graph.ListEvent) {
		if t := d.translator(containerObject(e.List)); t != nil {
			t.OnListAdd(e.List, e.Index, e.Count)
		}
	})
	on(d, &ev.ListRemove, func(e graph.ListEvent) {
		if t := d.translator(containerObject(e.List)); t != nil {
			t.OnListRemove(e.List, e.Index, e.Count)
		}
	})
	d.m.SetDispatcher(d)
	for _, t := range d.translators {
		t.Initialize()
	}
}

// CleanUp drops the create queue, unsubscribes and cleans up every
// translator.
func (d *Dispatcher) CleanUp() {
	if !d.active {
		return
	}
	d.active = false
	d.queue = nil
	d.queued = make(map[*graph.Object]bool)
	for _, fn := range d.detach {
		fn()
	}
	d.detach = nil
	for _, t := range d.translators {
		t.CleanUp()
	}
}

func (d *Dispatcher) IsActive() bool { return d.active }

func (d *Dispatcher) withoutModify(fn func()) {
	d.modifyDisabled++
	defer func() { d.modifyDisabled-- }()
	fn()
}

// Modified is the host hook for user edits of native fields.
func (d *Dispatcher) Modified(n classes.Native, f *classes.Field) {
	if !d.active || d.modifyDisabled > 0 {
		return
	}
	d.m.MarkPropertyChanged(n, f)
}

// Create asks the translators in order to make an object for n.
func (d *Dispatcher) Create(n classes.Native) *graph.Object {
	if classes.IsNil(n) {
		return nil
	}
	for _, t := range d.translators {
		if o, ok := t.Create(n); ok {
			return o
		}
	}
	return nil
}

func (d *Dispatcher) IsCreateQueued(o *graph.Object) bool { return d.queued[o] }

// QueueCreate defers the OnCreate of o to ProcessCreateQueue.
func (d *Dispatcher) QueueCreate(o *graph.Object) {
	if d.queued[o] {
		return
	}
	d.queued[o] = true
	d.queue = append(d.queue, o)
	CreateQueueDepth.Set(float64(len(d.queue)))
}

// ProcessCreateQueue materializes queued objects until the queue is empty
// or MaxCreateTime ran out. Objects deleted meanwhile are dropped.
func (d *Dispatcher) ProcessCreateQueue() (n int) {
	start := time.Now()
	for len(d.queue) > 0 {
		if n > 0 && time.Since(start) >= d.opts.MaxCreateTime {
			break
		}
		o := d.queue[0]
		d.queue[0] = nil
		d.queue = d.queue[1:]
		delete(d.queued, o)
		if !o.IsCreated() || o.IsDeletePending() {
			continue
		}
		if t := d.translator(o); t != nil {
			d.withoutModify(func() { t.OnCreate(o, o.ChildIndex()) })
		}
		n++
	}
	CreateQueueDepth.Set(float64(len(d.queue)))
	return
}

// OnPropertyChange routes a server property change to the translator of
// the object it belongs to.
func (d *Dispatcher) OnPropertyChange(p property.Property) bool {
	if p == nil {
		return false
	}
	o := containerObject(p)
	if o == nil {
		d.log.Error("property has no container object", "path", p.Path())
		return false
	}
	t := d.translator(o)
	return t != nil && t.OnPropertyChange(p)
}

func (d *Dispatcher) OnUPropertyChange(o *graph.Object, n classes.Native, f *classes.Field) bool {
	t := d.translator(o)
	return t != nil && t.OnUPropertyChange(o, n, f)
}

// OnUndoRedo reconciles n after an undo or redo. Without an object every
// translator is asked until one handles it.
func (d *Dispatcher) OnUndoRedo(o *graph.Object, n classes.Native) bool {
	if o == nil {
		for _, t := range d.translators {
			if t.OnUndoRedo(nil, n) {
				return true
			}
		}
		return false
	}
	t := d.translator(o)
	return t != nil && t.OnUndoRedo(o, n)
}

// Update runs the per tick logic of every translator.
func (d *Dispatcher) Update(dt time.Duration) {
	for _, t := range d.translators {
		t.Update(dt)
	}
}
