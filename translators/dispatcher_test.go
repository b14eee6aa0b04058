package translators

import (
	"testing"
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/props"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	BaseTranslator
	name    string
	handles bool
	calls   *[]string
	delay   time.Duration
}

func (r *recorder) Initialize() { *r.calls = append(*r.calls, r.name+".init") }

func (r *recorder) CleanUp() { *r.calls = append(*r.calls, r.name+".cleanup") }

func (r *recorder) Create(n classes.Native) (*graph.Object, bool) {
	*r.calls = append(*r.calls, r.name+".create")
	return nil, r.handles
}

func (r *recorder) OnCreate(o *graph.Object, _ int) {
	time.Sleep(r.delay)
	*r.calls = append(*r.calls, r.name+".oncreate")
}

func (r *recorder) OnUndoRedo(o *graph.Object, n classes.Native) bool {
	*r.calls = append(*r.calls, r.name+".undo")
	return r.handles
}

func newDispatcher(t *testing.T, opts Options) (*Dispatcher, *graph.Session) {
	s := graph.NewSession(newServer(t).Connect("alice", graph.Color{}), testlog)
	s.Update()
	m, err := props.NewManager(s, props.NewObjectMap(), testlog, props.Options{})
	require.NoError(t, err)
	return NewDispatcher(opts, m, testlog), s
}

func TestDispatcher_Register(t *testing.T) {
	d, _ := newDispatcher(t, Options{})
	var calls []string
	fallback := &recorder{name: "fallback", handles: true, calls: &calls}
	first := &recorder{name: "first", calls: &calls}
	second := &recorder{name: "second", calls: &calls}
	d.Register("A", fallback, true)
	d.Register("B", first, false)
	d.Register("C", second, false)
	d.Register("D", second, false)

	assert.Same(t, second, d.Translator("D"))
	assert.Same(t, fallback, d.Translator("E"))
	plain, _ := newDispatcher(t, Options{})
	plain.Register("B", first, false)
	assert.Nil(t, plain.Translator("E"))

	e := host.NewEditor()
	d.Create(host.NewAsset(e.Classes.Get("Material"), redPath))
	assert.Equal(t, []string{"first.create", "second.create", "fallback.create"}, calls)
	assert.Nil(t, d.Create(nil))

	calls = nil
	d.Initialize()
	assert.True(t, d.IsActive())
	assert.Equal(t, []string{"first.init", "second.init", "fallback.init"}, calls)
	assert.Same(t, d, d.Manager().Dispatcher())

	calls = nil
	assert.True(t, d.OnUndoRedo(nil, nil))
	assert.Equal(t, []string{"first.undo", "second.undo", "fallback.undo"}, calls)

	calls = nil
	d.CleanUp()
	assert.False(t, d.IsActive())
	assert.Len(t, calls, 3)
}

func TestDispatcher_CreateQueue(t *testing.T) {
	d, s := newDispatcher(t, Options{MaxCreateTime: time.Nanosecond})
	var calls []string
	d.Register("Thing", &recorder{name: "thing", calls: &calls, delay: time.Millisecond}, false)
	var objs []*graph.Object
	for i := 0; i < 3; i++ {
		o := graph.NewObject("Thing", nil, graph.NoFlags)
		require.True(t, s.Create(o))
		objs = append(objs, o)
	}
	s.Update()
	gone := graph.NewObject("Thing", nil, graph.NoFlags)

	for _, o := range objs {
		d.QueueCreate(o)
	}
	d.QueueCreate(objs[0])
	d.QueueCreate(gone)
	assert.True(t, d.IsCreateQueued(objs[1]))

	// at least one per call, even when out of time
	assert.Equal(t, 1, d.ProcessCreateQueue())
	assert.False(t, d.IsCreateQueued(objs[0]))
	assert.Equal(t, 1, d.ProcessCreateQueue())
	assert.Equal(t, 1, d.ProcessCreateQueue())
	assert.Equal(t, 0, d.ProcessCreateQueue())
	assert.Equal(t, []string{"thing.oncreate", "thing.oncreate", "thing.oncreate"}, calls)
}

func TestDispatcher_Modified(t *testing.T) {
	d, _ := newDispatcher(t, Options{})
	m := d.Manager()
	m.StartListening()
	e := host.NewEditor()
	a := e.SpawnActor(e.AddLevel("Main"), "Actor", "Cube")
	f := a.Class().Field("Label")

	var changed []props.ChangeEvent
	m.Changed.Add(func(c props.ChangeEvent) { changed = append(changed, c) })

	d.Modified(a, f)
	m.BroadcastChangeEvents()
	assert.Empty(t, changed)

	d.Initialize()
	d.withoutModify(func() { d.Modified(a, f) })
	m.BroadcastChangeEvents()
	assert.Empty(t, changed)

	d.Modified(a, f)
	m.BroadcastChangeEvents()
	require.Len(t, changed, 1)
	assert.Same(t, a, changed[0].Native)
}

func TestDispatcher_RoutesPropertyChanges(t *testing.T) {
	d, _ := newDispatcher(t, Options{})
	m := d.Manager()
	nt := NewNativeTranslator(m)
	var seen []property.Property
	nt.RegisterPropertyHandler("#custom", func(n classes.Native, p property.Property) bool {
		seen = append(seen, p)
		return true
	})
	d.Register(TypeActor, nt, false)

	e := host.NewEditor()
	a := e.SpawnActor(e.AddLevel("Main"), "Actor", "Cube")
	o := graph.NewObject(TypeActor, nil, graph.NoFlags)
	m.Objects().Add(a, o)

	o.Property().Set("Label", property.NewString("hi"))
	assert.True(t, d.OnPropertyChange(o.Property().Get("Label")))
	assert.Equal(t, "hi", a.Label)

	o.Property().Set("#custom", property.NewInt(1))
	assert.True(t, d.OnPropertyChange(o.Property().Get("#custom")))
	assert.Len(t, seen, 1)

	o.Property().Set("#other", property.NewInt(1))
	assert.False(t, d.OnPropertyChange(o.Property().Get("#other")))

	assert.False(t, d.OnPropertyChange(property.NewInt(1)))

	o.Property().Remove("Label")
	nt.OnRemoveField(o.Property(), "Label")
	assert.Equal(t, "", a.Label)
}
