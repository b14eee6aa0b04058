package graph

import (
	"log/slog"
	"testing"

	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeService struct {
	sent    []*Message
	inbox   []*Message
	strings map[string]uint32
	limits  map[string]uint32
	closed  bool
}

func newFakeService() *fakeService {
	return &fakeService{strings: make(map[string]uint32), limits: make(map[string]uint32)}
}

func (f *fakeService) Send(m *Message) { f.sent = append(f.sent, m) }

func (f *fakeService) Poll() []*Message {
	in := f.inbox
	f.inbox = nil
	return in
}

func (f *fakeService) StringTableId(s string) uint32 {
	if id, ok := f.strings[s]; ok {
		return id
	}
	id := uint32(len(f.strings) + 1)
	f.strings[s] = id
	return id
}

func (f *fakeService) StringFromTable(id uint32) (string, bool) {
	for s, i := range f.strings {
		if i == id {
			return s, true
		}
	}
	return "", false
}

func (f *fakeService) ObjectLimit(t string) uint32 {
	if l, ok := f.limits[t]; ok {
		return l
	}
	return NoLimit
}

func (f *fakeService) Connected() bool { return !f.closed }

func (f *fakeService) Close() error {
	f.closed = true
	return nil
}

func (f *fakeService) deliver(s *Session, msgs ...*Message) {
	f.inbox = append(f.inbox, msgs...)
	s.Update()
}

func newTestSession(t *testing.T) (*Session, *fakeService) {
	f := newFakeService()
	s := NewSession(f, utils.NewDefaultLogger(slog.LevelError))
	f.deliver(s, &Message{Kind: MsgWelcome, User: &UserData{Id: 1, Name: "me"}})
	require.NotNil(t, s.LocalUser())
	require.True(t, s.IsConnected())
	return s, f
}

func TestSetChildIndex(t *testing.T) {
	y := NewObject("Y", nil, NoFlags)
	a := NewObject("A", nil, NoFlags)
	b := NewObject("B", nil, NoFlags)
	c := NewObject("C", nil, NoFlags)
	for _, ch := range []*Object{a, b, c} {
		require.True(t, y.AddChild(ch))
	}

	assert.True(t, c.SetChildIndex(0))
	assert.Equal(t, []*Object{c, a, b}, y.Children())
	assert.Equal(t, 0, c.ChildIndex())
	assert.Equal(t, 2, b.ChildIndex())

	assert.False(t, c.SetChildIndex(3))
	assert.False(t, c.SetChildIndex(-1))
	assert.False(t, c.SetChildIndex(0))
	assert.False(t, y.SetChildIndex(0))
	assert.Equal(t, []*Object{c, a, b}, y.Children())

	assert.True(t, y.MoveChild(0, 2))
	assert.Equal(t, []*Object{a, b, c}, y.Children())
}

func TestHierarchy(t *testing.T) {
	root := NewObject("Level", nil, NoFlags)
	actor := NewObject("Actor", nil, NoFlags)
	comp := NewObject("Component", nil, NoFlags)
	require.True(t, root.AddChild(actor))
	require.True(t, actor.AddChild(comp))

	assert.False(t, comp.AddChild(root), "cycles are refused")
	assert.False(t, actor.AddChild(actor))
	assert.Equal(t, root, comp.Ancestor("Level"))
	assert.Nil(t, comp.Ancestor("Asset"))

	var order []string
	root.Walk(func(o *Object) bool {
		order = append(order, o.Type())
		return true
	})
	assert.Equal(t, []string{"Level", "Actor", "Component"}, order)

	require.True(t, root.InsertChild(comp, 0))
	assert.Equal(t, root, comp.Parent())
	assert.Equal(t, 0, actor.NumChildren())
	assert.Equal(t, []*Object{comp, actor}, root.Children())

	require.True(t, root.RemoveChild(comp))
	assert.Nil(t, comp.Parent())
	assert.Equal(t, -1, comp.ChildIndex())
}

func TestCreateThenAck(t *testing.T) {
	s, f := newTestSession(t)
	x := NewObject("Actor", nil, NoFlags)
	child := NewObject("Component", nil, NoFlags)
	require.True(t, x.AddChild(child))
	x.Property().Set("name", property.NewString("x"))

	require.True(t, s.Create(x))
	assert.True(t, x.IsCreatePending())
	assert.True(t, child.IsCreatePending())
	assert.False(t, s.Create(x), "already syncing")
	require.Len(t, f.sent, 1)
	create := f.sent[0]
	assert.Equal(t, MsgCreate, create.Kind)
	require.Len(t, create.Object.Children, 1)
	assert.Equal(t, "x", property.AsValue(create.Object.Property.Get("name")).AsString())

	// edits before the ack wait for the id
	x.Property().Set("name", property.NewString("y"))
	require.Len(t, f.sent, 1)

	f.deliver(s, &Message{Kind: MsgCreateAck, RequestId: create.RequestId, Ids: []uint32{10, 11}})
	assert.True(t, x.IsCreated())
	assert.Equal(t, uint32(10), x.Id())
	assert.Equal(t, uint32(11), child.Id())
	assert.Equal(t, x, s.GetObject(10))
	require.Len(t, f.sent, 2)
	assert.Equal(t, MsgSet, f.sent[1].Kind)
	assert.Equal(t, uint32(10), f.sent[1].ObjectId)
	assert.Equal(t, []property.Segment{{Key: "name", Index: -1}}, f.sent[1].Path)
}

func TestDeleteBeforeCreateAck(t *testing.T) {
	s, f := newTestSession(t)
	var failed []*Object
	var deleted, confirmed int
	s.Events.CreateFailed.Add(func(o *Object) { failed = append(failed, o) })
	s.Events.Delete.Add(func(*Object) { deleted++ })
	s.Events.ConfirmDelete.Add(func(ConfirmDeleteEvent) { confirmed++ })

	x := NewObject("Actor", nil, NoFlags)
	require.True(t, s.Create(x))
	assert.True(t, x.IsCreatePending())
	req := f.sent[0].RequestId

	require.True(t, s.Delete(x))
	assert.True(t, x.IsDeletePending())
	assert.False(t, x.IsSyncing())
	assert.Len(t, f.sent, 1, "delete waits for the id")
	assert.Empty(t, s.GetRootObjects())

	f.deliver(s, &Message{Kind: MsgCreateAck, RequestId: req, Ids: []uint32{7}})
	assert.Equal(t, []*Object{x}, failed)
	require.Len(t, f.sent, 2)
	assert.Equal(t, MsgDelete, f.sent[1].Kind)
	assert.Equal(t, uint32(7), f.sent[1].ObjectId)
	assert.Nil(t, s.GetObject(7))

	f.deliver(s, &Message{Kind: MsgDeleteAck, ObjectId: 7})
	assert.Equal(t, 0, deleted)
	assert.Equal(t, 0, confirmed)
	assert.False(t, x.IsDeletePending())
	assert.False(t, x.IsCreated())
}

func TestCreateRejected(t *testing.T) {
	s, f := newTestSession(t)
	var failed int
	s.Events.CreateFailed.Add(func(*Object) { failed++ })
	x := NewObject("Actor", nil, NoFlags)
	require.True(t, s.Create(x))
	x.RequestLock()
	x.Property().Set("a", property.NewInt(1))

	f.deliver(s, &Message{Kind: MsgCreateFailed, RequestId: f.sent[0].RequestId})
	assert.Equal(t, 1, failed)
	assert.False(t, x.IsSyncing())
	assert.Nil(t, x.Session())
	assert.Empty(t, s.GetRootObjects())
	assert.Len(t, f.sent, 1, "held messages are dropped")
	assert.True(t, s.Create(x), "can retry")
}

func TestObjectLimit(t *testing.T) {
	s, f := newTestSession(t)
	f.limits["Actor"] = 1
	assert.True(t, s.Create(NewObject("Actor", nil, NoFlags)))
	assert.False(t, s.Create(NewObject("Actor", nil, NoFlags)))
	assert.Equal(t, uint32(1), s.GetObjectCount("Actor"))
	assert.Equal(t, 2, s.CreateBatch([]*Object{
		NewObject("Component", nil, NoFlags),
		NewObject("Component", nil, NoFlags),
	}))
}

func TestRemoteCreateAndProperties(t *testing.T) {
	s, f := newTestSession(t)
	var created []ChildEvent
	var changed []property.Property
	var removed []string
	var added []ListEvent
	s.Events.Create.Add(func(e ChildEvent) { created = append(created, e) })
	s.Events.PropertyChange.Add(func(p property.Property) { changed = append(changed, p) })
	s.Events.DictionaryRemove.Add(func(e DictionaryRemoveEvent) { removed = append(removed, e.Key) })
	s.Events.ListAdd.Add(func(e ListEvent) { added = append(added, e) })

	prop := property.NewDictionary()
	prop.Set("hp", property.NewInt(3))
	prop.Set("tags", property.NewList(property.NewString("a")))
	prop.Set("old", property.NewBool(true))
	f.deliver(s, &Message{Kind: MsgCreate, Object: &ObjectData{
		Id: 4, Type: "Actor", Property: prop,
		Children: []*ObjectData{{Id: 5, Type: "Component", Property: property.NewDictionary()}},
	}})
	require.Len(t, created, 1)
	o := s.GetObject(4)
	require.NotNil(t, o)
	assert.Equal(t, o, created[0].Object)
	assert.Equal(t, o, s.GetObject(5).Parent())
	hp := property.AsValue(o.Property().Get("hp"))

	f.deliver(s,
		&Message{Kind: MsgSet, ObjectId: 4, Path: []property.Segment{{Key: "hp", Index: -1}}, Property: property.NewInt(9)},
		&Message{Kind: MsgRemove, ObjectId: 4, Key: "old"},
		&Message{Kind: MsgListAdd, ObjectId: 4, Path: []property.Segment{{Key: "tags", Index: -1}}, Index: 1,
			Values: []property.Property{property.NewString("b")}},
	)
	assert.Equal(t, int32(9), hp.AsInt(), "values update in place")
	assert.False(t, o.Property().HasKey("old"))
	assert.Equal(t, []string{"old"}, removed)
	require.Len(t, added, 1)
	assert.Equal(t, 2, property.AsList(o.Property().Get("tags")).Size())
	assert.Len(t, changed, 1)
	assert.Len(t, f.sent, 0, "remote changes are not echoed")
	assert.False(t, s.EditsDisabled())
}

func TestLockEvents(t *testing.T) {
	s, f := newTestSession(t)
	f.deliver(s,
		&Message{Kind: MsgUserJoin, User: &UserData{Id: 2, Name: "bob"}},
		&Message{Kind: MsgCreate, Object: &ObjectData{Id: 1, Type: "Level", Property: property.NewDictionary(),
			Children: []*ObjectData{{Id: 2, Type: "Actor", Property: property.NewDictionary(),
				Children: []*ObjectData{{Id: 3, Type: "Component", Property: property.NewDictionary()}}}}}},
	)
	level, actor, comp := s.GetObject(1), s.GetObject(2), s.GetObject(3)
	var locks, unlocks, direct []*Object
	s.Events.Lock.Add(func(o *Object) { locks = append(locks, o) })
	s.Events.Unlock.Add(func(o *Object) { unlocks = append(unlocks, o) })
	s.Events.DirectLockChange.Add(func(o *Object) { direct = append(direct, o) })

	f.deliver(s, &Message{Kind: MsgLock, ObjectId: 2, UserId: 2})
	assert.Equal(t, []*Object{actor}, direct)
	assert.ElementsMatch(t, []*Object{level, actor, comp}, locks)
	assert.True(t, actor.IsLockedDirectly())
	assert.True(t, comp.IsFullyLocked())
	assert.False(t, comp.IsLockedDirectly())
	assert.True(t, level.IsPartiallyLocked())
	assert.False(t, level.IsFullyLocked())
	assert.Equal(t, "bob", comp.LockOwner().Name())

	// partial locks keep the object's own properties editable
	assert.True(t, level.CanEdit())
	assert.False(t, level.CanEditChildren())
	assert.False(t, actor.CanEdit())
	assert.False(t, comp.CanEdit())
	assert.False(t, s.Delete(actor))
	assert.False(t, s.Delete(level))

	actor.Property().Set("x", property.NewInt(1))
	assert.Empty(t, f.sent, "edits of locked objects are not sent")

	f.deliver(s, &Message{Kind: MsgUnlock, ObjectId: 2})
	assert.ElementsMatch(t, []*Object{level, actor, comp}, unlocks)
	assert.True(t, comp.CanEdit())
	assert.False(t, level.IsLocked())
}

func TestOwnLock(t *testing.T) {
	s, f := newTestSession(t)
	f.deliver(s, &Message{Kind: MsgCreate, Object: &ObjectData{Id: 1, Type: "Actor", Property: property.NewDictionary()}})
	o := s.GetObject(1)

	o.RequestLock()
	assert.True(t, o.IsLockPending())
	require.Len(t, f.sent, 1)
	assert.Equal(t, MsgLock, f.sent[0].Kind)

	f.deliver(s, &Message{Kind: MsgLock, ObjectId: 1, UserId: 1})
	assert.False(t, o.IsLockPending())
	assert.True(t, o.LockOwner().IsLocal())
	assert.False(t, o.IsLocked(), "our own locks do not lock us out")
	assert.True(t, o.CanEdit())

	o.ReleaseLock()
	assert.Nil(t, o.LockOwner())
	require.Len(t, f.sent, 2)
	assert.Equal(t, MsgUnlock, f.sent[1].Kind)
}

func TestUnsubscribe(t *testing.T) {
	s, f := newTestSession(t)
	f.deliver(s, &Message{Kind: MsgCreate, Object: &ObjectData{Id: 1, Type: "Level", Flags: OptionalChildren,
		Property: property.NewDictionary()}})
	lvl := s.GetObject(1)
	var acked []*Object
	var confirmed []ConfirmDeleteEvent
	s.Events.AcknowledgeSubscription.Add(func(o *Object) { acked = append(acked, o) })
	s.Events.ConfirmDelete.Add(func(e ConfirmDeleteEvent) { confirmed = append(confirmed, e) })

	require.True(t, s.SubscribeToChildren(lvl))
	f.deliver(s, &Message{Kind: MsgSubscribeAck, ObjectId: 1, Children: []*ObjectData{
		{Id: 2, Type: "Actor", Property: property.NewDictionary()},
	}})
	assert.Equal(t, []*Object{lvl}, acked)
	assert.Equal(t, 1, lvl.NumChildren())

	require.True(t, s.UnsubscribeFromChildren(lvl))
	assert.True(t, lvl.IsUnsubscriptionPending())
	assert.False(t, s.UnsubscribeFromChildren(lvl))
	f.deliver(s, &Message{Kind: MsgUnsubscribeAck, ObjectId: 1})
	require.Len(t, confirmed, 1)
	assert.True(t, confirmed[0].Unsubscribed)
	assert.Equal(t, 0, lvl.NumChildren())
	assert.Nil(t, s.GetObject(2))
}

func TestUsers(t *testing.T) {
	s, f := newTestSession(t)
	var joined, left, recolored int
	s.Events.UserJoin.Add(func(*User) { joined++ })
	s.Events.UserLeave.Add(func(*User) { left++ })
	s.Events.UserColorChange.Add(func(*User) { recolored++ })

	f.deliver(s, &Message{Kind: MsgUserJoin, User: &UserData{Id: 3, Name: "eve"}})
	f.deliver(s, &Message{Kind: MsgUserColor, UserId: 3, Color: Color{1, 0, 0}})
	assert.Equal(t, Color{1, 0, 0}, s.GetUser(3).Color())
	assert.Len(t, s.Users(), 2)
	f.deliver(s, &Message{Kind: MsgUserLeave, UserId: 3})
	assert.Equal(t, []int{1, 1, 1}, []int{joined, recolored, left})
	assert.Nil(t, s.GetUser(3))

	s.SetLocalUserColor(Color{0, 1, 0})
	assert.Equal(t, Color{0, 1, 0}, s.LocalUser().Color())

	require.NoError(t, s.Disconnect())
	assert.False(t, s.IsConnected())
	assert.Nil(t, s.LocalUser())
}

func TestEventRemove(t *testing.T) {
	var e Event[int]
	sum := 0
	id := e.Add(func(v int) { sum += v })
	e.Add(func(v int) { sum += 10 * v })
	e.Fire(1)
	e.Remove(id)
	e.Fire(1)
	assert.Equal(t, 21, sum)
	assert.Equal(t, 1, e.Len())
}
