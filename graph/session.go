package graph

import (
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/utils"
)

// Session is the local replica of the shared object graph. It is not safe
// for concurrent use; every call happens on the update thread.
type Session struct {
	Events Events

	service Service
	log     utils.Logger

	objects  map[uint32]*Object
	roots    []*Object
	deleting map[uint32]*Object

	users map[uint32]*User
	local *User

	strings map[string]uint32
	ids     map[uint32]string

	nextRequest uint32
	pending     map[uint32][]*Object
	held        []*Message

	applying  int
	connected bool
}

func NewSession(service Service, log utils.Logger) *Session {
	return &Session{
		service:  service,
		log:      log,
		objects:  make(map[uint32]*Object),
		deleting: make(map[uint32]*Object),
		users:    make(map[uint32]*User),
		strings:  make(map[string]uint32),
		ids:      make(map[uint32]string),
		pending:  make(map[uint32][]*Object),
	}
}

func (s *Session) Logger() utils.Logger { return s.log }

func (s *Session) IsConnected() bool {
	return s.connected && s.service.Connected()
}

// LocalUser is nil until the server welcomed us.
func (s *Session) LocalUser() *User { return s.local }

func (s *Session) GetUser(id uint32) *User { return s.users[id] }

func (s *Session) Users() []*User {
	ret := make([]*User, 0, len(s.users))
	for _, u := range s.users {
		ret = append(ret, u)
	}
	return ret
}

// EditsDisabled is true while server changes are being applied.
func (s *Session) EditsDisabled() bool { return s.applying > 0 }

// Create starts syncing a root object and the descendants attached to it.
// It does nothing and returns false if o is already syncing, is not a
// root, is locked, or its type reached the object limit.
func (s *Session) Create(o *Object) bool {
	return s.create(o, nil, -1)
}

// CreateChild starts syncing o as a child of parent at index. A negative
// index appends.
func (s *Session) CreateChild(o, parent *Object, index int) bool {
	if parent == nil {
		return false
	}
	return s.create(o, parent, index)
}

// CreateBatch creates every object of objs, returning how many were sent.
func (s *Session) CreateBatch(objs []*Object) (n int) {
	for _, o := range objs {
		if s.Create(o) {
			n++
		}
	}
	return
}

func (s *Session) create(o, parent *Object, index int) bool {
	if o == nil || o.IsSyncing() || o.deletePending {
		return false
	}
	if parent == nil && o.parent != nil {
		return false
	}
	if o.IsLocked() {
		return false
	}
	if parent != nil && (parent.session != s || !parent.IsSyncing() || !parent.CanEditChildren()) {
		return false
	}
	if s.GetObjectCount(o.typ) >= s.GetObjectLimit(o.typ) {
		s.log.Warn("object limit reached, not creating", "type", o.typ, "limit", s.GetObjectLimit(o.typ))
		return false
	}

	if parent != nil {
		if o.parent != nil {
			o.detach()
		}
		if index < 0 || index > len(parent.children) {
			index = len(parent.children)
		}
		parent.children = insertAt(parent.children, index, o)
		o.parent = parent
	} else {
		s.roots = append(s.roots, o)
		index = len(s.roots) - 1
	}

	s.nextRequest++
	req := s.nextRequest
	var batch []*Object
	data := s.snapshot(o, &batch)
	s.pending[req] = batch
	s.send(&Message{Kind: MsgCreate, RequestId: req, parent: parent, ChildIndex: index, Object: data})
	return true
}

func (s *Session) snapshot(o *Object, batch *[]*Object) *ObjectData {
	o.session = s
	o.state = createPending
	o.id = 0
	*batch = append(*batch, o)
	d := &ObjectData{
		Type:     o.typ,
		Flags:    o.flags,
		Property: o.prop.Clone().(*property.Dictionary),
		Lock:     o.lockPending,
	}
	for _, c := range o.children {
		if c.IsSyncing() {
			continue
		}
		d.Children = append(d.Children, s.snapshot(c, batch))
	}
	return d
}

// Delete removes o and its descendants locally and on the server.
func (s *Session) Delete(o *Object) bool {
	if o == nil || o.session != s || !o.IsSyncing() {
		return false
	}
	if o.IsLocked() {
		return false
	}
	if o.parent != nil && o.parent.IsSyncing() && !o.parent.CanEditChildren() {
		return false
	}
	o.detach()
	o.Walk(func(d *Object) bool {
		d.deletePending = true
		if d.id != 0 {
			delete(s.objects, d.id)
		}
		return true
	})
	s.send(&Message{Kind: MsgDelete, obj: o})
	return true
}

// GetObject returns nil for unknown ids.
func (s *Session) GetObject(id uint32) *Object { return s.objects[id] }

func (s *Session) GetRootObjects() []*Object {
	return append([]*Object{}, s.roots...)
}

// GetReferences returns the reference properties pointing at o.
func (s *Session) GetReferences(o *Object) []*property.Reference {
	if o == nil || o.id == 0 {
		return nil
	}
	var refs []*property.Reference
	for _, obj := range s.objects {
		property.Walk(obj.prop, func(p property.Property) bool {
			if r, ok := p.(*property.Reference); ok && r.ObjectId() == o.id {
				refs = append(refs, r)
			}
			return true
		})
	}
	return refs
}

// Objects calls fn for every created object until fn returns false.
func (s *Session) Objects(fn func(o *Object) bool) {
	for _, r := range s.GetRootObjects() {
		stop := false
		r.Walk(func(o *Object) bool {
			if stop {
				return false
			}
			if o.IsCreated() && !fn(o) {
				stop = true
			}
			return !stop
		})
		if stop {
			return
		}
	}
}

func (s *Session) GetStringTableId(str string) uint32 {
	if id, ok := s.strings[str]; ok {
		return id
	}
	id := s.service.StringTableId(str)
	s.strings[str] = id
	s.ids[id] = str
	return id
}

// GetStringFromTable returns "" for unknown ids.
func (s *Session) GetStringFromTable(id uint32) string {
	str, _ := s.TryGetStringFromTable(id)
	return str
}

func (s *Session) TryGetStringFromTable(id uint32) (string, bool) {
	if str, ok := s.ids[id]; ok {
		return str, true
	}
	str, ok := s.service.StringFromTable(id)
	if ok {
		s.strings[str] = id
		s.ids[id] = str
	}
	return str, ok
}

// GetObjectCount counts syncing objects of type t, pending creates included.
func (s *Session) GetObjectCount(t string) (n uint32) {
	for _, o := range s.objects {
		if o.typ == t {
			n++
		}
	}
	for _, batch := range s.pending {
		for _, o := range batch {
			if o.typ == t && !o.deletePending {
				n++
			}
		}
	}
	return
}

func (s *Session) GetObjectLimit(t string) uint32 {
	return s.service.ObjectLimit(t)
}

// SubscribeToChildren asks for the children of an OptionalChildren object.
func (s *Session) SubscribeToChildren(o *Object) bool {
	if o == nil || !o.IsCreated() || o.flags&OptionalChildren == 0 {
		return false
	}
	s.send(&Message{Kind: MsgSubscribe, obj: o})
	return true
}

func (s *Session) UnsubscribeFromChildren(o *Object) bool {
	if o == nil || !o.IsCreated() || o.flags&OptionalChildren == 0 || o.unsubscribePending {
		return false
	}
	o.unsubscribePending = true
	s.send(&Message{Kind: MsgUnsubscribe, obj: o})
	return true
}

// SetLocalUserColor changes our color for everyone.
func (s *Session) SetLocalUserColor(c Color) {
	if s.local == nil {
		return
	}
	s.local.color = c
	s.service.Send(&Message{Kind: MsgUserColor, UserId: s.local.id, Color: c})
}

// Update processes everything the server sent since the last call.
func (s *Session) Update() {
	for _, msg := range s.service.Poll() {
		s.handle(msg)
	}
}

// Disconnect closes the service and forgets all remote state.
func (s *Session) Disconnect() error {
	err := s.service.Close()
	s.connected = false
	for _, r := range s.roots {
		r.Walk(func(o *Object) bool {
			o.state = unsynced
			o.id = 0
			o.owner = nil
			o.lockPending = false
			o.deletePending = false
			return true
		})
	}
	s.roots = nil
	s.objects = make(map[uint32]*Object)
	s.deleting = make(map[uint32]*Object)
	s.pending = make(map[uint32][]*Object)
	s.held = nil
	s.users = make(map[uint32]*User)
	s.local = nil
	return err
}

func (s *Session) ready(m *Message) bool {
	return (m.obj == nil || m.obj.id != 0) && (m.parent == nil || m.parent.id != 0)
}

// send keeps messages in order; everything queued behind a message about
// a not yet acknowledged object waits with it.
func (s *Session) send(m *Message) {
	if len(s.held) > 0 || !s.ready(m) {
		s.held = append(s.held, m)
		return
	}
	s.transmit(m)
}

func (s *Session) transmit(m *Message) {
	if m.obj != nil {
		m.ObjectId = m.obj.id
	}
	if m.parent != nil {
		m.ParentId = m.parent.id
	}
	if m.Kind == MsgDelete {
		s.deleting[m.ObjectId] = m.obj
	}
	s.service.Send(m)
}

func (s *Session) flushHeld() {
	for len(s.held) > 0 && s.ready(s.held[0]) {
		m := s.held[0]
		s.held = s.held[1:]
		s.transmit(m)
	}
}

func (s *Session) onLocalChange(o *Object, c property.Change) {
	if s.applying > 0 || !o.IsSyncing() {
		return
	}
	if o.IsFullyLocked() {
		s.log.Debug("local edit of a locked object is not sent", "object", o.String())
		return
	}
	msg := &Message{obj: o, Path: property.Segments(c.Property)}
	switch c.Kind {
	case property.ChangeSet:
		if len(msg.Path) == 0 {
			return
		}
		msg.Kind = MsgSet
		msg.Property = c.Property.Clone()
	case property.ChangeRemove:
		msg.Kind = MsgRemove
		msg.Key = c.Key
	case property.ChangeListAdd:
		list := property.AsList(c.Property)
		msg.Kind = MsgListAdd
		msg.Index = c.Index
		for i := c.Index; i < c.Index+c.Count; i++ {
			msg.Values = append(msg.Values, list.Get(i).Clone())
		}
	case property.ChangeListRemove:
		msg.Kind = MsgListRemove
		msg.Index = c.Index
		msg.Count = c.Count
	}
	s.send(msg)
}
