package graph

import "github.com/drpcorg/scenesync/property"

func (s *Session) handle(m *Message) {
	switch m.Kind {
	case MsgWelcome:
		s.local = NewUser(m.User.Id, m.User.Name, m.User.Color, true)
		s.users[s.local.id] = s.local
		s.connected = true
	case MsgUserJoin:
		u := NewUser(m.User.Id, m.User.Name, m.User.Color, false)
		s.users[u.id] = u
		s.Events.UserJoin.Fire(u)
	case MsgUserLeave:
		if u, ok := s.users[m.UserId]; ok {
			delete(s.users, m.UserId)
			s.Events.UserLeave.Fire(u)
		}
	case MsgUserColor:
		if u, ok := s.users[m.UserId]; ok && !u.isLocal {
			u.color = m.Color
			s.Events.UserColorChange.Fire(u)
		}
	case MsgCreate:
		s.handleCreate(m)
	case MsgCreateAck:
		s.handleCreateAck(m)
	case MsgCreateFailed:
		s.handleCreateFailed(m)
	case MsgDelete:
		s.handleDelete(m)
	case MsgDeleteAck:
		s.handleDeleteAck(m)
	case MsgLock:
		if o := s.objects[m.ObjectId]; o != nil {
			u := s.users[m.UserId]
			if u == nil {
				s.log.Warn("lock by unknown user", "object", o.String(), "user", m.UserId)
				return
			}
			if u.isLocal {
				o.lockPending = false
			}
			s.setLockOwner(o, u)
		}
	case MsgUnlock:
		if o := s.objects[m.ObjectId]; o != nil {
			s.setLockOwner(o, nil)
		}
	case MsgParent:
		s.handleParent(m)
	case MsgSet, MsgRemove, MsgListAdd, MsgListRemove:
		s.handleProperty(m)
	case MsgSubscribeAck:
		s.handleSubscribeAck(m)
	case MsgUnsubscribeAck:
		s.handleUnsubscribeAck(m)
	default:
		s.log.Warn("unexpected message", "kind", string(m.Kind))
	}
}

func (s *Session) build(d *ObjectData, parent *Object) *Object {
	o := NewObject(d.Type, d.Property.Clone().(*property.Dictionary), d.Flags)
	o.id = d.Id
	o.session = s
	o.state = created
	o.parent = parent
	if d.LockOwner != 0 {
		o.owner = s.users[d.LockOwner]
	}
	s.objects[o.id] = o
	for _, cd := range d.Children {
		o.children = append(o.children, s.build(cd, o))
	}
	return o
}

func (s *Session) attach(o, parent *Object, index int) int {
	if parent == nil {
		if index < 0 || index > len(s.roots) {
			index = len(s.roots)
		}
		s.roots = insertAt(s.roots, index, o)
		o.parent = nil
		return index
	}
	if index < 0 || index > len(parent.children) {
		index = len(parent.children)
	}
	parent.children = insertAt(parent.children, index, o)
	o.parent = parent
	return index
}

func (s *Session) handleCreate(m *Message) {
	var parent *Object
	if m.ParentId != 0 {
		if parent = s.objects[m.ParentId]; parent == nil {
			return
		}
	}
	if s.objects[m.Object.Id] != nil {
		return
	}
	o := s.build(m.Object, parent)
	index := s.attach(o, parent, m.ChildIndex)
	s.Events.Create.Fire(ChildEvent{Object: o, ChildIndex: index})
}

func (s *Session) handleCreateAck(m *Message) {
	batch, ok := s.pending[m.RequestId]
	if !ok {
		return
	}
	delete(s.pending, m.RequestId)
	for i, o := range batch {
		if i >= len(m.Ids) {
			break
		}
		o.id = m.Ids[i]
		if o.deletePending {
			continue
		}
		o.state = created
		s.objects[o.id] = o
	}
	if batch[0].deletePending {
		// deleted before the server knew it, the delete goes out next
		s.Events.CreateFailed.Fire(batch[0])
	}
	s.flushHeld()
}

func (s *Session) handleCreateFailed(m *Message) {
	batch, ok := s.pending[m.RequestId]
	if !ok {
		return
	}
	delete(s.pending, m.RequestId)
	root := batch[0]
	in := make(map[*Object]bool, len(batch))
	for _, o := range batch {
		in[o] = true
	}
	kept := s.held[:0]
	for _, h := range s.held {
		if !in[h.obj] && !in[h.parent] {
			kept = append(kept, h)
		}
	}
	s.held = kept
	if !root.deletePending {
		root.detach()
	}
	for _, o := range batch {
		o.state = unsynced
		o.deletePending = false
		o.session = nil
		o.owner = nil
	}
	s.log.Warn("create rejected by server", "type", root.typ)
	s.Events.CreateFailed.Fire(root)
	s.flushHeld()
}

func (s *Session) forget(o *Object) {
	o.Walk(func(d *Object) bool {
		if s.objects[d.id] == d {
			delete(s.objects, d.id)
		}
		d.state = deleted
		d.owner = nil
		d.lockPending = false
		return true
	})
}

func (s *Session) handleDelete(m *Message) {
	o := s.objects[m.ObjectId]
	if o == nil {
		return
	}
	o.detach()
	s.forget(o)
	s.Events.Delete.Fire(o)
}

func (s *Session) handleDeleteAck(m *Message) {
	o, ok := s.deleting[m.ObjectId]
	if !ok {
		return
	}
	delete(s.deleting, m.ObjectId)
	wasCreated := o.state == created
	s.forget(o)
	o.Walk(func(d *Object) bool {
		d.deletePending = false
		return true
	})
	if wasCreated {
		s.Events.ConfirmDelete.Fire(ConfirmDeleteEvent{Object: o})
	}
}

func (s *Session) handleParent(m *Message) {
	o := s.objects[m.ObjectId]
	if o == nil {
		return
	}
	var parent *Object
	if m.ParentId != 0 {
		if parent = s.objects[m.ParentId]; parent == nil {
			// moved somewhere we do not see
			o.detach()
			s.forget(o)
			s.Events.Delete.Fire(o)
			return
		}
	}
	o.detach()
	index := s.attach(o, parent, m.ChildIndex)
	s.Events.ParentChange.Fire(ChildEvent{Object: o, ChildIndex: index})
}

func (s *Session) handleProperty(m *Message) {
	o := s.objects[m.ObjectId]
	if o == nil {
		return
	}
	s.applying++
	defer func() { s.applying-- }()

	switch m.Kind {
	case MsgSet:
		s.applySet(o, m)
	case MsgRemove:
		d, ok := property.Resolve(o.prop, m.Path).(*property.Dictionary)
		if ok && d.Remove(m.Key) {
			s.Events.DictionaryRemove.Fire(DictionaryRemoveEvent{Dictionary: d, Key: m.Key})
		}
	case MsgListAdd:
		l, ok := property.Resolve(o.prop, m.Path).(*property.List)
		if !ok || m.Index < 0 || m.Index > l.Size() || len(m.Values) == 0 {
			return
		}
		vals := make([]property.Property, len(m.Values))
		for i, v := range m.Values {
			vals[i] = v.Clone()
		}
		l.InsertRange(m.Index, vals...)
		s.Events.ListAdd.Fire(ListEvent{List: l, Index: m.Index, Count: len(vals)})
	case MsgListRemove:
		l, ok := property.Resolve(o.prop, m.Path).(*property.List)
		if !ok || m.Index < 0 || m.Count <= 0 || m.Index+m.Count > l.Size() {
			return
		}
		l.RemoveRange(m.Index, m.Count)
		s.Events.ListRemove.Fire(ListEvent{List: l, Index: m.Index, Count: m.Count})
	}
}

func (s *Session) applySet(o *Object, m *Message) {
	if len(m.Path) == 0 || m.Property == nil {
		return
	}
	switch cur := property.Resolve(o.prop, m.Path).(type) {
	case *property.Value:
		if v, ok := m.Property.(*property.Value); ok {
			cur.Set(v)
			s.Events.PropertyChange.Fire(cur)
			return
		}
	case *property.Reference:
		if r, ok := m.Property.(*property.Reference); ok {
			cur.SetObjectId(r.ObjectId())
			s.Events.PropertyChange.Fire(cur)
			return
		}
	}
	last := m.Path[len(m.Path)-1]
	val := m.Property.Clone()
	switch parent := property.Resolve(o.prop, m.Path[:len(m.Path)-1]).(type) {
	case *property.Dictionary:
		if last.IsIndex() {
			return
		}
		parent.Set(last.Key, val)
	case *property.List:
		if !last.IsIndex() || last.Index >= parent.Size() {
			return
		}
		parent.Set(last.Index, val)
	default:
		return
	}
	s.Events.PropertyChange.Fire(val)
}

func (s *Session) handleSubscribeAck(m *Message) {
	o := s.objects[m.ObjectId]
	if o == nil {
		return
	}
	for _, cd := range m.Children {
		if s.objects[cd.Id] != nil {
			continue
		}
		c := s.build(cd, o)
		index := s.attach(c, o, -1)
		s.Events.Create.Fire(ChildEvent{Object: c, ChildIndex: index})
	}
	s.Events.AcknowledgeSubscription.Fire(o)
}

func (s *Session) handleUnsubscribeAck(m *Message) {
	o := s.objects[m.ObjectId]
	if o == nil {
		return
	}
	o.unsubscribePending = false
	for _, c := range o.Children() {
		c.detach()
		s.forget(c)
		s.Events.ConfirmDelete.Fire(ConfirmDeleteEvent{Object: c, Unsubscribed: true})
	}
}

// setLockOwner changes the direct lock of o and fires the lock events for
// o, its ancestors and its descendants.
func (s *Session) setLockOwner(o *Object, u *User) {
	if o.owner == u {
		return
	}
	type before struct {
		locked bool
		owner  *User
	}
	var affected []*Object
	for a := o.parent; a != nil; a = a.parent {
		affected = append(affected, a)
	}
	o.Walk(func(d *Object) bool {
		affected = append(affected, d)
		return true
	})
	prev := make([]before, len(affected))
	for i, a := range affected {
		prev[i] = before{a.IsLocked(), a.LockOwner()}
	}

	o.owner = u
	if s.log != nil && u != nil {
		s.log.Debug("lock owner changed", "object", o.String(), "user", u.String())
	}
	s.Events.DirectLockChange.Fire(o)
	for i, a := range affected {
		if a.LockOwner() != prev[i].owner {
			s.Events.LockOwnerChange.Fire(a)
		}
		switch locked := a.IsLocked(); {
		case locked && !prev[i].locked:
			s.Events.Lock.Fire(a)
		case !locked && prev[i].locked:
			s.Events.Unlock.Fire(a)
		}
	}
}
