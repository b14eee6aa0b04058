package server

import (
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
)

func lockedByOther(r *record, uid uint32) bool {
	return r.owner != 0 && r.owner != uid
}

func fullyLockedFor(r *record, uid uint32) bool {
	for a := r; a != nil; a = a.parent {
		if lockedByOther(a, uid) {
			return true
		}
	}
	return false
}

func descendantLockedFor(r *record, uid uint32) bool {
	for _, c := range r.children {
		if lockedByOther(c, uid) || descendantLockedFor(c, uid) {
			return true
		}
	}
	return false
}

// canEditChildren is true for the root level (nil) and for objects nobody
// else holds a lock in or above.
func canEditChildren(r *record, uid uint32) bool {
	return r == nil || (!fullyLockedFor(r, uid) && !descendantLockedFor(r, uid))
}

func isAncestor(a, r *record) bool {
	for p := r.parent; p != nil; p = p.parent {
		if p == a {
			return true
		}
	}
	return false
}

func without(list []uint32, v uint32) []uint32 {
	for i, x := range list {
		if x == v {
			return append(list[:i:i], list[i+1:]...)
		}
	}
	return list
}

func (s *Server) visible(r *record, c *Conn) bool {
	for a := r.parent; a != nil; a = a.parent {
		if a.flags&graph.OptionalChildren != 0 && !c.subs[a.id] {
			return false
		}
	}
	return true
}

func (s *Server) visibleTo(r *record, except *Conn) (ret []*Conn) {
	for _, c := range s.sortedConns() {
		if c != except && s.visible(r, c) {
			ret = append(ret, c)
		}
	}
	return
}

// broadcast sends m to everyone but except who can see r. A nil r means
// everyone.
func (s *Server) broadcast(except *Conn, m *graph.Message, r *record) {
	for _, c := range s.sortedConns() {
		if c != except && (r == nil || s.visible(r, c)) {
			c.send(m)
		}
	}
}

func (s *Server) data(r *record, c *Conn) *graph.ObjectData {
	d := &graph.ObjectData{
		Id:        r.id,
		Type:      r.typ,
		Flags:     r.flags,
		Property:  r.prop.Clone().(*property.Dictionary),
		LockOwner: r.owner,
	}
	if r.flags&graph.OptionalChildren == 0 || c.subs[r.id] {
		for _, ch := range r.children {
			d.Children = append(d.Children, s.data(ch, c))
		}
	}
	return d
}

func parentId(r *record) uint32 {
	if r.parent == nil {
		return 0
	}
	return r.parent.id
}

func (s *Server) siblings(r *record) *[]*record {
	if r.parent == nil {
		return &s.roots
	}
	return &r.parent.children
}

func (s *Server) indexOf(r *record) int {
	for i, x := range *s.siblings(r) {
		if x == r {
			return i
		}
	}
	return -1
}

func (s *Server) detach(r *record) {
	list := s.siblings(r)
	if i := s.indexOf(r); i >= 0 {
		*list = append((*list)[:i], (*list)[i+1:]...)
	}
	r.parent = nil
}

func (s *Server) attach(r, parent *record, index int) int {
	r.parent = parent
	list := s.siblings(r)
	if index < 0 || index > len(*list) {
		index = len(*list)
	}
	*list = append(*list, nil)
	copy((*list)[index+1:], (*list)[index:])
	(*list)[index] = r
	return index
}

func (s *Server) remove(r *record) {
	s.detach(r)
	var drop func(r *record)
	drop = func(r *record) {
		delete(s.objects, r.id)
		for _, c := range r.children {
			drop(c)
		}
	}
	drop(r)
	s.dirty = true
}

func (s *Server) countType(t string) (n uint32) {
	for _, r := range s.objects {
		if r.typ == t {
			n++
		}
	}
	return
}

func (s *Server) onCreate(c *Conn, m *graph.Message) {
	fail := func(why string) {
		s.reject(m, why)
		c.send(&graph.Message{Kind: graph.MsgCreateFailed, RequestId: m.RequestId})
	}
	if m.Object == nil {
		fail("empty create")
		return
	}
	var parent *record
	if m.ParentId != 0 {
		if parent = s.objects[m.ParentId]; parent == nil {
			fail("parent is gone")
			return
		}
	}
	uid := c.user.Id
	if !canEditChildren(parent, uid) {
		fail("parent is locked")
		return
	}
	counts := make(map[string]uint32)
	m.Object.Walk(func(d *graph.ObjectData) { counts[d.Type]++ })
	for t, n := range counts {
		if s.countType(t)+n > s.ObjectLimit(t) {
			fail("object limit")
			return
		}
	}

	var ids []uint32
	var locked []*record
	var build func(d *graph.ObjectData, parent *record) *record
	build = func(d *graph.ObjectData, parent *record) *record {
		s.nextId++
		r := &record{
			id:      s.nextId,
			typ:     d.Type,
			flags:   d.Flags,
			prop:    d.Property.Clone().(*property.Dictionary),
			parent:  parent,
			creator: uid,
		}
		s.objects[r.id] = r
		ids = append(ids, r.id)
		if d.Lock && !fullyLockedFor(r, uid) {
			r.owner = uid
			locked = append(locked, r)
		}
		for _, cd := range d.Children {
			r.children = append(r.children, build(cd, r))
		}
		return r
	}
	root := build(m.Object, parent)
	root.parent = nil
	index := s.attach(root, parent, m.ChildIndex)

	c.send(&graph.Message{Kind: graph.MsgCreateAck, RequestId: m.RequestId, Ids: ids})
	for _, other := range s.visibleTo(root, c) {
		other.send(&graph.Message{
			Kind:       graph.MsgCreate,
			ParentId:   parentId(root),
			ChildIndex: index,
			UserId:     uid,
			Object:     s.data(root, other),
		})
	}
	for _, r := range locked {
		s.broadcast(nil, &graph.Message{Kind: graph.MsgLock, ObjectId: r.id, UserId: uid}, r)
	}
	s.dirty = true
}

func (s *Server) onDelete(c *Conn, m *graph.Message) {
	r := s.objects[m.ObjectId]
	if r == nil {
		c.send(&graph.Message{Kind: graph.MsgDeleteAck, ObjectId: m.ObjectId})
		return
	}
	uid := c.user.Id
	if fullyLockedFor(r, uid) || descendantLockedFor(r, uid) || !canEditChildren(r.parent, uid) {
		s.reject(m, "locked")
		// put it back on the client that deleted it
		c.send(&graph.Message{
			Kind:       graph.MsgCreate,
			ParentId:   parentId(r),
			ChildIndex: s.indexOf(r),
			Object:     s.data(r, c),
		})
		return
	}
	targets := s.visibleTo(r, c)
	s.remove(r)
	c.send(&graph.Message{Kind: graph.MsgDeleteAck, ObjectId: r.id})
	for _, t := range targets {
		t.send(&graph.Message{Kind: graph.MsgDelete, ObjectId: r.id})
	}
	s.grantWaiting()
}

func (s *Server) grantable(r *record, uid uint32) bool {
	return !fullyLockedFor(r, uid) && !descendantLockedFor(r, uid)
}

func (s *Server) onLock(c *Conn, m *graph.Message) {
	r := s.objects[m.ObjectId]
	uid := c.user.Id
	if r == nil || r.owner == uid {
		return
	}
	if s.grantable(r, uid) {
		r.owner = uid
		s.broadcast(nil, &graph.Message{Kind: graph.MsgLock, ObjectId: r.id, UserId: uid}, r)
		return
	}
	for _, w := range r.waiting {
		if w == uid {
			return
		}
	}
	r.waiting = append(r.waiting, uid)
}

func (s *Server) onUnlock(c *Conn, m *graph.Message) {
	r := s.objects[m.ObjectId]
	if r == nil {
		return
	}
	uid := c.user.Id
	r.waiting = without(r.waiting, uid)
	if r.owner != uid {
		return
	}
	r.owner = 0
	s.broadcast(nil, &graph.Message{Kind: graph.MsgUnlock, ObjectId: r.id}, r)
	s.grantWaiting()
}

// grantWaiting hands out queued lock requests that became grantable, in
// object id then request order.
func (s *Server) grantWaiting() {
	for granted := true; granted; {
		granted = false
		for _, r := range s.sortedRecords() {
			if r.owner != 0 {
				continue
			}
			for _, uid := range r.waiting {
				if _, ok := s.conns[uid]; !ok || !s.grantable(r, uid) {
					continue
				}
				r.waiting = without(r.waiting, uid)
				r.owner = uid
				s.broadcast(nil, &graph.Message{Kind: graph.MsgLock, ObjectId: r.id, UserId: uid}, r)
				granted = true
				break
			}
		}
	}
}

func (s *Server) onParent(c *Conn, m *graph.Message) {
	r := s.objects[m.ObjectId]
	if r == nil {
		return
	}
	uid := c.user.Id
	var np *record
	ok := true
	if m.ParentId != 0 {
		np = s.objects[m.ParentId]
		ok = np != nil && np != r && !isAncestor(r, np)
	}
	ok = ok && !fullyLockedFor(r, uid) && !descendantLockedFor(r, uid) &&
		canEditChildren(r.parent, uid) && canEditChildren(np, uid)
	if !ok {
		s.reject(m, "move not allowed")
		c.send(&graph.Message{Kind: graph.MsgParent, ObjectId: r.id, ParentId: parentId(r), ChildIndex: s.indexOf(r)})
		return
	}

	before := make(map[*Conn]bool)
	for _, t := range s.visibleTo(r, c) {
		before[t] = true
	}
	s.detach(r)
	index := s.attach(r, np, m.ChildIndex)
	for _, t := range s.sortedConns() {
		if t == c {
			continue
		}
		after := s.visible(r, t)
		switch {
		case before[t] && after:
			t.send(&graph.Message{Kind: graph.MsgParent, ObjectId: r.id, ParentId: parentId(r), ChildIndex: index})
		case !before[t] && after:
			t.send(&graph.Message{Kind: graph.MsgCreate, ParentId: parentId(r), ChildIndex: index, Object: s.data(r, t)})
		case before[t] && !after:
			t.send(&graph.Message{Kind: graph.MsgDelete, ObjectId: r.id})
		}
	}
	s.dirty = true
}

func (s *Server) onProperty(c *Conn, m *graph.Message) {
	r := s.objects[m.ObjectId]
	if r == nil {
		return
	}
	if fullyLockedFor(r, c.user.Id) {
		s.reject(m, "locked")
		s.revertField(c, r, m)
		return
	}
	if !applyChange(r.prop, m) {
		s.reject(m, "path not found")
		s.revertField(c, r, m)
		return
	}
	s.broadcast(c, m, r)
	s.dirty = true
}

// revertField sends the server's version of the top-level field m touched.
func (s *Server) revertField(c *Conn, r *record, m *graph.Message) {
	key := m.Key
	if len(m.Path) > 0 {
		key = m.Path[0].Key
	}
	if key == "" {
		return
	}
	if v := r.prop.Get(key); v != nil {
		c.send(&graph.Message{
			Kind:     graph.MsgSet,
			ObjectId: r.id,
			Path:     []property.Segment{{Key: key, Index: -1}},
			Property: v.Clone(),
		})
		return
	}
	c.send(&graph.Message{Kind: graph.MsgRemove, ObjectId: r.id, Key: key})
}

func applyChange(root *property.Dictionary, m *graph.Message) bool {
	switch m.Kind {
	case graph.MsgSet:
		if len(m.Path) == 0 || m.Property == nil {
			return false
		}
		last := m.Path[len(m.Path)-1]
		switch parent := property.Resolve(root, m.Path[:len(m.Path)-1]).(type) {
		case *property.Dictionary:
			if last.IsIndex() {
				return false
			}
			parent.Set(last.Key, m.Property.Clone())
			return true
		case *property.List:
			if !last.IsIndex() || last.Index >= parent.Size() {
				return false
			}
			parent.Set(last.Index, m.Property.Clone())
			return true
		}
		return false
	case graph.MsgRemove:
		d, ok := property.Resolve(root, m.Path).(*property.Dictionary)
		return ok && d.Remove(m.Key)
	case graph.MsgListAdd:
		l, ok := property.Resolve(root, m.Path).(*property.List)
		if !ok || m.Index < 0 || m.Index > l.Size() {
			return false
		}
		vals := make([]property.Property, len(m.Values))
		for i, v := range m.Values {
			vals[i] = v.Clone()
		}
		l.InsertRange(m.Index, vals...)
		return true
	case graph.MsgListRemove:
		l, ok := property.Resolve(root, m.Path).(*property.List)
		if !ok || m.Index < 0 || m.Count <= 0 || m.Index+m.Count > l.Size() {
			return false
		}
		l.RemoveRange(m.Index, m.Count)
		return true
	}
	return false
}

func (s *Server) onSubscribe(c *Conn, m *graph.Message) {
	r := s.objects[m.ObjectId]
	if r == nil {
		return
	}
	c.subs[r.id] = true
	ack := &graph.Message{Kind: graph.MsgSubscribeAck, ObjectId: r.id}
	for _, ch := range r.children {
		ack.Children = append(ack.Children, s.data(ch, c))
	}
	c.send(ack)
}
