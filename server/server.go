// Package server is an in-process authoritative session server. It assigns
// object ids, interns strings, arbitrates locks, relays changes between the
// connected clients and optionally persists the session in a store.
//
// Clients talk to it through Conn, which implements graph.Service. Messages
// are queued and handled in arrival order when any client polls.
package server

import (
	"sort"
	"sync"
	"sync/atomic"

	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/store"
	"github.com/drpcorg/scenesync/utils"
	"github.com/learn-decentralized-systems/toyqueue"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

type Options struct {
	// ObjectLimits caps the number of objects per type.
	ObjectLimits map[string]uint32
	// OutboxLimit is the number of messages a client may have pending
	// before it is dropped.
	OutboxLimit int
}

const DefaultOutboxLimit = 1 << 20

type record struct {
	id       uint32
	typ      string
	flags    graph.Flags
	prop     *property.Dictionary
	parent   *record
	children []*record
	owner    uint32
	creator  uint32
	waiting  []uint32
}

type envelope struct {
	conn *Conn
	msg  *graph.Message
}

type Server struct {
	mu   sync.Mutex
	log  utils.Logger
	opts Options

	objects map[uint32]*record
	roots   []*record
	nextId  uint32

	strings *xsync.MapOf[string, uint32]
	ids     *xsync.MapOf[uint32, string]
	nextStr atomic.Uint32

	conns    map[uint32]*Conn
	nextUser uint32
	inbox    []envelope

	store *store.Store
	dirty bool
}

// New makes a server. With a non-nil store the saved session is loaded and
// every processed batch of messages is saved back.
func New(opts Options, log utils.Logger, st *store.Store) (*Server, error) {
	if opts.OutboxLimit <= 0 {
		opts.OutboxLimit = DefaultOutboxLimit
	}
	s := &Server{
		log:     log,
		opts:    opts,
		objects: make(map[uint32]*record),
		strings: xsync.NewMapOf[string, uint32](),
		ids:     xsync.NewMapOf[uint32, string](),
		conns:   make(map[uint32]*Conn),
		store:   st,
	}
	if st != nil {
		if err := s.load(); err != nil {
			return nil, errors.Wrap(err, "load session")
		}
	}
	return s, nil
}

func (s *Server) load() error {
	snap, err := s.store.Load()
	if err != nil {
		return err
	}
	for id, str := range snap.Strings {
		s.strings.Store(str, id)
		s.ids.Store(id, str)
		if id > s.nextStr.Load() {
			s.nextStr.Store(id)
		}
	}
	index := make(map[uint32]uint32, len(snap.Objects))
	for _, rec := range snap.Objects {
		s.objects[rec.Id] = &record{
			id:      rec.Id,
			typ:     rec.Type,
			flags:   graph.Flags(rec.Flags),
			prop:    rec.Property,
			creator: rec.Creator,
		}
		index[rec.Id] = rec.ChildIndex
		if rec.Id > s.nextId {
			s.nextId = rec.Id
		}
	}
	for _, rec := range snap.Objects {
		r := s.objects[rec.Id]
		if parent := s.objects[rec.ParentId]; parent != nil {
			r.parent = parent
			parent.children = append(parent.children, r)
		} else {
			s.roots = append(s.roots, r)
		}
	}
	byIndex := func(list []*record) {
		sort.SliceStable(list, func(i, j int) bool { return index[list[i].id] < index[list[j].id] })
	}
	byIndex(s.roots)
	for _, r := range s.objects {
		byIndex(r.children)
	}
	ObjectCount.Set(float64(len(s.objects)))
	s.log.Info("session loaded", "objects", len(s.objects), "strings", len(snap.Strings))
	return nil
}

func (s *Server) save() {
	snap := &store.Snapshot{Strings: make(map[uint32]string)}
	var walk func(list []*record, parent uint32)
	walk = func(list []*record, parent uint32) {
		for i, r := range list {
			if r.flags&graph.Transient != 0 {
				continue
			}
			snap.Objects = append(snap.Objects, store.ObjectRecord{
				Id:         r.id,
				ParentId:   parent,
				ChildIndex: uint32(i),
				Type:       r.typ,
				Flags:      uint8(r.flags),
				Creator:    r.creator,
				Property:   r.prop,
			})
			walk(r.children, r.id)
		}
	}
	walk(s.roots, 0)
	s.ids.Range(func(id uint32, str string) bool {
		snap.Strings[id] = str
		return true
	})
	if err := s.store.Save(snap); err != nil {
		s.log.Error("session save failed", "err", err)
		return
	}
	s.dirty = false
}

// Store is the store the session persists to; nil when in memory.
func (s *Server) Store() *store.Store { return s.store }

// Intern returns the string table id of str, adding it if needed.
func (s *Server) Intern(str string) uint32 {
	id, _ := s.strings.LoadOrCompute(str, func() uint32 {
		id := s.nextStr.Add(1)
		s.ids.Store(id, str)
		return id
	})
	return id
}

func (s *Server) ObjectLimit(t string) uint32 {
	if l, ok := s.opts.ObjectLimits[t]; ok {
		return l
	}
	return graph.NoLimit
}

// NumObjects counts the objects of the session.
func (s *Server) NumObjects() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Connect adds a user. The new connection receives a welcome, the other
// users, and every object it can see.
func (s *Server) Connect(name string, color graph.Color) *Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextUser++
	c := &Conn{
		srv:    s,
		user:   graph.UserData{Id: s.nextUser, Name: name, Color: color},
		outbox: toyqueue.RecordQueue{Limit: s.opts.OutboxLimit},
		subs:   make(map[uint32]bool),
	}
	welcome := c.user
	c.send(&graph.Message{Kind: graph.MsgWelcome, User: &welcome})
	for _, other := range s.sortedConns() {
		ou, nu := other.user, c.user
		c.send(&graph.Message{Kind: graph.MsgUserJoin, User: &ou})
		other.send(&graph.Message{Kind: graph.MsgUserJoin, User: &nu})
	}
	s.conns[c.user.Id] = c
	for i, r := range s.roots {
		c.send(&graph.Message{Kind: graph.MsgCreate, ChildIndex: i, Object: s.data(r, c)})
	}
	UserCount.Set(float64(len(s.conns)))
	s.log.Info("user connected", "user", name, "id", c.user.Id)
	return c
}

func (s *Server) sortedConns() []*Conn {
	ret := make([]*Conn, 0, len(s.conns))
	for _, c := range s.conns {
		ret = append(ret, c)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].user.Id < ret[j].user.Id })
	return ret
}

func (s *Server) disconnect(c *Conn) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.drop(c)
}

// drop removes c from the session; the server lock is held.
func (s *Server) drop(c *Conn) {
	if c.closed {
		return
	}
	c.closed = true
	_ = c.outbox.Close()
	delete(s.conns, c.user.Id)
	uid := c.user.Id
	for _, r := range s.sortedRecords() {
		r.waiting = without(r.waiting, uid)
		if r.owner == uid {
			r.owner = 0
			s.broadcast(nil, &graph.Message{Kind: graph.MsgUnlock, ObjectId: r.id}, r)
		}
	}
	var transient []*record
	for _, r := range s.sortedRecords() {
		if r.flags&graph.Transient != 0 && r.creator == uid && !s.hasTransientAncestor(r, uid) {
			transient = append(transient, r)
		}
	}
	for _, r := range transient {
		targets := s.visibleTo(r, nil)
		s.remove(r)
		for _, t := range targets {
			t.send(&graph.Message{Kind: graph.MsgDelete, ObjectId: r.id})
		}
	}
	s.broadcast(nil, &graph.Message{Kind: graph.MsgUserLeave, UserId: uid}, nil)
	s.grantWaiting()
	s.dirty = true
	UserCount.Set(float64(len(s.conns)))
	s.log.Info("user disconnected", "user", c.user.Name, "id", uid)
}

func (s *Server) hasTransientAncestor(r *record, uid uint32) bool {
	for a := r.parent; a != nil; a = a.parent {
		if a.flags&graph.Transient != 0 && a.creator == uid {
			return true
		}
	}
	return false
}

func (s *Server) sortedRecords() []*record {
	ret := make([]*record, 0, len(s.objects))
	for _, r := range s.objects {
		ret = append(ret, r)
	}
	sort.Slice(ret, func(i, j int) bool { return ret[i].id < ret[j].id })
	return ret
}

func (s *Server) enqueue(c *Conn, m *graph.Message) {
	s.mu.Lock()
	s.inbox = append(s.inbox, envelope{conn: c, msg: m})
	s.mu.Unlock()
}

// Process handles every queued message.
func (s *Server) Process() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for len(s.inbox) > 0 {
		env := s.inbox[0]
		s.inbox = s.inbox[1:]
		if env.conn.closed {
			continue
		}
		MessagesReceived.WithLabelValues(string(env.msg.Kind)).Inc()
		s.handle(env.conn, env.msg)
	}
	for _, c := range s.sortedConns() {
		if c.overflow {
			s.log.Error("dropping a client that does not keep up", "user", c.user.Name)
			s.drop(c)
		}
	}
	if s.dirty && s.store != nil {
		s.save()
	}
	ObjectCount.Set(float64(len(s.objects)))
	locks := 0
	for _, r := range s.objects {
		if r.owner != 0 {
			locks++
		}
	}
	LockCount.Set(float64(locks))
}

func (s *Server) handle(c *Conn, m *graph.Message) {
	switch m.Kind {
	case graph.MsgCreate:
		s.onCreate(c, m)
	case graph.MsgDelete:
		s.onDelete(c, m)
	case graph.MsgLock:
		s.onLock(c, m)
	case graph.MsgUnlock:
		s.onUnlock(c, m)
	case graph.MsgParent:
		s.onParent(c, m)
	case graph.MsgSet, graph.MsgRemove, graph.MsgListAdd, graph.MsgListRemove:
		s.onProperty(c, m)
	case graph.MsgSubscribe:
		s.onSubscribe(c, m)
	case graph.MsgUnsubscribe:
		delete(c.subs, m.ObjectId)
		c.send(&graph.Message{Kind: graph.MsgUnsubscribeAck, ObjectId: m.ObjectId})
	case graph.MsgUserColor:
		c.user.Color = m.Color
		s.broadcast(c, &graph.Message{Kind: graph.MsgUserColor, UserId: c.user.Id, Color: m.Color}, nil)
	default:
		s.reject(m, "unexpected message")
	}
}

func (s *Server) reject(m *graph.Message, why string) {
	MessagesRejected.WithLabelValues(string(m.Kind)).Inc()
	s.log.Debug("message rejected", "kind", string(m.Kind), "object", m.ObjectId, "reason", why)
}
