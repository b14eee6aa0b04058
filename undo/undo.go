// Package undo reconciles the editor's undo and redo with the server state.
// Objects locked by another user keep their server values; everything else
// the transaction touched is sent to the server.
package undo

import (
	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/utils"
)

// Dispatcher routes the reconciliation of one native to its translator. A
// nil object means the native is not synced.
type Dispatcher interface {
	OnUndoRedo(o *graph.Object, n classes.Native) bool
}

// Destroyer removes a native without deleting its server object.
type Destroyer interface {
	DestroyNative(n classes.Native) bool
}

// Handler runs for natives of a class and its subclasses.
type Handler func(o *graph.Object, n classes.Native)

type Manager struct {
	m         *props.Manager
	d         Dispatcher
	destroyer Destroyer
	log       utils.Logger

	handlers    map[string]Handler
	preHandlers map[string]Handler
	post        []func()

	editor     *host.Editor
	onDelete   int
	peerDelete map[classes.Native]bool
	toCheck    []classes.Native
	inUndoRedo bool
	title      string
}

func NewManager(m *props.Manager, d Dispatcher, destroyer Destroyer, log utils.Logger) *Manager {
	return &Manager{
		m:           m,
		d:           d,
		destroyer:   destroyer,
		log:         log,
		handlers:    make(map[string]Handler),
		preHandlers: make(map[string]Handler),
		peerDelete:  make(map[classes.Native]bool),
	}
}

// Initialize hooks the editor's undo. It must run before the dispatcher
// subscribes to the session, so natives deleted by peers are seen while
// they are still mapped.
func (u *Manager) Initialize(e *host.Editor) {
	u.editor = e
	e.OnBeforeUndoRedo = u.BeforeUndoRedo
	e.OnUndoRedo = u.OnUndoRedo
	u.onDelete = u.m.Session().Events.Delete.Add(u.onPeerDelete)
}

func (u *Manager) CleanUp() {
	if u.editor != nil {
		u.editor.OnBeforeUndoRedo = nil
		u.editor.OnUndoRedo = nil
		u.editor = nil
	}
	u.m.Session().Events.Delete.Remove(u.onDelete)
	u.peerDelete = make(map[classes.Native]bool)
	u.toCheck = nil
	u.post = nil
	u.inUndoRedo = false
}

func (u *Manager) InUndoRedo() bool { return u.inUndoRedo }

// Title of the transaction being undone or redone.
func (u *Manager) Title() string { return u.title }

func (u *Manager) RegisterUndoHandler(class string, h Handler) { u.handlers[class] = h }

func (u *Manager) UnregisterUndoHandler(class string) { delete(u.handlers, class) }

// RegisterPreUndoHandler adds a handler that runs before the editor applies
// the transaction.
func (u *Manager) RegisterPreUndoHandler(class string, h Handler) { u.preHandlers[class] = h }

func (u *Manager) UnregisterPreUndoHandler(class string) { delete(u.preHandlers, class) }

// AddPostUndoHandler runs fn once, after the current or next undo or redo.
func (u *Manager) AddPostUndoHandler(fn func()) { u.post = append(u.post, fn) }

// onPeerDelete remembers the deleted natives an undo or redo could bring
// back.
func (u *Manager) onPeerDelete(o *graph.Object) {
	if u.editor == nil {
		return
	}
	history := u.editor.InHistory()
	o.Walk(func(d *graph.Object) bool {
		if n := u.m.Objects().Native(d); n != nil && history[n] {
			u.peerDelete[n] = true
		}
		return true
	})
}

// forgetPeerDeletes drops the natives that left the editor's history. t is
// being replayed and is on neither stack.
func (u *Manager) forgetPeerDeletes(t *host.Transaction) {
	if len(u.peerDelete) == 0 || u.editor == nil {
		return
	}
	history := u.editor.InHistory()
	for _, n := range t.Objects() {
		history[n] = true
	}
	for n := range u.peerDelete {
		if !history[n] {
			delete(u.peerDelete, n)
		}
	}
}

func (u *Manager) call(handlers map[string]Handler, n classes.Native) {
	if len(handlers) == 0 {
		return
	}
	o := u.m.Objects().Object(n)
	for _, name := range n.Class().Lineage() {
		if h, ok := handlers[name]; ok {
			h(o, n)
		}
	}
}

// BeforeUndoRedo records the natives the transaction touches that peers
// deleted, as the editor brings them back.
func (u *Manager) BeforeUndoRedo(t *host.Transaction) {
	u.inUndoRedo = true
	u.title = t.Title
	for _, n := range t.Objects() {
		u.call(u.preHandlers, n)
		if d, ok := n.(interface{ IsDeleted() bool }); ok && d.IsDeleted() && u.peerDelete[n] {
			u.toCheck = append(u.toCheck, n)
		}
	}
}

// OnUndoRedo destroys natives the editor resurrected although a peer
// deleted them, then reconciles every native of the transaction.
func (u *Manager) OnUndoRedo(t *host.Transaction) {
	for _, n := range u.toCheck {
		if d, ok := n.(interface{ IsDeleted() bool }); ok && !d.IsDeleted() {
			u.log.Debug("destroying native deleted by another user", "name", n.Name())
			u.destroyer.DestroyNative(n)
		}
	}
	u.toCheck = nil
	u.forgetPeerDeletes(t)

	objs := t.Objects()
	if len(objs) == 0 {
		u.d.OnUndoRedo(nil, nil)
	}
	for _, n := range objs {
		o := u.m.Objects().Object(n)
		if o != nil && !o.IsSyncing() {
			o = nil
		}
		if d, ok := n.(interface{ IsDeleted() bool }); !ok || !d.IsDeleted() {
			u.call(u.handlers, n)
		}
		u.d.OnUndoRedo(o, n)
	}

	post := u.post
	u.post = nil
	for _, fn := range post {
		fn()
	}
	u.inUndoRedo = false
}
