// Package props converts between native objects and property trees. It
// diffs native fields against the synced properties, applies server values
// to natives, and enforces the lock policy: the server wins for objects
// locked by someone else, otherwise the local value is sent.
package props

import (
	"strings"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/utils"
)

// AssetLoader finds assets referenced by properties.
type AssetLoader interface {
	LoadFromCache(path string) classes.Native
	Load(path, class string) classes.Native
	LoadWhenIdle(p property.Property)
	IsUserIdle() bool
	IsStandIn(n classes.Native) bool
	GetPathFromStandIn(n classes.Native) string
	IsCreatableAssetType(class string) bool
}

// Dispatcher is the translator side the manager calls back into.
type Dispatcher interface {
	// Create starts syncing a native that a property refers to.
	Create(n classes.Native) *graph.Object
	// OnPropertyChange handles a custom property; true if handled.
	OnPropertyChange(p property.Property) bool
	// OnUPropertyChange may take over syncing one field; true if handled.
	OnUPropertyChange(o *graph.Object, n classes.Native, f *classes.Field) bool
}

// ClassHandler replaces field by field syncing for a class.
type ClassHandler func(o *graph.Object, n classes.Native, f *classes.Field) bool

type Options struct {
	// Blacklist fields are never synced. Patterns are "Class.Field" globs.
	Blacklist []string
	// ForceSync fields are synced even when their edit flags say no.
	ForceSync []string
	// SyncDefaultOnly classes sync their DisableEditOnInstance fields.
	SyncDefaultOnly []string
}

type ChangeEvent struct {
	Native classes.Native
	Fields []*classes.Field
}

type fieldRef struct {
	native classes.Native
	field  *classes.Field
}

// changeSet keeps insertion order so syncing is deterministic.
type changeSet struct {
	order  []classes.Native
	fields map[classes.Native][]*classes.Field
}

func (cs *changeSet) add(n classes.Native, f *classes.Field) bool {
	if cs.fields == nil {
		cs.fields = make(map[classes.Native][]*classes.Field)
	}
	fs, ok := cs.fields[n]
	if !ok {
		cs.order = append(cs.order, n)
	}
	for _, x := range fs {
		if x == f {
			return false
		}
	}
	cs.fields[n] = append(fs, f)
	return true
}

func (cs *changeSet) take() changeSet {
	ret := *cs
	*cs = changeSet{}
	return ret
}

func (cs *changeSet) len() int { return len(cs.order) }

type Manager struct {
	session *graph.Session
	objects *ObjectMap
	log     utils.Logger

	loader     AssetLoader
	dispatcher Dispatcher

	blacklist       *Rules
	forceSync       *Rules
	syncDefaultOnly *Rules

	handlers      map[classes.Kind]TypeHandler
	classHandlers map[string]ClassHandler

	listening  bool
	changed    changeSet
	toSync     changeSet
	unresolved changeSet
	stale      []fieldRef

	// Changed fires from BroadcastChangeEvents for every native with
	// buffered local edits.
	Changed graph.Event[ChangeEvent]
}

func NewManager(session *graph.Session, objects *ObjectMap, log utils.Logger, opts Options) (*Manager, error) {
	m := &Manager{
		session:       session,
		objects:       objects,
		log:           log,
		classHandlers: make(map[string]ClassHandler),
	}
	var err error
	if m.blacklist, err = compileRules(opts.Blacklist); err != nil {
		return nil, err
	}
	if m.forceSync, err = compileRules(opts.ForceSync); err != nil {
		return nil, err
	}
	if m.syncDefaultOnly, err = compileRules(opts.SyncDefaultOnly); err != nil {
		return nil, err
	}
	m.registerTypeHandlers()
	return m, nil
}

func (m *Manager) SetLoader(l AssetLoader) { m.loader = l }

func (m *Manager) SetDispatcher(d Dispatcher) { m.dispatcher = d }

func (m *Manager) Dispatcher() Dispatcher { return m.dispatcher }

func (m *Manager) Loader() AssetLoader { return m.loader }

func (m *Manager) Logger() utils.Logger { return m.log }

func (m *Manager) Objects() *ObjectMap { return m.objects }

func (m *Manager) Session() *graph.Session { return m.session }

func (m *Manager) Blacklist() *Rules { return m.blacklist }

func (m *Manager) ForceSync() *Rules { return m.forceSync }

func (m *Manager) RegisterPropertyChangeHandler(class string, h ClassHandler) {
	m.classHandlers[class] = h
}

// StartListening makes MarkPropertyChanged record edits.
func (m *Manager) StartListening() { m.listening = true }

func (m *Manager) StopListening() { m.listening = false }

func (m *Manager) IsListening() bool { return m.listening }

// IsSyncable: force-sync wins, then the blacklist, then the edit flags.
func (m *Manager) IsSyncable(n classes.Native, f *classes.Field) bool {
	c := n.Class()
	if m.forceSync.Match(c, f) {
		return true
	}
	if m.blacklist.Match(c, f) {
		return false
	}
	if !f.Flags.Has(classes.Edit) || f.Flags.Has(classes.EditConst) {
		return false
	}
	if f.Flags.Has(classes.DisableEditOnInstance) && !classes.IsTemplate(n) && !m.syncDefaultOnly.MatchClass(c) {
		return false
	}
	return true
}

func excluded(f *classes.Field, exclude []string) bool {
	for _, name := range exclude {
		if f.Name == name {
			return true
		}
	}
	return false
}

// GetValue converts a field to a property; nil if the type has no handler.
func (m *Manager) GetValue(n classes.Native, f *classes.Field) property.Property {
	c := conv{m: m}
	p := c.get(f.Type, f.Get(n))
	if c.unresolved {
		m.unresolved.add(n, f)
	}
	return p
}

// SetValue writes p to the field and reports whether the native changed.
func (m *Manager) SetValue(n classes.Native, f *classes.Field, p property.Property) bool {
	c := conv{m: m}
	cur := f.Get(n)
	v, ok := c.set(f.Type, p, cur)
	if !ok || f.Type.Equal(cur, v) {
		return false
	}
	f.Set(n, v)
	return true
}

// CreateProperties adds every syncable non-default field of n to dict.
func (m *Manager) CreateProperties(n classes.Native, dict *property.Dictionary, exclude ...string) {
	for _, f := range n.Class().Fields() {
		if excluded(f, exclude) || !m.IsSyncable(n, f) || classes.IsDefault(n, f) {
			continue
		}
		if p := m.GetValue(n, f); p != nil {
			dict.Set(f.Name, p)
		}
	}
}

// ApplyProperties makes n match dict. Fields missing from dict are reset to
// their default.
func (m *Manager) ApplyProperties(n classes.Native, dict *property.Dictionary, exclude ...string) bool {
	changedAny := false
	for _, f := range n.Class().Fields() {
		if excluded(f, exclude) || !m.IsSyncable(n, f) {
			continue
		}
		var changed bool
		if p := dict.Get(f.Name); p != nil {
			changed = m.SetValue(n, f, p)
		} else if _, ok := m.handlers[f.Type.Kind]; ok {
			changed = classes.ResetField(n, f)
		}
		if changed {
			changedAny = true
			m.postEdit(n, f)
		}
	}
	return changedAny
}

// SendPropertyChanges updates dict from n, removing the entries of fields
// that went back to their default.
func (m *Manager) SendPropertyChanges(n classes.Native, dict *property.Dictionary, exclude ...string) {
	for _, f := range n.Class().Fields() {
		if excluded(f, exclude) || !m.IsSyncable(n, f) {
			continue
		}
		m.push(n, f, dict)
	}
}

func (m *Manager) push(n classes.Native, f *classes.Field, dict *property.Dictionary) {
	if classes.IsDefault(n, f) {
		if dict.Remove(f.Name) {
			PropertiesPushed.Inc()
		}
		return
	}
	p := m.GetValue(n, f)
	if p == nil {
		return
	}
	cur := dict.Get(f.Name)
	if cur != nil && cur.Equals(p) {
		return
	}
	if cur == nil || !Copy(cur, p) {
		dict.Set(f.Name, p)
	}
	PropertiesPushed.Inc()
}

func (m *Manager) postEdit(n classes.Native, f *classes.Field) {
	PropertiesApplied.Inc()
	if x, ok := n.(classes.Notifiable); ok {
		x.PostEditChange(f)
	}
}

// MarkPropertyChanged buffers a local edit until the next
// BroadcastChangeEvents.
func (m *Manager) MarkPropertyChanged(n classes.Native, f *classes.Field) {
	if !m.listening || m.session.EditsDisabled() || classes.IsTemplate(n) {
		return
	}
	m.changed.add(n, f)
}

// BroadcastChangeEvents fires Changed for the buffered edits and queues
// them for SyncProperties.
func (m *Manager) BroadcastChangeEvents() {
	cs := m.changed.take()
	for _, n := range cs.order {
		fields := cs.fields[n]
		m.Changed.Fire(ChangeEvent{Native: n, Fields: fields})
		for _, f := range fields {
			m.toSync.add(n, f)
		}
	}
}

// SyncProperties resolves every queued field with SyncProperty. Fields
// whose references pointed at objects without ids are retried once those
// objects are created.
func (m *Manager) SyncProperties() {
	retry := m.unresolved.take()
	for _, n := range retry.order {
		o := m.objects.Object(n)
		for _, f := range retry.fields[n] {
			if o != nil && !o.IsCreated() && !o.IsDeletePending() {
				m.unresolved.add(n, f)
			} else if o != nil && o.IsCreated() {
				m.toSync.add(n, f)
			}
		}
	}
	cs := m.toSync.take()
	for _, n := range cs.order {
		for _, f := range cs.fields[n] {
			m.SyncProperty(n, f)
		}
	}
}

func (m *Manager) HasPendingChanges() bool {
	return m.changed.len() > 0 || m.toSync.len() > 0
}

// SyncProperty resolves one field: a locked object takes the server value,
// otherwise the local value is sent.
func (m *Manager) SyncProperty(n classes.Native, f *classes.Field) {
	o := m.objects.Object(n)
	if o == nil || !o.IsCreated() || o.IsDeletePending() || !m.IsSyncable(n, f) {
		return
	}
	if m.dispatcher != nil && m.dispatcher.OnUPropertyChange(o, n, f) {
		return
	}
	for _, name := range n.Class().Lineage() {
		if h, ok := m.classHandlers[name]; ok && h(o, n, f) {
			return
		}
	}
	if o.IsFullyLocked() {
		m.revert(o, n, f)
		return
	}
	m.push(n, f, o.Property())
}

// SyncPropertyByName is SyncProperty for a field name; false if n has no
// such field.
func (m *Manager) SyncPropertyByName(n classes.Native, name string) bool {
	f := n.Class().Field(name)
	if f == nil {
		return false
	}
	m.SyncProperty(n, f)
	return true
}

func (m *Manager) revert(o *graph.Object, n classes.Native, f *classes.Field) {
	var changed bool
	if p := o.Property().Get(f.Name); p != nil {
		changed = m.SetValue(n, f, p)
	} else {
		changed = classes.ResetField(n, f)
	}
	if !changed {
		return
	}
	PropertiesReverted.Inc()
	m.log.Debug("local edit reverted", "object", o.String(), "field", f.Name)
	if k := f.Type.Kind; k == classes.Map || k == classes.Set || k == classes.Array || k == classes.Structure {
		m.MarkHashStale(n, f)
	}
	m.postEdit(n, f)
}

// FindField returns the native and the field a synced property belongs to.
// Custom properties, keyed with a '#' prefix, have no field.
func (m *Manager) FindField(p property.Property) (classes.Native, *classes.Field) {
	top := topLevel(p)
	if top == nil || strings.HasPrefix(top.Key(), "#") {
		return nil, nil
	}
	o, ok := top.Container().(*graph.Object)
	if !ok {
		return nil, nil
	}
	n := m.objects.Native(o)
	if n == nil {
		return nil, nil
	}
	return n, n.Class().Field(top.Key())
}

// topLevel is the ancestor of p that sits directly in the root dictionary.
func topLevel(p property.Property) property.Property {
	for p != nil && p.Depth() > 1 {
		p = p.Parent()
	}
	if p == nil || p.Depth() != 1 {
		return nil
	}
	return p
}

// ApplyProperty writes the server value of the field p belongs to onto the
// native. Custom properties go to the dispatcher.
func (m *Manager) ApplyProperty(p property.Property) bool {
	top := topLevel(p)
	if top == nil {
		return false
	}
	if strings.HasPrefix(top.Key(), "#") {
		return m.dispatcher != nil && m.dispatcher.OnPropertyChange(p)
	}
	n, f := m.FindField(top)
	if f == nil || !m.IsSyncable(n, f) {
		return false
	}
	if !m.SetValue(n, f, top) {
		return false
	}
	m.postEdit(n, f)
	return true
}

// ResetProperty handles the removal of a top level key from o.
func (m *Manager) ResetProperty(o *graph.Object, key string) bool {
	n := m.objects.Native(o)
	if n == nil || strings.HasPrefix(key, "#") {
		return false
	}
	f := n.Class().Field(key)
	if f == nil || !m.IsSyncable(n, f) || !classes.ResetField(n, f) {
		return false
	}
	m.postEdit(n, f)
	return true
}

// SetReferences applies refs, the references to o that arrived before o
// itself did.
func (m *Manager) SetReferences(o *graph.Object, refs []*property.Reference) {
	for _, r := range refs {
		if top := topLevel(r); top != nil && strings.HasPrefix(top.Key(), "#") {
			if m.dispatcher != nil {
				m.dispatcher.OnPropertyChange(r)
			}
			continue
		}
		m.ApplyProperty(r)
	}
}

// ReplaceNative moves pending edits of old to its replacement.
func (m *Manager) ReplaceNative(old, replacement classes.Native) {
	for _, cs := range []*changeSet{&m.changed, &m.toSync, &m.unresolved} {
		fields, ok := cs.fields[old]
		if !ok {
			continue
		}
		delete(cs.fields, old)
		for i, n := range cs.order {
			if n == old {
				cs.order = append(cs.order[:i:i], cs.order[i+1:]...)
				break
			}
		}
		for _, f := range fields {
			if g := replacement.Class().Field(f.Name); g != nil {
				cs.add(replacement, g)
			}
		}
	}
	for i := range m.stale {
		if m.stale[i].native == old {
			m.stale[i].native = replacement
		}
	}
}

// MarkHashStale records that a hashed container inside the field had a key
// changed in place. RehashProperties fixes it.
func (m *Manager) MarkHashStale(n classes.Native, f *classes.Field) {
	m.stale = append(m.stale, fieldRef{n, f})
}

// RehashProperties rebuilds the indexes of every container marked stale
// and queues the fields whose content changed for syncing. It returns the
// number of containers rebuilt.
func (m *Manager) RehashProperties() (n int) {
	stale := m.stale
	m.stale = nil
	for _, ref := range stale {
		if field := ref.native.Class().Field(ref.field.Name); field != ref.field {
			continue
		}
		rebuilt, dropped := rehash(ref.field.Type, ref.field.Get(ref.native))
		n += rebuilt
		if dropped > 0 {
			m.log.Warn("duplicate keys dropped while rehashing", "field", ref.field.Key(), "count", dropped)
		}
		if rebuilt > 0 && m.listening && !classes.IsTemplate(ref.native) {
			m.changed.add(ref.native, ref.field)
		}
	}
	ContainersRehashed.Add(float64(n))
	return
}

func rehash(t *classes.Type, v any) (rebuilt, dropped int) {
	add := func(r, d int) {
		rebuilt += r
		dropped += d
	}
	switch t.Kind {
	case classes.Array:
		items, _ := v.([]any)
		for _, e := range items {
			add(rehash(t.Elem, e))
		}
	case classes.Structure:
		for _, mem := range t.Members {
			add(rehash(mem.Type, t.StructMember(v, mem)))
		}
	case classes.Map:
		mp, ok := v.(*classes.OrderedMap)
		if !ok || mp == nil {
			return
		}
		for i := 0; i < mp.Len(); i++ {
			k, e := mp.At(i)
			add(rehash(t.Key, k))
			add(rehash(t.Elem, e))
		}
		if mp.IsStale() {
			add(1, mp.Rehash())
		}
	case classes.Set:
		s, ok := v.(*classes.OrderedSet)
		if !ok || s == nil {
			return
		}
		for i := 0; i < s.Len(); i++ {
			add(rehash(t.Elem, s.At(i)))
		}
		if s.IsStale() {
			add(1, s.Rehash())
		}
	}
	return
}

// CleanUp flushes buffered edits and drops everything still pending.
func (m *Manager) CleanUp() {
	m.RehashProperties()
	m.BroadcastChangeEvents()
	m.toSync = changeSet{}
	m.unresolved = changeSet{}
	m.stale = nil
}
