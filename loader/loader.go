// Package loader resolves asset references. Assets are looked up in memory,
// then in storage; a missing asset of a creatable class is created, any
// other missing asset gets a transient stand-in that is swapped for the real
// asset once it shows up.
package loader

import (
	"strings"
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/drpcorg/scenesync/utils"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"github.com/puzpuzpuz/xsync/v3"
)

const standInPrefix = "Missing_"

// AssetHost is the editor side of asset management.
type AssetHost interface {
	FindAsset(path string) classes.Asset
	AddAsset(a classes.Asset)
	NewStandIn(class *classes.Class, name string) classes.Asset
}

// StandInGenerator fills a fresh stand-in so it looks like the missing
// asset, for example a placeholder mesh.
type StandInGenerator func(path string, standIn classes.Asset)

type Options struct {
	// IdleTime without user input after which assets load.
	IdleTime time.Duration
	// ReplaceDelay waits for more assets to arrive before stand-ins are
	// swapped in one batch.
	ReplaceDelay time.Duration
	CacheSize    int
	// CreatableClasses are asset classes created empty when missing.
	CreatableClasses []string
}

type AssetEvent struct {
	Path  string
	Asset classes.Asset
}

type Loader struct {
	opts    Options
	host    AssetHost
	classes *classes.Registry
	storage Storage
	manager *props.Manager
	log     utils.Logger

	cache      *lru.Cache[string, classes.Asset]
	standIns   map[string]classes.Asset
	isStandIn  map[classes.Native]bool
	toReplace  []classes.Asset
	replaceIn  time.Duration
	references *xsync.MapOf[uint32, []property.Property]
	generators map[string]StandInGenerator
	created    map[classes.Native]bool

	delayed      map[*graph.Object][]property.Property
	delayedOrder []*graph.Object
	idleFor      time.Duration
	overrideIdle bool

	OnCreateMissingAsset graph.Event[AssetEvent]
	OnCreateStandIn      graph.Event[AssetEvent]
	OnReplaceStandIn     graph.Event[AssetEvent]
}

func New(opts Options, host AssetHost, reg *classes.Registry, manager *props.Manager, log utils.Logger) *Loader {
	size := opts.CacheSize
	if size <= 0 {
		size = 1024
	}
	cache, _ := lru.New[string, classes.Asset](size)
	return &Loader{
		opts:       opts,
		host:       host,
		classes:    reg,
		manager:    manager,
		log:        log,
		cache:      cache,
		standIns:   make(map[string]classes.Asset),
		isStandIn:  make(map[classes.Native]bool),
		references: xsync.NewMapOf[uint32, []property.Property](),
		generators: make(map[string]StandInGenerator),
		created:    make(map[classes.Native]bool),
		delayed:    make(map[*graph.Object][]property.Property),
	}
}

// SetStorage sets where assets that are not in memory are loaded from.
func (l *Loader) SetStorage(s Storage) { l.storage = s }

func (l *Loader) RegisterStandInGenerator(class string, g StandInGenerator) {
	l.generators[class] = g
}

// IsCreatableAssetType is true if the class or an ancestor is creatable.
func (l *Loader) IsCreatableAssetType(class string) bool {
	c := l.classes.Get(class)
	if c == nil {
		return false
	}
	for _, name := range c.Lineage() {
		for _, x := range l.opts.CreatableClasses {
			if x == name {
				return true
			}
		}
	}
	return false
}

// LoadFromCache returns an asset already in memory. Stand-ins are not
// returned.
func (l *Loader) LoadFromCache(path string) classes.Native {
	if a, ok := l.cache.Get(path); ok {
		if d, gone := a.(interface{ IsDeleted() bool }); !gone || !d.IsDeleted() {
			return a
		}
		l.cache.Remove(path)
	}
	if a := l.host.FindAsset(path); a != nil && !l.isStandIn[a] {
		l.cache.Add(path, a)
		return a
	}
	return nil
}

// Load finds the asset at path, creating it or a stand-in if needed. It
// returns nil only if the class is unknown.
func (l *Loader) Load(path, class string) classes.Native {
	if a := l.LoadFromCache(path); a != nil {
		return a
	}
	if l.storage != nil {
		a, err := l.storage.Load(path, class)
		switch {
		case err == nil:
			AssetsLoaded.Inc()
			l.host.AddAsset(a)
			l.cache.Add(path, a)
			return a
		case !errors.Is(err, scene_errors.ErrAssetNotFound):
			l.log.Warn("asset load failed", "path", path, "err", err)
		}
	}
	if s, ok := l.standIns[path]; ok {
		return s
	}
	c := l.classes.Get(class)
	if c == nil {
		l.log.Warn("unknown asset class", "class", class, "path", path)
		return nil
	}
	if l.IsCreatableAssetType(class) && c.New != nil {
		if a, ok := c.New(path).(classes.Asset); ok {
			l.log.Info("creating missing asset", "class", class, "path", path)
			l.host.AddAsset(a)
			l.cache.Add(path, a)
			l.created[a] = true
			l.OnCreateMissingAsset.Fire(AssetEvent{Path: path, Asset: a})
			return a
		}
	}
	l.log.Warn("asset not found, creating stand-in", "class", class, "path", path)
	s := l.host.NewStandIn(c, StandInName(class, path))
	for _, name := range c.Lineage() {
		if g, ok := l.generators[name]; ok {
			g(path, s)
			break
		}
	}
	l.standIns[path] = s
	l.isStandIn[s] = true
	StandInsCreated.Inc()
	l.OnCreateStandIn.Fire(AssetEvent{Path: path, Asset: s})
	return s
}

// StandInName encodes class and path in a name without dots.
func StandInName(class, path string) string {
	return standInPrefix + class + "+" + strings.ReplaceAll(path, ".", "+")
}

// GetPathFromStandIn returns "class;path" for a stand-in, "" otherwise.
func (l *Loader) GetPathFromStandIn(n classes.Native) string {
	name := n.Name()
	if !strings.HasPrefix(name, standInPrefix) {
		return ""
	}
	s := strings.TrimPrefix(name, standInPrefix)
	if i := strings.IndexByte(s, '+'); i >= 0 {
		s = s[:i] + ";" + strings.ReplaceAll(s[i+1:], "+", ".")
	}
	return s
}

func (l *Loader) IsStandIn(n classes.Native) bool { return l.isStandIn[n] }

// StandIn returns the stand-in for path, if there is one.
func (l *Loader) StandIn(path string) classes.Asset { return l.standIns[path] }

// WasCreatedOnLoad is true for assets Load created because they were
// missing.
func (l *Loader) WasCreatedOnLoad(n classes.Native) bool { return l.created[n] }

// AddStandInReference registers a property whose value embeds a reference
// to the stand-in with the given "class;path" string table id, for values
// the reference scan cannot see, like serialized blobs.
func (l *Loader) AddStandInReference(pathId uint32, p property.Property) {
	l.references.Compute(pathId, func(old []property.Property, _ bool) ([]property.Property, bool) {
		kept := old[:0:0]
		for _, x := range old {
			if x == p {
				return old, false
			}
			if x.Container() != nil {
				kept = append(kept, x)
			}
		}
		return append(kept, p), false
	})
}

// OnNewAsset is called when an asset appears. A stand-in waiting for it is
// queued for replacement, which runs ReplaceDelay later so assets arriving
// together are swapped at once.
func (l *Loader) OnNewAsset(a classes.Asset) {
	path := a.Path()
	l.cache.Add(path, a)
	s, ok := l.standIns[path]
	if !ok {
		return
	}
	delete(l.standIns, path)
	l.log.Debug("new asset found for stand-in", "path", path)
	l.toReplace = append(l.toReplace, s)
	l.OnReplaceStandIn.Fire(AssetEvent{Path: path, Asset: s})
	l.replaceIn = l.opts.ReplaceDelay
}

// ReplaceStandIns points every reference to a queued stand-in at the real
// asset and drops the stand-ins. It returns the number of fields changed.
func (l *Loader) ReplaceStandIns() int {
	if len(l.toReplace) == 0 {
		return 0
	}
	session := l.manager.Session()
	pathIds := make(map[uint32]bool)
	custom := make(map[property.Property]bool)
	for _, s := range l.toReplace {
		id := session.GetStringTableId(l.GetPathFromStandIn(s))
		pathIds[id] = true
		if refs, ok := l.references.LoadAndDelete(id); ok {
			for _, p := range refs {
				if p.Container() != nil {
					custom[p] = true
				}
			}
		}
	}
	count := 0
	dispatcher := l.manager.Dispatcher()
	l.manager.Objects().Range(func(_ classes.Native, o *graph.Object) bool {
		if o.Property() == nil {
			return true
		}
		property.Walk(o.Property(), func(p property.Property) bool {
			ref := referencesStandIn(p, pathIds)
			if !ref && !custom[p] {
				return true
			}
			if custom[p] || strings.HasPrefix(p.Key(), "#") {
				if dispatcher != nil && dispatcher.OnPropertyChange(p) {
					return true
				}
			}
			if l.manager.ApplyProperty(p) {
				count++
			}
			return true
		})
		return true
	})
	for _, s := range l.toReplace {
		delete(l.isStandIn, s)
	}
	StandInsReplaced.Add(float64(len(l.toReplace)))
	l.toReplace = nil
	l.log.Info("Replaced stand-in reference(s)", "count", count)
	return count
}

func referencesStandIn(p property.Property, pathIds map[uint32]bool) bool {
	v, ok := p.(*property.Value)
	return ok && v.Kind() == property.UInt && pathIds[v.AsUInt()]
}

// IsUserIdle is true once the user did nothing for IdleTime.
func (l *Loader) IsUserIdle() bool {
	return l.overrideIdle || l.idleFor >= l.opts.IdleTime
}

// LoadWhenIdle defers applying an asset reference until the user is idle.
func (l *Loader) LoadWhenIdle(p property.Property) {
	o, ok := p.Container().(*graph.Object)
	if !ok {
		return
	}
	list, seen := l.delayed[o]
	for _, x := range list {
		if x == p {
			return
		}
	}
	if !seen {
		l.delayedOrder = append(l.delayedOrder, o)
	}
	l.delayed[o] = append(list, p)
}

// LoadAssetsFor loads the deferred assets of o and its children right away,
// for example because the user selected it.
func (l *Loader) LoadAssetsFor(o *graph.Object) {
	if ps, ok := l.delayed[o]; ok {
		delete(l.delayed, o)
		l.overrideIdle = true
		for _, p := range ps {
			l.loadProperty(p)
		}
		l.overrideIdle = false
	}
	for _, c := range o.Children() {
		l.LoadAssetsFor(c)
	}
}

func (l *Loader) loadProperty(p property.Property) {
	if p.Container() == nil {
		// deleted or replaced before we got to it
		return
	}
	l.manager.ApplyProperty(p)
}

func (l *Loader) loadDelayed() {
	order := l.delayedOrder
	l.delayedOrder = nil
	for _, o := range order {
		ps, ok := l.delayed[o]
		if !ok {
			continue
		}
		delete(l.delayed, o)
		for _, p := range ps {
			l.loadProperty(p)
		}
	}
}

// PendingLoads counts the deferred asset references.
func (l *Loader) PendingLoads() (n int) {
	for _, ps := range l.delayed {
		n += len(ps)
	}
	return
}

// Tick runs on the update thread. dt is the time since the last tick and
// idle how long the user has been inactive.
func (l *Loader) Tick(dt, idle time.Duration) {
	l.idleFor = idle
	if l.storage != nil {
		for _, path := range l.storage.Updates() {
			s, waiting := l.standIns[path]
			if !waiting {
				continue
			}
			a, err := l.storage.Load(path, s.Class().Name)
			if err != nil {
				l.log.Warn("new asset failed to load", "path", path, "err", err)
				continue
			}
			AssetsLoaded.Inc()
			l.host.AddAsset(a)
			l.OnNewAsset(a)
		}
	}
	if l.replaceIn <= 0 {
		l.ReplaceStandIns()
	} else {
		l.replaceIn -= dt
	}
	if l.IsUserIdle() {
		l.loadDelayed()
	}
}

// CleanUp forgets stand-in bookkeeping and deferred loads when the session
// ends. Stand-ins stay in the editor.
func (l *Loader) CleanUp() {
	l.toReplace = nil
	l.references.Clear()
	l.delayed = make(map[*graph.Object][]property.Property)
	l.delayedOrder = nil
	l.created = make(map[classes.Native]bool)
}
