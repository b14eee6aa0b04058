// Package scenesync keeps a scene open in several editors at once. Each
// editor connects to a session server; objects, properties, hierarchy and
// locks are replicated through it.
package scenesync

import (
	"log/slog"
	"os"
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/loader"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/server"
	"github.com/drpcorg/scenesync/store"
	"github.com/drpcorg/scenesync/translators"
	"github.com/drpcorg/scenesync/undo"
	"github.com/drpcorg/scenesync/utils"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"gopkg.in/yaml.v3"
)

type Options struct {
	LogDebug bool `yaml:"log_debug"`
	// IdleTime without user input after which deferred assets load.
	IdleTime      time.Duration `yaml:"idle_time"`
	MaxCreateTime time.Duration `yaml:"max_create_time"`
	// TickRate is the number of ticks per second.
	TickRate     int               `yaml:"tick_rate"`
	ObjectLimits map[string]uint32 `yaml:"object_limits"`

	Blacklist       []string `yaml:"blacklist"`
	ForceSync       []string `yaml:"force_sync"`
	SyncDefaultOnly []string `yaml:"sync_default_only"`

	CreatableAssetClasses []string      `yaml:"creatable_asset_classes"`
	StandInReplaceDelay   time.Duration `yaml:"stand_in_replace_delay"`
	AssetCacheSize        int           `yaml:"asset_cache_size"`

	// StorePath is the pebble directory of the server session; empty keeps
	// the session in memory.
	StorePath string `yaml:"store_path"`
	// AssetDir holds the assets that are not in memory; empty means none.
	AssetDir string `yaml:"asset_dir"`
}

func (o *Options) SetDefaults() {
	if o.IdleTime == 0 {
		o.IdleTime = 500 * time.Millisecond
	}
	if o.MaxCreateTime == 0 {
		o.MaxCreateTime = 40 * time.Millisecond
	}
	if o.TickRate == 0 {
		o.TickRate = 60
	}
	if o.StandInReplaceDelay == 0 {
		o.StandInReplaceDelay = 100 * time.Millisecond
	}
	if o.AssetCacheSize == 0 {
		o.AssetCacheSize = 1024
	}
}

// TickInterval is the time between ticks.
func (o *Options) TickInterval() time.Duration {
	if o.TickRate <= 0 {
		return time.Second / 60
	}
	return time.Second / time.Duration(o.TickRate)
}

// LoadOptions reads a YAML config file. Missing settings get defaults.
func LoadOptions(path string) (opts Options, err error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return opts, errors.Wrap(err, "read config")
	}
	if err = yaml.Unmarshal(data, &opts); err != nil {
		return opts, errors.Wrapf(err, "parse config %s", path)
	}
	opts.SetDefaults()
	return opts, nil
}

// OpenServer starts an in-process session server, persisted to StorePath
// if set. The returned close function saves nothing; the server saves
// after every batch it processes.
func OpenServer(opts Options, log utils.Logger) (*server.Server, func() error, error) {
	var st *store.Store
	if opts.StorePath != "" {
		var err error
		if st, err = store.Open(opts.StorePath, store.Options{}, log); err != nil {
			return nil, nil, err
		}
	}
	srv, err := server.New(server.Options{ObjectLimits: opts.ObjectLimits}, log, st)
	if err != nil {
		if st != nil {
			_ = st.Close()
		}
		return nil, nil, err
	}
	closer := func() error { return nil }
	if st != nil {
		closer = st.Close
	}
	return srv, closer, nil
}

// SceneSync owns the services of one collaboration session for one
// editor.
type SceneSync struct {
	opts Options
	log  utils.Logger

	Editor     *host.Editor
	Session    *graph.Session
	Props      *props.Manager
	Loader     *loader.Loader
	Dispatcher *translators.Dispatcher
	Actors     *translators.ActorTranslator
	Assets     *translators.AssetTranslator
	Undo       *undo.Manager

	storage *loader.DirStorage
	idle    time.Duration
	running bool
}

// New wires the services. A nil log logs to stderr at Info, or Debug with
// LogDebug.
func New(opts Options, service graph.Service, e *host.Editor, log utils.Logger) (*SceneSync, error) {
	opts.SetDefaults()
	if log == nil {
		level := slog.LevelInfo
		if opts.LogDebug {
			level = slog.LevelDebug
		}
		log = utils.NewDefaultLogger(level)
	}
	s := &SceneSync{opts: opts, log: log, Editor: e}
	s.Session = graph.NewSession(service, log)
	m, err := props.NewManager(s.Session, props.NewObjectMap(), log, props.Options{
		Blacklist:       opts.Blacklist,
		ForceSync:       opts.ForceSync,
		SyncDefaultOnly: opts.SyncDefaultOnly,
	})
	if err != nil {
		return nil, err
	}
	s.Props = m
	s.Loader = loader.New(loader.Options{
		IdleTime:         opts.IdleTime,
		ReplaceDelay:     opts.StandInReplaceDelay,
		CacheSize:        opts.AssetCacheSize,
		CreatableClasses: opts.CreatableAssetClasses,
	}, e, e.Classes, m, log)
	m.SetLoader(s.Loader)
	if opts.AssetDir != "" {
		if s.storage, err = loader.NewDirStorage(opts.AssetDir, e.Classes, log); err != nil {
			return nil, err
		}
		s.storage.Resolve = s.Loader.Load
		s.Loader.SetStorage(s.storage)
	}

	s.Dispatcher = translators.NewDispatcher(translators.Options{MaxCreateTime: opts.MaxCreateTime}, m, log)
	s.Actors = translators.NewActorTranslator(s.Dispatcher, e, s.Loader)
	s.Actors.Register()
	s.Assets = translators.NewAssetTranslator(m, s.Loader)
	s.Dispatcher.Register(translators.TypeAsset, s.Assets, false)
	s.Undo = undo.NewManager(m, s.Dispatcher, s.Actors, log)
	return s, nil
}

func (s *SceneSync) Options() Options { return s.opts }

func (s *SceneSync) Logger() utils.Logger { return s.log }

func (s *SceneSync) IsRunning() bool { return s.running }

// Start hooks the editor and begins syncing. The undo manager subscribes
// before the dispatcher.
func (s *SceneSync) Start() {
	if s.running {
		return
	}
	s.running = true
	s.Editor.OnPropertyChanged = s.onEdit
	s.Editor.OnAssetDeleted = func(a *host.Asset) { s.Assets.OnAssetDeleted(a) }
	s.Undo.Initialize(s.Editor)
	s.Dispatcher.Initialize()
	s.Props.StartListening()
	s.log.Info("session started", "user", s.localName())
}

func (s *SceneSync) localName() string {
	if u := s.Session.LocalUser(); u != nil {
		return u.Name()
	}
	return ""
}

func (s *SceneSync) onEdit(n classes.Native, f *classes.Field) {
	s.idle = 0
	s.Dispatcher.Modified(n, f)
}

// Touch reports user input that is not an edit, so loading waits for the
// user to go idle.
func (s *SceneSync) Touch() { s.idle = 0 }

// Tick runs one update: remote creates, inbound messages, local edits,
// translator work and asset loading, in that order. Containers are rehashed
// again after syncing since reverted values may have changed their keys.
func (s *SceneSync) Tick(dt time.Duration) {
	if !s.running {
		return
	}
	s.idle += dt
	s.Dispatcher.ProcessCreateQueue()
	s.Session.Update()
	s.Props.RehashProperties()
	s.Props.BroadcastChangeEvents()
	s.Props.SyncProperties()
	s.Props.RehashProperties()
	s.Dispatcher.Update(dt)
	s.Loader.Tick(dt, s.idle)
}

// Stop unhooks the editor and disconnects. Natives stay in the editor.
func (s *SceneSync) Stop() error {
	if !s.running {
		return nil
	}
	s.running = false
	s.Props.CleanUp()
	s.Props.StopListening()
	s.Dispatcher.CleanUp()
	s.Undo.CleanUp()
	s.Loader.CleanUp()
	s.Editor.OnPropertyChanged = nil
	s.Editor.OnAssetDeleted = nil
	err := s.Session.Disconnect()
	if s.storage != nil {
		if cerr := s.storage.Close(); err == nil {
			err = cerr
		}
	}
	s.log.Info("session stopped")
	return err
}

// SaveAssets writes the editor's assets to AssetDir. Stand-ins and
// transient assets are skipped.
func (s *SceneSync) SaveAssets() (n int, err error) {
	if s.storage == nil {
		return 0, errors.New("no asset dir configured")
	}
	for _, a := range s.Editor.Assets() {
		if a.Transient || s.Loader.IsStandIn(a) {
			continue
		}
		if err = s.storage.Save(a); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}

// Collectors returns the metrics of every package.
func Collectors() (ret []prometheus.Collector) {
	ret = append(ret, props.Collectors()...)
	ret = append(ret, loader.Collectors()...)
	ret = append(ret, translators.Collectors()...)
	ret = append(ret, server.Collectors()...)
	return
}

// RegisterMetrics registers Collectors with reg.
func RegisterMetrics(reg prometheus.Registerer) error {
	for _, c := range Collectors() {
		if err := reg.Register(c); err != nil {
			return errors.Wrap(err, "register metrics")
		}
	}
	return nil
}
