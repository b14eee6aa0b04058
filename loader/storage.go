package loader

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/drpcorg/scenesync/utils"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Storage is where assets live when they are not in memory.
type Storage interface {
	// Load returns scene_errors.ErrAssetNotFound if there is no asset at path.
	Load(path, class string) (classes.Asset, error)
	// Updates returns the paths of assets written since the last call.
	Updates() []string
	Close() error
}

// Resolver finds the asset an object field of a stored asset refers to.
type Resolver func(path, class string) classes.Native

// AssetFile is the on-disk form of an asset. Object references are written
// as "Class;path".
type AssetFile struct {
	Class  string         `yaml:"class"`
	Fields map[string]any `yaml:"fields,omitempty"`
}

// DirStorage keeps one YAML file per asset under a root directory. The
// asset "/Game/Rocks/Granite.Granite" is the file Game/Rocks/Granite.yaml.
// The directory tree is watched and new or rewritten files are reported by
// Updates.
type DirStorage struct {
	root    string
	classes *classes.Registry
	log     utils.Logger
	// Resolve is used for object fields; nil leaves them empty.
	Resolve Resolver

	watcher *fsnotify.Watcher
	mu      sync.Mutex
	updated []string
	done    chan struct{}
}

// NewDirStorage watches root, creating it if needed.
func NewDirStorage(root string, reg *classes.Registry, log utils.Logger) (*DirStorage, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, errors.Wrap(err, "asset dir")
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "asset dir watcher")
	}
	d := &DirStorage{root: root, classes: reg, log: log, watcher: w, done: make(chan struct{})}
	if err := d.watchTree(root); err != nil {
		_ = w.Close()
		return nil, err
	}
	go d.watch()
	return d, nil
}

func (d *DirStorage) watchTree(dir string) error {
	return filepath.WalkDir(dir, func(p string, e fs.DirEntry, err error) error {
		if err != nil || !e.IsDir() {
			return nil
		}
		return d.watcher.Add(p)
	})
}

func (d *DirStorage) watch() {
	defer close(d.done)
	for {
		select {
		case ev, ok := <-d.watcher.Events:
			if !ok {
				return
			}
			d.onEvent(ev)
		case err, ok := <-d.watcher.Errors:
			if !ok {
				return
			}
			d.log.Warn("asset dir watch error", "err", err)
		}
	}
}

func (d *DirStorage) onEvent(ev fsnotify.Event) {
	if ev.Has(fsnotify.Create) {
		if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
			_ = d.watchTree(ev.Name)
			// files may have landed before the watch was added
			_ = filepath.WalkDir(ev.Name, func(p string, e fs.DirEntry, err error) error {
				if err == nil && !e.IsDir() {
					d.report(p)
				}
				return nil
			})
			return
		}
	}
	if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
		d.report(ev.Name)
	}
}

func (d *DirStorage) report(file string) {
	path, ok := d.assetPath(file)
	if !ok {
		return
	}
	d.mu.Lock()
	for _, p := range d.updated {
		if p == path {
			d.mu.Unlock()
			return
		}
	}
	d.updated = append(d.updated, path)
	d.mu.Unlock()
}

func (d *DirStorage) Updates() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	ret := d.updated
	d.updated = nil
	return ret
}

// FileName is the file that holds the asset at path.
func (d *DirStorage) FileName(path string) string {
	pkg := path
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		pkg = path[:i]
	}
	return filepath.Join(d.root, filepath.FromSlash(strings.TrimPrefix(pkg, "/"))+".yaml")
}

func (d *DirStorage) assetPath(file string) (string, bool) {
	rel, err := filepath.Rel(d.root, file)
	if err != nil || !strings.HasSuffix(rel, ".yaml") || strings.HasPrefix(rel, "..") {
		return "", false
	}
	pkg := "/" + filepath.ToSlash(strings.TrimSuffix(rel, ".yaml"))
	return pkg + "." + filepath.Base(strings.TrimSuffix(rel, ".yaml")), true
}

func (d *DirStorage) Load(path, class string) (classes.Asset, error) {
	data, err := os.ReadFile(d.FileName(path))
	if os.IsNotExist(err) {
		return nil, scene_errors.ErrAssetNotFound
	}
	if err != nil {
		return nil, errors.Wrapf(err, "read asset %s", path)
	}
	var file AssetFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "parse asset %s", path)
	}
	c := d.classes.Get(file.Class)
	if c == nil || c.New == nil {
		return nil, errors.Wrapf(scene_errors.ErrTypeUnknown, "asset %s class %q", path, file.Class)
	}
	if class != "" && !c.IsA(class) {
		return nil, errors.Wrapf(scene_errors.ErrTypeUnknown, "asset %s is a %s, not a %s", path, file.Class, class)
	}
	a, ok := c.New(path).(classes.Asset)
	if !ok {
		return nil, errors.Wrapf(scene_errors.ErrTypeUnknown, "class %s is not an asset", file.Class)
	}
	for name, raw := range file.Fields {
		f := c.Field(name)
		if f == nil {
			d.log.Warn("unknown asset field", "path", path, "field", name)
			continue
		}
		v, err := d.decode(f.Type, raw)
		if err != nil {
			return nil, errors.Wrapf(err, "asset %s field %s", path, name)
		}
		f.Set(a, v)
	}
	return a, nil
}

// Save writes the non-default fields of a to its file.
func (d *DirStorage) Save(a classes.Asset) error {
	file := AssetFile{Class: a.Class().Name, Fields: make(map[string]any)}
	for _, f := range a.Class().Fields() {
		if f.Type.Kind == classes.Unsupported || classes.IsDefault(a, f) {
			continue
		}
		file.Fields[f.Name] = encode(f.Type, f.Get(a))
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return errors.Wrapf(err, "encode asset %s", a.Path())
	}
	name := d.FileName(a.Path())
	if err := os.MkdirAll(filepath.Dir(name), 0o755); err != nil {
		return errors.Wrapf(err, "save asset %s", a.Path())
	}
	return errors.Wrapf(os.WriteFile(name, data, 0o644), "save asset %s", a.Path())
}

func (d *DirStorage) Close() error {
	err := d.watcher.Close()
	<-d.done
	return err
}
