package translators

import (
	"bytes"

	"github.com/drpcorg/scenesync/archive"
	"github.com/drpcorg/scenesync/checksum"
	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/loader"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/drpcorg/scenesync/utils"
	"github.com/pkg/errors"
)

const TypeAsset = "Asset"

// Keys of asset objects. They are metadata and do not count towards the
// checksum.
const (
	keyPath     = "#path"
	keyClass    = "#class"
	keyChecksum = "#checksum"
	keyGeometry = "#geometry"
)

// Mesh geometry is synced as one blob instead of field by field.
var geometryFields = []string{"Vertices", "Material"}

// AssetTranslator syncs assets of creatable classes. Assets are matched by
// path. A local asset that differs from the server version is reported as
// a conflict and left alone.
type AssetTranslator struct {
	*NativeTranslator
	ld  *loader.Loader
	log utils.Logger

	conflicting map[classes.Native]bool
	// deleted are objects of assets removed from the editor, by path
	deleted map[string]*graph.Object
	// waiting are objects whose asset is a stand-in for now, by path
	waiting map[string]*graph.Object

	onMissing, onReplace int
}

func NewAssetTranslator(m *props.Manager, ld *loader.Loader) *AssetTranslator {
	t := &AssetTranslator{
		NativeTranslator: NewNativeTranslator(m),
		ld:               ld,
		log:              m.Logger(),
	}
	t.reset()
	t.RegisterPropertyHandler(keyGeometry, t.onGeometryChange)
	return t
}

func (t *AssetTranslator) reset() {
	t.conflicting = make(map[classes.Native]bool)
	t.deleted = make(map[string]*graph.Object)
	t.waiting = make(map[string]*graph.Object)
}

func (t *AssetTranslator) Initialize() {
	t.onMissing = t.ld.OnCreateMissingAsset.Add(func(e loader.AssetEvent) {
		if o, ok := t.deleted[e.Path]; ok {
			delete(t.deleted, e.Path)
			if o.IsCreated() && !o.IsDeletePending() {
				t.OnCreate(o, 0)
			}
		}
	})
	t.onReplace = t.ld.OnReplaceStandIn.Add(func(e loader.AssetEvent) {
		if o, ok := t.waiting[e.Path]; ok {
			delete(t.waiting, e.Path)
			if o.IsCreated() && !o.IsDeletePending() {
				t.OnCreate(o, 0)
			}
		}
	})
}

func (t *AssetTranslator) CleanUp() {
	t.ld.OnCreateMissingAsset.Remove(t.onMissing)
	t.ld.OnReplaceStandIn.Remove(t.onReplace)
	t.reset()
}

// IsConflicting is true for local assets that differ from the server
// version.
func (t *AssetTranslator) IsConflicting(n classes.Native) bool { return t.conflicting[n] }

func isMesh(n classes.Native) bool { return n.Class().IsA("Mesh") }

func exclusions(n classes.Native) []string {
	if isMesh(n) {
		return geometryFields
	}
	return nil
}

func (t *AssetTranslator) Create(n classes.Native) (*graph.Object, bool) {
	a, ok := n.(classes.Asset)
	if !ok || !t.ld.IsCreatableAssetType(a.Class().Name) || t.ld.IsStandIn(a) {
		return nil, false
	}
	if t.conflicting[n] {
		return nil, true
	}
	if o := t.m.Objects().Object(n); o != nil {
		return o, true
	}
	dict := property.NewDictionary()
	o := graph.NewObject(TypeAsset, dict, graph.NoFlags)
	// mapped first so references back to the asset resolve
	t.m.Objects().Add(n, o)
	dict.Set(keyPath, t.m.FromString(a.Path()))
	dict.Set(keyClass, t.m.FromString(a.Class().Name))
	t.m.CreateProperties(n, dict, exclusions(n)...)
	if isMesh(n) {
		t.writeGeometry(dict, n)
	}
	dict.Set(keyChecksum, property.NewLong(int64(t.checksum(dict))))
	if !t.m.Session().Create(o) {
		t.log.Warn("unable to upload asset", "path", a.Path())
		t.m.Objects().Remove(n)
		return nil, true
	}
	t.log.Debug("uploading asset", "path", a.Path())
	return o, true
}

func (t *AssetTranslator) checksum(dict *property.Dictionary) uint64 {
	return checksum.Fletcher64(dict, t.m.Session(), checksum.SkipMetaKeys)
}

func (t *AssetTranslator) OnCreate(o *graph.Object, _ int) {
	dict := o.Property()
	path := t.m.ToString(dict.Get(keyPath))
	class := t.m.ToString(dict.Get(keyClass))
	if path == "" || class == "" {
		t.log.Warn("asset object without path or class", "object", o.String())
		return
	}
	delete(t.deleted, path)
	n := t.ld.Load(path, class)
	if n == nil {
		return
	}
	if t.ld.IsStandIn(n) {
		t.waiting[path] = o
		return
	}
	delete(t.waiting, path)
	if cur := t.m.Objects().Object(n); cur != nil && cur != o {
		t.log.Warn("asset uploaded by multiple users", "path", path)
		// the object the server created first wins on every peer
		if cur.IsCreated() && cur.Id() < o.Id() {
			t.m.Session().Delete(o)
			return
		}
		t.m.Objects().Remove(n)
		t.m.Session().Delete(cur)
	}
	if !t.ld.WasCreatedOnLoad(n) && !t.matches(o, n) {
		t.log.Warn("local asset differs from the server version and will not sync", "path", path)
		t.conflicting[n] = true
		AssetConflicts.Inc()
		return
	}
	delete(t.conflicting, n)
	t.m.Objects().Add(n, o)
	t.m.ApplyProperties(n, dict, exclusions(n)...)
	if isMesh(n) {
		t.applyGeometry(o, n)
	}
}

// matches is true if the local asset equals the server version, either as
// first uploaded or as it is now.
func (t *AssetTranslator) matches(o *graph.Object, n classes.Native) bool {
	local := property.NewDictionary()
	t.m.CreateProperties(n, local, exclusions(n)...)
	if isMesh(n) {
		blob, _ := t.encodeGeometry(n)
		var server []byte
		if v, ok := o.Property().Get(keyGeometry).(*property.Value); ok && v.Kind() == property.ByteArray {
			server = v.AsBytes()
		}
		if !bytes.Equal(blob, server) {
			return false
		}
	}
	sum := t.checksum(local)
	if v, ok := o.Property().Get(keyChecksum).(*property.Value); ok && v.Kind() == property.Long && uint64(v.AsLong()) == sum {
		return true
	}
	return sum == t.checksum(o.Property())
}

func (t *AssetTranslator) unmap(o *graph.Object) {
	t.m.Objects().RemoveObject(o)
	for path, x := range t.waiting {
		if x == o {
			delete(t.waiting, path)
		}
	}
	for path, x := range t.deleted {
		if x == o {
			delete(t.deleted, path)
		}
	}
}

func (t *AssetTranslator) OnDelete(o *graph.Object) { t.unmap(o) }

func (t *AssetTranslator) OnConfirmDelete(o *graph.Object, _ bool) { t.unmap(o) }

func (t *AssetTranslator) OnCreateFailed(o *graph.Object) { t.unmap(o) }

// OnAssetDeleted is the host hook for assets removed from the editor. The
// server object stays; it is applied again if the asset is recreated.
func (t *AssetTranslator) OnAssetDeleted(a classes.Asset) {
	delete(t.conflicting, a)
	o := t.m.Objects().Remove(a)
	if o == nil {
		return
	}
	t.deleted[a.Path()] = o
}

func (t *AssetTranslator) OnUPropertyChange(o *graph.Object, n classes.Native, f *classes.Field) bool {
	if !isMesh(n) || !excluded(f.Name, geometryFields) {
		return false
	}
	if o.IsFullyLocked() {
		t.applyGeometry(o, n)
	} else {
		t.writeGeometry(o.Property(), n)
	}
	return true
}

func (t *AssetTranslator) OnUndoRedo(o *graph.Object, n classes.Native) bool {
	if o == nil {
		return false
	}
	if _, ok := n.(classes.Asset); !ok {
		return false
	}
	if !o.IsSyncing() {
		return true
	}
	t.syncFrom(o, n, exclusions(n)...)
	if isMesh(n) {
		if o.IsFullyLocked() {
			t.applyGeometry(o, n)
		} else {
			t.writeGeometry(o.Property(), n)
		}
	}
	return true
}

func (t *AssetTranslator) onGeometryChange(n classes.Native, p property.Property) bool {
	if !isMesh(n) {
		return false
	}
	if p == nil {
		t.resetGeometry(n)
		return true
	}
	t.readGeometry(p, n)
	return true
}

// encodeGeometry writes the vertex count, the vertices and the material.
func (t *AssetTranslator) encodeGeometry(n classes.Native) ([]byte, []uint32) {
	c := n.Class()
	w := archive.NewWriter(t.m)
	verts, _ := c.Field("Vertices").Get(n).([]any)
	w.WriteUint32(uint32(len(verts)))
	for _, v := range verts {
		f, _ := v.(float32)
		w.WriteFloat32(f)
	}
	mat, _ := c.Field("Material").Get(n).(classes.Native)
	w.WriteObject(mat)
	return w.Bytes(), w.MissingPathIds()
}

// writeGeometry stores the geometry of n under keyGeometry if it changed.
func (t *AssetTranslator) writeGeometry(dict *property.Dictionary, n classes.Native) {
	blob, missing := t.encodeGeometry(n)
	cur, ok := dict.Get(keyGeometry).(*property.Value)
	if ok && cur.Kind() == property.ByteArray {
		cur.Set(property.NewBytes(blob))
	} else {
		dict.Set(keyGeometry, property.NewBytes(blob))
	}
	p := dict.Get(keyGeometry)
	for _, id := range missing {
		t.ld.AddStandInReference(id, p)
	}
}

func (t *AssetTranslator) applyGeometry(o *graph.Object, n classes.Native) {
	p := o.Property().Get(keyGeometry)
	if p == nil {
		t.resetGeometry(n)
		return
	}
	t.readGeometry(p, n)
}

func (t *AssetTranslator) resetGeometry(n classes.Native) {
	for _, name := range geometryFields {
		f := n.Class().Field(name)
		if classes.ResetField(n, f) {
			postEdit(n, f)
		}
	}
}

func (t *AssetTranslator) readGeometry(p property.Property, n classes.Native) {
	v, ok := p.(*property.Value)
	if !ok || v.Kind() != property.ByteArray {
		t.log.Warn("geometry is not a byte array", "path", p.Path())
		return
	}
	verts, mat, missing, err := t.decodeGeometry(v.AsBytes(), n)
	if err != nil {
		t.log.Warn("unable to read geometry", "path", p.Path(), "err", err)
		return
	}
	for _, id := range missing {
		t.ld.AddStandInReference(id, p)
	}
	c := n.Class()
	set(n, c.Field("Vertices"), verts)
	set(n, c.Field("Material"), mat)
}

func (t *AssetTranslator) decodeGeometry(blob []byte, n classes.Native) ([]any, any, []uint32, error) {
	r, err := archive.NewReader(t.m, blob)
	if err != nil {
		return nil, nil, nil, err
	}
	count := r.ReadUint32()
	if int64(count) > int64(r.Len()/4) {
		return nil, nil, nil, errors.Wrapf(scene_errors.ErrBadBlob, "%d vertices in %d bytes", count, r.Len())
	}
	verts := make([]any, count)
	for i := range verts {
		verts[i] = r.ReadFloat32()
	}
	cur, _ := n.Class().Field("Material").Get(n).(classes.Native)
	mat := r.ReadObject(cur)
	if r.Err() != nil {
		return nil, nil, nil, r.Err()
	}
	var m any
	if !classes.IsNil(mat) {
		m = mat
	}
	return verts, m, r.MissingPathIds(), nil
}

func set(n classes.Native, f *classes.Field, v any) {
	if f.Type.Equal(f.Get(n), v) {
		return
	}
	f.Set(n, v)
	postEdit(n, f)
}

func postEdit(n classes.Native, f *classes.Field) {
	if x, ok := n.(classes.Notifiable); ok {
		x.PostEditChange(f)
	}
}

func excluded(name string, list []string) bool {
	for _, x := range list {
		if x == name {
			return true
		}
	}
	return false
}
