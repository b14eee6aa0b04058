package loader

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/property"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/scene_errors"
	"github.com/drpcorg/scenesync/server"
	"github.com/drpcorg/scenesync/utils"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testlog = utils.NewDefaultLogger(slog.LevelError)

const granite = "/Game/Rocks/Granite.Granite"

type fixture struct {
	loader  *Loader
	manager *props.Manager
	editor  *host.Editor
	storage *DirStorage
}

func setup(t *testing.T, opts Options) *fixture {
	srv, err := server.New(server.Options{}, testlog, nil)
	require.NoError(t, err)
	s := graph.NewSession(srv.Connect("alice", graph.Color{1, 0, 0}), testlog)
	s.Update()
	require.NotNil(t, s.LocalUser())

	m, err := props.NewManager(s, props.NewObjectMap(), testlog, props.Options{})
	require.NoError(t, err)
	e := host.NewEditor()
	st, err := NewDirStorage(t.TempDir(), e.Classes, testlog)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ld := New(opts, e, e.Classes, m, testlog)
	ld.SetStorage(st)
	st.Resolve = func(path, class string) classes.Native { return ld.Load(path, class) }
	m.SetLoader(ld)
	return &fixture{loader: ld, manager: m, editor: e, storage: st}
}

func (f *fixture) upload(t *testing.T, n classes.Native) *graph.Object {
	dict := property.NewDictionary()
	f.manager.CreateProperties(n, dict)
	o := graph.NewObject(n.Class().Name, dict, graph.NoFlags)
	require.True(t, f.manager.Session().Create(o))
	f.manager.Objects().Add(n, o)
	return o
}

type fakeDispatcher struct {
	changed []property.Property
}

func (d *fakeDispatcher) Create(classes.Native) *graph.Object { return nil }

func (d *fakeDispatcher) OnPropertyChange(p property.Property) bool {
	d.changed = append(d.changed, p)
	return true
}

func (d *fakeDispatcher) OnUPropertyChange(*graph.Object, classes.Native, *classes.Field) bool {
	return false
}

func TestStandInName(t *testing.T) {
	f := setup(t, Options{})
	name := StandInName("Mesh", granite)
	assert.Equal(t, "Missing_Mesh+/Game/Rocks/Granite+Granite", name)

	s := f.editor.NewStandIn(f.editor.Classes.Get("Mesh"), name)
	assert.Equal(t, "Mesh;"+granite, f.loader.GetPathFromStandIn(s))

	real := host.NewAsset(f.editor.Classes.Get("Mesh"), granite)
	assert.Equal(t, "", f.loader.GetPathFromStandIn(real))
}

func TestLoader_CreatesMissingAsset(t *testing.T) {
	f := setup(t, Options{CreatableClasses: []string{"Material"}})
	var created []string
	f.loader.OnCreateMissingAsset.Add(func(e AssetEvent) { created = append(created, e.Path) })

	assert.True(t, f.loader.IsCreatableAssetType("Material"))
	assert.False(t, f.loader.IsCreatableAssetType("Mesh"))
	assert.False(t, f.loader.IsCreatableAssetType("Nope"))

	a := f.loader.Load("/Game/Mats/Red.Red", "Material")
	require.NotNil(t, a)
	assert.True(t, f.loader.WasCreatedOnLoad(a))
	assert.False(t, f.loader.IsStandIn(a))
	assert.Equal(t, []string{"/Game/Mats/Red.Red"}, created)
	assert.Equal(t, float32(0.5), a.(*host.Asset).Roughness)
	assert.Same(t, a, f.editor.FindAsset("/Game/Mats/Red.Red"))
	assert.Same(t, a, f.loader.Load("/Game/Mats/Red.Red", "Material"))
	assert.Len(t, created, 1)
}

func TestLoader_StandIn(t *testing.T) {
	f := setup(t, Options{})
	var events []AssetEvent
	f.loader.OnCreateStandIn.Add(func(e AssetEvent) { events = append(events, e) })
	f.loader.RegisterStandInGenerator("Asset", func(path string, s classes.Asset) {
		s.(*host.Asset).Bounds = classes.Struct{"X": float32(1), "Y": float32(1), "Z": float32(1)}
	})
	before := testutil.ToFloat64(StandInsCreated)

	s := f.loader.Load(granite, "Mesh")
	require.NotNil(t, s)
	assert.True(t, f.loader.IsStandIn(s))
	assert.True(t, s.(*host.Asset).Transient)
	assert.Equal(t, float32(1), s.(*host.Asset).Bounds["X"])
	require.Len(t, events, 1)
	assert.Equal(t, granite, events[0].Path)
	assert.Same(t, s, f.loader.StandIn(granite))
	assert.Nil(t, f.loader.LoadFromCache(granite))
	assert.Same(t, s, f.loader.Load(granite, "Mesh"))
	assert.Equal(t, before+1, testutil.ToFloat64(StandInsCreated))

	assert.Nil(t, f.loader.Load("/Game/X.X", "NoSuchClass"))
}

func TestLoader_LoadsFromStorage(t *testing.T) {
	f := setup(t, Options{})
	mesh := host.NewAsset(f.editor.Classes.Get("Mesh"), granite)
	mesh.Vertices = []any{float32(1), float32(2)}
	require.NoError(t, f.storage.Save(mesh))
	before := testutil.ToFloat64(AssetsLoaded)

	a := f.loader.Load(granite, "Mesh")
	require.NotNil(t, a)
	assert.False(t, f.loader.IsStandIn(a))
	assert.Equal(t, []any{float32(1), float32(2)}, a.(*host.Asset).Vertices)
	assert.Same(t, a, f.editor.FindAsset(granite))
	assert.Equal(t, before+1, testutil.ToFloat64(AssetsLoaded))
}

func TestLoader_ReplaceStandIns(t *testing.T) {
	f := setup(t, Options{})
	d := &fakeDispatcher{}
	f.manager.SetDispatcher(d)
	l := f.editor.AddLevel("Main")
	a := f.editor.SpawnActor(l, "StaticMeshActor", "Rock")
	o := f.upload(t, a)

	o.Property().Set("Mesh", f.manager.FromString("Mesh;"+granite))
	require.True(t, f.manager.ApplyProperty(o.Property().Get("Mesh")))
	standIn := a.Mesh
	require.NotNil(t, standIn)
	require.True(t, f.loader.IsStandIn(standIn))

	blob := property.NewBytes([]byte{1, 2, 3})
	o.Property().Set("#Blob", blob)
	f.loader.AddStandInReference(f.manager.Session().GetStringTableId("Mesh;"+granite), blob)

	var replaced []string
	f.loader.OnReplaceStandIn.Add(func(e AssetEvent) { replaced = append(replaced, e.Path) })

	real := host.NewAsset(f.editor.Classes.Get("Mesh"), granite)
	real.Bounds = classes.Struct{"X": float32(4), "Y": float32(4), "Z": float32(4)}
	require.NoError(t, f.storage.Save(real))

	require.Eventually(t, func() bool {
		f.loader.Tick(10*time.Millisecond, time.Hour)
		return a.Mesh != standIn
	}, 5*time.Second, 10*time.Millisecond)

	got, ok := a.Mesh.(*host.Asset)
	require.True(t, ok)
	assert.Equal(t, granite, got.Path())
	assert.False(t, got.Transient)
	assert.Equal(t, float32(4), got.Bounds["X"])
	assert.False(t, f.loader.IsStandIn(standIn))
	assert.Nil(t, f.loader.StandIn(granite))
	assert.Equal(t, []string{granite}, replaced)
	assert.Equal(t, []property.Property{blob}, d.changed)
}

func TestLoader_ReplaceDelay(t *testing.T) {
	f := setup(t, Options{ReplaceDelay: 100 * time.Millisecond})
	l := f.editor.AddLevel("Main")
	a := f.editor.SpawnActor(l, "StaticMeshActor", "Rock")
	o := f.upload(t, a)
	o.Property().Set("Mesh", f.manager.FromString("Mesh;"+granite))
	require.True(t, f.manager.ApplyProperty(o.Property().Get("Mesh")))
	standIn := a.Mesh

	f.loader.OnNewAsset(host.NewAsset(f.editor.Classes.Get("Mesh"), granite))
	f.loader.Tick(60*time.Millisecond, time.Hour)
	assert.Same(t, standIn, a.Mesh)
	f.loader.Tick(60*time.Millisecond, time.Hour)
	assert.Same(t, standIn, a.Mesh)
	f.loader.Tick(60*time.Millisecond, time.Hour)
	assert.NotSame(t, standIn, a.Mesh)
}

func TestLoader_LoadWhenIdle(t *testing.T) {
	f := setup(t, Options{IdleTime: time.Minute})
	l := f.editor.AddLevel("Main")
	a := f.editor.SpawnActor(l, "StaticMeshActor", "Rock")
	o := f.upload(t, a)
	f.loader.Tick(0, 0)
	require.False(t, f.loader.IsUserIdle())

	o.Property().Set("Mesh", f.manager.FromString("Mesh;"+granite))
	mesh := o.Property().Get("Mesh")
	assert.False(t, f.manager.ApplyProperty(mesh))
	assert.Nil(t, a.Mesh)
	assert.Equal(t, 1, f.loader.PendingLoads())
	f.loader.LoadWhenIdle(mesh)
	assert.Equal(t, 1, f.loader.PendingLoads())

	f.loader.Tick(time.Second, 30*time.Second)
	assert.Nil(t, a.Mesh)
	f.loader.Tick(time.Second, 2*time.Minute)
	assert.NotNil(t, a.Mesh)
	assert.Equal(t, 0, f.loader.PendingLoads())
}

func TestLoader_LoadAssetsFor(t *testing.T) {
	f := setup(t, Options{IdleTime: time.Minute})
	l := f.editor.AddLevel("Main")
	a := f.editor.SpawnActor(l, "StaticMeshActor", "Rock")
	o := f.upload(t, a)

	o.Property().Set("Mesh", f.manager.FromString("Mesh;"+granite))
	f.manager.ApplyProperty(o.Property().Get("Mesh"))
	require.Nil(t, a.Mesh)

	f.loader.LoadAssetsFor(o)
	assert.NotNil(t, a.Mesh)
	assert.False(t, f.loader.IsUserIdle())
	assert.Equal(t, 0, f.loader.PendingLoads())
}

func TestDirStorage(t *testing.T) {
	f := setup(t, Options{})
	reg := f.editor.Classes
	tex := host.NewAsset(reg.Get("Texture"), "/Game/Tex/Stone.Stone")
	tex.Width, tex.Height = 256, 128
	require.NoError(t, f.storage.Save(tex))

	mat := host.NewAsset(reg.Get("Material"), "/Game/Mats/Stone.Stone")
	mat.Roughness = 0.25
	mat.Color = classes.Struct{"R": float32(1), "G": float32(0.5), "B": float32(0), "A": float32(1)}
	mat.Textures = []any{tex}
	require.NoError(t, f.storage.Save(mat))

	_, err := os.Stat(filepath.Join(f.storage.root, "Game", "Mats", "Stone.yaml"))
	require.NoError(t, err)

	got, err := f.storage.Load("/Game/Mats/Stone.Stone", "Material")
	require.NoError(t, err)
	m := got.(*host.Asset)
	assert.Equal(t, float32(0.25), m.Roughness)
	assert.Equal(t, float32(0.5), m.Color["G"])
	require.Len(t, m.Textures, 1)
	loaded := m.Textures[0].(*host.Asset)
	assert.Equal(t, "/Game/Tex/Stone.Stone", loaded.Path())
	assert.Equal(t, uint32(256), loaded.Width)

	_, err = f.storage.Load("/Game/Mats/None.None", "Material")
	assert.ErrorIs(t, err, scene_errors.ErrAssetNotFound)
	_, err = f.storage.Load("/Game/Mats/Stone.Stone", "Texture")
	assert.ErrorIs(t, err, scene_errors.ErrTypeUnknown)

	require.Eventually(t, func() bool {
		for _, p := range f.storage.Updates() {
			if p == "/Game/Tex/Stone.Stone" {
				return true
			}
		}
		return false
	}, 5*time.Second, 10*time.Millisecond)
}
