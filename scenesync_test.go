package scenesync

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/server"
	"github.com/drpcorg/scenesync/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testlog = utils.NewDefaultLogger(slog.LevelError)

func TestOptions_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "scenesync.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
idle_time: 2s
tick_rate: 30
blacklist: ["Actor.Tags"]
creatable_asset_classes: [Material, Mesh]
object_limits:
  Actor: 100
`), 0o644))
	opts, err := LoadOptions(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Second, opts.IdleTime)
	assert.Equal(t, 30, opts.TickRate)
	assert.Equal(t, []string{"Actor.Tags"}, opts.Blacklist)
	assert.Equal(t, []string{"Material", "Mesh"}, opts.CreatableAssetClasses)
	assert.Equal(t, uint32(100), opts.ObjectLimits["Actor"])
	assert.Equal(t, 40*time.Millisecond, opts.MaxCreateTime)
	assert.Equal(t, 100*time.Millisecond, opts.StandInReplaceDelay)
	assert.Equal(t, 1024, opts.AssetCacheSize)
	assert.Equal(t, time.Second/30, opts.TickInterval())

	_, err = LoadOptions(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("tick_rate: [1"), 0o644))
	_, err = LoadOptions(path)
	assert.Error(t, err)
}

func start(t *testing.T, opts Options, srv *server.Server, name string, e *host.Editor) *SceneSync {
	s, err := New(opts, srv.Connect(name, graph.Color{1, 0, 0}), e, testlog)
	require.NoError(t, err)
	s.Start()
	return s
}

func tick(syncs ...*SceneSync) {
	for i := 0; i < 6; i++ {
		for _, s := range syncs {
			s.Tick(time.Second)
		}
	}
}

func TestSceneSync_Session(t *testing.T) {
	opts := Options{
		StorePath:             filepath.Join(t.TempDir(), "store"),
		CreatableAssetClasses: []string{"Material"},
	}
	srv, closeStore, err := OpenServer(opts, testlog)
	require.NoError(t, err)

	e := host.NewEditor()
	red := e.CreateAsset("Material", "/Game/Red.Red")
	red.Roughness = 0.9
	cube := e.SpawnActor(e.AddLevel("Main"), "StaticMeshActor", "Cube")
	cube.Materials = []any{red}
	alice := start(t, opts, srv, "alice", e)
	tick(alice)
	bob := start(t, opts, srv, "bob", host.NewEditor())
	tick(alice, bob)
	assert.True(t, alice.IsRunning())

	require.NotNil(t, bob.Editor.Level("Main"))
	bobCube := bob.Editor.Level("Main").Actor("Cube")
	require.NotNil(t, bobCube)
	require.Len(t, bobCube.Materials, 1)
	assert.Equal(t, float32(0.9), bobCube.Materials[0].(*host.Asset).Roughness)

	e.BeginTransaction("rename")
	e.Set(cube, "Label", "box")
	e.EndTransaction()
	tick(alice, bob)
	assert.Equal(t, "box", bobCube.Label)

	e.Undo()
	tick(alice, bob)
	assert.Equal(t, "", bobCube.Label)

	require.NoError(t, bob.Stop())
	require.NoError(t, alice.Stop())
	assert.False(t, alice.IsRunning())
	assert.Nil(t, e.OnPropertyChanged)
	// edits after stopping are not sent anywhere
	e.Set(cube, "Label", "late")
	alice.Tick(time.Second)
	assert.Equal(t, "", bobCube.Label)
	n := srv.NumObjects()
	require.NoError(t, closeStore())

	srv, closeStore, err = OpenServer(opts, testlog)
	require.NoError(t, err)
	defer closeStore()
	assert.Equal(t, n, srv.NumObjects())
	carol := start(t, opts, srv, "carol", host.NewEditor())
	tick(carol)
	require.NotNil(t, carol.Editor.Level("Main"))
	assert.NotNil(t, carol.Editor.Level("Main").Actor("Cube"))
	require.NoError(t, carol.Stop())
}

func TestSceneSync_SaveAssets(t *testing.T) {
	srv, closeStore, err := OpenServer(Options{}, testlog)
	require.NoError(t, err)
	defer closeStore()

	e := host.NewEditor()
	red := e.CreateAsset("Material", "/Game/Red.Red")
	red.Roughness = 0.25
	s := start(t, Options{}, srv, "alice", e)
	_, err = s.SaveAssets()
	assert.Error(t, err)
	require.NoError(t, s.Stop())

	dir := t.TempDir()
	s = start(t, Options{AssetDir: dir}, srv, "alice", e)
	defer s.Stop()
	n, err := s.SaveAssets()
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	data, err := os.ReadFile(filepath.Join(dir, "Game", "Red.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "Material")
	assert.Contains(t, string(data), "0.25")
}

func TestRegisterMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, RegisterMetrics(reg))
	assert.Error(t, RegisterMetrics(reg))
	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, mfs)
}
