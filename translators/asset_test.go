package translators

import (
	"testing"

	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/property"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const granitePath = "/Game/Rocks/Granite.Granite"

// sceneWithRed has alice reference a red material from a mesh actor.
func sceneWithRed() (*host.Editor, *host.Actor, *host.Asset) {
	e := host.NewEditor()
	red := e.CreateAsset("Material", redPath)
	red.Roughness = 0.8
	cube := e.SpawnActor(e.AddLevel("Main"), "StaticMeshActor", "Cube")
	cube.Materials = []any{red}
	return e, cube, red
}

func TestAssetTranslator_UploadedWhenReferenced(t *testing.T) {
	srv := newServer(t)
	e, _, red := sceneWithRed()
	alice := newPeer(t, srv, "alice", e)
	settle(alice)
	o := alice.object(red)
	require.NotNil(t, o)
	assert.True(t, o.IsCreated())
	assert.Equal(t, TypeAsset, o.Type())
	assert.Equal(t, redPath, alice.m.ToString(o.Property().Get(keyPath)))
	assert.Equal(t, "Material", alice.m.ToString(o.Property().Get(keyClass)))
	assert.True(t, o.Property().HasKey(keyChecksum))

	bob := newPeer(t, srv, "bob", nil)
	settle(alice, bob)
	a, ok := bob.editor.FindAsset(redPath).(*host.Asset)
	require.True(t, ok)
	assert.Equal(t, float32(0.8), a.Roughness)
	assert.True(t, bob.ld.WasCreatedOnLoad(a))
	assert.Equal(t, o.Id(), bob.object(a).Id())
	bc := bob.editor.Level("Main").Actor("Cube")
	require.NotNil(t, bc)
	assert.Equal(t, []any{a}, bc.Materials)

	alice.editor.Set(red, "Roughness", float32(0.3))
	settle(alice, bob)
	assert.Equal(t, float32(0.3), a.Roughness)
}

func TestAssetTranslator_MatchingLocalCopy(t *testing.T) {
	srv := newServer(t)
	e, _, _ := sceneWithRed()
	alice := newPeer(t, srv, "alice", e)
	settle(alice)

	be := host.NewEditor()
	mine := be.CreateAsset("Material", redPath)
	mine.Roughness = 0.8
	bob := newPeer(t, srv, "bob", be)
	settle(alice, bob)
	assert.NotNil(t, bob.object(mine))
	assert.False(t, bob.assets.IsConflicting(mine))
}

func TestAssetTranslator_Conflict(t *testing.T) {
	srv := newServer(t)
	e, _, _ := sceneWithRed()
	alice := newPeer(t, srv, "alice", e)
	settle(alice)

	be := host.NewEditor()
	mine := be.CreateAsset("Material", redPath)
	mine.Roughness = 0.2
	before := testutil.ToFloat64(AssetConflicts)
	bob := newPeer(t, srv, "bob", be)
	settle(alice, bob)
	assert.Nil(t, bob.object(mine))
	assert.True(t, bob.assets.IsConflicting(mine))
	assert.Equal(t, float32(0.2), mine.Roughness)
	assert.Equal(t, before+1, testutil.ToFloat64(AssetConflicts))

	// a conflicting asset is never uploaded
	o, handled := bob.assets.Create(mine)
	assert.True(t, handled)
	assert.Nil(t, o)
}

func TestAssetTranslator_DuplicateUpload(t *testing.T) {
	srv := newServer(t)
	alice := newPeer(t, srv, "alice", nil)
	bob := newPeer(t, srv, "bob", nil)
	settle(alice, bob)

	ar := alice.editor.CreateAsset("Material", redPath)
	br := bob.editor.CreateAsset("Material", redPath)
	ar.Roughness, br.Roughness = 0.8, 0.8
	require.NotNil(t, alice.d.Create(ar))
	require.NotNil(t, bob.d.Create(br))
	settle(alice, bob)

	ao, bo := alice.object(ar), bob.object(br)
	require.NotNil(t, ao)
	require.NotNil(t, bo)
	assert.True(t, ao.IsCreated())
	assert.True(t, bo.IsCreated())
	assert.Equal(t, ao.Id(), bo.Id())
	n := 0
	alice.session.Objects(func(o *graph.Object) bool {
		if o.Type() == TypeAsset {
			n++
		}
		return true
	})
	assert.Equal(t, 1, n)
}

func TestAssetTranslator_MeshGeometry(t *testing.T) {
	srv := newServer(t)
	e, cube, red := sceneWithRed()
	mesh := e.CreateAsset("Mesh", granitePath)
	mesh.Vertices = []any{float32(1), float32(2), float32(3)}
	mesh.Material = red
	cube.Mesh = mesh
	alice := newPeer(t, srv, "alice", e)
	settle(alice)
	o := alice.object(mesh)
	require.NotNil(t, o)
	assert.False(t, o.Property().HasKey("Vertices"))
	v, ok := o.Property().Get(keyGeometry).(*property.Value)
	require.True(t, ok)
	assert.Equal(t, property.ByteArray, v.Kind())

	bob := newPeer(t, srv, "bob", nil)
	settle(alice, bob)
	bm, ok := bob.editor.FindAsset(granitePath).(*host.Asset)
	require.True(t, ok)
	assert.Equal(t, []any{float32(1), float32(2), float32(3)}, bm.Vertices)
	assert.Same(t, bob.editor.FindAsset(redPath), bm.Material)
	assert.Same(t, bm, bob.editor.Level("Main").Actor("Cube").Mesh)

	alice.editor.Set(mesh, "Vertices", []any{float32(4)})
	settle(alice, bob)
	assert.Equal(t, []any{float32(4)}, bm.Vertices)

	alice.editor.Set(mesh, "Material", nil)
	settle(alice, bob)
	assert.Nil(t, bm.Material)
}

func TestAssetTranslator_StandInReplaced(t *testing.T) {
	srv := newServer(t)
	e, _, _ := sceneWithRed()
	alice := newPeer(t, srv, "alice", e)
	settle(alice)

	bob := newPeer(t, srv, "bob", nil, "Mesh")
	settle(alice, bob)
	standIn := bob.ld.StandIn(redPath)
	require.NotNil(t, standIn)
	assert.Nil(t, bob.m.Objects().Object(standIn))

	found := bob.editor.Classes.Get("Material").New(redPath).(*host.Asset)
	found.Roughness = 0.8
	bob.editor.AddAsset(found)
	bob.ld.OnNewAsset(found)
	settle(alice, bob)
	require.NotNil(t, bob.object(found))
	assert.Equal(t, alice.object(alice.editor.FindAsset(redPath)).Id(), bob.object(found).Id())
	assert.Equal(t, []any{found}, bob.editor.Level("Main").Actor("Cube").Materials)
}

func TestAssetTranslator_DeletedAssetIsRecreated(t *testing.T) {
	srv := newServer(t)
	e, _, _ := sceneWithRed()
	alice := newPeer(t, srv, "alice", e)
	bob := newPeer(t, srv, "bob", nil)
	settle(alice, bob)
	old := bob.editor.FindAsset(redPath)
	require.NotNil(t, old)
	o := bob.object(old)
	require.NotNil(t, o)

	require.True(t, bob.editor.RemoveAsset(redPath))
	assert.Nil(t, bob.object(old))

	a, ok := bob.ld.Load(redPath, "Material").(*host.Asset)
	require.True(t, ok)
	assert.NotSame(t, old, a)
	assert.Same(t, o, bob.object(a))
	assert.Equal(t, float32(0.8), a.Roughness)
}
