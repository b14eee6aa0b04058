package translators

import (
	"testing"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/host"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// twoPeers has alice upload a level with a cube and a lamp, then has bob
// join.
func twoPeers(t *testing.T) (alice, bob *peer, cube, bobCube *host.Actor) {
	srv := newServer(t)
	e := host.NewEditor()
	l := e.AddLevel("Main")
	cube = e.SpawnActor(l, "StaticMeshActor", "Cube")
	e.SpawnActor(l, "PointLight", "Lamp")
	alice = newPeer(t, srv, "alice", e)
	settle(alice)
	bob = newPeer(t, srv, "bob", nil)
	settle(alice, bob)
	require.NotNil(t, bob.editor.Level("Main"))
	bobCube = bob.editor.Level("Main").Actor("Cube")
	require.NotNil(t, bobCube)
	return
}

func TestActorTranslator_SceneReachesPeer(t *testing.T) {
	srv := newServer(t)
	e := host.NewEditor()
	l := e.AddLevel("Main")
	cube := e.SpawnActor(l, "StaticMeshActor", "Cube")
	cube.Label = "cube"
	cube.Location = classes.Struct{"X": float32(1), "Y": float32(2), "Z": float32(3)}
	e.AddComponent(cube, "MeshComponent", "Body").CastShadow = false
	child := e.SpawnActor(l, "Actor", "Child")
	require.True(t, e.AttachActor(child, cube, -1))
	e.SpawnActor(l, "PointLight", "Lamp")

	alice := newPeer(t, srv, "alice", e)
	settle(alice)
	require.NotNil(t, alice.object(cube))
	assert.True(t, alice.object(cube).IsCreated())
	assert.True(t, alice.object(child).IsCreated())
	assert.Same(t, alice.object(cube), alice.object(child).Parent())
	assert.Same(t, alice.object(l), alice.object(cube).Parent())
	assert.Equal(t, TypeComponent, alice.object(cube).Child(0).Type())

	bob := newPeer(t, srv, "bob", nil)
	settle(alice, bob)
	bl := bob.editor.Level("Main")
	require.NotNil(t, bl)
	assert.Len(t, bl.Actors(), 3)
	bc := bl.Actor("Cube")
	require.NotNil(t, bc)
	assert.Equal(t, "StaticMeshActor", bc.Class().Name)
	assert.Equal(t, "cube", bc.Label)
	assert.Equal(t, float32(2), bc.Location["Y"])
	body := bc.Component("Body")
	require.NotNil(t, body)
	assert.Equal(t, "MeshComponent", body.Class().Name)
	assert.False(t, body.CastShadow)
	bch := bl.Actor("Child")
	require.NotNil(t, bch)
	assert.Same(t, bc, bch.Parent())
	assert.NotNil(t, bl.Actor("Lamp"))
	assert.Equal(t, alice.object(cube).Id(), bob.object(bc).Id())
}

func TestActorTranslator_EditsSync(t *testing.T) {
	alice, bob, cube, bobCube := twoPeers(t)

	alice.editor.Set(cube, "Label", "renamed")
	settle(alice, bob)
	assert.Equal(t, "renamed", bobCube.Label)

	bob.editor.Set(bobCube, "Hidden", true)
	settle(alice, bob)
	assert.True(t, cube.Hidden)

	alice.editor.Set(cube, "Label", "")
	settle(alice, bob)
	assert.Equal(t, "", bobCube.Label)
	assert.False(t, bob.object(bobCube).Property().HasKey("Label"))
}

func TestActorTranslator_SpawnAndDestroy(t *testing.T) {
	alice, bob, _, _ := twoPeers(t)
	cone := alice.editor.SpawnActor(alice.editor.Level("Main"), "Actor", "Cone")
	settle(alice, bob)
	bobCone := bob.editor.Level("Main").Actor("Cone")
	require.NotNil(t, bobCone)
	assert.True(t, bob.object(bobCone).IsCreated())

	require.True(t, alice.editor.DestroyActor(cone))
	settle(alice, bob)
	assert.Nil(t, bob.editor.Level("Main").Actor("Cone"))
	assert.True(t, bobCone.IsDeleted())
	assert.False(t, alice.m.Objects().Contains(cone))
	assert.False(t, bob.m.Objects().Contains(bobCone))
}

func TestActorTranslator_NewLevel(t *testing.T) {
	alice, bob, _, _ := twoPeers(t)
	second := bob.editor.AddLevel("Second")
	bob.editor.SpawnActor(second, "Actor", "Rock")
	settle(alice, bob)
	l := alice.editor.Level("Second")
	require.NotNil(t, l)
	assert.NotNil(t, l.Actor("Rock"))
	assert.Equal(t, bob.object(second).Id(), alice.object(l).Id())
}

func TestActorTranslator_UnsyncedActorsRemovedOnJoin(t *testing.T) {
	srv := newServer(t)
	e := host.NewEditor()
	e.SpawnActor(e.AddLevel("Main"), "Actor", "Cube")
	alice := newPeer(t, srv, "alice", e)
	settle(alice)

	be := host.NewEditor()
	bl := be.AddLevel("Main")
	local := be.SpawnActor(bl, "Actor", "Local")
	bob := newPeer(t, srv, "bob", be)
	settle(alice, bob)
	assert.True(t, local.IsDeleted())
	assert.Nil(t, bl.Actor("Local"))
	assert.NotNil(t, bl.Actor("Cube"))
	assert.Same(t, bl, be.Level("Main"))
	assert.Nil(t, alice.editor.Level("Main").Actor("Local"))
}

func TestActorTranslator_Locks(t *testing.T) {
	alice, bob, cube, bobCube := twoPeers(t)
	bob.editor.Select(bobCube)
	settle(alice, bob)
	assert.Equal(t, "bob", cube.LockedBy)
	assert.Equal(t, "", bobCube.LockedBy)
	assert.True(t, alice.object(cube).IsFullyLocked())

	// edits of an actor someone else locked are reverted
	alice.editor.Set(cube, "Label", "mine")
	settle(alice, bob)
	assert.Equal(t, "", cube.Label)
	assert.Equal(t, "", bobCube.Label)

	bob.editor.Deselect(bobCube)
	settle(alice, bob)
	assert.Equal(t, "", cube.LockedBy)
	assert.False(t, alice.object(cube).IsLocked())
}

func TestActorTranslator_LockedActorIsRestored(t *testing.T) {
	alice, bob, cube, bobCube := twoPeers(t)
	bob.editor.Select(bobCube)
	settle(alice, bob)

	before := testutil.ToFloat64(ActorsRecreated)
	require.True(t, alice.editor.DestroyActor(cube))
	settle(alice, bob)
	restored := alice.editor.Level("Main").Actor("Cube")
	require.NotNil(t, restored)
	assert.NotSame(t, cube, restored)
	assert.False(t, restored.IsDeleted())
	assert.Equal(t, "bob", restored.LockedBy)
	assert.Equal(t, before+1, testutil.ToFloat64(ActorsRecreated))
	assert.False(t, bobCube.IsDeleted())
	assert.Same(t, bobCube, bob.editor.Level("Main").Actor("Cube"))
}

func TestActorTranslator_Attach(t *testing.T) {
	alice, bob, cube, bobCube := twoPeers(t)
	lamp := alice.editor.Level("Main").Actor("Lamp")
	bobLamp := bob.editor.Level("Main").Actor("Lamp")
	require.NotNil(t, bobLamp)

	require.True(t, alice.editor.AttachActor(lamp, cube, -1))
	settle(alice, bob)
	assert.Same(t, bobCube, bobLamp.Parent())
	assert.Same(t, alice.object(cube), alice.object(lamp).Parent())

	require.True(t, alice.editor.AttachActor(lamp, nil, -1))
	settle(alice, bob)
	assert.Nil(t, bobLamp.Parent())
	assert.Same(t, alice.object(alice.editor.Level("Main")), alice.object(lamp).Parent())
}

func TestActorTranslator_AttachToLockedParentIsReverted(t *testing.T) {
	alice, bob, cube, bobCube := twoPeers(t)
	lamp := alice.editor.Level("Main").Actor("Lamp")
	bobLamp := bob.editor.Level("Main").Actor("Lamp")
	bob.editor.Select(bobCube)
	settle(alice, bob)

	require.True(t, alice.editor.AttachActor(lamp, cube, -1))
	settle(alice, bob)
	assert.Nil(t, lamp.Parent())
	assert.Nil(t, bobLamp.Parent())
}

func TestActorTranslator_ReferenceToNewActor(t *testing.T) {
	alice, bob, cube, bobCube := twoPeers(t)
	late := alice.editor.SpawnActor(alice.editor.Level("Main"), "Actor", "Late")
	alice.editor.Set(cube, "Target", late)
	settle(alice, bob)
	bobLate := bob.editor.Level("Main").Actor("Late")
	require.NotNil(t, bobLate)
	assert.Same(t, bobLate, bobCube.Target)
}
