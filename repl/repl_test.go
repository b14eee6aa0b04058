package repl

import (
	"bytes"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/drpcorg/scenesync"
	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) (*REPL, *bytes.Buffer) {
	out := &bytes.Buffer{}
	repl, err := New(scenesync.Options{
		StorePath: filepath.Join(t.TempDir(), "store"),
		AssetDir:  t.TempDir(),
	}, utils.NewDefaultLogger(slog.LevelError), out)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repl.Close() })
	return repl, out
}

// run executes a line and returns what it printed.
func run(t *testing.T, repl *REPL, out *bytes.Buffer, line string) string {
	out.Reset()
	require.NoError(t, repl.Exec(line))
	return out.String()
}

func TestREPL_Commands(t *testing.T) {
	repl, out := open(t)

	assert.Equal(t, "alice sees alice* bob\nbob sees alice bob*\n", run(t, repl, out, "users"))

	assert.True(t, strings.HasPrefix(run(t, repl, out, "actor alice StaticMeshActor Cube"), "Cube #"))
	assert.Contains(t, run(t, repl, out, "tree bob"), "StaticMeshActor Cube")
	require.NotNil(t, findActor(repl.Sync("bob"), "Cube"))

	assert.Equal(t, "Cube.Label = box\n", run(t, repl, out, "set alice Cube Label box"))
	assert.Equal(t, "box", findActor(repl.Sync("bob"), "Cube").Label)

	assert.Equal(t, "Cube locked by alice\n", run(t, repl, out, "lock alice Cube"))
	assert.Contains(t, run(t, repl, out, "tree bob"), "locked by alice")
	assert.Equal(t, "Cube locked by nobody\n", run(t, repl, out, "unlock alice Cube"))

	sum := run(t, repl, out, "checksum alice Cube")
	assert.Len(t, strings.TrimSpace(sum), 16)
	assert.Equal(t, sum, run(t, repl, out, "checksum bob Cube"))

	run(t, repl, out, "actor bob StaticMeshActor Lamp")
	assert.Equal(t, "Lamp is under Cube\n", run(t, repl, out, "move alice Lamp Cube"))
	assert.Equal(t, "Cube", findActor(repl.Sync("bob"), "Lamp").Parent().Name())

	assert.Equal(t, "undone: attach\n", run(t, repl, out, "undo alice"))
	assert.Nil(t, findActor(repl.Sync("bob"), "Lamp").Parent())

	assert.Contains(t, run(t, repl, out, "metrics"), "scenesync_")
	assert.Contains(t, run(t, repl, out, "help"), HelpSet.Error())
	run(t, repl, out, "tick 3")
	assert.Equal(t, "", run(t, repl, out, ""))
}

func TestREPL_Errors(t *testing.T) {
	repl, _ := open(t)

	assert.ErrorIs(t, repl.Exec("set alice"), HelpSet)
	assert.ErrorIs(t, repl.Exec("tick zero"), HelpTick)
	assert.ErrorIs(t, repl.Exec("tree carol"), ErrNoUser)
	assert.ErrorIs(t, repl.Exec("lock bob Nothing"), ErrNoActor)
	assert.Error(t, repl.Exec("actor alice Material"))
	assert.Error(t, repl.Exec("frobnicate"))
	assert.Equal(t, io.EOF, repl.Exec("exit"))

	require.NoError(t, repl.Exec("actor alice StaticMeshActor Cube"))
	assert.ErrorIs(t, repl.Exec("set alice Cube Hidden maybe"), ErrBadValue)
	assert.Error(t, repl.Exec("set alice Cube Nope 1"))
}

func TestParseValue(t *testing.T) {
	repl, _ := open(t)
	s := repl.Sync("alice")
	require.NoError(t, repl.Exec("actor alice StaticMeshActor Cube"))
	cube := findActor(s, "Cube")
	class := cube.Class()

	v, err := ParseValue(s, class.Field("Hidden").Type, "true")
	require.NoError(t, err)
	assert.Equal(t, true, v)

	v, err = ParseValue(s, class.Field("Label").Type, "a b")
	require.NoError(t, err)
	assert.Equal(t, "a b", v)

	v, err = ParseValue(s, class.Field("Location").Type, "X=1, Z=2.5")
	require.NoError(t, err)
	vec := v.(classes.Struct)
	assert.Equal(t, 2, len(vec))

	_, err = ParseValue(s, class.Field("Location").Type, "W=1")
	assert.ErrorIs(t, err, ErrBadValue)

	v, err = ParseValue(s, class.Field("Materials").Type, "[]")
	require.NoError(t, err)
	assert.Empty(t, v)

	v, err = ParseValue(s, class.Field("Materials").Type, "[none]")
	require.NoError(t, err)
	assert.Equal(t, []any{nil}, v)
}

func TestParseValue_Numbers(t *testing.T) {
	kind := func(k classes.Kind) *classes.Type { return &classes.Type{Kind: k} }

	v, err := ParseValue(nil, kind(classes.Int), "-12")
	require.NoError(t, err)
	assert.Equal(t, int32(-12), v)
	v, err = ParseValue(nil, kind(classes.Long), "5000000000")
	require.NoError(t, err)
	assert.Equal(t, int64(5000000000), v)
	v, err = ParseValue(nil, kind(classes.Byte), "200")
	require.NoError(t, err)
	assert.Equal(t, uint8(200), v)
	v, err = ParseValue(nil, kind(classes.Float), "1.5")
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), v)
	v, err = ParseValue(nil, kind(classes.Double), "0.25")
	require.NoError(t, err)
	assert.Equal(t, 0.25, v)

	_, err = ParseValue(nil, kind(classes.Byte), "300")
	assert.ErrorIs(t, err, ErrBadValue)
	_, err = ParseValue(nil, kind(classes.UInt), "-1")
	assert.ErrorIs(t, err, ErrBadValue)
}
