package translators

import (
	"log/slog"
	"testing"
	"time"

	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/loader"
	"github.com/drpcorg/scenesync/props"
	"github.com/drpcorg/scenesync/server"
	"github.com/drpcorg/scenesync/utils"
	"github.com/stretchr/testify/require"
)

var testlog = utils.NewDefaultLogger(slog.LevelError)

const redPath = "/Game/Materials/Red.Red"

// peer is one user's editor wired to the server the way a session is.
type peer struct {
	editor  *host.Editor
	session *graph.Session
	m       *props.Manager
	ld      *loader.Loader
	d       *Dispatcher
	actors  *ActorTranslator
	assets  *AssetTranslator
}

func newPeer(t *testing.T, srv *server.Server, name string, e *host.Editor, creatable ...string) *peer {
	if creatable == nil {
		creatable = []string{"Material", "Mesh"}
	}
	if e == nil {
		e = host.NewEditor()
	}
	s := graph.NewSession(srv.Connect(name, graph.Color{0.5, 0.5, 0.5}), testlog)
	m, err := props.NewManager(s, props.NewObjectMap(), testlog, props.Options{})
	require.NoError(t, err)
	ld := loader.New(loader.Options{CreatableClasses: creatable}, e, e.Classes, m, testlog)
	m.SetLoader(ld)

	p := &peer{editor: e, session: s, m: m, ld: ld}
	p.d = NewDispatcher(Options{}, m, testlog)
	p.actors = NewActorTranslator(p.d, e, ld)
	p.actors.Register()
	p.assets = NewAssetTranslator(m, ld)
	p.d.Register(TypeAsset, p.assets, false)
	e.OnPropertyChanged = p.d.Modified
	e.OnAssetDeleted = func(a *host.Asset) { p.assets.OnAssetDeleted(a) }
	p.d.Initialize()
	m.StartListening()
	t.Cleanup(p.d.CleanUp)
	return p
}

func (p *peer) tick() {
	p.d.ProcessCreateQueue()
	p.session.Update()
	p.m.RehashProperties()
	p.m.BroadcastChangeEvents()
	p.m.SyncProperties()
	p.d.Update(time.Millisecond)
	p.ld.Tick(time.Millisecond, 0)
}

// settle ticks every peer until the messages settled.
func settle(peers ...*peer) {
	for i := 0; i < 6; i++ {
		for _, p := range peers {
			p.tick()
		}
	}
}

func (p *peer) object(n classes.Native) *graph.Object { return p.m.Objects().Object(n) }

func newServer(t *testing.T) *server.Server {
	srv, err := server.New(server.Options{}, testlog, nil)
	require.NoError(t, err)
	return srv
}
