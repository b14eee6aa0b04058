// Package repl is an interactive console over an in-process session with
// two simulated users, alice and bob, each with their own editor.
package repl

import (
	"fmt"
	"io"
	"strings"

	"github.com/drpcorg/scenesync"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/drpcorg/scenesync/server"
	"github.com/drpcorg/scenesync/utils"
	"github.com/ergochat/readline"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

var Users = []string{"alice", "bob"}

// REPL per se.
type REPL struct {
	opts       scenesync.Options
	log        utils.Logger
	out        io.Writer
	srv        *server.Server
	closeStore func() error
	syncs      map[string]*scenesync.SceneSync
	registry   *prometheus.Registry
	rl         *readline.Instance
}

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("users"),
	readline.PcItem("actor"),
	readline.PcItem("set"),
	readline.PcItem("lock"),
	readline.PcItem("unlock"),
	readline.PcItem("move"),
	readline.PcItem("undo"),

	readline.PcItem("tick"),
	readline.PcItem("tree"),
	readline.PcItem("checksum"),
	readline.PcItem("save"),
	readline.PcItem("metrics"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// New starts the server and connects every user. The first user brings the
// level "Main".
func New(opts scenesync.Options, log utils.Logger, out io.Writer) (repl *REPL, err error) {
	opts.SetDefaults()
	repl = &REPL{
		opts:     opts,
		log:      log,
		out:      out,
		syncs:    make(map[string]*scenesync.SceneSync),
		registry: prometheus.NewRegistry(),
	}
	if err = scenesync.RegisterMetrics(repl.registry); err != nil {
		return nil, err
	}
	repl.srv, repl.closeStore, err = scenesync.OpenServer(opts, log)
	if err != nil {
		return nil, err
	}
	if st := repl.srv.Store(); st != nil {
		if err = repl.registry.Register(st.Collector()); err != nil {
			_ = repl.closeStore()
			return nil, err
		}
	}
	colors := []graph.Color{{1, 0.2, 0.2}, {0.2, 0.4, 1}}
	for i, name := range Users {
		e := host.NewEditor()
		if i == 0 {
			e.AddLevel("Main")
		}
		s, err := scenesync.New(opts, repl.srv.Connect(name, colors[i%len(colors)]), e, log)
		if err != nil {
			_ = repl.Close()
			return nil, err
		}
		s.Start()
		repl.syncs[name] = s
	}
	repl.tick(10)
	return repl, nil
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "◌ ",
		HistoryFile:     ".scenesync_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

// Close disconnects every user and closes the store.
func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	var err error
	for _, name := range Users {
		if s, ok := repl.syncs[name]; ok {
			if e := s.Stop(); e != nil && err == nil {
				err = e
			}
			delete(repl.syncs, name)
		}
	}
	if repl.closeStore != nil {
		if e := repl.closeStore(); e != nil && err == nil {
			err = e
		}
		repl.closeStore = nil
	}
	return err
}

// Run reads commands until exit or EOF.
func (repl *REPL) Run() error {
	for {
		line, err := repl.rl.Readline()
		if err == readline.ErrInterrupt && len(line) != 0 {
			continue
		}
		if err != nil {
			if err == readline.ErrInterrupt {
				return nil
			}
			return err
		}
		err = repl.Exec(line)
		if err == io.EOF {
			return nil
		}
		if err != nil {
			_, _ = fmt.Fprintln(repl.out, err.Error())
		}
	}
}

// Exec runs one command line. It returns io.EOF for exit.
func (repl *REPL) Exec(line string) error {
	args := strings.Fields(line)
	if len(args) == 0 {
		return nil
	}
	cmd, args := args[0], args[1:]
	switch cmd {
	case "help":
		return repl.CommandHelp(args)
	case "users":
		return repl.CommandUsers(args)
	case "actor":
		return repl.CommandActor(args)
	case "set":
		return repl.CommandSet(args)
	case "lock":
		return repl.CommandLock(args, true)
	case "unlock":
		return repl.CommandLock(args, false)
	case "move":
		return repl.CommandMove(args)
	case "undo":
		return repl.CommandUndo(args)
	case "tick":
		return repl.CommandTick(args)
	case "tree":
		return repl.CommandTree(args)
	case "checksum":
		return repl.CommandChecksum(args)
	case "save":
		return repl.CommandSave(args)
	case "metrics":
		return repl.CommandMetrics(args)
	case "exit", "quit":
		return io.EOF
	default:
		return errors.Errorf("command unknown: %s", cmd)
	}
}

func (repl *REPL) tick(n int) {
	dt := repl.opts.TickInterval()
	for i := 0; i < n; i++ {
		for _, name := range Users {
			repl.syncs[name].Tick(dt)
		}
	}
}

// Sync returns the session of a user.
func (repl *REPL) Sync(user string) *scenesync.SceneSync { return repl.syncs[user] }

// settle lets the users exchange the effects of a command. Long enough to
// pass IdleTime, so deferred loads run.
func (repl *REPL) settle() {
	n := int(repl.opts.IdleTime/repl.opts.TickInterval()) + 10
	repl.tick(n)
}
