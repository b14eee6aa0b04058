package repl

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/drpcorg/scenesync"
	"github.com/drpcorg/scenesync/checksum"
	"github.com/drpcorg/scenesync/classes"
	"github.com/drpcorg/scenesync/graph"
	"github.com/drpcorg/scenesync/host"
	"github.com/pkg/errors"
)

var (
	HelpActor    = errors.New("actor <user> <class> [name]")
	HelpSet      = errors.New("set <user> <actor> <field> <value>")
	HelpLock     = errors.New("lock|unlock <user> <actor>")
	HelpMove     = errors.New("move <user> <actor> <parent actor or ->")
	HelpUndo     = errors.New("undo <user>")
	HelpTick     = errors.New("tick [count]")
	HelpTree     = errors.New("tree <user>")
	HelpChecksum = errors.New("checksum <user> <actor>")
	HelpSave     = errors.New("save <user>")
)

var ErrNoUser = errors.New("no such user")
var ErrNoActor = errors.New("no such actor")

func (repl *REPL) user(name string) (*scenesync.SceneSync, error) {
	if s, ok := repl.syncs[name]; ok {
		return s, nil
	}
	return nil, errors.Wrapf(ErrNoUser, "%s, try one of %s", name, strings.Join(Users, ", "))
}

func findActor(s *scenesync.SceneSync, name string) *host.Actor {
	for _, l := range s.Editor.Levels() {
		if a := l.Actor(name); a != nil {
			return a
		}
	}
	return nil
}

// userActor resolves the common "<user> <actor>" arguments.
func (repl *REPL) userActor(args []string) (*scenesync.SceneSync, *host.Actor, error) {
	s, err := repl.user(args[0])
	if err != nil {
		return nil, nil, err
	}
	a := findActor(s, args[1])
	if a == nil {
		return nil, nil, errors.Wrapf(ErrNoActor, "%s in the editor of %s", args[1], args[0])
	}
	return s, a, nil
}

func (repl *REPL) CommandHelp(args []string) error {
	for _, h := range []error{HelpActor, HelpSet, HelpLock, HelpMove, HelpUndo, HelpTick, HelpTree, HelpChecksum, HelpSave} {
		_, _ = fmt.Fprintln(repl.out, h.Error())
	}
	_, _ = fmt.Fprintln(repl.out, "users\nmetrics\nexit")
	return nil
}

func (repl *REPL) CommandUsers(args []string) error {
	for _, name := range Users {
		s := repl.syncs[name]
		var names []string
		for _, u := range s.Session.Users() {
			if u.IsLocal() {
				names = append(names, u.Name()+"*")
			} else {
				names = append(names, u.Name())
			}
		}
		sort.Strings(names)
		_, _ = fmt.Fprintf(repl.out, "%s sees %s\n", name, strings.Join(names, " "))
	}
	return nil
}

func (repl *REPL) CommandActor(args []string) error {
	if len(args) < 2 || len(args) > 3 {
		return HelpActor
	}
	s, err := repl.user(args[0])
	if err != nil {
		return err
	}
	levels := s.Editor.Levels()
	if len(levels) == 0 {
		return errors.New("no level open")
	}
	name := ""
	if len(args) == 3 {
		name = args[2]
	}
	a := s.Editor.SpawnActor(levels[0], args[1], name)
	if a == nil {
		return errors.Errorf("%s is not an actor class", args[1])
	}
	repl.settle()
	_, _ = fmt.Fprintf(repl.out, "%s %s\n", a.Name(), repl.objectId(s, a))
	return nil
}

func (repl *REPL) objectId(s *scenesync.SceneSync, n classes.Native) string {
	o := s.Props.Objects().Object(n)
	if o == nil || !o.IsCreated() {
		return "unsynced"
	}
	return "#" + strconv.FormatUint(uint64(o.Id()), 10)
}

func (repl *REPL) CommandSet(args []string) error {
	if len(args) < 4 {
		return HelpSet
	}
	s, a, err := repl.userActor(args)
	if err != nil {
		return err
	}
	f := a.Class().Field(args[2])
	if f == nil {
		return errors.Errorf("%s has no field %s", a.Class().Name, args[2])
	}
	v, err := ParseValue(s, f.Type, strings.Join(args[3:], " "))
	if err != nil {
		return err
	}
	s.Editor.BeginTransaction("set " + f.Name)
	s.Editor.Set(a, f.Name, v)
	s.Editor.EndTransaction()
	repl.settle()
	_, _ = fmt.Fprintf(repl.out, "%s.%s = %v\n", a.Name(), f.Name, s.Editor.Get(a, f.Name))
	return nil
}

func (repl *REPL) CommandLock(args []string, lock bool) error {
	if len(args) != 2 {
		return HelpLock
	}
	s, a, err := repl.userActor(args)
	if err != nil {
		return err
	}
	if lock {
		s.Editor.Select(a)
	} else {
		s.Editor.Deselect(a)
	}
	repl.settle()
	owner := "nobody"
	if o := s.Props.Objects().Object(a); o != nil && o.LockOwner() != nil {
		owner = o.LockOwner().Name()
	}
	_, _ = fmt.Fprintf(repl.out, "%s locked by %s\n", a.Name(), owner)
	return nil
}

func (repl *REPL) CommandMove(args []string) error {
	if len(args) != 3 {
		return HelpMove
	}
	s, a, err := repl.userActor(args)
	if err != nil {
		return err
	}
	var parent *host.Actor
	if args[2] != "-" {
		if parent = findActor(s, args[2]); parent == nil {
			return errors.Wrapf(ErrNoActor, "%s", args[2])
		}
	}
	s.Editor.BeginTransaction("attach")
	ok := s.Editor.AttachActor(a, parent, -1)
	s.Editor.EndTransaction()
	if !ok {
		return errors.Errorf("cannot attach %s to %s", args[1], args[2])
	}
	repl.settle()
	where := "level"
	if p := a.Parent(); p != nil {
		where = p.Name()
	}
	_, _ = fmt.Fprintf(repl.out, "%s is under %s\n", a.Name(), where)
	return nil
}

func (repl *REPL) CommandUndo(args []string) error {
	if len(args) != 1 {
		return HelpUndo
	}
	s, err := repl.user(args[0])
	if err != nil {
		return err
	}
	t := s.Editor.Undo()
	if t == nil {
		_, _ = fmt.Fprintln(repl.out, "nothing to undo")
		return nil
	}
	repl.settle()
	_, _ = fmt.Fprintf(repl.out, "undone: %s\n", t.Title)
	return nil
}

func (repl *REPL) CommandTick(args []string) error {
	n := 1
	if len(args) > 0 {
		var err error
		if n, err = strconv.Atoi(args[0]); err != nil || n < 1 {
			return HelpTick
		}
	}
	repl.tick(n)
	return nil
}

// CommandTree prints the object graph as one user sees it.
func (repl *REPL) CommandTree(args []string) error {
	if len(args) != 1 {
		return HelpTree
	}
	s, err := repl.user(args[0])
	if err != nil {
		return err
	}
	var show func(o *graph.Object, depth int)
	show = func(o *graph.Object, depth int) {
		name := "-"
		switch n := s.Props.Objects().Native(o).(type) {
		case classes.Asset:
			name = n.Path()
		case classes.Native:
			name = n.Name()
		}
		line := fmt.Sprintf("%s#%d %s %s", strings.Repeat("  ", depth), o.Id(), o.Type(), name)
		if u := o.LockOwner(); u != nil {
			line += " locked by " + u.Name()
		}
		_, _ = fmt.Fprintln(repl.out, line)
		for _, c := range o.Children() {
			show(c, depth+1)
		}
	}
	for _, o := range s.Session.GetRootObjects() {
		show(o, 0)
	}
	return nil
}

func (repl *REPL) CommandChecksum(args []string) error {
	if len(args) != 2 {
		return HelpChecksum
	}
	s, a, err := repl.userActor(args)
	if err != nil {
		return err
	}
	o := s.Props.Objects().Object(a)
	if o == nil {
		return errors.Errorf("%s is not synced", a.Name())
	}
	sum := checksum.Fletcher64(o.Property(), s.Session, checksum.SkipMetaKeys)
	_, _ = fmt.Fprintf(repl.out, "%016x\n", sum)
	return nil
}

func (repl *REPL) CommandSave(args []string) error {
	if len(args) != 1 {
		return HelpSave
	}
	s, err := repl.user(args[0])
	if err != nil {
		return err
	}
	n, err := s.SaveAssets()
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(repl.out, "%d asset(s) saved\n", n)
	return nil
}

// CommandMetrics prints every counter and gauge that is not zero.
func (repl *REPL) CommandMetrics(args []string) error {
	mfs, err := repl.registry.Gather()
	if err != nil {
		return errors.Wrap(err, "gather metrics")
	}
	for _, mf := range mfs {
		for _, m := range mf.GetMetric() {
			var v float64
			switch {
			case m.GetCounter() != nil:
				v = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				v = m.GetGauge().GetValue()
			default:
				continue
			}
			if v != 0 {
				_, _ = fmt.Fprintf(repl.out, "%s %g\n", mf.GetName(), v)
			}
		}
	}
	return nil
}
