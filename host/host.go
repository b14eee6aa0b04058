// Package host is an in-memory scene editor: levels holding actors with
// components, plus assets addressed by path. Objects are described by
// classes field tables and the editor raises the notifications a live
// editor would, so the sync layer can be driven without one.
package host

import (
	"strings"

	"github.com/drpcorg/scenesync/classes"
	"github.com/google/uuid"
)

type object struct {
	class   *classes.Class
	name    string
	deleted bool
}

func (o *object) Class() *classes.Class { return o.class }

func (o *object) Name() string { return o.name }

// IsDeleted is true for destroyed objects; undo may bring them back.
func (o *object) IsDeleted() bool { return o.deleted }

type Level struct {
	object
	actors []*Actor
}

// Actors returns the level's actors in spawn order.
func (l *Level) Actors() []*Actor { return append([]*Actor{}, l.actors...) }

func (l *Level) Actor(name string) *Actor {
	for _, a := range l.actors {
		if a.name == name {
			return a
		}
	}
	return nil
}

// RootActors are the actors not attached to another actor.
func (l *Level) RootActors() (ret []*Actor) {
	for _, a := range l.actors {
		if a.parent == nil {
			ret = append(ret, a)
		}
	}
	return
}

type Actor struct {
	object
	level      *Level
	parent     *Actor
	children   []*Actor
	components []*Component

	Label     string
	Location  classes.Struct
	Rotation  classes.Struct
	Scale     classes.Struct
	Hidden    bool
	Tags      []any
	Layers    *classes.OrderedSet
	Metadata  *classes.OrderedMap
	Mobility  string
	Target    classes.Native
	MaxHealth int32
	Guid      string
	Seed      int64
	OnHit     string

	Mesh      classes.Native
	Materials []any

	Intensity  float32
	LightColor classes.Struct
	Radius     float64

	// Selected and LockedBy mirror the editor UI state.
	Selected bool
	LockedBy string
	// Revision counts PostEditChange notifications.
	Revision int
}

func (a *Actor) Level() *Level { return a.level }

func (a *Actor) Parent() *Actor { return a.parent }

func (a *Actor) Children() []*Actor { return append([]*Actor{}, a.children...) }

func (a *Actor) Components() []*Component { return append([]*Component{}, a.components...) }

func (a *Actor) Component(name string) *Component {
	for _, c := range a.components {
		if c.name == name {
			return c
		}
	}
	return nil
}

func (a *Actor) PostEditChange(f *classes.Field) { a.Revision++ }

type Component struct {
	object
	owner *Actor

	Visible          bool
	RelativeLocation classes.Struct
	Mesh             classes.Native
	CastShadow       bool
}

func (c *Component) Owner() *Actor { return c.owner }

// Asset is addressed by a path of the form "/Game/Dir/Package.Name".
type Asset struct {
	object
	path string
	// Transient assets are not saved; stand-ins are transient.
	Transient bool

	Color     classes.Struct
	Roughness float32
	Parent    classes.Native
	Textures  []any

	Vertices []any
	Material classes.Native
	Bounds   classes.Struct

	Width  uint32
	Height uint32
	Format uint8
}

func (a *Asset) Path() string { return a.path }

// TransientPackage holds assets that are never saved.
const TransientPackage = "/Engine/Transient"

// AssetName is the object name part of an asset path.
func AssetName(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[i+1:]
	}
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		return path[i+1:]
	}
	return path
}

// PackageName is the path without the object name.
func PackageName(path string) string {
	if i := strings.LastIndexByte(path, '.'); i >= 0 {
		return path[:i]
	}
	return path
}

func newActor(class *classes.Class, name string) *Actor {
	a := &Actor{
		object:   object{class: class, name: name},
		Scale:    classes.Struct{"X": float32(1), "Y": float32(1), "Z": float32(1)},
		Layers:   classes.NewSet(class.Field("Layers").Type),
		Metadata: classes.NewMap(class.Field("Metadata").Type),
		Mobility: "Static",
	}
	if class.IsA("PointLight") {
		a.Intensity = 5000
		a.LightColor = classes.Struct{"R": float32(1), "G": float32(1), "B": float32(1), "A": float32(1)}
	}
	return a
}

func newComponent(class *classes.Class, name string) *Component {
	return &Component{object: object{class: class, name: name}, Visible: true, CastShadow: true}
}

// NewAsset makes an asset that is not registered with any editor.
func NewAsset(class *classes.Class, path string) *Asset {
	return &Asset{object: object{class: class, name: AssetName(path)}, path: path}
}

// NewClasses builds the class registry of the editor model, with templates
// and constructors.
func NewClasses() *classes.Registry {
	r := classes.NewRegistry()
	actorClass, meshActor, light := newActorClasses()
	for _, c := range []*classes.Class{actorClass, meshActor, light} {
		c := c
		c.Default = newActor(c, "Default__"+c.Name)
		c.New = func(name string) classes.Native {
			a := newActor(c, name)
			fromTemplate(a)
			a.Guid = uuid.NewString()
			return a
		}
	}
	actorClass.Default.(*Actor).MaxHealth = 100
	meshActor.Default.(*Actor).MaxHealth = 100
	light.Default.(*Actor).MaxHealth = 100
	light.Default.(*Actor).Mobility = "Movable"

	compClass, meshComp := newComponentClasses()
	for _, c := range []*classes.Class{compClass, meshComp} {
		c := c
		c.Default = newComponent(c, "Default__"+c.Name)
		c.New = func(name string) classes.Native { return newComponent(c, name) }
	}

	assetClass, material, mesh, texture := newAssetClasses()
	material.Default = NewAsset(material, "Default__Material")
	material.Default.(*Asset).Roughness = 0.5
	for _, c := range []*classes.Class{material, mesh, texture} {
		c := c
		c.New = func(path string) classes.Native {
			a := NewAsset(c, path)
			fromTemplate(a)
			return a
		}
	}
	levelClass := classes.NewClass("Level", nil)
	r.Register(actorClass, meshActor, light, compClass, meshComp, assetClass, material, mesh, texture, levelClass)
	return r
}

// fromTemplate copies the class template values into a new instance.
func fromTemplate(n classes.Native) {
	for _, f := range n.Class().Fields() {
		classes.ResetField(n, f)
	}
}
