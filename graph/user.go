package graph

import "fmt"

// Color is an RGB triple in [0,1].
type Color [3]float32

type User struct {
	id      uint32
	name    string
	color   Color
	isLocal bool
}

func NewUser(id uint32, name string, color Color, isLocal bool) *User {
	return &User{id: id, name: name, color: color, isLocal: isLocal}
}

func (u *User) Id() uint32 { return u.id }

func (u *User) Name() string { return u.name }

func (u *User) Color() Color { return u.color }

func (u *User) IsLocal() bool { return u.isLocal }

func (u *User) String() string {
	return fmt.Sprintf("%s#%d", u.name, u.id)
}
