package classes

// A class lists the fields the property manager may sync. Each Field has a
// value Type and edit flags. A class inherits the fields of its parent;
// lookups by name search the class first, then its ancestors.
// Field getters and setters are written per class by hand, there is no
// runtime reflection over Go structs.

import (
	"strings"
	"unicode/utf8"
)

type Flags uint16

const (
	// Edit fields are shown in the editor's details panel.
	Edit Flags = 1 << iota
	// EditConst fields are shown but read only.
	EditConst
	// DisableEditOnInstance fields are only editable on the class template.
	DisableEditOnInstance
	// Transient fields are never saved or synced.
	Transient
)

func (f Flags) Has(flag Flags) bool { return f&flag == flag }

type Field struct {
	Name  string
	Type  *Type
	Flags Flags
	Get   func(n Native) any
	Set   func(n Native, v any)

	owner *Class
}

// Fields
type Fields []*Field

// Owner is the class that declared the field.
func (f *Field) Owner() *Class { return f.owner }

// Key is "Class.Field", the form used by sync rules.
func (f *Field) Key() string {
	if f.owner == nil {
		return f.Name
	}
	return f.owner.Name + "." + f.Name
}

func (f *Field) Valid() bool {
	for _, l := range f.Name { // has unsafe chars
		if l < ' ' {
			return false
		}
	}
	return len(f.Name) > 0 && utf8.ValidString(f.Name) &&
		!strings.HasPrefix(f.Name, "#") && !strings.ContainsRune(f.Name, '.') &&
		f.Type != nil && f.Get != nil && f.Set != nil
}

func (fs Fields) FindName(name string) (ndx int) {
	for i := 0; i < len(fs); i++ {
		if fs[i].Name == name {
			return i
		}
	}
	return -1
}
