package classes

import (
	"fmt"
	"reflect"
)

type Kind uint8

const (
	// Unsupported fields have no type handler and are skipped.
	Unsupported Kind = iota
	Bool
	Int    // int32
	UInt   // uint32
	Long   // int64
	Float  // float32
	Double // float64
	Byte   // uint8
	String
	Name // interned identifier, string
	Enum // one of Type.Enum, string
	Array
	Map
	Set
	Structure
	Object // Native or nil
)

var kindNames = [...]string{"unsupported", "bool", "int", "uint", "long", "float",
	"double", "byte", "string", "name", "enum", "array", "map", "set", "struct", "object"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Type describes a field value. Elem is the element type of arrays and sets
// and the value type of maps; Key is the map key type.
type Type struct {
	Kind    Kind
	Elem    *Type
	Key     *Type
	Members []*Member
	Enum    []string
	// Class restricts Object values to natives of that class.
	Class string
	// Name of struct and enum types.
	Name string
}

type Member struct {
	Name string
	Type *Type
}

// Struct values map member names to values. Missing members hold the zero
// value of their type.
type Struct map[string]any

var (
	BoolType   = &Type{Kind: Bool}
	IntType    = &Type{Kind: Int}
	UIntType   = &Type{Kind: UInt}
	LongType   = &Type{Kind: Long}
	FloatType  = &Type{Kind: Float}
	DoubleType = &Type{Kind: Double}
	ByteType   = &Type{Kind: Byte}
	StringType = &Type{Kind: String}
	NameType   = &Type{Kind: Name}
)

func ArrayOf(elem *Type) *Type { return &Type{Kind: Array, Elem: elem} }

func SetOf(elem *Type) *Type { return &Type{Kind: Set, Elem: elem} }

func MapOf(key, value *Type) *Type { return &Type{Kind: Map, Key: key, Elem: value} }

func EnumOf(name string, values ...string) *Type {
	return &Type{Kind: Enum, Name: name, Enum: values}
}

func StructOf(name string, members ...*Member) *Type {
	return &Type{Kind: Structure, Name: name, Members: members}
}

func ObjectOf(class string) *Type { return &Type{Kind: Object, Class: class} }

func (t *Type) Member(name string) *Member {
	for _, m := range t.Members {
		if m.Name == name {
			return m
		}
	}
	return nil
}

func (t *Type) String() string {
	switch t.Kind {
	case Array, Set:
		return t.Kind.String() + "<" + t.Elem.String() + ">"
	case Map:
		return "map<" + t.Key.String() + "," + t.Elem.String() + ">"
	case Structure, Enum:
		return t.Name
	case Object:
		return "object<" + t.Class + ">"
	}
	return t.Kind.String()
}

// Zero is the value of a field nobody has set.
func (t *Type) Zero() any {
	switch t.Kind {
	case Bool:
		return false
	case Int:
		return int32(0)
	case UInt:
		return uint32(0)
	case Long:
		return int64(0)
	case Float:
		return float32(0)
	case Double:
		return float64(0)
	case Byte:
		return uint8(0)
	case String, Name:
		return ""
	case Enum:
		if len(t.Enum) > 0 {
			return t.Enum[0]
		}
		return ""
	case Array:
		return []any{}
	case Map:
		return NewMap(t)
	case Set:
		return NewSet(t)
	case Structure:
		return Struct{}
	}
	return nil
}

// IsNil reports nil interfaces and typed nil pointers alike.
func IsNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// StructMember returns the member value of a struct, or its zero value.
func (t *Type) StructMember(v any, m *Member) any {
	if s, ok := v.(Struct); ok {
		if mv, ok := s[m.Name]; ok {
			return mv
		}
	}
	return m.Type.Zero()
}

func (t *Type) Equal(a, b any) bool {
	switch t.Kind {
	case Array:
		as, _ := a.([]any)
		bs, _ := b.([]any)
		if len(as) != len(bs) {
			return false
		}
		for i := range as {
			if !t.Elem.Equal(as[i], bs[i]) {
				return false
			}
		}
		return true
	case Map:
		am, bm := asMap(t, a), asMap(t, b)
		if am.Len() != bm.Len() {
			return false
		}
		for i := 0; i < am.Len(); i++ {
			k, v := am.At(i)
			bv, ok := bm.Get(k)
			if !ok || !t.Elem.Equal(v, bv) {
				return false
			}
		}
		return true
	case Set:
		as, bs := asSet(t, a), asSet(t, b)
		if as.Len() != bs.Len() {
			return false
		}
		for i := 0; i < as.Len(); i++ {
			if !bs.Has(as.At(i)) {
				return false
			}
		}
		return true
	case Structure:
		for _, m := range t.Members {
			if !m.Type.Equal(t.StructMember(a, m), t.StructMember(b, m)) {
				return false
			}
		}
		return true
	case Object:
		if IsNil(a) || IsNil(b) {
			return IsNil(a) && IsNil(b)
		}
		return a == b
	}
	if a == nil {
		a = t.Zero()
	}
	if b == nil {
		b = t.Zero()
	}
	return a == b
}

// Copy deep copies containers and structs. Objects are shared.
func (t *Type) Copy(v any) any {
	switch t.Kind {
	case Array:
		src, _ := v.([]any)
		dst := make([]any, len(src))
		for i, e := range src {
			dst[i] = t.Elem.Copy(e)
		}
		return dst
	case Map:
		src := asMap(t, v)
		dst := NewMap(t)
		for i := 0; i < src.Len(); i++ {
			k, e := src.At(i)
			dst.Put(t.Key.Copy(k), t.Elem.Copy(e))
		}
		return dst
	case Set:
		src := asSet(t, v)
		dst := NewSet(t)
		for i := 0; i < src.Len(); i++ {
			dst.Add(t.Elem.Copy(src.At(i)))
		}
		return dst
	case Structure:
		src, _ := v.(Struct)
		dst := Struct{}
		for _, m := range t.Members {
			if mv, ok := src[m.Name]; ok {
				dst[m.Name] = m.Type.Copy(mv)
			}
		}
		return dst
	case Object:
		if IsNil(v) {
			return nil
		}
		return v
	}
	if v == nil {
		return t.Zero()
	}
	return v
}

func asMap(t *Type, v any) *OrderedMap {
	if m, ok := v.(*OrderedMap); ok && m != nil {
		return m
	}
	return NewMap(t)
}

func asSet(t *Type, v any) *OrderedSet {
	if s, ok := v.(*OrderedSet); ok && s != nil {
		return s
	}
	return NewSet(t)
}
