package classes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type thing struct {
	class *Class
	name  string
	hp    int32
	tags  []any
	pos   Struct
}

func (t *thing) Class() *Class { return t.class }
func (t *thing) Name() string { return t.name }

var vector = StructOf("Vector",
	&Member{Name: "X", Type: FloatType},
	&Member{Name: "Y", Type: FloatType},
	&Member{Name: "Z", Type: FloatType},
)

func testClasses() (base, derived *Class) {
	base = NewClass("Thing", nil,
		&Field{Name: "HP", Type: IntType, Flags: Edit,
			Get: func(n Native) any { return n.(*thing).hp },
			Set: func(n Native, v any) { n.(*thing).hp = v.(int32) }},
	)
	derived = NewClass("Crate", base,
		&Field{Name: "Tags", Type: ArrayOf(StringType), Flags: Edit,
			Get: func(n Native) any { return n.(*thing).tags },
			Set: func(n Native, v any) { n.(*thing).tags = v.([]any) }},
		&Field{Name: "Pos", Type: vector, Flags: Edit | DisableEditOnInstance,
			Get: func(n Native) any { return n.(*thing).pos },
			Set: func(n Native, v any) { n.(*thing).pos = v.(Struct) }},
	)
	derived.Default = &thing{class: derived, hp: 100}
	return
}

func TestClass_Fields(t *testing.T) {
	base, crate := testClasses()
	assert.Len(t, crate.Fields(), 3)
	assert.Equal(t, "HP", crate.Fields()[0].Name)
	assert.Equal(t, base, crate.Field("HP").Owner())
	assert.Equal(t, "Thing.HP", crate.Field("HP").Key())
	assert.Equal(t, "Crate.Tags", crate.Field("Tags").Key())
	assert.Nil(t, base.Field("Tags"))
	assert.True(t, crate.IsA("Thing"))
	assert.False(t, base.IsA("Crate"))
	assert.Equal(t, []string{"Crate", "Thing"}, crate.Lineage())
	assert.Equal(t, 1, crate.Fields().FindName("Tags"))
	assert.True(t, DisableEditOnInstance.Has(DisableEditOnInstance))
	assert.True(t, crate.Field("Pos").Flags.Has(Edit))

	assert.Panics(t, func() {
		NewClass("Bad", nil, &Field{Name: "#meta", Type: IntType,
			Get: func(Native) any { return nil }, Set: func(Native, any) {}})
	})
}

func TestClass_Defaults(t *testing.T) {
	_, crate := testClasses()
	n := &thing{class: crate, hp: 100}
	hp := crate.Field("HP")
	assert.True(t, IsDefault(n, hp))
	assert.True(t, IsDefault(n, crate.Field("Tags")), "nil slice equals empty default")
	assert.True(t, IsTemplate(crate.Default))
	assert.False(t, IsTemplate(n))

	n.hp = 5
	assert.False(t, IsDefault(n, hp))
	assert.True(t, ResetField(n, hp))
	assert.Equal(t, int32(100), n.hp)
	assert.False(t, ResetField(n, hp))

	n.pos = Struct{"X": float32(1)}
	assert.False(t, IsDefault(n, crate.Field("Pos")))
	n.pos = Struct{"X": float32(0)}
	assert.True(t, IsDefault(n, crate.Field("Pos")), "missing members are zero")
}

func TestRegistry(t *testing.T) {
	base, crate := testClasses()
	r := NewRegistry()
	r.Register(base, crate)
	assert.Equal(t, crate, r.Get("Crate"))
	assert.Nil(t, r.Get("Nope"))
	assert.Equal(t, []string{"Crate", "Thing"}, r.Names())
}

func TestType_EqualCopy(t *testing.T) {
	arr := ArrayOf(vector)
	a := []any{Struct{"X": float32(1)}, Struct{}}
	b := arr.Copy(a).([]any)
	assert.True(t, arr.Equal(a, b))
	b[0].(Struct)["X"] = float32(2)
	assert.False(t, arr.Equal(a, b))
	assert.Equal(t, float32(1), a[0].(Struct)["X"], "copy is deep")

	e := EnumOf("Mobility", "Static", "Movable")
	assert.Equal(t, "Static", e.Zero())
	assert.True(t, e.Equal(nil, "Static"))

	obj := ObjectOf("Thing")
	var nilThing *thing
	assert.True(t, obj.Equal(nil, nilThing))
	assert.True(t, IsNil(nilThing))
	assert.Nil(t, obj.Copy(nilThing))
	assert.Equal(t, "array<Vector>", arr.String())
}

func TestMap_Rehash(t *testing.T) {
	mt := MapOf(StringType, IntType)
	m := NewMap(mt)
	m.Put("a", int32(1))
	m.Put("b", int32(2))
	m.Put("a", int32(3))
	require.Equal(t, 2, m.Len())
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, int32(3), v)
	assert.False(t, m.IsStale())

	// rename a key in place
	m.SetKeyAt(0, "c")
	assert.True(t, m.IsStale())
	_, ok = m.Get("c")
	assert.False(t, ok, "stale index misses the new key")
	assert.Equal(t, 0, m.Rehash())
	assert.False(t, m.IsStale())
	v, ok = m.Get("c")
	assert.True(t, ok)
	assert.Equal(t, int32(3), v)

	m.SetKeyAt(0, "b")
	assert.Equal(t, 1, m.Rehash(), "duplicate keys collapse")
	assert.Equal(t, 1, m.Len())

	other := NewMap(mt)
	other.Put("b", int32(3))
	assert.True(t, mt.Equal(m, other))
	assert.True(t, m.Remove("b"))
	assert.False(t, m.Remove("b"))
	assert.True(t, mt.Equal(m, nil))
}

func TestSet(t *testing.T) {
	st := SetOf(NameType)
	s := NewSet(st)
	assert.True(t, s.Add("x"))
	assert.False(t, s.Add("x"))
	assert.True(t, s.Add("y"))
	s.SetAt(1, "z")
	assert.True(t, s.IsStale())
	s.Rehash()
	assert.True(t, s.Has("z"))
	assert.False(t, s.Has("y"))

	c := st.Copy(s).(*OrderedSet)
	assert.True(t, st.Equal(s, c))
	c.Remove("x")
	assert.False(t, st.Equal(s, c))
	assert.NotEqual(t, Fingerprint(StringType, "x"), Fingerprint(StringType, "y"))
}
